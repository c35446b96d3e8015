package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/trialscope/configs"
	"github.com/Aman-CERP/trialscope/internal/config"
	"github.com/Aman-CERP/trialscope/internal/output"
)

func newConfigCmd(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Inspect and manage trialscope configuration.

Configuration precedence (lowest to highest):
  1. Built-in defaults
  2. User config (~/.config/trialscope/config.yaml)
  3. Project config (.trialscope.yaml)
  4. Environment variables (TRIALSCOPE_*, GEMINI_API_KEY)`,
		Example: `  # Show effective configuration (merged from all sources)
  trialscope config show

  # Create the user config from the annotated template
  trialscope config init --template

  # Roll back to the newest backup
  trialscope config backups
  trialscope config restore <backup>`,
	}

	cmd.AddCommand(newConfigShowCmd(global))
	cmd.AddCommand(newConfigPathCmd())
	cmd.AddCommand(newConfigInitCmd(global))
	cmd.AddCommand(newConfigExampleCmd())
	cmd.AddCommand(newConfigBackupsCmd())
	cmd.AddCommand(newConfigRestoreCmd(global))

	return cmd
}

func newConfigShowCmd(global *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long:  `Print the configuration after merging defaults, user and project files and environment overrides. Secrets are omitted from JSON output.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(global)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), cfg)
			}
			redacted := *cfg
			redacted.Store.APIKey = redact(cfg.Store.APIKey)
			redacted.Store.Password = redact(cfg.Store.Password)
			redacted.Oracle.APIKey = redact(cfg.Oracle.APIKey)
			data, err := yaml.Marshal(&redacted)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the user config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return err
		},
	}
}

func newConfigInitCmd(global *globalOptions) *cobra.Command {
	var (
		force    bool
		template bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the user configuration file",
		Long: `Create ~/.config/trialscope/config.yaml (or under $XDG_CONFIG_HOME).

By default the current effective configuration is written. With --template
the annotated template is written instead. An existing file is backed up
before it is replaced.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout(), useColor(cmd, global))

			var (
				backup string
				err    error
			)
			if template {
				backup, err = config.InitUserConfigTemplate(configs.Template, force)
			} else {
				cfg, _, loadErr := loadConfig(global)
				if loadErr != nil {
					return loadErr
				}
				backup, err = config.InitUserConfig(cfg, force)
			}
			if err != nil {
				return err
			}

			if backup != "" {
				out.Status("", "Previous config saved to "+backup)
			}
			out.Successf("Created %s", config.GetUserConfigPath())
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	cmd.Flags().BoolVar(&template, "template", false, "Write the annotated template")

	return cmd
}

func newConfigExampleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "example",
		Short: "Print the annotated configuration template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprint(cmd.OutOrStdout(), configs.Template)
			return err
		},
	}
}

func newConfigBackupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backups",
		Short: "List user config backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			backups, err := config.ListUserConfigBackups()
			if err != nil {
				return err
			}
			for _, b := range backups {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), b); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newConfigRestoreCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <backup>",
		Short: "Restore the user config from a backup",
		Long:  `Validate a backup and make it the user config. The current file is backed up first.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.RestoreUserConfig(args[0]); err != nil {
				return err
			}
			output.New(cmd.OutOrStdout(), useColor(cmd, global)).
				Successf("Restored %s from %s", config.GetUserConfigPath(), args[0])
			return nil
		},
	}
}
