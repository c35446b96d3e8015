package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	// MaxBackups is the maximum number of config backups to keep.
	MaxBackups = 3

	// BackupSuffix marks backup files: config.yaml.bak.<timestamp>.
	BackupSuffix = ".bak"
)

// InitUserConfig writes cfg as the user config. An existing file is backed
// up first and only replaced when force is set. Returns the backup path, if
// one was made.
func InitUserConfig(cfg *Config, force bool) (string, error) {
	return initUserConfig(force, cfg.WriteYAML)
}

// InitUserConfigTemplate writes an annotated template as the user config,
// with the same backup and force rules as InitUserConfig.
func InitUserConfigTemplate(template string, force bool) (string, error) {
	return initUserConfig(force, func(path string) error {
		if err := os.WriteFile(path, []byte(template), 0o600); err != nil {
			return fmt.Errorf("failed to write config file: %w", err)
		}
		return nil
	})
}

func initUserConfig(force bool, write func(path string) error) (string, error) {
	path := GetUserConfigPath()
	if UserConfigExists() && !force {
		return "", fmt.Errorf("user config already exists at %s (use --force to replace it)", path)
	}

	backup, err := BackupUserConfig()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return backup, fmt.Errorf("failed to create config directory: %w", err)
	}
	return backup, write(path)
}

// BackupUserConfig copies the user config to a timestamped backup and
// prunes old backups. Returns "" when there is no user config.
func BackupUserConfig() (string, error) {
	path := GetUserConfigPath()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read config for backup: %w", err)
	}

	backup := fmt.Sprintf("%s%s.%s", path, BackupSuffix, time.Now().Format("20060102-150405.000"))
	if err := os.WriteFile(backup, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	backups, err := ListUserConfigBackups()
	if err == nil && len(backups) > MaxBackups {
		for _, old := range backups[MaxBackups:] {
			_ = os.Remove(old)
		}
	}
	return backup, nil
}

// ListUserConfigBackups returns the user config backups, newest first.
func ListUserConfigBackups() ([]string, error) {
	path := GetUserConfigPath()
	entries, err := os.ReadDir(filepath.Dir(path))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list config directory: %w", err)
	}

	prefix := filepath.Base(path) + BackupSuffix + "."
	var backups []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			backups = append(backups, filepath.Join(filepath.Dir(path), e.Name()))
		}
	}
	// Timestamps sort lexically.
	sort.Sort(sort.Reverse(sort.StringSlice(backups)))
	return backups, nil
}

// RestoreUserConfig replaces the user config with a backup, backing up the
// current file first.
func RestoreUserConfig(backupPath string) error {
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("failed to read backup: %w", err)
	}
	var probe Config
	if err := yamlUnmarshalStrict(data, &probe); err != nil {
		return fmt.Errorf("backup %s is not a valid config: %w", backupPath, err)
	}

	if _, err := BackupUserConfig(); err != nil {
		return fmt.Errorf("failed to backup current config before restore: %w", err)
	}
	if err := os.MkdirAll(GetUserConfigDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(GetUserConfigPath(), data, 0o600); err != nil {
		return fmt.Errorf("failed to write restored config: %w", err)
	}
	return nil
}
