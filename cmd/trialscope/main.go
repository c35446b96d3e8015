// Package main provides the entry point for the trialscope CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/trialscope/cmd/trialscope/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
