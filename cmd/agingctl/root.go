package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "agingctl",
	Short: "Operator CLI for recurring billing receivables",
	Long: `agingctl reads the recurring schedules and payment ledger configured in
the billing config file and prints the collections aging view.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "config/config.dev.yaml", "Path to configuration file")
}
