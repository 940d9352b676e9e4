package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "bankcheck",
	Short:        "Audit and normalize permit-test question banks",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringP("jurisdiction", "j", "", "Jurisdiction for records that carry none (e.g. CA, ALL, CDL)")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(normalizeCmd)
}
