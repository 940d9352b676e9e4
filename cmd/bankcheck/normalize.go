package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/permitprep/backend/internal/content"
	"github.com/permitprep/backend/internal/models"
	"github.com/spf13/cobra"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize FILE",
	Short: "Rewrite a bank file of any supported shape as a versioned envelope",
	Args:  cobra.ExactArgs(1),
	RunE:  runNormalize,
}

func init() {
	normalizeCmd.Flags().StringP("output", "o", "", "Output path (default stdout)")
}

func runNormalize(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read bank: %w", err)
	}

	jurisdiction, _ := cmd.Flags().GetString("jurisdiction")
	res, err := content.Normalize(data, strings.ToUpper(strings.TrimSpace(jurisdiction)))
	if err != nil {
		return err
	}
	for _, e := range res.Errors {
		fmt.Fprintf(cmd.ErrOrStderr(), "skipped: %v\n", e)
	}

	qs := res.Questions
	if qs == nil {
		qs = []models.Question{}
	}
	out, err := json.MarshalIndent(models.BankEnvelope{
		Version:    1,
		ExportedAt: time.Now().UTC(),
		Questions:  qs,
	}, "", "  ")
	if err != nil {
		return err
	}
	if err := content.ValidateEnvelope(out); err != nil {
		return err
	}
	out = append(out, '\n')

	path, _ := cmd.Flags().GetString("output")
	if path == "" {
		_, err = cmd.OutOrStdout().Write(out)
		return err
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d questions to %s (%d skipped)\n", len(qs), path, len(res.Errors))
	return nil
}
