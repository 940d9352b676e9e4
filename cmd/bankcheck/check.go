package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/permitprep/backend/internal/bankcheck"
	"github.com/permitprep/backend/internal/config"
	"github.com/spf13/cobra"
)

var errCheckFailed = errors.New("bank check failed")

var checkCmd = &cobra.Command{
	Use:   "check FILE",
	Short: "Run the content checks over a bank file",
	Long: "Run every content check over a bank file and print a per-category report.\n" +
		"Exits non-zero when any category fails.",
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().Int("expected", 0, "Expected question count (0 skips the count check)")
	checkCmd.Flags().Bool("json", false, "Print the report as JSON")
	checkCmd.Flags().Bool("verify", false, "Ask the model to answer every question and compare with the key")
	checkCmd.Flags().Int("workers", 4, "Concurrent verification calls")
}

func runCheck(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read bank: %w", err)
	}

	jurisdiction, _ := cmd.Flags().GetString("jurisdiction")
	expected, _ := cmd.Flags().GetInt("expected")
	asJSON, _ := cmd.Flags().GetBool("json")
	verify, _ := cmd.Flags().GetBool("verify")

	report, qs, err := bankcheck.CheckFile(data, bankcheck.Options{
		Expected:     expected,
		Jurisdiction: strings.ToUpper(strings.TrimSpace(jurisdiction)),
	})
	if err != nil {
		return err
	}

	if verify {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.AnthropicAPIKey == "" {
			return errors.New("--verify needs ANTHROPIC_API_KEY")
		}
		workers, _ := cmd.Flags().GetInt("workers")
		v := bankcheck.NewVerifier(bankcheck.NewAPIClient(cfg.AnthropicAPIKey, cfg.ValidationModel), workers)
		report.Add(bankcheck.CategoryVerification, v.Verify(cmd.Context(), qs))
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printReport(out, args[0], report)
	}

	if !report.Passed {
		return errCheckFailed
	}
	return nil
}

func printReport(w io.Writer, name string, r *bankcheck.Report) {
	fmt.Fprintf(w, "%s: %d questions\n", name, r.Total)
	for _, c := range r.Categories {
		if c.Passed {
			fmt.Fprintf(w, "  PASS  %s\n", c.Name)
			continue
		}
		fmt.Fprintf(w, "  FAIL  %s (%d)\n", c.Name, len(c.Issues))
		for _, issue := range c.Issues {
			switch {
			case issue.QuestionID != "" && issue.Field != "":
				fmt.Fprintf(w, "        %s [%s] %s\n", issue.QuestionID, issue.Field, issue.Message)
			case issue.QuestionID != "":
				fmt.Fprintf(w, "        %s %s\n", issue.QuestionID, issue.Message)
			default:
				fmt.Fprintf(w, "        %s\n", issue.Message)
			}
		}
	}
	if r.Passed {
		fmt.Fprintln(w, "OK")
	}
}
