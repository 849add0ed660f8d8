package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/robertguss/rxflow-go/internal/client"
	"github.com/robertguss/rxflow-go/internal/preflight"
)

var errChecksFailed = errors.New("pre-flight checks failed")

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run pre-flight checks",
	Long:  `Verify the data directory, history database, backend reachability, profiles and saved login before starting the TUI.`,
	Args:  cobra.NoArgs,
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	backend := client.New(cfg.APIBaseURL, client.WithTimeout(cfg.RequestTimeout))
	results := preflight.RunAll(cmd.Context(), cfg, backend)

	out := cmd.OutOrStdout()
	for _, check := range results.Checks {
		switch {
		case check.Passed:
			fmt.Fprintf(out, "✓ %-16s %s\n", check.Name, check.Message)
		case preflight.IsWarning(check.Name):
			fmt.Fprintf(out, "! %-16s %s\n", check.Name, check.Error)
		default:
			fmt.Fprintf(out, "✗ %-16s %s\n", check.Name, check.Error)
		}
	}
	fmt.Fprintf(out, "\n%d/%d checks passed\n", results.PassedCount(), len(results.Checks))

	if !results.AllPass {
		return errChecksFailed
	}
	return nil
}
