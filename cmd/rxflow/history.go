package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/robertguss/rxflow-go/internal/storage"
	"github.com/robertguss/rxflow-go/internal/util"
)

var (
	historySession      string
	historyStatus       string
	historyPrescription int64
	historyLimit        int
	pruneOlderThan      time.Duration
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded draft save attempts",
	Long:  `Show autosave and manual save attempts recorded in the local history database, newest first.`,
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise save attempts",
	Args:  cobra.NoArgs,
	RunE:  runHistoryStats,
}

var historyErrorsCmd = &cobra.Command{
	Use:   "errors",
	Short: "List reported background errors",
	Args:  cobra.NoArgs,
	RunE:  runHistoryErrors,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete history older than a cutoff",
	Args:  cobra.NoArgs,
	RunE:  runHistoryPrune,
}

func init() {
	historyCmd.Flags().StringVar(&historySession, "session", "", "only attempts from this session")
	historyCmd.Flags().StringVar(&historyStatus, "status", "", "only attempts with this status (saved, failed)")
	historyCmd.Flags().Int64Var(&historyPrescription, "prescription", 0, "only attempts for this prescription")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum rows to show")
	historyErrorsCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum rows to show")
	historyPruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 30*24*time.Hour, "delete entries older than this")

	historyCmd.AddCommand(historyStatsCmd, historyErrorsCmd, historyPruneCmd)
	rootCmd.AddCommand(historyCmd)
}

// openHistory opens the history database named by the loaded config
func openHistory() (*storage.SQLiteStorage, error) {
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, err
	}
	path := cfg.DatabasePath
	if path == "" {
		path = storage.GetDatabasePath(cfg.DataDir)
	}
	return storage.NewSQLiteStorage(path)
}

func runHistory(cmd *cobra.Command, args []string) error {
	switch storage.AttemptStatus(historyStatus) {
	case "", storage.AttemptSaved, storage.AttemptFailed:
	default:
		return fmt.Errorf("unknown status %q (want saved or failed)", historyStatus)
	}

	db, err := openHistory()
	if err != nil {
		return err
	}
	defer db.Close()

	filter := &storage.AttemptFilter{
		SessionID:      historySession,
		PrescriptionID: historyPrescription,
		Status:         storage.AttemptStatus(historyStatus),
		Limit:          historyLimit,
	}
	attempts, err := db.ListAttempts(cmd.Context(), filter)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(attempts) == 0 {
		fmt.Fprintln(out, "No save attempts recorded")
		return nil
	}

	fmt.Fprintf(out, "%s  %s  %s  %s  %s  %s\n",
		util.PadRight("STARTED", 19), util.PadRight("RX", 8), util.PadRight("TRIGGER", 7),
		util.PadRight("STATUS", 6), util.PadRight("TOOK", 7), "ERROR")
	for _, a := range attempts {
		fmt.Fprintf(out, "%s  %s  %s  %s  %s  %s\n",
			a.StartedAt.Local().Format("2006-01-02 15:04:05"),
			util.PadRight(fmt.Sprint(a.PrescriptionID), 8),
			util.PadRight(a.Trigger, 7),
			util.PadRight(string(a.Status), 6),
			util.PadRight(util.FormatDurationCompact(a.Duration), 7),
			util.Truncate(a.Error, 60))
	}
	return nil
}

func runHistoryStats(cmd *cobra.Command, args []string) error {
	db, err := openHistory()
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := db.GetStats(cmd.Context())
	if err != nil {
		return err
	}
	printStats(cmd.OutOrStdout(), stats)
	return nil
}

func printStats(out io.Writer, stats *storage.Stats) {
	fmt.Fprintf(out, "Save attempts:   %d (%d saved, %d failed)\n", stats.TotalAttempts, stats.SavedCount, stats.FailedCount)
	fmt.Fprintf(out, "Success rate:    %.1f%%\n", stats.SuccessRate)
	fmt.Fprintf(out, "Average save:    %s\n", util.FormatDurationCompact(stats.AvgDuration))
	fmt.Fprintf(out, "Slowest save:    %s\n", util.FormatDurationCompact(stats.MaxDuration))
	fmt.Fprintf(out, "Reported errors: %d\n", stats.ReportedErrors)

	if len(stats.AttemptsByDay) > 0 {
		days := make([]string, 0, len(stats.AttemptsByDay))
		for day := range stats.AttemptsByDay {
			days = append(days, day)
		}
		sort.Strings(days)

		fmt.Fprintln(out, "\nBy day:")
		for _, day := range days {
			fmt.Fprintf(out, "  %s  %d\n", day, stats.AttemptsByDay[day])
		}
	}
}

func runHistoryErrors(cmd *cobra.Command, args []string) error {
	db, err := openHistory()
	if err != nil {
		return err
	}
	defer db.Close()

	reports, err := db.ListErrorReports(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(reports) == 0 {
		fmt.Fprintln(out, "No errors reported")
		return nil
	}
	for _, r := range reports {
		fmt.Fprintf(out, "%s  %s  %s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			util.PadRight(r.Context, 10),
			r.Message)
	}
	return nil
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	if pruneOlderThan <= 0 {
		return fmt.Errorf("--older-than must be positive")
	}

	db, err := openHistory()
	if err != nil {
		return err
	}
	defer db.Close()

	removed, err := db.PruneBefore(cmd.Context(), time.Now().Add(-pruneOlderThan))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d save attempts\n", removed)
	return nil
}
