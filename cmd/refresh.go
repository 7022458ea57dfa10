// Package cmd defines and implements the CLI commands for the scholarcites executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/scholar-cites/internal/refresh"
	"github.com/spf13/cobra"
)

// newRefreshCmd creates and configures the 'refresh' subcommand.
// This command runs a single budgeted pass over the publication list: it
// selects the stalest cache entries, fetches fresh citation counts for them
// and persists the result.
func newRefreshCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Runs one budgeted citation refresh",
		Long: `Loads the publication list, picks the stalest cached entries within the
configured per-run budget, fetches fresh citation counts for them and
rewrites the cache file. Pause, proxy and headless fallback behavior all
come from the configuration file.`,

		RunE: runRefreshCommand,
	}
	return cmd
}

func runRefreshCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	summary, err := appInstance.Refresh(cmd.Context())
	if summary != nil {
		printSummary(cmd, summary)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("refresh: %w", err)
	}
	return nil
}

func printSummary(cmd *cobra.Command, s *refresh.Summary) {
	out := cmd.OutOrStdout()
	if s.Disabled {
		fmt.Fprintf(out, "Run %s: fetching disabled, cache left as loaded (%d entries)\n", s.RunID, s.CacheEntries)
		return
	}
	fmt.Fprintf(out, "Run %s finished in %s\n", s.RunID, s.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "  candidates: %d  updated: %d  unchanged: %d  failed: %d  skipped: %d\n",
		s.Candidates, s.Updated, s.Unchanged, s.Failed, s.Skipped)
	fmt.Fprintf(out, "  queries: %d  warmed entries: %d  cache entries: %d\n",
		s.Queries, s.Warmed, s.CacheEntries)
	if !s.OldestUpdate.IsZero() {
		fmt.Fprintf(out, "  oldest update: %s\n", s.OldestUpdate.UTC().Format(time.RFC3339))
	}
	if s.ShortCircuited {
		fmt.Fprintln(out, "  note: run stopped early because the source refused every egress path")
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
