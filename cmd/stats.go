package cmd

import (
	"fmt"
	"sort"
	"time"

	"github.com/JakeFAU/scholar-cites/internal/cache"
	"github.com/spf13/cobra"
)

var statsTop int

// newStatsCmd creates and configures the 'stats' subcommand.
func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Prints a summary of the citation cache",
		Long: `Reads the citation cache and prints entry counts, citation totals and
the most cited entries. Never touches the network.`,

		RunE: runStatsCommand,
	}
	cmd.Flags().IntVar(&statsTop, "top", 5, "number of most cited entries to list")
	return cmd
}

func runStatsCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	cc, err := appInstance.GetStore().Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("load cache: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Cache file: %s\n", appInstance.GetStore().Path())
	fmt.Fprintf(out, "Entries: %d\n", cc.Len())
	if cc.Len() == 0 {
		return nil
	}

	var cited, total int
	var newest time.Time
	for _, key := range cc.Keys() {
		entry, ok := cc.Get(key)
		if !ok {
			continue
		}
		total += entry.Cites
		if entry.Cites > 0 {
			cited++
		}
		if entry.Updated.After(newest) {
			newest = entry.Updated
		}
	}
	fmt.Fprintf(out, "Entries with citations: %d\n", cited)
	fmt.Fprintf(out, "Total citations: %d\n", total)
	if oldest, ok := cc.OldestUpdate(); ok {
		fmt.Fprintf(out, "Oldest update: %s\n", oldest.UTC().Format(time.RFC3339))
	}
	if !newest.IsZero() {
		fmt.Fprintf(out, "Newest update: %s\n", newest.UTC().Format(time.RFC3339))
	}

	top := topEntries(cc, statsTop)
	if len(top) > 0 {
		fmt.Fprintln(out, "Most cited:")
		for _, item := range top {
			label := item.entry.Query
			if label == "" {
				label = item.key
			}
			fmt.Fprintf(out, "  %6d  %s\n", item.entry.Cites, label)
		}
	}
	return nil
}

type rankedEntry struct {
	key   string
	entry *cache.Entry
}

// topEntries ranks cited entries by count, highest first, keys breaking ties.
func topEntries(cc *cache.Cache, n int) []rankedEntry {
	if n <= 0 {
		return nil
	}
	ranked := make([]rankedEntry, 0, cc.Len())
	for _, key := range cc.Keys() {
		entry, ok := cc.Get(key)
		if !ok || entry.Cites == 0 {
			continue
		}
		ranked = append(ranked, rankedEntry{key: key, entry: entry})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].entry.Cites != ranked[j].entry.Cites {
			return ranked[i].entry.Cites > ranked[j].entry.Cites
		}
		return ranked[i].key < ranked[j].key
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
