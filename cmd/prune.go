package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var pruneDryRun bool

// newPruneCmd creates and configures the 'prune' subcommand.
func newPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Removes cache entries no longer in the publication list",
		Long: `Compares the citation cache against the publication list and drops
entries whose keys no longer appear there. Use --dry-run to preview the
removals without rewriting the cache file.`,

		RunE: runPruneCommand,
	}
	cmd.Flags().BoolVar(&pruneDryRun, "dry-run", false, "list removable entries without rewriting the cache")
	return cmd
}

func runPruneCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	records, err := appInstance.GetSource().Records(cmd.Context())
	if err != nil {
		return fmt.Errorf("load bibliography: %w", err)
	}
	keep := make(map[string]struct{}, len(records))
	for _, rec := range records {
		keep[rec.Key] = struct{}{}
	}

	cc, err := appInstance.GetStore().Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("load cache: %w", err)
	}

	out := cmd.OutOrStdout()
	var stale []string
	for _, key := range cc.Keys() {
		if _, ok := keep[key]; !ok {
			stale = append(stale, key)
		}
	}
	if len(stale) == 0 {
		fmt.Fprintln(out, "Nothing to prune, every cache entry matches a publication.")
		return nil
	}

	for _, key := range stale {
		label := key
		if entry, ok := cc.Get(key); ok && entry.Query != "" {
			label = fmt.Sprintf("%s (%s)", key, entry.Query)
		}
		fmt.Fprintf(out, "prune: %s\n", label)
	}
	if pruneDryRun {
		fmt.Fprintf(out, "Dry run, %d entries left untouched.\n", len(stale))
		return nil
	}

	for _, key := range stale {
		cc.Delete(key)
	}
	if err := appInstance.GetStore().Save(cmd.Context(), cc); err != nil {
		return fmt.Errorf("save pruned cache: %w", err)
	}
	fmt.Fprintf(out, "Removed %d entries, %d remain.\n", len(stale), cc.Len())
	appInstance.GetLogger().Info("Cache pruned",
		zap.Int("removed", len(stale)),
		zap.Int("remaining", cc.Len()))
	return nil
}
