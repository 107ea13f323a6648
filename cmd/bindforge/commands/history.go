package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/bindforge/bindforge/pkg/config"
	"github.com/bindforge/bindforge/pkg/engine"
	"github.com/bindforge/bindforge/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded generation runs",
		Long: `Every generate run is recorded in the history database configured in
bindforge.yaml, with its status, the fingerprint of its inputs, its diagnostics
and, for successful runs, the resolved model.`,
	}

	cmd.AddCommand(newHistoryListCommand())
	cmd.AddCommand(newHistoryShowCommand())
	cmd.AddCommand(newHistoryStatsCommand())
	cmd.AddCommand(newHistoryPruneCommand())

	return cmd
}

// openHistory opens the history database named by bindforge.yaml.
func openHistory(ctx context.Context) (*stores.SQLiteStore, error) {
	cfg, err := config.LoadToolConfig(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.History.Path == "" {
		return nil, fmt.Errorf("no history database configured")
	}
	store, err := stores.Open(ctx, cfg.History.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	return store, nil
}

func newHistoryListCommand() *cobra.Command {
	var (
		planPath string
		status   string
		kind     string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		Example: `  bindforge history list
  bindforge history list --plan plan.cue --status rejected
  bindforge history list --kind CycleError --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			filter := stores.RunFilter{
				Status: stores.RunStatus(status),
				Kind:   engine.DiagnosticKind(kind),
				Limit:  limit,
			}
			if planPath != "" {
				filter.PlanPath = absPath(planPath)
			}
			if status != "" && !filter.Status.Valid() {
				return fmt.Errorf("invalid status %q (want succeeded, rejected or failed)", status)
			}

			store, err := openHistory(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(ctx, filter)
			if err != nil {
				return err
			}
			log.Debug().Int("runs", len(runs)).Msg("Listed runs")

			if jsonOutput {
				summaries := make([]runSummary, 0, len(runs))
				for _, r := range runs {
					summaries = append(summaries, summarize(r))
				}
				enc := json.NewEncoder(stdout(cmd))
				enc.SetIndent("", "  ")
				return enc.Encode(summaries)
			}

			if len(runs) == 0 {
				fmt.Fprintln(stdout(cmd), "No runs recorded")
				return nil
			}
			tw := tabwriter.NewWriter(stdout(cmd), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTARTED\tSTATUS\tPLAN\tRESOURCES\tDIAGNOSTICS\tDURATION")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
					shortID(r.ID),
					r.StartedAt.Local().Format(time.DateTime),
					r.Status,
					planLabel(r),
					r.ResourceCount,
					r.DiagnosticCount,
					r.Duration().Round(time.Millisecond),
				)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&planPath, "plan", "", "only runs of this plan file")
	cmd.Flags().StringVar(&status, "status", "", "only runs with this status (succeeded, rejected, failed)")
	cmd.Flags().StringVar(&kind, "kind", "", "only runs that reported this diagnostic kind")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs (0 for all)")

	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run with its diagnostics and model",
		Long: `Show prints a recorded run as JSON. Any unambiguous prefix of the run ID
is accepted.`,
		Example: `  bindforge history show 3f2a`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openHistory(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.FindRun(ctx, args[0])
			if err != nil {
				return err
			}
			data, err := stores.ExportRun(run)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(stdout(cmd), string(data))
			return err
		},
	}
	return cmd
}

func newHistoryStatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count recorded diagnostics by kind",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openHistory(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			counts, err := store.CountDiagnosticsByKind(ctx)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(stdout(cmd))
				enc.SetIndent("", "  ")
				return enc.Encode(counts)
			}
			tw := tabwriter.NewWriter(stdout(cmd), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KIND\tCOUNT")
			for _, c := range counts {
				fmt.Fprintf(tw, "%s\t%d\n", c.Kind, c.Count)
			}
			return tw.Flush()
		},
	}
	return cmd
}

func newHistoryPruneCommand() *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:     "prune",
		Short:   "Delete all but the newest runs",
		Example: `  bindforge history prune --keep 50`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if keep < 0 {
				return fmt.Errorf("--keep must not be negative")
			}

			store, err := openHistory(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.PruneRuns(ctx, keep)
			if err != nil {
				return err
			}
			log.Info().Int64("deleted", n).Int("kept", keep).Msg("Pruned history")
			fmt.Fprintf(stdout(cmd), "Deleted %d runs\n", n)
			return nil
		},
	}

	cmd.Flags().IntVar(&keep, "keep", 100, "number of runs to keep")

	return cmd
}

// runSummary is a run without its model, as printed by history list --json.
type runSummary struct {
	ID              string        `json:"id"`
	PlanName        string        `json:"plan_name,omitempty"`
	PlanPath        string        `json:"plan_path"`
	Status          string        `json:"status"`
	Fingerprint     string        `json:"fingerprint,omitempty"`
	ResourceCount   int           `json:"resource_count"`
	DiagnosticCount int           `json:"diagnostic_count"`
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration_ns"`
}

func summarize(r *stores.Run) runSummary {
	return runSummary{
		ID:              r.ID,
		PlanName:        r.PlanName,
		PlanPath:        r.PlanPath,
		Status:          string(r.Status),
		Fingerprint:     r.Fingerprint,
		ResourceCount:   r.ResourceCount,
		DiagnosticCount: r.DiagnosticCount,
		StartedAt:       r.StartedAt,
		Duration:        r.Duration(),
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func planLabel(r *stores.Run) string {
	if r.PlanName != "" {
		return r.PlanName
	}
	return r.PlanPath
}
