package main

import (
	"errors"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/dqbridge/dq-connector/pkg/jobs"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		filter jobs.RunListFilter
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded sync runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.history()
			if err != nil {
				return err
			}
			if store == nil {
				return errors.New("run history is disabled (DQ_HISTORY_ENABLED=false)")
			}
			runs, err := store.List(filter, limit)
			if err != nil {
				return err
			}
			if runs == nil {
				runs = []jobs.SyncRun{}
			}

			w := cmd.OutOrStdout()
			if a.output != "table" {
				return printStructured(w, a.output, runs)
			}
			rows := make([][]string, 0, len(runs))
			for _, r := range runs {
				rows = append(rows, []string{
					r.ID, r.Kind, r.Target, string(r.State),
					r.StartedAt.UTC().Format(time.RFC3339),
					strconv.Itoa(r.Total), strconv.Itoa(r.Succeeded), strconv.Itoa(r.Failed),
					strconv.Itoa(r.Skipped), truncate(r.LastError, 60),
				})
			}
			printTable(w, []string{"id", "kind", "target", "state", "started", "total", "succeeded", "failed", "skipped", "last error"}, rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&filter.Kind, "kind", "", "Only runs of this kind (rules, profiles)")
	cmd.Flags().StringVar(&filter.Target, "target", "", "Only runs against this target (collibra, data3sixty)")
	cmd.Flags().StringVar(&filter.State, "state", "", "Only runs in this state (running, succeeded, partial, failed)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list")
	return cmd
}
