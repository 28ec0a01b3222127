package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/txn2/factcheck-bot/pkg/audit"
	auditpg "github.com/txn2/factcheck-bot/pkg/audit/postgres"
	"github.com/txn2/factcheck-bot/pkg/platform"
)

func newAuditCmd(a *app) *cobra.Command {
	var since time.Duration

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Summarize the webhook event trail stored in PostgreSQL",
	}
	cmd.PersistentFlags().DurationVar(&since, "since", 24*time.Hour, "how far back to look")

	window := func() (*time.Time, *time.Time) {
		end := time.Now()
		start := end.Add(-since)
		return &start, &end
	}

	overview := &cobra.Command{
		Use:   "overview",
		Short: "Print event totals, success rate and unique users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withAuditStore(func(s *auditpg.Store) error {
				start, end := window()
				o, err := s.Overview(cmd.Context(), start, end)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), o)
			})
		},
	}

	var groupBy string
	var limit int
	breakdown := &cobra.Command{
		Use:   "breakdown",
		Short: "Group events by event_type, result or user_id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dim := audit.BreakdownDimension(groupBy)
			if !audit.ValidBreakdownDimensions[dim] {
				return fmt.Errorf("invalid --by %q: use event_type, result or user_id", groupBy)
			}
			return a.withAuditStore(func(s *auditpg.Store) error {
				start, end := window()
				entries, err := s.Breakdown(cmd.Context(), audit.BreakdownFilter{
					GroupBy: dim, Limit: limit, StartTime: start, EndTime: end,
				})
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), entries)
			})
		},
	}
	breakdown.Flags().StringVar(&groupBy, "by", string(audit.BreakdownByEventType), "group-by dimension")
	breakdown.Flags().IntVar(&limit, "limit", 10, "maximum rows")

	var resolution string
	timeseries := &cobra.Command{
		Use:   "timeseries",
		Short: "Bucket events by minute, hour or day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res := audit.Resolution(resolution)
			if !audit.ValidResolutions[res] {
				return fmt.Errorf("invalid --resolution %q: use minute, hour or day", resolution)
			}
			return a.withAuditStore(func(s *auditpg.Store) error {
				start, end := window()
				buckets, err := s.Timeseries(cmd.Context(), audit.TimeseriesFilter{
					Resolution: res, StartTime: start, EndTime: end,
				})
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), buckets)
			})
		},
	}
	timeseries.Flags().StringVar(&resolution, "resolution", string(audit.ResolutionHour), "bucket size")

	cmd.AddCommand(overview, breakdown, timeseries)
	return cmd
}

func (a *app) withAuditStore(fn func(*auditpg.Store) error) error {
	return a.withDB(func(cfg *platform.Config, db *sql.DB) error {
		store := auditpg.New(db, auditpg.Config{RetentionDays: cfg.Audit.RetentionDays})
		defer func() { _ = store.Close() }()
		return fn(store)
	})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
