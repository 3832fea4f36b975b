package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shinyyama/dispatch-backend/internal/model"
	"github.com/shinyyama/dispatch-backend/internal/service"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:       "sweep [reminders|expiry|eta|availability|metrics|all]",
	Short:     "Run one reconciliation sweep, or all of them",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: append(append([]string{}, service.Sweeps...), "all"),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := "all"
		if len(args) == 1 {
			name = args[0]
		}
		ctx := cmd.Context()
		if name == "all" {
			reports, err := svcs.Reconciliation.RunAll(ctx)
			for i := range reports {
				printReport(cmd.OutOrStdout(), &reports[i])
			}
			return err
		}
		rep, err := svcs.Reconciliation.Run(ctx, name)
		if rep != nil {
			printReport(cmd.OutOrStdout(), rep)
		}
		return err
	},
}

var assignCmd = &cobra.Command{
	Use:   "assign <deliveryID>",
	Short: "Assign one delivery, automatically or to --transporter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid delivery id %q", args[0])
		}
		var transporterID *uint64
		if v, _ := cmd.Flags().GetUint64("transporter"); v != 0 {
			transporterID = &v
		}
		res, err := svcs.Assignment.AssignDelivery(cmd.Context(), id, transporterID, "dispatchctl")
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "delivery %d -> transporter %d (%s)\n", res.Delivery.ID, res.Transporter.ID, res.Type)
		if res.Score != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "score %.2f %s\n", res.Score.Total, formatBreakdown(res.Score.Breakdown))
		}
		return nil
	},
}

var bulkAssignCmd = &cobra.Command{
	Use:   "bulk-assign",
	Short: "Assign available deliveries in priority order",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("max")
		priority, _ := cmd.Flags().GetString("priority")
		f := service.BulkFilter{Priority: model.Priority(priority), MaxAssignments: limit}
		if cmd.Flags().Changed("hours") {
			h, _ := cmd.Flags().GetInt("hours")
			f.TimeRangeHours = &h
		}
		res, err := svcs.Assignment.BulkAssign(cmd.Context(), f, "dispatchctl")
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

var cleanupTrackingCmd = &cobra.Command{
	Use:   "cleanup-tracking",
	Short: "Delete tracking entries older than --days",
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")
		if days <= 0 {
			return fmt.Errorf("--days must be positive")
		}
		n, err := svcs.Reconciliation.CleanupTracking(cmd.Context(), time.Duration(days)*24*time.Hour)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d tracking entries older than %d days\n", n, days)
		return nil
	},
}

var recalcRatingsCmd = &cobra.Command{
	Use:   "recalc-ratings",
	Short: "Recompute every transporter rating from stored ratings",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := svcs.Ratings.RecalculateAll(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "recalculated %d transporters\n", n)
		return nil
	},
}

func init() {
	assignCmd.Flags().Uint64("transporter", 0, "assign to this transporter instead of the best candidate")
	bulkAssignCmd.Flags().Int("max", 50, "maximum deliveries to assign")
	bulkAssignCmd.Flags().String("priority", "", "only this priority")
	bulkAssignCmd.Flags().Int("hours", 0, "only deliveries with pickup within this many hours")
	cleanupTrackingCmd.Flags().Int("days", 90, "retention in days")
}

func printReport(w io.Writer, rep *service.SweepReport) {
	fmt.Fprintf(w, "%-12s examined=%d %s duration=%dms\n", rep.Sweep, rep.Examined, formatCounters(rep.Counters), rep.DurationMs)
	for _, e := range rep.Errors {
		fmt.Fprintf(w, "  error: %s\n", e)
	}
	if rep.Error != "" {
		fmt.Fprintf(w, "  aborted: %s\n", rep.Error)
	}
}

func formatCounters(c map[string]int) string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, c[k]))
	}
	return strings.Join(parts, " ")
}

func formatBreakdown(b map[string]float64) string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%.2f", k, b[k]))
	}
	return strings.Join(parts, " ")
}
