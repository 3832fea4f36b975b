package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/shinyyama/dispatch-backend/internal/config"
	"github.com/shinyyama/dispatch-backend/internal/db"
	"github.com/shinyyama/dispatch-backend/internal/server"
	"github.com/spf13/cobra"
)

var (
	dispatchConfig string
	svcs           *server.Services
	closeBackends  = func() {}
)

var rootCmd = &cobra.Command{
	Use:   "dispatchctl",
	Short: "Operational commands for the delivery dispatch engine",
	Long: `dispatchctl runs the reconciliation sweeps and administrative dispatch jobs
against the configured database. It is meant to be invoked from cron.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return openServices(cmd.Context())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeBackends()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dispatchConfig, "dispatch-config", "", "dispatch tuning file (defaults to $DISPATCH_CONFIG)")
	rootCmd.AddCommand(sweepCmd, assignCmd, bulkAssignCmd, cleanupTrackingCmd, recalcRatingsCmd)
}

func openServices(ctx context.Context) error {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	path := cfg.DispatchConfig
	if dispatchConfig != "" {
		path = dispatchConfig
	}
	dispatch, err := config.LoadDispatch(path)
	if err != nil {
		return err
	}
	gdb, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	deps, closer, err := server.OpenBackends(ctx, cfg, dispatch)
	if err != nil {
		return err
	}
	closeBackends = closer
	svcs = server.NewServices(gdb, deps)
	return nil
}

func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
