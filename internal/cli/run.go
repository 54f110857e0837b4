package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/webriots/ioq"
	"github.com/webriots/ioq/internal/observability"
	"github.com/webriots/ioq/internal/report"
	"github.com/webriots/ioq/internal/sim"
	"github.com/webriots/ioq/internal/statsrv"
)

func newRunCmd() *cobra.Command {
	var (
		format    string
		output    string
		statsAddr string
		workers   int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured workload and print a report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("format") {
				cfg.Report.Format = format
			}
			if cmd.Flags().Changed("output") {
				cfg.Report.Output = output
			}
			if cmd.Flags().Changed("stats-addr") {
				cfg.Stats.Listen = statsAddr
			}
			if cmd.Flags().Changed("workers") {
				cfg.Scheduler.Workers = workers
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			log, err := observability.SetupLogger(cfg.Log)
			if err != nil {
				return fmt.Errorf("setup logger: %w", err)
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var opts []sim.Option
			if cfg.Stats.Listen != "" {
				srvCtx, srvCancel := context.WithCancel(ctx)
				defer srvCancel()
				opts = append(opts, sim.WithObserver(func(s *ioq.Scheduler) {
					srv := statsrv.New(s, log)
					go func() {
						if err := srv.ListenAndServe(srvCtx, cfg.Stats.Listen); err != nil {
							log.Error("stats server", zap.Error(err))
						}
					}()
				}))
			}

			res, runErr := sim.Run(ctx, cfg, log, opts...)
			if res == nil {
				return runErr
			}
			if err := report.WriteFile(cfg.Report.Output, cfg.Report.Format, res); err != nil {
				return errors.Join(runErr, fmt.Errorf("write report: %w", err))
			}
			return runErr
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Report format (text, json, yaml, msgpack)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Report file (default stdout)")
	cmd.Flags().StringVar(&statsAddr, "stats-addr", "", "Serve live stats on this address, e.g. :8080")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Worker count override")
	return cmd
}
