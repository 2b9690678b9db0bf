package cmd

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

func newWatchCmd(opts *globalOptions) *cobra.Command {
	var (
		schedule string
		now      bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the Notion sync on a schedule",
		Long: `Runs the full sync on a cron schedule until interrupted.

A run that is still going when the next one is due is skipped, so runs never
overlap. The schedule accepts standard five-field cron expressions and
descriptors such as "@hourly" or "@every 6h".`,
		Example: `  # Every six hours, starting now
  bookenrich watch --now

  # Nightly at 03:00
  bookenrich watch --schedule "0 3 * * *"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if err := cfg.Validate(); err != nil {
				return err
			}
			if schedule == "" {
				schedule = cfg.Schedule
			}

			ctx := cmd.Context()
			client := newHTTPClient(cfg)
			engine, err := newEngine(ctx, cfg, client, newStore(cfg, client))
			if err != nil {
				return err
			}

			sched, err := parseSchedule(schedule)
			if err != nil {
				return err
			}

			job := cron.FuncJob(func() {
				sum, err := engine.Run(ctx)
				if err != nil {
					slog.Error("Scheduled sync failed", "err", err)
					return
				}
				slog.Info("Scheduled sync complete", "updated", sum.Updated, "skipped", sum.Skipped, "errored", sum.Errored)
			})

			c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
			id := c.Schedule(sched, job)
			run := c.Entry(id).WrappedJob
			c.Start()
			slog.Info("Sync scheduler started", "schedule", schedule, "next_run", sched.Next(time.Now()))

			// The immediate run goes through the same chain so a scheduled
			// tick cannot overlap it; Stop does not know about it.
			var wg sync.WaitGroup
			if now {
				wg.Add(1)
				go func() {
					defer wg.Done()
					run.Run()
				}()
			}

			<-ctx.Done()
			slog.Info("Stopping scheduler...")
			// Wait for a running sync to notice the cancelled context
			<-c.Stop().Done()
			wg.Wait()
			slog.Info("Scheduler stopped")
			return nil
		},
	}

	cmd.Flags().StringVarP(&schedule, "schedule", "s", "", "Cron schedule (default from SYNC_SCHEDULE, \"@every 6h\")")
	cmd.Flags().BoolVar(&now, "now", false, "Also run once immediately")

	return cmd
}

// parseSchedule accepts five-field cron expressions and descriptors.
func parseSchedule(spec string) (cron.Schedule, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron schedule '%s': %w", spec, err)
	}
	return sched, nil
}
