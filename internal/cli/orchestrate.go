package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/domus-magna/chinaxiv-english-sub001/internal/orchestrator"
	"github.com/domus-magna/chinaxiv-english-sub001/internal/worker"
)

var (
	flagTotalBatches int
	flagBatchDelay   time.Duration
)

var orchestrateCmd = &cobra.Command{
	Use:   "orchestrate",
	Short: "Run batches until the queue drains or the budget is spent",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateLLM(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		totalBatches := cfg.Orchestrator.TotalBatches
		if cmd.Flags().Changed("batches") {
			totalBatches = flagTotalBatches
		}
		delay := cfg.Orchestrator.BatchDelay
		if cmd.Flags().Changed("delay") {
			delay = flagBatchDelay
		}

		// Each run gets a fresh worker identity so claims from different runs
		// stay distinguishable in the queue document.
		runBatch := func(ctx context.Context) (worker.BatchReport, error) {
			w, err := buildWorker("")
			if err != nil {
				return worker.BatchReport{}, err
			}
			return w.Run(ctx)
		}

		o := orchestrator.New(st, runBatch, orchestrator.Config{
			TotalBatches:           totalBatches,
			Delay:                  delay,
			MaxConsecutiveFailures: cfg.Orchestrator.MaxConsecutiveFailures,
			ReclaimCron:            cfg.Orchestrator.ReclaimCron,
			ReclaimTimeout:         cfg.Orchestrator.ReclaimTimeout,
		}, cfg.Queue.Policy())
		return o.Run(ctx)
	},
}

func init() {
	orchestrateCmd.Flags().IntVar(&flagTotalBatches, "batches", 0, "Run budget, 0 = until empty (overrides TOTAL_BATCHES)")
	orchestrateCmd.Flags().DurationVar(&flagBatchDelay, "delay", 0, "Pause between runs (overrides BATCH_DELAY)")
	rootCmd.AddCommand(orchestrateCmd)
}
