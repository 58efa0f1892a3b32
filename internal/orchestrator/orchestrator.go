package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/domus-magna/chinaxiv-english-sub001/internal/queue"
	"github.com/domus-magna/chinaxiv-english-sub001/internal/worker"
	"github.com/domus-magna/chinaxiv-english-sub001/pkg/log"
)

// RunBatch executes one batch worker run. The orchestrator treats it as a
// black box so tests and the CLI can supply their own construction (a fresh
// worker id per run, fakes, and so on).
type RunBatch func(ctx context.Context) (worker.BatchReport, error)

type Config struct {
	// TotalBatches bounds the number of runs; 0 means run until the queue has
	// no pending jobs left.
	TotalBatches int
	// Delay paces restarts between runs.
	Delay time.Duration
	// MaxConsecutiveFailures stops the orchestrator fatally once that many
	// runs in a row have failed.
	MaxConsecutiveFailures int
	// ReclaimCron optionally schedules stuck-job sweeps while the
	// orchestrator runs (e.g. "*/5 * * * *").
	ReclaimCron string
	// ReclaimTimeout is the claim age after which a sweep takes a job back.
	ReclaimTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConsecutiveFailures <= 0 {
		c.MaxConsecutiveFailures = 3
	}
	if c.ReclaimTimeout <= 0 {
		c.ReclaimTimeout = 30 * time.Minute
	}
	return c
}

// Orchestrator sequences batch worker runs until the queue drains or a
// budget is exhausted. Repeated failure is surfaced, never silently retried
// forever.
type Orchestrator struct {
	store    queue.Store
	runBatch RunBatch
	cfg      Config
	policy   queue.CommitPolicy

	sweeps singleflight.Group
}

func New(store queue.Store, runBatch RunBatch, cfg Config, policy queue.CommitPolicy) *Orchestrator {
	return &Orchestrator{
		store:    store,
		runBatch: runBatch,
		cfg:      cfg.withDefaults(),
		policy:   policy,
	}
}

func (o *Orchestrator) Run(ctx context.Context) error {
	if o.cfg.ReclaimCron != "" {
		c := cron.New()
		if _, err := c.AddFunc(o.cfg.ReclaimCron, func() { o.sweep(ctx) }); err != nil {
			return fmt.Errorf("invalid reclaim cron expression: %w", err)
		}
		c.Start()
		defer c.Stop()
	}

	consecutiveFailures := 0
	for run := 0; ; run++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if o.cfg.TotalBatches > 0 && run >= o.cfg.TotalBatches {
			log.Info("Run budget of %d batches reached", o.cfg.TotalBatches)
			return nil
		}

		stats, err := o.store.Stats(ctx)
		if err != nil {
			return fmt.Errorf("read queue stats: %w", err)
		}
		if stats.Pending == 0 {
			log.Info("Queue drained: %d completed, %d flagged, %d failed, %d in progress",
				stats.Completed, stats.QAFlagged, stats.Failed, stats.InProgress)
			return nil
		}

		report, err := o.runBatch(ctx)
		if err != nil {
			consecutiveFailures++
			log.Error("Batch run %d failed (%d consecutive): %v", run+1, consecutiveFailures, err)
			if consecutiveFailures >= o.cfg.MaxConsecutiveFailures {
				return fmt.Errorf("%d consecutive batch failures, last: %w", consecutiveFailures, err)
			}
		} else {
			consecutiveFailures = 0
			log.Info("Batch run %d (%s): claimed=%d completed=%d flagged=%d failed=%d lost=%d",
				run+1, report.WorkerID, report.Claimed, report.Completed, report.Flagged, report.Failed, report.Lost)
		}

		if o.cfg.Delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(o.cfg.Delay):
			}
		}
	}
}

// sweep runs one reclaim pass. Overlapping scheduled sweeps collapse into a
// single execution.
func (o *Orchestrator) sweep(ctx context.Context) {
	_, _, _ = o.sweeps.Do("reclaim", func() (any, error) {
		n, err := queue.Reclaim(ctx, o.store, o.cfg.ReclaimTimeout, time.Now(), o.policy)
		if err != nil {
			log.Error("Reclaim sweep failed: %v", err)
			return nil, nil
		}
		if n > 0 {
			log.Info("Reclaimed %d stuck jobs", n)
		}
		return nil, nil
	})
}
