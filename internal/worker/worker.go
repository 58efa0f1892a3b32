package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/domus-magna/chinaxiv-english-sub001/internal/artifacts"
	"github.com/domus-magna/chinaxiv-english-sub001/internal/qa"
	"github.com/domus-magna/chinaxiv-english-sub001/internal/queue"
	"github.com/domus-magna/chinaxiv-english-sub001/internal/translator"
	"github.com/domus-magna/chinaxiv-english-sub001/pkg/log"
)

type Config struct {
	BatchSize   int
	Concurrency int
	WorkerID    string
	JobTimeout  time.Duration
	Policy      queue.CommitPolicy
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 20
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.Concurrency > c.BatchSize {
		c.Concurrency = c.BatchSize
	}
	if c.WorkerID == "" {
		c.WorkerID = "worker-" + uuid.NewString()[:8]
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 5 * time.Minute
	}
	if c.Policy.MaxAttempts == 0 {
		c.Policy = queue.DefaultCommitPolicy()
	}
	return c
}

// BatchReport summarizes one batch run. Lost counts jobs whose locally
// computed result was discarded because a reclaimer took the claim away
// before the terminal commit landed.
type BatchReport struct {
	WorkerID  string
	Claimed   int
	Completed int
	Flagged   int
	Failed    int
	Lost      int
}

// Worker claims a bounded slice of pending jobs, translates them through a
// bounded goroutine pool, routes every result through the QA gate, and
// commits the terminal transitions back. It holds no authoritative state:
// between fetch and commit everything it knows may already be stale, and the
// commit protocol is what keeps that safe.
type Worker struct {
	store      queue.Store
	translator translator.Translator
	thresholds qa.Thresholds
	artifacts  *artifacts.Writer
	cfg        Config
}

func New(store queue.Store, trans translator.Translator, thresholds qa.Thresholds, w *artifacts.Writer, cfg Config) *Worker {
	return &Worker{
		store:      store,
		translator: trans,
		thresholds: thresholds,
		artifacts:  w,
		cfg:        cfg.withDefaults(),
	}
}

type outcome struct {
	jobID     string
	op        queue.Op
	resultRef string
	reason    string
}

// Run executes one batch. An empty report with a nil error means the queue
// had no pending jobs. Per-job translator failures are recorded on the job,
// never returned as errors; a non-nil error means the run itself could not
// claim or commit, leaving any claimed jobs in_progress for the reclaimer.
func (w *Worker) Run(ctx context.Context) (BatchReport, error) {
	report := BatchReport{WorkerID: w.cfg.WorkerID}

	claimed, err := w.claimBatch(ctx)
	if err != nil {
		return report, fmt.Errorf("claim batch: %w", err)
	}
	if len(claimed) == 0 {
		return report, nil
	}
	report.Claimed = len(claimed)
	log.Info("Worker %s claimed %d jobs", w.cfg.WorkerID, len(claimed))

	outcomes := make([]outcome, len(claimed))
	g := new(errgroup.Group)
	g.SetLimit(w.cfg.Concurrency)
	for i, job := range claimed {
		i, job := i, job
		g.Go(func() error {
			outcomes[i] = w.process(ctx, job)
			return nil
		})
	}
	_ = g.Wait()

	committed, err := w.commitOutcomes(ctx, outcomes)
	if err != nil {
		return report, fmt.Errorf("commit batch results: %w", err)
	}

	for _, m := range committed {
		switch m.Op {
		case queue.OpComplete:
			report.Completed++
		case queue.OpFlag:
			report.Flagged++
		case queue.OpFail:
			report.Failed++
		}
	}
	report.Lost = report.Claimed - len(committed)
	if report.Lost > 0 {
		log.Warn("Worker %s lost %d claims to the reclaimer; their results were discarded", w.cfg.WorkerID, report.Lost)
	}
	return report, nil
}

// claimBatch selects pending jobs in queue order and commits them to
// in_progress. A conflict means another worker claimed first; the retry
// re-selects against the fresh snapshot, so overlapping claims cannot both
// land.
func (w *Worker) claimBatch(ctx context.Context) ([]queue.Job, error) {
	var claimed []queue.Job
	_, _, err := queue.CommitWithRetry(ctx, w.store, w.cfg.Policy, func(doc *queue.Document) ([]queue.Mutation, error) {
		pending := doc.Pending(w.cfg.BatchSize)
		claimed = pending
		now := time.Now()
		muts := make([]queue.Mutation, 0, len(pending))
		for _, j := range pending {
			muts = append(muts, queue.Mutation{
				JobID:    j.ID,
				Op:       queue.OpClaim,
				WorkerID: w.cfg.WorkerID,
				At:       now,
			})
		}
		return muts, nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (w *Worker) process(ctx context.Context, job queue.Job) (o outcome) {
	o = outcome{jobID: job.ID, op: queue.OpFail}
	defer func() {
		if r := recover(); r != nil {
			o = outcome{jobID: job.ID, op: queue.OpFail, reason: fmt.Sprintf("panic: %v", r)}
			log.Error("Job %s panicked: %v", job.ID, r)
		}
	}()

	jctx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	defer cancel()

	doc, err := w.translator.Translate(jctx, job.Paper)
	if err != nil {
		o.reason = fmt.Sprintf("translator: %v", err)
		log.Warn("Job %s (%s) failed: %v", job.ID, job.Paper.ID, err)
		return o
	}

	verdict := qa.Evaluate(doc, w.thresholds)
	if verdict.Pass {
		ref, err := w.artifacts.WriteApproved(job.ID, doc)
		if err != nil {
			o.reason = fmt.Sprintf("write artifact: %v", err)
			return o
		}
		return outcome{jobID: job.ID, op: queue.OpComplete, resultRef: ref}
	}

	ref, err := w.artifacts.WriteFlagged(job.ID, doc, verdict.Reasons)
	if err != nil {
		o.reason = fmt.Sprintf("write artifact: %v", err)
		return o
	}
	log.Info("Job %s flagged: %s", job.ID, verdict.Summary())
	return outcome{jobID: job.ID, op: queue.OpFlag, resultRef: ref, reason: verdict.Summary()}
}

// commitOutcomes applies the terminal transitions. After every conflict the
// ownership of each job is re-checked against the fresh snapshot: a job the
// reclaimer took back (or another worker has since re-claimed) is dropped
// rather than overwritten.
func (w *Worker) commitOutcomes(ctx context.Context, outcomes []outcome) ([]queue.Mutation, error) {
	_, committed, err := queue.CommitWithRetry(ctx, w.store, w.cfg.Policy, func(doc *queue.Document) ([]queue.Mutation, error) {
		now := time.Now()
		muts := make([]queue.Mutation, 0, len(outcomes))
		for _, o := range outcomes {
			job := doc.Find(o.jobID)
			if job == nil || job.Status != queue.StatusInProgress || job.ClaimedBy != w.cfg.WorkerID {
				continue
			}
			muts = append(muts, queue.Mutation{
				JobID:     o.jobID,
				Op:        o.op,
				WorkerID:  w.cfg.WorkerID,
				At:        now,
				ResultRef: o.resultRef,
				Reason:    o.reason,
			})
		}
		return muts, nil
	})
	return committed, err
}
