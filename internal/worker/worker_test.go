package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/domus-magna/chinaxiv-english-sub001/internal/artifacts"
	"github.com/domus-magna/chinaxiv-english-sub001/internal/papers"
	"github.com/domus-magna/chinaxiv-english-sub001/internal/qa"
	"github.com/domus-magna/chinaxiv-english-sub001/internal/queue"
	"github.com/domus-magna/chinaxiv-english-sub001/internal/translator"
)

const englishAbstract = "We study the coordination of large translation batches across independent " +
	"worker processes and show that optimistic commits over a single versioned document " +
	"are sufficient for exactly-once-in-practice processing."

func alwaysGood(ctx context.Context, p papers.Paper) (*translator.TranslatedPaper, error) {
	return &translator.TranslatedPaper{
		PaperID:  p.ID,
		Title:    "Translated: " + p.ID,
		Abstract: englishAbstract,
	}, nil
}

type fixture struct {
	store     *queue.FileStore
	artifacts *artifacts.Writer
	approved  string
	flagged   string
}

func newFixture(t *testing.T, n int) fixture {
	t.Helper()
	dir := t.TempDir()
	s := queue.NewFileStore(filepath.Join(dir, "queue.json"))

	jobs := make([]queue.Job, 0, n)
	now := time.Now()
	for i := 0; i < n; i++ {
		jobs = append(jobs, queue.NewJob(papers.Paper{
			ID:       fmt.Sprintf("chinaxiv-%03d", i+1),
			Title:    "标题",
			Abstract: "摘要",
		}, now))
	}
	added, err := s.Seed(context.Background(), jobs)
	require.NoError(t, err)
	require.Equal(t, n, added)

	approved := filepath.Join(dir, "approved")
	flagged := filepath.Join(dir, "flagged")
	return fixture{
		store:     s,
		artifacts: artifacts.NewWriter(approved, flagged),
		approved:  approved,
		flagged:   flagged,
	}
}

func TestWorker_SingleBatchClaimsInQueueOrder(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, 10)

	w := New(fx.store, translator.Func(alwaysGood), qa.DefaultThresholds(), fx.artifacts, Config{
		BatchSize:   4,
		Concurrency: 2,
		WorkerID:    "w1",
	})

	report, err := w.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Claimed)
	assert.Equal(t, 4, report.Completed)
	assert.Zero(t, report.Flagged)
	assert.Zero(t, report.Failed)
	assert.Zero(t, report.Lost)

	stats, err := fx.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, queue.Stats{Pending: 6, Completed: 4}, stats)

	// First four jobs in insertion order were the ones processed.
	doc, err := fx.store.Fetch(ctx)
	require.NoError(t, err)
	for i, j := range doc.Jobs {
		if i < 4 {
			assert.Equal(t, queue.StatusCompleted, j.Status, "job %d", i)
			assert.NotEmpty(t, j.ResultRef)
			_, err := os.Stat(j.ResultRef)
			assert.NoError(t, err)
		} else {
			assert.Equal(t, queue.StatusPending, j.Status, "job %d", i)
		}
	}
}

func TestWorker_TranslatorFailureDoesNotAbortBatch(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, 3)

	failing := translator.Func(func(ctx context.Context, p papers.Paper) (*translator.TranslatedPaper, error) {
		if p.ID == "chinaxiv-002" {
			return nil, fmt.Errorf("upstream timed out")
		}
		return alwaysGood(ctx, p)
	})

	w := New(fx.store, failing, qa.DefaultThresholds(), fx.artifacts, Config{
		BatchSize: 3, Concurrency: 2, WorkerID: "w1",
	})
	report, err := w.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Completed)
	assert.Equal(t, 1, report.Failed)

	doc, err := fx.store.Fetch(ctx)
	require.NoError(t, err)
	failed := doc.Find(papers.JobID("chinaxiv-002"))
	require.NotNil(t, failed)
	assert.Equal(t, queue.StatusFailed, failed.Status)
	assert.Equal(t, 1, failed.Attempts)
	assert.Contains(t, failed.LastError, "upstream timed out")

	// Operator retry returns it to the pool with the attempt count intact.
	n, err := queue.RetryFailed(ctx, fx.store, queue.DefaultCommitPolicy())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	doc, err = fx.store.Fetch(ctx)
	require.NoError(t, err)
	requeued := doc.Find(papers.JobID("chinaxiv-002"))
	assert.Equal(t, queue.StatusPending, requeued.Status)
	assert.Equal(t, 1, requeued.Attempts)
}

func TestWorker_FlaggedTranslationIsTerminalButReviewable(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, 1)

	leaky := translator.Func(func(ctx context.Context, p papers.Paper) (*translator.TranslatedPaper, error) {
		return &translator.TranslatedPaper{
			PaperID:  p.ID,
			Title:    "Translated title",
			Abstract: englishAbstract + " 其余部分尚未翻译，保留了原始的中文摘要内容以及标点符号。",
		}, nil
	})

	w := New(fx.store, leaky, qa.DefaultThresholds(), fx.artifacts, Config{
		BatchSize: 1, Concurrency: 1, WorkerID: "w1",
	})
	report, err := w.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Flagged)

	doc, err := fx.store.Fetch(ctx)
	require.NoError(t, err)
	job := doc.Jobs[0]
	assert.Equal(t, queue.StatusQAFlagged, job.Status)
	assert.Contains(t, job.LastError, "han character ratio")
	assert.Contains(t, job.ResultRef, fx.flagged)
}

func TestWorker_ReclaimedJobResultIsDiscarded(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, 1)

	// The reclaimer fires while the job is mid-translation; the worker's
	// terminal commit must drop the result instead of overwriting the job.
	stealing := translator.Func(func(tctx context.Context, p papers.Paper) (*translator.TranslatedPaper, error) {
		n, err := queue.Reclaim(ctx, fx.store, 0, time.Now().Add(time.Minute), queue.DefaultCommitPolicy())
		if err != nil {
			return nil, err
		}
		if n != 1 {
			return nil, fmt.Errorf("expected to reclaim 1 job, got %d", n)
		}
		return alwaysGood(tctx, p)
	})

	w := New(fx.store, stealing, qa.DefaultThresholds(), fx.artifacts, Config{
		BatchSize: 1, Concurrency: 1, WorkerID: "w1",
	})
	report, err := w.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Claimed)
	assert.Equal(t, 1, report.Lost)
	assert.Zero(t, report.Completed)

	doc, err := fx.store.Fetch(ctx)
	require.NoError(t, err)
	job := doc.Jobs[0]
	assert.Equal(t, queue.StatusPending, job.Status)
	assert.Empty(t, job.ClaimedBy)
	assert.Equal(t, 1, job.Attempts)
}

func TestWorker_EmptyQueueIsANoOp(t *testing.T) {
	fx := newFixture(t, 0)
	w := New(fx.store, translator.Func(alwaysGood), qa.DefaultThresholds(), fx.artifacts, Config{
		BatchSize: 4, Concurrency: 2, WorkerID: "w1",
	})
	report, err := w.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Claimed)
}

func TestWorker_RunToCompletionAccountsForEveryJob(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, 10)

	// Some papers come back with untranslated leakage.
	mixed := translator.Func(func(tctx context.Context, p papers.Paper) (*translator.TranslatedPaper, error) {
		doc, _ := alwaysGood(tctx, p)
		if p.ID == "chinaxiv-003" || p.ID == "chinaxiv-007" {
			doc.Abstract += " 其余部分尚未翻译，保留了原始的中文摘要内容。"
		}
		return doc, nil
	})

	w := New(fx.store, mixed, qa.DefaultThresholds(), fx.artifacts, Config{
		BatchSize: 4, Concurrency: 2, WorkerID: "w1",
	})

	for {
		report, err := w.Run(ctx)
		require.NoError(t, err)
		if report.Claimed == 0 {
			break
		}
	}

	stats, err := fx.store.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Pending)
	assert.Zero(t, stats.InProgress)
	assert.Equal(t, 10, stats.Completed+stats.QAFlagged)
	assert.Equal(t, 2, stats.QAFlagged)
}
