package queue

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/domus-magna/chinaxiv-english-sub001/internal/papers"
)

func seedFileStore(t *testing.T, n int) *FileStore {
	t.Helper()
	s := NewFileStore(filepath.Join(t.TempDir(), "queue.json"))
	jobs := make([]Job, 0, n)
	now := time.Now()
	for i := 0; i < n; i++ {
		jobs = append(jobs, NewJob(papers.Paper{
			ID:       fmt.Sprintf("chinaxiv-%03d", i+1),
			Title:    "标题",
			Abstract: "摘要",
		}, now))
	}
	added, err := s.Seed(context.Background(), jobs)
	require.NoError(t, err)
	require.Equal(t, n, added)
	return s
}

func TestFileStore_FetchBeforeInit(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "queue.json"))
	_, err := s.Fetch(context.Background())
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestFileStore_SeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := seedFileStore(t, 5)

	again := []Job{NewJob(papers.Paper{ID: "chinaxiv-001"}, time.Now())}
	added, err := s.Seed(ctx, again)
	require.NoError(t, err)
	assert.Zero(t, added)

	doc, err := s.Fetch(ctx)
	require.NoError(t, err)
	assert.Len(t, doc.Jobs, 5)
}

func TestFileStore_CommitRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	s := seedFileStore(t, 2)

	doc, err := s.Fetch(ctx)
	require.NoError(t, err)

	_, err = s.Commit(ctx, []Mutation{
		{JobID: doc.Jobs[0].ID, Op: OpClaim, WorkerID: "w1", At: time.Now()},
	}, doc.Version)
	require.NoError(t, err)

	// Second writer still holds the old snapshot.
	_, err = s.Commit(ctx, []Mutation{
		{JobID: doc.Jobs[1].ID, Op: OpClaim, WorkerID: "w2", At: time.Now()},
	}, doc.Version)
	require.ErrorIs(t, err, ErrConflict)
}

func TestFileStore_CommitIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := seedFileStore(t, 2)

	doc, err := s.Fetch(ctx)
	require.NoError(t, err)

	// Second mutation is invalid (complete without a claim); nothing from the
	// batch may land.
	_, err = s.Commit(ctx, []Mutation{
		{JobID: doc.Jobs[0].ID, Op: OpClaim, WorkerID: "w1", At: time.Now()},
		{JobID: doc.Jobs[1].ID, Op: OpComplete, WorkerID: "w1", At: time.Now()},
	}, doc.Version)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrConflict)

	fresh, err := s.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, doc.Version, fresh.Version)
	assert.Equal(t, StatusPending, fresh.Jobs[0].Status)
}

func TestFileStore_OverlappingClaims(t *testing.T) {
	ctx := context.Background()
	s := seedFileStore(t, 6)

	// Both workers fetch the same snapshot and pick overlapping jobs.
	snapA, err := s.Fetch(ctx)
	require.NoError(t, err)
	snapB := snapA.Clone()

	claim := func(doc *Document, worker string, n int) []Mutation {
		muts := make([]Mutation, 0, n)
		for _, j := range doc.Pending(n) {
			muts = append(muts, Mutation{JobID: j.ID, Op: OpClaim, WorkerID: worker, At: time.Now()})
		}
		return muts
	}

	vA, err := s.Commit(ctx, claim(snapA, "worker-a", 4), snapA.Version)
	require.NoError(t, err)

	_, err = s.Commit(ctx, claim(snapB, "worker-b", 4), snapB.Version)
	require.ErrorIs(t, err, ErrConflict)

	// B re-fetches; its fresh selection excludes the jobs A already holds.
	fresh, err := s.Fetch(ctx)
	require.NoError(t, err)
	require.Equal(t, vA, fresh.Version)
	retry := claim(fresh, "worker-b", 4)
	require.Len(t, retry, 2)
	_, err = s.Commit(ctx, retry, fresh.Version)
	require.NoError(t, err)

	final, err := s.Fetch(ctx)
	require.NoError(t, err)
	byWorker := map[string]int{}
	for _, j := range final.Jobs {
		require.Equal(t, StatusInProgress, j.Status)
		byWorker[j.ClaimedBy]++
	}
	assert.Equal(t, 4, byWorker["worker-a"])
	assert.Equal(t, 2, byWorker["worker-b"])
}

func TestReclaim_MovesStuckJobsBack(t *testing.T) {
	ctx := context.Background()
	s := seedFileStore(t, 3)
	policy := DefaultCommitPolicy()

	doc, err := s.Fetch(ctx)
	require.NoError(t, err)
	old := time.Now().Add(-time.Hour)
	_, err = s.Commit(ctx, []Mutation{
		{JobID: doc.Jobs[0].ID, Op: OpClaim, WorkerID: "dead-worker", At: old},
		{JobID: doc.Jobs[1].ID, Op: OpClaim, WorkerID: "live-worker", At: time.Now()},
	}, doc.Version)
	require.NoError(t, err)

	n, err := Reclaim(ctx, s, 30*time.Minute, time.Now(), policy)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	fresh, err := s.Fetch(ctx)
	require.NoError(t, err)
	reclaimed := fresh.Find(doc.Jobs[0].ID)
	require.NotNil(t, reclaimed)
	assert.Equal(t, StatusPending, reclaimed.Status)
	assert.Empty(t, reclaimed.ClaimedBy)
	assert.Equal(t, 1, reclaimed.Attempts)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Pending: 2, InProgress: 1}, stats)

	// Idempotent: nothing new to reclaim.
	n, err = Reclaim(ctx, s, 30*time.Minute, time.Now(), policy)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRetryFailed_PreservesAttempts(t *testing.T) {
	ctx := context.Background()
	s := seedFileStore(t, 2)
	policy := DefaultCommitPolicy()

	doc, err := s.Fetch(ctx)
	require.NoError(t, err)
	id := doc.Jobs[0].ID
	_, err = s.Commit(ctx, []Mutation{{JobID: id, Op: OpClaim, WorkerID: "w1", At: time.Now()}}, doc.Version)
	require.NoError(t, err)
	doc, err = s.Fetch(ctx)
	require.NoError(t, err)
	_, err = s.Commit(ctx, []Mutation{{JobID: id, Op: OpFail, WorkerID: "w1", At: time.Now(), Reason: "translator: timeout"}}, doc.Version)
	require.NoError(t, err)

	n, err := RetryFailed(ctx, s, policy)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	fresh, err := s.Fetch(ctx)
	require.NoError(t, err)
	job := fresh.Find(id)
	require.NotNil(t, job)
	assert.Equal(t, StatusPending, job.Status)
	assert.Equal(t, 1, job.Attempts)
	assert.Empty(t, job.LastError)
}

func TestCommitWithRetry_RetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	s := seedFileStore(t, 2)
	policy := CommitPolicy{MaxAttempts: 3, Backoff: time.Millisecond}

	conflicted := 0
	_, muts, err := CommitWithRetry(ctx, s, policy, func(doc *Document) ([]Mutation, error) {
		// Sneak a competing commit in after the first fetch so the first
		// attempt lands on a stale version.
		if conflicted == 0 {
			conflicted++
			other := doc.Clone()
			_, err := s.Commit(ctx, []Mutation{
				{JobID: other.Jobs[0].ID, Op: OpClaim, WorkerID: "other", At: time.Now()},
			}, other.Version)
			require.NoError(t, err)
		}
		pending := doc.Pending(1)
		if len(pending) == 0 {
			return nil, nil
		}
		return []Mutation{{JobID: pending[0].ID, Op: OpClaim, WorkerID: "mine", At: time.Now()}}, nil
	})
	require.NoError(t, err)
	require.Len(t, muts, 1)

	fresh, err := s.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "other", fresh.Jobs[0].ClaimedBy)
	assert.Equal(t, "mine", fresh.Jobs[1].ClaimedBy)
}

func TestCommitWithRetry_SurfacesExhaustion(t *testing.T) {
	ctx := context.Background()
	s := seedFileStore(t, 1)
	policy := CommitPolicy{MaxAttempts: 2, Backoff: time.Millisecond}

	_, _, err := CommitWithRetry(ctx, s, policy, func(doc *Document) ([]Mutation, error) {
		// Competing version bump on every attempt.
		if _, serr := s.Seed(ctx, nil); serr != nil {
			return nil, serr
		}
		return []Mutation{{JobID: doc.Jobs[0].ID, Op: OpClaim, WorkerID: "mine", At: time.Now()}}, nil
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrConflict))
}
