package queue

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// ErrConflict is returned by Commit when another writer committed first and
// the caller's expected version is stale. The caller must re-fetch, re-check
// its transitions against the fresh snapshot, and retry.
var ErrConflict = errors.New("queue: version conflict")

// ErrNotInitialized is returned by Fetch before the queue document exists.
var ErrNotInitialized = errors.New("queue: not initialized")

// Store is the single source of truth for job state. Implementations persist
// the queue as one versioned document and accept a commit only when the
// committer's observed version matches the stored one, so concurrent writers
// from independent processes serialize through version conflicts rather than
// locks. Commits are atomic: either every mutation applies or none do.
type Store interface {
	Fetch(ctx context.Context) (*Document, error)
	Commit(ctx context.Context, muts []Mutation, expectedVersion int64) (int64, error)
	// Seed adds jobs whose ids are not yet present and reports how many were
	// added. Job ids are deterministic, so seeding twice from the same record
	// set is a no-op the second time.
	Seed(ctx context.Context, jobs []Job) (int, error)
	Stats(ctx context.Context) (Stats, error)
}

// CommitPolicy bounds the fetch/commit retry loop run on version conflicts.
type CommitPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

func DefaultCommitPolicy() CommitPolicy {
	return CommitPolicy{MaxAttempts: 5, Backoff: 200 * time.Millisecond}
}

// BuildFunc derives the mutations that are still valid against a fresh
// snapshot. It is invoked again after every conflict, so it must re-check its
// preconditions each time. Returning no mutations ends the loop successfully
// with nothing committed.
type BuildFunc func(doc *Document) ([]Mutation, error)

// CommitWithRetry runs the optimistic commit discipline shared by claiming,
// terminal commits, reclaiming and operator retries: fetch, build mutations
// against the snapshot, commit at the observed version, and on conflict back
// off and start over. It returns the mutations that were actually committed.
func CommitWithRetry(ctx context.Context, s Store, policy CommitPolicy, build BuildFunc) (int64, []Mutation, error) {
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if err := sleepWithJitter(ctx, policy.Backoff); err != nil {
				return 0, nil, err
			}
		}

		doc, err := s.Fetch(ctx)
		if err != nil {
			return 0, nil, err
		}

		muts, err := build(doc)
		if err != nil {
			return 0, nil, err
		}
		if len(muts) == 0 {
			return doc.Version, nil, nil
		}

		newVersion, err := s.Commit(ctx, muts, doc.Version)
		if err == nil {
			return newVersion, muts, nil
		}
		if !errors.Is(err, ErrConflict) {
			return 0, nil, err
		}
		lastErr = err
	}
	return 0, nil, fmt.Errorf("commit not accepted after %d attempts: %w", attempts, lastErr)
}

func sleepWithJitter(ctx context.Context, base time.Duration) error {
	if base <= 0 {
		return nil
	}
	d := base + time.Duration(rand.Int63n(int64(base)/2+1))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
