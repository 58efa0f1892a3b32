package queue

import (
	"context"
	"time"
)

// RetryFailed requeues every failed job. Attempts are preserved so the claim
// history stays visible across operator retries.
func RetryFailed(ctx context.Context, s Store, policy CommitPolicy) (int, error) {
	return requeueByStatus(ctx, s, StatusFailed, policy)
}

// RetryFlagged requeues every qa_flagged job, typically after thresholds were
// tuned or the underlying model changed.
func RetryFlagged(ctx context.Context, s Store, policy CommitPolicy) (int, error) {
	return requeueByStatus(ctx, s, StatusQAFlagged, policy)
}

func requeueByStatus(ctx context.Context, s Store, status Status, policy CommitPolicy) (int, error) {
	now := time.Now()
	_, muts, err := CommitWithRetry(ctx, s, policy, func(doc *Document) ([]Mutation, error) {
		ret := make([]Mutation, 0)
		for _, j := range doc.Jobs {
			if j.Status != status {
				continue
			}
			ret = append(ret, Mutation{JobID: j.ID, Op: OpRequeue, At: now})
		}
		return ret, nil
	})
	if err != nil {
		return 0, err
	}
	return len(muts), nil
}
