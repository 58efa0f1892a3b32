package queue

import (
	"context"
	"time"
)

// Reclaim returns every in_progress job whose claim is older than timeout to
// pending, clearing its claim but leaving attempts alone: a stalled worker
// may be slow or dead, not wrong. It is the only recovery path for jobs whose
// worker disappeared mid-batch, and running it twice in a row is a no-op the
// second time.
func Reclaim(ctx context.Context, s Store, timeout time.Duration, now time.Time, policy CommitPolicy) (int, error) {
	_, muts, err := CommitWithRetry(ctx, s, policy, func(doc *Document) ([]Mutation, error) {
		ret := make([]Mutation, 0)
		for _, j := range doc.Jobs {
			if j.Status != StatusInProgress {
				continue
			}
			if now.Sub(j.ClaimedAt) <= timeout {
				continue
			}
			ret = append(ret, Mutation{JobID: j.ID, Op: OpRelease, At: now})
		}
		return ret, nil
	})
	if err != nil {
		return 0, err
	}
	return len(muts), nil
}
