package queue

import (
	"fmt"
	"time"
)

type Op string

const (
	// OpClaim moves a pending job to in_progress and bumps its attempt count.
	OpClaim Op = "claim"
	// OpComplete marks a claimed job as done after a QA pass.
	OpComplete Op = "complete"
	// OpFlag marks a claimed job as done but held for review.
	OpFlag Op = "flag"
	// OpFail records a translator failure on a claimed job.
	OpFail Op = "fail"
	// OpRelease returns a stuck in_progress job to pending, attempts unchanged.
	OpRelease Op = "release"
	// OpRequeue returns a terminal failed/qa_flagged job to pending.
	OpRequeue Op = "requeue"
)

// Mutation is one per-job state transition. A commit applies a set of
// mutations atomically; each one is validated against the document state at
// apply time so a transition whose precondition no longer holds is rejected
// instead of forced.
type Mutation struct {
	JobID     string
	Op        Op
	WorkerID  string
	At        time.Time
	ResultRef string
	Reason    string
}

func (m Mutation) apply(doc *Document) error {
	job := doc.Find(m.JobID)
	if job == nil {
		return fmt.Errorf("job %s not found", m.JobID)
	}

	switch m.Op {
	case OpClaim:
		if job.Status != StatusPending {
			return fmt.Errorf("claim job %s: status is %s, want %s", job.ID, job.Status, StatusPending)
		}
		job.Status = StatusInProgress
		job.ClaimedBy = m.WorkerID
		job.ClaimedAt = m.At
		job.Attempts++

	case OpComplete, OpFlag, OpFail:
		if job.Status != StatusInProgress {
			return fmt.Errorf("%s job %s: status is %s, want %s", m.Op, job.ID, job.Status, StatusInProgress)
		}
		if job.ClaimedBy != m.WorkerID {
			return fmt.Errorf("%s job %s: claimed by %s, not %s", m.Op, job.ID, job.ClaimedBy, m.WorkerID)
		}
		job.ClaimedBy = ""
		job.ClaimedAt = time.Time{}
		switch m.Op {
		case OpComplete:
			job.Status = StatusCompleted
			job.ResultRef = m.ResultRef
			job.LastError = ""
		case OpFlag:
			job.Status = StatusQAFlagged
			job.ResultRef = m.ResultRef
			job.LastError = m.Reason
		case OpFail:
			job.Status = StatusFailed
			job.LastError = m.Reason
		}

	case OpRelease:
		if job.Status != StatusInProgress {
			return fmt.Errorf("release job %s: status is %s, want %s", job.ID, job.Status, StatusInProgress)
		}
		job.Status = StatusPending
		job.ClaimedBy = ""
		job.ClaimedAt = time.Time{}

	case OpRequeue:
		if job.Status != StatusFailed && job.Status != StatusQAFlagged {
			return fmt.Errorf("requeue job %s: status is %s, want %s or %s", job.ID, job.Status, StatusFailed, StatusQAFlagged)
		}
		job.Status = StatusPending
		job.LastError = ""
		job.ResultRef = ""

	default:
		return fmt.Errorf("unknown mutation op %q", m.Op)
	}

	job.UpdatedAt = m.At
	return nil
}

// applyAll mutates doc in place and bumps its version. Callers commit the
// result only if every mutation applied cleanly.
func applyAll(doc *Document, muts []Mutation) error {
	for _, m := range muts {
		if err := m.apply(doc); err != nil {
			return err
		}
	}
	doc.Version++
	return nil
}
