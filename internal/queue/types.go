package queue

import (
	"time"

	"github.com/domus-magna/chinaxiv-english-sub001/internal/papers"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusQAFlagged  Status = "qa_flagged"
	StatusFailed     Status = "failed"
)

// Job tracks one paper through the translation queue. Attempts counts claim
// attempts and only ever grows; a reclaim or an operator retry never resets it.
type Job struct {
	ID        string       `json:"id"`
	Paper     papers.Paper `json:"paper"`
	Status    Status       `json:"status"`
	Attempts  int          `json:"attempts"`
	ClaimedBy string       `json:"claimed_by,omitempty"`
	ClaimedAt time.Time    `json:"claimed_at"`
	ResultRef string       `json:"result_ref,omitempty"`
	LastError string       `json:"last_error,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// NewJob creates a pending job for a paper with its deterministic id.
func NewJob(p papers.Paper, now time.Time) Job {
	return Job{
		ID:        papers.JobID(p.ID),
		Paper:     p,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Document is the whole queue as persisted: the ordered job collection plus
// the version counter that gates every commit.
type Document struct {
	Version int64 `json:"version"`
	Jobs    []Job `json:"jobs"`
}

func (d *Document) Clone() *Document {
	jobs := make([]Job, len(d.Jobs))
	copy(jobs, d.Jobs)
	return &Document{Version: d.Version, Jobs: jobs}
}

// Find returns a pointer into the document's job slice, or nil.
func (d *Document) Find(id string) *Job {
	for i := range d.Jobs {
		if d.Jobs[i].ID == id {
			return &d.Jobs[i]
		}
	}
	return nil
}

// Pending returns up to limit pending jobs in queue (insertion) order, which
// keeps batch selection deterministic for a given snapshot.
func (d *Document) Pending(limit int) []Job {
	ret := make([]Job, 0, limit)
	for _, j := range d.Jobs {
		if j.Status != StatusPending {
			continue
		}
		ret = append(ret, j)
		if limit > 0 && len(ret) >= limit {
			break
		}
	}
	return ret
}

// Stats holds per-status job counts.
type Stats struct {
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	QAFlagged  int `json:"qa_flagged"`
	Failed     int `json:"failed"`
}

func (s Stats) Total() int {
	return s.Pending + s.InProgress + s.Completed + s.QAFlagged + s.Failed
}

func (d *Document) Stats() Stats {
	var s Stats
	for _, j := range d.Jobs {
		switch j.Status {
		case StatusPending:
			s.Pending++
		case StatusInProgress:
			s.InProgress++
		case StatusCompleted:
			s.Completed++
		case StatusQAFlagged:
			s.QAFlagged++
		case StatusFailed:
			s.Failed++
		}
	}
	return s
}
