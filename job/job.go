// mediadrop/job/job.go
package job

import (
	"context"
	"time"

	"mediadrop/extract"
	"mediadrop/progress"
)

// Job is one client-initiated request to produce an artifact. Identity is
// the client-supplied correlation id, scoped to a single coordinator: the
// job lives in the active registry from acceptance until it reaches a
// terminal state, at which point it is dropped, not retained.
type Job struct {
	ID        string         `json:"id"`
	URL       string         `json:"url"`
	Kind      extract.Kind   `json:"kind"`
	State     progress.State `json:"state"`
	Percent   float64        `json:"percent"`
	CreatedAt time.Time      `json:"createdAt"`

	cancelFunc context.CancelFunc
	cancelled  bool
}

// Snapshot is a copy of the job's externally visible fields, safe to hand
// out without exposing coordinator-owned state.
func (j *Job) snapshot() Job {
	return Job{
		ID:        j.ID,
		URL:       j.URL,
		Kind:      j.Kind,
		State:     j.State,
		Percent:   j.Percent,
		CreatedAt: j.CreatedAt,
	}
}
