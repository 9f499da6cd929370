// mediadrop/progress/bus.go
package progress

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is a job lifecycle state as seen by subscribers.
type State string

const (
	StateQueued      State = "queued"
	StateExtracting  State = "extracting"
	StateDownloading State = "downloading"
	StateFinished    State = "finished"
	StateFailed      State = "failed"
	StateCancelled   State = "cancelled"
)

// Terminal reports whether no further events will follow for the job.
func (s State) Terminal() bool {
	return s == StateFinished || s == StateFailed || s == StateCancelled
}

// Event is one job-status update. Events are ephemeral: there is no replay
// for subscribers that attach late.
type Event struct {
	JobID     string    `json:"jobId"`
	State     State     `json:"state"`
	Percent   float64   `json:"percent,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	URL       string    `json:"url,omitempty"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Token identifies one subscription for later removal.
type Token struct {
	jobID string
	id    uuid.UUID
}

// subscriberBuffer bounds each subscriber channel. A subscriber that falls
// this far behind starts losing events rather than blocking publishers.
const subscriberBuffer = 16

// Bus fans job events out to the subscribers registered for that job id.
// Publishing is fire-and-forget: with no subscriber the event is dropped,
// and a full subscriber channel is skipped rather than waited on, so a
// stalled client can never hold up the coordinator.
type Bus struct {
	mu   sync.Mutex
	subs map[string]map[uuid.UUID]chan Event
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[uuid.UUID]chan Event)}
}

// Subscribe registers for all events published for jobID after this call.
// The returned channel is closed on Unsubscribe.
func (b *Bus) Subscribe(jobID string) (Token, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New()
	ch := make(chan Event, subscriberBuffer)
	if b.subs[jobID] == nil {
		b.subs[jobID] = make(map[uuid.UUID]chan Event)
	}
	b.subs[jobID][id] = ch
	return Token{jobID: jobID, id: id}, ch
}

// Unsubscribe removes the subscription and closes its channel. Unsubscribing
// twice is a no-op.
func (b *Bus) Unsubscribe(tok Token) {
	b.mu.Lock()
	defer b.mu.Unlock()

	chans, ok := b.subs[tok.jobID]
	if !ok {
		return
	}
	ch, ok := chans[tok.id]
	if !ok {
		return
	}
	delete(chans, tok.id)
	if len(chans) == 0 {
		delete(b.subs, tok.jobID)
	}
	close(ch)
}

// Publish delivers the event to every current subscriber for its job.
// Per-job ordering follows publish order because delivery happens under the
// bus lock; a publisher is never blocked by a slow or absent subscriber.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs[ev.JobID] {
		select {
		case ch <- ev:
		default:
			log.Printf("Dropping %s event for job %s: subscriber too slow", ev.State, ev.JobID)
		}
	}
}
