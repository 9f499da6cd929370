// mediadrop/job/coordinator.go
package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"mediadrop/config"
	"mediadrop/extract"
	"mediadrop/naming"
	"mediadrop/progress"
	"mediadrop/store"
)

// ErrAlreadyActive signals an idempotent re-submission: a job with the same
// id is still in flight, so the new request is a no-op, not a failure.
var ErrAlreadyActive = errors.New("job id already active")

// Coordinator owns the active-job registry. It drives the extraction engine,
// translates its callbacks into bus events, and on success finalizes the
// produced file into the artifact store.
type Coordinator struct {
	cfg    *config.Config
	engine extract.Engine
	store  *store.Store
	bus    *progress.Bus
	alloc  *naming.Allocator

	// concurrencySem bounds simultaneous extractions.
	concurrencySem chan struct{}

	mu     sync.Mutex
	active map[string]*Job

	// finalizeMu makes allocate-move-register one atomic step; without it
	// two completing jobs could allocate the same name before either
	// registers it.
	finalizeMu sync.Mutex

	rootCtx context.Context
}

func NewCoordinator(cfg *config.Config, engine extract.Engine, st *store.Store, bus *progress.Bus) *Coordinator {
	return &Coordinator{
		cfg:            cfg,
		engine:         engine,
		store:          st,
		bus:            bus,
		alloc:          naming.NewAllocator(st),
		concurrencySem: make(chan struct{}, cfg.MaxConcurrency),
		active:         make(map[string]*Job),
		rootCtx:        context.Background(),
	}
}

// Start ties all job lifetimes to ctx. Jobs submitted after ctx is canceled
// fail immediately.
func (c *Coordinator) Start(ctx context.Context) {
	c.rootCtx = ctx
	log.Println("Job coordinator started. Concurrency limit:", c.cfg.MaxConcurrency)
}

// Submit registers a new job and begins extraction asynchronously. A second
// submit with the id of a still-active job returns ErrAlreadyActive and
// starts nothing.
func (c *Coordinator) Submit(id, sourceURL string, kind extract.Kind) error {
	if id == "" {
		return errors.New("job id must not be empty")
	}
	if sourceURL == "" {
		return errors.New("source url must not be empty")
	}
	if !kind.Valid() {
		return fmt.Errorf("unknown kind %q", kind)
	}

	c.mu.Lock()
	if _, ok := c.active[id]; ok {
		c.mu.Unlock()
		return ErrAlreadyActive
	}

	jobCtx, cancel := context.WithCancel(c.rootCtx)
	j := &Job{
		ID:         id,
		URL:        sourceURL,
		Kind:       kind,
		State:      progress.StateQueued,
		CreatedAt:  time.Now(),
		cancelFunc: cancel,
	}
	c.active[id] = j
	c.mu.Unlock()

	c.bus.Publish(progress.Event{JobID: id, State: progress.StateQueued})
	log.Printf("Job %s accepted (%s %s)", id, kind, sourceURL)

	go c.run(jobCtx, j)
	return nil
}

// Get returns a snapshot of an active job.
func (c *Coordinator) Get(id string) (Job, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	j, ok := c.active[id]
	if !ok {
		return Job{}, false
	}
	return j.snapshot(), true
}

// List returns snapshots of every active job.
func (c *Coordinator) List() []Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Job, 0, len(c.active))
	for _, j := range c.active {
		out = append(out, j.snapshot())
	}
	return out
}

// Cancel transitions a non-terminal job to Cancelled, removes it from the
// registry and notifies subscribers. Cancellation is cooperative: the job
// context is canceled, which kills the extractor process when the engine
// honors it, but the coordinator does not guarantee the underlying
// extraction is interrupted, only that it stops being tracked.
func (c *Coordinator) Cancel(id string) error {
	c.mu.Lock()
	j, ok := c.active[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("no active job with id %s", id)
	}
	j.cancelled = true
	j.State = progress.StateCancelled
	delete(c.active, id)
	c.mu.Unlock()

	if j.cancelFunc != nil {
		j.cancelFunc()
	}
	c.bus.Publish(progress.Event{JobID: id, State: progress.StateCancelled})
	log.Printf("Job %s cancelled", id)
	return nil
}

// run executes one job to a terminal state. Whatever happens, the job is out
// of the active registry by the time this returns.
func (c *Coordinator) run(ctx context.Context, j *Job) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Job %s panicked: %v", j.ID, r)
			c.fail(j, extract.FailureGeneric, fmt.Sprintf("internal error: %v", r))
		}
	}()

	select {
	case c.concurrencySem <- struct{}{}:
		defer func() { <-c.concurrencySem }()
	case <-ctx.Done():
		// Cancelled while queued (fail is a no-op if Cancel already
		// deregistered and notified), or the process is shutting down.
		c.fail(j, extract.FailureGeneric, "aborted before extraction started")
		return
	}

	if c.cfg.ExtractTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.ExtractTimeout)
		defer cancel()
	}

	c.transition(j, progress.StateExtracting, -1, "")

	result, err := c.engine.Extract(ctx, j.URL, j.Kind, func(stage string, percent float64) {
		switch stage {
		case "downloading":
			c.transition(j, progress.StateDownloading, percent, "")
		default:
			c.transition(j, progress.StateDownloading, -1, stage)
		}
	})
	if err != nil {
		if c.wasCancelled(j) {
			// Cancel already reached a terminal state for subscribers.
			return
		}
		if errors.Is(err, context.DeadlineExceeded) {
			c.fail(j, extract.FailureGeneric, "extraction timed out")
			return
		}
		c.fail(j, extract.Classify(err.Error()), err.Error())
		return
	}

	if c.wasCancelled(j) {
		// Too late to matter; drop the produced file.
		os.Remove(result.Path)
		return
	}

	c.finalize(j, result)
}

// finalize is the single atomic completion step: allocate a collision-free
// name, move the produced file into the artifact directory, register it
// with a TTL, then announce the delivery URL.
func (c *Coordinator) finalize(j *Job, result *extract.Result) {
	c.finalizeMu.Lock()
	defer c.finalizeMu.Unlock()

	name, err := c.allocate(result.Path)
	if err != nil {
		c.fail(j, extract.FailureGeneric, fmt.Sprintf("could not allocate artifact name: %v", err))
		return
	}

	dest, err := c.store.FinalizePath(name)
	if err != nil {
		c.fail(j, extract.FailureGeneric, err.Error())
		return
	}
	// The allocator checked the index, not the disk; a leftover file under
	// this name must not be clobbered.
	if _, statErr := os.Stat(dest); statErr == nil {
		c.fail(j, extract.FailureGeneric, fmt.Sprintf("destination %s already occupied", name))
		return
	}
	if err := moveFile(result.Path, dest); err != nil {
		c.fail(j, extract.FailureGeneric, fmt.Sprintf("could not move artifact: %v", err))
		return
	}

	art, err := c.store.Register(name, dest, c.cfg.ArtifactTTL, result.Size, result.MediaType)
	if err != nil {
		os.Remove(dest)
		c.fail(j, extract.FailureGeneric, fmt.Sprintf("could not register artifact: %v", err))
		return
	}

	if !c.deregister(j) {
		// Cancelled in the finalize window; the artifact stays registered
		// and the sweep reclaims it, but no completion event follows the
		// cancellation the subscriber already saw.
		return
	}
	c.bus.Publish(progress.Event{
		JobID:     j.ID,
		State:     progress.StateFinished,
		Percent:   100,
		URL:       c.deliveryURL(name),
		ExpiresAt: art.ExpiresAt,
	})
	log.Printf("Job %s finished: %s expires %s", j.ID, name, art.ExpiresAt.Format(time.RFC3339))
}

func (c *Coordinator) allocate(producedPath string) (string, error) {
	base := filepath.Base(producedPath)
	if c.cfg.NameStrategy == config.NameRandomize {
		return c.alloc.Randomize(base)
	}
	return c.alloc.Sanitize(base)
}

// deliveryURL builds the public path advertised in completion events. The
// stored name is percent-encoded; the delivery handler decodes it back.
func (c *Coordinator) deliveryURL(name string) string {
	base := strings.TrimSuffix(c.cfg.BaseURL, "/")
	return base + "/downloads/" + url.PathEscape(name)
}

// fail publishes the single terminal Failed event and deregisters the job.
func (c *Coordinator) fail(j *Job, kind extract.FailureKind, detail string) {
	if !c.deregister(j) {
		return
	}
	log.Printf("Job %s failed (%s): %s", j.ID, kind, detail)
	c.bus.Publish(progress.Event{
		JobID:  j.ID,
		State:  progress.StateFailed,
		Detail: fmt.Sprintf("%s: %s", kind, detail),
	})
}

// deregister removes the job from the active registry, reporting whether
// this call was the one that removed it. Identity is compared by pointer so
// a stale goroutine can never evict a successor job reusing the same id.
func (c *Coordinator) deregister(j *Job) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.active[j.ID]; !ok || cur != j {
		return false
	}
	delete(c.active, j.ID)
	return true
}

func (c *Coordinator) wasCancelled(j *Job) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return j.cancelled
}

func (c *Coordinator) transition(j *Job, state progress.State, percent float64, detail string) {
	c.mu.Lock()
	if j.cancelled {
		c.mu.Unlock()
		return
	}
	j.State = state
	if percent >= 0 {
		j.Percent = percent
	}
	c.mu.Unlock()

	ev := progress.Event{JobID: j.ID, State: state, Detail: detail}
	if percent >= 0 {
		ev.Percent = percent
	}
	c.bus.Publish(ev)
}

// moveFile renames src to dest, falling back to copy-and-remove when the
// scratch and storage directories sit on different filesystems.
func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return err
	}
	return os.Remove(src)
}
