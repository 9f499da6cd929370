// mediadrop/store/store.go
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	// ErrDuplicateArtifact signals a register under a name that is already
	// taken. The allocator guarantees uniqueness, so hitting this is a bug
	// in the caller, not an expected runtime condition.
	ErrDuplicateArtifact = errors.New("artifact name already registered")

	// ErrNotFound signals a lookup for a name with no index entry.
	ErrNotFound = errors.New("artifact not found")
)

// Artifact is one servable file tracked with an expiry. The index entry is
// authoritative: a file on disk without an entry is not deliverable.
type Artifact struct {
	Name      string    `json:"name"`
	Path      string    `json:"-"`
	Size      int64     `json:"size"`
	MediaType string    `json:"mediaType"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Store is the TTL-indexed registry of servable files. All methods are safe
// for concurrent use by request handlers and the sweep loop.
type Store struct {
	dir string

	mu    sync.Mutex
	index map[string]*Artifact

	now func() time.Time // overridable for tests
}

func New(dir string) *Store {
	return &Store{
		dir:   dir,
		index: make(map[string]*Artifact),
		now:   time.Now,
	}
}

// Dir returns the storage directory artifacts are finalized into.
func (s *Store) Dir() string { return s.dir }

// Has reports whether a name is registered. Satisfies naming.Index.
func (s *Store) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[name]
	return ok
}

// Register inserts an entry expiring at now+ttl. A duplicate name is
// rejected: expiry may never be silently extended by re-registration.
func (s *Store) Register(name, path string, ttl time.Duration, size int64, mediaType string) (*Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[name]; ok {
		log.Printf("BUG: duplicate artifact registration for %q", name)
		return nil, fmt.Errorf("%w: %s", ErrDuplicateArtifact, name)
	}

	now := s.now()
	art := &Artifact{
		Name:      name,
		Path:      path,
		Size:      size,
		MediaType: mediaType,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	s.index[name] = art
	return art, nil
}

// Lookup returns a copy of the entry for name. It does not consult the
// filesystem; existence of the underlying file is checked at serve time.
func (s *Store) Lookup(name string) (*Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	art, ok := s.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	cp := *art
	return &cp, nil
}

// IsExpired reports whether the entry's expiry has elapsed. Unknown names
// count as expired.
func (s *Store) IsExpired(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	art, ok := s.index[name]
	if !ok {
		return true
	}
	return !s.now().Before(art.ExpiresAt)
}

// MarkForImmediateRemoval shortens the expiry to now+grace. Expiry is only
// ever moved earlier; a later deadline than the current one is ignored.
func (s *Store) MarkForImmediateRemoval(name string, grace time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	art, ok := s.index[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	deadline := s.now().Add(grace)
	if deadline.Before(art.ExpiresAt) {
		art.ExpiresAt = deadline
	}
	return nil
}

// EvictExpired removes every expired entry and deletes the underlying file.
// Removing the index entry under the lock elects a single deleter, so a
// concurrent sweep and serve-triggered eviction cannot race on the same
// os.Remove. A file that is already gone is not an error, and per-entry
// failures do not stop the rest of the pass.
func (s *Store) EvictExpired() int {
	s.mu.Lock()
	now := s.now()
	var expired []*Artifact
	for name, art := range s.index {
		if !now.Before(art.ExpiresAt) {
			expired = append(expired, art)
			delete(s.index, name)
		}
	}
	s.mu.Unlock()

	for _, art := range expired {
		if err := os.Remove(art.Path); err != nil && !os.IsNotExist(err) {
			log.Printf("Failed to delete expired artifact %s at %s: %v", art.Name, art.Path, err)
			continue
		}
		log.Printf("Evicted expired artifact %s", art.Name)
	}
	return len(expired)
}

// Run sweeps on a fixed interval until the context is canceled.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Println("Artifact sweep shutting down.")
				return
			case <-ticker.C:
				s.EvictExpired()
			}
		}
	}()
}

// FinalizePath joins a stored name into the storage directory, rejecting
// anything that is not a bare filename.
func (s *Store) FinalizePath(name string) (string, error) {
	if filepath.Base(name) != name {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	return filepath.Join(s.dir, name), nil
}
