package server

import (
	"errors"
	"sort"
	"sync"

	"github.com/siegeai/shapehist/bucket"
)

var ErrNotFound = errors.New("histogram not found")

// maxRememberedKeys bounds the idempotency keys kept per histogram. The
// oldest key is forgotten first.
const maxRememberedKeys = 4096

type entry struct {
	mu   sync.Mutex
	b    *bucket.Bucket
	keys map[string]struct{}
	seen []string
}

func (e *entry) remember(key string) {
	if e.keys == nil {
		e.keys = make(map[string]struct{})
	}
	if len(e.seen) >= maxRememberedKeys {
		delete(e.keys, e.seen[0])
		e.seen = e.seen[1:]
	}
	e.keys[key] = struct{}{}
	e.seen = append(e.seen, key)
}

// Store holds running histograms by id. Each histogram has its own lock so
// that folds into one never wait on another.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// Create adds an empty histogram and reports whether it did not exist yet.
func (s *Store) Create(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; ok {
		return false
	}
	s.entries[id] = &entry{b: bucket.New()}
	return true
}

func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return false
	}
	delete(s.entries, id)
	return true
}

func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[id]
	return ok
}

func (s *Store) IDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) get(id string, create bool) (*entry, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if ok {
		return e, nil
	}
	if !create {
		return nil, ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		return e, nil
	}
	e = &entry{b: bucket.New()}
	s.entries[id] = e
	return e, nil
}

// Update runs fn with exclusive access to the histogram. With create set a
// missing histogram is started empty, otherwise ErrNotFound is returned.
func (s *Store) Update(id string, create bool, fn func(b *bucket.Bucket) error) error {
	e, err := s.get(id, create)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.b)
}

// UpdateOnce is Update guarded by an idempotency key: fn runs at most once per
// key and histogram. It reports whether fn ran. An empty key always runs fn.
func (s *Store) UpdateOnce(id, key string, create bool, fn func(b *bucket.Bucket) error) (bool, error) {
	e, err := s.get(id, create)
	if err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if key != "" {
		if _, ok := e.keys[key]; ok {
			return false, nil
		}
	}
	if err := fn(e.b); err != nil {
		return false, err
	}
	if key != "" {
		e.remember(key)
	}
	return true, nil
}

// Snapshot returns a copy of the histogram that is safe to read while folds
// continue.
func (s *Store) Snapshot(id string) (*bucket.Bucket, error) {
	e, err := s.get(id, false)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.b.Clone(), nil
}
