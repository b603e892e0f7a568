package execdata

import (
	"cmp"
	"slices"
	"sync"

	"github.com/huangsam/covagg/internal/contract"
	"github.com/huangsam/covagg/schema"
)

// Store holds merged execution records keyed by class id.
// Writes happen while loading; the analyzer only reads once loading is complete.
type Store struct {
	mu      sync.RWMutex
	records map[uint64]*schema.ExecutionRecord
	names   map[string]int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{records: map[uint64]*schema.ExecutionRecord{}, names: map[string]int{}}
}

// Put adds a record. Probes of an existing record with the same id are merged with OR.
func (s *Store) Put(rec schema.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[rec.ID]
	if !ok {
		cp := rec
		cp.Probes = slices.Clone(rec.Probes)
		s.records[rec.ID] = &cp
		s.names[rec.Name]++
		return nil
	}
	if existing.Name != rec.Name || len(existing.Probes) != len(rec.Probes) {
		return &contract.IncompatibleDataError{
			ID:          rec.ID,
			Name:        existing.Name,
			OtherName:   rec.Name,
			Probes:      len(existing.Probes),
			OtherProbes: len(rec.Probes),
		}
	}
	for i, hit := range rec.Probes {
		if hit {
			existing.Probes[i] = true
		}
	}
	return nil
}

// Get returns a copy of the record for id.
func (s *Store) Get(id uint64) (schema.ExecutionRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return schema.ExecutionRecord{}, false
	}
	cp := *rec
	cp.Probes = slices.Clone(rec.Probes)
	return cp, true
}

// Contains reports whether any record has the given VM class name.
func (s *Store) Contains(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.names[name] > 0
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Contents returns copies of all records sorted by name, then id.
func (s *Store) Contents() []schema.ExecutionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]schema.ExecutionRecord, 0, len(s.records))
	for _, rec := range s.records {
		cp := *rec
		cp.Probes = slices.Clone(rec.Probes)
		out = append(out, cp)
	}
	slices.SortFunc(out, func(a, b schema.ExecutionRecord) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out
}

// Reset removes all records.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.records)
	clear(s.names)
}

// SessionStore collects session infos in load order.
type SessionStore struct {
	mu       sync.Mutex
	sessions []schema.SessionInfo
}

// NewSessionStore returns an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{}
}

// Add appends a session.
func (s *SessionStore) Add(info schema.SessionInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, info)
}

// Infos returns sessions sorted by start time; ties keep load order.
func (s *SessionStore) Infos() []schema.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Clone(s.sessions)
	slices.SortStableFunc(out, func(a, b schema.SessionInfo) int {
		return a.Start.Compare(b.Start)
	})
	return out
}
