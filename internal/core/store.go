package core

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Store owns the authoritative table name -> Table mapping for one session.
// Names keep insertion order for stable listings. Every ReplaceAll starts a
// new generation; row ids and search results are only meaningful within the
// generation that produced them.
type Store struct {
	mu         sync.RWMutex
	tables     map[string]*Table
	order      []string
	sources    []string
	generation string
}

// NewStore creates an empty store at a fresh generation.
func NewStore() *Store {
	return &Store{
		tables:     make(map[string]*Table),
		generation: uuid.NewString(),
	}
}

// ReplaceAll discards every table and installs the given ones as a new
// generation. A name repeated in tables keeps its first position and its
// last table. sources records the upload names the tables came from.
// Returns the new generation.
func (s *Store) ReplaceAll(tables []NamedTable, sources []string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tables = make(map[string]*Table, len(tables))
	s.order = make([]string, 0, len(tables))
	for _, nt := range tables {
		if _, exists := s.tables[nt.Name]; !exists {
			s.order = append(s.order, nt.Name)
		}
		s.tables[nt.Name] = nt.Table
	}
	s.sources = append([]string(nil), sources...)
	s.generation = uuid.NewString()
	return s.generation
}

// Get returns the current table for name.
func (s *Store) Get(name string) (*Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	return t, nil
}

// Names returns table names in insertion order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Len returns the number of tables.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Generation identifies the current load generation.
func (s *Store) Generation() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Sources returns the upload names of the current generation. It is nil
// when nothing was loaded.
func (s *Store) Sources() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.sources...)
}

// SameSources reports whether names equals the loaded upload names as a set.
// Order and repetition do not matter.
func (s *Store) SameSources(names []string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.sources == nil {
		return false
	}
	want := make(map[string]struct{}, len(s.sources))
	for _, n := range s.sources {
		want[n] = struct{}{}
	}
	got := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := want[n]; !ok {
			return false
		}
		got[n] = struct{}{}
	}
	return len(got) == len(want)
}

// swap replaces the table stored under an existing name, keeping its
// position and the generation.
func (s *Store) swap(name string, t *Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tables[name]; !ok {
		return fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	s.tables[name] = t
	return nil
}
