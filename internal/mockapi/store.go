package mockapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/kleanup/dashboard/internal/core/record"
)

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrDuplicate      = errors.New("already exists")
	ErrNoData         = errors.New("no data provided")
)

// Store is an in-memory set of named collections. Records keep insertion order.
type Store struct {
	mu          sync.RWMutex
	collections map[string][]record.Record
	idFields    map[string]string
	unique      map[string][]string
	now         func() time.Time
}

func NewStore() *Store {
	return &Store{
		collections: make(map[string][]record.Record),
		idFields:    make(map[string]string),
		unique:      make(map[string][]string),
		now:         time.Now,
	}
}

// Define declares the id field and unique fields of a collection.
func (s *Store) Define(name, idField string, unique ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idField == "" {
		idField = "id"
	}
	s.idFields[name] = idField
	s.unique[name] = unique
}

func (s *Store) idField(name string) string {
	if f, ok := s.idFields[name]; ok {
		return f
	}
	return "id"
}

func (s *Store) idFieldOf(name string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idField(name)
}

// Seed loads a JSON object mapping collection names to arrays of records.
func (s *Store) Seed(r io.Reader) error {
	var data map[string][]record.Record
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return fmt.Errorf("failed to decode seed data: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, rows := range data {
		s.collections[name] = append(s.collections[name], rows...)
	}
	return nil
}

func (s *Store) SeedFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()
	return s.Seed(f)
}

func (s *Store) List(name string) []record.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.collections[name]
	out := make([]record.Record, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}

func (s *Store) Get(name, id string) (record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(name, id)
	if i < 0 {
		return nil, ErrRecordNotFound
	}
	return s.collections[name][i].Clone(), nil
}

// Find returns the first record whose field equals value.
func (s *Store) Find(name, field string, value any) (record.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.collections[name] {
		if record.Equal(r[field], value) {
			return r.Clone(), true
		}
	}
	return nil, false
}

func (s *Store) indexOf(name, id string) int {
	idField := s.idField(name)
	for i, r := range s.collections[name] {
		if rid, ok := r.IDOf(idField); ok && rid == id {
			return i
		}
	}
	return -1
}

func (s *Store) checkUnique(name string, rec record.Record, skip int) error {
	for _, field := range s.unique[name] {
		v, ok := rec[field]
		if !ok || v == nil {
			continue
		}
		for i, other := range s.collections[name] {
			if i != skip && record.Equal(other[field], v) {
				return &DuplicateError{Field: field}
			}
		}
	}
	return nil
}

// Create stores rec, generating an id and created_at when absent.
func (s *Store) Create(name string, rec record.Record) (record.Record, error) {
	if len(rec) == 0 {
		return nil, ErrNoData
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec = rec.Clone()
	idField := s.idField(name)
	if id, ok := rec.IDOf(idField); ok {
		if s.indexOf(name, id) >= 0 {
			return nil, &DuplicateError{Field: idField}
		}
	} else {
		newID, err := uuid.NewV4()
		if err != nil {
			return nil, fmt.Errorf("could not generate id: %w", err)
		}
		rec[idField] = newID.String()
	}
	if err := s.checkUnique(name, rec, -1); err != nil {
		return nil, err
	}
	if _, ok := rec["created_at"]; !ok {
		rec["created_at"] = s.now().UTC().Format(time.RFC3339)
	}

	s.collections[name] = append(s.collections[name], rec)
	return rec.Clone(), nil
}

// Update merges patch into the stored record.
func (s *Store) Update(name, id string, patch record.Record) (record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(name, id)
	if i < 0 {
		return nil, ErrRecordNotFound
	}
	merged := s.collections[name][i].Clone()
	idField := s.idField(name)
	for k, v := range patch {
		if k == idField {
			continue
		}
		merged[k] = v
	}
	if err := s.checkUnique(name, merged, i); err != nil {
		return nil, err
	}
	merged["updated_at"] = s.now().UTC().Format(time.RFC3339)

	s.collections[name][i] = merged
	return merged.Clone(), nil
}

func (s *Store) Delete(name, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(name, id)
	if i < 0 {
		return ErrRecordNotFound
	}
	rows := s.collections[name]
	s.collections[name] = append(rows[:i:i], rows[i+1:]...)
	return nil
}

// DuplicateError is a unique constraint violation on Field.
type DuplicateError struct {
	Field string
}

// Error words the violation the way the real backend does, e.g. "Email already exists".
func (e *DuplicateError) Error() string {
	return cases.Title(language.English).String(e.Field) + " already exists"
}

func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicate
}
