package listing

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/kleanup/dashboard/internal/core/catalog"
	"github.com/kleanup/dashboard/internal/core/record"
)

// SortState is the active sort key and direction of a table.
type SortState struct {
	Field     string            `json:"field,omitempty"`
	Direction catalog.Direction `json:"direction,omitempty"`
}

// Toggle flips the direction when field is already the key and otherwise selects
// field ascending.
func (s SortState) Toggle(field string) SortState {
	if s.Field == field {
		if s.Direction == catalog.Asc {
			return SortState{Field: field, Direction: catalog.Desc}
		}
		return SortState{Field: field, Direction: catalog.Asc}
	}
	return SortState{Field: field, Direction: catalog.Asc}
}

// Sorter orders views. Strings compare with the collation rules of its locale.
type Sorter struct {
	mu       sync.Mutex
	collator *collate.Collator
}

func NewSorter(locale string) *Sorter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return &Sorter{collator: collate.New(tag)}
}

// Sort returns a stably sorted copy of c. Missing and null values go last in both
// directions.
func (s *Sorter) Sort(c record.Collection, state SortState) record.Collection {
	out := make(record.Collection, len(c))
	copy(out, c)
	if state.Field == "" {
		return out
	}

	desc := state.Direction == catalog.Desc

	// collate.Collator keeps internal buffers and is not safe for concurrent use.
	s.mu.Lock()
	defer s.mu.Unlock()

	slices.SortStableFunc(out, func(a, b record.Record) int {
		av, bv := a[state.Field], b[state.Field]
		switch {
		case av == nil && bv == nil:
			return 0
		case av == nil:
			return 1
		case bv == nil:
			return -1
		}
		cmp := s.compare(av, bv)
		if desc {
			return -cmp
		}
		return cmp
	})
	return out
}

func (s *Sorter) compare(a, b any) int {
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return s.collator.CompareString(av, bv)
		}
	case float64:
		if bv, ok := b.(float64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			}
			return 1
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	}
	return s.collator.CompareString(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}
