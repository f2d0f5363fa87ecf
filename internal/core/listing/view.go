package listing

import (
	"github.com/kleanup/dashboard/internal/core/record"
)

// Row is a record as displayed in a view.
type Row = record.Record

// Query is everything a view is derived from besides the collection itself.
type Query struct {
	Filters map[string]any `json:"filters,omitempty"`
	Search  string         `json:"search,omitempty"`
	Day     *DayFilter     `json:"day,omitempty"`
	Sort    SortState      `json:"sort"`
}

// Clone copies the filter map so a stored query cannot be changed through a
// caller's reference.
func (q Query) Clone() Query {
	out := q
	if q.Filters != nil {
		out.Filters = make(map[string]any, len(q.Filters))
		for k, v := range q.Filters {
			out.Filters[k] = v
		}
	}
	if q.Day != nil {
		d := *q.Day
		out.Day = &d
	}
	return out
}

// View derives the filtered and sorted rows of c. The collection is never modified
// and the returned rows are deep copies.
func View(c record.Collection, q Query, sorter *Sorter) record.Collection {
	v := Filter(c, q.Filters)
	v = FilterDay(v, q.Day)
	v = Search(v, q.Search)
	v = sorter.Sort(v, q.Sort)
	return v.Clone()
}
