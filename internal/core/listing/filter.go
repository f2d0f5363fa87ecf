package listing

import (
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/kleanup/dashboard/internal/core/record"
)

// DayFilter keeps records whose timestamp field falls on the calendar day of Date (UTC).
type DayFilter struct {
	Field string    `json:"field"`
	Date  time.Time `json:"date"`
}

func (d DayFilter) match(r record.Record) bool {
	t, ok := r[d.Field].(time.Time)
	if !ok {
		return false
	}
	ty, tm, td := t.UTC().Date()
	dy, dm, dd := d.Date.UTC().Date()
	return ty == dy && tm == dm && td == dd
}

// Filter returns the records of c whose fields equal every value in filters.
// The result is always a new slice; an empty filter set copies c.
func Filter(c record.Collection, filters map[string]any) record.Collection {
	out := make(record.Collection, 0, len(c))
	for _, r := range c {
		if matchAll(r, filters) {
			out = append(out, r)
		}
	}
	return out
}

func matchAll(r record.Record, filters map[string]any) bool {
	for field, want := range filters {
		if !record.Equal(r[field], want) {
			return false
		}
	}
	return true
}

// Search keeps the records whose field values contain query, ignoring case. A blank
// query keeps everything.
func Search(c record.Collection, query string) record.Collection {
	q := strings.TrimSpace(query)
	if q == "" {
		out := make(record.Collection, len(c))
		copy(out, c)
		return out
	}

	fold := cases.Fold()
	needle := fold.String(q)

	out := make(record.Collection, 0, len(c))
	for _, r := range c {
		if strings.Contains(fold.String(r.Text()), needle) {
			out = append(out, r)
		}
	}
	return out
}

// FilterDay applies a DayFilter; a nil filter copies c.
func FilterDay(c record.Collection, day *DayFilter) record.Collection {
	out := make(record.Collection, 0, len(c))
	for _, r := range c {
		if day == nil || day.match(r) {
			out = append(out, r)
		}
	}
	return out
}
