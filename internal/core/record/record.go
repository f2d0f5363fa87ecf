package record

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

var (
	ErrUnknownField = errors.New("unknown field")
	ErrInvalidValue = errors.New("invalid value")
)

// Record is one backend row: field name to value. Values are string, float64, bool,
// time.Time, File, nil, or whatever nested JSON the backend sent for unknown fields.
type Record map[string]any

// Collection is the ordered set of records held for one resource.
type Collection []Record

// File is a staged upload for a file field. Only multipart resources carry files.
type File struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}

func (f File) String() string {
	return f.Name
}

// Clone returns a deep copy so callers can hand out records without aliasing.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	dst := make(Record, len(r))
	for k, v := range r {
		dst[k] = cloneValue(v)
	}
	return dst
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case Record:
		return val.Clone()
	case map[string]any:
		return map[string]any(Record(val).Clone())
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case File:
		data := make([]byte, len(val.Data))
		copy(data, val.Data)
		val.Data = data
		return val
	default:
		return v
	}
}

func (c Collection) Clone() Collection {
	out := make(Collection, len(c))
	for i, r := range c {
		out[i] = r.Clone()
	}
	return out
}

// IDOf renders the value under idField as a string. Backends send ids as strings or
// numbers; both must address the same row.
func (r Record) IDOf(idField string) (string, bool) {
	v, ok := r[idField]
	if !ok || v == nil {
		return "", false
	}
	return FormatID(v), true
}

func FormatID(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		if id == math.Trunc(id) && math.Abs(id) < 1e15 {
			return strconv.FormatInt(int64(id), 10)
		}
		return strconv.FormatFloat(id, 'f', -1, 64)
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	default:
		return fmt.Sprintf("%v", id)
	}
}

// IndexOf returns the position of the record with the given id, or -1.
func (c Collection) IndexOf(idField, id string) int {
	for i, r := range c {
		if rid, ok := r.IDOf(idField); ok && rid == id {
			return i
		}
	}
	return -1
}

// Without returns a new collection minus the record with the given id.
func (c Collection) Without(idField, id string) Collection {
	out := make(Collection, 0, len(c))
	for _, r := range c {
		if rid, ok := r.IDOf(idField); ok && rid == id {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Upsert returns a new collection with rec replacing the row sharing its id, or
// prepended when no such row exists (newest first, as the list screens show them).
func (c Collection) Upsert(idField string, rec Record) Collection {
	id, ok := rec.IDOf(idField)
	if ok {
		if i := c.IndexOf(idField, id); i >= 0 {
			out := make(Collection, len(c))
			copy(out, c)
			out[i] = rec
			return out
		}
	}
	out := make(Collection, 0, len(c)+1)
	out = append(out, rec)
	return append(out, c...)
}

// Equal reports strict equality of two field values after normalisation. Numbers
// compare by value, timestamps by instant.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	}
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}
