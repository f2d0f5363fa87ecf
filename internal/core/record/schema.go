package record

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

type FieldKind string

const (
	KindString    FieldKind = "string"
	KindNumber    FieldKind = "number"
	KindBoolean   FieldKind = "boolean"
	KindTimestamp FieldKind = "timestamp"
	KindReference FieldKind = "reference"
	KindFile      FieldKind = "file"
)

func (k FieldKind) Valid() bool {
	switch k {
	case KindString, KindNumber, KindBoolean, KindTimestamp, KindReference, KindFile:
		return true
	}
	return false
}

type Field struct {
	Name     string    `json:"name" yaml:"name"`
	Kind     FieldKind `json:"kind" yaml:"kind"`
	Required bool      `json:"required,omitempty" yaml:"required"`
	// Ref names the resource a reference field points at.
	Ref string `json:"ref,omitempty" yaml:"ref"`
}

// Schema is the field descriptor of one resource. Fields not listed are carried
// through untouched.
type Schema struct {
	IDField string  `json:"id_field"`
	Fields  []Field `json:"fields"`
}

func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// KindOf returns the declared kind of name, or "" when the schema does not list it.
func (s Schema) KindOf(name string) FieldKind {
	f, ok := s.Field(name)
	if !ok {
		return ""
	}
	return f.Kind
}

func (s Schema) ID() string {
	if s.IDField == "" {
		return "id"
	}
	return s.IDField
}

// Normalize converts a record decoded from JSON into kind-typed values. Values that
// do not parse are left as sent so nothing the backend returned is lost.
func (s Schema) Normalize(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
		f, ok := s.Field(k)
		if !ok || v == nil {
			continue
		}
		switch f.Kind {
		case KindTimestamp:
			if str, ok := v.(string); ok {
				if t, err := ParseTime(str); err == nil {
					out[k] = t
				}
			}
		case KindNumber:
			switch n := v.(type) {
			case json.Number:
				if fv, err := n.Float64(); err == nil {
					out[k] = fv
				}
			case string:
				if fv, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
					out[k] = fv
				}
			}
		}
	}
	return out
}

// NormalizeAll normalises every record of c into a fresh collection.
func (s Schema) NormalizeAll(c Collection) Collection {
	out := make(Collection, len(c))
	for i, r := range c {
		out[i] = s.Normalize(r)
	}
	return out
}

// Coerce converts raw user input for field into the field's kind. Strings coming from
// form inputs and query parameters are parsed; already-typed values pass through.
// An empty string clears the field (nil).
func (s Schema) Coerce(field string, raw any) (any, error) {
	f, ok := s.Field(field)
	if !ok {
		if field == s.ID() {
			return raw, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}

	str, isString := raw.(string)
	if isString && strings.TrimSpace(str) == "" && f.Kind != KindString {
		return nil, nil
	}
	if raw == nil {
		return nil, nil
	}

	switch f.Kind {
	case KindString:
		if isString {
			return str, nil
		}
		return fmt.Sprintf("%v", raw), nil
	case KindReference:
		return FormatID(raw), nil
	case KindNumber:
		if isString {
			n, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %s must be a number", ErrInvalidValue, field)
			}
			return n, nil
		}
		if n, ok := toFloat(raw); ok {
			return n, nil
		}
		return nil, fmt.Errorf("%w: %s must be a number", ErrInvalidValue, field)
	case KindBoolean:
		if isString {
			b, err := strconv.ParseBool(strings.TrimSpace(str))
			if err != nil {
				return nil, fmt.Errorf("%w: %s must be true or false", ErrInvalidValue, field)
			}
			return b, nil
		}
		if b, ok := raw.(bool); ok {
			return b, nil
		}
		return nil, fmt.Errorf("%w: %s must be true or false", ErrInvalidValue, field)
	case KindTimestamp:
		if isString {
			t, err := ParseTime(str)
			if err != nil {
				return nil, fmt.Errorf("%w: %s must be a date", ErrInvalidValue, field)
			}
			return t, nil
		}
		if t, ok := raw.(time.Time); ok {
			return t, nil
		}
		return nil, fmt.Errorf("%w: %s must be a date", ErrInvalidValue, field)
	case KindFile:
		if file, ok := raw.(File); ok {
			return file, nil
		}
		return nil, fmt.Errorf("%w: %s must be an uploaded file", ErrInvalidValue, field)
	}
	return raw, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime accepts the timestamp shapes the backend and date pickers produce.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// Text renders every field value of r, in key order, as one string. It is the
// representation free-text search matches against.
func (r Record) Text() string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(ValueText(r[k]))
	}
	return b.String()
}

// ValueText renders a single field value for display and search.
func ValueText(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case time.Time:
		return val.Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case File:
		return val.Name
	case map[string]any, []any, Record:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	default:
		return fmt.Sprintf("%v", val)
	}
}
