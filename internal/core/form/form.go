// Package form tracks create and edit drafts for one resource and runs their
// submission lifecycle.
package form

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kleanup/dashboard/internal/core/record"
	"github.com/kleanup/dashboard/internal/core/validation"
)

// NewKey is the draft key of the create form.
const NewKey = "new"

type State string

const (
	Idle       State = "idle"
	Editing    State = "editing"
	Submitting State = "submitting"
)

var (
	ErrBusy          = errors.New("a submission is already in progress")
	ErrNoDraft       = errors.New("no open draft")
	ErrNoChanges     = errors.New("no changes to save")
	ErrReadOnlyField = errors.New("field cannot be edited")
)

// Draft is a snapshot of one open form.
type Draft struct {
	Key      string        `json:"key"`
	RecordID string        `json:"record_id,omitempty"`
	State    State         `json:"state"`
	Values   record.Record `json:"values"`
	// Errors holds field-level messages from local validation or the backend.
	Errors  map[string]string `json:"errors,omitempty"`
	Message string            `json:"message,omitempty"`
	Dirty   bool              `json:"dirty"`
}

func (d Draft) IsNew() bool {
	return d.Key == NewKey
}

// Submission is what a SubmitFunc sends to the backend.
type Submission struct {
	Create   bool
	RecordID string
	// Payload holds every value for a create and only the changed fields for an edit.
	Payload record.Record
}

// SubmitFunc performs the network call of a submission and returns the record the
// backend confirmed.
type SubmitFunc func(ctx context.Context, s Submission) (record.Record, error)

// describedError is implemented by backend errors that carry a user message and
// per-field detail.
type describedError interface {
	error
	UserMessage() string
	FieldErrors() map[string]string
}

type draft struct {
	recordID string
	state    State
	values   record.Record
	original record.Record
	errors   map[string]string
	message  string
}

func (d *draft) changes() record.Record {
	out := record.Record{}
	for k, v := range d.values {
		if d.original == nil {
			if v != nil {
				out[k] = v
			}
			continue
		}
		if old, ok := d.original[k]; !ok || !record.Equal(old, v) {
			out[k] = v
		}
	}
	return out
}

func (d *draft) snapshot(key string) Draft {
	s := Draft{
		Key:      key,
		RecordID: d.recordID,
		State:    d.state,
		Values:   d.values.Clone(),
		Message:  d.message,
		Dirty:    len(d.changes()) > 0,
	}
	if d.original == nil {
		s.Dirty = !d.isBlank()
	}
	if len(d.errors) > 0 {
		s.Errors = make(map[string]string, len(d.errors))
		for k, v := range d.errors {
			s.Errors[k] = v
		}
	}
	return s
}

func (d *draft) isBlank() bool {
	for _, v := range d.values {
		switch val := v.(type) {
		case nil:
		case string:
			if val != "" {
				return false
			}
		case bool:
			if val {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Manager owns the drafts of one resource. Drafts are keyed by record id, or
// NewKey for the create form, and are never shared between keys.
type Manager struct {
	mu        sync.Mutex
	name      string
	schema    record.Schema
	validator *validation.Validator
	drafts    map[string]*draft
}

func NewManager(name string, schema record.Schema, v *validation.Validator) *Manager {
	if v == nil {
		v = validation.NewValidator()
	}
	return &Manager{
		name:      name,
		schema:    schema,
		validator: v,
		drafts:    make(map[string]*draft),
	}
}

// Open starts the create form with empty defaults. An open create draft is
// returned as is.
func (m *Manager) Open() (Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok := m.drafts[NewKey]; ok {
		if d.state == Submitting {
			return Draft{}, ErrBusy
		}
		return d.snapshot(NewKey), nil
	}

	values := make(record.Record, len(m.schema.Fields))
	for _, f := range m.schema.Fields {
		switch f.Kind {
		case record.KindString:
			values[f.Name] = ""
		case record.KindBoolean:
			values[f.Name] = false
		default:
			values[f.Name] = nil
		}
	}
	d := &draft{state: Editing, values: values}
	m.drafts[NewKey] = d
	return d.snapshot(NewKey), nil
}

// OpenEdit starts editing rec with a copy of its values. Reopening a record that
// is already being edited keeps the staged input.
func (m *Manager) OpenEdit(rec record.Record) (Draft, error) {
	id, ok := rec.IDOf(m.schema.ID())
	if !ok {
		return Draft{}, fmt.Errorf("%w: record has no %s", record.ErrInvalidValue, m.schema.ID())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok := m.drafts[id]; ok {
		if d.state == Submitting {
			return Draft{}, ErrBusy
		}
		return d.snapshot(id), nil
	}

	d := &draft{
		recordID: id,
		state:    Editing,
		values:   rec.Clone(),
		original: rec.Clone(),
	}
	m.drafts[id] = d
	return d.snapshot(id), nil
}

func (m *Manager) editable(key string) (*draft, error) {
	d, ok := m.drafts[key]
	if !ok {
		return nil, ErrNoDraft
	}
	if d.state == Submitting {
		return nil, ErrBusy
	}
	return d, nil
}

// Set coerces raw into field's kind and stages it. A value that does not parse
// is reported on the draft and returned as an error.
func (m *Manager) Set(key, field string, raw any) (Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, err := m.editable(key)
	if err != nil {
		return Draft{}, err
	}
	if field == m.schema.ID() {
		return Draft{}, fmt.Errorf("%w: %s", ErrReadOnlyField, field)
	}

	v, err := m.schema.Coerce(field, raw)
	if err != nil {
		if errors.Is(err, record.ErrInvalidValue) {
			if d.errors == nil {
				d.errors = map[string]string{}
			}
			d.errors[field] = err.Error()
		}
		return d.snapshot(key), err
	}

	d.values[field] = v
	delete(d.errors, field)
	return d.snapshot(key), nil
}

// SetFile stages an upload for a file field.
func (m *Manager) SetFile(key, field string, f record.File) (Draft, error) {
	if m.schema.KindOf(field) != record.KindFile {
		return Draft{}, fmt.Errorf("%w: %s is not a file field", record.ErrInvalidValue, field)
	}
	return m.Set(key, field, f)
}

// Cancel discards the draft without any network call.
func (m *Manager) Cancel(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.editable(key); err != nil {
		return err
	}
	delete(m.drafts, key)
	return nil
}

func (m *Manager) Draft(key string) (Draft, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[key]
	if !ok {
		return Draft{}, false
	}
	return d.snapshot(key), true
}

// State is Idle for keys without a draft.
func (m *Manager) State(key string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.drafts[key]; ok {
		return d.state
	}
	return Idle
}

// Drafts lists every open draft ordered by key.
func (m *Manager) Drafts() []Draft {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.drafts))
	for k := range m.drafts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Draft, 0, len(keys))
	for _, k := range keys {
		out = append(out, m.drafts[k].snapshot(k))
	}
	return out
}

// Reset discards every draft that is not submitting.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, d := range m.drafts {
		if d.state != Submitting {
			delete(m.drafts, k)
		}
	}
}

// Submit validates the draft and hands the payload to fn. The lock is not held
// during fn, so other drafts stay usable. On success the draft is discarded and
// the confirmed record returned; on failure the draft is kept for correction.
func (m *Manager) Submit(ctx context.Context, key string, fn SubmitFunc) (record.Record, error) {
	m.mu.Lock()
	d, err := m.editable(key)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}

	if err := m.validator.Validate(m.name, m.schema, d.values); err != nil {
		if ve := validation.GetValidationErrors(err); ve != nil {
			d.errors = ve.Fields()
			d.message = ""
		}
		m.mu.Unlock()
		return nil, err
	}

	sub := Submission{Create: d.original == nil, RecordID: d.recordID, Payload: d.changes()}
	if !sub.Create && len(sub.Payload) == 0 {
		m.mu.Unlock()
		return nil, ErrNoChanges
	}
	d.state = Submitting
	d.errors = nil
	d.message = ""
	m.mu.Unlock()

	done := false
	defer func() {
		if !done {
			m.mu.Lock()
			d.state = Editing
			m.mu.Unlock()
		}
	}()

	rec, err := fn(ctx, sub)

	m.mu.Lock()
	defer m.mu.Unlock()
	done = true
	if err != nil {
		d.state = Editing
		var de describedError
		if errors.As(err, &de) {
			d.message = de.UserMessage()
			d.errors = de.FieldErrors()
		} else {
			d.message = err.Error()
		}
		return nil, err
	}
	delete(m.drafts, key)
	return rec, nil
}
