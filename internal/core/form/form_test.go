package form

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kleanup/dashboard/internal/core/record"
	"github.com/kleanup/dashboard/internal/core/validation"
)

var userSchema = record.Schema{
	Fields: []record.Field{
		{Name: "email", Kind: record.KindString, Required: true},
		{Name: "first_name", Kind: record.KindString},
		{Name: "is_admin", Kind: record.KindBoolean},
		{Name: "age", Kind: record.KindNumber},
	},
}

type backendErr struct {
	msg    string
	fields map[string]string
}

func (e *backendErr) Error() string                  { return "backend: " + e.msg }
func (e *backendErr) UserMessage() string            { return e.msg }
func (e *backendErr) FieldErrors() map[string]string { return e.fields }

func newManager() *Manager {
	return NewManager("users", userSchema, validation.NewValidator())
}

func TestManager_CreateLifecycle(t *testing.T) {
	m := newManager()
	assert.Equal(t, Idle, m.State(NewKey))

	d, err := m.Open()
	require.NoError(t, err)
	assert.Equal(t, Editing, d.State)
	assert.Equal(t, "", d.Values["email"])
	assert.False(t, d.Dirty)

	_, err = m.Set(NewKey, "email", "ada@kleanup.test")
	require.NoError(t, err)
	d, err = m.Set(NewKey, "age", "36")
	require.NoError(t, err)
	assert.Equal(t, 36.0, d.Values["age"])
	assert.True(t, d.Dirty)

	var got Submission
	rec, err := m.Submit(context.Background(), NewKey, func(_ context.Context, s Submission) (record.Record, error) {
		got = s
		return record.Record{"id": 7.0, "email": "ada@kleanup.test"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7.0, rec["id"])
	assert.True(t, got.Create)
	assert.Equal(t, "ada@kleanup.test", got.Payload["email"])
	assert.NotContains(t, got.Payload, "id")
	assert.Equal(t, Idle, m.State(NewKey), "draft is discarded after success")
}

func TestManager_ValidationBlocksNetwork(t *testing.T) {
	m := newManager()
	_, err := m.Open()
	require.NoError(t, err)

	called := false
	_, err = m.Submit(context.Background(), NewKey, func(context.Context, Submission) (record.Record, error) {
		called = true
		return nil, nil
	})
	require.Error(t, err)
	assert.True(t, validation.IsValidationError(err))
	assert.False(t, called)

	d, ok := m.Draft(NewKey)
	require.True(t, ok)
	assert.Equal(t, Editing, d.State)
	assert.Equal(t, "is required", d.Errors["email"])
}

func TestManager_ServerFailureKeepsDraft(t *testing.T) {
	m := newManager()
	_, err := m.Open()
	require.NoError(t, err)
	_, err = m.Set(NewKey, "email", "taken@kleanup.test")
	require.NoError(t, err)

	_, err = m.Submit(context.Background(), NewKey, func(context.Context, Submission) (record.Record, error) {
		return nil, &backendErr{msg: "Email already exists"}
	})
	require.Error(t, err)

	d, ok := m.Draft(NewKey)
	require.True(t, ok)
	assert.Equal(t, Editing, d.State)
	assert.Equal(t, "Email already exists", d.Message)
	assert.Equal(t, "taken@kleanup.test", d.Values["email"], "input survives a failed submit")
}

func TestManager_EditSendsOnlyChanges(t *testing.T) {
	m := newManager()
	rec := record.Record{"id": 3.0, "email": "a@kleanup.test", "first_name": "Ada", "is_admin": false}

	d, err := m.OpenEdit(rec)
	require.NoError(t, err)
	assert.Equal(t, "3", d.Key)
	assert.False(t, d.Dirty)

	_, err = m.Submit(context.Background(), "3", func(context.Context, Submission) (record.Record, error) {
		t.Fatal("nothing changed, no call expected")
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrNoChanges)
	assert.Equal(t, Editing, m.State("3"))

	_, err = m.Set("3", "is_admin", "true")
	require.NoError(t, err)

	var got Submission
	_, err = m.Submit(context.Background(), "3", func(_ context.Context, s Submission) (record.Record, error) {
		got = s
		return record.Record{"id": 3.0, "is_admin": true}, nil
	})
	require.NoError(t, err)
	assert.False(t, got.Create)
	assert.Equal(t, "3", got.RecordID)
	assert.Equal(t, record.Record{"is_admin": true}, got.Payload)
}

func TestManager_CancelDoesNotTouchRecord(t *testing.T) {
	m := newManager()
	rec := record.Record{"id": 3.0, "email": "a@kleanup.test"}

	_, err := m.OpenEdit(rec)
	require.NoError(t, err)
	_, err = m.Set("3", "email", "b@kleanup.test")
	require.NoError(t, err)

	require.NoError(t, m.Cancel("3"))
	assert.Equal(t, "a@kleanup.test", rec["email"])
	assert.Equal(t, Idle, m.State("3"))
	assert.ErrorIs(t, m.Cancel("3"), ErrNoDraft)
}

func TestManager_InvalidValue(t *testing.T) {
	m := newManager()
	_, err := m.Open()
	require.NoError(t, err)

	d, err := m.Set(NewKey, "age", "old")
	assert.ErrorIs(t, err, record.ErrInvalidValue)
	assert.Contains(t, d.Errors["age"], "must be a number")

	_, err = m.Set(NewKey, "nickname", "x")
	assert.ErrorIs(t, err, record.ErrUnknownField)

	_, err = m.Set(NewKey, "id", "x")
	assert.ErrorIs(t, err, ErrReadOnlyField)

	_, err = m.SetFile(NewKey, "email", record.File{Name: "a.png"})
	assert.ErrorIs(t, err, record.ErrInvalidValue)
}

func TestManager_SingleSubmissionPerDraft(t *testing.T) {
	m := newManager()
	_, err := m.OpenEdit(record.Record{"id": "u1", "email": "a@kleanup.test"})
	require.NoError(t, err)
	_, err = m.Set("u1", "first_name", "Ada")
	require.NoError(t, err)

	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := m.Submit(context.Background(), "u1", func(context.Context, Submission) (record.Record, error) {
			calls.Add(1)
			close(started)
			<-release
			return record.Record{"id": "u1"}, nil
		})
		assert.NoError(t, err)
	}()

	<-started
	assert.Equal(t, Submitting, m.State("u1"))

	_, err = m.Submit(context.Background(), "u1", func(context.Context, Submission) (record.Record, error) {
		calls.Add(1)
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrBusy)
	_, err = m.Set("u1", "first_name", "Grace")
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, m.Cancel("u1"), ErrBusy)

	_, err = m.Open()
	assert.NoError(t, err, "other drafts stay usable while one submits")

	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, Idle, m.State("u1"))
}

func TestManager_PanicRestoresEditing(t *testing.T) {
	m := newManager()
	_, err := m.Open()
	require.NoError(t, err)
	_, err = m.Set(NewKey, "email", "a@kleanup.test")
	require.NoError(t, err)

	assert.Panics(t, func() {
		_, _ = m.Submit(context.Background(), NewKey, func(context.Context, Submission) (record.Record, error) {
			panic("boom")
		})
	})
	assert.Equal(t, Editing, m.State(NewKey))
}

func TestManager_GenericErrorMessage(t *testing.T) {
	m := newManager()
	_, err := m.OpenEdit(record.Record{"id": 1.0, "email": "a@kleanup.test"})
	require.NoError(t, err)
	_, err = m.Set("1", "first_name", "Ada")
	require.NoError(t, err)

	_, err = m.Submit(context.Background(), "1", func(context.Context, Submission) (record.Record, error) {
		return nil, errors.New("dial tcp: refused")
	})
	require.Error(t, err)
	d, _ := m.Draft("1")
	assert.Equal(t, "dial tcp: refused", d.Message)
}

func TestDeleteFlow(t *testing.T) {
	f := NewDeleteFlow()
	ctx := context.Background()

	err := f.Confirm(ctx, "5", func(context.Context, string) error { return nil })
	assert.ErrorIs(t, err, ErrNotConfirming, "confirmation is required")

	require.NoError(t, f.Request("5"))
	assert.Equal(t, DeleteConfirming, f.State("5"))
	require.NoError(t, f.Abort("5"))
	assert.Equal(t, DeleteIdle, f.State("5"))

	require.NoError(t, f.Request("5"))
	var seen string
	err = f.Confirm(ctx, "5", func(_ context.Context, id string) error {
		seen = id
		assert.Equal(t, DeleteDeleting, f.State("5"))
		assert.ErrorIs(t, f.Abort("5"), ErrBusy)
		assert.ErrorIs(t, f.Request("5"), ErrBusy)
		return errors.New("server error")
	})
	assert.Error(t, err)
	assert.Equal(t, "5", seen)
	assert.Equal(t, DeleteIdle, f.State("5"), "always back to idle")
}

func TestDeleteFlow_Reset(t *testing.T) {
	f := NewDeleteFlow()
	require.NoError(t, f.Request("1"))
	require.NoError(t, f.Request("2"))
	assert.Len(t, f.Pending(), 2)

	f.Reset()
	assert.Empty(t, f.Pending())
}
