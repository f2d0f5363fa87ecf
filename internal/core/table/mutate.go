package table

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/kleanup/dashboard/internal/core/audit"
	"github.com/kleanup/dashboard/internal/core/form"
	"github.com/kleanup/dashboard/internal/core/notify"
	"github.com/kleanup/dashboard/internal/core/record"
	"github.com/kleanup/dashboard/internal/core/resource"
)

func (c *Controller) find(id string) (record.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.collection.IndexOf(c.schema.ID(), id)
	if i < 0 {
		return nil, false
	}
	return c.collection[i].Clone(), true
}

// claim marks id as having a mutation in flight and returns its release. A
// record has at most one submission, delete or action running at a time.
func (c *Controller) claim(id string) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.acting[id] {
		return nil, form.ErrBusy
	}
	c.acting[id] = true
	return func() {
		c.mu.Lock()
		delete(c.acting, id)
		c.mu.Unlock()
	}, nil
}

// Fetch reads one record from the backend and updates its row in a loaded
// table. A record the backend no longer has is reported like any other failure
// and dropped by the refresh that follows.
func (c *Controller) Fetch(ctx context.Context, id string) (record.Record, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}

	bctx, cancel := c.bind(ctx)
	defer cancel()

	rec, err := c.backend.Get(bctx, id)
	if err != nil {
		c.failed(ctx, "get", id, err)
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}

	c.mu.Lock()
	if !c.closed && c.loaded {
		c.collection = c.collection.Upsert(c.schema.ID(), rec)
	}
	c.mu.Unlock()
	return rec.Clone(), nil
}

func (c *Controller) OpenCreate() (form.Draft, error) {
	if c.isClosed() {
		return form.Draft{}, ErrClosed
	}
	return c.forms.Open()
}

// OpenEdit starts editing the record with id as currently held in the table.
func (c *Controller) OpenEdit(id string) (form.Draft, error) {
	if c.isClosed() {
		return form.Draft{}, ErrClosed
	}
	rec, ok := c.find(id)
	if !ok {
		return form.Draft{}, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if c.deletes.State(id) == form.DeleteDeleting {
		return form.Draft{}, form.ErrBusy
	}
	return c.forms.OpenEdit(rec)
}

func (c *Controller) Draft(key string) (form.Draft, bool) {
	return c.forms.Draft(key)
}

func (c *Controller) SetDraftField(key, field string, raw any) (form.Draft, error) {
	return c.forms.Set(key, field, raw)
}

// SetDraftFields stages several fields in name order and stops at the first
// failure.
func (c *Controller) SetDraftFields(key string, fields map[string]any) (form.Draft, error) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	d, ok := c.forms.Draft(key)
	if !ok {
		return form.Draft{}, form.ErrNoDraft
	}
	for _, name := range names {
		var err error
		d, err = c.forms.Set(key, name, fields[name])
		if err != nil {
			return d, err
		}
	}
	return d, nil
}

func (c *Controller) SetDraftFile(key, field string, f record.File) (form.Draft, error) {
	return c.forms.SetFile(key, field, f)
}

func (c *Controller) CancelDraft(key string) error {
	return c.forms.Cancel(key)
}

// SubmitDraft validates and sends the draft under key. On success the table holds
// the record the backend returned; on failure the draft keeps the user's input
// together with the backend message.
func (c *Controller) SubmitDraft(ctx context.Context, key string) (record.Record, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	d, ok := c.forms.Draft(key)
	if !ok {
		return nil, form.ErrNoDraft
	}

	action := audit.ActionCreate
	var old record.Record
	if !d.IsNew() {
		action = audit.ActionUpdate
		release, err := c.claim(d.RecordID)
		if err != nil {
			return nil, err
		}
		defer release()
		old, _ = c.find(d.RecordID)
	}

	bctx, cancel := c.bind(ctx)
	defer cancel()

	var sent form.Submission
	rec, err := c.forms.Submit(bctx, key, func(ctx context.Context, s form.Submission) (record.Record, error) {
		sent = s
		if s.Create {
			return c.backend.Create(ctx, s.Payload)
		}
		return c.backend.Update(ctx, s.RecordID, s.Payload)
	})

	switch {
	case err == nil:
	case errors.Is(err, form.ErrNoChanges):
		c.notifier.Notify(notify.LevelInfo, c.res.Name, "No changes to save")
		return nil, err
	case sent.Payload == nil:
		// Local validation or a busy draft; nothing reached the backend.
		return nil, err
	default:
		c.record(ctx, action, sent.RecordID, old, sent.Payload, err)
		c.failed(ctx, action, sent.RecordID, err)
		return nil, err
	}

	id := sent.RecordID
	if rec != nil {
		if rid, ok := rec.IDOf(c.schema.ID()); ok {
			id = rid
		}
	}
	c.record(ctx, action, id, old, sent.Payload, nil)

	if rec == nil {
		c.notifier.Notify(notify.LevelSuccess, c.res.Name, successMessage(action))
		c.refreshAfter(ctx)
		return nil, nil
	}

	c.mu.Lock()
	if !c.closed {
		if sent.Create {
			c.collection = c.collection.Without(c.schema.ID(), id)
		}
		c.collection = c.collection.Upsert(c.schema.ID(), rec)
	}
	c.mu.Unlock()
	c.notifier.Notify(notify.LevelSuccess, c.res.Name, successMessage(action))
	return rec.Clone(), nil
}

// RequestDelete moves id to Confirming. Nothing is sent until ConfirmDelete.
func (c *Controller) RequestDelete(id string) error {
	if c.isClosed() {
		return ErrClosed
	}
	if _, ok := c.find(id); !ok {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if c.forms.State(id) == form.Submitting {
		return form.ErrBusy
	}
	return c.deletes.Request(id)
}

func (c *Controller) AbortDelete(id string) error {
	return c.deletes.Abort(id)
}

// ConfirmDelete removes id on the backend. The row leaves the table only after
// the backend confirmed; on failure the table is unchanged.
func (c *Controller) ConfirmDelete(ctx context.Context, id string) error {
	if c.isClosed() {
		return ErrClosed
	}
	release, err := c.claim(id)
	if err != nil {
		return err
	}
	defer release()
	old, _ := c.find(id)

	bctx, cancel := c.bind(ctx)
	defer cancel()

	sent := false
	err = c.deletes.Confirm(bctx, id, func(ctx context.Context, id string) error {
		sent = true
		return c.backend.Remove(ctx, id)
	})
	if !sent {
		return err
	}
	c.record(ctx, audit.ActionDelete, id, old, nil, err)
	if err != nil {
		c.failed(ctx, audit.ActionDelete, id, err)
		return err
	}

	c.mu.Lock()
	if !c.closed {
		c.collection = c.collection.Without(c.schema.ID(), id)
	}
	c.mu.Unlock()
	_ = c.forms.Cancel(id)
	c.notifier.Notify(notify.LevelSuccess, c.res.Name, successMessage(audit.ActionDelete))
	return nil
}

// RunAction applies the catalog action name to id as a partial update.
func (c *Controller) RunAction(ctx context.Context, id, name string) (record.Record, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	action, err := c.res.Action(name)
	if err != nil {
		return nil, err
	}
	old, ok := c.find(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}

	payload := make(record.Record, len(action.Set))
	for field, raw := range action.Set {
		v, err := c.schema.Coerce(field, raw)
		if err != nil {
			return nil, err
		}
		payload[field] = v
	}

	if err := c.validator.ValidatePartial(c.res.Name, c.schema, payload); err != nil {
		return nil, err
	}

	release, err := c.claim(id)
	if err != nil {
		return nil, err
	}
	defer release()

	bctx, cancel := c.bind(ctx)
	defer cancel()

	rec, err := c.backend.Update(bctx, id, payload)
	c.record(ctx, audit.ActionUpdate, id, old, payload, err)
	if err != nil {
		c.failed(ctx, action.Name, id, err)
		return nil, err
	}

	message := fmt.Sprintf("%s succeeded", action.Label)
	if rec == nil {
		c.notifier.Notify(notify.LevelSuccess, c.res.Name, message)
		c.refreshAfter(ctx)
		return nil, nil
	}
	c.mu.Lock()
	if !c.closed {
		c.collection = c.collection.Upsert(c.schema.ID(), rec)
	}
	c.mu.Unlock()
	c.notifier.Notify(notify.LevelSuccess, c.res.Name, message)
	return rec.Clone(), nil
}

// failed reports a backend failure: it is logged, shown to the user, and handled
// by kind. A missing record is dropped by re-fetching; a rejected token ends the
// session.
func (c *Controller) failed(ctx context.Context, op, id string, err error) {
	if errors.Is(err, resource.ErrCanceled) && c.isClosed() {
		return
	}

	zap.S().Warnw("Backend operation failed",
		"resource", c.res.Name,
		"op", op,
		"record_id", id,
		"kind", resource.KindOf(err),
		"error", err,
	)
	c.notifier.Notify(notify.LevelError, c.res.Name, userMessage(err))

	switch {
	case errors.Is(err, resource.ErrUnauthorized):
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
	case errors.Is(err, resource.ErrNotFound) && id != "":
		c.refreshAfter(ctx)
	}
}

// refreshAfter re-fetches after a mutation. Its failure is already reported by
// Refresh itself.
func (c *Controller) refreshAfter(ctx context.Context) {
	if err := c.Refresh(ctx); err != nil && !errors.Is(err, ErrStale) && !errors.Is(err, ErrClosed) {
		zap.S().Debugw("Refresh after mutation failed", "resource", c.res.Name, "error", err)
	}
}

func (c *Controller) record(ctx context.Context, action, id string, old, payload record.Record, err error) {
	e := &audit.Entry{
		Resource: c.res.Name,
		RecordID: id,
		Action:   action,
		OldData:  auditData(old),
		NewData:  auditData(payload),
		Result:   audit.ResultSuccess,
	}
	if err != nil {
		e.Result = audit.ResultFailure
		e.Message = userMessage(err)
	}
	ActorFrom(ctx).apply(e)
	c.recorder.Record(ctx, e)
}

// auditData replaces file contents with their description.
func auditData(r record.Record) map[string]any {
	if r == nil {
		return nil
	}
	out := make(map[string]any, len(r))
	for k, v := range r {
		if f, ok := v.(record.File); ok {
			out[k] = f.String()
			continue
		}
		out[k] = v
	}
	return out
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func userMessage(err error) string {
	return resource.Message(err)
}

func successMessage(action string) string {
	switch action {
	case audit.ActionCreate:
		return "Record created successfully"
	case audit.ActionUpdate:
		return "Record updated successfully"
	case audit.ActionDelete:
		return "Record deleted successfully"
	}
	return "Done"
}
