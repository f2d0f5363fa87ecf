// Package table is the page-level controller of one resource screen. It owns the
// collection fetched from the backend together with the query, paging, draft and
// delete state derived from it.
package table

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kleanup/dashboard/internal/core/audit"
	"github.com/kleanup/dashboard/internal/core/catalog"
	"github.com/kleanup/dashboard/internal/core/form"
	"github.com/kleanup/dashboard/internal/core/listing"
	"github.com/kleanup/dashboard/internal/core/notify"
	"github.com/kleanup/dashboard/internal/core/record"
	"github.com/kleanup/dashboard/internal/core/validation"
)

var (
	ErrClosed         = errors.New("table is closed")
	ErrStale          = errors.New("refresh superseded by a newer one")
	ErrRecordNotFound = errors.New("record not in table")
)

// Backend is the subset of the resource client a table needs.
type Backend interface {
	List(ctx context.Context) (record.Collection, error)
	Get(ctx context.Context, id string) (record.Record, error)
	Create(ctx context.Context, payload record.Record) (record.Record, error)
	Update(ctx context.Context, id string, partial record.Record) (record.Record, error)
	Remove(ctx context.Context, id string) error
}

type Options struct {
	PageSize  int
	Sorter    *listing.Sorter
	Validator *validation.Validator
	Notifier  notify.Notifier
	Recorder  audit.Recorder
	// OnUnauthorized runs when the backend rejects the session token. It is
	// called without any table lock held.
	OnUnauthorized func()
}

// Snapshot is the rendered state of a table.
type Snapshot struct {
	Resource  string                      `json:"resource"`
	Page      listing.Page[record.Record] `json:"page"`
	Query     listing.Query               `json:"query"`
	Loaded    bool                        `json:"loaded"`
	Loading   bool                        `json:"loading"`
	LoadedAt  *time.Time                  `json:"loaded_at,omitempty"`
	Drafts    []form.Draft                `json:"drafts"`
	Deletes   map[string]form.DeleteState `json:"deletes"`
	Acting    []string                    `json:"acting,omitempty"`
	LastError string                      `json:"last_error,omitempty"`

	// Refs maps each reference field to the labels of the records it can
	// point at, keyed by id.
	Refs map[string]map[string]string `json:"refs,omitempty"`
}

type Controller struct {
	res       *catalog.Resource
	schema    record.Schema
	backend   Backend
	sorter    *listing.Sorter
	validator *validation.Validator
	forms     *form.Manager
	deletes   *form.DeleteFlow

	notifier       notify.Notifier
	recorder       audit.Recorder
	onUnauthorized func()

	// life is cancelled by Close; every backend call runs under it.
	life context.Context
	stop context.CancelFunc

	mu            sync.Mutex
	collection    record.Collection
	loaded        bool
	loadedAt      time.Time
	query         listing.Query
	pager         *listing.Paginator
	seq           uint64
	cancelRefresh context.CancelFunc
	acting        map[string]bool
	lastErr       string
	closed        bool
}

func New(res *catalog.Resource, backend Backend, opts Options) *Controller {
	size := res.PageSize
	if size <= 0 {
		size = opts.PageSize
	}
	if opts.Sorter == nil {
		opts.Sorter = listing.NewSorter("en")
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NewHub(0)
	}
	if opts.Recorder == nil {
		opts.Recorder = audit.NopRecorder{}
	}
	if opts.Validator == nil {
		opts.Validator = validation.NewValidator()
	}

	var q listing.Query
	if res.DefaultSort != nil {
		q.Sort = listing.SortState{Field: res.DefaultSort.Field, Direction: res.DefaultSort.Direction}
	}

	life, stop := context.WithCancel(context.Background())
	return &Controller{
		res:            res,
		schema:         res.Schema(),
		backend:        backend,
		sorter:         opts.Sorter,
		validator:      opts.Validator,
		forms:          form.NewManager(res.Name, res.Schema(), opts.Validator),
		deletes:        form.NewDeleteFlow(),
		notifier:       opts.Notifier,
		recorder:       opts.Recorder,
		onUnauthorized: opts.OnUnauthorized,
		life:           life,
		stop:           stop,
		query:          q,
		pager:          listing.NewPaginator(size),
		acting:         make(map[string]bool),
	}
}

func (c *Controller) Resource() *catalog.Resource {
	return c.res
}

// bind derives a context that ends with either ctx or the table.
func (c *Controller) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	bound, cancel := context.WithCancel(ctx)
	stopAfter := context.AfterFunc(c.life, cancel)
	return bound, func() {
		stopAfter()
		cancel()
	}
}

// Refresh fetches the collection. Starting a refresh cancels the one in flight,
// and a response that arrives after a newer refresh started is dropped with
// ErrStale.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.cancelRefresh != nil {
		c.cancelRefresh()
	}
	c.seq++
	seq := c.seq
	rctx, cancel := c.bind(ctx)
	c.cancelRefresh = cancel
	c.mu.Unlock()

	rows, err := c.backend.List(rctx)
	cancel()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if seq != c.seq {
		c.mu.Unlock()
		return ErrStale
	}
	c.cancelRefresh = nil
	if err != nil {
		c.lastErr = userMessage(err)
		c.mu.Unlock()
		c.failed(ctx, "list", "", err)
		return err
	}
	c.collection = rows
	c.loaded = true
	c.loadedAt = time.Now().UTC()
	c.lastErr = ""
	c.mu.Unlock()
	return nil
}

// EnsureLoaded refreshes once if the collection was never fetched.
func (c *Controller) EnsureLoaded(ctx context.Context) error {
	c.mu.Lock()
	loaded := c.loaded
	c.mu.Unlock()
	if loaded {
		return nil
	}
	err := c.Refresh(ctx)
	if errors.Is(err, ErrStale) {
		return nil
	}
	return err
}

// Collection returns a copy of the fetched records.
func (c *Controller) Collection() record.Collection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.collection.Clone()
}

func (c *Controller) view() record.Collection {
	return listing.View(c.collection, c.query, c.sorter)
}

// View renders the current page, clamping the cursor to the current view.
func (c *Controller) View() Snapshot {
	c.mu.Lock()
	page := c.pager.Render(c.view())
	s := Snapshot{
		Resource:  c.res.Name,
		Page:      page,
		Query:     c.query.Clone(),
		Loaded:    c.loaded,
		Loading:   c.cancelRefresh != nil,
		LastError: c.lastErr,
	}
	if c.loaded {
		at := c.loadedAt
		s.LoadedAt = &at
	}
	for id := range c.acting {
		s.Acting = append(s.Acting, id)
	}
	c.mu.Unlock()

	s.Drafts = c.forms.Drafts()
	s.Deletes = c.deletes.Pending()
	return s
}

func (c *Controller) Query() listing.Query {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query.Clone()
}

// SetQuery replaces filters, search and day filter; the sort is kept. Filter
// values are coerced to their field kinds. The table returns to the first page.
func (c *Controller) SetQuery(filters map[string]any, search string, day *listing.DayFilter) error {
	coerced, err := c.coerceFilters(filters)
	if err != nil {
		return err
	}
	if day != nil && c.schema.KindOf(day.Field) != record.KindTimestamp {
		return fmt.Errorf("%w: %s is not a timestamp field", record.ErrInvalidValue, day.Field)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.query.Filters = coerced
	c.query.Search = search
	c.query.Day = day
	c.pager.Reset()
	return nil
}

func (c *Controller) SetFilter(field string, raw any) error {
	coerced, err := c.coerceFilters(map[string]any{field: raw})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.query.Filters == nil {
		c.query.Filters = map[string]any{}
	}
	c.query.Filters[field] = coerced[field]
	c.pager.Reset()
	return nil
}

func (c *Controller) ClearFilters() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.query.Filters = nil
	c.query.Search = ""
	c.query.Day = nil
	c.pager.Reset()
}

func (c *Controller) SetSearch(search string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.query.Search = search
	c.pager.Reset()
}

func (c *Controller) SetDay(day *listing.DayFilter) error {
	if day != nil && c.schema.KindOf(day.Field) != record.KindTimestamp {
		return fmt.Errorf("%w: %s is not a timestamp field", record.ErrInvalidValue, day.Field)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.query.Day = day
	c.pager.Reset()
	return nil
}

// ToggleSort flips the direction of the active key or selects a new key ascending.
func (c *Controller) ToggleSort(field string) (listing.SortState, error) {
	if _, ok := c.schema.Field(field); !ok && field != c.schema.ID() {
		return listing.SortState{}, fmt.Errorf("%w: %s", record.ErrUnknownField, field)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.query.Sort = c.query.Sort.Toggle(field)
	return c.query.Sort, nil
}

func (c *Controller) NextPage() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pager.Observe(len(c.view()))
	c.pager.Next()
}

func (c *Controller) PrevPage() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pager.Prev()
}

func (c *Controller) SetPageSize(size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pager.SetSize(size)
}

func (c *Controller) coerceFilters(filters map[string]any) (map[string]any, error) {
	if len(filters) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(filters))
	for field, raw := range filters {
		v, err := c.schema.Coerce(field, raw)
		if err != nil {
			return nil, err
		}
		out[field] = v
	}
	return out, nil
}

// Labels maps the id of every fetched record to its display label.
func (c *Controller) Labels() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.collection))
	for _, rec := range c.collection {
		if id, ok := rec.IDOf(c.schema.ID()); ok {
			out[id] = c.res.Label(rec)
		}
	}
	return out
}

// Close cancels every backend call of the table and discards open drafts and
// pending delete confirmations. Calls completing afterwards leave the table
// untouched.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cancelRefresh = nil
	c.mu.Unlock()
	c.stop()
	c.forms.Reset()
	c.deletes.Reset()
}
