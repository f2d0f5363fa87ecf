package stats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kleanup/dashboard/internal/core/catalog"
	"github.com/kleanup/dashboard/internal/core/record"
	"github.com/kleanup/dashboard/internal/core/resource"
	"github.com/kleanup/dashboard/internal/core/table"
)

type listBackend struct {
	rows  record.Collection
	err   error
	calls int
}

func (b *listBackend) List(context.Context) (record.Collection, error) {
	b.calls++
	return b.rows, b.err
}

func (b *listBackend) Get(context.Context, string) (record.Record, error) {
	return nil, errors.New("not implemented")
}

func (b *listBackend) Create(context.Context, record.Record) (record.Record, error) {
	return nil, errors.New("not implemented")
}

func (b *listBackend) Update(context.Context, string, record.Record) (record.Record, error) {
	return nil, errors.New("not implemented")
}

func (b *listBackend) Remove(context.Context, string) error {
	return errors.New("not implemented")
}

type tables struct {
	cat      *catalog.Catalog
	backends map[string]*listBackend
	open     map[string]*table.Controller
}

func (ts *tables) Table(name string) (*table.Controller, error) {
	if c, ok := ts.open[name]; ok {
		return c, nil
	}
	res, err := ts.cat.Get(name)
	if err != nil {
		return nil, err
	}
	b, ok := ts.backends[name]
	if !ok {
		b = &listBackend{}
	}
	c := table.New(res, b, table.Options{})
	ts.open[name] = c
	return c, nil
}

func newTables(t *testing.T, backends map[string]*listBackend) *tables {
	t.Helper()
	cat, err := catalog.Load("")
	require.NoError(t, err)
	return &tables{cat: cat, backends: backends, open: map[string]*table.Controller{}}
}

func TestCompute(t *testing.T) {
	bookings := &listBackend{rows: record.Collection{
		{"id": 1, "payment_status": "Not Paid", "status": "Not done"},
		{"id": 2, "payment_status": "Paid", "status": "Not done"},
		{"id": 3, "payment_status": "Paid", "status": "Completed"},
		{"id": 4, "payment_status": "Paid", "status": "Completed"},
	}}
	users := &listBackend{rows: record.Collection{{"id": 1}, {"id": 2}, {"id": 3}}}
	ts := newTables(t, map[string]*listBackend{"bookings": bookings, "users": users})

	got := Compute(context.Background(), ts.cat.Metrics, ts)

	values := map[string]int{}
	for _, m := range got {
		assert.Empty(t, m.Error, m.Name)
		values[m.Name] = m.Value
	}
	assert.Equal(t, map[string]int{
		"total_users":    3,
		"total_requests": 1,
		"scheduled_jobs": 1,
		"completed_jobs": 2,
	}, values)
	assert.Equal(t, 1, bookings.calls, "a resource is fetched once for all its metrics")
}

func TestCompute_UsesLoadedTable(t *testing.T) {
	users := &listBackend{rows: record.Collection{{"id": 1}}}
	ts := newTables(t, map[string]*listBackend{"users": users})
	c, err := ts.Table("users")
	require.NoError(t, err)
	require.NoError(t, c.Refresh(context.Background()))

	got := Compute(context.Background(), []catalog.Metric{{Name: "total_users", Resource: "users"}}, ts)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Value)
	assert.Equal(t, 1, users.calls)
}

func TestCompute_FailingResource(t *testing.T) {
	bookings := &listBackend{err: &resource.Error{Kind: resource.KindServer, Status: 503, Message: "Service unavailable"}}
	users := &listBackend{rows: record.Collection{{"id": 1}}}
	ts := newTables(t, map[string]*listBackend{"bookings": bookings, "users": users})

	got := Compute(context.Background(), ts.cat.Metrics, ts)
	for _, m := range got {
		if m.Resource == "bookings" {
			assert.Equal(t, "Service unavailable", m.Error)
		} else {
			assert.Empty(t, m.Error)
			assert.Equal(t, 1, m.Value)
		}
	}
}

func TestCompute_UnknownResource(t *testing.T) {
	ts := newTables(t, nil)
	got := Compute(context.Background(), []catalog.Metric{{Name: "x", Resource: "nope"}}, ts)
	require.Len(t, got, 1)
	assert.NotEmpty(t, got[0].Error)
}

// peakBackend records how many List calls overlap.
type peakBackend struct {
	listBackend
	mu       *sync.Mutex
	inFlight *int
	peak     *int
}

func (b *peakBackend) List(context.Context) (record.Collection, error) {
	b.mu.Lock()
	*b.inFlight++
	if *b.inFlight > *b.peak {
		*b.peak = *b.inFlight
	}
	b.mu.Unlock()

	time.Sleep(20 * time.Millisecond)

	b.mu.Lock()
	*b.inFlight--
	b.mu.Unlock()
	return record.Collection{{"id": 1}}, nil
}

type peakTables struct {
	cat  *catalog.Catalog
	open map[string]*table.Controller
	mu   sync.Mutex
	in   int
	peak int
}

func (ts *peakTables) Table(name string) (*table.Controller, error) {
	if c, ok := ts.open[name]; ok {
		return c, nil
	}
	res, err := ts.cat.Get(name)
	if err != nil {
		return nil, err
	}
	c := table.New(res, &peakBackend{mu: &ts.mu, inFlight: &ts.in, peak: &ts.peak}, table.Options{})
	ts.open[name] = c
	return c, nil
}

func TestCompute_BoundsConcurrentLoads(t *testing.T) {
	var doc strings.Builder
	doc.WriteString("resources:\n")
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&doc, "  - name: r%d\n", i)
	}
	doc.WriteString("metrics:\n")
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&doc, "  - {name: m%d, resource: r%d}\n", i, i)
	}
	cat, err := catalog.Parse([]byte(doc.String()))
	require.NoError(t, err)

	ts := &peakTables{cat: cat, open: map[string]*table.Controller{}}
	got := Compute(context.Background(), cat.Metrics, ts)

	require.Len(t, got, 10)
	for _, m := range got {
		assert.Empty(t, m.Error, m.Name)
		assert.Equal(t, 1, m.Value, m.Name)
	}
	assert.LessOrEqual(t, ts.peak, maxLoads)
	assert.Greater(t, ts.peak, 0)
}
