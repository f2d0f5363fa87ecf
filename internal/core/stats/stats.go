// Package stats computes the headline counters of the dashboard index page.
package stats

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kleanup/dashboard/internal/core/catalog"
	"github.com/kleanup/dashboard/internal/core/listing"
	"github.com/kleanup/dashboard/internal/core/resource"
	"github.com/kleanup/dashboard/internal/core/table"
)

// maxLoads bounds how many resources are fetched at once.
const maxLoads = 4

// Tables opens resource tables, typically a session workspace.
type Tables interface {
	Table(name string) (*table.Controller, error)
}

type Metric struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Resource string `json:"resource"`
	Value    int    `json:"value"`
	Error    string `json:"error,omitempty"`
}

// Compute counts, for every metric, the records of its resource matching the
// metric filters. Each resource is fetched at most once and only if its table
// was never loaded. A failing resource marks its metrics instead of failing the
// whole page.
func Compute(ctx context.Context, metrics []catalog.Metric, tables Tables) []Metric {
	loaded := make(map[string]error)
	controllers := make(map[string]*table.Controller)
	for _, m := range metrics {
		if _, ok := loaded[m.Resource]; ok {
			continue
		}
		c, err := tables.Table(m.Resource)
		loaded[m.Resource] = err
		if err == nil {
			controllers[m.Resource] = c
		}
	}

	var mu sync.Mutex
	results := make(map[string]error, len(controllers))
	var g errgroup.Group
	g.SetLimit(maxLoads)
	for name, c := range controllers {
		g.Go(func() error {
			err := c.EnsureLoaded(ctx)
			mu.Lock()
			results[name] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	out := make([]Metric, 0, len(metrics))
	for _, m := range metrics {
		metric := Metric{Name: m.Name, Label: m.Label, Resource: m.Resource}
		err := loaded[m.Resource]
		if err == nil {
			err = results[m.Resource]
		}
		if err != nil {
			metric.Error = err.Error()
			var rerr *resource.Error
			if errors.As(err, &rerr) {
				metric.Error = rerr.UserMessage()
			}
			out = append(out, metric)
			continue
		}

		c := controllers[m.Resource]
		filters, err := coerce(c, m.Filters)
		if err != nil {
			metric.Error = err.Error()
			out = append(out, metric)
			continue
		}
		metric.Value = len(listing.Filter(c.Collection(), filters))
		out = append(out, metric)
	}
	return out
}

func coerce(c *table.Controller, filters map[string]any) (map[string]any, error) {
	schema := c.Resource().Schema()
	out := make(map[string]any, len(filters))
	for field, raw := range filters {
		v, err := schema.Coerce(field, raw)
		if err != nil {
			return nil, err
		}
		out[field] = v
	}
	return out, nil
}
