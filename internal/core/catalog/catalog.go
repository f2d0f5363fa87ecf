package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kleanup/dashboard/internal/core/record"
)

var (
	ErrNotFound       = errors.New("resource not found")
	ErrActionNotFound = errors.New("action not found")
	ErrInvalidCatalog = errors.New("invalid catalog")
)

//go:embed default.yaml
var defaultCatalog []byte

type Encoding string

const (
	EncodingJSON      Encoding = "json"
	EncodingMultipart Encoding = "multipart"
)

type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

type Sort struct {
	Field     string    `yaml:"field" json:"field"`
	Direction Direction `yaml:"direction" json:"direction"`
}

// Paths override the per-operation endpoint when the backend does not follow
// the {endpoint}/{id} convention.
type Paths struct {
	Create string `yaml:"create" json:"create,omitempty"`
	Update string `yaml:"update" json:"update,omitempty"`
	Delete string `yaml:"delete" json:"delete,omitempty"`
}

// Action is a one-click partial update such as approving an application.
type Action struct {
	Name  string         `yaml:"name" json:"name"`
	Label string         `yaml:"label" json:"label"`
	Set   map[string]any `yaml:"set" json:"set"`
}

type Resource struct {
	Name        string         `yaml:"name" json:"name"`
	Title       string         `yaml:"title" json:"title"`
	Endpoint    string         `yaml:"endpoint" json:"endpoint"`
	Paths       Paths          `yaml:"paths" json:"paths"`
	IDField     string         `yaml:"id_field" json:"id_field"`
	LabelField  string         `yaml:"label_field" json:"label_field,omitempty"`
	Encoding    Encoding       `yaml:"encoding" json:"encoding"`
	PageSize    int            `yaml:"page_size" json:"page_size,omitempty"`
	DefaultSort *Sort          `yaml:"default_sort" json:"default_sort,omitempty"`
	Fields      []record.Field `yaml:"fields" json:"fields"`
	Actions     []Action       `yaml:"actions" json:"actions,omitempty"`
}

func (r *Resource) Schema() record.Schema {
	return record.Schema{IDField: r.IDField, Fields: r.Fields}
}

func (r *Resource) Multipart() bool {
	return r.Encoding == EncodingMultipart
}

func (r *Resource) Action(name string) (*Action, error) {
	for i := range r.Actions {
		if r.Actions[i].Name == name {
			return &r.Actions[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrActionNotFound, r.Name, name)
}

// Label is the text other resources show for rec when they reference it.
func (r *Resource) Label(rec record.Record) string {
	if r.LabelField != "" {
		if text := record.ValueText(rec[r.LabelField]); text != "" {
			return text
		}
	}
	id, _ := rec.IDOf(r.Schema().ID())
	return id
}

// References returns the reference fields of r.
func (r *Resource) References() []record.Field {
	var out []record.Field
	for _, f := range r.Fields {
		if f.Kind == record.KindReference {
			out = append(out, f)
		}
	}
	return out
}

func (r *Resource) ListPath() string {
	return r.Endpoint
}

func (r *Resource) RecordPath(id string) string {
	return r.Endpoint + "/" + url.PathEscape(id)
}

func (r *Resource) CreatePath() string {
	if r.Paths.Create != "" {
		return r.Paths.Create
	}
	return r.Endpoint
}

func (r *Resource) UpdatePath(id string) string {
	if r.Paths.Update != "" {
		return r.Paths.Update + "/" + url.PathEscape(id)
	}
	return r.RecordPath(id)
}

func (r *Resource) DeletePath(id string) string {
	if r.Paths.Delete != "" {
		return r.Paths.Delete + "/" + url.PathEscape(id)
	}
	return r.RecordPath(id)
}

// Metric counts the records of a resource matching equality filters.
type Metric struct {
	Name     string         `yaml:"name" json:"name"`
	Label    string         `yaml:"label" json:"label"`
	Resource string         `yaml:"resource" json:"resource"`
	Filters  map[string]any `yaml:"filters" json:"filters,omitempty"`
}

type Catalog struct {
	Resources []*Resource `yaml:"resources" json:"resources"`
	Metrics   []Metric    `yaml:"metrics" json:"metrics"`
}

// Load reads the catalog at path, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog: %w", err)
		}
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) Get(name string) (*Resource, error) {
	for _, r := range c.Resources {
		if r.Name == name {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

func (c *Catalog) validate() error {
	seen := make(map[string]bool, len(c.Resources))
	for _, r := range c.Resources {
		if r.Name == "" {
			return fmt.Errorf("%w: resource without name", ErrInvalidCatalog)
		}
		if seen[r.Name] {
			return fmt.Errorf("%w: duplicate resource %q", ErrInvalidCatalog, r.Name)
		}
		seen[r.Name] = true

		if r.Endpoint == "" {
			r.Endpoint = r.Name
		}
		r.Endpoint = strings.Trim(r.Endpoint, "/")
		if r.IDField == "" {
			r.IDField = "id"
		}
		if r.Title == "" {
			r.Title = r.Name
		}
		switch r.Encoding {
		case "":
			r.Encoding = EncodingJSON
		case EncodingJSON, EncodingMultipart:
		default:
			return fmt.Errorf("%w: %s: unknown encoding %q", ErrInvalidCatalog, r.Name, r.Encoding)
		}

		schema := r.Schema()
		for _, f := range r.Fields {
			if !f.Kind.Valid() {
				return fmt.Errorf("%w: %s.%s: unknown kind %q", ErrInvalidCatalog, r.Name, f.Name, f.Kind)
			}
			if f.Kind == record.KindFile && !r.Multipart() {
				return fmt.Errorf("%w: %s.%s: file fields need multipart encoding", ErrInvalidCatalog, r.Name, f.Name)
			}
			if f.Ref != "" && f.Kind != record.KindReference {
				return fmt.Errorf("%w: %s.%s: only reference fields take a ref", ErrInvalidCatalog, r.Name, f.Name)
			}
		}
		if r.LabelField == "" {
			for _, f := range r.Fields {
				if f.Kind == record.KindString {
					r.LabelField = f.Name
					break
				}
			}
		} else if _, ok := schema.Field(r.LabelField); !ok {
			return fmt.Errorf("%w: %s: unknown label field %q", ErrInvalidCatalog, r.Name, r.LabelField)
		}
		for _, a := range r.Actions {
			for field := range a.Set {
				if _, ok := schema.Field(field); !ok {
					return fmt.Errorf("%w: %s action %s sets unknown field %q", ErrInvalidCatalog, r.Name, a.Name, field)
				}
			}
		}
		if r.DefaultSort != nil && r.DefaultSort.Direction == "" {
			r.DefaultSort.Direction = Asc
		}
	}

	for _, r := range c.Resources {
		for _, f := range r.References() {
			if f.Ref == "" {
				return fmt.Errorf("%w: %s.%s: reference without ref", ErrInvalidCatalog, r.Name, f.Name)
			}
			if !seen[f.Ref] {
				return fmt.Errorf("%w: %s.%s references unknown resource %q", ErrInvalidCatalog, r.Name, f.Name, f.Ref)
			}
		}
	}

	for _, m := range c.Metrics {
		if !seen[m.Resource] {
			return fmt.Errorf("%w: metric %s uses unknown resource %q", ErrInvalidCatalog, m.Name, m.Resource)
		}
	}
	return nil
}
