package resource

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/kleanup/dashboard/internal/core/catalog"
	"github.com/kleanup/dashboard/internal/core/record"
)

// envelopeKeys are the object keys a list may be wrapped under.
var envelopeKeys = []string{"data", "results", "items"}

// Client performs CRUD against one catalog resource. It holds no collection state;
// callers own what List returns.
type Client struct {
	api    *API
	res    *catalog.Resource
	schema record.Schema
}

func NewClient(api *API, res *catalog.Resource) *Client {
	return &Client{api: api, res: res, schema: res.Schema()}
}

func (c *Client) Resource() *catalog.Resource {
	return c.res
}

func (c *Client) List(ctx context.Context) (record.Collection, error) {
	data, _, err := c.api.do(ctx, http.MethodGet, c.res.ListPath(), nil, "", "")
	if err != nil {
		return nil, err
	}
	rows, err := decodeList(data)
	if err != nil {
		return nil, err
	}
	return c.schema.NormalizeAll(rows), nil
}

func (c *Client) Get(ctx context.Context, id string) (record.Record, error) {
	data, _, err := c.api.do(ctx, http.MethodGet, c.res.RecordPath(id), nil, "", "")
	if err != nil {
		return nil, err
	}
	return c.decodeRecord(data)
}

// Create posts payload without its id field. The returned record is nil when the
// backend confirmed without a body; callers re-fetch in that case.
func (c *Client) Create(ctx context.Context, payload record.Record) (record.Record, error) {
	body := payload.Clone()
	delete(body, c.schema.ID())

	r, ct, err := c.encode(body)
	if err != nil {
		return nil, err
	}
	data, _, err := c.api.do(ctx, http.MethodPost, c.res.CreatePath(), r, ct, "")
	if err != nil {
		return nil, err
	}
	return c.decodeRecord(data)
}

// Update sends only the fields present in partial. As with Create, a nil record
// means the backend sent no body.
func (c *Client) Update(ctx context.Context, id string, partial record.Record) (record.Record, error) {
	body := partial.Clone()
	delete(body, c.schema.ID())

	r, ct, err := c.encode(body)
	if err != nil {
		return nil, err
	}
	data, _, err := c.api.do(ctx, http.MethodPatch, c.res.UpdatePath(id), r, ct, "")
	if err != nil {
		return nil, err
	}
	return c.decodeRecord(data)
}

func (c *Client) Remove(ctx context.Context, id string) error {
	_, _, err := c.api.do(ctx, http.MethodDelete, c.res.DeletePath(id), nil, "", "")
	return err
}

func decodeList(data []byte) (record.Collection, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return record.Collection{}, nil
	}

	if data[0] == '[' {
		var rows record.Collection
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, unexpected(err)
		}
		return rows, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, unexpected(err)
	}
	for _, key := range envelopeKeys {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		var rows record.Collection
		if err := json.Unmarshal(raw, &rows); err == nil {
			return rows, nil
		}
	}
	return nil, &Error{Kind: KindServer, Message: "unexpected response from server"}
}

func (c *Client) decodeRecord(data []byte) (record.Record, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	var rec record.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, unexpected(err)
	}
	if _, ok := rec[c.schema.ID()]; !ok {
		for _, key := range envelopeKeys {
			if inner, ok := rec[key].(map[string]any); ok {
				rec = record.Record(inner)
				break
			}
		}
	}
	return c.schema.Normalize(rec), nil
}

func unexpected(err error) *Error {
	return &Error{Kind: KindServer, Message: "unexpected response from server", Cause: err}
}
