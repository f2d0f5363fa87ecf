package resource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// GenericMessage is shown when the backend gives no usable message.
const GenericMessage = "operation failed"

type Kind string

const (
	KindNetwork    Kind = "network"
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindServer     Kind = "server"
	KindAuth       Kind = "auth"
	KindCanceled   Kind = "canceled"
)

var (
	ErrNetwork      = errors.New("network error")
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("record not found")
	ErrServer       = errors.New("server error")
	ErrUnauthorized = errors.New("unauthorized")
	ErrCanceled     = errors.New("request canceled")
)

var kindSentinels = map[Kind]error{
	KindNetwork:    ErrNetwork,
	KindValidation: ErrValidation,
	KindNotFound:   ErrNotFound,
	KindServer:     ErrServer,
	KindAuth:       ErrUnauthorized,
	KindCanceled:   ErrCanceled,
}

// Error is the typed outcome of a failed backend call.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	// Fields holds per-field messages when the backend reported them.
	Fields map[string]string
	Cause  error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) UserMessage() string {
	if e.Message == "" {
		return GenericMessage
	}
	return e.Message
}

func (e *Error) FieldErrors() map[string]string {
	return e.Fields
}

// Message returns the text to show a user for err.
func Message(err error) string {
	var rerr *Error
	if errors.As(err, &rerr) && rerr.Message != "" {
		return rerr.Message
	}
	return GenericMessage
}

// KindOf returns the Kind of err, or "" for errors that did not come from a backend call.
func KindOf(err error) Kind {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Kind
	}
	return ""
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindAuth
	case status == http.StatusNotFound:
		return KindNotFound
	case status >= 500:
		return KindServer
	default:
		return KindValidation
	}
}

func transportError(ctx context.Context, err error) *Error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return &Error{Kind: KindCanceled, Message: "request canceled", Cause: err}
	}
	return &Error{Kind: KindNetwork, Message: "could not reach the server", Cause: err}
}

// responseError builds the error for a non-2xx reply. The message comes from the
// first of error, message or detail present in a JSON body.
func responseError(status int, body []byte) *Error {
	e := &Error{Kind: kindForStatus(status), Status: status}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, key := range []string{"error", "message", "detail"} {
			raw, ok := payload[key]
			if !ok {
				continue
			}
			if msg, fields := parseMessage(raw); msg != "" {
				e.Message = msg
				e.Fields = fields
				break
			}
		}
	}
	if e.Message == "" {
		e.Message = GenericMessage
	}
	return e
}

// detailItem is one entry of a list-shaped detail, as validation frameworks emit it.
type detailItem struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

func parseMessage(raw json.RawMessage) (string, map[string]string) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), nil
	}

	var items []detailItem
	if err := json.Unmarshal(raw, &items); err == nil && len(items) > 0 {
		fields := make(map[string]string, len(items))
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg == "" {
				continue
			}
			field := ""
			if n := len(it.Loc); n > 0 {
				field = fmt.Sprintf("%v", it.Loc[n-1])
			}
			if field != "" {
				fields[field] = it.Msg
				msgs = append(msgs, field+": "+it.Msg)
			} else {
				msgs = append(msgs, it.Msg)
			}
		}
		if len(fields) == 0 {
			fields = nil
		}
		return strings.Join(msgs, "; "), fields
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		if msg, ok := obj["message"].(string); ok {
			return strings.TrimSpace(msg), nil
		}
	}
	return "", nil
}
