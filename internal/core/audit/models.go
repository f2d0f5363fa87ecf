package audit

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionLogin  = "login"
	ActionLogout = "logout"
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Entry is one mutation attempted through the dashboard.
type Entry struct {
	ID        uuid.UUID      `json:"id"`
	SessionID string         `json:"session_id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	Resource  string         `json:"resource"`
	RecordID  string         `json:"record_id,omitempty"`
	Action    string         `json:"action"`
	OldData   map[string]any `json:"old_data,omitempty"`
	NewData   map[string]any `json:"new_data,omitempty"`
	Result    string         `json:"result"`
	Message   string         `json:"message,omitempty"`
	IPAddress string         `json:"ip_address,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Filter narrows Query results. Empty fields match everything.
type Filter struct {
	Resource string
	RecordID string
	UserID   string
	Action   string
	Result   string
}
