package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/kleanup/dashboard/internal/storage/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS dashboard_audit_log (
	id          UUID PRIMARY KEY,
	session_id  TEXT NOT NULL DEFAULT '',
	user_id     TEXT NOT NULL DEFAULT '',
	resource    TEXT NOT NULL,
	record_id   TEXT NOT NULL DEFAULT '',
	action      TEXT NOT NULL,
	old_data    JSONB,
	new_data    JSONB,
	result      TEXT NOT NULL,
	message     TEXT NOT NULL DEFAULT '',
	ip_address  TEXT NOT NULL DEFAULT '',
	user_agent  TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS dashboard_audit_log_resource_idx ON dashboard_audit_log (resource, record_id);
CREATE INDEX IF NOT EXISTS dashboard_audit_log_created_idx ON dashboard_audit_log (created_at DESC);`

type Repository struct {
	db *postgres.Client
}

func NewRepository(db *postgres.Client) *Repository {
	return &Repository{db: db}
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create audit schema: %w", err)
	}
	return nil
}

func (r *Repository) Create(ctx context.Context, e *Entry) error {
	oldData, err := marshalData(e.OldData)
	if err != nil {
		return err
	}
	newData, err := marshalData(e.NewData)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO dashboard_audit_log
			(id, session_id, user_id, resource, record_id, action, old_data, new_data, result, message, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at`

	return r.db.DB.QueryRowContext(ctx, query,
		e.ID, e.SessionID, e.UserID, e.Resource, e.RecordID, e.Action,
		oldData, newData, e.Result, e.Message, e.IPAddress, e.UserAgent,
	).Scan(&e.CreatedAt)
}

func (r *Repository) Query(ctx context.Context, f Filter, actions []string, limit, offset int) ([]*Entry, int, error) {
	where, args := buildWhere(f, actions)

	countQuery := "SELECT COUNT(*) FROM dashboard_audit_log" + where
	var total int
	if err := r.db.DB.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT id, session_id, user_id, resource, record_id, action, old_data, new_data,
		       result, message, ip_address, user_agent, created_at
		FROM dashboard_audit_log%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	return entries, total, err
}

// buildWhere renders the WHERE clause for f with numbered placeholders.
func buildWhere(f Filter, actions []string) (string, []any) {
	var clauses []string
	var args []any

	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("resource", f.Resource)
	add("record_id", f.RecordID)
	add("user_id", f.UserID)
	add("action", f.Action)
	add("result", f.Result)

	if len(actions) > 0 {
		args = append(args, pq.Array(actions))
		clauses = append(clauses, fmt.Sprintf("action = ANY($%d)", len(args)))
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		var oldData, newData []byte
		if err := rows.Scan(
			&e.ID, &e.SessionID, &e.UserID, &e.Resource, &e.RecordID, &e.Action,
			&oldData, &newData, &e.Result, &e.Message, &e.IPAddress, &e.UserAgent, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(oldData) > 0 {
			if err := json.Unmarshal(oldData, &e.OldData); err != nil {
				return nil, err
			}
		}
		if len(newData) > 0 {
			if err := json.Unmarshal(newData, &e.NewData); err != nil {
				return nil, err
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func marshalData(data map[string]any) (any, error) {
	if data == nil {
		return nil, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit data: %w", err)
	}
	return b, nil
}
