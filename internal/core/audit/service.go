package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Recorder accepts audit entries. Recording never fails the operation being
// audited; errors are logged.
type Recorder interface {
	Record(ctx context.Context, e *Entry)
}

type Store interface {
	Create(ctx context.Context, e *Entry) error
	Query(ctx context.Context, f Filter, actions []string, limit, offset int) ([]*Entry, int, error)
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

func (s *Service) Record(ctx context.Context, e *Entry) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	// The mutation already happened; a cancelled request must not lose its entry.
	ctx = context.WithoutCancel(ctx)
	if err := s.store.Create(ctx, e); err != nil {
		zap.S().Errorw("Failed to write audit entry",
			"resource", e.Resource, "record_id", e.RecordID, "action", e.Action, "error", err)
	}
}

// Query returns matching entries newest first and the total match count.
func (s *Service) Query(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}

	// "update,delete" selects several actions.
	var actions []string
	if strings.Contains(f.Action, ",") {
		for _, a := range strings.Split(f.Action, ",") {
			if a = strings.TrimSpace(a); a != "" {
				actions = append(actions, a)
			}
		}
		f.Action = ""
	}

	entries, total, err := s.store.Query(ctx, f, actions, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query audit log: %w", err)
	}
	if entries == nil {
		entries = []*Entry{}
	}
	return entries, total, nil
}

// NopRecorder drops entries. It is used when no database is configured.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, *Entry) {}
