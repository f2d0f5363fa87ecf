package table

import (
	"context"

	"github.com/kleanup/dashboard/internal/core/audit"
)

// Actor identifies who triggered a mutation, for the audit trail.
type Actor struct {
	SessionID string
	UserID    string
	IPAddress string
	UserAgent string
}

type actorKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func ActorFrom(ctx context.Context) Actor {
	a, _ := ctx.Value(actorKey{}).(Actor)
	return a
}

func (a Actor) apply(e *audit.Entry) {
	e.SessionID = a.SessionID
	e.UserID = a.UserID
	e.IPAddress = a.IPAddress
	e.UserAgent = a.UserAgent
}
