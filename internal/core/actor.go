package core

import (
	"context"

	"github.com/dkeye/Signage/internal/domain"
)

type actorKey struct{}

// WithActor attaches the acting user to ctx for store writes.
func WithActor(ctx context.Context, id domain.UserID) context.Context {
	return context.WithValue(ctx, actorKey{}, id)
}

func ActorFrom(ctx context.Context) (domain.UserID, bool) {
	id, ok := ctx.Value(actorKey{}).(domain.UserID)
	return id, ok && id != ""
}
