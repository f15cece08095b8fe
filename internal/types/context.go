package types

import "context"

// Actor represents the authenticated entity performing an operation.
// Identity resolution happens outside this service; the API trusts the
// Authenticator to produce an Actor from an opaque token.
type Actor struct {
	ID   string
	Role ActorRole
}

// IsAdmin reports whether the actor may use administrative endpoints.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

type contextKey string

const (
	actorKey     contextKey = "actor"
	requestIDKey contextKey = "request_id"
)

// WithActor stores the Actor in the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// GetActor retrieves the Actor from the context.
func GetActor(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
