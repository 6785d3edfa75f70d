package shared

import "context"

// Actor identifies the staff member performing an operation. Authentication
// itself lives in front of this service; the gateway forwards the verified
// identity and the middleware materialises it here so that core operations
// receive it as an explicit value instead of reading ambient global state.
type Actor struct {
	Email string
}

type actorContextKey struct{}

// ContextWithActor stores the acting staff identity in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the acting staff identity from context.
// The zero Actor means the request came through an unauthenticated surface.
func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorContextKey{}).(Actor)
	return actor
}
