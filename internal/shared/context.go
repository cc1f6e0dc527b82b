package shared

import "context"

type actorContextKey struct{}

// ContextWithActor stores the authenticated actor id in context. The core
// treats actor ids as opaque strings supplied by the identity layer.
func ContextWithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actorID)
}

// ActorFromContext extracts the actor id from context, empty when anonymous.
func ActorFromContext(ctx context.Context) string {
	actorID, _ := ctx.Value(actorContextKey{}).(string)
	return actorID
}
