package accounts

import "context"

type actorContextKey struct{}

// ContextWithActor stores the resolved requestor profile in context.
func ContextWithActor(ctx context.Context, actor *User) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the requestor profile, nil when anonymous.
func ActorFromContext(ctx context.Context) *User {
	actor, _ := ctx.Value(actorContextKey{}).(*User)
	return actor
}
