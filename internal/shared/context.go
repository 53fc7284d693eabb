package shared

import "context"

// Actor is the acting user as asserted by the identity gateway.
type Actor struct {
	UserID    int64
	CompanyID int64
	Role      string
}

// Valid reports whether the actor carries both a user and a company.
func (a Actor) Valid() bool {
	return a.UserID > 0 && a.CompanyID > 0
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
