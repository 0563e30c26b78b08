package shared

import "context"

const (
	// GuestName labels history entries written by anonymous token holders.
	GuestName = "guest"
	// SystemName labels entries written by background jobs.
	SystemName = "system"
)

// Actor identifies who performed an action.
type Actor struct {
	ID    int64  `json:"id,omitempty"`
	Name  string `json:"name"`
	Guest bool   `json:"guest"`
}

// GuestActor returns the actor used by the public token surface.
func GuestActor() Actor {
	return Actor{Name: GuestName, Guest: true}
}

// SystemActor returns the actor used by scheduled jobs.
func SystemActor() Actor {
	return Actor{Name: SystemName}
}

// StaffActor returns an authenticated staff actor.
func StaffActor(id int64, name string) Actor {
	return Actor{ID: id, Name: name}
}

func (a Actor) String() string {
	if a.Guest || a.Name == "" {
		return GuestName
	}
	return a.Name
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context, falling back to guest.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	if !ok {
		return GuestActor(), false
	}
	return actor, true
}
