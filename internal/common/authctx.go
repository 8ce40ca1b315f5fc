package common

import "context"

type ctxKey string

const (
	clinicIDKey ctxKey = "session/clinic-id"
	actorIDKey  ctxKey = "session/actor-id"
)

// WithClinicID stores the clinic identifier on the context. The HTTP layer
// resolves it once per request; core services receive it as an explicit
// argument rather than reading ambient state.
func WithClinicID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, clinicIDKey, id)
}

// ClinicID extracts the clinic identifier from the context if present.
func ClinicID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(clinicIDKey).(string)
	return v, ok && v != ""
}

// WithActorID stores the acting user identifier on the context.
func WithActorID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, actorIDKey, id)
}

// ActorID extracts the acting user identifier from the context if present.
func ActorID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(actorIDKey).(string)
	return v, ok && v != ""
}
