// Package principal threads the acting identity through the call context.
// Audit rows never hardcode an actor; writers ask the context instead.
package principal

import "context"

type ctxKey struct{}

// System identifies writes performed by the platform itself
// (saga steps, relays) rather than an end user.
const System = "system"

func With(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, ctxKey{}, actor)
}

// From returns the actor installed on ctx, or System when none is set.
func From(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKey{}).(string); ok && v != "" {
		return v
	}
	return System
}
