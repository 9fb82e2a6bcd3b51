package core

import "context"

type contextKey string

const ctxKeyOwner contextKey = "owner"

// ContextWithOwner records who started a job. Sessions and artifact names
// are scoped to the owner.
func ContextWithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ctxKeyOwner, owner)
}

// OwnerFromContext returns the owner stored by ContextWithOwner, or
// "anonymous".
func OwnerFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyOwner).(string); ok && v != "" {
		return v
	}
	return "anonymous"
}
