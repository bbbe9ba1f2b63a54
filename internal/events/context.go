package events

import "context"

type threadIDKey struct{}

// ContextWithThreadID returns a new context carrying the call thread ID.
func ContextWithThreadID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, threadIDKey{}, id)
}

// ThreadIDFromContext extracts the call thread ID, or "" if absent.
func ThreadIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(threadIDKey{}).(string); ok {
		return id
	}
	return ""
}
