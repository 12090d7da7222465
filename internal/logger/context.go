package logger

import "context"

// requestIDKey is an unexported key type so other packages cannot
// collide with it.
type requestIDKey struct{}

// WithRequestID stores the request ID on the context for later log
// correlation.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request ID from the context, or "" when the
// request carried none.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
