package repo

import "context"

// SystemCaller is the identity used for elevated execution.
const SystemCaller = "System"

// callerKey is the context key for the acting authority.
type callerKey struct{}

// WithCaller returns a context carrying the acting authority.
func WithCaller(ctx context.Context, authority string) context.Context {
	return context.WithValue(ctx, callerKey{}, authority)
}

// Caller returns the acting authority, or the empty string if none is set.
func Caller(ctx context.Context) string {
	if caller, ok := ctx.Value(callerKey{}).(string); ok {
		return caller
	}
	return ""
}

// IsSystem reports whether the context runs with the system identity.
func IsSystem(ctx context.Context) bool {
	return Caller(ctx) == SystemCaller
}

// AsSystem returns a context with the system identity as caller. Used by
// Repository implementations to realize RunAsSystem.
func AsSystem(ctx context.Context) context.Context {
	return WithCaller(ctx, SystemCaller)
}
