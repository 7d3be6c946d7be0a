package utils

import "context"

type ctxKey string

const returnPathKey ctxKey = "return_path"

// WithReturnPath records the page the user was on, used as the
// post-login redirect when an action requires authentication.
func WithReturnPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, returnPathKey, path)
}

// ReturnPathFrom returns the recorded page or def when none was set.
func ReturnPathFrom(ctx context.Context, def string) string {
	if p, ok := ctx.Value(returnPathKey).(string); ok && p != "" {
		return p
	}
	return def
}
