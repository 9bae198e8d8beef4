package common

import "context"

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRequestID contextKey = "request_id"
	ContextKeyUser      contextKey = "user"
	ContextKeyRunID     contextKey = "run_id"
)

// User identifies who triggered a job or attempt.
type User struct {
	ID       string `json:"user_id,omitempty"`
	Username string `json:"username"`
	Name     string `json:"user_name"`
}

// SystemUser is the attribution used when nobody is attached to the context.
var SystemUser = User{Username: "system", Name: "System"}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequestIDFromContext extracts the request ID from context
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// WithUser attaches attribution to the context.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, ContextKeyUser, u)
}

// UserFromContext returns the attached user, or SystemUser.
func UserFromContext(ctx context.Context) User {
	if u, ok := ctx.Value(ContextKeyUser).(User); ok && u.Username != "" {
		return u
	}
	return SystemUser
}

// WithRunID tags every attempt of one batch or CLI run.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, ContextKeyRunID, runID)
}

// RunIDFromContext extracts the run ID from context
func RunIDFromContext(ctx context.Context) string {
	if runID, ok := ctx.Value(ContextKeyRunID).(string); ok {
		return runID
	}
	return ""
}
