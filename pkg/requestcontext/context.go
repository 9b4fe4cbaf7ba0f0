// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values. Middleware sets them, services read them; keeping
// the package free of net/http lets the engine import only what it needs.
package requestcontext

import (
	"context"
	"time"
)

type (
	requestIDKey   struct{}
	requestTimeKey struct{}
	deviceKey      struct{}
	clientIPKey    struct{}
)

// Device captures parsed user-agent metadata recorded on every addendum.
type Device struct {
	UserAgent string
	Browser   string
	OS        string
	Mobile    bool
}

// RequestID retrieves the correlation id, or "" when unset.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithRequestID injects a correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// Now returns the request's pinned wall-clock time, falling back to
// time.Now. Tests inject a fixed time with WithTime.
func Now(ctx context.Context) time.Time {
	if v, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return v
	}
	return time.Now()
}

// WithTime pins the request time.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

// DeviceInfo retrieves parsed device metadata, zero-valued when unset.
func DeviceInfo(ctx context.Context) Device {
	if v, ok := ctx.Value(deviceKey{}).(Device); ok {
		return v
	}
	return Device{}
}

// WithDeviceInfo injects device metadata.
func WithDeviceInfo(ctx context.Context, d Device) context.Context {
	return context.WithValue(ctx, deviceKey{}, d)
}

// ClientIP retrieves the caller's network address, or "" when unset.
func ClientIP(ctx context.Context) string {
	if v, ok := ctx.Value(clientIPKey{}).(string); ok {
		return v
	}
	return ""
}

// WithClientIP injects the caller's network address.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}
