package util

import (
	"context"
	"time"
)

type ctxKey string

const (
	ctxKeyStartTime ctxKey = "start_time"
	ctxKeyUpstream  ctxKey = "upstream"
)

// ContextWithStartTime records when the gateway began handling a request.
func ContextWithStartTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ctxKeyStartTime, t)
}

// StartTimeFromContext returns the recorded start time, or the zero time.
func StartTimeFromContext(ctx context.Context) time.Time {
	if v, ok := ctx.Value(ctxKeyStartTime).(time.Time); ok {
		return v
	}
	return time.Time{}
}

// ElapsedTime returns the time since the recorded start, or zero.
func ElapsedTime(ctx context.Context) time.Duration {
	start := StartTimeFromContext(ctx)
	if start.IsZero() {
		return 0
	}
	return time.Since(start)
}

// ContextWithUpstream records the upstream service chosen for a request.
func ContextWithUpstream(ctx context.Context, upstream string) context.Context {
	return context.WithValue(ctx, ctxKeyUpstream, upstream)
}

// UpstreamFromContext returns the recorded upstream name, or "".
func UpstreamFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyUpstream).(string); ok {
		return v
	}
	return ""
}
