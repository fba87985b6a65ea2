package domain

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type ctxKey string

const correlationCtxKey ctxKey = "correlation_id"

// ContextWithCorrelationID returns a new context carrying the request correlation ID (ULID).
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationCtxKey, id)
}

// CorrelationIDFromContext extracts the correlation ID from the context.
// Returns empty string if not set.
func CorrelationIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(correlationCtxKey).(string); ok {
		return v
	}
	return ""
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// NewCorrelationID returns a fresh, lexically sortable ULID.
func NewCorrelationID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// EnsureCorrelationID returns ctx unchanged when it already carries an ID,
// otherwise a derived context with a new one.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	if id := CorrelationIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := NewCorrelationID()
	return ContextWithCorrelationID(ctx, id), id
}
