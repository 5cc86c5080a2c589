package services

import "context"

type contextKey int

const (
	ownerIDKey contextKey = iota
	runIDKey
	pairIndexKey
	stageKey
	requestIDKey
)

func withValue[T comparable](ctx context.Context, key contextKey, v T) context.Context {
	var zero T
	if v == zero && key != ownerIDKey {
		return ctx
	}
	return context.WithValue(ctx, key, v)
}

func valueOf[T comparable](ctx context.Context, key contextKey) (T, bool) {
	v, ok := ctx.Value(key).(T)
	return v, ok
}

// WithOwnerID records the owner whose run is executing. Zero is a valid
// owner (the local CLI) and is stored.
func WithOwnerID(ctx context.Context, id int64) context.Context {
	return withValue(ctx, ownerIDKey, id)
}

func OwnerIDFromContext(ctx context.Context) (int64, bool) {
	return valueOf[int64](ctx, ownerIDKey)
}

// WithRunID records the run identifier; empty IDs are ignored.
func WithRunID(ctx context.Context, id string) context.Context {
	return withValue(ctx, runIDKey, id)
}

func RunIDFromContext(ctx context.Context) (string, bool) {
	return valueOf[string](ctx, runIDKey)
}

// WithPairIndex records the 1-based pair position; non-positive values are
// ignored.
func WithPairIndex(ctx context.Context, index int) context.Context {
	if index < 0 {
		return ctx
	}
	return withValue(ctx, pairIndexKey, index)
}

func PairIndexFromContext(ctx context.Context) (int, bool) {
	return valueOf[int](ctx, pairIndexKey)
}

// WithStage records the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	return withValue(ctx, stageKey, stage)
}

func StageFromContext(ctx context.Context) (string, bool) {
	return valueOf[string](ctx, stageKey)
}

// WithRequestID records the HTTP correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withValue(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	return valueOf[string](ctx, requestIDKey)
}
