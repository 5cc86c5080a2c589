package logging

import (
	"context"
	"log/slog"

	"mergeflow/internal/services"
)

// Structured keys shared by every component.
const (
	FieldComponent = "component"
	FieldOwnerID   = "owner_id"
	// FieldRunID identifies one orchestrator run.
	FieldRunID      = "run_id"
	FieldPairIndex  = "pair_index"
	FieldPairCount  = "pair_count"
	FieldEpisodeKey = "episode_key" // e.g. S01E02
	FieldStage      = "stage"
	// FieldCorrelationID carries the HTTP request ID.
	FieldCorrelationID = "correlation_id"
	FieldEventType     = "event_type"
	// FieldErrorHint carries the operator's next step.
	FieldErrorHint = "error_hint"
	FieldErrorKind = "error_kind"
	// FieldImpact says what the user loses because of a warning.
	FieldImpact = "impact"
)

// ContextFields returns the session, run and request identifiers stored in
// ctx as slog attributes.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var fields []slog.Attr
	if id, ok := services.OwnerIDFromContext(ctx); ok {
		fields = append(fields, slog.Int64(FieldOwnerID, id))
	}
	if id, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if idx, ok := services.PairIndexFromContext(ctx); ok {
		fields = append(fields, slog.Int(FieldPairIndex, idx))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns logger extended with ContextFields(ctx).
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	args := make([]any, len(fields))
	for i, f := range fields {
		args[i] = f
	}
	return logger.With(args...)
}
