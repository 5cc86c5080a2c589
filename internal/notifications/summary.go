package notifications

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"mergeflow/internal/logging"
	"mergeflow/internal/pipeline"
)

// SummaryPayload renders a run summary into notification values.
func SummaryPayload(s pipeline.Summary) Payload {
	duration := s.FinishedAt.Sub(s.StartedAt).Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	return Payload{
		"owner":     strconv.FormatInt(s.OwnerID, 10),
		"run":       s.RunID,
		"total":     strconv.Itoa(s.Total),
		"succeeded": strconv.Itoa(s.Succeeded),
		"failed":    strconv.Itoa(s.Failed),
		"duration":  duration.String(),
	}
}

// PublishSummary announces a finished run. Runs that failed as a whole also
// raise an error notification. Delivery failures are logged, never returned.
func PublishSummary(ctx context.Context, svc Service, s pipeline.Summary, logger *slog.Logger) {
	if svc == nil {
		return
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := svc.Publish(ctx, EventRunCompleted, SummaryPayload(s)); err != nil {
		logger.Warn("run notification failed",
			logging.String(logging.FieldRunID, s.RunID),
			logging.Error(err),
			logging.String(logging.FieldEventType, "notification_failed"),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "owner not notified of run result"),
		)
	}
	if s.Error == "" || s.ErrorKind == "cancelled" {
		return
	}
	if err := svc.Publish(ctx, EventError, Payload{"context": "run " + s.RunID, "error": s.Error}); err != nil {
		logger.Warn("error notification failed",
			logging.String(logging.FieldRunID, s.RunID),
			logging.Error(err),
			logging.String(logging.FieldEventType, "notification_failed"),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "run failure not announced"),
		)
	}
}
