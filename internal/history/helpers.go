package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"mergeflow/internal/pipeline"
)

type scanner interface{ Scan(dest ...any) error }

func scanRun(row scanner) (Run, error) {
	var (
		run               Run
		started, finished string
		errMsg, errKind   sql.NullString
	)
	if err := row.Scan(
		&run.RunID,
		&run.OwnerID,
		&run.Outcome,
		&started,
		&finished,
		&run.Total,
		&run.Succeeded,
		&run.Failed,
		&run.UnmatchedSources,
		&run.UnmatchedTargets,
		&run.DroppedDuplicates,
		&errMsg,
		&errKind,
	); err != nil {
		return Run{}, err
	}
	run.StartedAt = parseTime(started)
	run.FinishedAt = parseTime(finished)
	run.Error = errMsg.String
	run.ErrorKind = errKind.String
	return run, nil
}

func scanStats(row scanner) (Stats, error) {
	var (
		stats       Stats
		first, last string
	)
	if err := row.Scan(&stats.OwnerID, &stats.Runs, &stats.PairsMerged, &stats.PairsFailed, &first, &last); err != nil {
		return Stats{}, err
	}
	stats.FirstRunAt = parseTime(first)
	stats.LastRunAt = parseTime(last)
	return stats, nil
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

// encodeSteps stores a pair's step log as JSON; an empty log is NULL.
func encodeSteps(steps []pipeline.StepResult) any {
	if len(steps) == 0 {
		return nil
	}
	data, err := json.Marshal(steps)
	if err != nil {
		return nil
	}
	return string(data)
}

// decodeSteps tolerates NULL and rows written before the column existed.
func decodeSteps(raw string) []pipeline.StepResult {
	if raw == "" {
		return nil
	}
	var steps []pipeline.StepResult
	if err := json.Unmarshal([]byte(raw), &steps); err != nil {
		return nil
	}
	return steps
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
