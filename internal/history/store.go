package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"mergeflow/internal/pipeline"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Store records run history backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Run is one recorded run.
type Run struct {
	RunID             string    `json:"run_id"`
	OwnerID           int64     `json:"owner_id"`
	Outcome           string    `json:"outcome"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
	Total             int       `json:"total"`
	Succeeded         int       `json:"succeeded"`
	Failed            int       `json:"failed"`
	UnmatchedSources  int       `json:"unmatched_sources"`
	UnmatchedTargets  int       `json:"unmatched_targets"`
	DroppedDuplicates int       `json:"dropped_duplicates"`
	Error             string    `json:"error,omitempty"`
	ErrorKind         string    `json:"error_kind,omitempty"`
}

// Stats are the running totals for one owner.
type Stats struct {
	OwnerID     int64     `json:"owner_id"`
	Runs        int       `json:"runs"`
	PairsMerged int       `json:"pairs_merged"`
	PairsFailed int       `json:"pairs_failed"`
	FirstRunAt  time.Time `json:"first_run_at"`
	LastRunAt   time.Time `json:"last_run_at"`
}

// Open creates or connects to the history database at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("history path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// RecordRun stores a finished run and folds it into the owner's totals.
// Recording the same run twice is a no-op.
func (s *Store) RecordRun(ctx context.Context, summary pipeline.Summary) error {
	if summary.RunID == "" {
		return errors.New("run id is required")
	}
	return retryOnBusy(ctx, func() error {
		return s.recordRunTx(ctx, summary)
	})
}

func (s *Store) recordRunTx(ctx context.Context, summary pipeline.Summary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	started := formatTime(summary.StartedAt)
	finished := formatTime(summary.FinishedAt)
	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO runs (
            run_id, owner_id, outcome, started_at, finished_at, total, succeeded, failed,
            unmatched_sources, unmatched_targets, dropped_duplicates, error_message, error_kind
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.RunID,
		summary.OwnerID,
		summary.Outcome(),
		started,
		finished,
		summary.Total,
		summary.Succeeded,
		summary.Failed,
		summary.UnmatchedSources,
		summary.UnmatchedTargets,
		summary.DroppedDuplicates,
		nullableString(summary.Error),
		nullableString(summary.ErrorKind),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil
	}

	for _, o := range summary.Outcomes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO pair_outcomes (
                run_id, pair_index, episode_key, source_name, target_name, output_name,
                status, error_message, error_kind, audio_injected, subtitle_injected, elapsed_ms, steps
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			summary.RunID,
			o.Index,
			o.Key,
			nullableString(o.Source),
			nullableString(o.Target),
			nullableString(o.Output),
			string(o.Status),
			nullableString(o.Error),
			nullableString(o.ErrorKind),
			boolToInt(o.AudioInjected),
			boolToInt(o.SubtitleInjected),
			o.Elapsed.Milliseconds(),
			encodeSteps(o.Steps),
		); err != nil {
			return fmt.Errorf("insert pair outcome %d: %w", o.Index, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO user_stats (owner_id, runs, pairs_merged, pairs_failed, first_run_at, last_run_at)
         VALUES (?, 1, ?, ?, ?, ?)
         ON CONFLICT(owner_id) DO UPDATE SET
             runs = runs + 1,
             pairs_merged = pairs_merged + excluded.pairs_merged,
             pairs_failed = pairs_failed + excluded.pairs_failed,
             last_run_at = excluded.last_run_at`,
		summary.OwnerID,
		summary.Succeeded,
		summary.Failed,
		finished,
		finished,
	); err != nil {
		return fmt.Errorf("update user stats: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

const runColumns = "run_id, owner_id, outcome, started_at, finished_at, total, succeeded, failed, unmatched_sources, unmatched_targets, dropped_duplicates, error_message, error_kind"

// RecentRuns lists an owner's runs, newest first. A zero limit means 20.
func (s *Store) RecentRuns(ctx context.Context, ownerID int64, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE owner_id = ? ORDER BY finished_at DESC, run_id LIMIT ?`,
		ownerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Outcomes returns the recorded pair outcomes for a run in pair order.
func (s *Store) Outcomes(ctx context.Context, runID string) ([]pipeline.PairOutcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pair_index, episode_key, source_name, target_name, output_name, status,
                error_message, error_kind, audio_injected, subtitle_injected, elapsed_ms, steps
         FROM pair_outcomes WHERE run_id = ? ORDER BY pair_index`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []pipeline.PairOutcome
	for rows.Next() {
		var (
			o                          pipeline.PairOutcome
			source, target, output     sql.NullString
			errMsg, errKind, steps     sql.NullString
			status                     string
			audio, subtitle, elapsedMS int64
		)
		if err := rows.Scan(&o.Index, &o.Key, &source, &target, &output, &status,
			&errMsg, &errKind, &audio, &subtitle, &elapsedMS, &steps); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Source = source.String
		o.Target = target.String
		o.Output = output.String
		o.Status = pipeline.PairStatus(status)
		o.Error = errMsg.String
		o.ErrorKind = errKind.String
		o.AudioInjected = audio != 0
		o.SubtitleInjected = subtitle != 0
		o.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		o.Steps = decodeSteps(steps.String)
		out = append(out, o)
	}
	return out, rows.Err()
}

// Stats returns an owner's totals. ok is false when the owner has no runs.
func (s *Store) Stats(ctx context.Context, ownerID int64) (Stats, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT owner_id, runs, pairs_merged, pairs_failed, first_run_at, last_run_at
         FROM user_stats WHERE owner_id = ?`,
		ownerID,
	)
	stats, err := scanStats(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Stats{}, false, nil
	}
	if err != nil {
		return Stats{}, false, fmt.Errorf("get stats: %w", err)
	}
	return stats, true, nil
}

// TopOwners ranks owners by merged pairs. A zero limit means 10.
func (s *Store) TopOwners(ctx context.Context, limit int) ([]Stats, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT owner_id, runs, pairs_merged, pairs_failed, first_run_at, last_run_at
         FROM user_stats ORDER BY pairs_merged DESC, owner_id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query top owners: %w", err)
	}
	defer rows.Close()

	var out []Stats
	for rows.Next() {
		stats, err := scanStats(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		out = append(out, stats)
	}
	return out, rows.Err()
}

// Prune deletes runs finished before cutoff. Owner totals are kept.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	stamp := formatTime(cutoff)
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM pair_outcomes WHERE run_id IN (SELECT run_id FROM runs WHERE finished_at < ?)`, stamp,
		); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE finished_at < ?`, stamp)
		if err != nil {
			return err
		}
		if removed, err = res.RowsAffected(); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return removed, nil
}
