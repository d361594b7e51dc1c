package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/orderproof/internal/common"
	"github.com/Veraticus/orderproof/internal/model"
)

// StartRun records a run as running.
func (s *SQLiteStorage) StartRun(ctx context.Context, runID string, startedAt time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(runID, "runID"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, status)
		VALUES (?, ?, ?)
	`, runID, startedAt.UTC(), string(model.RunRunning))
	if err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}
	return nil
}

// RecordOrder appends the final state of one order in a run.
func (s *SQLiteStorage) RecordOrder(ctx context.Context, event model.OrderEvent) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateEvent(event); err != nil {
		return err
	}

	recordedAt := event.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO order_events (run_id, order_id, stage, outcome, remote_url, error, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, event.RunID, event.OrderID, string(event.Stage), event.Outcome,
		nullString(event.RemoteURL), nullString(event.Error), recordedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record order %s: %w", event.OrderID, err)
	}
	return nil
}

// FinishRun stores the run's final counters and status.
func (s *SQLiteStorage) FinishRun(ctx context.Context, summary *model.RunSummary, status model.RunStatus, runErr error) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if summary == nil {
		return fmt.Errorf("%w: summary", ErrNilParameter)
	}

	finishedAt := summary.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = time.Now()
	}
	var errText string
	if runErr != nil {
		errText = runErr.Error()
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE runs SET
			finished_at = ?, status = ?, error = ?,
			seen = ?, matched = ?, skipped = ?, captured = ?, published = ?, uploaded = ?,
			reconciled = ?, inserted = ?, updated = ?, unchanged = ?, failed = ?
		WHERE id = ?
	`, finishedAt.UTC(), string(status), nullString(errText),
		summary.Seen, summary.Matched, summary.Skipped, summary.Captured, summary.Published, summary.Uploaded,
		summary.Reconciled, summary.Inserted, summary.Updated, summary.Unchanged, summary.Failed(),
		summary.RunID)
	if err != nil {
		return fmt.Errorf("failed to record run finish: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check run update: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run %s: %w", summary.RunID, common.ErrNotFound)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStorage) ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, status, error, matched, reconciled, failed
		FROM runs
		ORDER BY started_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []model.RunRecord
	for rows.Next() {
		var (
			run        model.RunRecord
			status     string
			finishedAt sql.NullTime
			errText    sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.StartedAt, &finishedAt, &status, &errText,
			&run.Matched, &run.Reconciled, &run.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Status = model.RunStatus(status)
		run.Error = errText.String
		if finishedAt.Valid {
			t := finishedAt.Time
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// GetRun returns one run by id.
func (s *SQLiteStorage) GetRun(ctx context.Context, runID string) (*model.RunRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(runID, "runID"); err != nil {
		return nil, err
	}

	var (
		run        model.RunRecord
		status     string
		finishedAt sql.NullTime
		errText    sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, status, error, matched, reconciled, failed
		FROM runs WHERE id = ?
	`, runID).Scan(&run.ID, &run.StartedAt, &finishedAt, &status, &errText,
		&run.Matched, &run.Reconciled, &run.Failed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	run.Status = model.RunStatus(status)
	run.Error = errText.String
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	return &run, nil
}

// ListOrderEvents returns the events of a run in the order they were recorded.
func (s *SQLiteStorage) ListOrderEvents(ctx context.Context, runID string) ([]model.OrderEvent, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(runID, "runID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, order_id, stage, outcome, remote_url, error, recorded_at
		FROM order_events
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []model.OrderEvent
	for rows.Next() {
		var (
			event     model.OrderEvent
			stage     string
			remoteURL sql.NullString
			errText   sql.NullString
		)
		if err := rows.Scan(&event.RunID, &event.OrderID, &stage, &event.Outcome,
			&remoteURL, &errText, &event.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order event: %w", err)
		}
		event.Stage = model.Stage(stage)
		event.RemoteURL = remoteURL.String
		event.Error = errText.String
		events = append(events, event)
	}

	return events, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
