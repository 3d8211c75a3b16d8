package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/scan-service/internal/domain"
)

const outcomeColumns = `job_id, attempt, status, first_name, last_name, email, gender,
	weight, weight_unit, height, height_unit, date_of_birth, audio_path, work_dir,
	report_path, audio_artifacts, error, ledger_marked, submitted_at, finished_at`

// PostgresStore keeps attempt outcomes in the job_outcomes table
type PostgresStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new PostgresStore instance
func NewPostgresStore(db *sqlx.DB, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger,
	}
}

// RecordOutcome upserts the job's row with the result of its latest attempt
func (s *PostgresStore) RecordOutcome(ctx context.Context, rec *domain.AttemptRecord) error {
	query := `
		INSERT INTO job_outcomes (` + outcomeColumns + `, updated_at)
		VALUES (:job_id, :attempt, :status, :first_name, :last_name, :email, :gender,
			:weight, :weight_unit, :height, :height_unit, :date_of_birth, :audio_path, :work_dir,
			:report_path, :audio_artifacts, :error, :ledger_marked, :submitted_at, :finished_at, NOW())
		ON CONFLICT (job_id) DO UPDATE SET
			attempt = EXCLUDED.attempt,
			status = EXCLUDED.status,
			audio_path = EXCLUDED.audio_path,
			work_dir = EXCLUDED.work_dir,
			report_path = EXCLUDED.report_path,
			audio_artifacts = EXCLUDED.audio_artifacts,
			error = EXCLUDED.error,
			ledger_marked = EXCLUDED.ledger_marked,
			finished_at = EXCLUDED.finished_at,
			updated_at = NOW()
	`

	if _, err := s.db.NamedExecContext(ctx, query, toRow(rec)); err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}

	s.logger.Debug("Outcome recorded",
		slog.String("job_id", rec.JobID),
		slog.String("status", rec.Status.String()),
	)
	return nil
}

// Get returns the latest outcome of a job
func (s *PostgresStore) Get(ctx context.Context, jobID string) (*domain.AttemptRecord, error) {
	query := `SELECT ` + outcomeColumns + ` FROM job_outcomes WHERE job_id = $1`

	var row outcomeRow
	if err := s.db.GetContext(ctx, &row, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get outcome: %w", err)
	}

	return row.toRecord(), nil
}

// List returns the most recent outcomes, optionally filtered by status
func (s *PostgresStore) List(ctx context.Context, status domain.AttemptStatus, limit int) ([]*domain.AttemptRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT ` + outcomeColumns + `
		FROM job_outcomes
		WHERE ($1 = '' OR status = $1)
		ORDER BY finished_at DESC
		LIMIT $2
	`

	var rows []outcomeRow
	if err := s.db.SelectContext(ctx, &rows, query, status.String(), limit); err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}

	return toRecords(rows), nil
}

// PendingLedger returns delivered jobs whose ledger update has not succeeded yet
func (s *PostgresStore) PendingLedger(ctx context.Context, limit int) ([]*domain.AttemptRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT ` + outcomeColumns + `
		FROM job_outcomes
		WHERE status = $1 AND ledger_marked = FALSE
		ORDER BY finished_at
		LIMIT $2
	`

	var rows []outcomeRow
	if err := s.db.SelectContext(ctx, &rows, query, domain.StatusDelivered.String(), limit); err != nil {
		return nil, fmt.Errorf("failed to list pending ledger updates: %w", err)
	}

	return toRecords(rows), nil
}

// MarkLedger records that the job's ledger row has been updated
func (s *PostgresStore) MarkLedger(ctx context.Context, jobID string) error {
	query := `
		UPDATE job_outcomes
		SET ledger_marked = TRUE,
		    updated_at = NOW()
		WHERE job_id = $1
	`

	result, err := s.db.ExecContext(ctx, query, jobID)
	if err != nil {
		return fmt.Errorf("failed to mark ledger: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrJobNotFound
	}

	return nil
}

// TransitionStatus moves a job from one status to another using optimistic
// locking on the current status
func (s *PostgresStore) TransitionStatus(ctx context.Context, jobID string, from, to domain.AttemptStatus) error {
	if !domain.CanTransition(from, to) {
		return fmt.Errorf("invalid transition %s -> %s", from, to)
	}

	query := `
		UPDATE job_outcomes
		SET status = $1,
		    error = '',
		    updated_at = NOW()
		WHERE job_id = $2 AND status = $3
	`

	result, err := s.db.ExecContext(ctx, query, to.String(), jobID, from.String())
	if err != nil {
		return fmt.Errorf("failed to update outcome status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		if _, err := s.Get(ctx, jobID); err != nil {
			return err
		}
		return ErrStatusMismatch
	}

	s.logger.Info("Outcome status updated",
		slog.String("job_id", jobID),
		slog.String("from", from.String()),
		slog.String("to", to.String()),
	)
	return nil
}

func toRecords(rows []outcomeRow) []*domain.AttemptRecord {
	recs := make([]*domain.AttemptRecord, 0, len(rows))
	for i := range rows {
		recs = append(recs, rows[i].toRecord())
	}
	return recs
}
