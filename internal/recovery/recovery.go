package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/scan-service/internal/domain"
	"github.com/cuongbtq/scan-service/internal/storage"
)

// Store is the part of the outcome store recovery works against
type Store interface {
	Get(ctx context.Context, jobID string) (*domain.AttemptRecord, error)
	PendingLedger(ctx context.Context, limit int) ([]*domain.AttemptRecord, error)
	MarkLedger(ctx context.Context, jobID string) error
	TransitionStatus(ctx context.Context, jobID string, from, to domain.AttemptStatus) error
}

// Delivery sends reports and updates the ledger
type Delivery interface {
	SendReport(ctx context.Context, recipient, name, reportPath string, audioArtifacts []string) error
	MarkExpired(ctx context.Context, email string) error
}

// DirRemover deletes retained working directories
type DirRemover interface {
	Remove(dir string) error
}

// Publisher announces status changes made by recovery
type Publisher interface {
	Publish(ctx context.Context, rec *domain.AttemptRecord) error
}

// Service performs manual and scheduled recovery of finished jobs
type Service struct {
	store     Store
	delivery  Delivery
	dirs      DirRemover
	publisher Publisher
	batchSize int
	logger    *slog.Logger
}

// NewService creates a new recovery Service
func NewService(store Store, delivery Delivery, dirs DirRemover, publisher Publisher, batchSize int, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		delivery:  delivery,
		dirs:      dirs,
		publisher: publisher,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Redeliver resends the retained report of a parked job. On success the
// working directory is removed, the ledger is updated and the job becomes
// delivered.
func (s *Service) Redeliver(ctx context.Context, jobID string) (*domain.AttemptRecord, error) {
	rec, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if rec.Status != domain.StatusParked {
		return nil, fmt.Errorf("%w: status is %s", domain.ErrNotParked, rec.Status)
	}

	s.logger.Info("Redelivering parked job",
		slog.String("job_id", jobID),
		slog.String("email", rec.Client.Email),
		slog.String("work_dir", rec.WorkDir),
	)

	if err := s.delivery.SendReport(ctx, rec.Client.Email, rec.Client.FullName(), rec.ReportPath, rec.AudioArtifacts); err != nil {
		return nil, err
	}

	if err := s.store.TransitionStatus(ctx, jobID, domain.StatusParked, domain.StatusDelivered); err != nil {
		if errors.Is(err, storage.ErrStatusMismatch) {
			return nil, fmt.Errorf("%w: changed during redelivery", domain.ErrNotParked)
		}
		return nil, err
	}
	rec.Status = domain.StatusDelivered
	rec.Error = ""

	if err := s.dirs.Remove(rec.WorkDir); err != nil {
		s.logger.Warn("Failed to remove working directory",
			slog.String("job_id", jobID),
			slog.String("work_dir", rec.WorkDir),
			slog.String("error", err.Error()),
		)
	}

	rec.LedgerMarked = s.markLedger(ctx, rec)

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, rec); err != nil {
			s.logger.Warn("Failed to publish outcome",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
		}
	}

	return rec, nil
}

// ReconcileLedger retries the ledger update of delivered jobs whose update
// failed earlier. It returns how many rows were marked.
func (s *Service) ReconcileLedger(ctx context.Context) (int, error) {
	pending, err := s.store.PendingLedger(ctx, s.batchSize)
	if err != nil {
		return 0, err
	}

	marked := 0
	for _, rec := range pending {
		if ctx.Err() != nil {
			return marked, ctx.Err()
		}
		if s.markLedger(ctx, rec) {
			marked++
		}
	}

	if len(pending) > 0 {
		s.logger.Info("Ledger reconciliation finished",
			slog.Int("pending", len(pending)),
			slog.Int("marked", marked),
		)
	}
	return marked, nil
}

func (s *Service) markLedger(ctx context.Context, rec *domain.AttemptRecord) bool {
	if err := s.delivery.MarkExpired(ctx, rec.Client.Email); err != nil {
		s.logger.Warn("Failed to update ledger",
			slog.String("job_id", rec.JobID),
			slog.String("email", rec.Client.Email),
			slog.String("error", err.Error()),
		)
		return false
	}

	if err := s.store.MarkLedger(ctx, rec.JobID); err != nil {
		s.logger.Warn("Failed to record ledger update",
			slog.String("job_id", rec.JobID),
			slog.String("error", err.Error()),
		)
	}
	return true
}
