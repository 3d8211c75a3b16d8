package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs ledger reconciliation on a cron schedule
type Scheduler struct {
	cron    *cron.Cron
	service *Service
	timeout time.Duration
	logger  *slog.Logger
}

// NewScheduler creates a Scheduler for a standard cron expression or
// descriptor such as "@every 15m"
func NewScheduler(spec string, service *Service, timeout time.Duration, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		service: service,
		timeout: timeout,
		logger:  logger,
	}

	if _, err := s.cron.AddFunc(spec, s.reconcile); err != nil {
		return nil, fmt.Errorf("invalid reconcile schedule %q: %w", spec, err)
	}

	return s, nil
}

// Run starts the schedule and blocks until ctx is canceled and any running
// reconciliation has finished
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("Starting ledger reconciliation scheduler",
		slog.Int("entries", len(s.cron.Entries())),
	)

	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()

	s.logger.Info("Ledger reconciliation scheduler stopped")
	return nil
}

func (s *Scheduler) reconcile() {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if _, err := s.service.ReconcileLedger(ctx); err != nil {
		s.logger.Error("Ledger reconciliation failed",
			slog.String("error", err.Error()),
		)
	}
}
