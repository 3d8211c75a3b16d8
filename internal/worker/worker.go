package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuongbtq/scan-service/internal/domain"
	"github.com/cuongbtq/scan-service/internal/pipeline"
	"github.com/cuongbtq/scan-service/internal/queue"
	"github.com/cuongbtq/scan-service/internal/workspace"
)

// Delivery sends finished reports and updates the ledger
type Delivery interface {
	SendReport(ctx context.Context, recipient, name, reportPath string, audioArtifacts []string) error
	MarkExpired(ctx context.Context, email string) error
}

// OutcomeRecorder persists the result of every finished attempt
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, rec *domain.AttemptRecord) error
}

// EventPublisher announces the result of every finished attempt
type EventPublisher interface {
	Publish(ctx context.Context, rec *domain.AttemptRecord) error
}

// Config holds worker configuration
type Config struct {
	Logger    *slog.Logger
	Queue     *queue.Queue
	Workspace *workspace.Manager
	Pipeline  pipeline.Collaborator
	Delivery  Delivery
	Recorder  OutcomeRecorder
	Publisher EventPublisher
	Retry     RetryPolicy
}

// Worker is the single consumer of the job queue. Only one job is ever
// inside the pipeline at a time.
type Worker struct {
	logger    *slog.Logger
	queue     *queue.Queue
	workspace *workspace.Manager
	pipeline  pipeline.Collaborator
	delivery  Delivery
	recorder  OutcomeRecorder
	publisher EventPublisher
	retry     RetryPolicy

	busy    atomic.Bool
	current atomic.Value // string

	timersMu sync.Mutex
	timers   map[*time.Timer]*domain.Job
	stopped  bool
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = nopPublisher{}
	}

	w := &Worker{
		logger:    cfg.Logger,
		queue:     cfg.Queue,
		workspace: cfg.Workspace,
		pipeline:  cfg.Pipeline,
		delivery:  cfg.Delivery,
		recorder:  recorder,
		publisher: publisher,
		retry:     cfg.Retry,
		timers:    make(map[*time.Timer]*domain.Job),
	}
	w.current.Store("")
	return w
}

// Start consumes the queue until ctx is canceled or the queue is closed.
// An attempt that has already started runs to completion.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.Int("max_attempts", w.retry.MaxAttempts),
		slog.Duration("retry_base_delay", w.retry.BaseDelay),
	)
	defer w.shutdown()

	for {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrQueueClosed) {
				w.logger.Info("Worker stopping - queue closed")
				return nil
			}
			return err
		}

		w.processJob(ctx, job)
	}
}

// IsProcessing reports whether a job is currently inside an attempt
func (w *Worker) IsProcessing() bool {
	return w.busy.Load()
}

// CurrentJob returns the id of the job being processed, or ""
func (w *Worker) CurrentJob() string {
	return w.current.Load().(string)
}

// QueueSize returns the number of jobs waiting in the queue
func (w *Worker) QueueSize() int {
	return w.queue.Len()
}

// RetryScheduled returns the number of jobs waiting for their backoff to elapse
func (w *Worker) RetryScheduled() int {
	w.timersMu.Lock()
	defer w.timersMu.Unlock()
	return len(w.timers)
}

// shutdown cancels pending retries and drains the queue. Jobs that will not
// be processed are logged with their retained audio so they can be resubmitted.
func (w *Worker) shutdown() {
	w.timersMu.Lock()
	w.stopped = true
	for t, job := range w.timers {
		if t.Stop() {
			w.logger.Warn("Pending retry cancelled",
				slog.String("job_id", job.ID),
				slog.String("email", job.Client.Email),
				slog.String("audio_path", job.AudioPath),
			)
		}
		delete(w.timers, t)
	}
	w.timersMu.Unlock()

	for _, job := range w.queue.Close() {
		w.logger.Warn("Job left in queue at shutdown",
			slog.String("job_id", job.ID),
			slog.String("email", job.Client.Email),
			slog.String("audio_path", job.AudioPath),
		)
	}

	w.logger.Info("Worker stopped")
}

type nopRecorder struct{}

func (nopRecorder) RecordOutcome(context.Context, *domain.AttemptRecord) error { return nil }

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, *domain.AttemptRecord) error { return nil }
