package worker

import (
	"log/slog"
	"math"
	"time"

	"github.com/cuongbtq/scan-service/internal/domain"
)

// RetryPolicy bounds how often and how fast a failing job is retried.
// MaxAttempts of 0 means unbounded.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// Exhausted reports whether a job that has run attempts times may not run again
func (p RetryPolicy) Exhausted(attempts int) bool {
	return p.MaxAttempts > 0 && attempts >= p.MaxAttempts
}

// Delay returns the backoff before the retry that follows the given attempt
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 || attempt < 1 {
		return 0
	}

	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}

	d := float64(p.BaseDelay) * math.Pow(mult, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// scheduleRetry puts job back on the tail of the queue once its backoff
// elapses. The consumer keeps serving other jobs in the meantime.
func (w *Worker) scheduleRetry(job *domain.Job) {
	delay := w.retry.Delay(job.Attempts)
	if delay <= 0 {
		w.requeue(job)
		return
	}

	w.timersMu.Lock()
	defer w.timersMu.Unlock()

	if w.stopped {
		w.logger.Warn("Worker stopped, retry not scheduled",
			slog.String("job_id", job.ID),
			slog.String("audio_path", job.AudioPath),
		)
		return
	}

	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		w.timersMu.Lock()
		_, pending := w.timers[t]
		delete(w.timers, t)
		w.timersMu.Unlock()

		if pending {
			w.requeue(job)
		}
	})
	w.timers[t] = job

	w.logger.Info("Retry scheduled",
		slog.String("job_id", job.ID),
		slog.Int("attempt", job.Attempts),
		slog.Duration("delay", delay),
	)
}

func (w *Worker) requeue(job *domain.Job) {
	position, err := w.queue.Enqueue(job)
	if err != nil {
		w.logger.Error("Failed to requeue job",
			slog.String("job_id", job.ID),
			slog.String("audio_path", job.AudioPath),
			slog.String("error", err.Error()),
		)
		return
	}

	w.logger.Info("Job requeued",
		slog.String("job_id", job.ID),
		slog.Int("queue_position", position),
	)
}
