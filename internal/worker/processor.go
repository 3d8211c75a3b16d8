package worker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/cuongbtq/scan-service/internal/domain"
)

type attemptResult struct {
	status       domain.AttemptStatus
	err          error
	ledgerMarked bool
}

// processJob runs one attempt of job. Whatever happens inside the attempt,
// the raw audio it was dequeued with is deleted and the queue is told the
// item is done. A panic anywhere in the iteration is logged and stops there;
// the loop moves on to the next job.
func (w *Worker) processJob(ctx context.Context, job *domain.Job) {
	// shutdown must not interrupt an attempt that has started
	ctx = context.WithoutCancel(ctx)

	rawAudio := job.AudioPath
	w.current.Store(job.ID)
	w.busy.Store(true)

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Recovered from panic while finishing job",
				slog.String("job_id", job.ID),
				slog.Any("panic", r),
			)
		}

		w.removeRawAudio(job, rawAudio)
		w.queue.Done()
		w.current.Store("")
		w.busy.Store(false)
	}()

	w.logger.Info("Processing job",
		slog.String("job_id", job.ID),
		slog.String("email", job.Client.Email),
		slog.Int("attempt", job.Attempts+1),
	)

	res := w.runAttempt(ctx, job)
	if res.status == "" {
		res.status = w.classifyFailure(job, res.err)
	}

	w.finish(ctx, job, res)
}

// runAttempt executes steps 1-3 for one attempt. A panic anywhere inside is
// converted into an UnexpectedError.
func (w *Worker) runAttempt(ctx context.Context, job *domain.Job) (res attemptResult) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Recovered from panic during attempt",
				slog.String("job_id", job.ID),
				slog.Any("panic", r),
			)
			res = attemptResult{err: domain.NewUnexpectedError(fmt.Errorf("panic: %v", r))}
		}
	}()

	if err := w.runPipeline(ctx, job); err != nil {
		return attemptResult{err: err}
	}

	return w.deliver(ctx, job)
}

func (w *Worker) runPipeline(ctx context.Context, job *domain.Job) error {
	job.Attempts++
	job.ResetAttempt()

	attempt, err := w.workspace.Allocate(job.Client.Email, time.Now())
	if err != nil {
		w.holdInput(job)
		return domain.NewUnexpectedError(fmt.Errorf("failed to allocate working directory: %w", err))
	}
	job.WorkDir = attempt.Dir
	job.ImagesDir = attempt.ImagesDir
	job.ReportPath = attempt.ReportPath

	input, err := w.workspace.StageInput(attempt, job.AudioPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &domain.PipelineError{Message: "audio input missing: " + job.AudioPath, Retryable: false}
		}
		return domain.NewUnexpectedError(fmt.Errorf("failed to stage audio input: %w", err))
	}
	// retries read the copy kept in this attempt's directory
	job.AudioPath = input

	outcome, err := w.pipeline.Run(ctx, job, attempt)
	if err != nil {
		var pipelineErr *domain.PipelineError
		if errors.As(err, &pipelineErr) {
			return err
		}
		return domain.NewUnexpectedError(err)
	}

	if !outcome.Success {
		return outcome.Err()
	}

	if outcome.ReportPath != "" {
		job.ReportPath = outcome.ReportPath
	}
	job.AudioArtifacts = outcome.AudioArtifacts

	w.logger.Info("Pipeline succeeded",
		slog.String("job_id", job.ID),
		slog.String("report", job.ReportPath),
		slog.Int("audio_files", len(job.AudioArtifacts)),
	)
	return nil
}

// deliver mails the report. Only a successful send releases the working
// directory; the ledger update that follows is informational.
func (w *Worker) deliver(ctx context.Context, job *domain.Job) attemptResult {
	err := w.delivery.SendReport(ctx, job.Client.Email, job.Client.FullName(), job.ReportPath, job.AudioArtifacts)
	if err != nil {
		w.logger.Error("Delivery failed, job parked",
			slog.String("job_id", job.ID),
			slog.String("email", job.Client.Email),
			slog.String("work_dir", job.WorkDir),
			slog.String("error", err.Error()),
		)
		return attemptResult{status: domain.StatusParked, err: err}
	}

	if err := w.workspace.Remove(job.WorkDir); err != nil {
		w.logger.Warn("Failed to remove working directory",
			slog.String("job_id", job.ID),
			slog.String("work_dir", job.WorkDir),
			slog.String("error", err.Error()),
		)
	}

	res := attemptResult{status: domain.StatusDelivered}
	if err := w.delivery.MarkExpired(ctx, job.Client.Email); err != nil {
		w.logger.Warn("Failed to update ledger",
			slog.String("job_id", job.ID),
			slog.String("email", job.Client.Email),
			slog.String("error", err.Error()),
		)
		res.err = err
	} else {
		res.ledgerMarked = true
	}

	return res
}

func (w *Worker) classifyFailure(job *domain.Job, err error) domain.AttemptStatus {
	if !domain.IsRetryable(err) {
		return domain.StatusDropped
	}
	if w.retry.Exhausted(job.Attempts) {
		return domain.StatusDeadLettered
	}
	return domain.StatusRequeued
}

func (w *Worker) finish(ctx context.Context, job *domain.Job, res attemptResult) {
	if res.err != nil {
		job.LastError = res.err.Error()
	}

	attrs := []any{
		slog.String("job_id", job.ID),
		slog.String("status", res.status.String()),
		slog.Int("attempt", job.Attempts),
	}
	if res.err != nil {
		attrs = append(attrs, slog.String("error", res.err.Error()))
	}

	switch res.status {
	case domain.StatusDelivered:
		w.logger.Info("Job delivered", attrs...)
	case domain.StatusRequeued:
		w.logger.Warn("Job failed, will retry", attrs...)
		w.scheduleRetry(job)
	case domain.StatusDropped:
		w.logger.Error("Job failed, dropped", attrs...)
	case domain.StatusDeadLettered:
		w.logger.Error("Job exceeded max attempts, dead-lettered", attrs...)
	default:
		w.logger.Warn("Job parked", attrs...)
	}

	rec := domain.NewAttemptRecord(job, res.status, res.err)
	rec.LedgerMarked = res.ledgerMarked

	if err := w.recorder.RecordOutcome(ctx, rec); err != nil {
		w.logger.Warn("Failed to record outcome",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
	if err := w.publisher.Publish(ctx, rec); err != nil {
		w.logger.Warn("Failed to publish outcome",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
}

// holdInput keeps a copy of the job's audio outside the path that is about
// to be deleted, so the retry of a failed allocation still has input
func (w *Worker) holdInput(job *domain.Job) {
	held, err := w.workspace.HoldInput(job.ID, job.Attempts, job.AudioPath)
	if err != nil {
		w.logger.Warn("Failed to hold audio input",
			slog.String("job_id", job.ID),
			slog.String("audio_path", job.AudioPath),
			slog.String("error", err.Error()),
		)
		return
	}
	job.AudioPath = held
}

func (w *Worker) removeRawAudio(job *domain.Job, path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		w.logger.Warn("Failed to delete raw audio",
			slog.String("job_id", job.ID),
			slog.String("audio_path", path),
			slog.String("error", err.Error()),
		)
		return
	}
	w.logger.Debug("Raw audio deleted",
		slog.String("job_id", job.ID),
		slog.String("audio_path", path),
	)
}
