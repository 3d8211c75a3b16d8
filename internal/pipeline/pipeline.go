package pipeline

import (
	"context"

	"github.com/cuongbtq/scan-service/internal/domain"
	"github.com/cuongbtq/scan-service/internal/workspace"
)

// Outcome is the tagged result of one pipeline run: either a success carrying
// the report and audio artifacts, or a failure carrying a retryability flag.
type Outcome struct {
	Success        bool
	ReportPath     string
	AudioArtifacts []string
	Message        string
	Retryable      bool
}

// Succeeded builds a success outcome
func Succeeded(reportPath string, audioArtifacts []string) Outcome {
	return Outcome{
		Success:        true,
		ReportPath:     reportPath,
		AudioArtifacts: audioArtifacts,
	}
}

// Failed builds a failure outcome
func Failed(message string, retryable bool) Outcome {
	return Outcome{
		Message:   message,
		Retryable: retryable,
	}
}

// Err returns the failure as a *domain.PipelineError, or nil on success
func (o Outcome) Err() error {
	if o.Success {
		return nil
	}
	return &domain.PipelineError{Message: o.Message, Retryable: o.Retryable}
}

// Collaborator turns a job and its attempt directory into an Outcome.
//
// Implementations must not touch the queue or the job's client fields. A
// returned error means the collaborator could not classify what happened; the
// worker treats it as an unexpected, retryable fault.
type Collaborator interface {
	Run(ctx context.Context, job *domain.Job, attempt *workspace.Attempt) (Outcome, error)
}

// CollaboratorFunc adapts a function to the Collaborator interface
type CollaboratorFunc func(ctx context.Context, job *domain.Job, attempt *workspace.Attempt) (Outcome, error)

// Run calls f
func (f CollaboratorFunc) Run(ctx context.Context, job *domain.Job, attempt *workspace.Attempt) (Outcome, error) {
	return f(ctx, job, attempt)
}
