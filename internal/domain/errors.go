package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrQueueClosed is returned by Dequeue once the queue is shut down
	ErrQueueClosed = errors.New("queue closed")

	// ErrJobNotFound is returned when a job record cannot be found
	ErrJobNotFound = errors.New("job not found")

	// ErrNotParked is returned when a recovery action targets a job that is not parked
	ErrNotParked = errors.New("job is not parked")
)

// ValidationError lists every missing required field of a submission
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "Missing required fields: " + strings.Join(e.Fields, ", ")
}

// DownloadError means the inbound audio artifact could not be fetched
type DownloadError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *DownloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("Error downloading audio: %s", e.Err.Error())
	}
	return fmt.Sprintf("Failed to download audio file. Status: %d", e.StatusCode)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// PipelineError is a failure classified by the pipeline collaborator
type PipelineError struct {
	Message   string
	Retryable bool
}

func (e *PipelineError) Error() string {
	if e.Retryable {
		return "pipeline failed (retryable): " + e.Message
	}
	return "pipeline failed: " + e.Message
}

// UnexpectedError wraps any uncaught fault during an attempt
type UnexpectedError struct {
	Err error
}

func (e *UnexpectedError) Error() string {
	return "unexpected error: " + e.Err.Error()
}

func (e *UnexpectedError) Unwrap() error {
	return e.Err
}

// NewUnexpectedError wraps err as an UnexpectedError
func NewUnexpectedError(err error) error {
	return &UnexpectedError{Err: err}
}

// DeliveryError means the report could not be mailed to the client
type DeliveryError struct {
	Recipient string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %s failed: %s", e.Recipient, e.Err.Error())
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err should cause the job to be requeued.
// Unexpected errors are conservatively retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var pipelineErr *PipelineError
	if errors.As(err, &pipelineErr) {
		return pipelineErr.Retryable
	}

	var unexpectedErr *UnexpectedError
	if errors.As(err, &unexpectedErr) {
		return true
	}

	var deliveryErr *DeliveryError
	if errors.As(err, &deliveryErr) {
		return false
	}

	return true
}
