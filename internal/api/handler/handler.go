package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/scan-service/internal/domain"
	"github.com/cuongbtq/scan-service/internal/gateway"
)

// Submitter accepts client submissions
type Submitter interface {
	Submit(ctx context.Context, sub gateway.Submission) (*gateway.Receipt, error)
}

// StatusReporter exposes the worker's current activity
type StatusReporter interface {
	QueueSize() int
	IsProcessing() bool
	RetryScheduled() int
}

// OutcomeLister lists recorded attempt outcomes
type OutcomeLister interface {
	List(ctx context.Context, status domain.AttemptStatus, limit int) ([]*domain.AttemptRecord, error)
}

// Redeliverer resends the report of a parked job
type Redeliverer interface {
	Redeliver(ctx context.Context, jobID string) (*domain.AttemptRecord, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger   *slog.Logger
	Gateway  Submitter
	Worker   StatusReporter
	Outcomes OutcomeLister
	Recovery Redeliverer
}

// ClientHandler handles client submission and status requests
type ClientHandler struct {
	logger  *slog.Logger
	gateway Submitter
	worker  StatusReporter
}

// NewClientHandler creates a new ClientHandler instance
func NewClientHandler(deps *Dependencies) *ClientHandler {
	return &ClientHandler{
		logger:  deps.Logger,
		gateway: deps.Gateway,
		worker:  deps.Worker,
	}
}

// JobHandler handles outcome listing and recovery requests
type JobHandler struct {
	logger   *slog.Logger
	outcomes OutcomeLister
	recovery Redeliverer
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:   deps.Logger,
		outcomes: deps.Outcomes,
		recovery: deps.Recovery,
	}
}
