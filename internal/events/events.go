package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/scan-service/internal/domain"
)

// Sender delivers an encoded event under a routing key
type Sender interface {
	Publish(ctx context.Context, routingKey string, body []byte, contentType string) error
}

// Event is the message body published for every finished attempt
type Event struct {
	Type       string                `json:"type"`
	OccurredAt time.Time             `json:"occurred_at"`
	Record     *domain.AttemptRecord `json:"record"`
}

// RoutingKey returns the routing key for an attempt status, e.g. job.parked
func RoutingKey(status domain.AttemptStatus) string {
	return "job." + status.String()
}

// Publisher turns attempt records into lifecycle events
type Publisher struct {
	sender Sender
	logger *slog.Logger
}

// NewPublisher creates a new Publisher instance
func NewPublisher(sender Sender, logger *slog.Logger) *Publisher {
	return &Publisher{
		sender: sender,
		logger: logger,
	}
}

// Publish sends a job.<status> event for rec
func (p *Publisher) Publish(ctx context.Context, rec *domain.AttemptRecord) error {
	key := RoutingKey(rec.Status)
	body, err := json.Marshal(Event{
		Type:       key,
		OccurredAt: time.Now().UTC(),
		Record:     rec,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.sender.Publish(ctx, key, body, "application/json"); err != nil {
		return fmt.Errorf("failed to publish %s: %w", key, err)
	}

	p.logger.Debug("Event published",
		slog.String("type", key),
		slog.String("job_id", rec.JobID),
	)
	return nil
}
