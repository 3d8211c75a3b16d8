package delivery

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cuongbtq/scan-service/internal/domain"
)

var (
	// ErrLedgerRowNotFound is returned when no ledger row matches the email
	ErrLedgerRowNotFound = errors.New("email not found in ledger")

	// ErrLedgerDisabled is returned by the ledger when it is not configured
	ErrLedgerDisabled = errors.New("ledger not configured")
)

// Mailer sends the generated report bundle to a client
type Mailer interface {
	SendReport(ctx context.Context, recipient, name, reportPath string, audioArtifacts []string) error
}

// Ledger records that a client's access has been used up
type Ledger interface {
	MarkExpired(ctx context.Context, email string) error
}

// Gate delivers reports and updates the ledger. Both operations are best
// effort; callers decide how each result affects cleanup.
type Gate struct {
	mailer Mailer
	ledger Ledger
	logger *slog.Logger
}

// NewGate creates a Gate. A nil ledger is replaced by one that always
// returns ErrLedgerDisabled.
func NewGate(mailer Mailer, ledger Ledger, logger *slog.Logger) *Gate {
	if ledger == nil {
		ledger = DisabledLedger{}
	}
	return &Gate{
		mailer: mailer,
		ledger: ledger,
		logger: logger,
	}
}

// SendReport mails the report and audio artifacts to recipient
func (g *Gate) SendReport(ctx context.Context, recipient, name, reportPath string, audioArtifacts []string) error {
	g.logger.Info("Sending report",
		slog.String("recipient", recipient),
		slog.String("report", reportPath),
		slog.Int("audio_files", len(audioArtifacts)),
	)

	if err := g.mailer.SendReport(ctx, recipient, name, reportPath, audioArtifacts); err != nil {
		return &domain.DeliveryError{Recipient: recipient, Err: err}
	}

	g.logger.Info("Report sent",
		slog.String("recipient", recipient),
	)
	return nil
}

// MarkExpired flags the client's ledger row as expired
func (g *Gate) MarkExpired(ctx context.Context, email string) error {
	if err := g.ledger.MarkExpired(ctx, email); err != nil {
		return err
	}

	g.logger.Info("Ledger updated",
		slog.String("email", email),
	)
	return nil
}

// DisabledLedger is used when no ledger is configured
type DisabledLedger struct{}

// MarkExpired always fails with ErrLedgerDisabled
func (DisabledLedger) MarkExpired(context.Context, string) error {
	return ErrLedgerDisabled
}
