package delivery

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/scan-service/internal/domain"
)

type stubMailer struct {
	err   error
	calls int
}

func (s *stubMailer) SendReport(context.Context, string, string, string, []string) error {
	s.calls++
	return s.err
}

type stubLedger struct {
	err    error
	emails []string
}

func (s *stubLedger) MarkExpired(_ context.Context, email string) error {
	s.emails = append(s.emails, email)
	return s.err
}

func TestGate_SendReport(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	t.Run("success", func(t *testing.T) {
		mailer := &stubMailer{}
		gate := NewGate(mailer, nil, logger)

		require.NoError(t, gate.SendReport(context.Background(), "jane@example.com", "Jane Doe", "r.pdf", nil))
		assert.Equal(t, 1, mailer.calls)
	})

	t.Run("failure wrapped as delivery error", func(t *testing.T) {
		cause := errors.New("535 authentication failed")
		gate := NewGate(&stubMailer{err: cause}, nil, logger)

		err := gate.SendReport(context.Background(), "jane@example.com", "Jane Doe", "r.pdf", nil)

		var derr *domain.DeliveryError
		require.ErrorAs(t, err, &derr)
		assert.Equal(t, "jane@example.com", derr.Recipient)
		assert.ErrorIs(t, err, cause)
		assert.False(t, domain.IsRetryable(err))
	})
}

func TestGate_MarkExpired(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	t.Run("disabled ledger", func(t *testing.T) {
		gate := NewGate(&stubMailer{}, nil, logger)
		assert.ErrorIs(t, gate.MarkExpired(context.Background(), "jane@example.com"), ErrLedgerDisabled)
	})

	t.Run("forwards to ledger", func(t *testing.T) {
		ledger := &stubLedger{}
		gate := NewGate(&stubMailer{}, ledger, logger)

		require.NoError(t, gate.MarkExpired(context.Background(), "jane@example.com"))
		assert.Equal(t, []string{"jane@example.com"}, ledger.emails)
	})

	t.Run("ledger error returned", func(t *testing.T) {
		gate := NewGate(&stubMailer{}, &stubLedger{err: ErrLedgerRowNotFound}, logger)
		assert.ErrorIs(t, gate.MarkExpired(context.Background(), "jane@example.com"), ErrLedgerRowNotFound)
	})
}
