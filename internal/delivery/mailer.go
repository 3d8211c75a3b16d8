package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
)

// MailConfig holds SMTP settings
type MailConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	From      string
	FromName  string
	TLSPolicy string // mandatory, opportunistic, none
	Timeout   time.Duration
}

// SMTPMailer sends report emails over SMTP
type SMTPMailer struct {
	cfg    MailConfig
	logger *slog.Logger
}

// NewSMTPMailer creates an SMTPMailer
func NewSMTPMailer(cfg MailConfig, logger *slog.Logger) *SMTPMailer {
	return &SMTPMailer{
		cfg:    cfg,
		logger: logger,
	}
}

// SendReport builds the report email and sends it in a single SMTP session
func (m *SMTPMailer) SendReport(ctx context.Context, recipient, name, reportPath string, audioArtifacts []string) error {
	msg, err := m.BuildMessage(recipient, name, reportPath, audioArtifacts)
	if err != nil {
		return err
	}

	client, err := m.newClient()
	if err != nil {
		return fmt.Errorf("failed to create smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		m.logger.Error("Failed to send email",
			slog.String("recipient", recipient),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

// BuildMessage assembles the report email. Attachments that do not exist on
// disk are skipped.
func (m *SMTPMailer) BuildMessage(recipient, name, reportPath string, audioArtifacts []string) (*mail.Msg, error) {
	msg := mail.NewMsg()

	var err error
	if m.cfg.FromName != "" {
		err = msg.FromFormat(m.cfg.FromName, m.cfg.From)
	} else {
		err = msg.From(m.cfg.From)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}

	if err := msg.To(recipient); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}

	msg.Subject(fmt.Sprintf("Your AO Scan Reports - %s", name))
	msg.SetDate()
	msg.SetMessageID()
	msg.SetBodyString(mail.TypeTextPlain, reportBody(name))

	if reportPath != "" && fileExists(reportPath) {
		msg.AttachFile(reportPath)
	} else {
		m.logger.Warn("Report file missing, sending without it",
			slog.String("report", reportPath),
		)
	}

	for _, audio := range audioArtifacts {
		if !fileExists(audio) {
			m.logger.Warn("Audio file missing, skipping attachment",
				slog.String("audio", audio),
			)
			continue
		}
		msg.AttachFile(audio)
	}

	return msg, nil
}

func (m *SMTPMailer) newClient() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTLSPortPolicy(tlsPolicy(m.cfg.TLSPolicy)),
	}

	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}

	if m.cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(m.cfg.Timeout))
	}

	return mail.NewClient(m.cfg.Host, opts...)
}

func tlsPolicy(p string) mail.TLSPolicy {
	switch strings.ToLower(p) {
	case "opportunistic":
		return mail.TLSOpportunistic
	case "none":
		return mail.NoTLS
	default:
		return mail.TLSMandatory
	}
}

func reportBody(name string) string {
	return fmt.Sprintf(`Dear %s,

Thank you for using our AO Scan service!

We are pleased to provide you with your personalized scan reports. Please find attached:

- Complete AO Scan Report (PDF) - Your comprehensive scan results and analysis
- Audio Healing Frequencies (MP3) - Personalized healing tones based on your scan

How to Use Your Audio Files:
Listen to the provided audio frequencies for 15-20 minutes daily. These frequencies are specifically calibrated to your unique energetic signature and are designed to support your body's natural healing processes.

Important Notes:
- Your access to the scanning system has now been marked as complete
- If you need another scan in the future, please reach out to renew your access
- Keep these files in a safe place for your records

If you have any questions about your results or how to use your healing frequencies, please don't hesitate to contact us.

Wishing you health and wellness,

The AO Scan Team

---
This is an automated message. Please do not reply to this email.
`, name)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
