package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	defaultEmailColumn  = "C"
	defaultExpireColumn = "D"
	expiredValue        = "TRUE"
)

// LedgerConfig holds Google Sheets ledger settings
type LedgerConfig struct {
	SpreadsheetID   string
	SheetName       string // empty means the first sheet
	EmailColumn     string
	ExpireColumn    string
	CredentialsJSON string
}

// SheetsLedger marks clients as expired in a Google spreadsheet
type SheetsLedger struct {
	cfg    LedgerConfig
	srv    *sheets.Service
	logger *slog.Logger
}

// NewSheetsLedger creates a SheetsLedger. When opts is empty the service
// account credentials from cfg are used.
func NewSheetsLedger(ctx context.Context, cfg LedgerConfig, logger *slog.Logger, opts ...option.ClientOption) (*SheetsLedger, error) {
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}
	if cfg.EmailColumn == "" {
		cfg.EmailColumn = defaultEmailColumn
	}
	if cfg.ExpireColumn == "" {
		cfg.ExpireColumn = defaultExpireColumn
	}

	if len(opts) == 0 {
		if cfg.CredentialsJSON == "" {
			return nil, fmt.Errorf("credentials json is required")
		}
		opts = []option.ClientOption{
			option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)),
			option.WithScopes(sheets.SpreadsheetsScope),
		}
	}

	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &SheetsLedger{
		cfg:    cfg,
		srv:    srv,
		logger: logger,
	}, nil
}

// MarkExpired finds the row whose email column equals email and sets its
// expire column to TRUE
func (l *SheetsLedger) MarkExpired(ctx context.Context, email string) error {
	sheet, err := l.sheetName(ctx)
	if err != nil {
		return err
	}

	lookup := fmt.Sprintf("%s!%s:%s", quoteSheet(sheet), l.cfg.EmailColumn, l.cfg.EmailColumn)
	resp, err := l.srv.Spreadsheets.Values.Get(l.cfg.SpreadsheetID, lookup).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to read ledger: %w", err)
	}

	row := 0
	for i, values := range resp.Values {
		if len(values) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(values[0])) == email {
			row = i + 1
			break
		}
	}

	if row == 0 {
		l.logger.Warn("Email not found in ledger",
			slog.String("email", email),
		)
		return fmt.Errorf("%w: %s", ErrLedgerRowNotFound, email)
	}

	target := fmt.Sprintf("%s!%s%d", quoteSheet(sheet), l.cfg.ExpireColumn, row)
	_, err = l.srv.Spreadsheets.Values.Update(l.cfg.SpreadsheetID, target, &sheets.ValueRange{
		Values: [][]interface{}{{expiredValue}},
	}).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update ledger: %w", err)
	}

	l.logger.Debug("Ledger row marked expired",
		slog.String("email", email),
		slog.Int("row", row),
	)
	return nil
}

func (l *SheetsLedger) sheetName(ctx context.Context) (string, error) {
	if l.cfg.SheetName != "" {
		return l.cfg.SheetName, nil
	}

	ss, err := l.srv.Spreadsheets.Get(l.cfg.SpreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to read spreadsheet: %w", err)
	}
	if len(ss.Sheets) == 0 || ss.Sheets[0].Properties == nil {
		return "", fmt.Errorf("spreadsheet %s has no sheets", l.cfg.SpreadsheetID)
	}

	return ss.Sheets[0].Properties.Title, nil
}

func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
