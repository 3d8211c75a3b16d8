package delivery

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

type fakeSheet struct {
	mu      sync.Mutex
	title   string
	emails  [][]interface{}
	updates map[string]interface{}
	query   string
}

func (f *fakeSheet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/values/"):
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"range":          "Sheet1!C1:C100",
			"majorDimension": "ROWS",
			"values":         f.emails,
		})
	case r.Method == http.MethodGet:
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"sheets": []map[string]interface{}{
				{"properties": map[string]interface{}{"title": f.title}},
			},
		})
	case r.Method == http.MethodPut:
		var body struct {
			Values [][]interface{} `json:"values"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		cell := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		f.updates[cell] = body.Values[0][0]
		f.query = r.URL.Query().Get("valueInputOption")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"updatedCells": 1})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestLedger(t *testing.T, sheet *fakeSheet, cfg LedgerConfig) *SheetsLedger {
	t.Helper()

	ts := httptest.NewServer(sheet)
	t.Cleanup(ts.Close)

	ledger, err := NewSheetsLedger(context.Background(), cfg, slog.New(slog.DiscardHandler),
		option.WithEndpoint(ts.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(ts.Client()),
	)
	require.NoError(t, err)
	return ledger
}

func TestSheetsLedger_MarkExpired(t *testing.T) {
	emails := [][]interface{}{
		{"Email"},
		{"someone@example.com"},
		{},
		{"jane@example.com"},
	}

	tests := []struct {
		name     string
		cfg      LedgerConfig
		title    string
		email    string
		wantCell string
		wantErr  error
	}{
		{
			name:     "named sheet",
			cfg:      LedgerConfig{SpreadsheetID: "sheet-id", SheetName: "Clients"},
			email:    "jane@example.com",
			wantCell: "'Clients'!D4",
		},
		{
			name:     "first sheet discovered",
			cfg:      LedgerConfig{SpreadsheetID: "sheet-id"},
			title:    "Roster",
			email:    "someone@example.com",
			wantCell: "'Roster'!D2",
		},
		{
			name:     "custom expire column",
			cfg:      LedgerConfig{SpreadsheetID: "sheet-id", SheetName: "Clients", ExpireColumn: "F"},
			email:    "jane@example.com",
			wantCell: "'Clients'!F4",
		},
		{
			name:    "email not present",
			cfg:     LedgerConfig{SpreadsheetID: "sheet-id", SheetName: "Clients"},
			email:   "nobody@example.com",
			wantErr: ErrLedgerRowNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sheet := &fakeSheet{title: tt.title, emails: emails, updates: map[string]interface{}{}}
			ledger := newTestLedger(t, sheet, tt.cfg)

			err := ledger.MarkExpired(context.Background(), tt.email)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, sheet.updates)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, map[string]interface{}{tt.wantCell: "TRUE"}, sheet.updates)
			assert.Equal(t, "USER_ENTERED", sheet.query)
		})
	}
}

func TestSheetsLedger_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	ledger, err := NewSheetsLedger(context.Background(),
		LedgerConfig{SpreadsheetID: "sheet-id", SheetName: "Clients"},
		slog.New(slog.DiscardHandler),
		option.WithEndpoint(ts.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(ts.Client()),
	)
	require.NoError(t, err)

	err = ledger.MarkExpired(context.Background(), "jane@example.com")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrLedgerRowNotFound)
}

func TestNewSheetsLedger_Validation(t *testing.T) {
	_, err := NewSheetsLedger(context.Background(), LedgerConfig{}, slog.New(slog.DiscardHandler))
	assert.Error(t, err)

	_, err = NewSheetsLedger(context.Background(), LedgerConfig{SpreadsheetID: "id"}, slog.New(slog.DiscardHandler))
	assert.Error(t, err)
}
