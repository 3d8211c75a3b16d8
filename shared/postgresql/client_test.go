package postgresql

import (
	"io"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DSN(t *testing.T) {
	cfg := &Config{
		Host:     "db",
		Port:     5433,
		User:     "scan",
		Password: "secret",
		Database: "scan_db",
		SSLMode:  "disable",
	}

	assert.Equal(t, "host=db port=5433 user=scan password=secret dbname=scan_db sslmode=disable", cfg.DSN())
}

func TestClient_Close(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectClose()

	client := &Client{
		db:     sqlx.NewDb(db, "postgres"),
		config: &Config{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	require.NoError(t, client.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}
