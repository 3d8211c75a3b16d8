package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			assert.Equal(t, 8080, cfg.Server.Port)
			assert.Equal(t, "/var/lib/scan/audio", cfg.Storage.AudioDir)
			assert.Equal(t, 20*time.Second, cfg.Intake.DownloadTimeout)
			assert.Equal(t, int64(52428800), cfg.Intake.MaxAudioBytes)
			assert.Equal(t, 3, cfg.Worker.MaxAttempts)
			assert.Equal(t, float64(3), cfg.Worker.RetryMultiplier)
			assert.Equal(t, []string{"automation.py"}, cfg.Pipeline.Args)
			assert.Equal(t, 15*time.Minute, cfg.Pipeline.Timeout)
			assert.Equal(t, "scan_db", cfg.Database.Database)
			assert.Equal(t, "job.#", cfg.RabbitMQ.Queue.BindingKey)
			assert.Equal(t, "*/10 * * * *", cfg.Reconcile.Schedule)

			// left out of the file
			assert.Equal(t, 5432, cfg.Database.Port)
			assert.Equal(t, "topic", cfg.RabbitMQ.Exchange.Type)
			assert.Equal(t, "mandatory", cfg.Mail.TLSPolicy)
			assert.Equal(t, "C", cfg.Ledger.EmailColumn)
			assert.Equal(t, 50, cfg.Reconcile.BatchSize)

			assert.NoError(t, cfg.Validate())
		})
	}
}

func TestLoad_SecretsFromEnvironment(t *testing.T) {
	t.Setenv("SENDER_EMAIL", "sender@example.com")
	t.Setenv("SENDER_PASSWORD", "app-password")
	t.Setenv("SPREADSHEET_ID", "sheet-from-env")
	t.Setenv("CREDENTIALS_JSON", `{"type":"service_account"}`)
	t.Setenv("DB_PASSWORD", "db-secret")
	t.Setenv("RABBITMQ_PASSWORD", "mq-secret")

	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "sender@example.com", cfg.Mail.From)
	assert.Equal(t, "sender@example.com", cfg.Mail.Username)
	assert.Equal(t, "app-password", cfg.Mail.Password)
	assert.Equal(t, "sheet-from-env", cfg.Ledger.SpreadsheetID)
	assert.Equal(t, "db-secret", cfg.Database.Password)
	assert.Equal(t, "mq-secret", cfg.RabbitMQ.Password)

	creds, err := cfg.Ledger.Credentials()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"service_account"}`, string(creds))
}

func validConfig() *Config {
	cfg := Default()
	cfg.Pipeline.Command = "automation"
	cfg.Mail.From = "scans@example.com"
	return cfg
}

func enableLedger(c *Config) {
	c.Ledger.Enabled = true
	c.Ledger.SpreadsheetID = "sheet"
	c.Ledger.CredentialsJSON = `{"type":"service_account"}`
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		errString string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:      "invalid server port - too low",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			errString: "invalid server port",
		},
		{
			name:      "invalid server port - too high",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			errString: "invalid server port",
		},
		{
			name:      "missing work dir",
			mutate:    func(c *Config) { c.Storage.WorkDir = "" },
			errString: "storage work_dir is required",
		},
		{
			name:      "missing pipeline command",
			mutate:    func(c *Config) { c.Pipeline.Command = "" },
			errString: "pipeline command is required",
		},
		{
			name:      "negative max attempts",
			mutate:    func(c *Config) { c.Worker.MaxAttempts = -1 },
			errString: "max_attempts",
		},
		{
			name:   "unbounded retries allowed",
			mutate: func(c *Config) { c.Worker.MaxAttempts = 0 },
		},
		{
			name:      "shrinking backoff",
			mutate:    func(c *Config) { c.Worker.RetryMultiplier = 0.5 },
			errString: "retry_multiplier",
		},
		{
			name:      "max delay below base",
			mutate:    func(c *Config) { c.Worker.RetryMaxDelay = time.Second },
			errString: "retry_max_delay",
		},
		{
			name:      "missing sender",
			mutate:    func(c *Config) { c.Mail.From = "" },
			errString: "mail sender is required",
		},
		{
			name: "ledger without credentials",
			mutate: func(c *Config) {
				c.Ledger.Enabled = true
				c.Ledger.SpreadsheetID = "sheet"
			},
			errString: "credentials",
		},
		{
			name: "database enabled without name",
			mutate: func(c *Config) {
				c.Database.Enabled = true
				c.Database.Host = "localhost"
			},
			errString: "database name is required",
		},
		{
			name: "rabbitmq enabled without host",
			mutate: func(c *Config) {
				c.RabbitMQ.Enabled = true
			},
			errString: "rabbitmq host is required",
		},
		{
			name: "reconcile without ledger",
			mutate: func(c *Config) {
				c.Reconcile.Enabled = true
			},
			errString: "reconcile requires the ledger",
		},
		{
			name: "bad reconcile schedule",
			mutate: func(c *Config) {
				enableLedger(c)
				c.Reconcile.Enabled = true
				c.Reconcile.Schedule = "every tuesday"
			},
			errString: "invalid reconcile schedule",
		},
		{
			name: "reconcile descriptor",
			mutate: func(c *Config) {
				enableLedger(c)
				c.Reconcile.Enabled = true
				c.Reconcile.Schedule = "@hourly"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.errString == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}
