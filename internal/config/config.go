package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	App       AppConfig       `yaml:"app"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Storage   StorageConfig   `yaml:"storage"`
	Intake    IntakeConfig    `yaml:"intake"`
	Worker    WorkerConfig    `yaml:"worker"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Mail      MailConfig      `yaml:"mail"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// StorageConfig holds the on-disk roots for raw audio and attempt directories
type StorageConfig struct {
	AudioDir string `yaml:"audio_dir"`
	WorkDir  string `yaml:"work_dir"`
}

// IntakeConfig holds submission download limits
type IntakeConfig struct {
	DownloadTimeout time.Duration `yaml:"download_timeout"`
	MaxAudioBytes   int64         `yaml:"max_audio_bytes"`
}

// WorkerConfig holds worker retry and session settings
type WorkerConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	RetryBaseDelay  time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay   time.Duration `yaml:"retry_max_delay"`
	RetryMultiplier float64       `yaml:"retry_multiplier"`
	SessionLockFile string        `yaml:"session_lock_file"`
}

// PipelineConfig holds the automation command
type PipelineConfig struct {
	Command string        `yaml:"command"`
	Args    []string      `yaml:"args"`
	Env     []string      `yaml:"env"`
	Timeout time.Duration `yaml:"timeout"`
}

// MailConfig holds SMTP settings
type MailConfig struct {
	Host      string        `yaml:"host"`
	Port      int           `yaml:"port"`
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
	From      string        `yaml:"from"`
	FromName  string        `yaml:"from_name"`
	TLSPolicy string        `yaml:"tls_policy"`
	Timeout   time.Duration `yaml:"timeout"`
}

// LedgerConfig holds Google Sheets ledger settings
type LedgerConfig struct {
	Enabled         bool   `yaml:"enabled"`
	SpreadsheetID   string `yaml:"spreadsheet_id"`
	SheetName       string `yaml:"sheet_name"`
	EmailColumn     string `yaml:"email_column"`
	ExpireColumn    string `yaml:"expire_column"`
	CredentialsFile string `yaml:"credentials_file"`
	CredentialsJSON string `yaml:"-"`
}

// Credentials returns the service account JSON, reading the credentials
// file when no inline JSON was provided
func (l *LedgerConfig) Credentials() ([]byte, error) {
	if l.CredentialsJSON != "" {
		return []byte(l.CredentialsJSON), nil
	}

	data, err := os.ReadFile(l.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger credentials: %w", err)
	}
	return data, nil
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	MigrationsPath  string        `yaml:"migrations_path"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange configuration
type RabbitMQConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Durable bool   `yaml:"durable"`
}

// QueueConfig holds the optional audit queue bound to the exchange
type QueueConfig struct {
	Name       string `yaml:"name"`
	BindingKey string `yaml:"binding_key"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// ReconcileConfig holds the ledger reconciliation schedule
type ReconcileConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Schedule  string        `yaml:"schedule"`
	BatchSize int           `yaml:"batch_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

// secrets are read from the environment and override the file
type secrets struct {
	SenderEmail      string `envconfig:"SENDER_EMAIL"`
	SenderPassword   string `envconfig:"SENDER_PASSWORD"`
	SpreadsheetID    string `envconfig:"SPREADSHEET_ID"`
	CredentialsJSON  string `envconfig:"CREDENTIALS_JSON"`
	DBPassword       string `envconfig:"DB_PASSWORD"`
	RabbitMQPassword string `envconfig:"RABBITMQ_PASSWORD"`
}

// Default returns the configuration used for any field the file leaves out
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:        "scan-service",
			Environment: "development",
		},
		Server: ServerConfig{
			Port:            5000,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Storage: StorageConfig{
			AudioDir: "data/audio",
			WorkDir:  "data/reports",
		},
		Intake: IntakeConfig{
			DownloadTimeout: 30 * time.Second,
		},
		Worker: WorkerConfig{
			MaxAttempts:     5,
			RetryBaseDelay:  30 * time.Second,
			RetryMaxDelay:   10 * time.Minute,
			RetryMultiplier: 2,
			SessionLockFile: "data/scan-session.lock",
		},
		Mail: MailConfig{
			Host:      "smtp.gmail.com",
			Port:      587,
			TLSPolicy: "mandatory",
			Timeout:   30 * time.Second,
		},
		Ledger: LedgerConfig{
			EmailColumn:  "C",
			ExpireColumn: "D",
		},
		Database: DatabaseConfig{
			Port:           5432,
			SSLMode:        "disable",
			MaxOpenConns:   10,
			MaxIdleConns:   5,
			MigrationsPath: "file://migrations",
		},
		RabbitMQ: RabbitMQConfig{
			Port:  5672,
			VHost: "/",
			Exchange: ExchangeConfig{
				Name:    "scan.events",
				Type:    "topic",
				Durable: true,
			},
			Connection: ConnectionConfig{
				RetryAttempts: 5,
				RetryInterval: 2 * time.Second,
				Heartbeat:     10 * time.Second,
			},
			Publish: PublishConfig{
				RetryAttempts: 3,
				RetryInterval: 100 * time.Millisecond,
			},
		},
		Reconcile: ReconcileConfig{
			Schedule:  "@every 15m",
			BatchSize: 50,
			Timeout:   5 * time.Minute,
		},
	}
}

// Load reads and parses the configuration file on top of the defaults, then
// applies secrets from the environment
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.applySecrets(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) applySecrets() error {
	var s secrets
	if err := envconfig.Process("", &s); err != nil {
		return fmt.Errorf("failed to read secrets from environment: %w", err)
	}

	if s.SenderEmail != "" {
		c.Mail.From = s.SenderEmail
		if c.Mail.Username == "" {
			c.Mail.Username = s.SenderEmail
		}
	}
	if s.SenderPassword != "" {
		c.Mail.Password = s.SenderPassword
	}
	if s.SpreadsheetID != "" {
		c.Ledger.SpreadsheetID = s.SpreadsheetID
	}
	if s.CredentialsJSON != "" {
		c.Ledger.CredentialsJSON = s.CredentialsJSON
	}
	if s.DBPassword != "" {
		c.Database.Password = s.DBPassword
	}
	if s.RabbitMQPassword != "" {
		c.RabbitMQ.Password = s.RabbitMQPassword
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validPort("server", c.Server.Port); err != nil {
		return err
	}

	if c.Storage.AudioDir == "" {
		return fmt.Errorf("storage audio_dir is required")
	}
	if c.Storage.WorkDir == "" {
		return fmt.Errorf("storage work_dir is required")
	}

	if c.Pipeline.Command == "" {
		return fmt.Errorf("pipeline command is required")
	}

	if c.Worker.MaxAttempts < 0 {
		return fmt.Errorf("worker max_attempts must not be negative")
	}
	if c.Worker.RetryBaseDelay > 0 && c.Worker.RetryMultiplier < 1 {
		return fmt.Errorf("worker retry_multiplier must be at least 1")
	}
	if c.Worker.RetryMaxDelay > 0 && c.Worker.RetryMaxDelay < c.Worker.RetryBaseDelay {
		return fmt.Errorf("worker retry_max_delay must not be less than retry_base_delay")
	}
	if c.Worker.SessionLockFile == "" {
		return fmt.Errorf("worker session_lock_file is required")
	}

	if c.Mail.Host == "" {
		return fmt.Errorf("mail host is required")
	}
	if err := validPort("mail", c.Mail.Port); err != nil {
		return err
	}
	if c.Mail.From == "" {
		return fmt.Errorf("mail sender is required (mail.from or SENDER_EMAIL)")
	}

	if c.Ledger.Enabled {
		if c.Ledger.SpreadsheetID == "" {
			return fmt.Errorf("ledger spreadsheet_id is required (or SPREADSHEET_ID)")
		}
		if c.Ledger.CredentialsJSON == "" && c.Ledger.CredentialsFile == "" {
			return fmt.Errorf("ledger credentials_file or CREDENTIALS_JSON is required")
		}
	}

	if c.Database.Enabled {
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if err := validPort("database", c.Database.Port); err != nil {
			return err
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	if c.RabbitMQ.Enabled {
		if c.RabbitMQ.Host == "" {
			return fmt.Errorf("rabbitmq host is required")
		}
		if err := validPort("rabbitmq", c.RabbitMQ.Port); err != nil {
			return err
		}
		if c.RabbitMQ.Exchange.Name == "" {
			return fmt.Errorf("rabbitmq exchange name is required")
		}
	}

	if c.Reconcile.Enabled {
		if !c.Ledger.Enabled {
			return fmt.Errorf("reconcile requires the ledger to be enabled")
		}
		if _, err := cron.ParseStandard(c.Reconcile.Schedule); err != nil {
			return fmt.Errorf("invalid reconcile schedule %q: %w", c.Reconcile.Schedule, err)
		}
		if c.Reconcile.BatchSize <= 0 {
			return fmt.Errorf("reconcile batch_size must be greater than 0")
		}
	}

	return nil
}

func validPort(name string, port int) error {
	if port < MinPort || port > MaxPort {
		return fmt.Errorf("invalid %s port: %d (must be between %d and %d)", name, port, MinPort, MaxPort)
	}
	return nil
}
