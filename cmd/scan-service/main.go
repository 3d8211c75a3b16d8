package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/cuongbtq/scan-service/internal/api/handler"
	"github.com/cuongbtq/scan-service/internal/api/router"
	"github.com/cuongbtq/scan-service/internal/config"
	"github.com/cuongbtq/scan-service/internal/delivery"
	"github.com/cuongbtq/scan-service/internal/domain"
	"github.com/cuongbtq/scan-service/internal/events"
	"github.com/cuongbtq/scan-service/internal/gateway"
	"github.com/cuongbtq/scan-service/internal/pipeline"
	"github.com/cuongbtq/scan-service/internal/queue"
	"github.com/cuongbtq/scan-service/internal/recovery"
	"github.com/cuongbtq/scan-service/internal/storage"
	"github.com/cuongbtq/scan-service/internal/worker"
	"github.com/cuongbtq/scan-service/internal/workspace"
	"github.com/cuongbtq/scan-service/shared/logger"
	"github.com/cuongbtq/scan-service/shared/postgresql"
	"github.com/cuongbtq/scan-service/shared/rabbitmq"
)

// outcomeStore is satisfied by both the Postgres and the in-memory store
type outcomeStore interface {
	worker.OutcomeRecorder
	recovery.Store
	handler.OutcomeLister
}

// eventPublisher stays a nil interface when events are disabled
type eventPublisher interface {
	Publish(ctx context.Context, rec *domain.AttemptRecord) error
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("SCAN_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/scan-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()
	lg := appLogger.Logger

	lg.Info("Starting scan service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Only one automation session may run against the site at a time
	lock, err := worker.AcquireSessionLock(cfg.Worker.SessionLockFile, lg)
	if err != nil {
		return fmt.Errorf("failed to acquire session lock: %w", err)
	}
	defer lock.Release()

	store, closeStore, err := initStore(ctx, &cfg.Database, lg)
	if err != nil {
		return fmt.Errorf("failed to initialize outcome store: %w", err)
	}
	defer closeStore()

	publisher, closeEvents, err := initEvents(ctx, &cfg.RabbitMQ, lg)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer closeEvents()

	work, err := workspace.NewManager(cfg.Storage.WorkDir, lg)
	if err != nil {
		return fmt.Errorf("failed to initialize workspace: %w", err)
	}

	jobs := queue.New()

	gw, err := gateway.New(gateway.Config{
		AudioDir:        cfg.Storage.AudioDir,
		DownloadTimeout: cfg.Intake.DownloadTimeout,
		MaxAudioBytes:   cfg.Intake.MaxAudioBytes,
	}, jobs, nil, lg)
	if err != nil {
		return fmt.Errorf("failed to initialize gateway: %w", err)
	}

	gate, err := initDelivery(ctx, cfg, lg)
	if err != nil {
		return fmt.Errorf("failed to initialize delivery: %w", err)
	}

	w := worker.NewWorker(&worker.Config{
		Logger:    lg,
		Queue:     jobs,
		Workspace: work,
		Pipeline: pipeline.NewCommandCollaborator(pipeline.CommandConfig{
			Command: cfg.Pipeline.Command,
			Args:    cfg.Pipeline.Args,
			Env:     cfg.Pipeline.Env,
			Timeout: cfg.Pipeline.Timeout,
		}, lg),
		Delivery:  gate,
		Recorder:  store,
		Publisher: publisher,
		Retry: worker.RetryPolicy{
			MaxAttempts: cfg.Worker.MaxAttempts,
			BaseDelay:   cfg.Worker.RetryBaseDelay,
			MaxDelay:    cfg.Worker.RetryMaxDelay,
			Multiplier:  cfg.Worker.RetryMultiplier,
		},
	})

	recoverySvc := recovery.NewService(store, gate, work, publisher, cfg.Reconcile.BatchSize, lg)

	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: initRouter(cfg.App.Environment, &handler.Dependencies{
			Logger:   lg,
			Gateway:  gw,
			Worker:   w,
			Outcomes: store,
			Recovery: recoverySvc,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return w.Start(gctx)
	})

	if cfg.Reconcile.Enabled {
		scheduler, err := recovery.NewScheduler(cfg.Reconcile.Schedule, recoverySvc, cfg.Reconcile.Timeout, lg)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return scheduler.Run(gctx)
		})
	}

	g.Go(func() error {
		lg.Info("Starting HTTP server",
			slog.String("address", srv.Addr),
			slog.Duration("read_timeout", cfg.Server.ReadTimeout),
			slog.Duration("write_timeout", cfg.Server.WriteTimeout),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		lg.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server forced to shutdown",
				slog.Any("error", err),
			)
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	lg.Info("Scan service stopped")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// initStore connects to PostgreSQL and applies migrations, or falls back to
// an in-memory store when the database is disabled
func initStore(ctx context.Context, cfg *config.DatabaseConfig, lg *slog.Logger) (outcomeStore, func(), error) {
	if !cfg.Enabled {
		lg.Warn("Database disabled, outcomes are kept in memory only")
		return storage.NewMemoryStore(), func() {}, nil
	}

	client, err := postgresql.NewClient(ctx, &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}, lg)
	if err != nil {
		return nil, nil, err
	}

	if err := client.Migrate(cfg.MigrationsPath); err != nil {
		client.Close()
		return nil, nil, err
	}

	closeFn := func() {
		if err := client.Close(); err != nil {
			lg.Error("Failed to close database", slog.Any("error", err))
		}
	}
	return storage.NewPostgresStore(client.GetDB(), lg), closeFn, nil
}

// initEvents connects the lifecycle event publisher when RabbitMQ is enabled
func initEvents(ctx context.Context, cfg *config.RabbitMQConfig, lg *slog.Logger) (eventPublisher, func(), error) {
	if !cfg.Enabled {
		return nil, func() {}, nil
	}

	client, err := rabbitmq.NewClient(ctx, &rabbitmq.Config{
		Host:              cfg.Host,
		Port:              cfg.Port,
		User:              cfg.User,
		Password:          cfg.Password,
		VHost:             cfg.VHost,
		ExchangeName:      cfg.Exchange.Name,
		ExchangeType:      cfg.Exchange.Type,
		ExchangeDurable:   cfg.Exchange.Durable,
		QueueName:         cfg.Queue.Name,
		BindingKey:        cfg.Queue.BindingKey,
		RetryAttempts:     cfg.Connection.RetryAttempts,
		RetryInterval:     cfg.Connection.RetryInterval,
		Heartbeat:         cfg.Connection.Heartbeat,
		PublishRetries:    cfg.Publish.RetryAttempts,
		PublishRetryDelay: cfg.Publish.RetryInterval,
	}, lg)
	if err != nil {
		return nil, nil, err
	}

	lg.Info("RabbitMQ connection established")

	closeFn := func() {
		if err := client.Close(); err != nil {
			lg.Error("Failed to close RabbitMQ client", slog.Any("error", err))
		}
	}
	return events.NewPublisher(client, lg), closeFn, nil
}

// initDelivery builds the mail and ledger gate
func initDelivery(ctx context.Context, cfg *config.Config, lg *slog.Logger) (*delivery.Gate, error) {
	mailer := delivery.NewSMTPMailer(delivery.MailConfig{
		Host:      cfg.Mail.Host,
		Port:      cfg.Mail.Port,
		Username:  cfg.Mail.Username,
		Password:  cfg.Mail.Password,
		From:      cfg.Mail.From,
		FromName:  cfg.Mail.FromName,
		TLSPolicy: cfg.Mail.TLSPolicy,
		Timeout:   cfg.Mail.Timeout,
	}, lg)

	if !cfg.Ledger.Enabled {
		lg.Warn("Ledger disabled, clients will not be marked expired")
		return delivery.NewGate(mailer, nil, lg), nil
	}

	creds, err := cfg.Ledger.Credentials()
	if err != nil {
		return nil, err
	}

	ledger, err := delivery.NewSheetsLedger(ctx, delivery.LedgerConfig{
		SpreadsheetID:   cfg.Ledger.SpreadsheetID,
		SheetName:       cfg.Ledger.SheetName,
		EmailColumn:     cfg.Ledger.EmailColumn,
		ExpireColumn:    cfg.Ledger.ExpireColumn,
		CredentialsJSON: string(creds),
	}, lg)
	if err != nil {
		return nil, err
	}

	return delivery.NewGate(mailer, ledger, lg), nil
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(environment string, deps *handler.Dependencies) *gin.Engine {
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(deps)
}
