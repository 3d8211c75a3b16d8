package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cuongbtq/scan-service/internal/domain"
	"github.com/cuongbtq/scan-service/internal/workspace"
)

const (
	defaultDownloadTimeout = 30 * time.Second
	statusQueued           = "queued"
)

// Enqueuer accepts jobs for processing
type Enqueuer interface {
	Enqueue(job *domain.Job) (int, error)
}

// Config holds gateway configuration
type Config struct {
	AudioDir        string
	DownloadTimeout time.Duration
	MaxAudioBytes   int64 // 0 means unlimited
}

// Submission is a client registration together with the audio to fetch
type Submission struct {
	Client   domain.Client
	AudioURL string
}

// Receipt is returned once a submission has been queued
type Receipt struct {
	JobID         string
	ClientName    string
	Email         string
	QueuePosition int
	Status        string
}

// Gateway validates submissions, fetches their audio and enqueues a job.
// It never waits for processing.
type Gateway struct {
	cfg    Config
	client *http.Client
	queue  Enqueuer
	logger *slog.Logger
}

// New creates a Gateway. A nil client gets a default one bounded by the
// download timeout.
func New(cfg Config, queue Enqueuer, client *http.Client, logger *slog.Logger) (*Gateway, error) {
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = defaultDownloadTimeout
	}
	if err := os.MkdirAll(cfg.AudioDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audio dir: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.DownloadTimeout}
	}

	return &Gateway{
		cfg:    cfg,
		client: client,
		queue:  queue,
		logger: logger,
	}, nil
}

// Validate returns a ValidationError naming every missing required field
func Validate(sub Submission) error {
	fields := []struct {
		name  string
		value string
	}{
		{"first_name", sub.Client.FirstName},
		{"last_name", sub.Client.LastName},
		{"email", sub.Client.Email},
		{"gender", sub.Client.Gender},
		{"weight", sub.Client.Weight},
		{"weight_unit", sub.Client.WeightUnit},
		{"height", sub.Client.Height},
		{"height_unit", sub.Client.HeightUnit},
		{"date_of_birth", sub.Client.DateOfBirth},
		{"audio_url", sub.AudioURL},
	}

	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}

	if len(missing) > 0 {
		return &domain.ValidationError{Fields: missing}
	}
	return nil
}

// Submit validates sub, downloads its audio and enqueues a job. Nothing is
// enqueued when validation or the download fails.
func (g *Gateway) Submit(ctx context.Context, sub Submission) (*Receipt, error) {
	if err := Validate(sub); err != nil {
		return nil, err
	}

	g.logger.Info("Downloading audio",
		slog.String("email", sub.Client.Email),
		slog.String("url", sub.AudioURL),
	)

	path, err := g.download(ctx, sub.AudioURL)
	if err != nil {
		g.logger.Error("Audio download failed",
			slog.String("email", sub.Client.Email),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	job := domain.NewJob(sub.Client, path)
	position, err := g.queue.Enqueue(job)
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	g.logger.Info("Client queued",
		slog.String("job_id", job.ID),
		slog.String("email", sub.Client.Email),
		slog.String("audio_path", path),
		slog.Int("queue_position", position),
	)

	return &Receipt{
		JobID:         job.ID,
		ClientName:    sub.Client.FullName(),
		Email:         sub.Client.Email,
		QueuePosition: position,
		Status:        statusQueued,
	}, nil
}

func (g *Gateway) download(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.DownloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &domain.DownloadError{URL: url, Err: err}
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", &domain.DownloadError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &domain.DownloadError{URL: url, StatusCode: resp.StatusCode}
	}

	f, path, err := g.createAudioFile()
	if err != nil {
		return "", err
	}

	body := io.Reader(resp.Body)
	if g.cfg.MaxAudioBytes > 0 {
		body = io.LimitReader(resp.Body, g.cfg.MaxAudioBytes+1)
	}

	n, err := io.Copy(f, body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", &domain.DownloadError{URL: url, Err: err}
	}
	if g.cfg.MaxAudioBytes > 0 && n > g.cfg.MaxAudioBytes {
		_ = os.Remove(path)
		return "", &domain.DownloadError{URL: url, Err: fmt.Errorf("audio exceeds %d bytes", g.cfg.MaxAudioBytes)}
	}

	return path, nil
}

// createAudioFile opens a new client_audio_<timestamp>.wav, falling back to
// a random suffix if that name is already taken
func (g *Gateway) createAudioFile() (*os.File, string, error) {
	name := fmt.Sprintf("client_audio_%s.wav", workspace.Timestamp(time.Now()))
	path := filepath.Join(g.cfg.AudioDir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, fs.ErrExist) {
		name = fmt.Sprintf("client_audio_%s_%s.wav", workspace.Timestamp(time.Now()), uuid.NewString()[:8])
		path = filepath.Join(g.cfg.AudioDir, name)
		f, err = os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to create audio file: %w", err)
	}

	return f, path, nil
}
