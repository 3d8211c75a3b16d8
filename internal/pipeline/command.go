package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuongbtq/scan-service/internal/domain"
	"github.com/cuongbtq/scan-service/internal/workspace"
)

// maxStderrLog bounds how much automation stderr is copied into the log
const maxStderrLog = 4096

// CommandConfig configures the external automation command
type CommandConfig struct {
	Command string
	Args    []string
	Env     []string
	// Timeout bounds a single run; zero means the run is not interrupted
	Timeout time.Duration
}

// CommandCollaborator runs the site automation as an external process.
//
// The job is written to the process's stdin as JSON and the process is
// expected to print a single JSON result on stdout. The attempt directory is
// the process's working directory.
type CommandCollaborator struct {
	cfg    CommandConfig
	logger *slog.Logger
}

// NewCommandCollaborator creates a CommandCollaborator
func NewCommandCollaborator(cfg CommandConfig, logger *slog.Logger) *CommandCollaborator {
	return &CommandCollaborator{
		cfg:    cfg,
		logger: logger,
	}
}

type runRequest struct {
	JobID string `json:"job_id"`
	domain.Client
	AudioFile  string `json:"audio_file"`
	WorkDir    string `json:"work_dir"`
	ImagesDir  string `json:"images_dir"`
	ReportPath string `json:"report_path"`
	Attempt    int    `json:"attempt"`
}

type runResult struct {
	Success     bool     `json:"success"`
	PDFPath     string   `json:"pdf_path"`
	AudioFiles  []string `json:"audio_files"`
	Error       string   `json:"error"`
	ShouldRetry bool     `json:"should_retry"`
}

// Run executes the automation command for one attempt
func (c *CommandCollaborator) Run(ctx context.Context, job *domain.Job, attempt *workspace.Attempt) (Outcome, error) {
	req := runRequest{
		JobID:      job.ID,
		Client:     job.Client,
		AudioFile:  job.AudioPath,
		WorkDir:    attempt.Dir,
		ImagesDir:  attempt.ImagesDir,
		ReportPath: attempt.ReportPath,
		Attempt:    job.Attempts,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to marshal pipeline request: %w", err)
	}

	// A started run is not canceled by worker shutdown, only by the optional timeout
	runCtx := context.WithoutCancel(ctx)
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, c.cfg.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, c.cfg.Command, c.cfg.Args...)
	cmd.Dir = attempt.Dir
	cmd.Env = append(os.Environ(), c.cfg.Env...)
	cmd.Stdin = bytes.NewReader(body)
	cmd.WaitDelay = 10 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.logger.Info("Starting automation",
		slog.String("job_id", job.ID),
		slog.String("command", c.cfg.Command),
		slog.String("work_dir", attempt.Dir),
		slog.Int("attempt", job.Attempts),
	)

	start := time.Now()
	runErr := cmd.Run()

	if stderr.Len() > 0 {
		c.logger.Debug("Automation stderr",
			slog.String("job_id", job.ID),
			slog.String("stderr", tail(stderr.String(), maxStderrLog)),
		)
	}

	var exitErr *exec.ExitError
	if runErr != nil && !errors.As(runErr, &exitErr) {
		// The process never ran to completion (missing binary, timeout kill, ...)
		c.logger.Error("Automation could not be run",
			slog.String("job_id", job.ID),
			slog.String("error", runErr.Error()),
		)
		return Failed(fmt.Sprintf("automation could not be run: %s", runErr.Error()), true), nil
	}

	var result runResult
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &result); err != nil {
		if runErr != nil {
			return Failed(fmt.Sprintf("automation exited with %s", runErr.Error()), true), nil
		}
		return Failed(fmt.Sprintf("automation returned unreadable result: %s", err.Error()), false), nil
	}

	c.logger.Info("Automation finished",
		slog.String("job_id", job.ID),
		slog.Bool("success", result.Success),
		slog.Duration("duration", time.Since(start)),
	)

	if !result.Success {
		msg := result.Error
		if msg == "" {
			msg = "Unknown error"
		}
		return Failed(msg, result.ShouldRetry), nil
	}

	reportPath := resolve(attempt.Dir, result.PDFPath)
	if reportPath == "" {
		reportPath = attempt.ReportPath
	}
	if !workspace.Exists(reportPath) {
		return Failed(fmt.Sprintf("automation reported success but report %s is missing", reportPath), false), nil
	}

	audio := make([]string, 0, len(result.AudioFiles))
	for _, f := range result.AudioFiles {
		if p := resolve(attempt.Dir, f); p != "" {
			audio = append(audio, p)
		}
	}

	return Succeeded(reportPath, audio), nil
}

func resolve(dir, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
