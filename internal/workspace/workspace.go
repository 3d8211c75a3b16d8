package workspace

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	imagesDirName  = "images"
	inputAudioName = "input.wav"
	heldDirName    = "_held"

	// maxCollisionSuffix bounds the number of suffixed names tried when a
	// directory for the same email and timestamp already exists
	maxCollisionSuffix = 100
)

// Attempt describes the working state allocated for one processing attempt
type Attempt struct {
	Dir        string
	ImagesDir  string
	ReportPath string
}

// Manager creates and destroys per-attempt working directories under a root
type Manager struct {
	root   string
	logger *slog.Logger
}

// NewManager creates a Manager rooted at root, creating the root if needed
func NewManager(root string, logger *slog.Logger) (*Manager, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve work root: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work root: %w", err)
	}

	return &Manager{
		root:   abs,
		logger: logger,
	}, nil
}

// Root returns the absolute root directory
func (m *Manager) Root() string {
	return m.root
}

// Allocate creates a fresh directory named <sanitized-email>_<timestamp>
// containing an images sub-directory. Two allocations never return the same
// directory: if the name is taken, a numeric suffix is appended.
func (m *Manager) Allocate(email string, ts time.Time) (*Attempt, error) {
	safe := SanitizeEmail(email)
	base := fmt.Sprintf("%s_%s", safe, Timestamp(ts))

	var dir string
	for i := 0; i < maxCollisionSuffix; i++ {
		name := base
		if i > 0 {
			name = fmt.Sprintf("%s_%d", base, i)
		}
		candidate := filepath.Join(m.root, name)

		err := os.Mkdir(candidate, 0o755)
		if err == nil {
			dir = candidate
			break
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("failed to create work dir: %w", err)
		}
	}

	if dir == "" {
		return nil, fmt.Errorf("failed to allocate unique work dir for %s", base)
	}

	images := filepath.Join(dir, imagesDirName)
	if err := os.Mkdir(images, 0o755); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to create images dir: %w", err)
	}

	m.logger.Debug("Work dir allocated",
		slog.String("dir", dir),
	)

	return &Attempt{
		Dir:        dir,
		ImagesDir:  images,
		ReportPath: filepath.Join(dir, fmt.Sprintf("report_%s.pdf", safe)),
	}, nil
}

// StageInput copies the audio file at src into the attempt directory and
// returns the path of the copy
func (m *Manager) StageInput(attempt *Attempt, src string) (string, error) {
	dst := filepath.Join(attempt.Dir, inputAudioName)
	if err := copyFile(src, dst); err != nil {
		return "", fmt.Errorf("failed to stage input audio: %w", err)
	}
	return dst, nil
}

// HoldInput copies src to <root>/_held/<jobID>_<attempt>.wav for use when no
// attempt directory could be allocated. The root is recreated if it has gone
// missing.
func (m *Manager) HoldInput(jobID string, attempt int, src string) (string, error) {
	dir := filepath.Join(m.root, heldDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create hold dir: %w", err)
	}

	dst := filepath.Join(dir, fmt.Sprintf("%s_%d.wav", jobID, attempt))
	if err := copyFile(src, dst); err != nil {
		_ = os.Remove(dst)
		return "", fmt.Errorf("failed to hold input audio: %w", err)
	}

	m.logger.Debug("Input audio held",
		slog.String("path", dst),
	)
	return dst, nil
}

// Remove deletes dir and everything below it. Removing a directory that no
// longer exists is not an error. Paths outside the root are refused.
func (m *Manager) Remove(dir string) error {
	if dir == "" {
		return nil
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve work dir: %w", err)
	}

	rel, err := filepath.Rel(m.root, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("refusing to remove %s: not inside %s", abs, m.root)
	}

	if err := os.RemoveAll(abs); err != nil {
		return fmt.Errorf("failed to remove work dir: %w", err)
	}

	m.logger.Debug("Work dir removed",
		slog.String("dir", abs),
	)

	return nil
}

// Exists reports whether dir is present on disk
func Exists(dir string) bool {
	_, err := os.Stat(dir)
	return err == nil
}

// SanitizeEmail maps an email address to a filesystem-safe name
func SanitizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	email = strings.ReplaceAll(email, "@", "_at_")

	var b strings.Builder
	for _, r := range email {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "unknown"
	}
	return out
}

// Timestamp formats t with microsecond resolution, e.g. 20250101_120000_123456
func Timestamp(t time.Time) string {
	return fmt.Sprintf("%s_%06d", t.Format("20060102_150405"), t.Nanosecond()/int(time.Microsecond))
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
