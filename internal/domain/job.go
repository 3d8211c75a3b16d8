package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client holds the identity fields collected at submission time
type Client struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	Gender      string `json:"gender"`
	Weight      string `json:"weight"`
	WeightUnit  string `json:"weight_unit"`
	Height      string `json:"height"`
	HeightUnit  string `json:"height_unit"`
	DateOfBirth string `json:"date_of_birth"`
}

// FullName returns "first last"
func (c Client) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Job is one client submission's unit of work.
//
// The same *Job is re-enqueued on retry; per-attempt fields (WorkDir,
// ImagesDir, ReportPath, AudioArtifacts) are overwritten by each attempt.
type Job struct {
	ID          string
	Client      Client
	AudioPath   string
	SubmittedAt time.Time
	Attempts    int

	WorkDir        string
	ImagesDir      string
	ReportPath     string
	AudioArtifacts []string
	LastError      string
}

// NewJob creates a job for a freshly materialized audio artifact
func NewJob(client Client, audioPath string) *Job {
	return &Job{
		ID:          uuid.New().String(),
		Client:      client,
		AudioPath:   audioPath,
		SubmittedAt: time.Now(),
	}
}

// ResetAttempt clears the per-attempt fields before a new attempt starts
func (j *Job) ResetAttempt() {
	j.WorkDir = ""
	j.ImagesDir = ""
	j.ReportPath = ""
	j.AudioArtifacts = nil
}
