package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuongbtq/scan-service/internal/domain"
	"github.com/cuongbtq/scan-service/internal/gateway"
)

// FlexString accepts either a JSON string or a JSON number
type FlexString string

// UnmarshalJSON implements json.Unmarshaler
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = FlexString(n.String())
	return nil
}

// SubmitClientRequest is the body of POST /submit-client
type SubmitClientRequest struct {
	FirstName   string     `json:"first_name" binding:"required"`
	LastName    string     `json:"last_name" binding:"required"`
	Email       string     `json:"email" binding:"required"`
	Gender      string     `json:"gender" binding:"required"`
	Weight      FlexString `json:"weight" binding:"required"`
	WeightUnit  string     `json:"weight_unit" binding:"required"`
	Height      FlexString `json:"height" binding:"required"`
	HeightUnit  string     `json:"height_unit" binding:"required"`
	DateOfBirth string     `json:"date_of_birth" binding:"required"`
	AudioURL    string     `json:"audio_url" binding:"required"`
}

// ToSubmission converts the request into a gateway submission
func (r *SubmitClientRequest) ToSubmission() gateway.Submission {
	return gateway.Submission{
		Client: domain.Client{
			FirstName:   r.FirstName,
			LastName:    r.LastName,
			Email:       r.Email,
			Gender:      r.Gender,
			Weight:      string(r.Weight),
			WeightUnit:  r.WeightUnit,
			Height:      string(r.Height),
			HeightUnit:  r.HeightUnit,
			DateOfBirth: r.DateOfBirth,
		},
		AudioURL: r.AudioURL,
	}
}

// SubmitClientData is returned once a submission is queued
type SubmitClientData struct {
	JobID         string `json:"job_id"`
	ClientName    string `json:"client_name"`
	Email         string `json:"email"`
	QueuePosition int    `json:"queue_position"`
	Status        string `json:"status"`
}

// ListJobsRequest holds the query of GET /jobs
type ListJobsRequest struct {
	Status string `form:"status"`
	Limit  int    `form:"limit"`
}

// JobDTO is the API view of a recorded attempt
type JobDTO struct {
	JobID          string   `json:"job_id"`
	Attempt        int      `json:"attempt"`
	Status         string   `json:"status"`
	ClientName     string   `json:"client_name"`
	Email          string   `json:"email"`
	WorkDir        string   `json:"work_dir,omitempty"`
	ReportPath     string   `json:"report_path,omitempty"`
	AudioArtifacts []string `json:"audio_artifacts,omitempty"`
	Error          string   `json:"error,omitempty"`
	LedgerMarked   bool     `json:"ledger_marked"`
	SubmittedAt    string   `json:"submitted_at,omitempty"`
	FinishedAt     string   `json:"finished_at,omitempty"`
}

// NewJobDTO converts an attempt record for the API
func NewJobDTO(rec *domain.AttemptRecord) JobDTO {
	return JobDTO{
		JobID:          rec.JobID,
		Attempt:        rec.Attempt,
		Status:         rec.Status.String(),
		ClientName:     rec.Client.FullName(),
		Email:          rec.Client.Email,
		WorkDir:        rec.WorkDir,
		ReportPath:     rec.ReportPath,
		AudioArtifacts: rec.AudioArtifacts,
		Error:          rec.Error,
		LedgerMarked:   rec.LedgerMarked,
		SubmittedAt:    formatTime(rec.SubmittedAt),
		FinishedAt:     formatTime(rec.FinishedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
