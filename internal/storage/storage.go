package storage

import (
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/cuongbtq/scan-service/internal/domain"
)

// ErrStatusMismatch is returned when a guarded status change finds the
// record in a different status
var ErrStatusMismatch = errors.New("job outcome is not in the expected status")

const defaultListLimit = 50

// outcomeRow is the job_outcomes table row. Each job keeps one row holding
// the result of its latest attempt.
type outcomeRow struct {
	JobID          string         `db:"job_id"`
	Attempt        int            `db:"attempt"`
	Status         string         `db:"status"`
	FirstName      string         `db:"first_name"`
	LastName       string         `db:"last_name"`
	Email          string         `db:"email"`
	Gender         string         `db:"gender"`
	Weight         string         `db:"weight"`
	WeightUnit     string         `db:"weight_unit"`
	Height         string         `db:"height"`
	HeightUnit     string         `db:"height_unit"`
	DateOfBirth    string         `db:"date_of_birth"`
	AudioPath      string         `db:"audio_path"`
	WorkDir        string         `db:"work_dir"`
	ReportPath     string         `db:"report_path"`
	AudioArtifacts pq.StringArray `db:"audio_artifacts"`
	Error          string         `db:"error"`
	LedgerMarked   bool           `db:"ledger_marked"`
	SubmittedAt    time.Time      `db:"submitted_at"`
	FinishedAt     time.Time      `db:"finished_at"`
}

func toRow(rec *domain.AttemptRecord) *outcomeRow {
	artifacts := pq.StringArray(rec.AudioArtifacts)
	if artifacts == nil {
		artifacts = pq.StringArray{}
	}

	return &outcomeRow{
		JobID:          rec.JobID,
		Attempt:        rec.Attempt,
		Status:         rec.Status.String(),
		FirstName:      rec.Client.FirstName,
		LastName:       rec.Client.LastName,
		Email:          rec.Client.Email,
		Gender:         rec.Client.Gender,
		Weight:         rec.Client.Weight,
		WeightUnit:     rec.Client.WeightUnit,
		Height:         rec.Client.Height,
		HeightUnit:     rec.Client.HeightUnit,
		DateOfBirth:    rec.Client.DateOfBirth,
		AudioPath:      rec.AudioPath,
		WorkDir:        rec.WorkDir,
		ReportPath:     rec.ReportPath,
		AudioArtifacts: artifacts,
		Error:          rec.Error,
		LedgerMarked:   rec.LedgerMarked,
		SubmittedAt:    rec.SubmittedAt,
		FinishedAt:     rec.FinishedAt,
	}
}

func (r *outcomeRow) toRecord() *domain.AttemptRecord {
	return &domain.AttemptRecord{
		JobID:   r.JobID,
		Attempt: r.Attempt,
		Status:  domain.AttemptStatus(r.Status),
		Client: domain.Client{
			FirstName:   r.FirstName,
			LastName:    r.LastName,
			Email:       r.Email,
			Gender:      r.Gender,
			Weight:      r.Weight,
			WeightUnit:  r.WeightUnit,
			Height:      r.Height,
			HeightUnit:  r.HeightUnit,
			DateOfBirth: r.DateOfBirth,
		},
		AudioPath:      r.AudioPath,
		WorkDir:        r.WorkDir,
		ReportPath:     r.ReportPath,
		AudioArtifacts: []string(r.AudioArtifacts),
		Error:          r.Error,
		LedgerMarked:   r.LedgerMarked,
		SubmittedAt:    r.SubmittedAt,
		FinishedAt:     r.FinishedAt,
	}
}
