package domain

import "time"

// AttemptRecord summarizes one finished attempt. It is what the outcome
// store persists and what lifecycle events carry.
type AttemptRecord struct {
	JobID          string        `json:"job_id"`
	Attempt        int           `json:"attempt"`
	Status         AttemptStatus `json:"status"`
	Client         Client        `json:"client"`
	AudioPath      string        `json:"audio_path,omitempty"`
	WorkDir        string        `json:"work_dir,omitempty"`
	ReportPath     string        `json:"report_path,omitempty"`
	AudioArtifacts []string      `json:"audio_artifacts,omitempty"`
	Error          string        `json:"error,omitempty"`
	LedgerMarked   bool          `json:"ledger_marked"`
	SubmittedAt    time.Time     `json:"submitted_at"`
	FinishedAt     time.Time     `json:"finished_at"`
}

// NewAttemptRecord snapshots job at the end of an attempt
func NewAttemptRecord(job *Job, status AttemptStatus, err error) *AttemptRecord {
	rec := &AttemptRecord{
		JobID:          job.ID,
		Attempt:        job.Attempts,
		Status:         status,
		Client:         job.Client,
		AudioPath:      job.AudioPath,
		WorkDir:        job.WorkDir,
		ReportPath:     job.ReportPath,
		AudioArtifacts: append([]string(nil), job.AudioArtifacts...),
		SubmittedAt:    job.SubmittedAt,
		FinishedAt:     time.Now(),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	return rec
}
