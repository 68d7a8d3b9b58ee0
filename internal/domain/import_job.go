package domain

import (
	"errors"
	"time"
)

// ImportJobStatus enumerates the states of an import journal entry.
type ImportJobStatus string

const (
	ImportJobRunning   ImportJobStatus = "running"
	ImportJobCompleted ImportJobStatus = "completed"
	ImportJobFailed    ImportJobStatus = "failed"
)

// ErrImportJobNotFound is returned by journals for unknown job IDs.
var ErrImportJobNotFound = errors.New("import job not found")

// ImportJob is the journal row written for every commit attempt.
type ImportJob struct {
	ID           string          `json:"id" db:"id"`
	SessionID    string          `json:"session_id" db:"session_id"`
	Filename     string          `json:"filename" db:"filename"`
	ImportedBy   string          `json:"imported_by" db:"imported_by"`
	Status       ImportJobStatus `json:"status" db:"status"`
	Total        int             `json:"total_companies" db:"total_companies"`
	Counts       ImportCounts    `json:"counts"`
	ErrorMessage string          `json:"error_message,omitempty" db:"error_message"`
	StartedAt    time.Time       `json:"started_at" db:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
}
