package storage

import (
	"context"
	"time"
)

// AttemptStatus is the outcome of a save attempt
type AttemptStatus string

const (
	AttemptSaved  AttemptStatus = "saved"
	AttemptFailed AttemptStatus = "failed"
)

// AttemptRecord represents a stored save attempt
type AttemptRecord struct {
	ID             string        `json:"id"`
	SessionID      string        `json:"sessionId"`
	PrescriptionID int64         `json:"prescriptionId"`
	Trigger        string        `json:"trigger"`
	Status         AttemptStatus `json:"status"`
	StartedAt      time.Time     `json:"startedAt"`
	Duration       time.Duration `json:"duration"`
	Error          string        `json:"error,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// ErrorReport is a background failure recorded for later inspection
type ErrorReport struct {
	ID        string    `json:"id"`
	Context   string    `json:"context"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// AttemptFilter provides filtering options for listing attempts
type AttemptFilter struct {
	SessionID      string        // Filter by session
	PrescriptionID int64         // Filter by prescription (0 = any)
	Status         AttemptStatus // Filter by status
	StartAfter     *time.Time    // Filter by start time
	StartBefore    *time.Time    // Filter by start time
	Limit          int           // Max results (default 100)
	Offset         int           // Pagination offset
}

// Stats represents aggregate autosave statistics
type Stats struct {
	TotalAttempts          int              `json:"totalAttempts"`
	SavedCount             int              `json:"savedCount"`
	FailedCount            int              `json:"failedCount"`
	SuccessRate            float64          `json:"successRate"`
	AvgDuration            time.Duration    `json:"avgDuration"`
	MaxDuration            time.Duration    `json:"maxDuration"`
	ReportedErrors         int              `json:"reportedErrors"`
	AttemptsByDay          map[string]int   `json:"attemptsByDay"`
	AttemptsByPrescription map[int64]int    `json:"attemptsByPrescription"`
	RecentFailures         []*AttemptRecord `json:"recentFailures"`
}

// Storage defines the interface for persistence operations
type Storage interface {
	// Lifecycle
	Close() error

	// Save attempts
	SaveAttempt(ctx context.Context, rec *AttemptRecord) error
	GetAttempt(ctx context.Context, id string) (*AttemptRecord, error)
	ListAttempts(ctx context.Context, filter *AttemptFilter) ([]*AttemptRecord, error)
	CountAttempts(ctx context.Context, filter *AttemptFilter) (int, error)
	DeleteAttempt(ctx context.Context, id string) error
	PruneBefore(ctx context.Context, before time.Time) (int64, error)

	// Error reports
	SaveErrorReport(ctx context.Context, report *ErrorReport) error
	ListErrorReports(ctx context.Context, limit int) ([]*ErrorReport, error)

	// Statistics
	GetStats(ctx context.Context) (*Stats, error)

	// Recent activity
	GetRecentAttempts(ctx context.Context, limit int) ([]*AttemptRecord, error)
}
