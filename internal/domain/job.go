package domain

// JobStatus is the lifecycle state of a report job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether the job will not change state again.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ReportJob tracks one tax report run for (address, network, period).
// Corresponds to report_jobs table in PostgreSQL.
type ReportJob struct {
	JobID       string
	Address     string
	Network     string
	PeriodStart int64 // ms, inclusive
	PeriodEnd   int64 // ms, inclusive
	Status      JobStatus
	Stage       string // current pipeline stage
	Events      int    // classified events produced
	Errors      int    // per-event errors collected
	Error       string // terminal failure reason
	CreatedAt   int64  // ms
	UpdatedAt   int64  // ms
}
