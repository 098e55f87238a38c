package models

import (
	"time"
)

// Job is the maintenance work unit the backend derives from an approved report.
type Job struct {
	ID          int64     `json:"job_id"`
	ReportID    int64     `json:"report_id"`
	Description string    `json:"job_desc,omitempty"`
	Status      Status    `json:"job_status"`
	Assigned    string    `json:"job_assigned,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// JobHistoryEntry is one append-only record of work done on a job.
type JobHistoryEntry struct {
	Date          time.Time `bson:"date" json:"date"`
	WorkPerformed string    `bson:"work_performed" json:"work_performed"`
}
