package models

import (
	"strings"
	"time"
)

// ReportType is what kind of report was filed. It never changes after creation.
type ReportType string

const (
	ReportProblem  ReportType = "problem"
	ReportRepair   ReportType = "repair"
	ReportAccident ReportType = "accident"
)

// Severity is the priority chosen at submission.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Status is the lifecycle state of a report or job.
type Status string

const (
	StatusPending Status = "pending"
	StatusOpen    Status = "open"
	StatusClosed  Status = "closed"
)

// StatusSubmitted is the wire value the backend stores for a brand new report.
// It is the same lifecycle state as StatusPending.
const StatusSubmitted Status = "submitted"

// ReviewAction is a manager's decision on a pending report.
type ReviewAction string

const (
	ReviewApproved ReviewAction = "approved"
	ReviewDeclined ReviewAction = "declined"
)

// Audit records who approved or declined a report and when.
type Audit struct {
	Action ReviewAction `json:"action"`
	By     string       `json:"by"`
	At     time.Time    `json:"at"`
	Reason string       `json:"reason,omitempty"`
}

// MediaRef points at an uploaded photo in object storage.
type MediaRef struct {
	Key       string `bson:"key" json:"key"`
	MimeType  string `bson:"mime_type" json:"mime_type"`
	SizeBytes int64  `bson:"size_bytes" json:"size_bytes"`
}

// Report is a filed problem, repair or accident record tied to a vehicle.
type Report struct {
	ID            int64             `json:"id"`
	JobID         int64             `json:"job_id,omitempty"`
	Type          ReportType        `json:"type"`
	Severity      Severity          `json:"severity"`
	Vehicle       string            `json:"vehicle"`
	Location      Location          `json:"location"`
	Description   string            `json:"description"`
	Status        Status            `json:"status"`
	ReportedBy    string            `json:"reported_by,omitempty"`
	Assigned      string            `json:"assigned,omitempty"`
	Audit         *Audit            `json:"audit,omitempty"`
	BeforePhotos  []MediaRef        `json:"before_photos,omitempty"`
	AfterPhotos   []MediaRef        `json:"after_photos,omitempty"`
	WorkPerformed string            `json:"work_performed,omitempty"`
	PartsUsed     []PartUsed        `json:"parts_used,omitempty"`
	JobHistory    []JobHistoryEntry `json:"job_history,omitempty"`
	SubmittedAt   time.Time         `json:"submitted_at"`
}

// IsAssigned reports whether a technician has accepted the report.
func (r *Report) IsAssigned() bool {
	return strings.TrimSpace(r.Assigned) != ""
}

// Clone returns a deep copy so transitions never alias the caller's slices.
func (r Report) Clone() Report {
	out := r
	if r.Audit != nil {
		a := *r.Audit
		out.Audit = &a
	}
	out.BeforePhotos = append([]MediaRef(nil), r.BeforePhotos...)
	out.AfterPhotos = append([]MediaRef(nil), r.AfterPhotos...)
	out.PartsUsed = append([]PartUsed(nil), r.PartsUsed...)
	out.JobHistory = append([]JobHistoryEntry(nil), r.JobHistory...)
	return out
}

// NormalizeReportType maps any unknown or missing value to a problem report.
func NormalizeReportType(v string) ReportType {
	switch t := ReportType(strings.ToLower(strings.TrimSpace(v))); t {
	case ReportProblem, ReportRepair, ReportAccident:
		return t
	default:
		return ReportProblem
	}
}

// Label is the human title of the report type.
func (t ReportType) Label() string {
	switch t {
	case ReportRepair:
		return "Repair Request"
	case ReportAccident:
		return "Accident Report"
	default:
		return "Problem Report"
	}
}

// DescriptionPrompt is the hint shown to whoever writes the description.
func (t ReportType) DescriptionPrompt() string {
	switch t {
	case ReportRepair:
		return "Describe the maintenance needed (e.g., oil change, brake pads, service interval)..."
	case ReportAccident:
		return "Describe the accident (what happened, damage observed, any injuries, photos taken)..."
	default:
		return "Describe the issue/malfunction (symptoms, warnings, when it started)..."
	}
}

// IsValidSeverity checks if a severity is one of the known levels.
func IsValidSeverity(s Severity) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// NormalizeStatus folds the backend's "submitted" into pending.
func NormalizeStatus(v string) Status {
	switch s := Status(strings.ToLower(strings.TrimSpace(v))); s {
	case StatusSubmitted, StatusPending, "":
		return StatusPending
	default:
		return s
	}
}
