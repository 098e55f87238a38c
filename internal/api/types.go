package api

import (
	"time"

	"github.com/ukydev/fleet-maintenance/internal/models"
)

// CreateReportRequest is the body of POST /reports.
type CreateReportRequest struct {
	Type        models.ReportType `json:"report_type"`
	Description string            `json:"report_desc"`
	Location    string            `json:"report_location"`
	Lat         *float64          `json:"report_lat"`
	Lng         *float64          `json:"report_lng"`
	Priority    models.Severity   `json:"report_priority"`
	BusID       string            `json:"bus_id"`
	Status      models.Status     `json:"report_status"`
}

type createReportResponse struct {
	ReportID int64 `json:"report_id"`
}

// ListReportsParams filters GET /reports.
type ListReportsParams struct {
	Status models.Status
	Mine   bool
	Type   models.ReportType
}

// ReportRecord is a report as the backend returns it.
type ReportRecord struct {
	ReportID      int64      `json:"report_id"`
	JobID         int64      `json:"job_id,omitempty"`
	Type          string     `json:"report_type"`
	Description   string     `json:"report_desc"`
	Location      string     `json:"report_location"`
	Lat           *float64   `json:"report_lat"`
	Lng           *float64   `json:"report_lng"`
	Priority      string     `json:"report_priority"`
	BusID         string     `json:"bus_id"`
	Status        string     `json:"report_status"`
	ReportedBy    string     `json:"reported_by,omitempty"`
	Assigned      string     `json:"assigned_to,omitempty"`
	ReviewAction  string     `json:"report_review_action,omitempty"`
	ReviewBy      string     `json:"report_review_by,omitempty"`
	ReviewReason  string     `json:"report_review_reason,omitempty"`
	ReviewAt      *time.Time `json:"report_review_at,omitempty"`
	WorkPerformed string     `json:"work_performed,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ToModel converts the wire record into the domain report.
func (r ReportRecord) ToModel() models.Report {
	out := models.Report{
		ID:            r.ReportID,
		JobID:         r.JobID,
		Type:          models.NormalizeReportType(r.Type),
		Severity:      models.Severity(r.Priority),
		Vehicle:       r.BusID,
		Location:      models.Location{Description: r.Location, Lat: r.Lat, Lng: r.Lng},
		Description:   r.Description,
		Status:        models.NormalizeStatus(r.Status),
		ReportedBy:    r.ReportedBy,
		Assigned:      r.Assigned,
		WorkPerformed: r.WorkPerformed,
		SubmittedAt:   r.CreatedAt,
	}
	if r.ReviewAction != "" {
		audit := &models.Audit{
			Action: models.ReviewAction(r.ReviewAction),
			By:     r.ReviewBy,
			Reason: r.ReviewReason,
		}
		if r.ReviewAt != nil {
			audit.At = *r.ReviewAt
		}
		out.Audit = audit
	}
	return out
}

// UpdateReportStatusRequest is the body of PATCH /reports/{id}/status.
type UpdateReportStatusRequest struct {
	Status       models.Status        `json:"report_status"`
	ReviewAction *models.ReviewAction `json:"report_review_action,omitempty"`
	ReviewBy     *string              `json:"report_review_by,omitempty"`
	ReviewReason *string              `json:"report_review_reason,omitempty"`
	ReviewAt     *time.Time           `json:"report_review_at,omitempty"`
}

// ReviewRequest is the body of POST /reports/{id}/review.
type ReviewRequest struct {
	Action models.ReviewAction `json:"action"`
	By     string              `json:"by"`
	Reason string              `json:"reason,omitempty"`
}

type createJobRequest struct {
	Description *string `json:"job_desc"`
}

type createJobResponse struct {
	JobID int64 `json:"job_id"`
}

// PresignResponse is a one-time upload target.
type PresignResponse struct {
	UploadURL string `json:"uploadUrl"`
	Bucket    string `json:"s3_bucket"`
	Key       string `json:"s3_key"`
}

// ConfirmMediaRequest records a finished upload.
type ConfirmMediaRequest struct {
	Key       string `json:"s3_key"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
}

// MediaRecord is an attached photo as listed by the backend.
type MediaRecord struct {
	Key       string    `json:"s3_key"`
	MimeType  string    `json:"mime_type"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// ToModel converts the wire record into a media reference.
func (m MediaRecord) ToModel() models.MediaRef {
	return models.MediaRef{Key: m.Key, MimeType: m.MimeType, SizeBytes: m.SizeBytes}
}

// JobPartRequest is the body of POST /jobs/{id}/parts.
type JobPartRequest struct {
	PartID string `json:"part_id"`
	Qty    int    `json:"qty"`
}

// JobPartRecord is a part recorded against a job.
type JobPartRecord struct {
	PartID string `json:"part_id"`
	Name   string `json:"part_name"`
	Code   string `json:"part_code"`
	Qty    int    `json:"qty"`
}

// ToModel converts the wire record into a parts-used entry.
func (p JobPartRecord) ToModel() models.PartUsed {
	return models.PartUsed{PartID: p.PartID, Name: p.Name, Code: p.Code, Qty: p.Qty}
}

// JobStatusRequest is the body of PATCH /jobs/{id}/status.
type JobStatusRequest struct {
	Status models.Status `json:"job_status"`
}

// JobHistoryRequest is the body of POST /jobs/{id}/history.
type JobHistoryRequest struct {
	Date          time.Time `json:"date"`
	WorkPerformed string    `json:"work_performed"`
}

// UpdatePartRequest is the body of PATCH /parts/{id}. Nil fields are unchanged.
type UpdatePartRequest struct {
	Stock     *int     `json:"part_stock,omitempty"`
	MinStock  *int     `json:"part_min_stock,omitempty"`
	UnitPrice *float64 `json:"part_unit_price,omitempty"`
}

type successResponse struct {
	Success bool `json:"success"`
}

// HealthResponse is GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}
