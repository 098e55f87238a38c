package submission

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/ukydev/fleet-maintenance/internal/api"
	"github.com/ukydev/fleet-maintenance/internal/models"
)

// ErrValidation matches every ValidationError.
var ErrValidation = errors.New("validation failed")

// ValidationError names the draft field that blocked submission.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Photo is a captured or selected image waiting to be uploaded.
type Photo struct {
	Path      string `bson:"path" json:"path"`
	MimeType  string `bson:"mime_type" json:"mime_type"`
	SizeBytes int64  `bson:"size_bytes,omitempty" json:"size_bytes,omitempty"`
}

// Draft is a report being composed before submission.
type Draft struct {
	Type        models.ReportType `bson:"type" json:"type"`
	Vehicle     string            `bson:"vehicle" json:"vehicle"`
	Description string            `bson:"description" json:"description"`
	Severity    models.Severity   `bson:"severity" json:"severity"`
	Location    models.Location   `bson:"location" json:"location"`
	Photos      []Photo           `bson:"photos" json:"photos"`
}

// Validate checks required fields in form order: vehicle, description, photos.
func (d Draft) Validate() error {
	if strings.TrimSpace(d.Vehicle) == "" {
		return &ValidationError{Field: "vehicle", Message: "select a vehicle"}
	}
	if strings.TrimSpace(d.Description) == "" {
		return &ValidationError{Field: "description", Message: "description is required"}
	}
	if d.Severity != "" && !models.IsValidSeverity(d.Severity) {
		return &ValidationError{Field: "severity", Message: fmt.Sprintf("unknown priority %q", d.Severity)}
	}
	return validatePhotos(d.Photos)
}

func validatePhotos(photos []Photo) error {
	if len(photos) == 0 {
		return &ValidationError{Field: "photos", Message: "at least one photo is required"}
	}
	for i, p := range photos {
		if strings.TrimSpace(p.Path) == "" {
			return &ValidationError{Field: "photos", Message: fmt.Sprintf("photo %d has no file", i+1)}
		}
	}
	return nil
}

// CreateRequest converts the draft into the create call body, applying the
// problem type and medium priority defaults.
func (d Draft) CreateRequest() api.CreateReportRequest {
	severity := d.Severity
	if severity == "" {
		severity = models.SeverityMedium
	}
	return api.CreateReportRequest{
		Type:        models.NormalizeReportType(string(d.Type)),
		Description: strings.TrimSpace(d.Description),
		Location:    d.Location.Description,
		Lat:         d.Location.Lat,
		Lng:         d.Location.Lng,
		Priority:    severity,
		BusID:       strings.TrimSpace(d.Vehicle),
		Status:      models.StatusSubmitted,
	}
}

// DetectMimeType guesses a photo's type from its extension, then its content.
func DetectMimeType(path string, data []byte) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); t != "" {
		if i := strings.Index(t, ";"); i >= 0 {
			t = t[:i]
		}
		return t
	}
	return http.DetectContentType(data)
}
