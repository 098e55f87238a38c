// Package submission creates reports and attaches photos through presigned
// uploads. Photos are uploaded one at a time, in order, and each one's state
// is journaled so a failed submission resumes from the first unconfirmed photo
// without creating the report again.
package submission

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-maintenance/internal/api"
	"github.com/ukydev/fleet-maintenance/internal/models"
)

// Step is the stage of a photo upload.
type Step string

const (
	StepRead      Step = "read"
	StepPresign   Step = "presign"
	StepUpload    Step = "upload"
	StepConfirm   Step = "confirm"
	StepCancelled Step = "cancelled" // context ended before the photo started
)

// CreateError reports that the report itself could not be created. No photo
// was uploaded.
type CreateError struct {
	SubmissionID string
	Err          error
}

func (e *CreateError) Error() string {
	return fmt.Sprintf("failed to create report: %v", e.Err)
}

func (e *CreateError) Unwrap() error { return e.Err }

// UploadError names the photo whose upload failed. Earlier photos are confirmed.
type UploadError struct {
	SubmissionID string
	TargetID     int64
	Index        int // 1-based
	Total        int
	Step         Step
	Err          error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %d of %d failed at %s: %v", e.Index, e.Total, e.Step, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// Backend is the subset of the API client the orchestrator drives.
type Backend interface {
	CreateReport(ctx context.Context, body api.CreateReportRequest, idempotencyKey string) (int64, error)
	ReportMedia(reportID int64) api.MediaScope
	JobMedia(jobID int64) api.MediaScope
	Upload(ctx context.Context, uploadURL, mimeType string, data []byte) error
}

// Orchestrator runs submissions against a backend.
type Orchestrator struct {
	backend  Backend
	journal  Journal
	readFile func(path string) ([]byte, error)
	now      func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithReadFile replaces os.ReadFile for loading photo bytes.
func WithReadFile(fn func(path string) ([]byte, error)) Option {
	return func(o *Orchestrator) { o.readFile = fn }
}

// WithClock sets the time source used for journal timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates an orchestrator. A nil journal keeps state in memory.
func NewOrchestrator(backend Backend, journal Journal, opts ...Option) *Orchestrator {
	if journal == nil {
		journal = NewMemoryJournal()
	}
	o := &Orchestrator{
		backend:  backend,
		journal:  journal,
		readFile: os.ReadFile,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit validates the draft, creates the report and uploads its photos.
// On an upload failure the report id is still returned together with an
// *UploadError; the report is never rolled back.
func (o *Orchestrator) Submit(ctx context.Context, draft Draft) (int64, error) {
	if err := draft.Validate(); err != nil {
		return 0, err
	}

	d := draft
	d.Photos = append([]Photo(nil), draft.Photos...)
	sub := o.newSubmission(TargetReport, 0, d.Photos)
	sub.Draft = &d
	if err := o.journal.Save(ctx, sub); err != nil {
		return 0, fmt.Errorf("failed to journal submission: %w", err)
	}

	if err := o.create(ctx, sub); err != nil {
		return 0, err
	}
	if err := o.uploadPending(ctx, sub); err != nil {
		return sub.TargetID, err
	}
	return sub.TargetID, nil
}

// AttachJobPhotos uploads after-photos to a job and returns the confirmed keys.
func (o *Orchestrator) AttachJobPhotos(ctx context.Context, jobID int64, photos []Photo) (*Submission, error) {
	if err := validatePhotos(photos); err != nil {
		return nil, err
	}
	sub := o.newSubmission(TargetJob, jobID, photos)
	if err := o.journal.Save(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to journal submission: %w", err)
	}
	err := o.uploadPending(ctx, sub)
	return sub, err
}

// Retry resumes a journaled submission from its first unconfirmed photo. A
// report is created only if the original create call never succeeded, and
// then with the original idempotency key.
func (o *Orchestrator) Retry(ctx context.Context, id string) (*Submission, error) {
	sub, err := o.journal.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Complete() {
		return sub, nil
	}

	log.WithFields(log.Fields{
		"submission": sub.ID,
		"kind":       sub.Kind,
		"target_id":  sub.TargetID,
		"resume_at":  sub.FirstUnconfirmed(),
	}).Info("Retrying submission")

	if sub.TargetID == 0 {
		if sub.Kind != TargetReport {
			return sub, fmt.Errorf("submission %s has no target", sub.ID)
		}
		if err := o.create(ctx, sub); err != nil {
			return sub, err
		}
	}
	return sub, o.uploadPending(ctx, sub)
}

// Pending lists journaled submissions that still need a retry.
func (o *Orchestrator) Pending(ctx context.Context) ([]*Submission, error) {
	return o.journal.ListIncomplete(ctx)
}

// Get returns a journaled submission.
func (o *Orchestrator) Get(ctx context.Context, id string) (*Submission, error) {
	return o.journal.Get(ctx, id)
}

func (o *Orchestrator) newSubmission(kind TargetKind, targetID int64, photos []Photo) *Submission {
	now := o.now()
	sub := &Submission{
		ID:             uuid.New().String(),
		IdempotencyKey: uuid.New().String(),
		Kind:           kind,
		TargetID:       targetID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for i, p := range photos {
		sub.Photos = append(sub.Photos, PhotoUpload{
			Index:     i + 1,
			Photo:     p,
			State:     StatePending,
			UpdatedAt: now,
		})
	}
	return sub
}

func (o *Orchestrator) create(ctx context.Context, sub *Submission) error {
	id, err := o.backend.CreateReport(ctx, sub.Draft.CreateRequest(), sub.IdempotencyKey)
	if err != nil {
		return &CreateError{SubmissionID: sub.ID, Err: err}
	}
	sub.TargetID = id
	sub.UpdatedAt = o.now()
	if err := o.journal.Save(ctx, sub); err != nil {
		return fmt.Errorf("failed to journal submission: %w", err)
	}

	log.WithFields(log.Fields{
		"submission": sub.ID,
		"report_id":  id,
		"vehicle":    sub.Draft.Vehicle,
	}).Info("Report created")
	return nil
}

func (o *Orchestrator) media(sub *Submission) api.MediaScope {
	if sub.Kind == TargetJob {
		return o.backend.JobMedia(sub.TargetID)
	}
	return o.backend.ReportMedia(sub.TargetID)
}

func (o *Orchestrator) uploadPending(ctx context.Context, sub *Submission) error {
	media := o.media(sub)
	for i := range sub.Photos {
		p := &sub.Photos[i]
		if p.State == StateConfirmed {
			continue
		}
		if err := ctx.Err(); err != nil {
			return o.fail(ctx, sub, p, StepCancelled, err)
		}

		p.State = StateUploading
		p.Attempts++
		p.Step = ""
		p.Error = ""
		p.UpdatedAt = o.now()
		if err := o.journal.Save(ctx, sub); err != nil {
			return fmt.Errorf("failed to journal submission: %w", err)
		}

		step, ref, err := o.uploadOne(ctx, media, p.Photo)
		if err != nil {
			return o.fail(ctx, sub, p, step, err)
		}

		p.State = StateConfirmed
		p.Key = ref.Key
		p.Photo.MimeType = ref.MimeType
		p.Photo.SizeBytes = ref.SizeBytes
		p.UpdatedAt = o.now()
		sub.UpdatedAt = p.UpdatedAt
		if err := o.journal.Save(ctx, sub); err != nil {
			return fmt.Errorf("failed to journal submission: %w", err)
		}
		log.WithFields(log.Fields{
			"submission": sub.ID,
			"kind":       sub.Kind,
			"target_id":  sub.TargetID,
			"photo":      p.Index,
			"key":        ref.Key,
		}).Debug("Photo confirmed")
	}
	return nil
}

func (o *Orchestrator) uploadOne(ctx context.Context, media api.MediaScope, photo Photo) (Step, models.MediaRef, error) {
	var ref models.MediaRef
	data, err := o.readFile(photo.Path)
	if err != nil {
		return StepRead, ref, err
	}
	mimeType := photo.MimeType
	if mimeType == "" {
		mimeType = DetectMimeType(photo.Path, data)
	}

	presign, err := media.Presign(ctx, mimeType)
	if err != nil {
		return StepPresign, ref, err
	}
	if err := o.backend.Upload(ctx, presign.UploadURL, mimeType, data); err != nil {
		return StepUpload, ref, err
	}
	confirm := api.ConfirmMediaRequest{
		Key:       presign.Key,
		MimeType:  mimeType,
		SizeBytes: int64(len(data)),
	}
	if err := media.Confirm(ctx, confirm); err != nil {
		return StepConfirm, ref, err
	}
	ref = models.MediaRef{Key: confirm.Key, MimeType: confirm.MimeType, SizeBytes: confirm.SizeBytes}
	return "", ref, nil
}

func (o *Orchestrator) fail(ctx context.Context, sub *Submission, p *PhotoUpload, step Step, cause error) error {
	p.State = StateFailed
	p.Step = step
	p.Error = cause.Error()
	p.UpdatedAt = o.now()
	sub.UpdatedAt = p.UpdatedAt

	// The journal write must outlive a cancelled caller.
	if err := o.journal.Save(context.WithoutCancel(ctx), sub); err != nil {
		log.WithError(err).WithField("submission", sub.ID).Error("Failed to journal upload failure")
	}

	log.WithFields(log.Fields{
		"submission": sub.ID,
		"kind":       sub.Kind,
		"target_id":  sub.TargetID,
		"photo":      p.Index,
		"step":       step,
	}).WithError(cause).Warn("Photo upload failed")

	return &UploadError{
		SubmissionID: sub.ID,
		TargetID:     sub.TargetID,
		Index:        p.Index,
		Total:        len(sub.Photos),
		Step:         step,
		Err:          cause,
	}
}
