// Package workflow runs role-gated lifecycle actions end to end: the session
// authorizes, the engine computes the next state, the backend persists it and
// an event is published.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-maintenance/internal/api"
	"github.com/ukydev/fleet-maintenance/internal/events"
	"github.com/ukydev/fleet-maintenance/internal/inventory"
	"github.com/ukydev/fleet-maintenance/internal/lifecycle"
	"github.com/ukydev/fleet-maintenance/internal/models"
	"github.com/ukydev/fleet-maintenance/internal/submission"
)

var ErrNoJob = errors.New("report has no job yet")

// Backend is the part of the API client the workflows drive.
type Backend interface {
	GetReport(ctx context.Context, reportID int64) (*models.Report, error)
	ListReports(ctx context.Context, params api.ListReportsParams) ([]models.Report, error)
	UpdateReportStatus(ctx context.Context, reportID int64, body api.UpdateReportStatusRequest) error
	CreateJobForReport(ctx context.Context, reportID int64, description *string) (int64, error)
	AssignJob(ctx context.Context, jobID int64) error
	ListJobParts(ctx context.Context, jobID int64) ([]api.JobPartRecord, error)
	AddJobPart(ctx context.Context, jobID int64, body api.JobPartRequest) error
	AddJobHistory(ctx context.Context, jobID int64, body api.JobHistoryRequest) error
	UpdateJobStatus(ctx context.Context, jobID int64, status models.Status) error
	JobMedia(jobID int64) api.MediaScope
	Parts(ctx context.Context, limit int) ([]models.Part, error)
	UpdatePart(ctx context.Context, partID string, body api.UpdatePartRequest) error
}

// Identity authorizes the signed-in user for an action.
type Identity interface {
	Authorize(action string) (models.User, error)
}

// Submitter files reports and attaches job photos.
type Submitter interface {
	Submit(ctx context.Context, draft submission.Draft) (int64, error)
	Retry(ctx context.Context, id string) (*submission.Submission, error)
	AttachJobPhotos(ctx context.Context, jobID int64, photos []submission.Photo) (*submission.Submission, error)
	Get(ctx context.Context, id string) (*submission.Submission, error)
}

// Service holds the collaborators of every workflow.
type Service struct {
	backend   Backend
	identity  Identity
	submitter Submitter
	engine    *lifecycle.Engine
	adjuster  *inventory.Adjuster
	events    events.Publisher
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher publishes lifecycle events.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.events = p }
}

// WithRemoveMode selects what removing stock does.
func WithRemoveMode(mode inventory.RemoveMode) Option {
	return func(s *Service) { s.adjuster = inventory.NewAdjusterWithClock(mode, s.now) }
}

// WithClock sets the time source for the engine and the adjuster.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
		s.engine = lifecycle.NewEngineWithClock(now)
		s.adjuster = inventory.NewAdjusterWithClock(s.adjuster.Mode(), now)
	}
}

// NewService creates a Service.
func NewService(backend Backend, identity Identity, submitter Submitter, opts ...Option) *Service {
	s := &Service{
		backend:   backend,
		identity:  identity,
		submitter: submitter,
		engine:    lifecycle.NewEngine(),
		adjuster:  inventory.NewAdjuster(inventory.RemoveDecrement),
		events:    events.NopPublisher{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) actor(action string) (lifecycle.Actor, error) {
	user, err := s.identity.Authorize(action)
	if err != nil {
		return lifecycle.Actor{}, err
	}
	return lifecycle.ActorFromUser(&user), nil
}

// publish logs delivery failures instead of returning them.
func (s *Service) publish(ctx context.Context, e events.Event) {
	if e.At.IsZero() {
		e.At = s.now()
	}
	if err := s.events.Publish(ctx, e); err != nil {
		log.WithError(err).WithField("type", e.Type).Warn("Failed to publish event")
	}
}

func persistErr(what string, err error) error {
	return fmt.Errorf("failed to persist %s: %w", what, err)
}
