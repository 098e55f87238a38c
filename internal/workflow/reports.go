package workflow

import (
	"context"

	"github.com/ukydev/fleet-maintenance/internal/events"
	"github.com/ukydev/fleet-maintenance/internal/models"
	"github.com/ukydev/fleet-maintenance/internal/submission"
)

// SubmitReport files a report with its photos. A non-zero id is returned
// whenever the report was created, even if a photo failed.
func (s *Service) SubmitReport(ctx context.Context, draft submission.Draft) (int64, error) {
	actor, err := s.actor(models.ActionSubmitReport)
	if err != nil {
		return 0, err
	}
	id, err := s.submitter.Submit(ctx, draft)
	if id != 0 {
		s.publish(ctx, events.Event{
			Type:     events.ReportSubmitted,
			ReportID: id,
			Status:   string(models.StatusPending),
			Actor:    actor.Name,
		})
	}
	return id, err
}

// RetrySubmission resumes a journaled report or job-photo submission.
func (s *Service) RetrySubmission(ctx context.Context, id string) (*submission.Submission, error) {
	pending, err := s.submitter.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	action := models.ActionSubmitReport
	if pending.Kind == submission.TargetJob {
		action = models.ActionUpdateJob
	}
	actor, err := s.actor(action)
	if err != nil {
		return nil, err
	}

	sub, err := s.submitter.Retry(ctx, id)
	if sub != nil && pending.Kind == submission.TargetReport && pending.TargetID == 0 && sub.TargetID != 0 {
		s.publish(ctx, events.Event{
			Type:     events.ReportSubmitted,
			ReportID: sub.TargetID,
			Status:   string(models.StatusPending),
			Actor:    actor.Name,
		})
	}
	return sub, err
}
