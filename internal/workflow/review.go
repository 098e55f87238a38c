package workflow

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-maintenance/internal/api"
	"github.com/ukydev/fleet-maintenance/internal/events"
	"github.com/ukydev/fleet-maintenance/internal/lifecycle"
	"github.com/ukydev/fleet-maintenance/internal/models"
)

// ReviewQueue lists pending reports newest first.
func (s *Service) ReviewQueue(ctx context.Context) ([]models.Report, error) {
	if _, err := s.identity.Authorize(models.ActionReviewReport); err != nil {
		return nil, err
	}
	reports, err := s.backend.ListReports(ctx, api.ListReportsParams{})
	if err != nil {
		return nil, err
	}
	return lifecycle.PendingForReview(reports), nil
}

// Approve opens a pending report and creates its job. An approved report
// still missing its job only gets the job created.
func (s *Service) Approve(ctx context.Context, reportID int64) (models.Report, error) {
	actor, err := s.actor(models.ActionReviewReport)
	if err != nil {
		return models.Report{}, err
	}
	r, err := s.backend.GetReport(ctx, reportID)
	if err != nil {
		return models.Report{}, err
	}
	var next models.Report
	if jobless(*r) {
		// An earlier approval persisted but its job was never created.
		next = *r
		log.WithField("report_id", reportID).Warn("Approved report has no job, creating it")
	} else {
		next, err = s.engine.Approve(*r, actor)
		if err != nil {
			return *r, err
		}
		if err := s.backend.UpdateReportStatus(ctx, reportID, statusRequest(next)); err != nil {
			return *r, persistErr("approval", err)
		}
	}

	jobID, err := s.backend.CreateJobForReport(ctx, reportID, nil)
	if err != nil {
		return next, persistErr("job", err)
	}
	next.JobID = jobID

	log.WithFields(log.Fields{
		"report_id": reportID,
		"job_id":    jobID,
		"by":        actor.Name,
	}).Info("Report approved")
	e := events.Event{
		Type:     events.ReportApproved,
		ReportID: reportID,
		JobID:    jobID,
		Status:   string(next.Status),
		Actor:    actor.Name,
	}
	if next.Audit != nil {
		e.At = next.Audit.At
	}
	s.publish(ctx, e)
	return next, nil
}

// jobless reports an open, approved report whose job is missing.
func jobless(r models.Report) bool {
	if models.NormalizeStatus(string(r.Status)) != models.StatusOpen || r.JobID != 0 {
		return false
	}
	return r.Audit == nil || r.Audit.Action == models.ReviewApproved
}

// Decline closes a pending report with a mandatory reason.
func (s *Service) Decline(ctx context.Context, reportID int64, reason string) (models.Report, error) {
	actor, err := s.actor(models.ActionReviewReport)
	if err != nil {
		return models.Report{}, err
	}
	r, err := s.backend.GetReport(ctx, reportID)
	if err != nil {
		return models.Report{}, err
	}
	next, err := s.engine.Decline(*r, actor, reason)
	if err != nil {
		return *r, err
	}
	if err := s.backend.UpdateReportStatus(ctx, reportID, statusRequest(next)); err != nil {
		return *r, persistErr("decline", err)
	}

	log.WithFields(log.Fields{
		"report_id": reportID,
		"by":        actor.Name,
	}).Info("Report declined")
	s.publish(ctx, events.Event{
		Type:     events.ReportDeclined,
		ReportID: reportID,
		Status:   string(next.Status),
		Actor:    actor.Name,
		Reason:   next.Audit.Reason,
		At:       next.Audit.At,
	})
	return next, nil
}

func statusRequest(r models.Report) api.UpdateReportStatusRequest {
	req := api.UpdateReportStatusRequest{Status: r.Status}
	if r.Audit != nil {
		action := r.Audit.Action
		by := r.Audit.By
		at := r.Audit.At
		req.ReviewAction = &action
		req.ReviewBy = &by
		req.ReviewAt = &at
		if r.Audit.Reason != "" {
			reason := r.Audit.Reason
			req.ReviewReason = &reason
		}
	}
	return req
}
