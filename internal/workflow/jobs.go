package workflow

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-maintenance/internal/api"
	"github.com/ukydev/fleet-maintenance/internal/events"
	"github.com/ukydev/fleet-maintenance/internal/lifecycle"
	"github.com/ukydev/fleet-maintenance/internal/models"
	"github.com/ukydev/fleet-maintenance/internal/submission"
)

// Board is the technician dashboard.
type Board struct {
	Technician string              `json:"technician"`
	Available  []models.Report     `json:"available"`
	MyJobs     []models.Report     `json:"my_jobs"`
	Completed  []models.Report     `json:"completed"`
	Counts     lifecycle.TabCounts `json:"counts"`
}

// JobUpdate is a technician's edit. Nil fields are left unchanged; photos
// are uploaded and appended to the after photos.
type JobUpdate struct {
	WorkPerformed *string
	PartsUsed     []models.PartUsed
	Photos        []submission.Photo
}

// TechnicianBoard splits reports into the available, mine and completed pools.
func (s *Service) TechnicianBoard(ctx context.Context) (Board, error) {
	actor, err := s.actor(models.ActionAcceptJob)
	if err != nil {
		return Board{}, err
	}
	reports, err := s.backend.ListReports(ctx, api.ListReportsParams{})
	if err != nil {
		return Board{}, err
	}
	return Board{
		Technician: actor.Name,
		Available:  lifecycle.Available(reports),
		MyJobs:     lifecycle.MyJobs(reports, actor.Name),
		Completed:  lifecycle.Completed(reports, actor.Name),
		Counts:     lifecycle.Counts(reports, actor.Name),
	}, nil
}

// Job loads a report with its job parts and photos, and the mode the
// signed-in technician may open it in.
func (s *Service) Job(ctx context.Context, reportID int64) (models.Report, lifecycle.Mode, error) {
	actor, err := s.actor(models.ActionViewReports)
	if err != nil {
		return models.Report{}, lifecycle.ModeView, err
	}
	r, err := s.loadJob(ctx, reportID)
	if err != nil {
		return models.Report{}, lifecycle.ModeView, err
	}
	return r, lifecycle.JobMode(r, actor.Name), nil
}

// Accept assigns an open job to the signed-in technician.
func (s *Service) Accept(ctx context.Context, reportID int64) (models.Report, error) {
	actor, err := s.actor(models.ActionAcceptJob)
	if err != nil {
		return models.Report{}, err
	}
	r, err := s.loadJob(ctx, reportID)
	if err != nil {
		return models.Report{}, err
	}
	next, err := s.engine.Accept(r, actor)
	if err != nil {
		return r, err
	}
	if err := s.backend.AssignJob(ctx, r.JobID); err != nil {
		return r, persistErr("assignment", err)
	}

	log.WithFields(log.Fields{
		"report_id":  reportID,
		"job_id":     r.JobID,
		"technician": actor.Name,
	}).Info("Job accepted")
	s.publish(ctx, events.Event{
		Type:     events.JobAccepted,
		ReportID: reportID,
		JobID:    r.JobID,
		Status:   string(next.Status),
		Actor:    actor.Name,
	})
	return next, nil
}

// UpdateJob records work, parts and after photos on an accepted job. The
// edit is validated before anything is sent. If a photo fails, the work and
// parts are already saved and the returned report carries the photos
// confirmed so far.
func (s *Service) UpdateJob(ctx context.Context, reportID int64, u JobUpdate) (models.Report, error) {
	actor, err := s.actor(models.ActionUpdateJob)
	if err != nil {
		return models.Report{}, err
	}
	r, err := s.loadJob(ctx, reportID)
	if err != nil {
		return models.Report{}, err
	}
	next, err := s.engine.UpdateDetails(r, actor, lifecycle.Details{
		WorkPerformed: u.WorkPerformed,
		PartsUsed:     u.PartsUsed,
	})
	if err != nil {
		return r, err
	}

	if u.WorkPerformed != nil && strings.TrimSpace(*u.WorkPerformed) != "" {
		entry := next.JobHistory[len(next.JobHistory)-1]
		body := api.JobHistoryRequest{Date: entry.Date, WorkPerformed: entry.WorkPerformed}
		if err := s.backend.AddJobHistory(ctx, r.JobID, body); err != nil {
			return r, persistErr("job history", err)
		}
	}
	if u.PartsUsed != nil {
		if err := s.persistParts(ctx, r.JobID, r.PartsUsed, next.PartsUsed); err != nil {
			return r, err
		}
	}

	next, err = s.attach(ctx, next, actor, u.Photos)
	if err != nil {
		return next, err
	}

	s.publish(ctx, events.Event{
		Type:     events.JobUpdated,
		ReportID: reportID,
		JobID:    r.JobID,
		Status:   string(next.Status),
		Actor:    actor.Name,
	})
	return next, nil
}

// Complete closes an accepted job, first uploading any new after photos.
func (s *Service) Complete(ctx context.Context, reportID int64, photos []submission.Photo) (models.Report, error) {
	actor, err := s.actor(models.ActionCompleteJob)
	if err != nil {
		return models.Report{}, err
	}
	r, err := s.loadJob(ctx, reportID)
	if err != nil {
		return models.Report{}, err
	}
	if len(photos) > 0 {
		// Nothing is uploaded for a job the actor may not edit.
		if _, err := s.engine.UpdateDetails(r, actor, lifecycle.Details{}); err != nil {
			return r, err
		}
		if r, err = s.attach(ctx, r, actor, photos); err != nil {
			return r, err
		}
	}

	next, err := s.engine.Complete(r, actor)
	if err != nil {
		return r, err
	}
	if err := s.backend.UpdateJobStatus(ctx, r.JobID, models.StatusClosed); err != nil {
		return r, persistErr("job status", err)
	}

	log.WithFields(log.Fields{
		"report_id":    reportID,
		"job_id":       r.JobID,
		"technician":   actor.Name,
		"after_photos": len(next.AfterPhotos),
	}).Info("Job completed")
	s.publish(ctx, events.Event{
		Type:     events.JobCompleted,
		ReportID: reportID,
		JobID:    r.JobID,
		Status:   string(next.Status),
		Actor:    actor.Name,
	})
	return next, nil
}

func (s *Service) attach(ctx context.Context, r models.Report, actor lifecycle.Actor, photos []submission.Photo) (models.Report, error) {
	if len(photos) == 0 {
		return r, nil
	}
	sub, uploadErr := s.submitter.AttachJobPhotos(ctx, r.JobID, photos)
	if sub == nil {
		return r, uploadErr
	}
	next, err := s.engine.UpdateDetails(r, actor, lifecycle.Details{AfterPhotos: sub.MediaRefs()})
	if err != nil {
		return r, err
	}
	return next, uploadErr
}

// persistParts sends quantity increases. The backend only appends part
// records, so reductions and removals stay local.
func (s *Service) persistParts(ctx context.Context, jobID int64, before, after []models.PartUsed) error {
	prev := make(map[string]int, len(before))
	for _, p := range before {
		prev[p.PartID] = p.Qty
	}
	for _, p := range after {
		delta := p.Qty - prev[p.PartID]
		delete(prev, p.PartID)
		if delta <= 0 {
			if delta < 0 {
				log.WithFields(log.Fields{"job_id": jobID, "part_id": p.PartID, "qty": p.Qty}).Warn("Part quantity reduction is not sent to the backend")
			}
			continue
		}
		if err := s.backend.AddJobPart(ctx, jobID, api.JobPartRequest{PartID: p.PartID, Qty: delta}); err != nil {
			return persistErr("part "+p.PartID, err)
		}
	}
	for id := range prev {
		log.WithFields(log.Fields{"job_id": jobID, "part_id": id}).Warn("Part removal is not sent to the backend")
	}
	return nil
}

func (s *Service) loadJob(ctx context.Context, reportID int64) (models.Report, error) {
	rp, err := s.backend.GetReport(ctx, reportID)
	if err != nil {
		return models.Report{}, err
	}
	r := *rp
	if r.JobID == 0 {
		return r, ErrNoJob
	}

	parts, err := s.backend.ListJobParts(ctx, r.JobID)
	if err != nil {
		return r, err
	}
	r.PartsUsed = nil
	for _, p := range parts {
		r.PartsUsed = append(r.PartsUsed, p.ToModel())
	}

	media, err := s.backend.JobMedia(r.JobID).List(ctx)
	if err != nil {
		return r, err
	}
	r.AfterPhotos = nil
	for _, m := range media {
		r.AfterPhotos = append(r.AfterPhotos, m.ToModel())
	}
	return r, nil
}
