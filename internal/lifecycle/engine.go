// Package lifecycle holds the report/job state machine: manager review,
// technician acceptance, job updates and completion. Every transition takes
// a report by value and returns the next state, leaving the input untouched.
package lifecycle

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ukydev/fleet-maintenance/internal/models"
)

var (
	ErrInvalidTransition     = errors.New("invalid transition")
	ErrDeclineReasonRequired = errors.New("decline reason is required")
	ErrForbidden             = errors.New("role is not permitted to perform this action")
	ErrNotAssignedTechnician = errors.New("only the assigned technician may change this job")
	ErrAfterPhotosRequired   = errors.New("at least one after photo is required before completing")
	ErrMissingActor          = errors.New("actor identity is required")
	ErrInvalidPartsUsed      = errors.New("invalid parts used")
)

// Action names a lifecycle transition.
type Action string

const (
	ActionApprove  Action = "approve"
	ActionDecline  Action = "decline"
	ActionAccept   Action = "accept"
	ActionUpdate   Action = "update"
	ActionComplete Action = "complete"
)

// TransitionError reports an action attempted from a state that does not allow it.
type TransitionError struct {
	Action Action
	From   models.Status
	Reason string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("cannot %s a report in status %q", e.Action, e.From)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// Actor is whoever triggers a transition.
type Actor struct {
	Name string
	Role models.Role
}

// ActorFromUser builds an Actor from the signed-in user.
func ActorFromUser(u *models.User) Actor {
	return Actor{Name: u.DisplayName(), Role: u.Role}
}

func (a Actor) can(action string) bool {
	u := models.User{Role: a.Role}
	return u.HasPermission(action)
}

// Details is a technician's update to an accepted job. Nil fields are left unchanged.
type Details struct {
	WorkPerformed *string
	PartsUsed     []models.PartUsed
	AfterPhotos   []models.MediaRef
}

// Engine applies lifecycle transitions.
type Engine struct {
	now func() time.Time
}

// NewEngine creates an engine using the wall clock.
func NewEngine() *Engine {
	return &Engine{now: time.Now}
}

// NewEngineWithClock creates an engine with a fixed clock, for tests and replays.
func NewEngineWithClock(now func() time.Time) *Engine {
	return &Engine{now: now}
}

// Approve moves a pending report to open and records the approval audit.
func (e *Engine) Approve(r models.Report, actor Actor) (models.Report, error) {
	if err := e.checkReview(r, actor, ActionApprove); err != nil {
		return r, err
	}
	next := r.Clone()
	next.Status = models.StatusOpen
	next.Assigned = ""
	next.Audit = &models.Audit{
		Action: models.ReviewApproved,
		By:     actor.Name,
		At:     e.now(),
	}
	return next, nil
}

// Decline closes a pending report. The reason is mandatory.
func (e *Engine) Decline(r models.Report, actor Actor, reason string) (models.Report, error) {
	if err := e.checkReview(r, actor, ActionDecline); err != nil {
		return r, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return r, ErrDeclineReasonRequired
	}
	next := r.Clone()
	next.Status = models.StatusClosed
	next.Audit = &models.Audit{
		Action: models.ReviewDeclined,
		By:     actor.Name,
		At:     e.now(),
		Reason: reason,
	}
	return next, nil
}

func (e *Engine) checkReview(r models.Report, actor Actor, action Action) error {
	if strings.TrimSpace(actor.Name) == "" {
		return ErrMissingActor
	}
	if !actor.can(models.ActionReviewReport) {
		return ErrForbidden
	}
	if models.NormalizeStatus(string(r.Status)) != models.StatusPending {
		return &TransitionError{Action: action, From: r.Status}
	}
	return nil
}

// Accept assigns an open, unassigned report to the technician.
func (e *Engine) Accept(r models.Report, actor Actor) (models.Report, error) {
	if strings.TrimSpace(actor.Name) == "" {
		return r, ErrMissingActor
	}
	if !actor.can(models.ActionAcceptJob) {
		return r, ErrForbidden
	}
	if r.Status != models.StatusOpen {
		return r, &TransitionError{Action: ActionAccept, From: r.Status}
	}
	if r.IsAssigned() {
		return r, &TransitionError{Action: ActionAccept, From: r.Status, Reason: "already assigned to " + r.Assigned}
	}
	next := r.Clone()
	next.Assigned = actor.Name
	return next, nil
}

// UpdateDetails records work performed, parts used and after photos on an
// assigned job without changing its status. A non-empty work description is
// also appended to the job history.
func (e *Engine) UpdateDetails(r models.Report, actor Actor, d Details) (models.Report, error) {
	if err := e.checkAssigned(r, actor, models.ActionUpdateJob, ActionUpdate); err != nil {
		return r, err
	}
	if d.PartsUsed != nil {
		if err := ValidatePartsUsed(d.PartsUsed); err != nil {
			return r, err
		}
	}
	next := r.Clone()
	if d.WorkPerformed != nil {
		work := strings.TrimSpace(*d.WorkPerformed)
		next.WorkPerformed = work
		if work != "" {
			next.JobHistory = append(next.JobHistory, models.JobHistoryEntry{Date: e.now(), WorkPerformed: work})
		}
	}
	if d.PartsUsed != nil {
		next.PartsUsed = append([]models.PartUsed(nil), d.PartsUsed...)
	}
	next.AfterPhotos = append(next.AfterPhotos, d.AfterPhotos...)
	return next, nil
}

// Complete closes an assigned job. At least one after photo must be attached.
func (e *Engine) Complete(r models.Report, actor Actor) (models.Report, error) {
	if err := e.checkAssigned(r, actor, models.ActionCompleteJob, ActionComplete); err != nil {
		return r, err
	}
	if len(r.AfterPhotos) == 0 {
		return r, ErrAfterPhotosRequired
	}
	next := r.Clone()
	next.Status = models.StatusClosed
	return next, nil
}

func (e *Engine) checkAssigned(r models.Report, actor Actor, permission string, action Action) error {
	if strings.TrimSpace(actor.Name) == "" {
		return ErrMissingActor
	}
	if !actor.can(permission) {
		return ErrForbidden
	}
	if r.Status != models.StatusOpen {
		return &TransitionError{Action: action, From: r.Status}
	}
	if !r.IsAssigned() {
		return &TransitionError{Action: action, From: r.Status, Reason: "job has not been accepted"}
	}
	if r.Assigned != actor.Name {
		return ErrNotAssignedTechnician
	}
	return nil
}

// ValidatePartsUsed checks quantities are positive and part ids unique.
func ValidatePartsUsed(parts []models.PartUsed) error {
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		if p.PartID == "" {
			return fmt.Errorf("%w: part id is required", ErrInvalidPartsUsed)
		}
		if p.Qty < 1 {
			return fmt.Errorf("%w: quantity for %s must be at least 1", ErrInvalidPartsUsed, p.PartID)
		}
		if seen[p.PartID] {
			return fmt.Errorf("%w: duplicate part %s", ErrInvalidPartsUsed, p.PartID)
		}
		seen[p.PartID] = true
	}
	return nil
}
