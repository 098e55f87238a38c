package lifecycle

import (
	"sort"

	"github.com/ukydev/fleet-maintenance/internal/models"
)

// Mode is how a technician may interact with a job's details.
type Mode string

const (
	ModeView Mode = "view"
	ModeEdit Mode = "edit"
)

// TabCounts are the technician dashboard counters.
type TabCounts struct {
	Available int `json:"available"`
	MyJobs    int `json:"my_jobs"`
	Completed int `json:"completed"`
}

// PendingForReview lists pending reports newest first. Ties keep the higher id first.
func PendingForReview(reports []models.Report) []models.Report {
	out := filter(reports, func(r models.Report) bool {
		return models.NormalizeStatus(string(r.Status)) == models.StatusPending
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return out
}

// Available lists open reports nobody has accepted yet.
func Available(reports []models.Report) []models.Report {
	return filter(reports, func(r models.Report) bool {
		return r.Status == models.StatusOpen && !r.IsAssigned()
	})
}

// MyJobs lists open reports assigned to the technician.
func MyJobs(reports []models.Report, technician string) []models.Report {
	return filter(reports, func(r models.Report) bool {
		return r.Status == models.StatusOpen && r.IsAssigned() && r.Assigned == technician
	})
}

// Completed lists closed reports the technician worked.
func Completed(reports []models.Report, technician string) []models.Report {
	return filter(reports, func(r models.Report) bool {
		return r.Status == models.StatusClosed && r.IsAssigned() && r.Assigned == technician
	})
}

// Counts computes the technician tab counters.
func Counts(reports []models.Report, technician string) TabCounts {
	return TabCounts{
		Available: len(Available(reports)),
		MyJobs:    len(MyJobs(reports, technician)),
		Completed: len(Completed(reports, technician)),
	}
}

// JobMode is edit only for an open job assigned to the technician.
func JobMode(r models.Report, technician string) Mode {
	if r.Status == models.StatusOpen && r.IsAssigned() && r.Assigned == technician {
		return ModeEdit
	}
	return ModeView
}

func filter(reports []models.Report, keep func(models.Report) bool) []models.Report {
	out := make([]models.Report, 0, len(reports))
	for _, r := range reports {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
