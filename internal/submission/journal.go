package submission

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ukydev/fleet-maintenance/internal/models"
)

// ErrNotFound is returned when a journal has no submission with the given id.
var ErrNotFound = errors.New("submission not found")

// State is the upload state of one photo.
type State string

const (
	StatePending   State = "pending"
	StateUploading State = "uploading"
	StateConfirmed State = "confirmed"
	StateFailed    State = "failed"
)

// TargetKind is what the photos are attached to.
type TargetKind string

const (
	TargetReport TargetKind = "report"
	TargetJob    TargetKind = "job"
)

// PhotoUpload tracks one photo through presign, upload and confirm.
type PhotoUpload struct {
	Index     int       `bson:"index" json:"index"` // 1-based
	Photo     Photo     `bson:"photo" json:"photo"`
	State     State     `bson:"state" json:"state"`
	Key       string    `bson:"key,omitempty" json:"key,omitempty"`
	Step      Step      `bson:"step,omitempty" json:"step,omitempty"`
	Error     string    `bson:"error,omitempty" json:"error,omitempty"`
	Attempts  int       `bson:"attempts" json:"attempts"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Submission is the journal entry of one multi-step submission. A report
// target with TargetID zero has not been created yet.
type Submission struct {
	ID             string        `bson:"_id" json:"id"`
	IdempotencyKey string        `bson:"idempotency_key" json:"idempotency_key"`
	Kind           TargetKind    `bson:"kind" json:"kind"`
	TargetID       int64         `bson:"target_id" json:"target_id"`
	Draft          *Draft        `bson:"draft,omitempty" json:"draft,omitempty"`
	Photos         []PhotoUpload `bson:"photos" json:"photos"`
	CreatedAt      time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `bson:"updated_at" json:"updated_at"`
}

// Complete reports whether the target exists and every photo is confirmed.
func (s *Submission) Complete() bool {
	if s.TargetID == 0 {
		return false
	}
	for _, p := range s.Photos {
		if p.State != StateConfirmed {
			return false
		}
	}
	return true
}

// ConfirmedCount is the number of confirmed photos.
func (s *Submission) ConfirmedCount() int {
	n := 0
	for _, p := range s.Photos {
		if p.State == StateConfirmed {
			n++
		}
	}
	return n
}

// FirstUnconfirmed returns the 1-based index of the first photo not yet
// confirmed, or 0 when all are.
func (s *Submission) FirstUnconfirmed() int {
	for _, p := range s.Photos {
		if p.State != StateConfirmed {
			return p.Index
		}
	}
	return 0
}

// Keys lists the storage keys of confirmed photos in order.
func (s *Submission) Keys() []string {
	var keys []string
	for _, p := range s.Photos {
		if p.State == StateConfirmed {
			keys = append(keys, p.Key)
		}
	}
	return keys
}

// MediaRefs lists the confirmed photos as media references in order.
func (s *Submission) MediaRefs() []models.MediaRef {
	var refs []models.MediaRef
	for _, p := range s.Photos {
		if p.State == StateConfirmed {
			refs = append(refs, models.MediaRef{Key: p.Key, MimeType: p.Photo.MimeType, SizeBytes: p.Photo.SizeBytes})
		}
	}
	return refs
}

func (s *Submission) clone() *Submission {
	cp := *s
	cp.Photos = append([]PhotoUpload(nil), s.Photos...)
	if s.Draft != nil {
		d := *s.Draft
		d.Photos = append([]Photo(nil), s.Draft.Photos...)
		cp.Draft = &d
	}
	return &cp
}

// Journal persists submissions so an interrupted one can be resumed.
type Journal interface {
	Save(ctx context.Context, s *Submission) error
	Get(ctx context.Context, id string) (*Submission, error)
	ListIncomplete(ctx context.Context) ([]*Submission, error)
	Delete(ctx context.Context, id string) error
}

// MemoryJournal keeps submissions for the life of the process.
type MemoryJournal struct {
	mu      sync.Mutex
	entries map[string]*Submission
}

// NewMemoryJournal creates an empty journal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{entries: make(map[string]*Submission)}
}

func (j *MemoryJournal) Save(_ context.Context, s *Submission) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries[s.ID] = s.clone()
	return nil
}

func (j *MemoryJournal) Get(_ context.Context, id string) (*Submission, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	s, ok := j.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.clone(), nil
}

// ListIncomplete returns unfinished submissions, oldest first.
func (j *MemoryJournal) ListIncomplete(_ context.Context) ([]*Submission, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []*Submission
	for _, s := range j.entries {
		if !s.Complete() {
			out = append(out, s.clone())
		}
	}
	sort.Slice(out, func(a, b int) bool {
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	return out, nil
}

func (j *MemoryJournal) Delete(_ context.Context, id string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.entries, id)
	return nil
}
