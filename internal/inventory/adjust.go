// Package inventory implements parts stock adjustment, dashboard aggregates
// and the parts-used picker for technician jobs.
package inventory

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ukydev/fleet-maintenance/internal/models"
)

var (
	ErrPartNotFound      = errors.New("part not found")
	ErrInvalidDelta      = errors.New("stock delta must be +1 or -1")
	ErrUnknownRemoveMode = errors.New("unknown remove mode")
)

// RemoveMode decides what the "remove" action does to a SKU.
type RemoveMode string

const (
	// RemoveDecrement lowers stock by one, never below zero, keeping the SKU.
	RemoveDecrement RemoveMode = "decrement"
	// RemoveDelete drops the SKU from the list entirely.
	RemoveDelete RemoveMode = "delete"
)

// ParseRemoveMode reads a mode from configuration; empty means decrement.
func ParseRemoveMode(v string) (RemoveMode, error) {
	switch m := RemoveMode(strings.ToLower(strings.TrimSpace(v))); m {
	case "", RemoveDecrement:
		return RemoveDecrement, nil
	case RemoveDelete:
		return RemoveDelete, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRemoveMode, v)
	}
}

// Adjuster applies stock add/remove actions to a local copy of the parts list.
type Adjuster struct {
	mode RemoveMode
	now  func() time.Time
}

// NewAdjuster creates an adjuster with the given remove mode.
func NewAdjuster(mode RemoveMode) *Adjuster {
	if mode == "" {
		mode = RemoveDecrement
	}
	return &Adjuster{mode: mode, now: time.Now}
}

// NewAdjusterWithClock creates an adjuster with a fixed clock.
func NewAdjusterWithClock(mode RemoveMode, now func() time.Time) *Adjuster {
	a := NewAdjuster(mode)
	a.now = now
	return a
}

// Mode returns the configured remove mode.
func (a *Adjuster) Mode() RemoveMode { return a.mode }

// Adjust applies delta (+1 add, -1 remove) to the part and returns a new slice.
// The input slice is not modified.
func (a *Adjuster) Adjust(parts []models.Part, partID string, delta int) ([]models.Part, error) {
	idx := indexOf(parts, partID)
	if idx < 0 {
		return parts, fmt.Errorf("%w: %s", ErrPartNotFound, partID)
	}
	switch delta {
	case 1:
		out := append([]models.Part(nil), parts...)
		out[idx].Stock++
		out[idx].UpdatedAt = a.now()
		return out, nil
	case -1:
		if a.mode == RemoveDelete {
			out := make([]models.Part, 0, len(parts)-1)
			out = append(out, parts[:idx]...)
			return append(out, parts[idx+1:]...), nil
		}
		out := append([]models.Part(nil), parts...)
		if out[idx].Stock > 0 {
			out[idx].Stock--
		}
		out[idx].UpdatedAt = a.now()
		return out, nil
	default:
		return parts, ErrInvalidDelta
	}
}

// Add increments stock by one.
func (a *Adjuster) Add(parts []models.Part, partID string) ([]models.Part, error) {
	return a.Adjust(parts, partID, 1)
}

// Remove applies the configured remove mode.
func (a *Adjuster) Remove(parts []models.Part, partID string) ([]models.Part, error) {
	return a.Adjust(parts, partID, -1)
}

// Find returns the part with the given id.
func Find(parts []models.Part, partID string) (models.Part, bool) {
	if idx := indexOf(parts, partID); idx >= 0 {
		return parts[idx], true
	}
	return models.Part{}, false
}

func indexOf(parts []models.Part, partID string) int {
	for i, p := range parts {
		if p.ID == partID {
			return i
		}
	}
	return -1
}
