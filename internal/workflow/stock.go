package workflow

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-maintenance/internal/api"
	"github.com/ukydev/fleet-maintenance/internal/events"
	"github.com/ukydev/fleet-maintenance/internal/inventory"
	"github.com/ukydev/fleet-maintenance/internal/models"
)

// StockView is the inventory dashboard for one tab and search.
type StockView struct {
	Parts  []models.Part        `json:"parts"`
	Stats  inventory.Stats      `json:"stats"`
	Counts inventory.TabCounts  `json:"counts"`
	Tab    inventory.Tab        `json:"tab"`
	Mode   inventory.RemoveMode `json:"remove_mode"`
}

// Adjustment is the result of one add or remove.
type Adjustment struct {
	Part    models.Part     `json:"part"`
	Removed bool            `json:"removed"`
	Stats   inventory.Stats `json:"stats"`
}

// Inventory loads all parts and filters them for a tab and search query.
func (s *Service) Inventory(ctx context.Context, tab inventory.Tab, query string) (StockView, error) {
	if _, err := s.identity.Authorize(models.ActionAdjustStock); err != nil {
		return StockView{}, err
	}
	parts, err := s.backend.Parts(ctx, 0)
	if err != nil {
		return StockView{}, err
	}
	return StockView{
		Parts:  inventory.Filter(parts, tab, query),
		Stats:  inventory.ComputeStats(parts),
		Counts: inventory.Counts(parts),
		Tab:    tab,
		Mode:   s.adjuster.Mode(),
	}, nil
}

// AdjustStock adds (+1) or removes (-1) one unit of a part and saves the new
// stock. In delete mode a remove drops the SKU from the returned stats only;
// the backend has no delete endpoint.
func (s *Service) AdjustStock(ctx context.Context, partID string, delta int) (Adjustment, error) {
	user, err := s.identity.Authorize(models.ActionAdjustStock)
	if err != nil {
		return Adjustment{}, err
	}
	parts, err := s.backend.Parts(ctx, 0)
	if err != nil {
		return Adjustment{}, err
	}
	before, _ := inventory.Find(parts, partID)
	next, err := s.adjuster.Adjust(parts, partID, delta)
	if err != nil {
		return Adjustment{}, err
	}
	out := Adjustment{Stats: inventory.ComputeStats(next)}

	after, ok := inventory.Find(next, partID)
	if !ok {
		out.Part = before
		out.Removed = true
		log.WithField("part_id", partID).Warn("Part removed locally; the backend keeps the SKU")
		return out, nil
	}
	out.Part = after
	if after.Stock == before.Stock {
		return out, nil
	}

	stock := after.Stock
	if err := s.backend.UpdatePart(ctx, partID, api.UpdatePartRequest{Stock: &stock}); err != nil {
		return Adjustment{Part: before, Stats: inventory.ComputeStats(parts)}, persistErr("stock", err)
	}

	log.WithFields(log.Fields{
		"part_id": partID,
		"stock":   after.Stock,
		"by":      user.DisplayName(),
	}).Info("Stock adjusted")
	minStock := after.MinStock
	s.publish(ctx, events.Event{
		Type:     events.PartAdjusted,
		PartID:   partID,
		Actor:    user.DisplayName(),
		Stock:    &stock,
		MinStock: &minStock,
		At:       after.UpdatedAt,
	})
	if after.IsLowStock() && !before.IsLowStock() {
		s.publish(ctx, events.Event{
			Type:     events.PartLowStock,
			PartID:   partID,
			Actor:    user.DisplayName(),
			Stock:    &stock,
			MinStock: &minStock,
			At:       after.UpdatedAt,
		})
	}
	return out, nil
}
