package inventory

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ukydev/fleet-maintenance/internal/models"
)

// Stats are the inventory dashboard aggregates.
type Stats struct {
	TotalParts    int     `json:"total_parts"`
	LowStockCount int     `json:"low_stock_count"`
	TotalValue    float64 `json:"total_value"`
}

// ComputeStats recomputes the aggregates from the current parts list.
func ComputeStats(parts []models.Part) Stats {
	s := Stats{TotalParts: len(parts)}
	for _, p := range parts {
		if p.IsLowStock() {
			s.LowStockCount++
		}
		s.TotalValue += p.Value()
	}
	return s
}

// Tab selects an inventory list view.
type Tab string

const (
	TabAll    Tab = "all"
	TabLow    Tab = "low"
	TabRecent Tab = "recent"
)

// TabCounts are the counters shown on the inventory tabs.
type TabCounts struct {
	All    int `json:"all"`
	Low    int `json:"low"`
	Recent int `json:"recent"`
}

// Counts computes tab counters.
func Counts(parts []models.Part) TabCounts {
	low := 0
	for _, p := range parts {
		if p.IsLowStock() {
			low++
		}
	}
	return TabCounts{All: len(parts), Low: low, Recent: len(parts)}
}

// Filter returns the parts for a tab, narrowed by a case-insensitive query
// over code, name and category.
func Filter(parts []models.Part, tab Tab, query string) []models.Part {
	out := make([]models.Part, 0, len(parts))
	for _, p := range parts {
		if tab == TabLow && !p.IsLowStock() {
			continue
		}
		out = append(out, p)
	}
	if tab == TabRecent {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		})
	}

	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return out
	}
	matched := out[:0]
	for _, p := range out {
		if strings.Contains(strings.ToLower(p.Code), q) ||
			strings.Contains(strings.ToLower(p.Name), q) ||
			strings.Contains(strings.ToLower(p.Category), q) {
			matched = append(matched, p)
		}
	}
	return matched
}

// Money formats an amount in dollars with two decimals.
func Money(n float64) string {
	return fmt.Sprintf("$%.2f", n)
}
