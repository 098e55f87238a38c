// Package layout derives table column widths and card-grid sizes from the
// viewport. All functions are pure.
package layout

const (
	maxPasses = 6
	// minProgress is the smallest growth per pass worth another pass.
	minProgress = 0.5
)

// Align is how a column's text is aligned.
type Align string

const (
	AlignLeft   Align = "left"
	AlignCenter Align = "center"
	AlignRight  Align = "right"
)

// Column describes a table column's sizing constraints.
type Column struct {
	Key    string
	Min    float64
	Max    float64
	Weight float64
	Align  Align
}

// Table is the computed column layout.
type Table struct {
	Widths map[string]float64
	// Width is the total content width. It exceeds the available width when
	// the caller must scroll horizontally.
	Width      float64
	Scrollable bool
}

// MinWidth is the sum of column minimums.
func MinWidth(cols []Column) float64 {
	total := 0.0
	for _, c := range cols {
		total += c.Min
	}
	return total
}

// ColumnWidths starts every column at its minimum and shares the remaining
// space by weight over a bounded number of passes, capping each column at its
// maximum. When the minimums do not fit, all columns stay at their minimum.
func ColumnWidths(available float64, cols []Column) Table {
	widths := make(map[string]float64, len(cols))
	for _, c := range cols {
		widths[c.Key] = c.Min
	}
	minTotal := MinWidth(cols)
	if available <= minTotal {
		return Table{Widths: widths, Width: minTotal, Scrollable: available < minTotal}
	}

	remaining := available - minTotal
	for pass := 0; pass < maxPasses && remaining > minProgress; pass++ {
		weightSum := 0.0
		growable := 0
		for _, c := range cols {
			if widths[c.Key] < c.Max {
				weightSum += c.Weight
				growable++
			}
		}
		if growable == 0 {
			break
		}
		if weightSum <= 0 {
			weightSum = 1
		}

		consumed := 0.0
		for _, c := range cols {
			if widths[c.Key] >= c.Max {
				continue
			}
			share := remaining * c.Weight / weightSum
			add := c.Max - widths[c.Key]
			if share < add {
				add = share
			}
			widths[c.Key] += add
			consumed += add
		}
		remaining -= consumed
		if consumed < minProgress {
			break
		}
	}

	total := 0.0
	for _, c := range cols {
		total += widths[c.Key]
	}
	return Table{Widths: widths, Width: total}
}

// InventoryColumns is the parts table column set.
var InventoryColumns = []Column{
	{Key: "code", Min: 110, Max: 160, Weight: 0.8, Align: AlignLeft},
	{Key: "name", Min: 180, Max: 320, Weight: 2.4, Align: AlignLeft},
	{Key: "category", Min: 110, Max: 180, Weight: 1.1, Align: AlignLeft},
	{Key: "stock", Min: 70, Max: 90, Weight: 0.4, Align: AlignCenter},
	{Key: "min", Min: 70, Max: 90, Weight: 0.4, Align: AlignRight},
	{Key: "unit", Min: 90, Max: 120, Weight: 0.6, Align: AlignRight},
	{Key: "status", Min: 120, Max: 170, Weight: 0.7, Align: AlignRight},
	{Key: "actions", Min: 190, Max: 260, Weight: 1.2, Align: AlignRight},
}

// InventoryRowPadding is the horizontal padding on each side of a table row.
const InventoryRowPadding = 18

// InventoryTable lays out the parts table for a window width.
func InventoryTable(windowWidth float64) Table {
	available := windowWidth - 2*InventoryRowPadding
	if available < 0 {
		available = 0
	}
	return ColumnWidths(available, InventoryColumns)
}
