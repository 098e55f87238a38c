package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const epsilon = 1e-9

func TestColumnWidths_Bounds(t *testing.T) {
	minTotal := MinWidth(InventoryColumns)
	require.Equal(t, 940.0, minTotal)

	for available := 0.0; available <= 2200; available += 7.3 {
		table := ColumnWidths(available, InventoryColumns)
		sum := 0.0
		for _, c := range InventoryColumns {
			w := table.Widths[c.Key]
			sum += w
			if available < minTotal {
				assert.Equal(t, c.Min, w, "column %s at %.1f", c.Key, available)
				continue
			}
			assert.GreaterOrEqual(t, w, c.Min-epsilon, "column %s at %.1f", c.Key, available)
			assert.LessOrEqual(t, w, c.Max+epsilon, "column %s at %.1f", c.Key, available)
		}
		assert.InDelta(t, sum, table.Width, epsilon)
		if available >= minTotal {
			assert.LessOrEqual(t, sum, available+epsilon, "available %.1f", available)
			assert.False(t, table.Scrollable)
		} else {
			assert.True(t, table.Scrollable)
		}
	}
}

func TestColumnWidths_FillsWhenRoomBelowMax(t *testing.T) {
	table := ColumnWidths(1100, InventoryColumns)
	assert.InDelta(t, 1100, table.Width, minProgress)
}

func TestColumnWidths_CapsAtMax(t *testing.T) {
	table := ColumnWidths(5000, InventoryColumns)
	for _, c := range InventoryColumns {
		assert.InDelta(t, c.Max, table.Widths[c.Key], epsilon)
	}
	assert.InDelta(t, 1390, table.Width, epsilon)
}

func TestColumnWidths_Deterministic(t *testing.T) {
	a := ColumnWidths(1234.5, InventoryColumns)
	b := ColumnWidths(1234.5, InventoryColumns)
	assert.Equal(t, a, b)
}

func TestColumnWidths_ZeroWeights(t *testing.T) {
	cols := []Column{{Key: "a", Min: 10, Max: 50}, {Key: "b", Min: 10, Max: 50}}
	table := ColumnWidths(100, cols)
	assert.Equal(t, 10.0, table.Widths["a"])
	assert.Equal(t, 10.0, table.Widths["b"])
}

func TestInventoryTable(t *testing.T) {
	narrow := InventoryTable(390)
	assert.True(t, narrow.Scrollable)
	assert.Equal(t, 940.0, narrow.Width)

	wide := InventoryTable(1280)
	assert.False(t, wide.Scrollable)
	assert.LessOrEqual(t, wide.Width, 1280.0-2*InventoryRowPadding+epsilon)

	assert.Equal(t, 940.0, InventoryTable(-50).Width)
}

func TestCardGrid_RoleGrid(t *testing.T) {
	portrait := CardGrid(Viewport{Width: 390, Height: 844}, RoleGrid)
	assert.False(t, portrait.Landscape)
	assert.Equal(t, 1, portrait.Columns)
	assert.Equal(t, 350.0, portrait.CardWidth) // (390-20-20)/1
	assert.Equal(t, 190.0, portrait.CardHeight)

	landscape := CardGrid(Viewport{Width: 844, Height: 390}, RoleGrid)
	assert.True(t, landscape.Landscape)
	assert.Equal(t, 2, landscape.Columns)
	assert.Equal(t, 392.0, landscape.CardWidth) // (844-20-40)/2
	assert.Equal(t, 270.0, landscape.CardHeight)
}

func TestCardGrid_ProjectGrid(t *testing.T) {
	g := CardGrid(Viewport{Width: 400, Height: 800}, ProjectGrid)
	assert.Equal(t, 360.0, g.CardWidth)  // floor((380-20)/1)
	assert.Equal(t, 226.0, g.CardHeight) // floor((720-40)/3)

	tiny := CardGrid(Viewport{Width: 100, Height: 200}, ProjectGrid)
	assert.Equal(t, 160.0, tiny.CardWidth)
	assert.Equal(t, 140.0, tiny.CardHeight)
}

func TestCardGrid_SquareIsPortrait(t *testing.T) {
	g := CardGrid(Viewport{Width: 500, Height: 500}, RoleGrid)
	assert.False(t, g.Landscape)
}

func TestCardGrid_Degenerate(t *testing.T) {
	g := CardGrid(Viewport{}, GridSpec{CardMargin: 10})
	assert.Equal(t, 1, g.Columns)
	assert.Equal(t, 0.0, g.CardWidth)
	assert.Equal(t, 0.0, g.CardHeight)
}
