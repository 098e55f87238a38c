package layout

import (
	"math"
)

// Viewport is the window size in pixels.
type Viewport struct {
	Width  float64
	Height float64
}

// Landscape is true when the viewport is wider than it is tall.
func (v Viewport) Landscape() bool {
	return v.Width > v.Height
}

// GridSpec configures a card grid per orientation.
type GridSpec struct {
	SidePadding float64
	CardMargin  float64
	// MarginsAround counts a margin on both sides of every card instead of
	// one per gap plus the outer edges.
	MarginsAround bool

	PortraitColumns  int
	LandscapeColumns int

	// Fixed heights per orientation. When zero the height is derived from
	// the row count for that orientation.
	PortraitHeight  float64
	LandscapeHeight float64
	PortraitRows    int
	LandscapeRows   int

	// HeaderRatio reserves a fraction of the viewport height for a header
	// when deriving heights.
	HeaderRatio float64

	// Optional clamps applied after flooring derived sizes.
	MinCardWidth  float64
	MinCardHeight float64
}

// Grid is the computed card size.
type Grid struct {
	Columns    int
	Landscape  bool
	CardWidth  float64
	CardHeight float64
	CardMargin float64
}

// CardGrid computes a uniform card size for the viewport.
func CardGrid(v Viewport, spec GridSpec) Grid {
	landscape := v.Landscape()
	cols, rows, fixed := spec.PortraitColumns, spec.PortraitRows, spec.PortraitHeight
	if landscape {
		cols, rows, fixed = spec.LandscapeColumns, spec.LandscapeRows, spec.LandscapeHeight
	}
	if cols < 1 {
		cols = 1
	}

	usable := v.Width - 2*spec.SidePadding
	margins := float64(cols+1) * spec.CardMargin
	if spec.MarginsAround {
		margins = float64(2*cols) * spec.CardMargin
	}
	width := (usable - margins) / float64(cols)

	height := fixed
	if height == 0 {
		if rows < 1 {
			rows = 1
		}
		usableHeight := v.Height - spec.HeaderRatio*v.Height
		height = (usableHeight - float64(rows+1)*spec.CardMargin) / float64(rows)
	}

	if spec.MinCardWidth > 0 {
		width = math.Max(spec.MinCardWidth, math.Floor(width))
	}
	if spec.MinCardHeight > 0 {
		height = math.Max(spec.MinCardHeight, math.Floor(height))
	}
	width = math.Max(0, width)
	height = math.Max(0, height)

	return Grid{
		Columns:    cols,
		Landscape:  landscape,
		CardWidth:  width,
		CardHeight: height,
		CardMargin: spec.CardMargin,
	}
}

// RoleGrid is the home screen feature grid: one column in portrait, two in
// landscape, fixed heights.
var RoleGrid = GridSpec{
	SidePadding:      10,
	CardMargin:       10,
	MarginsAround:    true,
	PortraitColumns:  1,
	LandscapeColumns: 2,
	PortraitHeight:   190,
	LandscapeHeight:  270,
}

// ProjectGrid is the project selector grid: heights derived from rows under a
// 10% header, with minimum card sizes.
var ProjectGrid = GridSpec{
	SidePadding:      10,
	CardMargin:       10,
	PortraitColumns:  1,
	LandscapeColumns: 2,
	PortraitRows:     3,
	LandscapeRows:    2,
	HeaderRatio:      0.1,
	MinCardWidth:     160,
	MinCardHeight:    140,
}
