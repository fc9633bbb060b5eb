// Package geometry computes pane width allocation for one rebuild pass.
//
// All widths are fractions of the host window, normalized to 1.0. The
// current-directory pane keeps a reserved fraction; the preview pane gets its
// configured fraction; whatever remains is divided equally among the parent
// panes, each capped at a maximum. When the cap binds, the freed width flows
// back to the current-directory pane through the host's own layout rules, so
// the planner never redistributes it.
package geometry

// Plan is the width allocation for one rebuild.
type Plan struct {
	// ParentWidths is ordered furthest ancestor first, immediate parent last.
	// Every entry is the same value; len(ParentWidths) is the realized depth.
	ParentWidths []float64
	PreviewWidth float64
}

// Compute allocates widths for up to depth parent panes.
//
// remaining = 1 - previewFrac - selfFrac. Each parent pane gets
// min(remaining/depth, maxParentFrac). A non-positive remainder yields no
// parent panes at all.
func Compute(depth int, previewFrac, maxParentFrac, selfFrac float64) Plan {
	plan := Plan{PreviewWidth: previewFrac}
	if depth <= 0 {
		return plan
	}
	remaining := 1.0 - previewFrac - selfFrac
	if remaining <= 0 {
		return plan
	}
	width := remaining / float64(depth)
	if width > maxParentFrac {
		width = maxParentFrac
	}
	plan.ParentWidths = make([]float64, depth)
	for i := range plan.ParentWidths {
		plan.ParentWidths[i] = width
	}
	return plan
}

// MaxParents returns the hard ceiling on live parent panes for a window of
// totalWidth columns: no pane may shrink below minParentWidth columns once
// the preview and the current pane have taken their minimums.
func MaxParents(totalWidth, previewWidth, minSelfWidth, minParentWidth int) int {
	if minParentWidth <= 0 {
		return 0
	}
	usable := totalWidth - previewWidth - minSelfWidth
	if usable <= 0 {
		return 0
	}
	return usable / minParentWidth
}
