package geometry

import (
	"math"
	"testing"
)

func TestCompute_EqualWidthsUnderCap(t *testing.T) {
	// Scenario: depth 2, preview 0.5, self 0.2 -> remaining 0.3, 0.15 each.
	plan := Compute(2, 0.5, 0.3, 0.2)
	if len(plan.ParentWidths) != 2 {
		t.Fatalf("parent count = %d, want 2", len(plan.ParentWidths))
	}
	for i, w := range plan.ParentWidths {
		if math.Abs(w-0.15) > 1e-9 {
			t.Errorf("ParentWidths[%d] = %v, want 0.15", i, w)
		}
	}
	if plan.PreviewWidth != 0.5 {
		t.Errorf("PreviewWidth = %v, want 0.5", plan.PreviewWidth)
	}
}

func TestCompute_CapBinds(t *testing.T) {
	// remaining 0.6 over one pane would be 0.6, capped at 0.3.
	plan := Compute(1, 0.2, 0.3, 0.2)
	if len(plan.ParentWidths) != 1 {
		t.Fatalf("parent count = %d, want 1", len(plan.ParentWidths))
	}
	if plan.ParentWidths[0] != 0.3 {
		t.Errorf("width = %v, want cap 0.3", plan.ParentWidths[0])
	}
}

func TestCompute_ZeroDepth(t *testing.T) {
	plan := Compute(0, 0.5, 0.3, 0.2)
	if len(plan.ParentWidths) != 0 {
		t.Errorf("parent count = %d, want 0", len(plan.ParentWidths))
	}
}

func TestCompute_NoRemainingWidth(t *testing.T) {
	cases := []struct {
		name          string
		preview, self float64
	}{
		{"exactly consumed", 0.8, 0.2},
		{"over consumed", 0.9, 0.3},
	}
	for _, tc := range cases {
		plan := Compute(3, tc.preview, 0.3, tc.self)
		if len(plan.ParentWidths) != 0 {
			t.Errorf("%s: parent count = %d, want 0", tc.name, len(plan.ParentWidths))
		}
	}
}

func TestCompute_WidthNeverExceedsCapAndUniform(t *testing.T) {
	for depth := 1; depth <= 8; depth++ {
		plan := Compute(depth, 0.4, 0.25, 0.1)
		var first float64
		for i, w := range plan.ParentWidths {
			if w > 0.25 {
				t.Errorf("depth %d: width %v exceeds cap", depth, w)
			}
			if i == 0 {
				first = w
			} else if w != first {
				t.Errorf("depth %d: widths not uniform: %v vs %v", depth, w, first)
			}
		}
	}
}

func TestMaxParents(t *testing.T) {
	cases := []struct {
		total, preview, self, minParent int
		want                            int
	}{
		{200, 100, 40, 20, 3},
		{100, 80, 40, 20, 0},
		{120, 40, 40, 20, 2},
		{120, 40, 40, 0, 0},
	}
	for _, tc := range cases {
		if got := MaxParents(tc.total, tc.preview, tc.self, tc.minParent); got != tc.want {
			t.Errorf("MaxParents(%d,%d,%d,%d) = %d, want %d",
				tc.total, tc.preview, tc.self, tc.minParent, got, tc.want)
		}
	}
}

func TestAncestors_SimpleChain(t *testing.T) {
	got := Ancestors("/a/b/c", 2)
	want := []string{"/a", "/a/b"}
	if len(got) != len(want) {
		t.Fatalf("Ancestors = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Ancestors[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestAncestors_StopsAtRoot(t *testing.T) {
	got := Ancestors("/a/b/c", 10)
	want := []string{"/", "/a", "/a/b"}
	if len(got) != len(want) {
		t.Fatalf("Ancestors = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Ancestors[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestAncestors_RootHasNone(t *testing.T) {
	if got := Ancestors("/", 3); len(got) != 0 {
		t.Errorf("Ancestors(\"/\", 3) = %v, want empty", got)
	}
}

func TestAncestors_ZeroDepth(t *testing.T) {
	if got := Ancestors("/a/b", 0); got != nil {
		t.Errorf("Ancestors depth 0 = %v, want nil", got)
	}
}

func TestAncestors_RealizedCountMatchesMin(t *testing.T) {
	// Property: realized count == min(depth, ancestors-to-root).
	paths := map[string]int{
		"/a/b/c": 3, // "/", "/a", "/a/b"
		"/a":     1,
		"/":      0,
	}
	for p, toRoot := range paths {
		for depth := 0; depth <= 5; depth++ {
			want := depth
			if toRoot < want {
				want = toRoot
			}
			if got := len(Ancestors(p, depth)); got != want {
				t.Errorf("Ancestors(%q, %d) count = %d, want %d", p, depth, got, want)
			}
		}
	}
}
