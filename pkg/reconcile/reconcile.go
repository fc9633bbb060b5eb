// Package reconcile converges the live pane set of a session to the desired
// layout for one rebuild pass. It owns pane-to-region bookkeeping; the actual
// display surface and listing buffers are collaborators behind interfaces.
package reconcile

import (
	"fmt"
	"log"

	"github.com/b/tmux-voyager/pkg/geometry"
	"github.com/b/tmux-voyager/pkg/session"
)

// Surface abstracts the host display (tmux in production).
//
// Split carves a new region off an existing one: width is a fraction of the
// window for horizontal splits, rows is an absolute height for strip panes
// (exactly one of the two is nonzero). Destroying an already-dead region must
// not be fatal; callers treat it as best effort.
type Surface interface {
	Split(region string, side session.Side, width float64, rows int) (string, error)
	Bind(region, buffer string) error
	Destroy(region string) error
	SetDecoration(region string, d Decoration) error
	Alive(region string) bool
}

// Decoration is the chrome applied to one region.
type Decoration struct {
	Fringe     bool
	ModeLine   bool
	HeaderLine bool
}

// ListingProvider supplies the buffers panes display.
type ListingProvider interface {
	// CreateOrReuse returns the listing buffer for a directory, creating it
	// on first use.
	CreateOrReuse(path string) (string, error)
	// CreateVirtual returns a non-directory buffer (header/footer strips).
	CreateVirtual(name string) (string, error)
}

// Config carries the decoration and strip toggles a rebuild consults.
type Config struct {
	ModeLine   bool // primary pane gets a mode line
	HeaderLine bool // primary pane gets a header line
	HeaderPane bool // one-line strip above the layout
	FooterPane bool // one-line strip below the layout
}

type Reconciler struct {
	surface  Surface
	listings ListingProvider
	cfg      Config
	logger   *log.Logger
}

func New(surface Surface, listings ListingProvider, cfg Config, logger *log.Logger) *Reconciler {
	return &Reconciler{surface: surface, listings: listings, cfg: cfg, logger: logger}
}

const stripRows = 1

// FullRebuild converges the session's panes to the plan. Pane creation
// failures are local: the failed pane is skipped and the rest of the layout
// still goes up (degraded but usable). Running it twice with unchanged state
// produces the same pane set with the same handles.
func (r *Reconciler) FullRebuild(sess *session.Session, plan geometry.Plan, ancestors []string) {
	// Reclaim bookkeeping for regions the host already closed.
	sess.DropDead(r.surface.Alive)

	desired := r.desiredPanes(sess, plan, ancestors)

	// Clear regions that have no place in the new layout before creating
	// anything, so the primary display is effectively the sole content plus
	// whatever survives unchanged.
	live := sess.OwnedPanes()
	reused := make(map[string]session.Pane)
	for _, want := range desired {
		for _, have := range live {
			if samePane(want, have) && r.surface.Alive(have.Region) {
				reused[paneKey(want)] = have
				break
			}
		}
	}
	for _, have := range live {
		if !isReused(reused, have) {
			if err := r.surface.Destroy(have.Region); err != nil && r.logger != nil {
				r.logger.Printf("destroy %s pane %s: %v", have.Kind, have.Region, err)
			}
		}
	}
	sess.ClearPanes()

	for _, want := range desired {
		pane, ok := reused[paneKey(want)]
		if !ok {
			created, err := r.createPane(sess, want)
			if err != nil {
				if r.logger != nil {
					r.logger.Printf("create %s pane for %q: %v", want.Kind, want.Target, err)
				}
				continue
			}
			pane = created
		}
		r.record(sess, pane)
	}

	// Primary pane decoration is re-applied every pass; the full-layout flag
	// may have flipped since the last rebuild.
	r.applyDecoration(sess.RootRegion, session.CurrentListing, sess.FullLayout)
}

// desiredPanes lists the target pane set in creation order: preview, header,
// footer, then parents from furthest ancestor to immediate parent.
func (r *Reconciler) desiredPanes(sess *session.Session, plan geometry.Plan, ancestors []string) []session.Pane {
	var desired []session.Pane

	// Preview/header/footer exist only in full-layout mode. The flag is read
	// here, once per rebuild, never cached across rebuilds.
	if sess.FullLayout {
		// The preview shows its own buffer, never the root listing's: sharing
		// would make the root buffer multi-visible and suppress its scroll
		// refreshes.
		desired = append(desired, session.Pane{
			Kind:   session.Preview,
			Target: "preview:" + sess.Surface,
			Side:   session.SideRight,
			Width:  plan.PreviewWidth,
		})
		if r.cfg.HeaderPane {
			desired = append(desired, session.Pane{
				Kind:   session.Header,
				Target: "header:" + sess.Surface,
				Side:   session.SideAbove,
				Height: stripRows,
			})
		}
		if r.cfg.FooterPane {
			desired = append(desired, session.Pane{
				Kind:   session.Footer,
				Target: "footer:" + sess.Surface,
				Side:   session.SideBelow,
				Height: stripRows,
			})
		}
	}

	count := len(ancestors)
	if len(plan.ParentWidths) < count {
		count = len(plan.ParentWidths)
	}
	// Skip the furthest ancestors when the plan allows fewer panes than the
	// chain provides; the nearest parents matter most.
	skip := len(ancestors) - count
	for i := 0; i < count; i++ {
		desired = append(desired, session.Pane{
			Kind:   session.ParentListing,
			Target: ancestors[skip+i],
			Side:   session.SideLeft,
			Width:  plan.ParentWidths[len(plan.ParentWidths)-count+i],
		})
	}
	return desired
}

// createPane acquires a buffer for the target, splits the surface, binds the
// buffer into the new region, and decorates it.
func (r *Reconciler) createPane(sess *session.Session, want session.Pane) (session.Pane, error) {
	var buffer string
	var err error
	switch want.Kind {
	case session.Header, session.Footer, session.Preview:
		buffer, err = r.listings.CreateVirtual(want.Target)
	default:
		buffer, err = r.listings.CreateOrReuse(want.Target)
	}
	if err != nil {
		return session.Pane{}, fmt.Errorf("acquire buffer: %w", err)
	}

	region, err := r.surface.Split(sess.RootRegion, want.Side, want.Width, want.Height)
	if err != nil {
		return session.Pane{}, fmt.Errorf("split: %w", err)
	}
	if err := r.surface.Bind(region, buffer); err != nil {
		// The region exists but shows nothing useful; take it back down.
		r.surface.Destroy(region)
		return session.Pane{}, fmt.Errorf("bind buffer %s: %w", buffer, err)
	}
	r.applyDecoration(region, want.Kind, sess.FullLayout)

	want.Region = region
	want.Buffer = buffer
	return want, nil
}

func (r *Reconciler) record(sess *session.Session, pane session.Pane) {
	switch pane.Kind {
	case session.ParentListing:
		sess.Parents = append(sess.Parents, pane)
	case session.Preview:
		p := pane
		sess.Preview = &p
	case session.Header:
		p := pane
		sess.Header = &p
	case session.Footer:
		p := pane
		sess.Footer = &p
	}
}

// applyDecoration sets region chrome deterministically from pane kind and the
// session's layout mode. Parent panes never get a header or mode line; the
// primary pane gets both when configured.
func (r *Reconciler) applyDecoration(region string, kind session.PaneKind, fullLayout bool) {
	var d Decoration
	switch kind {
	case session.CurrentListing:
		d = Decoration{
			Fringe:     fullLayout,
			ModeLine:   fullLayout && r.cfg.ModeLine,
			HeaderLine: fullLayout && r.cfg.HeaderLine,
		}
	case session.Preview:
		d = Decoration{Fringe: fullLayout}
	default:
		// Parents and strips stay bare.
	}
	if err := r.surface.SetDecoration(region, d); err != nil && r.logger != nil {
		r.logger.Printf("decorate %s pane %s: %v", kind, region, err)
	}
}

// QuickCollapse destroys every live parent pane, leaving preview, header,
// footer, and the primary region untouched. Panes already destroyed by the
// host are skipped silently.
func (r *Reconciler) QuickCollapse(sess *session.Session) {
	kept := sess.Parents[:0]
	for _, p := range sess.Parents {
		if p.Region == sess.RootRegion {
			kept = append(kept, p)
			continue
		}
		if !r.surface.Alive(p.Region) {
			continue
		}
		if err := r.surface.Destroy(p.Region); err != nil && r.logger != nil {
			r.logger.Printf("collapse parent pane %s: %v", p.Region, err)
		}
	}
	sess.Parents = kept
}

// ReleaseAll destroys every pane the session owns. Used on session teardown;
// dead regions are ignored.
func (r *Reconciler) ReleaseAll(sess *session.Session) {
	for _, p := range sess.OwnedPanes() {
		if r.surface.Alive(p.Region) {
			r.surface.Destroy(p.Region)
		}
	}
	sess.ClearPanes()
}

func samePane(a, b session.Pane) bool {
	return a.Kind == b.Kind && a.Target == b.Target && a.Side == b.Side &&
		a.Width == b.Width && a.Height == b.Height
}

func paneKey(p session.Pane) string {
	return fmt.Sprintf("%s|%s|%s|%v|%d", p.Kind, p.Target, p.Side, p.Width, p.Height)
}

func isReused(reused map[string]session.Pane, have session.Pane) bool {
	for _, p := range reused {
		if p.Region == have.Region {
			return true
		}
	}
	return false
}
