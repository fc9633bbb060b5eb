// Package refresh decides, per incoming event, whether a session needs a
// content-only refresh, a debounced full rebuild, or nothing at all. It is
// the only component that arms rebuild timers, so suppression and coalescing
// rules live in one place.
package refresh

import (
	"log"
	"time"

	"github.com/b/tmux-voyager/pkg/debounce"
	"github.com/b/tmux-voyager/pkg/geometry"
	"github.com/b/tmux-voyager/pkg/perf"
	"github.com/b/tmux-voyager/pkg/reconcile"
	"github.com/b/tmux-voyager/pkg/session"
)

// EventKind classifies a raw host event.
type EventKind int

const (
	// Scroll is a viewport movement inside one listing region.
	Scroll EventKind = iota
	// BufferChange means the visible buffer in some region changed identity.
	BufferChange
	// FocusChange means the focused region moved to another surface.
	FocusChange
	// Revert is an explicit re-read of the current directory's listing.
	Revert
)

func (k EventKind) String() string {
	switch k {
	case Scroll:
		return "scroll"
	case BufferChange:
		return "buffer-change"
	case FocusChange:
		return "focus-change"
	case Revert:
		return "revert"
	}
	return "unknown"
}

// Event is one dispatched host event.
type Event struct {
	Kind    EventKind
	Surface string
	Buffer  string // listing buffer the event concerns (Scroll)
	Path    string // directory to re-read (Revert)

	// VisibleCount is how many panes currently display Buffer. Scroll events
	// for a buffer shown in more than one pane are suppressed: a refresh from
	// one viewport would be wrong for the others.
	VisibleCount int
}

// State of one session's refresh machine.
type State int

const (
	Idle State = iota
	PendingRefresh
	Rebuilding
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case PendingRefresh:
		return "pending"
	case Rebuilding:
		return "rebuilding"
	}
	return "unknown"
}

// Listings is the content-level collaborator: row refreshes and reverts stay
// here and never touch the reconciler.
type Listings interface {
	// RefreshRows re-derives visible-row attributes for one buffer.
	RefreshRows(buffer string) error
	// Revert re-reads the directory into its existing buffer and returns the
	// buffer ID.
	Revert(path string) (string, error)
	// StripMetadataRow removes the leading metadata row from a buffer.
	StripMetadataRow(buffer string)
}

// Layout carries the width policy the controller feeds the planner.
type Layout struct {
	MaxParentWidth float64
	SelfWidth      float64
}

// Column minimums for the parent-pane ceiling. Panes narrower than these are
// unreadable, so the realized parent count shrinks before any pane goes up.
const (
	minSelfColumns   = 20
	minParentColumns = 10
)

// Controller routes events for all sessions. Rebuilds and content refreshes
// run on the scheduler goroutine, so they never interleave with each other.
type Controller struct {
	manager  *session.Manager
	sched    *debounce.Scheduler
	rec      *reconcile.Reconciler
	listings Listings
	layout   Layout
	delay    time.Duration
	logger   *log.Logger

	// WidthOf reports a surface's total column width, 0 when unknown. When
	// set, rebuilds clamp the ancestor count so that no parent pane would
	// drop below the column minimums.
	WidthOf func(surface string) int

	states map[string]State // touched only on the scheduler goroutine
}

func New(manager *session.Manager, sched *debounce.Scheduler, rec *reconcile.Reconciler,
	listings Listings, layout Layout, delay time.Duration, logger *log.Logger) *Controller {
	return &Controller{
		manager:  manager,
		sched:    sched,
		rec:      rec,
		listings: listings,
		layout:   layout,
		delay:    delay,
		logger:   logger,
		states:   make(map[string]State),
	}
}

// Dispatch routes one event. Safe to call from any goroutine; all mutation is
// funneled through the scheduler.
func (c *Controller) Dispatch(ev Event) {
	switch ev.Kind {
	case Scroll:
		if ev.VisibleCount > 1 {
			// Shared-visibility guard.
			return
		}
		buffer := ev.Buffer
		c.sched.Post(func() {
			if err := c.listings.RefreshRows(buffer); err != nil && c.logger != nil {
				c.logger.Printf("refresh rows %s: %v", buffer, err)
			}
		})

	case BufferChange:
		sess, ok := c.manager.Lookup(ev.Surface)
		if !ok {
			return
		}
		c.sched.Post(func() { c.states[sess.Surface] = PendingRefresh })
		c.sched.Debounce(sess.Label("rebuild"), c.delay, func() {
			c.rebuild(sess)
		})

	case FocusChange:
		// Repoints the current session only; never rebuilds. Surfaces we do
		// not manage are ignored.
		c.manager.SetCurrent(ev.Surface)

	case Revert:
		path := ev.Path
		c.sched.Post(func() {
			buffer, err := c.listings.Revert(path)
			if err != nil {
				if c.logger != nil {
					c.logger.Printf("revert %s: %v", path, err)
				}
				return
			}
			c.listings.StripMetadataRow(buffer)
			if err := c.listings.RefreshRows(buffer); err != nil && c.logger != nil {
				c.logger.Printf("refresh rows %s: %v", buffer, err)
			}
		})
	}
}

// RebuildNow runs a full rebuild for the surface immediately on the scheduler
// goroutine, bypassing the debounce window. Used on session activation.
func (c *Controller) RebuildNow(surface string) {
	sess, ok := c.manager.Lookup(surface)
	if !ok {
		return
	}
	c.sched.Cancel(sess.Label("rebuild"))
	c.sched.Post(func() { c.rebuild(sess) })
}

// rebuild runs on the scheduler goroutine only.
func (c *Controller) rebuild(sess *session.Session) {
	c.states[sess.Surface] = Rebuilding
	defer func() { c.states[sess.Surface] = Idle }()

	perf.Track("full-rebuild", func() {
		ancestors := c.clampToWidth(sess, geometry.Ancestors(sess.Root, sess.Depth))
		plan := geometry.Compute(len(ancestors), sess.PreviewWidth,
			c.layout.MaxParentWidth, c.layout.SelfWidth)
		c.rec.FullRebuild(sess, plan, ancestors)
	})
}

// clampToWidth drops the furthest ancestors when the surface is too narrow
// to host the whole chain at the column minimums. The nearest parents are
// kept; they matter most.
func (c *Controller) clampToWidth(sess *session.Session, ancestors []string) []string {
	if c.WidthOf == nil {
		return ancestors
	}
	total := c.WidthOf(sess.Surface)
	if total <= 0 {
		return ancestors
	}
	previewCols := 0
	if sess.FullLayout {
		previewCols = int(float64(total) * sess.PreviewWidth)
	}
	ceiling := geometry.MaxParents(total, previewCols, minSelfColumns, minParentColumns)
	if len(ancestors) > ceiling {
		ancestors = ancestors[len(ancestors)-ceiling:]
	}
	return ancestors
}

// DestroySession tears one session down: pending timers under its labels are
// cancelled, its panes destroyed, and its registry entry removed. Periodic
// timers are process-wide and untouched.
func (c *Controller) DestroySession(surface string) {
	sess, ok := c.manager.Remove(surface)
	if !ok {
		return
	}
	c.sched.CancelPrefix(sess.LabelPrefix())
	c.sched.Post(func() {
		c.rec.ReleaseAll(sess)
		delete(c.states, surface)
	})
}

// StateOf reports the machine state for one surface, read on the scheduler
// goroutine.
func (c *Controller) StateOf(surface string) State {
	result := make(chan State, 1)
	c.sched.Post(func() { result <- c.states[surface] })
	select {
	case s := <-result:
		return s
	case <-time.After(time.Second):
		return Idle
	}
}
