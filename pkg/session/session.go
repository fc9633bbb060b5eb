// Package session holds the mutable per-layout state: which panes a browsing
// context owns, where it is rooted, and which session is current for the
// process. One Session exists per host window (the display surface); sessions
// on different surfaces are independent.
package session

// PaneKind classifies what a pane displays.
type PaneKind int

const (
	ParentListing PaneKind = iota
	CurrentListing
	Preview
	Header
	Footer
)

func (k PaneKind) String() string {
	switch k {
	case ParentListing:
		return "parent"
	case CurrentListing:
		return "current"
	case Preview:
		return "preview"
	case Header:
		return "header"
	case Footer:
		return "footer"
	}
	return "unknown"
}

// Side is where a pane is split off relative to its reference region.
type Side int

const (
	SideLeft Side = iota
	SideRight
	SideAbove
	SideBelow
)

func (s Side) String() string {
	switch s {
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	case SideAbove:
		return "above"
	case SideBelow:
		return "below"
	}
	return "unknown"
}

// Pane is one displayed region bound to one content source. It is owned
// exclusively by the Session that created it.
type Pane struct {
	Kind   PaneKind
	Target string  // directory path or content source
	Side   Side
	Width  float64 // fraction of the window, for horizontal splits
	Height int     // rows, for header/footer strips
	Region string  // live handle to the underlying display region
	Buffer string  // bound listing buffer ID
}

// Session is one active browsing context bound to a display surface.
type Session struct {
	Surface    string // host window ID
	Root       string // current directory
	Depth      int    // configured ancestor depth
	RootRegion string // the originally-registered primary region
	RootBuffer string // listing buffer bound into the primary region

	// Parents runs furthest ancestor first, immediate parent last.
	Parents []Pane
	Preview *Pane
	Header  *Pane
	Footer  *Pane

	PreviewWidth float64
	FullLayout   bool // false in embedded/minimal single-listing mode
}

// New creates a Session rooted at dir whose primary listing already occupies
// rootRegion on the given surface.
func New(surface, dir, rootRegion string, depth int, previewWidth float64, fullLayout bool) *Session {
	return &Session{
		Surface:      surface,
		Root:         dir,
		Depth:        depth,
		RootRegion:   rootRegion,
		PreviewWidth: previewWidth,
		FullLayout:   fullLayout,
	}
}

// OwnedPanes returns every pane the session created, in teardown order.
// The root region predates the session and is never included.
func (s *Session) OwnedPanes() []Pane {
	panes := make([]Pane, 0, len(s.Parents)+3)
	panes = append(panes, s.Parents...)
	if s.Preview != nil {
		panes = append(panes, *s.Preview)
	}
	if s.Header != nil {
		panes = append(panes, *s.Header)
	}
	if s.Footer != nil {
		panes = append(panes, *s.Footer)
	}
	return panes
}

// ClearPanes forgets all owned pane bookkeeping without touching the display.
func (s *Session) ClearPanes() {
	s.Parents = nil
	s.Preview = nil
	s.Header = nil
	s.Footer = nil
}

// DropDead removes bookkeeping for panes whose region the host has already
// destroyed. The host may close regions behind our back (e.g. when a split
// collapses), so this runs before every rebuild.
func (s *Session) DropDead(alive func(region string) bool) {
	kept := s.Parents[:0]
	for _, p := range s.Parents {
		if alive(p.Region) {
			kept = append(kept, p)
		}
	}
	s.Parents = kept
	if s.Preview != nil && !alive(s.Preview.Region) {
		s.Preview = nil
	}
	if s.Header != nil && !alive(s.Header.Region) {
		s.Header = nil
	}
	if s.Footer != nil && !alive(s.Footer.Region) {
		s.Footer = nil
	}
}

// Label builds a debounce label scoped to this session's surface, so session
// teardown can cancel every pending timer with one prefix sweep.
func (s *Session) Label(event string) string {
	return s.Surface + ":" + event
}

// LabelPrefix is the prefix matching every label this session produces.
func (s *Session) LabelPrefix() string {
	return s.Surface + ":"
}
