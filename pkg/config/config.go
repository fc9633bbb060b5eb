package config

import (
	"github.com/b/tmux-voyager/pkg/paths"
)

type Config struct {
	Layout  Layout  `yaml:"layout"`
	Refresh Refresh `yaml:"refresh"`
	Listing Listing `yaml:"listing"`
	Decor   Decor   `yaml:"decorations"`
}

// Layout controls how the window is partitioned into panes.
type Layout struct {
	Depth          int     `yaml:"depth"`            // how many ancestor panes to show
	PreviewWidth   float64 `yaml:"preview_width"`    // fraction of the window given to the preview pane
	MaxParentWidth float64 `yaml:"max_parent_width"` // cap per parent pane, as a fraction
	SelfWidth      float64 `yaml:"self_width"`       // fraction reserved for the current-directory pane
	Minimal        bool    `yaml:"minimal"`          // single listing pane, no preview/header/footer
	HeaderPane     bool    `yaml:"header_pane"`      // one-line strip above the layout
	FooterPane     bool    `yaml:"footer_pane"`      // one-line strip below the layout
}

// Refresh controls event coalescing.
type Refresh struct {
	DebounceMS int `yaml:"debounce_ms"` // idle gap before a rebuild fires
	PollMS     int `yaml:"poll_ms"`     // fallback poll interval for missed events
}

type Listing struct {
	ShowHidden bool   `yaml:"show_hidden"`
	Order      string `yaml:"order"` // "dirs-first" or "name"
}

// Decor holds mode-line/header-line format toggles for the primary pane.
// Parent panes never get either.
type Decor struct {
	ModeLine   string `yaml:"mode_line"`   // "full" or "off"
	HeaderLine string `yaml:"header_line"` // "full" or "off"
}

func DefaultConfigPath() string {
	return paths.ConfigPath()
}
