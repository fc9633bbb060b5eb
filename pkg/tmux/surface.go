package tmux

import (
	"fmt"
	"log"
	"strconv"

	"github.com/b/tmux-voyager/pkg/reconcile"
	"github.com/b/tmux-voyager/pkg/session"
)

// Surface applies pane operations against one tmux window. It implements the
// reconciler's display-surface interface: regions are tmux pane IDs.
type Surface struct {
	// BindCommand builds the shell command respawned into a pane to display
	// one listing buffer (the renderer binary plus its subscribe flags).
	BindCommand func(buffer string) string
	Logger      *log.Logger
}

func NewSurface(bindCommand func(buffer string) string, logger *log.Logger) *Surface {
	return &Surface{BindCommand: bindCommand, Logger: logger}
}

var _ reconcile.Surface = (*Surface)(nil)

// Split carves a new pane off region. Horizontal splits take width as a
// fraction of the window; strip panes take an absolute row count. The new
// pane starts with a placeholder shell and is not focused.
func (s *Surface) Split(region string, side session.Side, width float64, rows int) (string, error) {
	args := []string{"split-window", "-d", "-P", "-F", "#{pane_id}", "-t", region}
	switch side {
	case session.SideLeft:
		args = append(args, "-h", "-b")
	case session.SideRight:
		args = append(args, "-h")
	case session.SideAbove:
		args = append(args, "-v", "-b")
	case session.SideBelow:
		args = append(args, "-v")
	default:
		return "", fmt.Errorf("split %s: unknown side %v", region, side)
	}
	if rows > 0 {
		args = append(args, "-l", strconv.Itoa(rows))
	} else if width > 0 {
		args = append(args, "-l", fmt.Sprintf("%d%%", percent(width)))
	}

	paneID, err := run(args...)
	if err != nil {
		return "", fmt.Errorf("split %s %s: %w", region, side, err)
	}
	return paneID, nil
}

// Bind respawns the pane with the renderer command for the buffer.
func (s *Surface) Bind(region, buffer string) error {
	if s.BindCommand == nil {
		return fmt.Errorf("bind %s: no bind command configured", region)
	}
	if _, err := run("respawn-pane", "-k", "-t", region, s.BindCommand(buffer)); err != nil {
		return fmt.Errorf("bind %s to %s: %w", region, buffer, err)
	}
	return nil
}

func (s *Surface) Destroy(region string) error {
	if _, err := run("kill-pane", "-t", region); err != nil {
		return fmt.Errorf("destroy %s: %w", region, err)
	}
	return nil
}

// SetDecoration maps the abstract chrome flags onto tmux pane options. The
// mode-line flag is exported as a user option the renderer reads.
func (s *Surface) SetDecoration(region string, d reconcile.Decoration) error {
	status := "off"
	if d.HeaderLine {
		status = "top"
	}
	if _, err := run("set-option", "-p", "-t", region, "pane-border-status", status); err != nil {
		return err
	}

	style := "default"
	if d.Fringe {
		style = "fg=colour240"
	}
	if _, err := run("set-option", "-p", "-t", region, "pane-border-style", style); err != nil {
		return err
	}

	mode := "off"
	if d.ModeLine {
		mode = "on"
	}
	_, err := run("set-option", "-p", "-t", region, "@voyager_mode_line", mode)
	return err
}

// Alive asks tmux whether the pane still exists. Panes can disappear behind
// the daemon's back (user closes one, a split collapses), so the reconciler
// validates before every operation.
func (s *Surface) Alive(region string) bool {
	_, err := run("display-message", "-p", "-t", region, "#{pane_id}")
	return err == nil
}

// percent converts a width fraction to the whole percentage tmux expects.
func percent(frac float64) int {
	p := int(frac*100 + 0.5)
	if p < 1 {
		p = 1
	}
	if p > 99 {
		p = 99
	}
	return p
}
