// Package tmux drives the tmux server over its CLI. It provides the window
// and pane queries the daemon polls, plus the Surface type implementing the
// display-side pane operations.
package tmux

import (
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// ansiEscapeRegex matches ANSI escape sequences
var ansiEscapeRegex = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]|\x1b\].*?(?:\x07|\x1b\\)`)

// stripANSI removes ANSI escape sequences from a string
func stripANSI(s string) string {
	return ansiEscapeRegex.ReplaceAllString(s, "")
}

// run executes one tmux command and returns its captured stdout.
func run(args ...string) (string, error) {
	out, err := exec.Command("tmux", args...).Output()
	if err != nil {
		return "", fmt.Errorf("tmux %s failed: %w", args[0], err)
	}
	return strings.TrimSpace(string(out)), nil
}

type Pane struct {
	ID      string
	Index   int
	Active  bool
	Command string // Current command running in pane
	Width   int
	Height  int
}

type Window struct {
	ID     string
	Index  int
	Name   string
	Active bool
	Width  int
	Panes  []Pane
}

func ListWindows() ([]Window, error) {
	out, err := run("list-windows", "-F",
		"#{window_id}\x1f#{window_index}\x1f#{window_name}\x1f#{window_active}\x1f#{window_width}")
	if err != nil {
		return nil, err
	}

	var windows []Window
	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		parts := strings.Split(line, "\x1f")
		if len(parts) < 5 {
			continue
		}
		index, err := strconv.Atoi(parts[1])
		if err != nil {
			continue
		}
		width, _ := strconv.Atoi(parts[4])
		windows = append(windows, Window{
			ID:     parts[0],
			Index:  index,
			Name:   stripANSI(parts[2]),
			Active: parts[3] == "1",
			Width:  width,
		})
	}
	return windows, nil
}

// ListPanes returns all panes in a window, by window ID.
func ListPanes(windowID string) ([]Pane, error) {
	out, err := run("list-panes", "-t", windowID, "-F",
		"#{pane_id}\x1f#{pane_index}\x1f#{pane_active}\x1f#{pane_current_command}\x1f#{pane_width}\x1f#{pane_height}")
	if err != nil {
		return nil, err
	}

	var panes []Pane
	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		parts := strings.Split(line, "\x1f")
		if len(parts) < 6 {
			continue
		}
		index, err := strconv.Atoi(parts[1])
		if err != nil {
			continue
		}
		width, _ := strconv.Atoi(parts[4])
		height, _ := strconv.Atoi(parts[5])
		panes = append(panes, Pane{
			ID:      parts[0],
			Index:   index,
			Active:  parts[2] == "1",
			Command: stripANSI(parts[3]),
			Width:   width,
			Height:  height,
		})
	}
	return panes, nil
}

// LayoutSignature digests a window's pane set into a comparable string.
// Pollers compare signatures between passes and skip work when nothing moved.
func LayoutSignature(panes []Pane) string {
	var b strings.Builder
	for _, p := range panes {
		fmt.Fprintf(&b, "%s:%dx%d;", p.ID, p.Width, p.Height)
	}
	return b.String()
}

// WindowWidth returns the column width of one window, 0 when unknown.
func WindowWidth(windowID string) int {
	windows, err := ListWindows()
	if err != nil {
		return 0
	}
	for _, w := range windows {
		if w.ID == windowID {
			return w.Width
		}
	}
	return 0
}

// CurrentWindow returns the window ID of the client's active window.
func CurrentWindow() (string, error) {
	return run("display-message", "-p", "#{window_id}")
}

// WindowExists reports whether the window is still open.
func WindowExists(windowID string) bool {
	out, err := run("list-windows", "-F", "#{window_id}")
	if err != nil {
		return false
	}
	for _, id := range strings.Split(out, "\n") {
		if id == windowID {
			return true
		}
	}
	return false
}

// SessionAlive reports whether the named tmux session still exists. The
// daemon shuts down when its session goes away.
func SessionAlive(name string) bool {
	return exec.Command("tmux", "has-session", "-t", name).Run() == nil
}

// DisplayMessage flashes a message in the tmux status line.
func DisplayMessage(msg string) error {
	_, err := run("display-message", msg)
	return err
}
