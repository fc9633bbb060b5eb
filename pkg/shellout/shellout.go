// Package shellout runs external helper tools synchronously and captures
// their output. Callers treat these as potentially slow and keep them off
// hot event paths.
package shellout

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrToolUnavailable marks a required external executable that is missing or
// exited nonzero. It is user-facing: the operation aborts with no partial
// output and no layout change.
var ErrToolUnavailable = errors.New("tool unavailable")

// Runner abstracts command execution for tests.
type Runner interface {
	Run(program string, args ...string) (string, error)
}

// ExecRunner runs real processes.
type ExecRunner struct{}

func (ExecRunner) Run(program string, args ...string) (string, error) {
	if _, err := exec.LookPath(program); err != nil {
		return "", fmt.Errorf("%s: %w", program, ErrToolUnavailable)
	}
	out, err := exec.Command(program, args...).Output()
	if err != nil {
		return "", fmt.Errorf("%s: %w", program, ErrToolUnavailable)
	}
	return strings.TrimSpace(string(out)), nil
}

// DirSize returns the human-readable size of a directory via du.
func DirSize(r Runner, path string) (string, error) {
	out, err := r.Run("du", "-sh", path)
	if err != nil {
		return "", err
	}
	// du output is "SIZE\tPATH"; keep the size column.
	if i := strings.IndexAny(out, " \t"); i > 0 {
		return out[:i], nil
	}
	return out, nil
}

// TrashDir resolves the user trash directory, preferring trash-cli's idea of
// it and falling back to the XDG location.
func TrashDir(r Runner) (string, error) {
	if out, err := r.Run("trash-list", "--trash-dir"); err == nil && out != "" {
		return out, nil
	}
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve trash dir: %w", err)
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "Trash"), nil
}
