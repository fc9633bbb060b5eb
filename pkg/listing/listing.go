// Package listing owns the directory-listing buffers panes display: reading
// directories into rows, the leading metadata row, reverts, and virtual
// buffers for header/footer strips. Buffers are identified by opaque IDs so
// the layout packages never hold listing internals.
package listing

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// Order controls entry ordering within a listing.
const (
	OrderDirsFirst = "dirs-first"
	OrderName      = "name"
)

// Entry is one row's source data.
type Entry struct {
	Name  string
	IsDir bool
}

// Buffer holds one listing's state. Lines are derived from Entries plus the
// metadata row and regenerated on refresh.
type Buffer struct {
	ID      string
	Path    string // empty for virtual buffers
	Virtual bool

	Entries []Entry
	Lines   []string
	hasMeta bool
}

// Options carry the listing policy from configuration.
type Options struct {
	ShowHidden bool
	Order      string // OrderDirsFirst or OrderName
}

// Store is the process-wide buffer registry. onUpdate, when set, fires after
// any content change so a transport layer can push the new rows out.
type Store struct {
	mu       sync.Mutex
	opts     Options
	byID     map[string]*Buffer
	byPath   map[string]*Buffer
	nextID   int
	onUpdate func(bufferID string)
}

func NewStore(opts Options, onUpdate func(bufferID string)) *Store {
	if opts.Order == "" {
		opts.Order = OrderDirsFirst
	}
	return &Store{
		opts:     opts,
		byID:     make(map[string]*Buffer),
		byPath:   make(map[string]*Buffer),
		onUpdate: onUpdate,
	}
}

// CreateOrReuse returns the buffer ID for a directory, reading it on first
// use. Subsequent calls for the same path return the existing buffer without
// touching the filesystem.
func (s *Store) CreateOrReuse(path string) (string, error) {
	s.mu.Lock()
	if buf, ok := s.byPath[path]; ok {
		s.mu.Unlock()
		return buf.ID, nil
	}
	buf := s.newBufferLocked(path, false)
	s.mu.Unlock()

	if err := s.load(buf); err != nil {
		s.drop(buf)
		return "", err
	}
	s.notify(buf.ID)
	return buf.ID, nil
}

// CreateVirtual returns a buffer with no backing directory. Content is set
// with SetContent; name is only used to dedupe.
func (s *Store) CreateVirtual(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if buf, ok := s.byPath[name]; ok {
		return buf.ID, nil
	}
	buf := s.newBufferLocked(name, true)
	buf.Lines = []string{""}
	return buf.ID, nil
}

// newBufferLocked registers a buffer under s.mu.
func (s *Store) newBufferLocked(key string, virtual bool) *Buffer {
	s.nextID++
	buf := &Buffer{
		ID:      fmt.Sprintf("b%d", s.nextID),
		Virtual: virtual,
	}
	if virtual {
		s.byPath[key] = buf
	} else {
		buf.Path = key
		s.byPath[key] = buf
	}
	s.byID[buf.ID] = buf
	return buf
}

// Revert re-reads the directory into its existing buffer, creating one if the
// path was never listed. Returns the buffer ID.
func (s *Store) Revert(path string) (string, error) {
	s.mu.Lock()
	buf, ok := s.byPath[path]
	s.mu.Unlock()
	if !ok {
		return s.CreateOrReuse(path)
	}
	if err := s.load(buf); err != nil {
		return "", err
	}
	s.notify(buf.ID)
	return buf.ID, nil
}

// StripMetadataRow drops the leading metadata row from a buffer. A second
// strip on the same content is a no-op.
func (s *Store) StripMetadataRow(bufferID string) {
	s.mu.Lock()
	buf, ok := s.byID[bufferID]
	if ok && buf.hasMeta && len(buf.Lines) > 0 {
		buf.Lines = buf.Lines[1:]
		buf.hasMeta = false
	}
	s.mu.Unlock()
	if ok {
		s.notify(bufferID)
	}
}

// RefreshRows re-derives the row lines from the buffer's entries without
// re-reading the filesystem.
func (s *Store) RefreshRows(bufferID string) error {
	s.mu.Lock()
	buf, ok := s.byID[bufferID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("refresh rows: unknown buffer %s", bufferID)
	}
	if !buf.Virtual {
		buf.Lines = s.renderLocked(buf)
	}
	s.mu.Unlock()
	s.notify(bufferID)
	return nil
}

// SetContent replaces a virtual buffer's lines (header/footer text).
func (s *Store) SetContent(bufferID string, lines []string) error {
	s.mu.Lock()
	buf, ok := s.byID[bufferID]
	if !ok || !buf.Virtual {
		s.mu.Unlock()
		return fmt.Errorf("set content: no virtual buffer %s", bufferID)
	}
	buf.Lines = append([]string(nil), lines...)
	s.mu.Unlock()
	s.notify(bufferID)
	return nil
}

// Content returns a copy of the buffer's current lines.
func (s *Store) Content(bufferID string) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf, ok := s.byID[bufferID]
	if !ok {
		return nil, false
	}
	return append([]string(nil), buf.Lines...), true
}

// PathOf returns the directory a buffer lists, if any.
func (s *Store) PathOf(bufferID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf, ok := s.byID[bufferID]
	if !ok || buf.Virtual {
		return "", false
	}
	return buf.Path, true
}

// load reads the directory from disk into the buffer.
func (s *Store) load(buf *Buffer) error {
	dirents, err := os.ReadDir(buf.Path)
	if err != nil {
		return fmt.Errorf("read directory %s: %w", buf.Path, err)
	}

	entries := make([]Entry, 0, len(dirents))
	for _, de := range dirents {
		name := de.Name()
		if !s.opts.ShowHidden && strings.HasPrefix(name, ".") {
			continue
		}
		entries = append(entries, Entry{Name: name, IsDir: de.IsDir()})
	}
	s.sortEntries(entries)

	s.mu.Lock()
	buf.Entries = entries
	buf.hasMeta = true
	buf.Lines = s.renderLocked(buf)
	s.mu.Unlock()
	return nil
}

func (s *Store) sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if s.opts.Order == OrderDirsFirst && a.IsDir != b.IsDir {
			return a.IsDir
		}
		return a.Name < b.Name
	})
}

// renderLocked formats rows from entries; the caller holds s.mu.
func (s *Store) renderLocked(buf *Buffer) []string {
	lines := make([]string, 0, len(buf.Entries)+1)
	if buf.hasMeta {
		lines = append(lines, fmt.Sprintf("%s: %d entries", buf.Path, len(buf.Entries)))
	}
	for _, e := range buf.Entries {
		if e.IsDir {
			lines = append(lines, e.Name+"/")
		} else {
			lines = append(lines, e.Name)
		}
	}
	return lines
}

func (s *Store) drop(buf *Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, buf.ID)
	if buf.Virtual {
		for key, b := range s.byPath {
			if b == buf {
				delete(s.byPath, key)
			}
		}
	} else {
		delete(s.byPath, buf.Path)
	}
}

func (s *Store) notify(bufferID string) {
	if s.onUpdate != nil {
		s.onUpdate(bufferID)
	}
}
