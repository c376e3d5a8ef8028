package domain

import (
	"strconv"
	"strings"
	"sync"
)

// Script is the ordered sequence of lines for one conversation module.
// Loading is incremental: pages of lines are appended as they arrive from the
// content store, and MarkLoaded flips the script to fully loaded. The engine
// treats "position past the loaded prefix" of an unloaded script as a waiting
// state, so Script must be safe for a loader goroutine to append to while the
// engine reads.
type Script struct {
	mu     sync.RWMutex
	lines  []Line
	index  map[string]int // lowercased ID -> position
	loaded bool
}

// NewScript creates an empty, still-loading script.
func NewScript() *Script {
	return &Script{index: make(map[string]int)}
}

// ScriptFromLines creates a fully loaded script, for tests and local files.
func ScriptFromLines(lines []Line) *Script {
	s := NewScript()
	s.Append(lines...)
	s.MarkLoaded()
	return s
}

// Append adds lines to the end of the script. The first occurrence of an ID
// wins in the index; positions are stable once assigned.
func (s *Script) Append(lines ...Line) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range lines {
		pos := len(s.lines)
		s.lines = append(s.lines, l)
		key := strings.ToLower(l.ID)
		if _, dup := s.index[key]; !dup {
			s.index[key] = pos
		}
	}
}

// MarkLoaded marks the script fully loaded. Appending afterwards is allowed
// and re-enters the engine from its terminal state.
func (s *Script) MarkLoaded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = true
}

// Loaded reports whether all content has arrived.
func (s *Script) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Len returns the number of lines loaded so far.
func (s *Script) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lines)
}

// Line returns the line at position i, if it has been loaded.
func (s *Script) Line(i int) (Line, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.lines) {
		return Line{}, false
	}
	return s.lines[i], true
}

// Lines returns a copy of the loaded prefix.
func (s *Script) Lines() []Line {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Line, len(s.lines))
	copy(out, s.lines)
	return out
}

// Position resolves a goto target to a position: a decimal number is taken as
// a 0-based index, anything else as a case-insensitive line ID.
func (s *Script) Position(target string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := strings.TrimSpace(target)
	if n, err := strconv.Atoi(t); err == nil {
		if n < 0 || n >= len(s.lines) {
			return 0, ErrTargetNotFound
		}
		return n, nil
	}
	if pos, ok := s.index[strings.ToLower(t)]; ok {
		return pos, nil
	}
	return 0, ErrTargetNotFound
}
