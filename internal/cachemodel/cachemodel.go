// Package cachemodel holds the read-only cache-hierarchy parameters (C1)
// used as thresholds by every downstream analysis component. A run uses one
// immutable snapshot, mirroring the teacher's treatment of cache topology as
// a read-only parameter (internal/common's L3-from-output helpers in the
// teacher repo derive sizes once per run and never mutate them afterward).
package cachemodel

import (
	"github.com/cachesight/cachesight/internal/cacheerr"
)

// Level describes one level of the cache hierarchy.
type Level struct {
	SizeBytes     int64
	LineSize      int
	Associativity int
	LevelID       int // 0 = L1, 1 = L2, 2 = L3
}

// Capacity returns the level's usable capacity in bytes.
func (l Level) Capacity() int64 { return l.SizeBytes }

// NumSets returns the number of cache sets for a set-associative LRU model:
// size / (line_size * associativity).
func (l Level) NumSets() int64 {
	denom := int64(l.LineSize) * int64(l.Associativity)
	if denom <= 0 {
		return 0
	}
	return l.SizeBytes / denom
}

// Model is an immutable snapshot of 1..=3 cache levels, ordered L1 first.
type Model struct {
	levels []Level
}

// New validates and constructs a Model from Input-C's topology snapshot.
// Returns UnsupportedTopology if fewer than one level is given.
func New(levels []Level) (*Model, error) {
	if len(levels) < 1 {
		return nil, cacheerr.New(cacheerr.UnsupportedTopology, "cache topology must have at least one level")
	}
	if len(levels) > 3 {
		return nil, cacheerr.New(cacheerr.UnsupportedTopology, "cache topology supports at most three levels")
	}
	snapshot := make([]Level, len(levels))
	copy(snapshot, levels)
	return &Model{levels: snapshot}, nil
}

// NumLevels returns the number of cache levels in the snapshot.
func (m *Model) NumLevels() int { return len(m.levels) }

// Level returns the level at the given index (0 = L1), or the zero value and
// false if the index is out of range.
func (m *Model) Level(idx int) (Level, bool) {
	if idx < 0 || idx >= len(m.levels) {
		return Level{}, false
	}
	return m.levels[idx], true
}

// Capacity returns capacity(level) in bytes, or 0 if the level doesn't exist.
func (m *Model) Capacity(level int) int64 {
	l, ok := m.Level(level)
	if !ok {
		return 0
	}
	return l.SizeBytes
}

// LineSize returns the line size of the given level in bytes, defaulting to
// L1's line size when level is out of range (matches `cache_line_size` in
// the configuration defaulting to topology.L1.line).
func (m *Model) LineSize(level int) int {
	l, ok := m.Level(level)
	if !ok {
		if len(m.levels) > 0 {
			return m.levels[0].LineSize
		}
		return 64
	}
	return l.LineSize
}

// L1LineSize is a convenience accessor mirroring spec.md's `line_size(0)` helper.
func (m *Model) L1LineSize() int { return m.LineSize(0) }

// LevelsAffectedBy returns, for a working set size, the index of the
// smallest level that can hold it, or -1 if it exceeds the last level.
func (m *Model) LevelsAffectedBy(workingSetBytes int64) int {
	for i, l := range m.levels {
		if workingSetBytes <= l.SizeBytes {
			return i
		}
	}
	return -1
}

// Levels returns a defensive copy of the ordered level list.
func (m *Model) Levels() []Level {
	out := make([]Level, len(m.levels))
	copy(out, m.levels)
	return out
}
