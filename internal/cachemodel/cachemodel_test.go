package cachemodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cachesight/cachesight/internal/cacheerr"
)

func testLevels() []Level {
	return []Level{
		{SizeBytes: 32 * 1024, LineSize: 64, Associativity: 8, LevelID: 0},
		{SizeBytes: 1 * 1024 * 1024, LineSize: 64, Associativity: 16, LevelID: 1},
		{SizeBytes: 8 * 1024 * 1024, LineSize: 64, Associativity: 11, LevelID: 2},
	}
}

func TestNewRejectsEmpty(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
	assert.True(t, cacheerr.Is(err, cacheerr.UnsupportedTopology))
}

func TestNewRejectsTooMany(t *testing.T) {
	levels := append(testLevels(), Level{SizeBytes: 1, LineSize: 64, Associativity: 1, LevelID: 3})
	_, err := New(levels)
	require.Error(t, err)
	assert.True(t, cacheerr.Is(err, cacheerr.UnsupportedTopology))
}

func TestCapacityAndLineSize(t *testing.T) {
	m, err := New(testLevels())
	require.NoError(t, err)
	assert.Equal(t, int64(32*1024), m.Capacity(0))
	assert.Equal(t, 64, m.L1LineSize())
	assert.Equal(t, int64(0), m.Capacity(5))
}

func TestLevelsAffectedBy(t *testing.T) {
	m, err := New(testLevels())
	require.NoError(t, err)
	assert.Equal(t, 0, m.LevelsAffectedBy(16*1024))
	assert.Equal(t, 1, m.LevelsAffectedBy(512*1024))
	assert.Equal(t, 2, m.LevelsAffectedBy(4*1024*1024))
	assert.Equal(t, -1, m.LevelsAffectedBy(32*1024*1024))
}

func TestNumSets(t *testing.T) {
	l := Level{SizeBytes: 32 * 1024, LineSize: 64, Associativity: 8}
	assert.Equal(t, int64(64), l.NumSets())
}
