package falsesharing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cachesight/cachesight/internal/config"
	"github.com/cachesight/cachesight/internal/model"
)

func loc(file string, line int) *model.SourceLocation {
	return &model.SourceLocation{File: file, Line: line}
}

func TestEmptyInputReturnsNil(t *testing.T) {
	assert.Nil(t, Detect(nil, config.Default(), 64))
}

func TestSingleThreadNeverCandidate(t *testing.T) {
	samples := []model.CacheMissSample{
		{MemoryAddr: 0x1000, ThreadID: 1, IsWrite: true, SourceLocation: loc("a.c", 1)},
		{MemoryAddr: 0x1004, ThreadID: 1, IsWrite: true, SourceLocation: loc("a.c", 1)},
	}
	assert.Empty(t, Detect(samples, config.Default(), 64))
}

func TestTwoThreadWritersConfirmed(t *testing.T) {
	samples := []model.CacheMissSample{
		{MemoryAddr: 0x1000, ThreadID: 1, IsWrite: true, SourceLocation: loc("counter.c", 20)},
		{MemoryAddr: 0x1008, ThreadID: 2, IsWrite: true, SourceLocation: loc("counter.c", 20)},
		{MemoryAddr: 0x1000, ThreadID: 1, IsWrite: true, SourceLocation: loc("counter.c", 20)},
		{MemoryAddr: 0x1008, ThreadID: 2, IsWrite: true, SourceLocation: loc("counter.c", 20)},
	}
	out := Detect(samples, config.Default(), 64)
	require.Len(t, out, 1)
	c := out[0]
	assert.Equal(t, 2, c.DistinctThreads())
	assert.Equal(t, 2, c.WritingThreads())
	assert.InDelta(t, 1.0, c.WriteRatio(), 0.0001)
	assert.True(t, c.Confirmed)
	assert.Greater(t, c.ContentionScore, 0.0)
}

func TestRequireDifferentVarsBlocksSingleLocation(t *testing.T) {
	cfg := config.Default()
	cfg.RequireDifferentVars = true
	samples := []model.CacheMissSample{
		{MemoryAddr: 0x2000, ThreadID: 1, IsWrite: true, SourceLocation: loc("a.c", 9)},
		{MemoryAddr: 0x2004, ThreadID: 2, IsWrite: true, SourceLocation: loc("a.c", 9)},
	}
	out := Detect(samples, cfg, 64)
	require.Len(t, out, 1)
	assert.False(t, out[0].Confirmed)
}

func TestLowWriteRatioNotConfirmed(t *testing.T) {
	cfg := config.Default()
	var samples []model.CacheMissSample
	for i := 0; i < 20; i++ {
		samples = append(samples, model.CacheMissSample{MemoryAddr: 0x3000, ThreadID: 1, SourceLocation: loc("a.c", 1)})
		samples = append(samples, model.CacheMissSample{MemoryAddr: 0x3004, ThreadID: 2, SourceLocation: loc("a.c", 1)})
	}
	out := Detect(samples, cfg, 64)
	require.Len(t, out, 1)
	assert.Equal(t, 0.0, out[0].WriteRatio())
	assert.False(t, out[0].Confirmed)
}

func TestDistinctCacheLinesNotGrouped(t *testing.T) {
	samples := []model.CacheMissSample{
		{MemoryAddr: 0x1000, ThreadID: 1, IsWrite: true, SourceLocation: loc("a.c", 1)},
		{MemoryAddr: 0x2000, ThreadID: 2, IsWrite: true, SourceLocation: loc("a.c", 1)},
	}
	assert.Empty(t, Detect(samples, config.Default(), 64))
}

func TestSortedByContentionScoreDescending(t *testing.T) {
	samples := []model.CacheMissSample{
		{MemoryAddr: 0x1000, ThreadID: 1, IsWrite: true, SourceLocation: loc("a.c", 1)},
		{MemoryAddr: 0x1004, ThreadID: 2, IsWrite: true, SourceLocation: loc("a.c", 1)},

		{MemoryAddr: 0x5000, ThreadID: 1, IsWrite: true, SourceLocation: loc("b.c", 1)},
		{MemoryAddr: 0x5004, ThreadID: 2, IsWrite: true, SourceLocation: loc("b.c", 2)},
		{MemoryAddr: 0x5008, ThreadID: 3, IsWrite: true, SourceLocation: loc("b.c", 3)},
	}
	out := Detect(samples, config.Default(), 64)
	require.Len(t, out, 2)
	for i := 1; i < len(out); i++ {
		assert.GreaterOrEqual(t, out[i-1].ContentionScore, out[i].ContentionScore)
	}
}
