package hotspot

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

func TestEmptyInputReturnsNilNotError(t *testing.T) {
	out := Ingest(nil, config.Default(), 64)
	assert.Nil(t, out)
}

func TestBelowMinSamplesDropped(t *testing.T) {
	cfg := config.Default()
	samples := []model.CacheMissSample{
		{MemoryAddr: 1000, SourceLocation: loc("a.c", 10), TimestampNs: 1},
		{MemoryAddr: 1008, SourceLocation: loc("a.c", 10), TimestampNs: 2},
	}
	out := Ingest(samples, cfg, 64)
	assert.Empty(t, out)
}

func TestSequentialBucketClassifiesSequential(t *testing.T) {
	cfg := config.Default()
	var samples []model.CacheMissSample
	for i := 0; i < 8; i++ {
		samples = append(samples, model.CacheMissSample{
			MemoryAddr:     uint64(1000 + i*8),
			SourceLocation: loc("a.c", 42),
			TimestampNs:    uint64(i),
			MissLatencyCycles: 100,
			CacheLevelHit:  1,
		})
	}
	out := Ingest(samples, cfg, 64)
	require.Len(t, out, 1)
	h := out[0]
	assert.Equal(t, model.Sequential, h.DominantPattern)
	assert.Equal(t, 8, h.SampleCount)
	assert.Equal(t, h.TotalMisses, h.TotalAccesses)
	assert.InDelta(t, 1.0, h.MissRate(), 0.0001)
	assert.True(t, h.CacheLevelsAffected.Has(0))
	assert.False(t, h.CacheLevelsAffected.Has(1))
}

func TestStridedBucketClassifiesStrided(t *testing.T) {
	cfg := config.Default()
	var samples []model.CacheMissSample
	for i := 0; i < 8; i++ {
		samples = append(samples, model.CacheMissSample{
			MemoryAddr:     uint64(1000 + i*64),
			SourceLocation: loc("a.c", 42),
			TimestampNs:    uint64(i),
		})
	}
	out := Ingest(samples, cfg, 64)
	require.Len(t, out, 1)
	assert.Equal(t, model.Strided, out[0].DominantPattern)
	assert.Equal(t, 8, out[0].AccessStride)
}

func TestTimestampOrderingInvariant(t *testing.T) {
	cfg := config.Default()
	samples := []model.CacheMissSample{
		{MemoryAddr: 100, SourceLocation: loc("a.c", 1), TimestampNs: 3},
		{MemoryAddr: 108, SourceLocation: loc("a.c", 1), TimestampNs: 1},
		{MemoryAddr: 116, SourceLocation: loc("a.c", 1), TimestampNs: 2},
		{MemoryAddr: 124, SourceLocation: loc("a.c", 1), TimestampNs: 4},
	}
	out := Ingest(samples, cfg, 64)
	require.Len(t, out, 1)
	ts := out[0].Samples
	for i := 1; i < len(ts); i++ {
		assert.LessOrEqual(t, ts[i-1].TimestampNs, ts[i].TimestampNs)
	}
}

func TestFalseSharingFlaggedOnMultiThreadWriteSameLine(t *testing.T) {
	cfg := config.Default()
	samples := []model.CacheMissSample{
		{MemoryAddr: 0x1000, IsWrite: true, ThreadID: 1, SourceLocation: loc("a.c", 5), TimestampNs: 1},
		{MemoryAddr: 0x1008, IsWrite: true, ThreadID: 2, SourceLocation: loc("a.c", 5), TimestampNs: 2},
		{MemoryAddr: 0x1000, IsWrite: true, ThreadID: 1, SourceLocation: loc("a.c", 5), TimestampNs: 3},
		{MemoryAddr: 0x1008, IsWrite: true, ThreadID: 2, SourceLocation: loc("a.c", 5), TimestampNs: 4},
	}
	out := Ingest(samples, cfg, 64)
	require.Len(t, out, 1)
	assert.True(t, out[0].IsFalseSharingFlag)
}

func TestBucketsByRoundedIPWhenNoSourceLocation(t *testing.T) {
	cfg := config.Default()
	samples := []model.CacheMissSample{
		{IP: 0x2000, MemoryAddr: 1, TimestampNs: 1},
		{IP: 0x2010, MemoryAddr: 2, TimestampNs: 2},
		{IP: 0x2020, MemoryAddr: 3, TimestampNs: 3},
		{IP: 0x2030, MemoryAddr: 4, TimestampNs: 4},
	}
	out := Ingest(samples, cfg, 64)
	require.Len(t, out, 1)
}

func TestAddressRangeInvariant(t *testing.T) {
	cfg := config.Default()
	samples := []model.CacheMissSample{
		{MemoryAddr: 500, SourceLocation: loc("a.c", 1), TimestampNs: 1},
		{MemoryAddr: 100, SourceLocation: loc("a.c", 1), TimestampNs: 2},
		{MemoryAddr: 900, SourceLocation: loc("a.c", 1), TimestampNs: 3},
		{MemoryAddr: 300, SourceLocation: loc("a.c", 1), TimestampNs: 4},
	}
	out := Ingest(samples, cfg, 64)
	require.Len(t, out, 1)
	h := out[0]
	for _, s := range h.Samples {
		assert.GreaterOrEqual(t, s.MemoryAddr, h.AddressRange.Lo)
		assert.LessOrEqual(t, s.MemoryAddr, h.AddressRange.Hi)
	}
}
