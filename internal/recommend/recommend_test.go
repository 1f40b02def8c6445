package recommend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cachesight/cachesight/internal/model"
)

func TestThrashingEmitsTilingThenCacheBlocking(t *testing.T) {
	h := model.Hotspot{Location: model.SourceLocation{File: "a.c", Line: 10}}
	patterns := []model.ClassifiedPattern{
		{HotspotRef: &h, Antipattern: model.Thrashing, Severity: 80, PerformanceImpactPct: 50},
	}
	out := Recommend(patterns, nil, 64)
	require.Len(t, out, 2)
	kinds := map[model.OptKind]bool{}
	for _, r := range out {
		kinds[r.Optimization] = true
		assert.Equal(t, 4, r.Priority)
	}
	assert.True(t, kinds[model.OptLoopTiling])
	assert.True(t, kinds[model.OptCacheBlocking])
}

func TestFalseSharingEmitsMemoryAlignment(t *testing.T) {
	h := model.Hotspot{Location: model.SourceLocation{File: "a.c", Line: 1}}
	patterns := []model.ClassifiedPattern{
		{HotspotRef: &h, Antipattern: model.FalseSharing, Severity: 90, PerformanceImpactPct: 60},
	}
	out := Recommend(patterns, nil, 64)
	require.Len(t, out, 1)
	assert.Equal(t, model.OptMemoryAlignment, out[0].Optimization)
	assert.InDelta(t, 60*0.4, out[0].ExpectedSpeedupPct, 0.0001)
	assert.Contains(t, out[0].CodeExample, "_pad[60]") // line_size(64) - sizeof(int)(4)
	assert.Contains(t, out[0].CodeExample, "aligned(64)")
}

func TestStridedDominantAddsVectorize(t *testing.T) {
	h := model.Hotspot{Location: model.SourceLocation{File: "a.c", Line: 1}, DominantPattern: model.Strided}
	patterns := []model.ClassifiedPattern{
		{HotspotRef: &h, Antipattern: model.UncoalescedAccess, Severity: 60, PerformanceImpactPct: 40},
	}
	out := Recommend(patterns, nil, 64)
	found := false
	for _, r := range out {
		if r.Optimization == model.OptLoopVectorize {
			found = true
		}
	}
	assert.True(t, found)
}

func TestDeduplicatesByFileLineOptKeepingHighestPriority(t *testing.T) {
	h := model.Hotspot{Location: model.SourceLocation{File: "a.c", Line: 1}}
	patterns := []model.ClassifiedPattern{
		{HotspotRef: &h, Antipattern: model.Thrashing, Severity: 20, PerformanceImpactPct: 10},
		{HotspotRef: &h, Antipattern: model.Thrashing, Severity: 100, PerformanceImpactPct: 10},
	}
	out := Recommend(patterns, nil, 64)
	require.Len(t, out, 2)
	for _, r := range out {
		assert.Equal(t, 5, r.Priority)
	}
}

func TestSortedByPriorityDescendingThenLocation(t *testing.T) {
	h1 := model.Hotspot{Location: model.SourceLocation{File: "b.c", Line: 1}}
	h2 := model.Hotspot{Location: model.SourceLocation{File: "a.c", Line: 1}}
	patterns := []model.ClassifiedPattern{
		{HotspotRef: &h1, Antipattern: model.FalseSharing, Severity: 40, PerformanceImpactPct: 10},
		{HotspotRef: &h2, Antipattern: model.FalseSharing, Severity: 100, PerformanceImpactPct: 10},
	}
	out := Recommend(patterns, nil, 64)
	require.Len(t, out, 2)
	assert.Equal(t, "a.c", out[0].TargetLocation.File)
	for i := 1; i < len(out); i++ {
		assert.GreaterOrEqual(t, out[i-1].Priority, out[i].Priority)
	}
}

func TestUnmappedAntipatternEmitsNothing(t *testing.T) {
	h := model.Hotspot{Location: model.SourceLocation{File: "a.c", Line: 1}}
	patterns := []model.ClassifiedPattern{
		{HotspotRef: &h, Antipattern: model.HotspotReuse, Severity: 10, PerformanceImpactPct: 5},
	}
	assert.Empty(t, Recommend(patterns, nil, 64))
}
