// Package recommend implements the recommendation engine (C8): it maps
// each classified anti-pattern to one to three ranked optimizations, per
// §4.8.
package recommend

import (
	"fmt"
	"math"
	"sort"

	"github.com/cachesight/cachesight/internal/model"
)

// optTable is the antipattern -> optimizations (in priority order) mapping
// of §4.8. NestedLoop access patterns are already folded into
// UncoalescedAccess by the classifier, so a single UncoalescedAccess entry
// covers both.
var optTable = map[model.AntipatternKind][]model.OptKind{
	model.Thrashing:                 {model.OptLoopTiling, model.OptCacheBlocking},
	model.UncoalescedAccess:         {model.OptLoopInterchange, model.OptLoopTiling},
	model.IrregularGatherScatter:    {model.OptDataLayoutChange, model.OptPrefetchHints},
	model.FalseSharing:              {model.OptMemoryAlignment},
	model.StreamingEviction:         {model.OptPrefetchHints},
	model.AntipatternLoopCarriedDep: {model.OptLoopUnroll},
	model.AntipatternBankConflict:   {model.OptDataLayoutChange},
}

// sizeofInt is the assumed width, in bytes, of the `int` the false-sharing
// padding example pads around (§4.8 scenario 4: "example padding size =
// line_size - sizeof(int)").
const sizeofInt = 4

// speedupFactor is §4.8's f(opt) table.
var speedupFactor = map[model.OptKind]float64{
	model.OptLoopTiling:       0.6,
	model.OptCacheBlocking:    0.6,
	model.OptLoopInterchange:  0.7,
	model.OptDataLayoutChange: 0.5,
	model.OptMemoryAlignment:  0.4,
	model.OptPrefetchHints:    0.3,
	model.OptLoopUnroll:       0.2,
	model.OptLoopVectorize:    0.5,
}

// Recommend implements §4.8 end to end. plans supplies the loop-plan
// vectorizability used by the "any strided-vectorizable" rule: a pattern
// whose dominant access is Strided, or that correlates (same file, fewer
// than 20 lines apart) with a vectorizable LoopPlan, also earns a
// LoopVectorize recommendation. lineSize is the cache line size in bytes,
// used to size the FalseSharing -> MemoryAlignment padding example. Results
// are de-duplicated by (file, line, opt_kind) keeping the highest priority,
// then sorted by priority descending, then location ascending.
func Recommend(patterns []model.ClassifiedPattern, plans []model.LoopPlan, lineSize int) []model.Recommendation {
	type key struct {
		file string
		line int
		opt  model.OptKind
	}
	best := make(map[key]model.Recommendation)

	add := func(loc model.SourceLocation, opt model.OptKind, severity, perfImpact float64, codeExample string) {
		priority := int(math.Round(severity / 20))
		if priority < 1 {
			priority = 1
		}
		if priority > 5 {
			priority = 5
		}
		k := key{file: loc.File, line: loc.Line, opt: opt}
		rec := model.Recommendation{
			Optimization:       opt,
			TargetLocation:     loc,
			ExpectedSpeedupPct: perfImpact * speedupFactor[opt],
			Priority:           priority,
			Rationale:          rationale(opt),
			CodeExample:        codeExample,
		}
		if existing, ok := best[k]; !ok || rec.Priority > existing.Priority {
			best[k] = rec
		}
	}

	for _, p := range patterns {
		if p.HotspotRef == nil {
			continue
		}
		loc := p.HotspotRef.Location
		for _, opt := range optTable[p.Antipattern] {
			var codeExample string
			if opt == model.OptMemoryAlignment && p.Antipattern == model.FalseSharing {
				codeExample = memoryAlignmentExample(lineSize)
			}
			add(loc, opt, p.Severity, p.PerformanceImpactPct, codeExample)
		}
		if isVectorizableCandidate(p, plans) {
			add(loc, model.OptLoopVectorize, p.Severity, p.PerformanceImpactPct, "")
		}
	}

	out := make([]model.Recommendation, 0, len(best))
	for _, rec := range best {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		if out[i].TargetLocation.File != out[j].TargetLocation.File {
			return out[i].TargetLocation.File < out[j].TargetLocation.File
		}
		return out[i].TargetLocation.Line < out[j].TargetLocation.Line
	})
	return out
}

func isVectorizableCandidate(p model.ClassifiedPattern, plans []model.LoopPlan) bool {
	if p.HotspotRef != nil && p.HotspotRef.DominantPattern == model.Strided {
		return true
	}
	for _, plan := range plans {
		if plan.IsVectorizable && p.HotspotRef != nil && plan.Location.SameFile(p.HotspotRef.Location) &&
			plan.Location.LineDelta(p.HotspotRef.Location) < 20 {
			return true
		}
	}
	return false
}

// memoryAlignmentExample renders §4.8 scenario 4's padding example: pad the
// contended field out to a full cache line, leaving room for one int's
// worth of payload (pad = line_size - sizeof(int)).
func memoryAlignmentExample(lineSize int) string {
	pad := lineSize - sizeofInt
	if pad < 0 {
		pad = 0
	}
	return fmt.Sprintf("struct { int value; char _pad[%d]; } __attribute__((aligned(%d)));", pad, lineSize)
}

func rationale(opt model.OptKind) string {
	switch opt {
	case model.OptLoopTiling:
		return "block the loop to fit the working set within cache capacity"
	case model.OptCacheBlocking:
		return "partition the iteration space to bound cache footprint per tile"
	case model.OptLoopInterchange:
		return "reorder loop nests so the innermost loop walks memory contiguously"
	case model.OptDataLayoutChange:
		return "reorganize the data layout to match access order"
	case model.OptMemoryAlignment:
		return "pad or align the structure to avoid sharing a cache line across threads"
	case model.OptPrefetchHints:
		return "issue explicit prefetches ahead of the access stream"
	case model.OptLoopUnroll:
		return "unroll to shorten the loop-carried dependency chain"
	case model.OptLoopVectorize:
		return "vectorize the strided access with SIMD loads/stores"
	default:
		return ""
	}
}
