// Package loopplan implements the loop analyzer and transformation planner
// (C3): it consumes the LoopInfo records produced by patternextract and an
// immutable cachemodel.Model snapshot, and computes, per loop, a working-set
// estimate, reuse distance, vectorizability/parallelizability, and the set
// of transformation flags described in §4.3, including loop-tiling sizing.
package loopplan

import (
	"fmt"
	"math"

	"github.com/cachesight/cachesight/internal/cachemodel"
	"github.com/cachesight/cachesight/internal/model"
	"github.com/cachesight/cachesight/internal/util"
)

// elementSize is the assumed element width in bytes (§4.3: "element_size
// assumed 8").
const elementSize = 8

// minParallelTripCount and minUnrollTripCount gate the Parallelize/Unroll
// transformation flags (§4.3).
const (
	minParallelTripCount = 100
	minUnrollTripCount   = 10
	tiledArrayCount      = 3 // "three arrays assumed" in the tiling-size formula
	usableFraction       = 0.8
)

var tileSizeSteps = []int{16, 32, 64, 128, 256}

// Analyze computes a LoopPlan for every loop in loops. Interchange legality
// for a nested loop is determined against its immediate parent, found by
// scanning forward for the next loop one nest level shallower (loops are
// appended in post-order by patternextract, so a loop's parent always
// follows it in the slice).
func Analyze(loops []model.LoopInfo, cache *cachemodel.Model) []model.LoopPlan {
	plans := make([]model.LoopPlan, len(loops))
	for i, loop := range loops {
		plans[i] = planFor(loop, loops, i, cache)
	}
	return plans
}

func planFor(loop model.LoopInfo, all []model.LoopInfo, index int, cache *cachemodel.Model) model.LoopPlan {
	workingSet := workingSetSize(loop)
	parallelizable := isParallelizable(loop.Patterns)
	vectorizable := isVectorizable(loop.Patterns)

	plan := model.LoopPlan{
		Location:         loop.Location,
		WorkingSetBytes:  workingSet,
		ReuseDistance:    reuseDistance(loop.Patterns),
		IsParallelizable: parallelizable,
		IsVectorizable:   vectorizable,
		UnrollFactor:     util.ClampInt(cache.L1LineSize()/elementSize, 2, 8),
	}

	plan.Tile = workingSet > cache.Capacity(0)
	plan.Vectorize = vectorizable
	plan.Prefetch = hasProfitablyStridedAccess(loop.Patterns)

	if tripCount, known := loop.TripCount(); known {
		plan.Parallelize = parallelizable && tripCount >= minParallelTripCount
		plan.Unroll = vectorizable && tripCount >= minUnrollTripCount
	}

	if loop.NestLevel >= 2 {
		if parent, ok := findParent(loop, all, index); ok {
			plan.Interchange = interchangeLegal(parent, loop) && maxStride(parent.Patterns) > maxStride(loop.Patterns)
		}
	}

	if plan.Tile {
		tp := tilingPlanFor(cache, workingSet)
		plan.TilingPlan = &tp
	}

	return plan
}

// workingSetSize implements §4.3: "working_set_size = Σ pattern.footprint
// (doubled if has_nested_loops)".
func workingSetSize(loop model.LoopInfo) int64 {
	var total int64
	for _, p := range loop.Patterns {
		total += p.EstimatedFootprintBytes
	}
	if loop.HasNestedLoops {
		total *= 2
	}
	return total
}

// reuseDistance implements §4.3's per-kind lookup, averaged over patterns.
func reuseDistance(patterns []model.StaticPattern) float64 {
	if len(patterns) == 0 {
		return 0
	}
	var sum float64
	for _, p := range patterns {
		switch p.Kind {
		case model.Sequential:
			sum += 1
		case model.Strided:
			sum += float64(p.Stride)
		case model.Random, model.Indirect:
			sum += 1000
		default:
			sum += 10
		}
	}
	return sum / float64(len(patterns))
}

// isParallelizable implements §4.3: "no pattern has dependencies".
func isParallelizable(patterns []model.StaticPattern) bool {
	for _, p := range patterns {
		if p.HasDependencies {
			return false
		}
	}
	return true
}

// isVectorizable implements §4.3: "no pattern is Random/Indirect/LoopCarriedDep".
func isVectorizable(patterns []model.StaticPattern) bool {
	for _, p := range patterns {
		switch p.Kind {
		case model.Random, model.Indirect, model.LoopCarriedDep:
			return false
		}
	}
	return true
}

// hasProfitablyStridedAccess implements §4.3's Prefetch condition: "any
// strided access with stride > 1".
func hasProfitablyStridedAccess(patterns []model.StaticPattern) bool {
	for _, p := range patterns {
		if p.Kind == model.Strided && p.Stride > 1 {
			return true
		}
	}
	return false
}

// maxStride returns the largest stride among Strided patterns, or 0.
func maxStride(patterns []model.StaticPattern) int {
	max := 0
	for _, p := range patterns {
		if p.Kind == model.Strided && p.Stride > max {
			max = p.Stride
		}
	}
	return max
}

// findParent scans forward from index for the next loop exactly one nest
// level shallower than loop.
func findParent(loop model.LoopInfo, all []model.LoopInfo, index int) (model.LoopInfo, bool) {
	for i := index + 1; i < len(all); i++ {
		if all[i].NestLevel == loop.NestLevel-1 {
			return all[i], true
		}
	}
	return model.LoopInfo{}, false
}

// interchangeLegal implements §4.3's legality side conditions: the inner
// loop has no function calls and its condition does not mention the outer
// induction variable.
func interchangeLegal(outer, inner model.LoopInfo) bool {
	if inner.HasFunctionCalls {
		return false
	}
	return !mentionsVar(inner.ConditionText, outer.LoopVar)
}

func mentionsVar(text, name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i+len(name) <= len(text); i++ {
		if text[i:i+len(name)] == name {
			before := i == 0 || !isIdentChar(text[i-1])
			after := i+len(name) == len(text) || !isIdentChar(text[i+len(name)])
			if before && after {
				return true
			}
		}
	}
	return false
}

func isIdentChar(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// tilingPlanFor implements §4.3's tiling-size formula across up to three
// cache levels: usable cache per level is level.capacity * 0.8 / 3 (three
// arrays assumed); tile dimension i is floor(sqrt(usable_Li / element_size)),
// quantized down to the nearest member of {16,32,64,128,256}, capped at 256.
//
// EstimatedSpeedupPct is left at zero, and no later stage of the pipeline
// sets it: the planner has no original or tiled miss counts to compute it
// from, and the recommendation engine derives its own ExpectedSpeedupPct
// from the pattern's performance impact without reading the TilingPlan.
func tilingPlanFor(cache *cachemodel.Model, workingSet int64) model.TilingPlan {
	dims := cache.NumLevels()
	if dims > 3 {
		dims = 3
	}
	var sizes [3]int
	for i := 0; i < dims; i++ {
		usable := float64(cache.Capacity(i)) * usableFraction / tiledArrayCount
		dim := int(math.Sqrt(usable / elementSize))
		sizes[i] = quantizeTileDim(dim)
	}
	return model.TilingPlan{
		Dims:      dims,
		TileSizes: sizes,
		Rationale: fmt.Sprintf("working set %d bytes exceeds L1 capacity; tiling to fit %d level(s)", workingSet, dims),
	}
}

// quantizeTileDim rounds dim down to the nearest member of {16,32,64,128,256},
// using 16 as the floor and 256 as the cap.
func quantizeTileDim(dim int) int {
	if dim >= tileSizeSteps[len(tileSizeSteps)-1] {
		return tileSizeSteps[len(tileSizeSteps)-1]
	}
	chosen := tileSizeSteps[0]
	for _, step := range tileSizeSteps {
		if step <= dim {
			chosen = step
		}
	}
	return chosen
}
