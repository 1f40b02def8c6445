// Package evaluator implements the evaluator and cache simulator (C9): a
// set-associative LRU cache simulator per level, the derived utilization
// and locality metrics, and a Welch's t-test significance check, per §4.9.
package evaluator

import (
	"math"

	"github.com/cachesight/cachesight/internal/cacheerr"
	"github.com/cachesight/cachesight/internal/cachemodel"
	"github.com/cachesight/cachesight/internal/config"
	"github.com/cachesight/cachesight/internal/model"
)

const elementSize = 8

type way struct {
	tag     int64
	counter int64
	valid   bool
}

// Simulate runs the §4.9 set-associative LRU simulator over trace against
// every level of cache. stop is polled before each address; if it ever
// returns true the simulation aborts and returns a Cancelled error with
// untrustworthy partial results, per §5's cancellation model. A nil stop
// disables cancellation.
func Simulate(trace []uint64, cache *cachemodel.Model, stop func() bool) (model.SimulationResult, error) {
	if cache == nil {
		return model.SimulationResult{}, cacheerr.New(cacheerr.InvalidInput, "simulate requires a cache model")
	}
	levels := cache.Levels()
	sets := make([][]way, len(levels))
	numSets := make([]int64, len(levels))
	for i, l := range levels {
		n := l.NumSets()
		if n < 1 {
			n = 1
		}
		numSets[i] = n
		sets[i] = make([]way, n*int64(l.Associativity))
	}

	result := model.SimulationResult{Levels: make([]model.LevelSimResult, len(levels))}
	for i, l := range levels {
		result.Levels[i].LevelID = l.LevelID
	}

	for _, addr := range trace {
		if stop != nil && stop() {
			return result, cacheerr.New(cacheerr.Cancelled, "simulation stopped by caller")
		}
		for i, l := range levels {
			lineSize := int64(l.LineSize)
			if lineSize <= 0 {
				lineSize = 64
			}
			tag := int64(addr) / lineSize
			setIdx := tag % numSets[i]
			assoc := int64(l.Associativity)
			if assoc <= 0 {
				assoc = 1
			}
			base := setIdx * assoc
			ways := sets[i][base : base+assoc]

			hitIdx := -1
			maxIdx := 0
			for w := range ways {
				if ways[w].valid {
					ways[w].counter++
					if ways[w].tag == tag {
						hitIdx = w
					}
					if ways[w].counter > ways[maxIdx].counter {
						maxIdx = w
					}
				}
			}
			if hitIdx >= 0 {
				ways[hitIdx].counter = 0
				result.Levels[i].Hits++
				continue
			}
			result.Levels[i].Misses++
			evictIdx := maxIdx
			for w := range ways {
				if !ways[w].valid {
					evictIdx = w
					break
				}
			}
			ways[evictIdx] = way{tag: tag, counter: 0, valid: true}
		}
	}
	return result, nil
}

// Metrics implements §4.9's three derived metrics. trace supplies the raw
// address sequence for cache_line_utilization; hotspots and sim supply the
// locality ratios. sim should be the L1 (levels[0]) simulation result; a nil
// or empty sim yields 0 temporal locality.
func Metrics(trace []uint64, hotspots []model.Hotspot, sim model.SimulationResult, lineSize int) model.EvaluationMetrics {
	if lineSize <= 0 {
		lineSize = 64
	}
	touchedLines := make(map[uint64]struct{})
	distinctAddrs := make(map[uint64]struct{})
	for _, addr := range trace {
		touchedLines[addr&^uint64(lineSize-1)] = struct{}{}
		distinctAddrs[addr] = struct{}{}
	}
	usefulBytes := float64(len(distinctAddrs)) * elementSize
	lineUtil := 0.0
	if len(touchedLines) > 0 {
		lineUtil = usefulBytes / (float64(len(touchedLines)) * float64(lineSize)) * 100
	}

	var seq, strided int
	for _, h := range hotspots {
		switch h.DominantPattern {
		case model.Sequential:
			seq++
		case model.Strided:
			strided++
		}
	}
	spatial := 0.0
	if len(hotspots) > 0 {
		spatial = float64(100*seq+50*strided) / float64(len(hotspots))
	}

	temporal := 0.0
	if len(sim.Levels) > 0 {
		l1 := sim.Levels[0]
		accesses := l1.Hits + l1.Misses
		if accesses > 0 {
			temporal = (1 - float64(l1.Misses)/float64(accesses)) * 100
		}
	}

	return model.EvaluationMetrics{
		CacheLineUtilizationPct: lineUtil,
		SpatialLocalityPct:      spatial,
		TemporalLocalityPct:     temporal,
	}
}

// Significance runs Welch's t-test on baseline vs optimized timing samples
// per §4.9, approximating the p-value from the standard normal
// distribution via z = |t|. Significant when p < 1 - cfg.ConfidenceLevel.
func Significance(baseline, optimized []float64, cfg config.Config) (model.SignificanceResult, error) {
	if len(baseline) < 2 || len(optimized) < 2 {
		return model.SignificanceResult{}, cacheerr.New(cacheerr.InvalidInput, "significance test requires at least two samples per group")
	}
	m1, v1 := meanVariance(baseline)
	m2, v2 := meanVariance(optimized)
	n1 := float64(len(baseline))
	n2 := float64(len(optimized))

	se := math.Sqrt(v1/n1 + v2/n2)
	var t float64
	if se > 0 {
		t = (m1 - m2) / se
	}
	p := 2 * (1 - standardNormalCDF(math.Abs(t)))
	alpha := 1 - cfg.ConfidenceLevel
	return model.SignificanceResult{
		TStatistic:  t,
		PValue:      p,
		Significant: p < alpha,
	}, nil
}

func meanVariance(xs []float64) (mean, variance float64) {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean = sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	variance = sq / float64(len(xs)-1)
	return mean, variance
}

func standardNormalCDF(z float64) float64 {
	return 0.5 * (1 + math.Erf(z/math.Sqrt2))
}
