// Package falsesharing implements the false-sharing detector (C6): it
// buckets the full sample vector by cache line and scores each line's
// cross-thread write contention, per §4.6.
package falsesharing

import (
	"math"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/cachesight/cachesight/internal/config"
	"github.com/cachesight/cachesight/internal/model"
)

const defaultLineSize = 64

func cacheLine(addr uint64, lineSize int) uint64 {
	if lineSize <= 0 {
		lineSize = defaultLineSize
	}
	return addr &^ uint64(lineSize-1)
}

// Detect implements §4.6 end to end. lineSize is the cache line size in
// bytes; 0 defaults to 64. A bucket becomes a candidate once it has been
// touched by at least two distinct threads; candidates are returned sorted
// by contention score descending. An empty sample vector returns nil.
func Detect(samples []model.CacheMissSample, cfg config.Config, lineSize int) []model.FalseSharingCandidate {
	if len(samples) == 0 {
		return nil
	}
	if lineSize <= 0 {
		lineSize = defaultLineSize
	}

	type bucket struct {
		accessCounts map[uint32]int
		writeCounts  map[uint32]int
		locations    mapset.Set[model.SourceLocation]
	}
	buckets := make(map[uint64]*bucket)
	order := make([]uint64, 0)

	for _, s := range samples {
		line := cacheLine(s.MemoryAddr, lineSize)
		b, ok := buckets[line]
		if !ok {
			b = &bucket{
				accessCounts: make(map[uint32]int),
				writeCounts:  make(map[uint32]int),
				locations:    mapset.NewSet[model.SourceLocation](),
			}
			buckets[line] = b
			order = append(order, line)
		}
		b.accessCounts[s.ThreadID]++
		if s.IsWrite {
			b.writeCounts[s.ThreadID]++
		}
		if s.SourceLocation != nil {
			b.locations.Add(*s.SourceLocation)
		}
	}

	var out []model.FalseSharingCandidate
	for _, line := range order {
		b := buckets[line]
		if len(b.accessCounts) < 2 {
			continue
		}
		c := model.FalseSharingCandidate{
			CacheLine:          line,
			Locations:          b.locations.ToSlice(),
			ThreadAccessCounts: b.accessCounts,
			ThreadWriteCounts:  b.writeCounts,
		}
		c.ContentionScore = contentionScore(c)
		c.Confirmed = confirmed(c, cfg)
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ContentionScore > out[j].ContentionScore })
	return out
}

// contentionScore implements §4.6's formula: (threads-1)*20 +
// write_ratio*40 + coefficient_of_variation(access_counts)*20 +
// (distinct_locations>1 ? 20 : 0), capped at 100.
func contentionScore(c model.FalseSharingCandidate) float64 {
	threads := float64(c.DistinctThreads())
	score := (threads - 1) * 20
	score += c.WriteRatio() * 40
	score += coefficientOfVariation(c.ThreadAccessCounts) * 20
	if len(c.Locations) > 1 {
		score += 20
	}
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

// coefficientOfVariation is stddev/mean over per-thread access counts, 0
// when there are fewer than two threads or the mean is zero.
func coefficientOfVariation(counts map[uint32]int) float64 {
	n := len(counts)
	if n < 2 {
		return 0
	}
	var sum float64
	for _, c := range counts {
		sum += float64(c)
	}
	mean := sum / float64(n)
	if mean == 0 {
		return 0
	}
	var variance float64
	for _, c := range counts {
		d := float64(c) - mean
		variance += d * d
	}
	variance /= float64(n)
	return math.Sqrt(variance) / mean
}

// confirmed implements §4.6's confirmation gate: writing_threads >= 2 AND
// write_ratio >= min_write_ratio AND (distinct_locations >= 2 OR
// require_different_vars == false).
func confirmed(c model.FalseSharingCandidate, cfg config.Config) bool {
	if c.WritingThreads() < 2 {
		return false
	}
	if c.WriteRatio() < cfg.MinWriteRatio {
		return false
	}
	if cfg.RequireDifferentVars && len(c.Locations) < 2 {
		return false
	}
	return true
}
