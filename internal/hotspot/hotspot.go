// Package hotspot implements the sample ingester / hotspot aggregator (C4):
// it buckets a stream of raw CacheMissSample records by source-location (or,
// lacking one, by instruction pointer rounded to a cache line) and derives a
// dominant access pattern, miss-level bitset, and false-sharing flag per
// bucket, per §4.4.
package hotspot

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/cachesight/cachesight/internal/config"
	"github.com/cachesight/cachesight/internal/model"
)

// elementSize mirrors the extractor's assumed element width, used to convert
// a dominant address delta into a stride.
const elementSize = 8

// defaultLineSize is used when the caller has no cache-topology line size to
// supply (§4.4's bucketing and false-sharing grouping both need one).
const defaultLineSize = 64

// bucketKey identifies one aggregation bucket: a (file,line) pair when a
// sample carries a source location, else an instruction pointer rounded down
// to the nearest cache line.
type bucketKey struct {
	hasLocation bool
	file        string
	line        int
	roundedIP   uint64
}

func keyFor(s model.CacheMissSample, lineSize int) bucketKey {
	if s.SourceLocation != nil {
		return bucketKey{hasLocation: true, file: s.SourceLocation.File, line: s.SourceLocation.Line}
	}
	return bucketKey{roundedIP: roundDown(s.IP, uint64(lineSize))}
}

func roundDown(v, line uint64) uint64 {
	if line == 0 {
		return v
	}
	return v - (v % line)
}

// Ingest implements §4.4 end to end. lineSize is the cache line size (bytes)
// used for bucketing-by-IP and false-sharing grouping; 0 defaults to 64. An
// empty sample sequence returns a nil slice, not an error (§4.4 "Failure").
func Ingest(samples []model.CacheMissSample, cfg config.Config, lineSize int) []model.Hotspot {
	if len(samples) == 0 {
		return nil
	}
	if lineSize <= 0 {
		lineSize = defaultLineSize
	}

	order := make([]bucketKey, 0)
	groups := make(map[bucketKey][]model.CacheMissSample)
	for _, s := range samples {
		k := keyFor(s, lineSize)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], s)
	}

	var hotspots []model.Hotspot
	for _, k := range order {
		group := groups[k]
		if len(group) < cfg.MinSamplesPerHotspot {
			continue
		}
		hotspots = append(hotspots, buildHotspot(group, cfg, lineSize))
	}
	return hotspots
}

func buildHotspot(group []model.CacheMissSample, cfg config.Config, lineSize int) model.Hotspot {
	sorted := make([]model.CacheMissSample, len(group))
	copy(sorted, group)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TimestampNs < sorted[j].TimestampNs })

	loc := model.SourceLocation{}
	if sorted[0].SourceLocation != nil {
		loc = *sorted[0].SourceLocation
	}

	lo, hi := sorted[0].MemoryAddr, sorted[0].MemoryAddr
	var latencySum float64
	var levels model.CacheLevelsAffected
	for _, s := range sorted {
		if s.MemoryAddr < lo {
			lo = s.MemoryAddr
		}
		if s.MemoryAddr > hi {
			hi = s.MemoryAddr
		}
		latencySum += float64(s.MissLatencyCycles)
		for k := 0; k < 4; k++ {
			if int(s.CacheLevelHit) > k {
				levels.Set(k)
			}
		}
	}

	kind, stride := dominantPattern(sorted, cfg)
	sampleCount := len(sorted)

	return model.Hotspot{
		Location:            loc,
		SampleCount:         sampleCount,
		TotalAccesses:       int64(sampleCount),
		TotalMisses:         int64(sampleCount),
		AvgLatencyCycles:    latencySum / float64(sampleCount),
		AddressRange:        model.AddressRange{Lo: lo, Hi: hi},
		DominantPattern:     kind,
		AccessStride:        stride,
		CacheLevelsAffected: levels,
		IsFalseSharingFlag:  hasFalseSharing(sorted, lineSize),
		Samples:             sorted,
	}
}

// dominantPattern implements §4.4's address-delta classification.
func dominantPattern(sorted []model.CacheMissSample, cfg config.Config) (model.AccessPatternKind, int) {
	if len(sorted) < 2 {
		return model.GatherScatter, 0
	}
	deltaCounts := make(map[int64]int)
	deltaCount := 0
	for i := 0; i+1 < len(sorted); i++ {
		d := int64(sorted[i+1].MemoryAddr) - int64(sorted[i].MemoryAddr)
		deltaCounts[d]++
		deltaCount++
	}

	var domDelta int64
	domCount := 0
	for d, c := range deltaCounts {
		if c > domCount {
			domCount = c
			domDelta = d
		}
	}

	if domDelta > 0 && float64(domCount)/float64(deltaCount) >= cfg.SequentialDominanceFrac {
		if domDelta <= elementSize {
			return model.Sequential, int(domDelta)
		}
		return model.Strided, int(domDelta / elementSize)
	}

	if addressDiversity(sorted) > cfg.AddressDiversityFrac {
		return model.Random, 0
	}
	return model.GatherScatter, 0
}

// addressDiversity is the fraction of samples that land on a distinct cache
// line (using the default line size, since §4.4 doesn't tie diversity to a
// topology-specific line size).
func addressDiversity(samples []model.CacheMissSample) float64 {
	lines := make(map[uint64]struct{}, len(samples))
	for _, s := range samples {
		lines[roundDown(s.MemoryAddr, defaultLineSize)] = struct{}{}
	}
	return float64(len(lines)) / float64(len(samples))
}

// hasFalseSharing implements §4.4: "Multiple writers on same cache line from
// ≥2 thread_ids → flag is_false_sharing_flag".
func hasFalseSharing(samples []model.CacheMissSample, lineSize int) bool {
	writers := make(map[uint64]mapset.Set[uint32])
	for _, s := range samples {
		if !s.IsWrite {
			continue
		}
		line := roundDown(s.MemoryAddr, uint64(lineSize))
		if writers[line] == nil {
			writers[line] = mapset.NewSet[uint32]()
		}
		writers[line].Add(s.ThreadID)
		if writers[line].Cardinality() >= 2 {
			return true
		}
	}
	return false
}
