// Package classifier implements the anti-pattern classifier (C5): it fuses a
// Hotspot (C4) with correlated static information (C2's StaticPattern and
// LoopInfo) into a ClassifiedPattern carrying an AntipatternKind, severity,
// confidence, and miss-type diagnosis, per §4.5.
package classifier

import (
	"fmt"
	"math"
	"sort"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/cachesight/cachesight/internal/cachemodel"
	"github.com/cachesight/cachesight/internal/config"
	"github.com/cachesight/cachesight/internal/model"
	"github.com/cachesight/cachesight/internal/util"
)

// Stats is the mutable running-statistics block described in §5
// ("the classifier maintains a mutable statistics block ... guarded by a
// single lock; every classify_* entry acquires it").
type Stats struct {
	mu           sync.Mutex
	totalSamples int64
	sumMissRate  float64
	sumLatency   float64
	count        int64
}

// NewStats returns an empty statistics block.
func NewStats() *Stats { return &Stats{} }

func (s *Stats) record(h model.Hotspot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalSamples += int64(h.SampleCount)
	s.sumMissRate += h.MissRate()
	s.sumLatency += h.AvgLatencyCycles
	s.count++
}

// Snapshot returns the running averages accumulated across every Classify
// call sharing this Stats instance.
func (s *Stats) Snapshot() (avgMissRate, avgLatency float64, totalSamples int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count == 0 {
		return 0, 0, 0
	}
	return s.sumMissRate / float64(s.count), s.sumLatency / float64(s.count), s.totalSamples
}

// ClassifyAll classifies every hotspot. Per §5, C5 is thread-safe and may be
// parallelized across hotspots (a data-parallel map); each hotspot is
// classified independently. Survivors (confidence ≥ cfg.MinConfidenceThreshold)
// are returned sorted by severity descending (§4.5, §5 ordering guarantee).
// A hotspot that fails classification (falls below threshold) is dropped,
// not treated as a batch error (§7 recovery policy).
func ClassifyAll(hotspots []model.Hotspot, patterns []model.StaticPattern, loops []model.LoopInfo, cache *cachemodel.Model, cfg config.Config, rules *Rules, stats *Stats) []model.ClassifiedPattern {
	results := make([]model.ClassifiedPattern, len(hotspots))
	passed := make([]bool, len(hotspots))

	var wg sync.WaitGroup
	for i := range hotspots {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cp, ok := Classify(hotspots[i], patterns, loops, cache, cfg, rules, stats)
			results[i] = cp
			passed[i] = ok
		}(i)
	}
	wg.Wait()

	out := make([]model.ClassifiedPattern, 0, len(hotspots))
	for i, ok := range passed {
		if ok {
			out = append(out, results[i])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Severity > out[j].Severity })
	return out
}

// Classify implements §4.5 for a single hotspot: baseline classification by
// dominant pattern, override rules, miss-type assignment, static
// correlation, confidence sample adjustment, and performance-impact scoring.
// The second return value is false when final confidence falls below
// cfg.MinConfidenceThreshold, in which case the hotspot should be dropped.
func Classify(h model.Hotspot, patterns []model.StaticPattern, loops []model.LoopInfo, cache *cachemodel.Model, cfg config.Config, rules *Rules, stats *Stats) (model.ClassifiedPattern, bool) {
	stats.record(h)

	antipattern, confidence, severity := baseline(h.DominantPattern, h.MissRate(), h.AccessStride)

	workingSet := estimateWorkingSet(h, loops)
	rangeBytes := int64(h.AddressRange.Hi-h.AddressRange.Lo) + 1
	distinctCPUs := distinctCPUCount(h.Samples)

	if applyFalseSharing(h, rangeBytes, distinctCPUs, rules) {
		sev := 70 + 5*float64(distinctCPUs)
		if sev > severity {
			severity, confidence, antipattern = sev, 0.95, model.FalseSharing
		}
	}
	if ratio, triggered := thrashingTrigger(h, workingSet, cache, rules); triggered {
		sev := math.Min(95, 60+(ratio-1)*40)
		if sev > severity {
			severity, confidence, antipattern = sev, 0.85, model.Thrashing
		}
	}
	if streamingEvictionTrigger(h, rangeBytes, rules) {
		bonus := 0.0
		if rangeBytes > 10*1024*1024 {
			bonus = 10
		}
		sev := math.Min(90, 50+(h.MissRate()-0.5)*40+bonus)
		if sev > severity {
			severity, confidence, antipattern = sev, 0.85, model.StreamingEviction
		}
	}

	missType := assignMissType(h, workingSet, cache)
	confidence, severity = applyStaticCorrelation(h, patterns, loops, cfg, confidence, severity)

	if len(loops) >= 3 && severity > 50 {
		confidence = util.Clamp(confidence*cfg.ConfidenceBumpManyLoops, 0, 1)
	}
	if h.SampleCount < 10 {
		confidence = util.Clamp(confidence*cfg.ConfidenceDiscountFewSamples, 0, 1)
	} else if h.SampleCount > 1000 {
		confidence = util.Clamp(confidence*cfg.ConfidenceBoostManySamples, 0, 1)
	}

	if confidence < cfg.MinConfidenceThreshold {
		return model.ClassifiedPattern{}, false
	}

	hotspotCopy := h
	cp := model.ClassifiedPattern{
		HotspotRef:           &hotspotCopy,
		Antipattern:          antipattern,
		Severity:             util.Clamp(severity, 0, 100),
		Confidence:           confidence,
		PrimaryMissType:      missType,
		AffectedCacheLevels:  h.CacheLevelsAffected,
		PerformanceImpactPct: util.Clamp(performanceImpact(h, antipattern), 0, 90),
		Description:          describe(antipattern, h),
		RootCause:            rootCause(antipattern, h),
	}
	return cp, true
}

func baseline(kind model.AccessPatternKind, missRate float64, stride int) (model.AntipatternKind, float64, float64) {
	switch kind {
	case model.Sequential:
		if missRate <= 0.5 {
			return model.HotspotReuse, 0.9, 10
		}
		return model.StreamingEviction, 0.85, 60
	case model.Strided:
		if stride <= 8 {
			return model.HotspotReuse, 0.7, 30
		}
		return model.UncoalescedAccess, 0.8, 50+float64(stride)/4
	case model.Random:
		return model.IrregularGatherScatter, 0.9, 80
	case model.GatherScatter:
		return model.IrregularGatherScatter, 0.95, 85
	case model.LoopCarriedDep:
		return model.AntipatternLoopCarriedDep, 0.9, 70
	case model.NestedLoop:
		return model.UncoalescedAccess, 0.95, 90
	case model.Indirect:
		return model.IrregularGatherScatter, 0.8, 75
	default:
		return model.HotspotReuse, 0.5, 10
	}
}

func distinctCPUCount(samples []model.CacheMissSample) int {
	set := mapset.NewSet[uint16]()
	for _, s := range samples {
		set.Add(s.CPUID)
	}
	return set.Cardinality()
}

// estimateWorkingSet looks for a LoopInfo correlated with the hotspot's
// location (same file, within the loop-proximity window) and sums its
// pattern footprints (doubled for nested loops, matching loopplan's
// working_set_size formula); absent a correlated loop it falls back to the
// hotspot's observed address-range span.
func estimateWorkingSet(h model.Hotspot, loops []model.LoopInfo) int64 {
	for _, l := range loops {
		if l.Location.File != h.Location.File {
			continue
		}
		if absInt(l.Location.Line-h.Location.Line) > 20 {
			continue
		}
		var sum int64
		for _, p := range l.Patterns {
			sum += p.EstimatedFootprintBytes
		}
		if l.HasNestedLoops {
			sum *= 2
		}
		if sum > 0 {
			return sum
		}
	}
	return int64(h.AddressRange.Hi-h.AddressRange.Lo) + 1
}

func applyFalseSharing(h model.Hotspot, rangeBytes int64, distinctCPUs int, rules *Rules) bool {
	fallback := h.IsFalseSharingFlag || (rangeBytes <= 128 && h.MissRate() > 0.4 && distinctCPUs >= 2)
	params := map[string]interface{}{
		"is_false_sharing_flag": h.IsFalseSharingFlag,
		"range_bytes":           float64(rangeBytes),
		"miss_rate":             h.MissRate(),
		"distinct_cpus":         float64(distinctCPUs),
	}
	return rules.evalFalseSharing(params, fallback)
}

// thrashingTrigger returns the capacity ratio used for severity scoring and
// whether the rule triggered. When only the miss-rate-only branch of §4.5
// fires (no affected level actually exceeds 1.2x capacity), a nominal ratio
// of 1.5 is used for severity scoring since the specification gives no
// explicit ratio for that branch.
func thrashingTrigger(h model.Hotspot, workingSet int64, cache *cachemodel.Model, rules *Rules) (float64, bool) {
	maxRatio := 0.0
	for k := 0; k < cache.NumLevels(); k++ {
		if !h.CacheLevelsAffected.Has(k) {
			continue
		}
		capacity := cache.Capacity(k)
		if capacity <= 0 {
			continue
		}
		ratio := float64(workingSet) / float64(capacity)
		if ratio > 1.2 && ratio > maxRatio {
			maxRatio = ratio
		}
	}
	missRateTriggered := h.MissRate() > 0.6 && (h.DominantPattern == model.Sequential || h.DominantPattern == model.Strided)
	fallback := maxRatio > 0 || missRateTriggered

	params := map[string]interface{}{
		"working_set":    float64(workingSet),
		"miss_rate":      h.MissRate(),
		"capacity_ratio": maxRatio,
	}
	if !rules.evalThrashing(params, fallback) {
		return 0, false
	}
	if maxRatio == 0 {
		maxRatio = 1.5
	}
	return maxRatio, true
}

func streamingEvictionTrigger(h model.Hotspot, rangeBytes int64, rules *Rules) bool {
	fallback := h.DominantPattern == model.Sequential && rangeBytes > 1<<20 && h.MissRate() > 0.5
	params := map[string]interface{}{
		"range_bytes":   float64(rangeBytes),
		"miss_rate":     h.MissRate(),
		"is_sequential": h.DominantPattern == model.Sequential,
	}
	return rules.evalStreamingEviction(params, fallback)
}

func assignMissType(h model.Hotspot, workingSet int64, cache *cachemodel.Model) model.MissType {
	if h.TotalAccesses < 2*h.TotalMisses {
		return model.Compulsory
	}
	for k := 0; k < cache.NumLevels(); k++ {
		if h.CacheLevelsAffected.Has(k) && workingSet > cache.Capacity(k) {
			return model.Capacity
		}
	}
	if workingSet < cache.Capacity(0) && h.MissRate() > 0.3 {
		return model.Conflict
	}
	if h.IsFalseSharingFlag {
		return model.Coherence
	}
	return model.Conflict
}

func applyStaticCorrelation(h model.Hotspot, patterns []model.StaticPattern, loops []model.LoopInfo, cfg config.Config, confidence, severity float64) (float64, float64) {
	for _, p := range patterns {
		if p.Location.File != h.Location.File {
			continue
		}
		if absInt(p.Location.Line-h.Location.Line) < cfg.StaticCorrelationLineGap {
			confidence = util.Clamp(confidence*cfg.ConfidenceBumpCorrelated, 0, 1)
			if p.HasDependencies {
				severity = util.Clamp(severity*cfg.SeverityBumpDependent, 0, 100)
			}
			break
		}
	}
	for _, l := range loops {
		if l.Location.File != h.Location.File {
			continue
		}
		if absInt(l.Location.Line-h.Location.Line) <= cfg.LoopProximityLineGap && l.HasNestedLoops {
			severity = util.Clamp(severity*cfg.SeverityBumpNested, 0, 100)
			break
		}
	}
	return confidence, severity
}

func performanceImpact(h model.Hotspot, antipattern model.AntipatternKind) float64 {
	lat := math.Max(10, h.AvgLatencyCycles)
	base := h.MissRate() * lat / (1 + h.MissRate()*lat) * 100
	multiplier := 1.0
	switch antipattern {
	case model.FalseSharing:
		multiplier = 1.5
	case model.Thrashing:
		multiplier = 1.3
	case model.StreamingEviction:
		multiplier = 0.8
	}
	return base * multiplier
}

func describe(a model.AntipatternKind, h model.Hotspot) string {
	return fmt.Sprintf("%s detected at %s (%d samples, miss_rate=%.2f)", a, h.Location, h.SampleCount, h.MissRate())
}

func rootCause(a model.AntipatternKind, h model.Hotspot) string {
	switch a {
	case model.FalseSharing:
		return "multiple threads writing distinct fields on the same cache line"
	case model.Thrashing:
		return "working set exceeds cache capacity at an affected level"
	case model.StreamingEviction:
		return "large sequential scan evicts reusable lines before reuse"
	case model.UncoalescedAccess:
		return "access stride crosses cache lines without reuse"
	case model.IrregularGatherScatter:
		return "index-dependent or pointer-chased access defeats hardware prefetch"
	case model.AntipatternLoopCarriedDep:
		return "iteration depends on the previous iteration's result"
	default:
		return fmt.Sprintf("dominant access pattern %s at %s", h.DominantPattern, h.Location)
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
