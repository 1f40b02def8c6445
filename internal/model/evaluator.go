package model

// LevelSimResult is one cache level's simulated hit/miss counts (C9).
type LevelSimResult struct {
	LevelID int
	Hits    int64
	Misses  int64
}

// SimulationResult is the full multi-level simulation output for one
// address trace.
type SimulationResult struct {
	Levels []LevelSimResult
}

// EvaluationMetrics holds the §4.9 derived metrics computed over a
// simulation and the hotspot population that fed it.
type EvaluationMetrics struct {
	CacheLineUtilizationPct float64
	SpatialLocalityPct      float64
	TemporalLocalityPct     float64
}

// SignificanceResult is the outcome of a Welch's t-test comparing baseline
// and optimized timing samples.
type SignificanceResult struct {
	TStatistic  float64
	PValue      float64
	Significant bool
}
