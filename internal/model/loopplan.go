package model

// LoopPlan is the per-loop characterization and transformation plan produced
// by the loop analyzer (C3).
type LoopPlan struct {
	Location         SourceLocation
	WorkingSetBytes  int64
	ReuseDistance    float64
	IsParallelizable bool
	IsVectorizable   bool
	UnrollFactor     int

	Tile        bool
	Vectorize   bool
	Parallelize bool
	Unroll      bool
	Prefetch    bool
	Interchange bool

	TilingPlan *TilingPlan // non-nil only when Tile is set
}
