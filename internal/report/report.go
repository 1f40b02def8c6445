// Package report renders classified patterns and recommendations to JSON,
// a terminal-width-aware text table, and a two-sheet Excel workbook,
// grounded on the teacher's internal/report render_json.go/render_text.go/
// render_excel.go trio.
package report

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/cachesight/cachesight/internal/model"
)

// locationJSON mirrors §6's {"file","line","function"} location object.
type locationJSON struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
}

// patternJSON mirrors §6's per-pattern JSON record exactly.
type patternJSON struct {
	Type               string       `json:"type"`
	Location           locationJSON `json:"location"`
	Severity           float64      `json:"severity"`
	Confidence         float64      `json:"confidence"`
	PerformanceImpact  float64      `json:"performance_impact"`
	MissRate           float64      `json:"miss_rate"`
	TotalMisses        int64        `json:"total_misses"`
	Description        string       `json:"description"`
	RootCause          string       `json:"root_cause"`
}

// patternReportJSON mirrors §6's top-level pattern report object.
type patternReportJSON struct {
	PatternCount int           `json:"pattern_count"`
	Patterns     []patternJSON `json:"patterns"`
}

// recommendationJSON mirrors §6's "analogous" recommendation record.
type recommendationJSON struct {
	Optimization       string       `json:"optimization"`
	Location           locationJSON `json:"location"`
	Priority           int          `json:"priority"`
	ExpectedSpeedupPct float64      `json:"expected_speedup_pct"`
	Rationale          string       `json:"rationale"`
	CodeExample        string       `json:"code_example"`
}

type recommendationReportJSON struct {
	RecommendationCount int                   `json:"recommendation_count"`
	Recommendations     []recommendationJSON  `json:"recommendations"`
}

// fullReportJSON bundles both reports into one document; RenderJSON always
// emits this form, and cmd/analyze prints it to stdout for --format json.
type fullReportJSON struct {
	Patterns        patternReportJSON        `json:"patterns"`
	Recommendations recommendationReportJSON `json:"recommendations"`
}

func toPatternJSON(p model.ClassifiedPattern) patternJSON {
	loc := locationJSON{}
	missRate := 0.0
	var totalMisses int64
	if p.HotspotRef != nil {
		loc = locationJSON{File: p.HotspotRef.Location.File, Line: p.HotspotRef.Location.Line, Function: p.HotspotRef.Location.Function}
		missRate = p.HotspotRef.MissRate()
		totalMisses = p.HotspotRef.TotalMisses
	}
	return patternJSON{
		Type:              p.Antipattern.String(),
		Location:          loc,
		Severity:          p.Severity,
		Confidence:        p.Confidence,
		PerformanceImpact: p.PerformanceImpactPct,
		MissRate:          missRate,
		TotalMisses:       totalMisses,
		Description:       p.Description,
		RootCause:         p.RootCause,
	}
}

func toRecommendationJSON(r model.Recommendation) recommendationJSON {
	return recommendationJSON{
		Optimization:       r.Optimization.String(),
		Location:           locationJSON{File: r.TargetLocation.File, Line: r.TargetLocation.Line, Function: r.TargetLocation.Function},
		Priority:           r.Priority,
		ExpectedSpeedupPct: r.ExpectedSpeedupPct,
		Rationale:          r.Rationale,
		CodeExample:        r.CodeExample,
	}
}

// RenderJSON implements §6's JSON output for both the pattern and
// recommendation reports, bundled under one document.
func RenderJSON(patterns []model.ClassifiedPattern, recs []model.Recommendation) ([]byte, error) {
	pr := patternReportJSON{PatternCount: len(patterns)}
	for _, p := range patterns {
		pr.Patterns = append(pr.Patterns, toPatternJSON(p))
	}
	rr := recommendationReportJSON{RecommendationCount: len(recs)}
	for _, r := range recs {
		rr.Recommendations = append(rr.Recommendations, toRecommendationJSON(r))
	}
	out, err := json.MarshalIndent(fullReportJSON{Patterns: pr, Recommendations: rr}, "", " ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal report")
	}
	return out, nil
}
