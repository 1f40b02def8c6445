// Package config loads and defaults the per-run Config (§6 of the
// specification), the way the teacher loads targets.yaml in
// internal/common/targets.go: a thin YAML-backed struct whose defaults are
// set before unmarshal, so the file only overrides the keys it names. No
// command-line flag overrides individual fields; the CLI only selects the
// file.
package config

import (
	"log/slog"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/cachesight/cachesight/internal/util"
)

// Config holds every tunable heuristic constant named in §6 and §9 of the
// specification. Defaults match the specification exactly.
type Config struct {
	MinConfidenceThreshold   float64 `yaml:"min_confidence_threshold"`
	MinSamplesPerHotspot     int     `yaml:"min_samples_per_hotspot"`
	RequireDifferentVars     bool    `yaml:"require_different_vars"`
	MinWriteRatio            float64 `yaml:"min_write_ratio"`
	CacheLineSize            int     `yaml:"cache_line_size"` // 0 means "default to topology.L1.line"
	EnableSimulation         bool    `yaml:"enable_simulation"`
	EnableStatisticalAnalysis bool   `yaml:"enable_statistical_analysis"`
	ConfidenceLevel          float64 `yaml:"confidence_level"`
	SampleIterations         int     `yaml:"sample_iterations"`

	// Heuristic constants (§9 design notes); exposed so a deployment can
	// retune without recompiling.
	OuterRowSizeHeuristic    int     `yaml:"outer_row_size_heuristic"`
	BankConflictWindowUs     float64 `yaml:"bank_conflict_window_us"`
	SequentialDominanceFrac  float64 `yaml:"sequential_dominance_fraction"`  // 0.90 in §4.4
	AddressDiversityFrac     float64 `yaml:"address_diversity_fraction"`     // 0.80 in §4.4
	PowerOfTwoFrac           float64 `yaml:"power_of_two_fraction"`          // 0.80 in §4.7
	StaticCorrelationLineGap int     `yaml:"static_correlation_line_gap"`    // 10 in §4.5
	LoopProximityLineGap     int     `yaml:"loop_proximity_line_gap"`        // 20 in §4.5
	ConfidenceBumpCorrelated float64 `yaml:"confidence_bump_correlated"`     // 1.2
	SeverityBumpDependent    float64 `yaml:"severity_bump_dependent"`        // 1.1
	SeverityBumpNested       float64 `yaml:"severity_bump_nested"`           // 1.5
	ConfidenceBumpManyLoops  float64 `yaml:"confidence_bump_many_loops"`     // 1.15 (documented as +15%)
	ConfidenceDiscountFewSamples float64 `yaml:"confidence_discount_few_samples"` // 0.7
	ConfidenceBoostManySamples   float64 `yaml:"confidence_boost_many_samples"`   // 1.1

	// RuleOverrides optionally carries govaluate expressions that replace
	// the built-in override-rule trigger conditions of C5, keyed by rule
	// name ("false_sharing", "thrashing", "streaming_eviction"). Unset
	// entries keep the specification's default behavior.
	RuleOverrides map[string]string `yaml:"rule_overrides"`
}

// Default returns the Config populated with every default from §6/§9.
func Default() Config {
	return Config{
		MinConfidenceThreshold:       0.6,
		MinSamplesPerHotspot:         4,
		RequireDifferentVars:         false,
		MinWriteRatio:                0.1,
		CacheLineSize:                0,
		EnableSimulation:             false,
		EnableStatisticalAnalysis:    true,
		ConfidenceLevel:              0.95,
		SampleIterations:             100,
		OuterRowSizeHeuristic:        1024,
		BankConflictWindowUs:         1.0,
		SequentialDominanceFrac:      0.90,
		AddressDiversityFrac:         0.80,
		PowerOfTwoFrac:               0.80,
		StaticCorrelationLineGap:     10,
		LoopProximityLineGap:         20,
		ConfidenceBumpCorrelated:     1.2,
		SeverityBumpDependent:        1.1,
		SeverityBumpNested:           1.5,
		ConfidenceBumpManyLoops:      1.15,
		ConfidenceDiscountFewSamples: 0.7,
		ConfidenceBoostManySamples:   1.1,
	}
}

// Load reads a YAML configuration file, if path is non-empty, and overlays
// it onto Default(). An empty path returns Default() unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	abs, err := util.AbsPath(path)
	if err != nil {
		return cfg, errors.Wrap(err, "failed to resolve config path")
	}
	exists, err := util.FileExists(abs)
	if err != nil {
		return cfg, errors.Wrap(err, "failed to stat config file")
	}
	if !exists {
		return cfg, errors.Errorf("config file not found: %s", abs)
	}
	data, err := os.ReadFile(abs) // #nosec G304
	if err != nil {
		return cfg, errors.Wrap(err, "failed to read config file")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(err, "failed to parse config file")
	}
	slog.Debug("loaded configuration", slog.String("path", abs))
	return cfg, nil
}
