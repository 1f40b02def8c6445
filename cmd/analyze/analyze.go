// Package analyze is a subcommand of the root command. It runs the full
// cache-behavior analysis pipeline (C1-C9) over a translation-unit AST
// dump, a cache-miss sample stream, and a cache topology snapshot, and
// renders the resulting anti-patterns and recommendations.
package analyze

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/cachesight/cachesight/internal/app"
	"github.com/cachesight/cachesight/internal/astsrc"
	"github.com/cachesight/cachesight/internal/bankconflict"
	"github.com/cachesight/cachesight/internal/cachemodel"
	"github.com/cachesight/cachesight/internal/classifier"
	"github.com/cachesight/cachesight/internal/config"
	"github.com/cachesight/cachesight/internal/evaluator"
	"github.com/cachesight/cachesight/internal/falsesharing"
	"github.com/cachesight/cachesight/internal/hotspot"
	"github.com/cachesight/cachesight/internal/loopplan"
	"github.com/cachesight/cachesight/internal/model"
	"github.com/cachesight/cachesight/internal/patternextract"
	"github.com/cachesight/cachesight/internal/pipelinemetrics"
	"github.com/cachesight/cachesight/internal/recommend"
	"github.com/cachesight/cachesight/internal/report"
)

const cmdName = "analyze"

var examples = []string{
	fmt.Sprintf("  Analyze one translation unit:                 $ %s %s --ast tu.json --samples samples.json --topology topology.json", app.Name, cmdName),
	fmt.Sprintf("  Write an Excel workbook instead of JSON:      $ %s %s --ast tu.json --samples samples.json --topology topology.json --format xlsx", app.Name, cmdName),
	fmt.Sprintf("  Print a terminal-width text summary:          $ %s %s --ast tu.json --samples samples.json --topology topology.json --format text", app.Name, cmdName),
}

// Cmd is the analyze subcommand.
var Cmd = &cobra.Command{
	Use:           cmdName,
	Short:         "Analyze cache behavior from an AST dump, a sample stream, and a cache topology",
	Example:       strings.Join(examples, "\n"),
	RunE:          run,
	PreRunE:       validateFlags,
	GroupID:       "primary",
	Args:          cobra.NoArgs,
	SilenceErrors: true,
}

var (
	flagAST       string
	flagSamples   string
	flagTopology  string
	flagBankModel string
	flagFormat    string
	flagMetrics   string
)

func init() {
	Cmd.Flags().StringVar(&flagAST, "ast", "", "path to a JSON-encoded astsrc.TranslationUnit")
	Cmd.Flags().StringVar(&flagSamples, "samples", "", "path to a JSON array of cache-miss samples")
	Cmd.Flags().StringVar(&flagTopology, "topology", "", "path to a JSON array of cache levels")
	Cmd.Flags().StringVar(&flagBankModel, "bank-model", "", "path to a JSON-encoded bank model (optional, enables C7)")
	Cmd.Flags().StringVar(&flagFormat, "format", "json", "output format: json, text, or xlsx")
	Cmd.Flags().StringVar(&flagMetrics, "metrics-listen", "", "if set, serve Prometheus pipeline metrics on this address")
}

func validateFlags(cmd *cobra.Command, args []string) error {
	if flagAST == "" || flagSamples == "" || flagTopology == "" {
		return errors.New("--ast, --samples, and --topology are all required")
	}
	switch flagFormat {
	case "json", "text", "xlsx":
	default:
		return errors.Errorf("unsupported --format %q, want json, text, or xlsx", flagFormat)
	}
	return nil
}

func run(cmd *cobra.Command, args []string) error {
	start := time.Now()
	if flagMetrics != "" {
		pipelinemetrics.Serve(flagMetrics)
	}

	cfg, err := config.Load(loadFlagConfig(cmd))
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	tu, err := readAST(flagAST)
	if err != nil {
		return err
	}
	samples, err := readSamples(flagSamples)
	if err != nil {
		return err
	}
	cache, err := readTopology(flagTopology)
	if err != nil {
		return err
	}

	extraction, err := patternextract.Extract(tu, cfg)
	if err != nil {
		return errors.Wrap(err, "pattern extraction failed")
	}
	for _, diag := range extraction.Diagnostics {
		fmt.Fprintf(os.Stderr, "diagnostic: %s\n", diag)
	}

	plans := loopplan.Analyze(extraction.Loops, cache)

	lineSize := cfg.CacheLineSize
	if lineSize <= 0 {
		lineSize = cache.L1LineSize()
	}
	hotspots := hotspot.Ingest(samples, cfg, lineSize)
	pipelinemetrics.ObserveHotspots(len(hotspots))

	rules := classifier.NewRules(cfg)
	stats := classifier.NewStats()
	patterns := classifier.ClassifyAll(hotspots, extraction.Patterns, extraction.Loops, cache, cfg, rules, stats)
	for _, p := range patterns {
		pipelinemetrics.ObserveAntipattern(p.Antipattern.String())
	}

	fsCandidates := falsesharing.Detect(samples, cfg, lineSize)
	var confirmedFS int
	for _, c := range fsCandidates {
		if c.Confirmed {
			confirmedFS++
		}
	}
	pipelinemetrics.ObserveFalseSharingCandidates(confirmedFS)

	if flagBankModel != "" {
		bankModel, err := readBankModel(flagBankModel)
		if err != nil {
			return err
		}
		conflicts := bankconflict.Detect(samples, bankModel, cfg)
		for _, c := range conflicts {
			fmt.Fprintf(os.Stderr, "bank conflict: bank=%d severity=%.1f strided=%v power_of_two=%v\n",
				c.Bank, c.Severity, c.IsStrided, c.IsPowerOfTwo)
		}
	}

	recs := recommend.Recommend(patterns, plans, lineSize)
	pipelinemetrics.ObserveRecommendations(len(recs))

	if cfg.EnableSimulation {
		trace := make([]uint64, len(samples))
		for i, s := range samples {
			trace[i] = s.MemoryAddr
		}
		sim, err := evaluator.Simulate(trace, cache, nil)
		if err != nil {
			return errors.Wrap(err, "cache simulation failed")
		}
		metrics := evaluator.Metrics(trace, hotspots, sim, lineSize)
		fmt.Fprintf(os.Stderr, "cache_line_utilization=%.1f%% spatial_locality=%.1f%% temporal_locality=%.1f%%\n",
			metrics.CacheLineUtilizationPct, metrics.SpatialLocalityPct, metrics.TemporalLocalityPct)
	}

	pipelinemetrics.ObserveRunDuration(time.Since(start))
	return renderOutput(patterns, recs)
}

func loadFlagConfig(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString(app.FlagConfigName)
	return path
}

func renderOutput(patterns []model.ClassifiedPattern, recs []model.Recommendation) error {
	switch flagFormat {
	case "xlsx":
		out, err := report.RenderXLSX(patterns, recs)
		if err != nil {
			return errors.Wrap(err, "failed to render xlsx report")
		}
		_, err = os.Stdout.Write(out)
		return err
	case "text":
		width := terminalWidth()
		fmt.Print(report.RenderText(patterns, recs, width))
		return nil
	default:
		out, err := report.RenderJSON(patterns, recs)
		if err != nil {
			return errors.Wrap(err, "failed to render json report")
		}
		fmt.Println(string(out))
		return nil
	}
}

func terminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 100
	}
	return w
}

func readAST(path string) (*astsrc.TranslationUnit, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, errors.Wrap(err, "failed to read AST file")
	}
	var tu astsrc.TranslationUnit
	if err := json.Unmarshal(data, &tu); err != nil {
		return nil, errors.Wrap(err, "failed to parse AST file")
	}
	return &tu, nil
}

func readSamples(path string) ([]model.CacheMissSample, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, errors.Wrap(err, "failed to read samples file")
	}
	var samples []model.CacheMissSample
	if err := json.Unmarshal(data, &samples); err != nil {
		return nil, errors.Wrap(err, "failed to parse samples file")
	}
	return samples, nil
}

func readTopology(path string) (*cachemodel.Model, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, errors.Wrap(err, "failed to read topology file")
	}
	var levels []cachemodel.Level
	if err := json.Unmarshal(data, &levels); err != nil {
		return nil, errors.Wrap(err, "failed to parse topology file")
	}
	return cachemodel.New(levels)
}

func readBankModel(path string) (model.BankModel, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return model.BankModel{}, errors.Wrap(err, "failed to read bank model file")
	}
	var bm model.BankModel
	if err := json.Unmarshal(data, &bm); err != nil {
		return model.BankModel{}, errors.Wrap(err, "failed to parse bank model file")
	}
	return bm, nil
}
