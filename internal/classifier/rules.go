package classifier

import (
	"log/slog"

	"github.com/casbin/govaluate"

	"github.com/cachesight/cachesight/internal/config"
)

// Rules holds compiled govaluate expressions overriding the three §4.5
// override-rule trigger conditions (false_sharing, thrashing,
// streaming_eviction), loaded from Config.RuleOverrides so a deployment can
// retune the triggers without recompiling. A rule with no override, or one
// whose expression fails to compile, falls back to the specification's
// built-in boolean trigger.
type Rules struct {
	falseSharing      *govaluate.EvaluableExpression
	thrashing         *govaluate.EvaluableExpression
	streamingEviction *govaluate.EvaluableExpression
}

// NewRules compiles cfg.RuleOverrides.
func NewRules(cfg config.Config) *Rules {
	return &Rules{
		falseSharing:      compile(cfg.RuleOverrides["false_sharing"]),
		thrashing:         compile(cfg.RuleOverrides["thrashing"]),
		streamingEviction: compile(cfg.RuleOverrides["streaming_eviction"]),
	}
}

func compile(expr string) *govaluate.EvaluableExpression {
	if expr == "" {
		return nil
	}
	compiled, err := govaluate.NewEvaluableExpression(expr)
	if err != nil {
		slog.Warn("classifier: ignoring invalid rule override expression",
			slog.String("expression", expr), slog.String("error", err.Error()))
		return nil
	}
	return compiled
}

func (r *Rules) evalFalseSharing(params map[string]interface{}, fallback bool) bool {
	return evalOrDefault(r.falseSharing, params, fallback)
}

func (r *Rules) evalThrashing(params map[string]interface{}, fallback bool) bool {
	return evalOrDefault(r.thrashing, params, fallback)
}

func (r *Rules) evalStreamingEviction(params map[string]interface{}, fallback bool) bool {
	return evalOrDefault(r.streamingEviction, params, fallback)
}

func evalOrDefault(expr *govaluate.EvaluableExpression, params map[string]interface{}, fallback bool) bool {
	if expr == nil {
		return fallback
	}
	result, err := expr.Evaluate(params)
	if err != nil {
		slog.Warn("classifier: rule override evaluation failed, using default trigger", slog.String("error", err.Error()))
		return fallback
	}
	b, ok := result.(bool)
	if !ok {
		slog.Warn("classifier: rule override expression did not evaluate to a boolean, using default trigger")
		return fallback
	}
	return b
}
