package patternextract

import (
	"github.com/cachesight/cachesight/internal/astsrc"
	"github.com/cachesight/cachesight/internal/model"
)

// classifyIndexExpr implements §4.2 "Array index classification", rules 1
// through 11, applied in the documented priority order (first match wins).
//
// The `i%k` case (rule 5b) is a documented deviation (§9): the source this
// specification was distilled from assigns Strided/stride=1 on modulo
// indexing, which contradicts the wrap-around semantics of `i%k` (the
// access repeats every k elements, not every 1) and also violates the
// Strided invariant that stride >= 2. This implementation instead derives
// the stride from the modulus itself, matching "Strided with implicit
// wrap" per §9.
func classifyIndexExpr(e *astsrc.Expr, inductionVar string, loopStride int, loopStrideKnown bool) (kind model.AccessPatternKind, stride int, isIndirect bool, randName string) {
	if e == nil {
		return model.Random, 0, false, ""
	}

	switch e.Kind {
	case astsrc.ExprDeclRef:
		if e.Name == inductionVar {
			// rule 1
			if loopStrideKnown && loopStride == 1 {
				return model.Sequential, 1, false, ""
			}
			return model.Strided, loopStride, false, ""
		}
		return model.Random, 0, false, ""

	case astsrc.ExprIntLiteral:
		// rule 10
		return model.Sequential, 0, false, ""

	case astsrc.ExprSubscript:
		// rule 7: B[g] used as an index expression
		return model.Indirect, 0, true, ""

	case astsrc.ExprDeref:
		// rule 8: *p
		return model.Indirect, 0, true, ""

	case astsrc.ExprCall:
		// rule 9
		if e.Name == "rand" || e.Name == "random" {
			return model.Random, 0, false, "rand()"
		}
		return model.Random, 0, false, ""

	case astsrc.ExprBinaryOp:
		return classifyBinaryOp(e, inductionVar)

	default:
		// rule 11 (includes unary ops, which the specification does not
		// otherwise classify)
		return model.Random, 0, false, ""
	}
}

func classifyBinaryOp(e *astsrc.Expr, inductionVar string) (model.AccessPatternKind, int, bool, string) {
	switch e.Op {
	case "+", "-":
		if c, ok := literalOffset(e, inductionVar); ok {
			// rule 3: e = i - 1 (exact)
			if e.Op == "-" && c == 1 {
				return model.LoopCarriedDep, -1, false, ""
			}
			// rule 2: e = i ± c, |c| > 1
			if c > 1 {
				return model.Strided, c, false, ""
			}
		}
		return model.Random, 0, false, ""

	case "*":
		// rule 4: e = i * c or c * i
		if c, ok := literalFactor(e, inductionVar); ok {
			return model.Strided, c, false, ""
		}
		return model.Random, 0, false, ""

	case "/":
		// rule 5: e = i / c
		if _, ok := literalFactor(e, inductionVar); ok {
			return model.GatherScatter, 0, false, ""
		}
		return model.Random, 0, false, ""

	case "%":
		// rule 5b: e = i % c, "Strided with implicit wrap" per §9 — the
		// access repeats every c elements, so the wrap stride is c itself,
		// not 1. c < 2 is degenerate (i%0 undefined, i%1 is always 0) and
		// doesn't satisfy the Strided invariant (stride >= 2), so it falls
		// back to Random rather than producing an invalid pattern.
		if c, ok := literalFactor(e, inductionVar); ok && c >= 2 {
			return model.Strided, c, false, ""
		}
		return model.Random, 0, false, ""

	case "<<":
		// rule 6: e = i << s
		if s, ok := literalFactor(e, inductionVar); ok {
			return model.Strided, 1 << uint(s), false, ""
		}
		return model.Random, 0, false, ""

	case ">>":
		// rule 6: e = i >> s
		if _, ok := literalFactor(e, inductionVar); ok {
			return model.GatherScatter, 0, false, ""
		}
		return model.Random, 0, false, ""

	default:
		return model.Random, 0, false, ""
	}
}

// literalOffset matches `i ± c` where one operand is the induction variable
// DeclRef and the other is an integer literal; returns |c|.
func literalOffset(e *astsrc.Expr, inductionVar string) (int, bool) {
	if isIndexDeclRef(e.Lhs, inductionVar) && isIntLiteral(e.Rhs) {
		return absInt(e.Rhs.IntValue), true
	}
	if isIndexDeclRef(e.Rhs, inductionVar) && isIntLiteral(e.Lhs) {
		return absInt(e.Lhs.IntValue), true
	}
	return 0, false
}

// literalFactor matches `i OP c` or `c OP i` for multiplicative/shift
// operators; returns c (never negated, since these operators aren't
// symmetric under sign the way +/- are).
func literalFactor(e *astsrc.Expr, inductionVar string) (int, bool) {
	if isIndexDeclRef(e.Lhs, inductionVar) && isIntLiteral(e.Rhs) {
		return int(e.Rhs.IntValue), true
	}
	if isIndexDeclRef(e.Rhs, inductionVar) && isIntLiteral(e.Lhs) {
		return int(e.Lhs.IntValue), true
	}
	return 0, false
}

func isIndexDeclRef(e *astsrc.Expr, name string) bool {
	return e != nil && e.Kind == astsrc.ExprDeclRef && e.Name == name
}

func isIntLiteral(e *astsrc.Expr) bool {
	return e != nil && e.Kind == astsrc.ExprIntLiteral
}

func absInt(v int64) int {
	if v < 0 {
		return int(-v)
	}
	return int(v)
}
