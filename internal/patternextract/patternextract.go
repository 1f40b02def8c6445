// Package patternextract implements the AST pattern extractor (C2): it
// walks a typed AST (astsrc.TranslationUnit) and classifies array and struct
// accesses inside loop nests into StaticPattern/LoopInfo/StructInfo records.
//
// The traversal keeps a stack of loop contexts exactly as described in §4.2:
// entering a for-loop pushes a context (induction variable, derived stride,
// collected patterns); leaving it consolidates the loop's dominant pattern
// and pops. while/do-while constructs are detected only to set
// has_nested_loops on the enclosing for-loop; they are never opened as loop
// contexts themselves.
package patternextract

import (
	"fmt"
	"log/slog"

	"github.com/cachesight/cachesight/internal/astsrc"
	"github.com/cachesight/cachesight/internal/cacheerr"
	"github.com/cachesight/cachesight/internal/config"
	"github.com/cachesight/cachesight/internal/model"
)

// defaultElementSize is the element size (bytes) assumed when the frontend
// does not supply type information, matching C3's "element_size assumed 8".
const defaultElementSize = 8

// Result is the output of one translation unit's extraction.
type Result struct {
	Patterns    []model.StaticPattern
	Loops       []model.LoopInfo
	Structs     []model.StructInfo
	Diagnostics []string
}

// Extract walks tu and returns the patterns, loops, structs, and
// diagnostics collected from it. Parse-level failures are reported as
// ExtractorFailed and the caller should continue with other translation
// units (§7 recovery policy); Extract itself never fails on a well-formed
// TranslationUnit value, since parsing happened upstream in the (external)
// compiler frontend.
func Extract(tu *astsrc.TranslationUnit, cfg config.Config) (Result, error) {
	if tu == nil {
		return Result{}, cacheerr.New(cacheerr.InvalidInput, "nil translation unit")
	}
	w := &walker{cfg: cfg, fileName: tu.FileName}
	w.walkStmts(tu.TopLevel, nil)
	for _, rec := range tu.Records {
		if rec == nil || !rec.InMainFile {
			continue
		}
		w.structs = append(w.structs, toStructInfo(rec, &w.diagnostics))
	}
	return Result{
		Patterns:    w.patterns,
		Loops:       w.loops,
		Structs:     w.structs,
		Diagnostics: w.diagnostics,
	}, nil
}

// loopFrame tracks one open for-loop context on the traversal stack.
type loopFrame struct {
	forLoop        *astsrc.ForLoop
	depth          int
	strideKnown    bool
	stride         int
	patterns       []model.StaticPattern
	hasNestedLoops bool
}

type walker struct {
	cfg         config.Config
	fileName    string
	patterns    []model.StaticPattern
	loops       []model.LoopInfo
	structs     []model.StructInfo
	diagnostics []string
}

func (w *walker) diag(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	w.diagnostics = append(w.diagnostics, msg)
	slog.Debug("patternextract diagnostic", slog.String("message", msg))
}

// walkStmts processes a statement list under the given (possibly empty)
// stack of open loop frames, innermost last.
func (w *walker) walkStmts(stmts []astsrc.Stmt, stack []*loopFrame) {
	for _, stmt := range stmts {
		switch {
		case stmt.ForLoop != nil:
			w.walkForLoop(stmt.ForLoop, stack)
		case stmt.WhileLoop != nil, stmt.DoWhileLoop != nil:
			if len(stack) > 0 {
				stack[len(stack)-1].hasNestedLoops = true
			}
		case stmt.ArrayAccess != nil:
			w.handleArrayAccess(stmt.ArrayAccess, stack)
		case stmt.MemberAccess != nil:
			w.handleMemberAccess(stmt.MemberAccess, stack)
		}
	}
}

func (w *walker) walkForLoop(loop *astsrc.ForLoop, stack []*loopFrame) {
	if len(stack) > 0 {
		stack[len(stack)-1].hasNestedLoops = true
	}
	stride, known := deriveStride(loop)
	if !known {
		w.diag("unknown stride in increment clause %q at %s", loop.IncrementText, loop.Location)
	}
	frame := &loopFrame{
		forLoop:     loop,
		depth:       len(stack) + 1,
		strideKnown: known,
		stride:      stride,
	}
	childStack := append(append([]*loopFrame{}, stack...), frame)
	w.walkStmts(loop.Body, childStack)

	// consolidate (§4.2 "Per-loop consolidation")
	consolidated := consolidate(frame.patterns)
	allPatterns := append(append([]model.StaticPattern{}, frame.patterns...), consolidated)

	var tripCount *int64
	if loop.EstimatedTripCount != nil {
		tc := *loop.EstimatedTripCount
		tripCount = &tc
	}
	w.loops = append(w.loops, model.LoopInfo{
		Location:           loop.Location,
		LoopVar:            loop.InitVarName,
		ConditionText:      loop.ConditionText,
		IncrementText:      loop.IncrementText,
		NestLevel:          frame.depth,
		EstimatedTripCount: tripCount,
		HasNestedLoops:     frame.hasNestedLoops,
		HasFunctionCalls:   loop.HasFunctionCalls,
		Patterns:           allPatterns,
	})
}

// deriveStride implements §4.2 "Induction variable & stride".
func deriveStride(loop *astsrc.ForLoop) (stride int, known bool) {
	switch loop.IncrementOp {
	case "++":
		return 1, true
	case "--":
		return -1, true
	case "+=":
		if loop.IncrementKnown {
			return int(loop.IncrementLiteral), true
		}
		return 0, false
	default:
		// `i *= k`, non-integer, or unknown increment form.
		return 0, false
	}
}

func (w *walker) tripCountOf(stack []*loopFrame) (int64, bool) {
	if len(stack) == 0 {
		return 0, false
	}
	if c := stack[len(stack)-1].forLoop.EstimatedTripCount; c != nil {
		return *c, true
	}
	return 0, false
}

func (w *walker) footprintFor(stack []*loopFrame) int64 {
	trip, ok := w.tripCountOf(stack)
	if !ok {
		trip = int64(w.cfg.OuterRowSizeHeuristic)
	}
	return int64(defaultElementSize) * trip
}

func (w *walker) handleArrayAccess(access *astsrc.ArrayAccess, stack []*loopFrame) {
	if access == nil {
		return
	}
	var innerVar string
	var loopStride int
	var loopStrideKnown bool
	depth := len(stack)
	if depth > 0 {
		top := stack[depth-1]
		innerVar = top.forLoop.InitVarName
		loopStride = top.stride
		loopStrideKnown = top.strideKnown
	}

	kind, stride, isIndirect, randName := classifyIndexExpr(access.Index, innerVar, loopStride, loopStrideKnown)

	baseName := resolveBaseName(access)
	indexVarName := indexVariableName(access.Index, randName)

	outerStride := 0
	if access.Base != nil && depth >= 2 {
		if isNestedLoopAccess(access, stack) {
			kind = model.NestedLoop
			outerStride = w.cfg.OuterRowSizeHeuristic
		}
	}

	pattern := model.StaticPattern{
		Location:                access.Location,
		ArrayOrStructName:       baseName,
		IndexVariableName:       indexVarName,
		Depth:                   depth,
		Kind:                    kind,
		Stride:                  stride,
		OuterStride:             outerStride,
		IsPointerAccess:         access.IsPointerAccess,
		IsStructAccess:          false,
		IsIndirectIndex:         isIndirect,
		HasDependencies:         kind == model.LoopCarriedDep,
		EstimatedFootprintBytes: w.footprintFor(stack),
	}
	w.patterns = append(w.patterns, pattern)
	if depth > 0 {
		top := stack[depth-1]
		top.patterns = append(top.patterns, pattern)
	}
}

func (w *walker) handleMemberAccess(access *astsrc.MemberAccess, stack []*loopFrame) {
	if access == nil {
		return
	}
	depth := len(stack)
	pattern := model.StaticPattern{
		Location:                access.Location,
		ArrayOrStructName:       access.StructName,
		IndexVariableName:       access.FieldName,
		Depth:                   depth,
		Kind:                    model.GatherScatter, // §4.2 "Default kind is GatherScatter"
		Stride:                  0,
		IsStructAccess:          true,
		EstimatedFootprintBytes: w.footprintFor(stack),
	}
	w.patterns = append(w.patterns, pattern)
	if depth > 0 {
		top := stack[depth-1]
		top.patterns = append(top.patterns, pattern)
	}
}

// resolveBaseName walks down a chain of nested ArrayAccess.Base pointers to
// the root array/pointer name, per §4.2.
func resolveBaseName(a *astsrc.ArrayAccess) string {
	for a.Base != nil {
		a = a.Base
	}
	return a.BaseName
}

// indexVariableName extracts a human-readable name for the index
// expression, preferring a resolved DeclRef name, falling back to the
// special "rand()" marker (§4.2 rule 9) when supplied.
func indexVariableName(e *astsrc.Expr, randName string) string {
	if randName != "" {
		return randName
	}
	if e == nil {
		return ""
	}
	switch e.Kind {
	case astsrc.ExprDeclRef:
		return e.Name
	case astsrc.ExprCall:
		return e.Name
	default:
		return ""
	}
}

// isNestedLoopAccess implements §4.2's multi-dimensional NestedLoop rule:
// for `M[i][j]` the outer subscript (Base.Index, here `i`) must use the
// innermost induction variable and the inner subscript (the top-level
// Index, here `j`) must use an induction variable from an enclosing (outer)
// loop level.
func isNestedLoopAccess(access *astsrc.ArrayAccess, stack []*loopFrame) bool {
	if access.Base == nil || access.Base.Index == nil || access.Index == nil {
		return false
	}
	innermost := stack[len(stack)-1].forLoop.InitVarName
	if access.Base.Index.Kind != astsrc.ExprDeclRef || access.Base.Index.Name != innermost {
		return false
	}
	if access.Index.Kind != astsrc.ExprDeclRef {
		return false
	}
	for i := 0; i < len(stack)-1; i++ {
		if stack[i].forLoop.InitVarName == access.Index.Name {
			return true
		}
	}
	return false
}

// consolidate implements §4.2 "Per-loop consolidation": if any contained
// access is Strided with stride > 8, the loop's dominant pattern becomes
// Strided with the max stride; else if any is Sequential, Sequential; else
// the kind of the first pattern.
func consolidate(patterns []model.StaticPattern) model.StaticPattern {
	if len(patterns) == 0 {
		return model.StaticPattern{Kind: model.Sequential, Stride: 0}
	}
	maxStride := 0
	anyHighStride := false
	anySequential := false
	for _, p := range patterns {
		if p.Kind == model.Strided && p.Stride > 8 {
			anyHighStride = true
			if p.Stride > maxStride {
				maxStride = p.Stride
			}
		}
		if p.Kind == model.Sequential {
			anySequential = true
		}
	}
	if anyHighStride {
		return model.StaticPattern{
			Location: patterns[0].Location,
			Kind:     model.Strided,
			Stride:   maxStride,
		}
	}
	if anySequential {
		return model.StaticPattern{Location: patterns[0].Location, Kind: model.Sequential, Stride: 1}
	}
	return model.StaticPattern{Location: patterns[0].Location, Kind: patterns[0].Kind, Stride: patterns[0].Stride}
}

func toStructInfo(rec *astsrc.RecordDecl, diagnostics *[]string) model.StructInfo {
	fields := rec.Fields
	truncated := false
	if len(fields) > model.MaxStructFields {
		truncated = true
		fields = fields[:model.MaxStructFields]
	}
	out := model.StructInfo{
		Name:             rec.Name,
		Location:         rec.Location,
		TotalSizeBytes:   rec.TotalSizeBytes,
		HasPointerFields: rec.HasPointerFields,
		IsPacked:         rec.IsPacked,
	}
	for _, f := range fields {
		out.Fields = append(out.Fields, model.StructField{
			Name:        f.Name,
			OffsetBytes: f.OffsetBytes,
			SizeBytes:   f.SizeBytes,
		})
	}
	if truncated {
		msg := fmt.Sprintf("struct %q has more than %d fields; truncated", rec.Name, model.MaxStructFields)
		*diagnostics = append(*diagnostics, msg)
		slog.Debug("patternextract diagnostic", slog.String("message", msg))
	}
	return out
}
