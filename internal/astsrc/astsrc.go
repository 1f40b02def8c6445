// Package astsrc defines the typed-AST surface the pattern extractor (C2)
// consumes (spec §6, Input A). The real compiler frontend (a libclang
// equivalent) is an external collaborator out of scope for this module; this
// package only fixes the contract a frontend adapter must satisfy: source
// locations, for-loop structure, array subscript and member-access
// expressions, and record declarations with a computed field layout.
package astsrc

import "github.com/cachesight/cachesight/internal/model"

// ExprKind enumerates the shapes of index/increment expressions the
// extractor's classification rules (§4.2) pattern-match against.
type ExprKind int

const (
	ExprDeclRef     ExprKind = iota // bare variable reference, e.g. `i`
	ExprIntLiteral                  // integer literal, e.g. `4`
	ExprBinaryOp                    // i+c, i-c, i*c, i/c, i%c, i<<s, i>>s
	ExprUnaryOp                     // -i
	ExprDeref                       // *p
	ExprSubscript                   // B[g] used as an index expression (nested subscript)
	ExprCall                        // call(...)
)

// Expr is an index or increment-clause expression node.
type Expr struct {
	Kind     ExprKind
	Name     string // DeclRef: variable name; Call: callee name
	IntValue int64  // IntLiteral
	Op       string // BinaryOp/UnaryOp operator: "+","-","*","/","%","<<",">>"
	Lhs      *Expr  // BinaryOp left operand
	Rhs      *Expr  // BinaryOp right operand
	Operand  *Expr  // UnaryOp/Deref/Subscript operand
}

// ArrayAccess is a single subscript operation `Base[Index]`. For
// multi-dimensional accesses `M[i][j]`, the outermost node (this one) holds
// the LAST-applied subscript (`j`) and Base points at the nested access for
// the array expression it was applied to (`M[i]`, itself holding `i` and a
// nil Base). BaseName is always the fully-resolved root array/pointer name,
// walked down to the base DeclRef per §4.2 "Multi-dimensional arrays".
type ArrayAccess struct {
	Location        model.SourceLocation
	BaseName        string // resolved root array/pointer name
	Index           *Expr  // the index expression applied at this subscript level
	Base            *ArrayAccess
	IsPointerAccess bool
	InMainFile      bool
}

// MemberAccess is a `s.field` or `p->field` expression.
type MemberAccess struct {
	Location   model.SourceLocation
	StructName string
	FieldName  string
	InMainFile bool
}

// ForLoop is a C-style `for (init; cond; inc) body` construct.
type ForLoop struct {
	Location         model.SourceLocation
	InitVarName      string // the single variable declared in the init clause
	ConditionText    string
	IncrementText    string
	IncrementOp      string // "++", "--", "+=", "-=", "*=", "" (unknown)
	IncrementLiteral int64  // k for `i += k` / `i = i + k`; meaningful only when IncrementKnown
	IncrementKnown   bool
	HasFunctionCalls bool
	// EstimatedTripCount is filled in by the frontend when a constant bound
	// can be folded from the condition clause; nil when unknown.
	EstimatedTripCount *int64
	InMainFile         bool
	Body               []Stmt
}

// WhileLoop and DoWhileLoop are detected for has_nested_loops purposes but,
// per §4.2, are never opened as loop contexts themselves.
type WhileLoop struct{ Location model.SourceLocation }
type DoWhileLoop struct{ Location model.SourceLocation }

// Stmt is a sum type over the statement shapes the extractor cares about.
// Exactly one field is non-nil.
type Stmt struct {
	ForLoop      *ForLoop
	WhileLoop    *WhileLoop
	DoWhileLoop  *DoWhileLoop
	ArrayAccess  *ArrayAccess
	MemberAccess *MemberAccess
}

// Field is one member of a record's computed layout.
type Field struct {
	Name        string
	OffsetBytes int64
	SizeBytes   int64
}

// RecordDecl is a struct/class declaration with a computed field layout.
type RecordDecl struct {
	Name             string
	Location         model.SourceLocation
	Fields           []Field
	TotalSizeBytes   int64
	HasPointerFields bool
	IsPacked bool
	InMainFile       bool
}

// TranslationUnit is the root of one compilation unit's AST, scoped to the
// top-level statements and record declarations the extractor must visit.
// Only constructs inside the primary translation unit are ever passed here;
// system headers are filtered out by the frontend before the extractor runs,
// per §4.2 ("Only constructs located in the main source file are recorded").
type TranslationUnit struct {
	FileName string
	TopLevel []Stmt
	Records  []*RecordDecl
}
