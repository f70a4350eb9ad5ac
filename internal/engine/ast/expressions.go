// Package ast defines the immutable syntax tree produced by the parser.
package ast

import (
	"strings"

	"pyanalyzer/internal/engine/tokenizer"
)

// Node is any syntax tree element.
type Node interface {
	Span() tokenizer.Span
}

// Expr is an expression node.
type Expr interface {
	Node
	exprNode()
}

// Stmt is a statement node.
type Stmt interface {
	Node
	stmtNode()
}

// Base carries the source span shared by every node.
type Base struct {
	Loc tokenizer.Span
}

func (b *Base) Span() tokenizer.Span { return b.Loc }

type Name struct {
	Base
	Id string
}

// ConstantKind distinguishes literal constants.
type ConstantKind uint8

const (
	ConstNone ConstantKind = iota
	ConstTrue
	ConstFalse
	ConstEllipsis
	ConstInt
	ConstLong
	ConstFloat
	ConstImaginary
)

// Constant is a non-string literal. Text holds numeric source text.
type Constant struct {
	Base
	Kind ConstantKind
	Text string
	// Radix is 2, 8, 10 or 16 for integers.
	Radix int
}

// StrPart is one literal of an implicitly concatenated string.
type StrPart struct {
	Prefix string
	Text   string
}

type Str struct {
	Base
	Parts []StrPart
}

// IsBytes reports whether the literal carries a b prefix.
func (s *Str) IsBytes() bool {
	for _, p := range s.Parts {
		if strings.ContainsAny(p.Prefix, "bB") {
			return true
		}
	}
	return false
}

func (s *Str) IsUnicode() bool {
	for _, p := range s.Parts {
		if strings.ContainsAny(p.Prefix, "uU") {
			return true
		}
	}
	return false
}

// Value concatenates the raw text of every part.
func (s *Str) Value() string {
	var sb strings.Builder
	for _, p := range s.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

type Member struct {
	Base
	Target Expr
	Name   string
}

type Index struct {
	Base
	Target Expr
	Index  Expr
}

type Slice struct {
	Base
	Lower, Upper, Step Expr
}

type ArgKind uint8

const (
	ArgPositional ArgKind = iota
	ArgKeyword
	ArgStar
	ArgDoubleStar
)

type Arg struct {
	Base
	Kind  ArgKind
	Name  string
	Value Expr
}

type Call struct {
	Base
	Target Expr
	Args   []*Arg
}

// Binary is an arithmetic or bitwise operation.
type Binary struct {
	Base
	Op          tokenizer.Kind
	Left, Right Expr
}

// BoolOp is "and" or "or".
type BoolOp struct {
	Base
	Op          tokenizer.Kind
	Left, Right Expr
}

// Compare is a single comparison. Chains nest to the left.
type Compare struct {
	Base
	Op          string
	Left, Right Expr
}

// Unary covers -, +, ~ and "not".
type Unary struct {
	Base
	Op      tokenizer.Kind
	Operand Expr
}

type Conditional struct {
	Base
	Test, Then, Else Expr
}

type Lambda struct {
	Base
	Params []*Parameter
	Body   Expr
}

type Tuple struct {
	Base
	Items []Expr
}

type List struct {
	Base
	Items []Expr
}

type Set struct {
	Base
	Items []Expr
}

type DictItem struct {
	Base
	// Key is nil for "**mapping" entries.
	Key, Value Expr
}

type Dict struct {
	Base
	Items []*DictItem
}

type Paren struct {
	Base
	Inner Expr
}

type Starred struct {
	Base
	Value      Expr
	DoubleStar bool
}

type Yield struct {
	Base
	Value Expr
	From  bool
}

type Await struct {
	Base
	Value Expr
}

type ComprehensionKind uint8

const (
	GeneratorComp ComprehensionKind = iota
	ListComp
	SetComp
	DictComp
)

type CompFor struct {
	Base
	Target Expr
	Iter   Expr
	Ifs    []Expr
	Async  bool
}

type Comprehension struct {
	Base
	Kind ComprehensionKind
	// Elt is a *DictItem for dictionary comprehensions.
	Elt  Expr
	Fors []*CompFor
}

// ErrorExpr stands in for an expression that failed to parse.
type ErrorExpr struct {
	Base
	Message string
}

func (*Name) exprNode()          {}
func (*Constant) exprNode()      {}
func (*Str) exprNode()           {}
func (*Member) exprNode()        {}
func (*Index) exprNode()         {}
func (*Slice) exprNode()         {}
func (*Call) exprNode()          {}
func (*Binary) exprNode()        {}
func (*BoolOp) exprNode()        {}
func (*Compare) exprNode()       {}
func (*Unary) exprNode()         {}
func (*Conditional) exprNode()   {}
func (*Lambda) exprNode()        {}
func (*Tuple) exprNode()         {}
func (*List) exprNode()          {}
func (*Set) exprNode()           {}
func (*DictItem) exprNode()      {}
func (*Dict) exprNode()          {}
func (*Paren) exprNode()         {}
func (*Starred) exprNode()       {}
func (*Yield) exprNode()         {}
func (*Await) exprNode()         {}
func (*Comprehension) exprNode() {}
func (*ErrorExpr) exprNode()     {}
