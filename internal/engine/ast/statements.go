package ast

import (
	"strings"

	"pyanalyzer/internal/engine/tokenizer"
)

// Module is the root of a parsed document.
type Module struct {
	Base
	Body         *Suite
	Version      tokenizer.LanguageVersion
	Tokenization *tokenizer.Tokenization
}

type Suite struct {
	Base
	Stmts []Stmt
}

type ExprStmt struct {
	Base
	Value Expr
}

// Assign is "a = b = value". Annotation is set for "a: T = value".
type Assign struct {
	Base
	Targets    []Expr
	Value      Expr
	Annotation Expr
}

type AugAssign struct {
	Base
	Op     tokenizer.Kind
	Target Expr
	Value  Expr
}

type IfTest struct {
	Base
	Test Expr
	Body *Suite
}

type If struct {
	Base
	Tests []*IfTest
	Else  *Suite
}

type While struct {
	Base
	Test Expr
	Body *Suite
	Else *Suite
}

type For struct {
	Base
	Target Expr
	Iter   Expr
	Body   *Suite
	Else   *Suite
	Async  bool
}

type Handler struct {
	Base
	Test   Expr
	Target Expr
	Body   *Suite
}

type Try struct {
	Base
	Body     *Suite
	Handlers []*Handler
	Else     *Suite
	Finally  *Suite
}

type WithItem struct {
	Base
	Context Expr
	Target  Expr
}

type With struct {
	Base
	Items []*WithItem
	Body  *Suite
	Async bool
}

type ParameterKind uint8

const (
	ParamNormal ParameterKind = iota
	ParamList
	ParamDict
	ParamKeywordOnly
)

type Parameter struct {
	Base
	Name       string
	Kind       ParameterKind
	Annotation Expr
	Default    Expr
}

type FunctionDef struct {
	Base
	Name       string
	NameSpan   tokenizer.Span
	Params     []*Parameter
	Returns    Expr
	Body       *Suite
	Decorators []Expr
	Async      bool
}

type ClassDef struct {
	Base
	Name       string
	NameSpan   tokenizer.Span
	Bases      []*Arg
	Body       *Suite
	Decorators []Expr
}

type Return struct {
	Base
	Value Expr
}

type Pass struct{ Base }
type Break struct{ Base }
type Continue struct{ Base }

// DottedName is a possibly relative module path such as "..pkg.mod".
type DottedName struct {
	Base
	Names       []string
	LeadingDots int
}

func (d *DottedName) String() string {
	return strings.Repeat(".", d.LeadingDots) + strings.Join(d.Names, ".")
}

type ImportName struct {
	Base
	Module *DottedName
	AsName string
}

type Import struct {
	Base
	Names []*ImportName
}

type FromName struct {
	Base
	Name   string
	AsName string
}

type FromImport struct {
	Base
	Module *DottedName
	Names  []*FromName
	Star   bool
}

type Global struct {
	Base
	Names []string
}

type Nonlocal struct {
	Base
	Names []string
}

type Del struct {
	Base
	Targets []Expr
}

type Raise struct {
	Base
	Type, Value, Traceback Expr
	Cause                  Expr
}

type Assert struct {
	Base
	Test, Message Expr
}

// Print is the 2.x print statement.
type Print struct {
	Base
	Dest          Expr
	Values        []Expr
	TrailingComma bool
}

// Exec is the 2.x exec statement.
type Exec struct {
	Base
	Code, Globals, Locals Expr
}

// ErrorStmt replaces a statement that failed to parse.
type ErrorStmt struct {
	Base
	Message string
}

func (*Suite) stmtNode()       {}
func (*ExprStmt) stmtNode()    {}
func (*Assign) stmtNode()      {}
func (*AugAssign) stmtNode()   {}
func (*If) stmtNode()          {}
func (*While) stmtNode()       {}
func (*For) stmtNode()         {}
func (*Try) stmtNode()         {}
func (*With) stmtNode()        {}
func (*FunctionDef) stmtNode() {}
func (*ClassDef) stmtNode()    {}
func (*Return) stmtNode()      {}
func (*Pass) stmtNode()        {}
func (*Break) stmtNode()       {}
func (*Continue) stmtNode()    {}
func (*Import) stmtNode()      {}
func (*FromImport) stmtNode()  {}
func (*Global) stmtNode()      {}
func (*Nonlocal) stmtNode()    {}
func (*Del) stmtNode()         {}
func (*Raise) stmtNode()       {}
func (*Assert) stmtNode()      {}
func (*Print) stmtNode()       {}
func (*Exec) stmtNode()        {}
func (*ErrorStmt) stmtNode()   {}
