package ast

// Visitor is called for every node in depth-first order. Visit returning
// false skips the node's children; PostVisit runs after the children (or
// immediately, when they were skipped).
type Visitor interface {
	Visit(n Node) bool
	PostVisit(n Node)
}

// Walk traverses n with v.
func Walk(v Visitor, n Node) {
	if n == nil {
		return
	}
	if v.Visit(n) {
		walkChildren(v, n)
	}
	v.PostVisit(n)
}

type inspector func(Node) bool

func (f inspector) Visit(n Node) bool { return f(n) }
func (inspector) PostVisit(Node)      {}

// Inspect calls f for each node; returning false prunes the subtree.
func Inspect(n Node, f func(Node) bool) {
	Walk(inspector(f), n)
}

func walkExprs(v Visitor, list []Expr) {
	for _, e := range list {
		if e != nil {
			Walk(v, e)
		}
	}
}

func walkExpr(v Visitor, e Expr) {
	if e != nil {
		Walk(v, e)
	}
}

func walkSuite(v Visitor, s *Suite) {
	if s != nil {
		Walk(v, s)
	}
}

func walkParams(v Visitor, params []*Parameter) {
	for _, p := range params {
		Walk(v, p)
	}
}

func walkChildren(v Visitor, n Node) {
	switch n := n.(type) {
	case *Module:
		walkSuite(v, n.Body)
	case *Suite:
		for _, s := range n.Stmts {
			Walk(v, s)
		}

	case *ExprStmt:
		walkExpr(v, n.Value)
	case *Assign:
		walkExprs(v, n.Targets)
		walkExpr(v, n.Annotation)
		walkExpr(v, n.Value)
	case *AugAssign:
		walkExpr(v, n.Target)
		walkExpr(v, n.Value)
	case *If:
		for _, t := range n.Tests {
			Walk(v, t)
		}
		walkSuite(v, n.Else)
	case *IfTest:
		walkExpr(v, n.Test)
		walkSuite(v, n.Body)
	case *While:
		walkExpr(v, n.Test)
		walkSuite(v, n.Body)
		walkSuite(v, n.Else)
	case *For:
		walkExpr(v, n.Target)
		walkExpr(v, n.Iter)
		walkSuite(v, n.Body)
		walkSuite(v, n.Else)
	case *Try:
		walkSuite(v, n.Body)
		for _, h := range n.Handlers {
			Walk(v, h)
		}
		walkSuite(v, n.Else)
		walkSuite(v, n.Finally)
	case *Handler:
		walkExpr(v, n.Test)
		walkExpr(v, n.Target)
		walkSuite(v, n.Body)
	case *With:
		for _, item := range n.Items {
			Walk(v, item)
		}
		walkSuite(v, n.Body)
	case *WithItem:
		walkExpr(v, n.Context)
		walkExpr(v, n.Target)
	case *FunctionDef:
		walkExprs(v, n.Decorators)
		walkParams(v, n.Params)
		walkExpr(v, n.Returns)
		walkSuite(v, n.Body)
	case *Parameter:
		walkExpr(v, n.Annotation)
		walkExpr(v, n.Default)
	case *ClassDef:
		walkExprs(v, n.Decorators)
		for _, b := range n.Bases {
			Walk(v, b)
		}
		walkSuite(v, n.Body)
	case *Return:
		walkExpr(v, n.Value)
	case *Import:
		for _, name := range n.Names {
			Walk(v, name)
		}
	case *ImportName:
		if n.Module != nil {
			Walk(v, n.Module)
		}
	case *FromImport:
		if n.Module != nil {
			Walk(v, n.Module)
		}
		for _, name := range n.Names {
			Walk(v, name)
		}
	case *Del:
		walkExprs(v, n.Targets)
	case *Raise:
		walkExpr(v, n.Type)
		walkExpr(v, n.Value)
		walkExpr(v, n.Traceback)
		walkExpr(v, n.Cause)
	case *Assert:
		walkExpr(v, n.Test)
		walkExpr(v, n.Message)
	case *Print:
		walkExpr(v, n.Dest)
		walkExprs(v, n.Values)
	case *Exec:
		walkExpr(v, n.Code)
		walkExpr(v, n.Globals)
		walkExpr(v, n.Locals)

	case *Member:
		walkExpr(v, n.Target)
	case *Index:
		walkExpr(v, n.Target)
		walkExpr(v, n.Index)
	case *Slice:
		walkExpr(v, n.Lower)
		walkExpr(v, n.Upper)
		walkExpr(v, n.Step)
	case *Call:
		walkExpr(v, n.Target)
		for _, a := range n.Args {
			Walk(v, a)
		}
	case *Arg:
		walkExpr(v, n.Value)
	case *Binary:
		walkExpr(v, n.Left)
		walkExpr(v, n.Right)
	case *BoolOp:
		walkExpr(v, n.Left)
		walkExpr(v, n.Right)
	case *Compare:
		walkExpr(v, n.Left)
		walkExpr(v, n.Right)
	case *Unary:
		walkExpr(v, n.Operand)
	case *Conditional:
		walkExpr(v, n.Test)
		walkExpr(v, n.Then)
		walkExpr(v, n.Else)
	case *Lambda:
		walkParams(v, n.Params)
		walkExpr(v, n.Body)
	case *Tuple:
		walkExprs(v, n.Items)
	case *List:
		walkExprs(v, n.Items)
	case *Set:
		walkExprs(v, n.Items)
	case *Dict:
		for _, item := range n.Items {
			Walk(v, item)
		}
	case *DictItem:
		walkExpr(v, n.Key)
		walkExpr(v, n.Value)
	case *Paren:
		walkExpr(v, n.Inner)
	case *Starred:
		walkExpr(v, n.Value)
	case *Yield:
		walkExpr(v, n.Value)
	case *Await:
		walkExpr(v, n.Value)
	case *Comprehension:
		walkExpr(v, n.Elt)
		for _, f := range n.Fors {
			Walk(v, f)
		}
	case *CompFor:
		walkExpr(v, n.Target)
		walkExpr(v, n.Iter)
		walkExprs(v, n.Ifs)
	}
}
