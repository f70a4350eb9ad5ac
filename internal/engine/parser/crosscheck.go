package parser

import (
	"context"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"

	domainerrors "pyanalyzer/internal/core/errors"
	"pyanalyzer/internal/engine/tokenizer"
)

// CrossCheckResult is tree-sitter's opinion of a document.
type CrossCheckResult struct {
	HasError bool
	// First is the 1-based position of the first error or missing node.
	First tokenizer.Location
}

// Agrees reports whether our parser and tree-sitter both did, or both did
// not, find syntax errors. Warnings are ignored.
func (r CrossCheckResult) Agrees(errs []ErrorResult) bool {
	ours := false
	for _, e := range errs {
		if e.Severity == SeverityError {
			ours = true
			break
		}
	}
	return ours == r.HasError
}

// CrossChecker parses source with the tree-sitter Python grammar. The
// grammar only understands 3.x syntax.
type CrossChecker struct {
	pool *ParserPool
}

func NewCrossChecker() *CrossChecker {
	return &CrossChecker{pool: NewParserPool(sitter.NewLanguage(tree_sitter_python.Language()))}
}

func (c *CrossChecker) Pool() *ParserPool { return c.pool }

func (c *CrossChecker) Check(ctx context.Context, src []byte) (CrossCheckResult, error) {
	if err := ctx.Err(); err != nil {
		return CrossCheckResult{}, domainerrors.Cancelled(err)
	}
	sp := c.pool.Get()
	defer c.pool.Put(sp)

	tree := sp.Parse(src, nil)
	if tree == nil {
		return CrossCheckResult{}, domainerrors.New(domainerrors.CodeInternal, "tree-sitter parse failed")
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil || !root.HasError() {
		return CrossCheckResult{}, nil
	}
	res := CrossCheckResult{HasError: true}
	if n := firstErrorNode(root); n != nil {
		pt := n.StartPosition()
		res.First = tokenizer.Location{
			Index:  int(n.StartByte()),
			Line:   int(pt.Row) + 1,
			Column: int(pt.Column) + 1,
		}
	}
	return res, nil
}

// firstErrorNode does a preorder search, descending only into subtrees that
// contain errors.
func firstErrorNode(root *sitter.Node) *sitter.Node {
	stack := []*sitter.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.IsError() || n.IsMissing() {
			return n
		}
		if !n.HasError() {
			continue
		}
		for i := int(n.ChildCount()) - 1; i >= 0; i-- {
			if child := n.Child(uint(i)); child != nil {
				stack = append(stack, child)
			}
		}
	}
	return nil
}
