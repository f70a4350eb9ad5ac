package parser

import (
	"strings"

	"pyanalyzer/internal/engine/ast"
	"pyanalyzer/internal/engine/tokenizer"
)

// parseTestListStar parses "a, *b, c" forms, producing a Tuple when a comma
// is present.
func (p *Parser) parseTestListStar() ast.Expr {
	if p.is(tokenizer.KeywordYield) {
		return p.parseYield()
	}
	return p.parseSequence(p.parseTestOrStar, isSequenceEnd)
}

func (p *Parser) parseTestList() ast.Expr {
	return p.parseSequence(p.parseTest, isSequenceEnd)
}

// parseExprList parses assignment-style targets. It stops below the
// comparison level so that "for x in y" leaves "in" unread.
func (p *Parser) parseExprList() ast.Expr {
	return p.parseSequence(p.parseExprOrStar, func(k tokenizer.Kind) bool {
		return k == tokenizer.KeywordIn || isSequenceEnd(k)
	})
}

func (p *Parser) parseExprListItems() []ast.Expr {
	e := p.parseExprList()
	if t, ok := e.(*ast.Tuple); ok {
		return t.Items
	}
	return []ast.Expr{e}
}

func isSequenceEnd(k tokenizer.Kind) bool {
	switch k {
	case tokenizer.NewLine, tokenizer.SemiColon, tokenizer.EndOfFile, tokenizer.Assign, tokenizer.Colon,
		tokenizer.RightParenthesis, tokenizer.RightBracket, tokenizer.RightBrace:
		return true
	}
	return k.IsAugmentedAssign()
}

func (p *Parser) parseSequence(item func() ast.Expr, end func(tokenizer.Kind) bool) ast.Expr {
	start := p.peek().Span.Start
	first := item()
	if !p.is(tokenizer.Comma) {
		return first
	}
	t := &ast.Tuple{Items: []ast.Expr{first}}
	for p.tryRead(tokenizer.Comma) {
		if end(p.peek().Kind) {
			break
		}
		t.Items = append(t.Items, item())
	}
	t.Loc = p.spanFrom(start)
	return t
}

func (p *Parser) parseTestOrStar() ast.Expr {
	if p.is(tokenizer.Multiply) {
		return p.parseStarred(p.parseExpr)
	}
	return p.parseTest()
}

func (p *Parser) parseExprOrStar() ast.Expr {
	if p.is(tokenizer.Multiply) {
		return p.parseStarred(p.parseExpr)
	}
	return p.parseExpr()
}

func (p *Parser) parseStarred(value func() ast.Expr) ast.Expr {
	start := p.next().Span.Start
	s := &ast.Starred{Value: value()}
	s.Loc = p.spanFrom(start)
	return s
}

func (p *Parser) parseTest() ast.Expr {
	if p.is(tokenizer.KeywordLambda) {
		return p.parseLambda()
	}
	start := p.peek().Span.Start
	e := p.parseOrTest()
	if !p.tryRead(tokenizer.KeywordIf) {
		return e
	}
	c := &ast.Conditional{Then: e, Test: p.parseOrTest()}
	p.expect(tokenizer.KeywordElse)
	c.Else = p.parseTest()
	c.Loc = p.spanFrom(start)
	return c
}

func (p *Parser) parseTestNoCond() ast.Expr {
	if p.is(tokenizer.KeywordLambda) {
		return p.parseLambda()
	}
	return p.parseOrTest()
}

func (p *Parser) parseLambda() ast.Expr {
	start := p.next().Span.Start
	l := &ast.Lambda{Params: p.parseParameterList(true)}
	p.expect(tokenizer.Colon)
	l.Body = p.parseTest()
	l.Loc = p.spanFrom(start)
	return l
}

func (p *Parser) parseOrTest() ast.Expr {
	return p.parseBoolOp(tokenizer.KeywordOr, p.parseAndTest)
}

func (p *Parser) parseAndTest() ast.Expr {
	return p.parseBoolOp(tokenizer.KeywordAnd, p.parseNotTest)
}

func (p *Parser) parseBoolOp(op tokenizer.Kind, operand func() ast.Expr) ast.Expr {
	start := p.peek().Span.Start
	left := operand()
	for p.tryRead(op) {
		b := &ast.BoolOp{Op: op, Left: left, Right: operand()}
		b.Loc = p.spanFrom(start)
		left = b
	}
	return left
}

func (p *Parser) parseNotTest() ast.Expr {
	if !p.is(tokenizer.KeywordNot) {
		return p.parseComparison()
	}
	start := p.next().Span.Start
	u := &ast.Unary{Op: tokenizer.KeywordNot, Operand: p.parseNotTest()}
	u.Loc = p.spanFrom(start)
	return u
}

// comparisonOp reads a comparison operator, returning "" when none follows.
func (p *Parser) comparisonOp() string {
	switch k := p.peek().Kind; k {
	case tokenizer.LessThan, tokenizer.GreaterThan, tokenizer.Equals, tokenizer.GreaterThanOrEqual,
		tokenizer.LessThanOrEqual, tokenizer.NotEquals, tokenizer.KeywordIn:
		p.next()
		return k.String()
	case tokenizer.LessThanGreaterThan:
		if p.version.Is3x() {
			p.fail("'<>' is not supported; use '!='")
		}
		p.next()
		return k.String()
	case tokenizer.KeywordNot:
		if p.peekAt(2).Kind == tokenizer.KeywordIn {
			p.next()
			p.next()
			return "not in"
		}
	case tokenizer.KeywordIs:
		p.next()
		if p.tryRead(tokenizer.KeywordNot) {
			return "is not"
		}
		return "is"
	}
	return ""
}

func (p *Parser) parseComparison() ast.Expr {
	start := p.peek().Span.Start
	left := p.parseExpr()
	for {
		op := p.comparisonOp()
		if op == "" {
			return left
		}
		c := &ast.Compare{Op: op, Left: left, Right: p.parseExpr()}
		c.Loc = p.spanFrom(start)
		left = c
	}
}

func (p *Parser) parseBinary(next func() ast.Expr, ops ...tokenizer.Kind) ast.Expr {
	start := p.peek().Span.Start
	left := next()
	for {
		k := p.peek().Kind
		matched := false
		for _, op := range ops {
			if k == op {
				matched = true
				break
			}
		}
		if !matched {
			return left
		}
		p.next()
		b := &ast.Binary{Op: k, Left: left, Right: next()}
		b.Loc = p.spanFrom(start)
		left = b
	}
}

// parseExpr parses a bitwise-or expression, the operand level of
// comparisons.
func (p *Parser) parseExpr() ast.Expr {
	return p.parseBinary(p.parseXor, tokenizer.BitwiseOr)
}

func (p *Parser) parseXor() ast.Expr {
	return p.parseBinary(p.parseBitAnd, tokenizer.ExclusiveOr)
}

func (p *Parser) parseBitAnd() ast.Expr {
	return p.parseBinary(p.parseShift, tokenizer.BitwiseAnd)
}

func (p *Parser) parseShift() ast.Expr {
	return p.parseBinary(p.parseArith, tokenizer.LeftShift, tokenizer.RightShift)
}

func (p *Parser) parseArith() ast.Expr {
	return p.parseBinary(p.parseTerm, tokenizer.Add, tokenizer.Subtract)
}

func (p *Parser) parseTerm() ast.Expr {
	return p.parseBinary(p.parseFactor, tokenizer.Multiply, tokenizer.MatMultiply, tokenizer.Divide,
		tokenizer.FloorDivide, tokenizer.Mod)
}

func (p *Parser) parseFactor() ast.Expr {
	switch k := p.peek().Kind; k {
	case tokenizer.Add, tokenizer.Subtract, tokenizer.Twiddle:
		start := p.next().Span.Start
		u := &ast.Unary{Op: k, Operand: p.parseFactor()}
		u.Loc = p.spanFrom(start)
		return u
	}
	return p.parsePower()
}

func (p *Parser) parsePower() ast.Expr {
	start := p.peek().Span.Start
	var e ast.Expr
	if p.version.Is3x() && p.tryRead(tokenizer.KeywordAwait) {
		a := &ast.Await{Value: p.parseTrailers(start, p.parseAtom())}
		a.Loc = p.spanFrom(start)
		e = a
	} else {
		e = p.parseTrailers(start, p.parseAtom())
	}
	if p.tryRead(tokenizer.Power) {
		b := &ast.Binary{Op: tokenizer.Power, Left: e, Right: p.parseFactor()}
		b.Loc = p.spanFrom(start)
		e = b
	}
	return e
}

func (p *Parser) parseTrailers(start tokenizer.Location, e ast.Expr) ast.Expr {
	for {
		switch p.peek().Kind {
		case tokenizer.LeftParenthesis:
			p.next()
			c := &ast.Call{Target: e}
			if !p.is(tokenizer.RightParenthesis) {
				c.Args = p.parseArgList()
			}
			p.expect(tokenizer.RightParenthesis)
			c.Loc = p.spanFrom(start)
			e = c
		case tokenizer.LeftBracket:
			p.next()
			ix := &ast.Index{Target: e, Index: p.parseSubscriptList()}
			p.expect(tokenizer.RightBracket)
			ix.Loc = p.spanFrom(start)
			e = ix
		case tokenizer.Dot:
			p.next()
			m := &ast.Member{Target: e, Name: p.parseName()}
			m.Loc = p.spanFrom(start)
			e = m
		default:
			return e
		}
	}
}

// parseArgList parses call arguments or class bases up to, not including,
// the closing parenthesis.
func (p *Parser) parseArgList() []*ast.Arg {
	var args []*ast.Arg
	for !p.is(tokenizer.RightParenthesis) {
		start := p.peek().Span.Start
		a := &ast.Arg{Kind: ast.ArgPositional}
		switch {
		case p.tryRead(tokenizer.Multiply):
			a.Kind = ast.ArgStar
			a.Value = p.parseTest()
		case p.tryRead(tokenizer.Power):
			a.Kind = ast.ArgDoubleStar
			a.Value = p.parseTest()
		case p.is(tokenizer.Name) && p.peekAt(2).Kind == tokenizer.Assign:
			a.Kind = ast.ArgKeyword
			a.Name = p.text(p.next())
			p.next()
			a.Value = p.parseTest()
		default:
			a.Value = p.parseTest()
			if p.isCompFor() {
				g := &ast.Comprehension{Kind: ast.GeneratorComp, Elt: a.Value, Fors: p.parseCompFors()}
				g.Loc = p.spanFrom(start)
				a.Value = g
			}
		}
		a.Loc = p.spanFrom(start)
		args = append(args, a)
		if !p.tryRead(tokenizer.Comma) {
			break
		}
	}
	return args
}

func (p *Parser) parseSubscriptList() ast.Expr {
	return p.parseSequence(p.parseSubscript, func(k tokenizer.Kind) bool {
		return k == tokenizer.RightBracket
	})
}

func (p *Parser) parseSubscript() ast.Expr {
	start := p.peek().Span.Start
	var lower ast.Expr
	if !p.is(tokenizer.Colon) {
		lower = p.parseTestOrStar()
		if !p.is(tokenizer.Colon) {
			return lower
		}
	}
	p.next()
	sl := &ast.Slice{Lower: lower}
	sliceEnd := func() bool {
		k := p.peek().Kind
		return k == tokenizer.Colon || k == tokenizer.Comma || k == tokenizer.RightBracket
	}
	if !sliceEnd() {
		sl.Upper = p.parseTest()
	}
	if p.tryRead(tokenizer.Colon) && !sliceEnd() {
		sl.Step = p.parseTest()
	}
	sl.Loc = p.spanFrom(start)
	return sl
}

func (p *Parser) isCompFor() bool {
	return p.is(tokenizer.KeywordFor) || (p.is(tokenizer.KeywordAsync) && p.peekAt(2).Kind == tokenizer.KeywordFor)
}

func (p *Parser) parseCompFors() []*ast.CompFor {
	var fors []*ast.CompFor
	for p.isCompFor() {
		start := p.peek().Span.Start
		cf := &ast.CompFor{Async: p.tryRead(tokenizer.KeywordAsync)}
		p.expect(tokenizer.KeywordFor)
		cf.Target = p.parseExprList()
		p.expect(tokenizer.KeywordIn)
		cf.Iter = p.parseOrTest()
		for p.tryRead(tokenizer.KeywordIf) {
			cf.Ifs = append(cf.Ifs, p.parseTestNoCond())
		}
		cf.Loc = p.spanFrom(start)
		fors = append(fors, cf)
	}
	return fors
}

func (p *Parser) parseYield() ast.Expr {
	start := p.next().Span.Start
	y := &ast.Yield{}
	switch {
	case p.version.Is3x() && p.tryRead(tokenizer.KeywordFrom):
		y.From = true
		y.Value = p.parseTest()
	case !isSequenceEnd(p.peek().Kind):
		y.Value = p.parseTestListStar()
	}
	y.Loc = p.spanFrom(start)
	return y
}

func (p *Parser) parseAtom() ast.Expr {
	t := p.peek()
	switch t.Kind {
	case tokenizer.Name:
		p.next()
		n := &ast.Name{Id: p.text(t)}
		n.Loc = t.Span
		return n
	case tokenizer.KeywordNone, tokenizer.KeywordTrue, tokenizer.KeywordFalse, tokenizer.Ellipsis:
		p.next()
		c := &ast.Constant{Kind: keywordConstants[t.Kind], Text: p.text(t)}
		c.Loc = t.Span
		return c
	case tokenizer.LiteralDecimal, tokenizer.LiteralHex, tokenizer.LiteralOctal, tokenizer.LiteralBinary,
		tokenizer.LiteralFloat, tokenizer.LiteralImaginary:
		p.next()
		c := numberConstant(t.Kind, p.text(t))
		c.Loc = t.Span
		return c
	case tokenizer.LeftSingleQuote, tokenizer.LeftDoubleQuote, tokenizer.LeftSingleTripleQuote,
		tokenizer.LeftDoubleTripleQuote:
		return p.parseStrings()
	case tokenizer.LeftParenthesis:
		return p.parseParen()
	case tokenizer.LeftBracket:
		return p.parseList()
	case tokenizer.LeftBrace:
		return p.parseBrace()
	}
	p.failUnexpected()
	return nil
}

var keywordConstants = map[tokenizer.Kind]ast.ConstantKind{
	tokenizer.KeywordNone:  ast.ConstNone,
	tokenizer.KeywordTrue:  ast.ConstTrue,
	tokenizer.KeywordFalse: ast.ConstFalse,
	tokenizer.Ellipsis:     ast.ConstEllipsis,
}

func numberConstant(kind tokenizer.Kind, text string) *ast.Constant {
	c := &ast.Constant{Kind: ast.ConstInt, Text: text, Radix: 10}
	switch kind {
	case tokenizer.LiteralFloat:
		c.Kind, c.Radix = ast.ConstFloat, 0
		return c
	case tokenizer.LiteralImaginary:
		c.Kind, c.Radix = ast.ConstImaginary, 0
		return c
	case tokenizer.LiteralHex:
		c.Radix = 16
	case tokenizer.LiteralOctal:
		c.Radix = 8
	case tokenizer.LiteralBinary:
		c.Radix = 2
	}
	if strings.HasSuffix(text, "l") || strings.HasSuffix(text, "L") {
		c.Kind = ast.ConstLong
	}
	return c
}

func isOpenQuote(k tokenizer.Kind) bool {
	switch k {
	case tokenizer.LeftSingleQuote, tokenizer.LeftDoubleQuote, tokenizer.LeftSingleTripleQuote,
		tokenizer.LeftDoubleTripleQuote:
		return true
	}
	return false
}

// parseStrings reads one or more adjacent string literals. An unterminated
// literal becomes an ErrorExpr.
func (p *Parser) parseStrings() ast.Expr {
	start := p.peek().Span.Start
	s := &ast.Str{}
	terminated := true
	for isOpenQuote(p.peek().Kind) {
		open := p.next()
		prefix := strings.TrimRight(p.text(open), `'"`)
		var sb strings.Builder
		for p.is(tokenizer.LiteralString) {
			sb.WriteString(p.text(p.next()))
		}
		if p.is(open.Kind.GroupEnding()) {
			if p.next().Span.Len() == 0 {
				terminated = false
			}
		} else {
			terminated = false
		}
		s.Parts = append(s.Parts, ast.StrPart{Prefix: prefix, Text: sb.String()})
	}
	span := p.spanFrom(start)
	if !terminated {
		p.report("unterminated string literal", span, SeverityError)
		e := &ast.ErrorExpr{Message: "unterminated string literal"}
		e.Loc = span
		return e
	}
	if s.IsBytes() && s.IsUnicode() {
		p.report("cannot mix bytes and nonbytes literals", span, SeverityError)
	}
	s.Loc = span
	return s
}

func (p *Parser) parseParen() ast.Expr {
	start := p.next().Span.Start
	if p.tryRead(tokenizer.RightParenthesis) {
		t := &ast.Tuple{}
		t.Loc = p.spanFrom(start)
		return t
	}
	if p.is(tokenizer.KeywordYield) {
		pe := &ast.Paren{Inner: p.parseYield()}
		p.expect(tokenizer.RightParenthesis)
		pe.Loc = p.spanFrom(start)
		return pe
	}

	first := p.parseTestOrStar()
	switch {
	case p.isCompFor():
		g := &ast.Comprehension{Kind: ast.GeneratorComp, Elt: first, Fors: p.parseCompFors()}
		p.expect(tokenizer.RightParenthesis)
		g.Loc = p.spanFrom(start)
		return g
	case p.is(tokenizer.Comma):
		t := &ast.Tuple{Items: []ast.Expr{first}}
		for p.tryRead(tokenizer.Comma) && !p.is(tokenizer.RightParenthesis) {
			t.Items = append(t.Items, p.parseTestOrStar())
		}
		p.expect(tokenizer.RightParenthesis)
		t.Loc = p.spanFrom(start)
		return t
	}
	p.expect(tokenizer.RightParenthesis)
	pe := &ast.Paren{Inner: first}
	pe.Loc = p.spanFrom(start)
	return pe
}

func (p *Parser) parseList() ast.Expr {
	start := p.next().Span.Start
	l := &ast.List{}
	if p.tryRead(tokenizer.RightBracket) {
		l.Loc = p.spanFrom(start)
		return l
	}
	first := p.parseTestOrStar()
	if p.isCompFor() {
		c := &ast.Comprehension{Kind: ast.ListComp, Elt: first, Fors: p.parseCompFors()}
		p.expect(tokenizer.RightBracket)
		c.Loc = p.spanFrom(start)
		return c
	}
	l.Items = []ast.Expr{first}
	for p.tryRead(tokenizer.Comma) && !p.is(tokenizer.RightBracket) {
		l.Items = append(l.Items, p.parseTestOrStar())
	}
	p.expect(tokenizer.RightBracket)
	l.Loc = p.spanFrom(start)
	return l
}

func (p *Parser) parseDictItem() *ast.DictItem {
	start := p.peek().Span.Start
	item := &ast.DictItem{}
	if p.tryRead(tokenizer.Power) {
		item.Value = p.parseExpr()
	} else {
		item.Key = p.parseTest()
		p.expect(tokenizer.Colon)
		item.Value = p.parseTest()
	}
	item.Loc = p.spanFrom(start)
	return item
}

// parseBrace parses dict and set displays and their comprehensions.
func (p *Parser) parseBrace() ast.Expr {
	start := p.next().Span.Start
	if p.tryRead(tokenizer.RightBrace) {
		d := &ast.Dict{}
		d.Loc = p.spanFrom(start)
		return d
	}

	isDict := p.is(tokenizer.Power)
	var first ast.Expr
	var firstItem *ast.DictItem
	if isDict {
		firstItem = p.parseDictItem()
	} else {
		itemStart := p.peek().Span.Start
		first = p.parseTestOrStar()
		if p.tryRead(tokenizer.Colon) {
			isDict = true
			firstItem = &ast.DictItem{Key: first, Value: p.parseTest()}
			firstItem.Loc = p.spanFrom(itemStart)
		}
	}

	if p.isCompFor() {
		c := &ast.Comprehension{Kind: ast.SetComp, Elt: first}
		if isDict {
			c.Kind, c.Elt = ast.DictComp, firstItem
		}
		c.Fors = p.parseCompFors()
		p.expect(tokenizer.RightBrace)
		c.Loc = p.spanFrom(start)
		return c
	}

	if isDict {
		d := &ast.Dict{Items: []*ast.DictItem{firstItem}}
		for p.tryRead(tokenizer.Comma) && !p.is(tokenizer.RightBrace) {
			d.Items = append(d.Items, p.parseDictItem())
		}
		p.expect(tokenizer.RightBrace)
		d.Loc = p.spanFrom(start)
		return d
	}
	s := &ast.Set{Items: []ast.Expr{first}}
	for p.tryRead(tokenizer.Comma) && !p.is(tokenizer.RightBrace) {
		s.Items = append(s.Items, p.parseTestOrStar())
	}
	p.expect(tokenizer.RightBrace)
	s.Loc = p.spanFrom(start)
	return s
}
