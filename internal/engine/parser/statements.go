package parser

import (
	"pyanalyzer/internal/engine/ast"
	"pyanalyzer/internal/engine/tokenizer"
)

func (p *Parser) isCompoundStart() bool {
	switch p.peek().Kind {
	case tokenizer.KeywordIf, tokenizer.KeywordWhile, tokenizer.KeywordFor, tokenizer.KeywordTry,
		tokenizer.KeywordWith, tokenizer.KeywordDef, tokenizer.KeywordClass, tokenizer.MatMultiply:
		return true
	case tokenizer.KeywordAsync:
		switch p.peekAt(2).Kind {
		case tokenizer.KeywordDef, tokenizer.KeywordFor, tokenizer.KeywordWith:
			return true
		}
	}
	return false
}

func (p *Parser) parseCompound() ast.Stmt {
	start := p.peek().Span.Start
	async := false
	if p.is(tokenizer.KeywordAsync) {
		p.next()
		async = true
	}
	switch p.peek().Kind {
	case tokenizer.KeywordIf:
		return p.parseIf()
	case tokenizer.KeywordWhile:
		return p.parseWhile()
	case tokenizer.KeywordFor:
		return p.parseFor(start, async)
	case tokenizer.KeywordTry:
		return p.parseTry()
	case tokenizer.KeywordWith:
		return p.parseWith(start, async)
	case tokenizer.KeywordDef:
		return p.parseFuncDef(start, nil, async)
	case tokenizer.KeywordClass:
		return p.parseClassDef(start, nil)
	case tokenizer.MatMultiply:
		return p.parseDecorated()
	}
	p.failUnexpected()
	return nil
}

func (p *Parser) parseSimple() ast.Stmt {
	start := p.peek().Span.Start
	var s ast.Stmt
	switch p.peek().Kind {
	case tokenizer.KeywordPass:
		p.next()
		s = &ast.Pass{}
	case tokenizer.KeywordBreak:
		p.next()
		s = &ast.Break{}
	case tokenizer.KeywordContinue:
		p.next()
		s = &ast.Continue{}
	case tokenizer.KeywordReturn:
		p.next()
		r := &ast.Return{}
		if !isStatementEnd(p.peek().Kind) {
			r.Value = p.parseTestListStar()
		}
		s = r
	case tokenizer.KeywordGlobal:
		p.next()
		s = &ast.Global{Names: p.parseNameList()}
	case tokenizer.KeywordNonlocal:
		p.next()
		s = &ast.Nonlocal{Names: p.parseNameList()}
	case tokenizer.KeywordDel:
		p.next()
		s = &ast.Del{Targets: p.parseExprListItems()}
	case tokenizer.KeywordRaise:
		s = p.parseRaise()
	case tokenizer.KeywordAssert:
		p.next()
		a := &ast.Assert{Test: p.parseTest()}
		if p.tryRead(tokenizer.Comma) {
			a.Message = p.parseTest()
		}
		s = a
	case tokenizer.KeywordPrint:
		s = p.parsePrint()
	case tokenizer.KeywordExec:
		s = p.parseExec()
	case tokenizer.KeywordImport:
		s = p.parseImport()
	case tokenizer.KeywordFrom:
		s = p.parseFromImport()
	default:
		return p.parseExprStmt()
	}
	setLoc(s, p.spanFrom(start))
	return s
}

func setLoc(n ast.Node, span tokenizer.Span) {
	switch n := n.(type) {
	case *ast.Pass:
		n.Loc = span
	case *ast.Break:
		n.Loc = span
	case *ast.Continue:
		n.Loc = span
	case *ast.Return:
		n.Loc = span
	case *ast.Global:
		n.Loc = span
	case *ast.Nonlocal:
		n.Loc = span
	case *ast.Del:
		n.Loc = span
	case *ast.Raise:
		n.Loc = span
	case *ast.Assert:
		n.Loc = span
	case *ast.Print:
		n.Loc = span
	case *ast.Exec:
		n.Loc = span
	case *ast.Import:
		n.Loc = span
	case *ast.FromImport:
		n.Loc = span
	}
}

func (p *Parser) parseNameList() []string {
	names := []string{p.parseName()}
	for p.tryRead(tokenizer.Comma) {
		names = append(names, p.parseName())
	}
	return names
}

func (p *Parser) parseName() string {
	if !p.is(tokenizer.Name) {
		p.fail("expected name")
	}
	return p.text(p.next())
}

func (p *Parser) parseExprStmt() ast.Stmt {
	start := p.peek().Span.Start
	lhs := p.parseTestListStar()

	switch k := p.peek().Kind; {
	case k.IsAugmentedAssign():
		p.next()
		var value ast.Expr
		if p.is(tokenizer.KeywordYield) {
			value = p.parseYield()
		} else {
			value = p.parseTestList()
		}
		s := &ast.AugAssign{Op: k, Target: lhs, Value: value}
		s.Loc = p.spanFrom(start)
		return s

	case k == tokenizer.Assign:
		s := &ast.Assign{Targets: []ast.Expr{lhs}}
		for p.tryRead(tokenizer.Assign) {
			var v ast.Expr
			if p.is(tokenizer.KeywordYield) {
				v = p.parseYield()
			} else {
				v = p.parseTestListStar()
			}
			if p.is(tokenizer.Assign) {
				s.Targets = append(s.Targets, v)
			} else {
				s.Value = v
			}
		}
		s.Loc = p.spanFrom(start)
		return s

	case k == tokenizer.Colon && p.version.Is3x():
		p.next()
		ann := p.parseTest()
		if !p.tryRead(tokenizer.Assign) {
			s := &ast.ExprStmt{Value: lhs}
			s.Loc = p.spanFrom(start)
			return s
		}
		s := &ast.Assign{Targets: []ast.Expr{lhs}, Annotation: ann, Value: p.parseTest()}
		s.Loc = p.spanFrom(start)
		return s
	}

	s := &ast.ExprStmt{Value: lhs}
	s.Loc = p.spanFrom(start)
	return s
}

func (p *Parser) parseRaise() ast.Stmt {
	p.next()
	r := &ast.Raise{}
	if isStatementEnd(p.peek().Kind) {
		return r
	}
	r.Type = p.parseTest()
	if p.version.Is3x() {
		if p.tryRead(tokenizer.KeywordFrom) {
			r.Cause = p.parseTest()
		}
		return r
	}
	if p.tryRead(tokenizer.Comma) {
		r.Value = p.parseTest()
		if p.tryRead(tokenizer.Comma) {
			r.Traceback = p.parseTest()
		}
	}
	return r
}

// parsePrint handles the 2.x print statement, including "print >>f, x".
func (p *Parser) parsePrint() ast.Stmt {
	p.next()
	s := &ast.Print{}
	if p.tryRead(tokenizer.RightShift) {
		s.Dest = p.parseTest()
		if !p.tryRead(tokenizer.Comma) {
			return s
		}
	}
	for !isStatementEnd(p.peek().Kind) {
		s.Values = append(s.Values, p.parseTest())
		s.TrailingComma = p.tryRead(tokenizer.Comma)
		if !s.TrailingComma {
			break
		}
	}
	return s
}

func (p *Parser) parseExec() ast.Stmt {
	p.next()
	s := &ast.Exec{Code: p.parseExpr()}
	if p.tryRead(tokenizer.KeywordIn) {
		s.Globals = p.parseTest()
		if p.tryRead(tokenizer.Comma) {
			s.Locals = p.parseTest()
		}
	}
	return s
}

func (p *Parser) parseDottedName() *ast.DottedName {
	start := p.peek().Span.Start
	d := &ast.DottedName{Names: []string{p.parseName()}}
	for p.tryRead(tokenizer.Dot) {
		d.Names = append(d.Names, p.parseName())
	}
	d.Loc = p.spanFrom(start)
	return d
}

func (p *Parser) parseImport() ast.Stmt {
	p.next()
	s := &ast.Import{}
	for {
		start := p.peek().Span.Start
		n := &ast.ImportName{Module: p.parseDottedName()}
		if p.tryRead(tokenizer.KeywordAs) {
			n.AsName = p.parseName()
		}
		n.Loc = p.spanFrom(start)
		s.Names = append(s.Names, n)
		if !p.tryRead(tokenizer.Comma) {
			return s
		}
	}
}

func (p *Parser) parseFromImport() ast.Stmt {
	p.next()
	start := p.peek().Span.Start
	mod := &ast.DottedName{}
	for {
		if p.tryRead(tokenizer.Dot) {
			mod.LeadingDots++
		} else if p.tryRead(tokenizer.Ellipsis) {
			mod.LeadingDots += 3
		} else {
			break
		}
	}
	if p.is(tokenizer.Name) {
		mod.Names = p.parseDottedName().Names
	} else if mod.LeadingDots == 0 {
		p.fail("expected module name")
	}
	mod.Loc = p.spanFrom(start)

	p.expect(tokenizer.KeywordImport)
	s := &ast.FromImport{Module: mod}
	if p.tryRead(tokenizer.Multiply) {
		s.Star = true
		return s
	}
	paren := p.tryRead(tokenizer.LeftParenthesis)
	for {
		nameStart := p.peek().Span.Start
		n := &ast.FromName{Name: p.parseName()}
		if p.tryRead(tokenizer.KeywordAs) {
			n.AsName = p.parseName()
		}
		n.Loc = p.spanFrom(nameStart)
		s.Names = append(s.Names, n)
		if !p.tryRead(tokenizer.Comma) {
			break
		}
		if paren && p.is(tokenizer.RightParenthesis) {
			break
		}
	}
	if paren {
		p.expect(tokenizer.RightParenthesis)
	}
	return s
}

func (p *Parser) parseIf() ast.Stmt {
	start := p.peek().Span.Start
	s := &ast.If{}
	for {
		testStart := p.next().Span.Start
		t := &ast.IfTest{Test: p.parseTest()}
		p.expect(tokenizer.Colon)
		t.Body = p.parseSuite()
		t.Loc = p.spanFrom(testStart)
		s.Tests = append(s.Tests, t)
		if !p.atClause(tokenizer.KeywordElseIf) {
			break
		}
	}
	if p.atClause(tokenizer.KeywordElse) {
		p.next()
		p.expect(tokenizer.Colon)
		s.Else = p.parseSuite()
	}
	s.Loc = p.spanFrom(start)
	return s
}

func (p *Parser) parseWhile() ast.Stmt {
	start := p.next().Span.Start
	s := &ast.While{Test: p.parseTest()}
	p.expect(tokenizer.Colon)
	s.Body = p.parseSuite()
	if p.atClause(tokenizer.KeywordElse) {
		p.next()
		p.expect(tokenizer.Colon)
		s.Else = p.parseSuite()
	}
	s.Loc = p.spanFrom(start)
	return s
}

func (p *Parser) parseFor(start tokenizer.Location, async bool) ast.Stmt {
	p.next()
	s := &ast.For{Async: async, Target: p.parseExprList()}
	p.expect(tokenizer.KeywordIn)
	s.Iter = p.parseTestList()
	p.expect(tokenizer.Colon)
	s.Body = p.parseSuite()
	if p.atClause(tokenizer.KeywordElse) {
		p.next()
		p.expect(tokenizer.Colon)
		s.Else = p.parseSuite()
	}
	s.Loc = p.spanFrom(start)
	return s
}

func (p *Parser) parseTry() ast.Stmt {
	start := p.next().Span.Start
	p.expect(tokenizer.Colon)
	s := &ast.Try{Body: p.parseSuite()}

	for p.atClause(tokenizer.KeywordExcept) {
		hStart := p.next().Span.Start
		h := &ast.Handler{}
		if !p.is(tokenizer.Colon) {
			h.Test = p.parseTest()
			if p.tryRead(tokenizer.KeywordAs) || (p.version.Is2x() && p.tryRead(tokenizer.Comma)) {
				h.Target = p.parseTest()
			}
		}
		p.expect(tokenizer.Colon)
		h.Body = p.parseSuite()
		h.Loc = p.spanFrom(hStart)
		s.Handlers = append(s.Handlers, h)
	}
	if len(s.Handlers) > 0 && p.atClause(tokenizer.KeywordElse) {
		p.next()
		p.expect(tokenizer.Colon)
		s.Else = p.parseSuite()
	}
	if p.atClause(tokenizer.KeywordFinally) {
		p.next()
		p.expect(tokenizer.Colon)
		s.Finally = p.parseSuite()
	}
	s.Loc = p.spanFrom(start)
	if len(s.Handlers) == 0 && s.Finally == nil {
		p.report("expected 'except' or 'finally' block", s.Loc, SeverityError)
	}
	return s
}

func (p *Parser) parseWith(start tokenizer.Location, async bool) ast.Stmt {
	p.next()
	s := &ast.With{Async: async}
	for {
		itemStart := p.peek().Span.Start
		item := &ast.WithItem{Context: p.parseTest()}
		if p.tryRead(tokenizer.KeywordAs) {
			item.Target = p.parseExpr()
		}
		item.Loc = p.spanFrom(itemStart)
		s.Items = append(s.Items, item)
		if !p.tryRead(tokenizer.Comma) {
			break
		}
	}
	p.expect(tokenizer.Colon)
	s.Body = p.parseSuite()
	s.Loc = p.spanFrom(start)
	return s
}

func (p *Parser) parseDecorated() ast.Stmt {
	start := p.peek().Span.Start
	var decorators []ast.Expr
	for p.tryRead(tokenizer.MatMultiply) {
		decorators = append(decorators, p.parseTest())
		p.expect(tokenizer.NewLine)
		p.skipBlankLines()
		if text, ws, ok := p.lineIndent(); ok || p.indent != "" {
			if text != p.indent {
				p.report("unexpected indent", ws.Span, SeverityError)
			}
			if ok {
				p.next()
			}
		}
	}

	async := p.tryRead(tokenizer.KeywordAsync)
	switch p.peek().Kind {
	case tokenizer.KeywordDef:
		return p.parseFuncDef(start, decorators, async)
	case tokenizer.KeywordClass:
		if !async {
			return p.parseClassDef(start, decorators)
		}
	}
	p.fail("expected function or class after decorator")
	return nil
}

func (p *Parser) parseFuncDef(start tokenizer.Location, decorators []ast.Expr, async bool) ast.Stmt {
	p.expect(tokenizer.KeywordDef)
	if !p.is(tokenizer.Name) {
		p.fail("expected function name")
	}
	nameTok := p.next()
	fn := &ast.FunctionDef{
		Name:       p.text(nameTok),
		NameSpan:   nameTok.Span,
		Decorators: decorators,
		Async:      async,
	}
	p.expect(tokenizer.LeftParenthesis)
	fn.Params = p.parseParameterList(false)
	p.expect(tokenizer.RightParenthesis)
	if p.version.Is3x() && p.tryRead(tokenizer.Arrow) {
		fn.Returns = p.parseTest()
	}
	p.expect(tokenizer.Colon)
	fn.Body = p.parseSuite()
	fn.Loc = p.spanFrom(start)
	return fn
}

func (p *Parser) parseClassDef(start tokenizer.Location, decorators []ast.Expr) ast.Stmt {
	p.expect(tokenizer.KeywordClass)
	if !p.is(tokenizer.Name) {
		p.fail("expected class name")
	}
	nameTok := p.next()
	c := &ast.ClassDef{Name: p.text(nameTok), NameSpan: nameTok.Span, Decorators: decorators}
	if p.tryRead(tokenizer.LeftParenthesis) {
		if !p.is(tokenizer.RightParenthesis) {
			c.Bases = p.parseArgList()
		}
		p.expect(tokenizer.RightParenthesis)
	}
	p.expect(tokenizer.Colon)
	c.Body = p.parseSuite()
	c.Loc = p.spanFrom(start)
	return c
}

// parseParameterList reads parameters up to the closing parenthesis of a
// def, or up to the colon of a lambda. Lambda parameters take no
// annotations.
func (p *Parser) parseParameterList(forLambda bool) []*ast.Parameter {
	end := tokenizer.RightParenthesis
	if forLambda {
		end = tokenizer.Colon
	}

	var params []*ast.Parameter
	afterStar := false
	for !p.is(end) {
		start := p.peek().Span.Start
		param := &ast.Parameter{Kind: ast.ParamNormal}
		switch {
		case p.tryRead(tokenizer.Multiply):
			if afterStar {
				p.fail("duplicate * in parameter list")
			}
			afterStar = true
			param.Kind = ast.ParamList
			// A bare '*' has no name; keyword-only parameters follow it.
			if !(p.version.Is3x() && p.is(tokenizer.Comma)) {
				param.Name = p.parseName()
			}
		case p.tryRead(tokenizer.Power):
			param.Kind = ast.ParamDict
			param.Name = p.parseName()
		default:
			param.Name = p.parseName()
			if afterStar {
				param.Kind = ast.ParamKeywordOnly
			}
		}
		if !forLambda && p.version.Is3x() && p.tryRead(tokenizer.Colon) {
			param.Annotation = p.parseTest()
		}
		if p.tryRead(tokenizer.Assign) {
			if param.Kind == ast.ParamList || param.Kind == ast.ParamDict {
				p.fail("var-positional and var-keyword parameters cannot have defaults")
			}
			param.Default = p.parseTest()
		}
		param.Loc = p.spanFrom(start)
		params = append(params, param)

		if param.Kind == ast.ParamDict && !p.is(end) && !(p.is(tokenizer.Comma) && p.peekAt(2).Kind == end) {
			p.fail("parameter after **")
		}
		if !p.tryRead(tokenizer.Comma) {
			break
		}
	}
	if !p.is(end) {
		p.failUnexpected()
	}
	return params
}
