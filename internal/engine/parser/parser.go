// Package parser turns a Tokenization into an ast.Module. Statement-level
// syntax errors never abort the parse: the broken statement is replaced by
// an ast.ErrorStmt and the error is reported alongside the tree.
package parser

import (
	"fmt"

	"pyanalyzer/internal/engine/ast"
	"pyanalyzer/internal/engine/tokenizer"
)

type Severity uint8

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// ErrorResult is a single diagnostic produced while parsing.
type ErrorResult struct {
	Message  string
	Span     tokenizer.Span
	Severity Severity
}

func (e ErrorResult) String() string {
	return fmt.Sprintf("%s %s: %s", e.Span.Start, e.Severity, e.Message)
}

// syntaxError unwinds to the nearest statement boundary.
type syntaxError struct {
	message string
	at      tokenizer.Location
}

type Parser struct {
	tok     *tokenizer.Tokenization
	version tokenizer.LanguageVersion
	ts      *tokenStream

	// indent is the leading whitespace text of the suite being parsed.
	indent string
	errors []ErrorResult
}

func New(tok *tokenizer.Tokenization) *Parser {
	return &Parser{tok: tok, version: tok.Version()}
}

// Parse parses the whole document. It may be called more than once.
func (p *Parser) Parse() (*ast.Module, []ErrorResult) {
	p.ts = newTokenStream(p.tok.AllTokens())
	p.indent = ""
	p.errors = nil

	start := p.peek().Span.Start
	stmts := p.parseStatements("", true)
	body := &ast.Suite{Stmts: stmts}
	body.Loc = p.spanFrom(start)
	if len(stmts) == 0 {
		body.Loc = tokenizer.Span{Start: start, End: start}
	}

	mod := &ast.Module{Body: body, Version: p.version, Tokenization: p.tok}
	mod.Loc = body.Loc
	return mod, p.errors
}

func (p *Parser) peek() tokenizer.Token        { return p.ts.peekAt(1) }
func (p *Parser) peekAt(n int) tokenizer.Token { return p.ts.peekAt(n) }
func (p *Parser) next() tokenizer.Token        { return p.ts.next() }
func (p *Parser) prev() tokenizer.Token        { return p.ts.prev }

func (p *Parser) is(k tokenizer.Kind) bool { return p.peek().Kind == k }

func (p *Parser) tryRead(k tokenizer.Kind) bool {
	if p.is(k) {
		p.next()
		return true
	}
	return false
}

func (p *Parser) expect(k tokenizer.Kind) tokenizer.Token {
	if !p.is(k) {
		p.fail(fmt.Sprintf("expected '%s'", k))
	}
	return p.next()
}

func (p *Parser) text(t tokenizer.Token) string {
	return p.tok.TokenText(t)
}

func (p *Parser) spanFrom(start tokenizer.Location) tokenizer.Span {
	end := p.prev().Span.End
	if end.Index < start.Index {
		end = start
	}
	return tokenizer.Span{Start: start, End: end}
}

func (p *Parser) fail(message string) {
	panic(syntaxError{message: message, at: p.peek().Span.Start})
}

func (p *Parser) failUnexpected() {
	t := p.peek()
	switch t.Kind {
	case tokenizer.EndOfFile:
		p.fail("unexpected end of file")
	case tokenizer.NewLine:
		p.fail("unexpected end of line")
	case tokenizer.Error:
		p.fail(fmt.Sprintf("invalid token '%s'", p.text(t)))
	}
	p.fail("invalid syntax")
}

func (p *Parser) report(message string, span tokenizer.Span, sev Severity) {
	p.errors = append(p.errors, ErrorResult{Message: message, Span: span, Severity: sev})
}

func isStatementEnd(k tokenizer.Kind) bool {
	return k == tokenizer.NewLine || k == tokenizer.SemiColon || k == tokenizer.EndOfFile
}

// recoverStmt runs parse and converts a syntax error into an ErrorStmt,
// skipping the rest of the statement.
func (p *Parser) recoverStmt(parse func() ast.Stmt) (stmt ast.Stmt) {
	start := p.peek().Span.Start
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		se, ok := r.(syntaxError)
		if !ok {
			panic(r)
		}
		for !isStatementEnd(p.peek().Kind) {
			p.next()
		}
		es := &ast.ErrorStmt{Message: se.message}
		es.Loc = p.spanFrom(start)
		p.report(se.message, tokenizer.Span{Start: se.at, End: es.Loc.End}, SeverityError)
		stmt = es
	}()
	return parse()
}

// skipBlankLines consumes lines holding nothing but whitespace and comments.
func (p *Parser) skipBlankLines() {
	for {
		switch t := p.peek(); {
		case t.Kind == tokenizer.NewLine:
			p.next()
		case t.Kind == tokenizer.SignificantWhitespace:
			k := p.peekAt(2).Kind
			if k != tokenizer.NewLine && k != tokenizer.EndOfFile {
				return
			}
			p.next()
		default:
			return
		}
	}
}

// lineIndent returns the indent text of the line about to be parsed. It
// must be called at the start of a logical line.
func (p *Parser) lineIndent() (string, tokenizer.Token, bool) {
	t := p.peek()
	if t.Kind != tokenizer.SignificantWhitespace {
		return "", t, false
	}
	return p.text(t), t, true
}

// parseStatements reads the lines of a suite whose indent text is exactly
// indent. A deeper line that extends indent is reported and kept; any other
// mismatch ends the suite. The top level never ends early.
func (p *Parser) parseStatements(indent string, top bool) []ast.Stmt {
	prevIndent := p.indent
	p.indent = indent
	defer func() { p.indent = prevIndent }()

	var stmts []ast.Stmt
	for {
		p.skipBlankLines()
		if p.is(tokenizer.EndOfFile) {
			return stmts
		}
		text, ws, hasWS := p.lineIndent()
		if text != indent {
			deeper := len(text) > len(indent) && text[:len(indent)] == indent
			if !top && !deeper {
				return stmts
			}
			p.report("unexpected indent", ws.Span, SeverityError)
		}
		if hasWS {
			p.next()
		}
		stmts = append(stmts, p.parseLine()...)
	}
}

// parseLine parses one compound statement, or a run of simple statements
// separated by semicolons, and consumes the line terminator.
func (p *Parser) parseLine() []ast.Stmt {
	if p.isCompoundStart() {
		s := p.recoverStmt(p.parseCompound)
		p.tryRead(tokenizer.NewLine)
		return []ast.Stmt{s}
	}
	return p.parseSimpleStatements()
}

func (p *Parser) parseSimpleStatements() []ast.Stmt {
	var stmts []ast.Stmt
	for {
		stmts = append(stmts, p.recoverStmt(func() ast.Stmt {
			s := p.parseSimple()
			if !isStatementEnd(p.peek().Kind) {
				p.fail("invalid syntax")
			}
			return s
		}))
		if !p.tryRead(tokenizer.SemiColon) {
			break
		}
		if k := p.peek().Kind; k == tokenizer.NewLine || k == tokenizer.EndOfFile {
			break
		}
	}
	p.tryRead(tokenizer.NewLine)
	return stmts
}

// parseSuite parses the body after a compound statement's colon: either
// simple statements on the same line or an indented block.
func (p *Parser) parseSuite() *ast.Suite {
	start := p.peek().Span.Start
	suite := &ast.Suite{}
	if !p.tryRead(tokenizer.NewLine) {
		suite.Stmts = p.parseSimpleStatements()
		suite.Loc = p.spanFrom(start)
		return suite
	}

	p.skipBlankLines()
	text, ws, _ := p.lineIndent()
	if p.is(tokenizer.EndOfFile) || len(text) <= len(p.indent) {
		p.report("expected an indented block", ws.Span, SeverityError)
		suite.Loc = tokenizer.Span{Start: start, End: start}
		return suite
	}
	start = p.peekAt(2).Span.Start
	suite.Stmts = p.parseStatements(text, false)
	suite.Loc = p.spanFrom(start)
	return suite
}

// atClause reports whether the next line continues the current compound
// statement with one of the given keywords, consuming its indent if so.
func (p *Parser) atClause(kinds ...tokenizer.Kind) bool {
	p.skipBlankLines()
	n := 1
	if p.indent != "" {
		text, _, ok := p.lineIndent()
		if !ok || text != p.indent {
			return false
		}
		n = 2
	} else if p.is(tokenizer.SignificantWhitespace) {
		return false
	}
	k := p.peekAt(n).Kind
	for _, want := range kinds {
		if k == want {
			if n == 2 {
				p.next()
			}
			return true
		}
	}
	return false
}

// tokenStream is a lookahead buffer over the token list that hides
// whitespace, comments and line continuations.
type tokenStream struct {
	all  []tokenizer.Token
	i    int
	buf  []tokenizer.Token
	eof  tokenizer.Token
	prev tokenizer.Token
}

func newTokenStream(all []tokenizer.Token) *tokenStream {
	ts := &tokenStream{all: all}
	ts.eof = tokenizer.Token{Kind: tokenizer.EndOfFile}
	if n := len(all); n > 0 && all[n-1].Kind == tokenizer.EndOfFile {
		ts.eof = all[n-1]
	}
	return ts
}

func isTrivia(k tokenizer.Kind) bool {
	switch k {
	case tokenizer.Whitespace, tokenizer.Comment, tokenizer.ExplicitLineJoin, tokenizer.IgnoredNewLine:
		return true
	}
	return false
}

func (s *tokenStream) read() tokenizer.Token {
	for s.i < len(s.all) {
		t := s.all[s.i]
		s.i++
		if !isTrivia(t.Kind) {
			return t
		}
	}
	return s.eof
}

// peekAt returns the n-th significant token ahead (1-based).
func (s *tokenStream) peekAt(n int) tokenizer.Token {
	for len(s.buf) < n {
		s.buf = append(s.buf, s.read())
	}
	return s.buf[n-1]
}

func (s *tokenStream) next() tokenizer.Token {
	t := s.peekAt(1)
	s.buf = s.buf[1:]
	s.prev = t
	return t
}
