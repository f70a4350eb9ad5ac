package tokenizer

import (
	"context"
	"io"
	"sort"

	domainerrors "pyanalyzer/internal/core/errors"
)

// Source is anything that can supply the raw bytes of a document.
type Source interface {
	Read(ctx context.Context) (io.ReadCloser, error)
}

// Tokenization is the immutable, line-indexed token stream of a document.
// Line numbers taken and returned by its methods are 0-based; token
// locations are 1-based.
type Tokenization struct {
	text       string
	lines      []string
	tokens     [][]Token
	lineStarts []int
	version    LanguageVersion
	encoding   string
}

// Tokenize reads and decodes src, then tokenizes it.
func Tokenize(ctx context.Context, src Source, version LanguageVersion) (*Tokenization, error) {
	if err := ctx.Err(); err != nil {
		return nil, domainerrors.Cancelled(err)
	}
	rc, err := src.Read(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	text, enc, err := DecodeSource(rc)
	if err != nil {
		return nil, err
	}
	tok := tokenizeText(text, version)
	tok.encoding = enc
	return tok, nil
}

// TokenizeString tokenizes already-decoded text.
func TokenizeString(text string, version LanguageVersion) *Tokenization {
	tok := tokenizeText(text, version)
	tok.encoding = EncodingUTF8
	return tok
}

// SplitLines splits text after each \r\n, \r or \n, keeping terminators.
func SplitLines(text string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\r':
			if i+1 < len(text) && text[i+1] == '\n' {
				i++
			}
			lines = append(lines, text[start:i+1])
			start = i + 1
		case '\n':
			lines = append(lines, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}

func tokenizeText(text string, version LanguageVersion) *Tokenization {
	tz := New(version)
	lines := SplitLines(text)
	tokens := make([][]Token, 0, len(lines)+1)
	lineStarts := []int{0}

	for _, line := range lines {
		tokens = append(tokens, tz.Tokens(line))
		if last := line[len(line)-1]; last == '\n' || last == '\r' {
			lineStarts = append(lineStarts, tz.lineStart)
		}
	}

	if len(tokens) == 0 {
		lines = append(lines, "")
		tokens = append(tokens, tz.Remaining())
	} else {
		tokens[len(tokens)-1] = append(tokens[len(tokens)-1], tz.Remaining()...)
	}

	return &Tokenization{
		text:       text,
		lines:      lines,
		tokens:     tokens,
		lineStarts: lineStarts,
		version:    version,
	}
}

func (t *Tokenization) Version() LanguageVersion { return t.version }
func (t *Tokenization) Encoding() string         { return t.encoding }
func (t *Tokenization) Text() string             { return t.text }
func (t *Tokenization) Lines() []string          { return t.lines }
func (t *Tokenization) LineCount() int           { return len(t.lines) }

// Line returns the tokens of a 0-based line, or nil when out of range.
func (t *Tokenization) Line(n int) []Token {
	if n < 0 || n >= len(t.tokens) {
		return nil
	}
	return t.tokens[n]
}

// AllTokens returns every token in source order.
func (t *Tokenization) AllTokens() []Token {
	var out []Token
	for _, line := range t.tokens {
		out = append(out, line...)
	}
	return out
}

// SpanText returns the source text covered by span.
func (t *Tokenization) SpanText(span Span) string {
	start, end := span.Start.Index, span.End.Index
	if start < 0 {
		start = 0
	}
	if end > len(t.text) {
		end = len(t.text)
	}
	if end <= start {
		return ""
	}
	return t.text[start:end]
}

func (t *Tokenization) TokenText(tok Token) string {
	if tok.Kind == EndOfFile {
		return ""
	}
	return t.SpanText(tok.Span)
}

// LineStartIndex returns the byte offset where a 0-based line begins, or -1.
func (t *Tokenization) LineStartIndex(n int) int {
	if n < 0 || n >= len(t.lines) || n >= len(t.lineStarts) {
		return -1
	}
	return t.lineStarts[n]
}

// LineNumberByIndex returns the 0-based line containing a byte offset,
// choosing the nearest lower line start.
func (t *Tokenization) LineNumberByIndex(index int) int {
	if index < 0 || len(t.lineStarts) == 0 {
		return -1
	}
	n := sort.Search(len(t.lineStarts), func(i int) bool { return t.lineStarts[i] > index }) - 1
	if n >= len(t.lines) {
		n = len(t.lines) - 1
	}
	return n
}

// TokenAt returns the token covering a byte offset.
func (t *Tokenization) TokenAt(index int) (Token, bool) {
	for _, tok := range t.Line(t.LineNumberByIndex(index)) {
		if tok.Span.Contains(index) {
			return tok, true
		}
	}
	return Token{}, false
}

// TokensStartingFromIndex returns tokens that begin at or after index.
func (t *Tokenization) TokensStartingFromIndex(index int) []Token {
	first := t.LineNumberByIndex(index)
	if first < 0 {
		return nil
	}
	var out []Token
	for n := first; n < len(t.tokens); n++ {
		for _, tok := range t.tokens[n] {
			if tok.Span.Start.Index >= index {
				out = append(out, tok)
			}
		}
	}
	return out
}

// TokensEndingAtLineReversed walks backwards from the end of a 0-based line
// to the start of the document.
func (t *Tokenization) TokensEndingAtLineReversed(n int) []Token {
	if n >= len(t.tokens) {
		n = len(t.tokens) - 1
	}
	var out []Token
	for ; n >= 0; n-- {
		line := t.tokens[n]
		for i := len(line) - 1; i >= 0; i-- {
			out = append(out, line[i])
		}
	}
	return out
}
