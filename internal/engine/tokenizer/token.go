package tokenizer

import "fmt"

// Location is a position in source text. Index is a byte offset from the
// start of the document; Line and Column are 1-based.
type Location struct {
	Index  int
	Line   int
	Column int
}

func (l Location) String() string {
	return fmt.Sprintf("(%d, %d)", l.Line, l.Column)
}

// Span is a half-open range [Start, End).
type Span struct {
	Start Location
	End   Location
}

func (s Span) Len() int {
	return s.End.Index - s.Start.Index
}

// Union returns the smallest span covering both s and o.
func (s Span) Union(o Span) Span {
	out := s
	if o.Start.Index < out.Start.Index {
		out.Start = o.Start
	}
	if o.End.Index > out.End.Index {
		out.End = o.End
	}
	return out
}

func (s Span) Contains(index int) bool {
	return s.Start.Index <= index && index < s.End.Index
}

func (s Span) String() string {
	return fmt.Sprintf("%s-%s", s.Start, s.End)
}

type Token struct {
	Kind Kind
	Span Span
}

func newToken(kind Kind, start Location, length int) Token {
	end := start
	end.Index += length
	end.Column += length
	return Token{Kind: kind, Span: Span{Start: start, End: end}}
}

func (t Token) Is(k Kind) bool {
	return t.Kind == k
}

func (t Token) Category() Category {
	return t.Kind.Category()
}

func (t Token) String() string {
	return fmt.Sprintf("%s %s", t.Kind, t.Span)
}
