// Package tokenizer splits Python source into line-indexed tokens.
package tokenizer

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	domainerrors "pyanalyzer/internal/core/errors"
)

const (
	hexDigits     = "0123456789ABCDEFabcdef"
	decimalDigits = "0123456789"
	octalDigits   = "01234567"
	binaryDigits  = "01"
	stringPrefix  = "rRbBuUfF"
)

// Tokenizer converts one line at a time, carrying the open-group stack and
// position between calls so that any line can be re-tokenized from a saved
// state.
type Tokenizer struct {
	version    LanguageVersion
	lineNumber int
	lineStart  int
	nesting    []Kind
	joined     bool
}

func New(version LanguageVersion) *Tokenizer {
	return &Tokenizer{version: version}
}

func (t *Tokenizer) Version() LanguageVersion { return t.version }

// SerializeState encodes the carry-over state. The nesting stack is written
// bottom to top.
func (t *Tokenizer) SerializeState() string {
	nest := make([]string, len(t.nesting))
	for i, k := range t.nesting {
		nest[i] = strconv.Itoa(int(k))
	}
	joined := 0
	if t.joined {
		joined = 1
	}
	return fmt.Sprintf("v=%d;ln=%d;ls=%d;nest=%s;lj=%d",
		int(t.version), t.lineNumber, t.lineStart, strings.Join(nest, "+"), joined)
}

// RestoreState replaces the carry-over state with one produced by
// SerializeState.
func (t *Tokenizer) RestoreState(state string) error {
	restored := Tokenizer{version: t.version}
	for _, field := range strings.Split(state, ";") {
		if field == "" {
			continue
		}
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			return domainerrors.New(domainerrors.CodeValidationError, "malformed tokenizer state field "+strconv.Quote(field))
		}
		var err error
		switch key {
		case "v":
			var v int
			v, err = strconv.Atoi(value)
			restored.version = LanguageVersion(v)
		case "ln":
			restored.lineNumber, err = strconv.Atoi(value)
		case "ls":
			restored.lineStart, err = strconv.Atoi(value)
		case "nest":
			restored.nesting, err = parseNesting(value)
		case "lj":
			restored.joined = value == "1"
		default:
			return domainerrors.New(domainerrors.CodeValidationError, "unrecognized tokenizer state key "+strconv.Quote(key))
		}
		if err != nil {
			return domainerrors.Wrap(err, domainerrors.CodeValidationError, "invalid tokenizer state value for "+key)
		}
	}
	*t = restored
	return nil
}

func parseNesting(value string) ([]Kind, error) {
	if value == "" {
		return nil, nil
	}
	bits := strings.Split(value, "+")
	out := make([]Kind, 0, len(bits))
	for _, b := range bits {
		n, err := strconv.ParseUint(b, 10, 16)
		if err != nil {
			return nil, err
		}
		if Kind(n) >= kindCount {
			return nil, fmt.Errorf("unknown token kind %d", n)
		}
		out = append(out, Kind(n))
	}
	return out, nil
}

// Tokens tokenizes the next line. The line should include its terminator.
func (t *Tokenizer) Tokens(line string) []Token {
	t.lineNumber++
	if line == "" {
		return nil
	}
	toks := t.tokenizeLine(line, t.lineStart, t.lineNumber)
	t.lineStart += len(line)
	return toks
}

// Remaining closes any open groups and returns the end-of-file token.
func (t *Tokenizer) Remaining() []Token {
	t.nesting = t.nesting[:0]
	t.joined = false
	eof := Location{Index: t.lineStart, Line: t.lineNumber, Column: 1}
	return []Token{{Kind: EndOfFile, Span: Span{Start: eof, End: eof}}}
}

func (t *Tokenizer) top() Kind {
	if len(t.nesting) == 0 {
		return Unknown
	}
	return t.nesting[len(t.nesting)-1]
}

func (t *Tokenizer) tokenizeLine(line string, lineStart, lineNumber int) []Token {
	var out []Token
	continued := t.joined
	t.joined = false

	for c := 0; c < len(line); {
		start := Location{Index: lineStart + c, Line: lineNumber, Column: c + 1}
		inGroup := t.top()

		kind, n := Unknown, 0
		if inGroup.isQuoteEnd() {
			kind, n = readStringLiteral(line, c, inGroup)
		}
		if kind == Unknown {
			kind, n = t.nextToken(line, c, continued)
		}
		if kind == NewLine || kind == IgnoredNewLine {
			if len(out) > 0 && out[len(out)-1].Kind == ExplicitLineJoin {
				kind = IgnoredNewLine
				t.joined = true
			} else if len(t.nesting) > 0 {
				kind = IgnoredNewLine
			}
		}

		out = append(out, newToken(kind, start, n))
		c += n

		if inGroup != Unknown && kind == inGroup {
			t.nesting = t.nesting[:len(t.nesting)-1]
		}
		if end := kind.GroupEnding(); end != Unknown {
			t.nesting = append(t.nesting, end)
		}
	}
	return out
}

func quoteText(k Kind) string {
	switch k {
	case RightSingleQuote:
		return "'"
	case RightDoubleQuote:
		return `"`
	case RightSingleTripleQuote:
		return "'''"
	case RightDoubleTripleQuote:
		return `"""`
	}
	return ""
}

// readStringLiteral scans string contents inside an open quote group. It
// returns the closing quote kind when positioned on the closing quote. A
// single-quoted string that reaches the end of its line without a
// continuation is closed with a zero-length quote token.
func readStringLiteral(line string, start int, inGroup Kind) (Kind, int) {
	quote := quoteText(inGroup)
	triple := len(quote) == 3

	i := start
	for i < len(line) {
		ch := line[i]
		if ch == '\\' {
			i += 2
			if i < len(line) && line[i-1] == '\r' && line[i] == '\n' {
				i++
			}
			continue
		}
		if !triple && (ch == '\r' || ch == '\n') {
			break
		}
		if strings.HasPrefix(line[i:], quote) {
			break
		}
		i++
	}
	if i > len(line) {
		i = len(line)
	}
	if i == start {
		if strings.HasPrefix(line[i:], quote) {
			return inGroup, len(quote)
		}
		return inGroup, 0
	}
	return LiteralString, i - start
}

func isNextChar(line string, index int, c byte, offset int) bool {
	i := index + offset
	return i < len(line) && line[i] == c
}

func readWhile(line string, end int, allowed string) int {
	for end < len(line) && strings.IndexByte(allowed, line[end]) >= 0 {
		end++
	}
	return end
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func (t *Tokenizer) nextToken(line string, start int, continued bool) (Kind, int) {
	c := line[start]
	switch c {
	case ':':
		return Colon, 1
	case ';':
		return SemiColon, 1
	case ',':
		return Comma, 1
	case '(':
		return LeftParenthesis, 1
	case '[':
		return LeftBracket, 1
	case '{':
		return LeftBrace, 1
	case ')':
		return RightParenthesis, 1
	case ']':
		return RightBracket, 1
	case '}':
		return RightBrace, 1
	case '\'', '"':
		return openQuote(line, start, start)
	case '\r', '\n':
		return NewLine, len(line) - start
	case '#':
		end := start + 1
		for end < len(line) && line[end] != '\r' && line[end] != '\n' {
			end++
		}
		return Comment, end - start
	case '\\':
		return ExplicitLineJoin, 1
	case '.':
		end := start + 1
		switch {
		case end < len(line) && isDigit(line[end]):
			var kind Kind
			kind, end = readExponent(line, LiteralFloat, readWhile(line, end, decimalDigits))
			if kind != Error {
				kind, end = readImaginary(line, kind, end)
			}
			return kind, end - start
		case isNextChar(line, start, '.', 1) && isNextChar(line, start, '.', 2):
			return Ellipsis, 3
		}
		return Dot, 1
	}

	if isDigit(c) {
		kind, end := t.readNumber(line, start)
		return kind, end - start
	}

	r, size := utf8.DecodeRuneInString(line[start:])
	if r == '_' || unicode.IsLetter(r) {
		end := start + size
		for end < len(line) {
			r2, s2 := utf8.DecodeRuneInString(line[end:])
			if r2 != '_' && !unicode.IsLetter(r2) && !unicode.IsDigit(r2) {
				break
			}
			end += s2
		}
		word := line[start:end]
		if end < len(line) && (line[end] == '\'' || line[end] == '"') && isStringPrefix(word) {
			return openQuote(line, start, end)
		}
		if k, ok := lookupKeyword(word, t.version); ok {
			return k, end - start
		}
		return Name, end - start
	}

	if r < utf8.RuneSelf {
		if kind, n := readOperator(line, start); kind != Error {
			return kind, n
		}
	}

	if unicode.IsSpace(r) {
		end := start + size
		for end < len(line) {
			r2, s2 := utf8.DecodeRuneInString(line[end:])
			if r2 == '\r' || r2 == '\n' || !unicode.IsSpace(r2) {
				break
			}
			end += s2
		}
		if start == 0 && len(t.nesting) == 0 && !continued {
			return SignificantWhitespace, end - start
		}
		return Whitespace, end - start
	}

	return Error, size
}

func isStringPrefix(word string) bool {
	if len(word) == 0 || len(word) > 2 {
		return false
	}
	for i := 0; i < len(word); i++ {
		if strings.IndexByte(stringPrefix, word[i]) < 0 {
			return false
		}
	}
	return !(len(word) == 2 && strings.EqualFold(word[:1], word[1:]))
}

// openQuote returns an opening quote token that starts at start and whose
// quote characters begin at q (after any string prefix).
func openQuote(line string, start, q int) (Kind, int) {
	c := line[q]
	if isNextChar(line, q, c, 1) && isNextChar(line, q, c, 2) {
		if c == '\'' {
			return LeftSingleTripleQuote, q - start + 3
		}
		return LeftDoubleTripleQuote, q - start + 3
	}
	if c == '\'' {
		return LeftSingleQuote, q - start + 1
	}
	return LeftDoubleQuote, q - start + 1
}

func (t *Tokenizer) readNumber(line string, start int) (Kind, int) {
	end := start + 1
	if line[start] == '0' && end < len(line) {
		var digits string
		var kind Kind
		switch line[end] {
		case 'x', 'X':
			digits, kind = hexDigits, LiteralHex
		case 'o', 'O':
			digits, kind = octalDigits, LiteralOctal
		case 'b', 'B':
			digits, kind = binaryDigits, LiteralBinary
		}
		if kind != Unknown {
			end = readWhile(line, end+1, digits)
			if end-start <= 2 {
				return Error, end
			}
			if t.version.Is2x() {
				end = readLongSuffix(line, end)
			}
			return kind, end
		}

		if t.version.Is2x() {
			// A leading zero followed by more digits is octal in 2.x.
			octEnd := readWhile(line, end, octalDigits)
			if octEnd > end && (octEnd >= len(line) || !startsFloatPart(line[octEnd])) {
				return LiteralOctal, readLongSuffix(line, octEnd)
			}
		} else if zeros := readWhile(line, end, "0"); zeros >= len(line) || !startsFloatPart(line[zeros]) {
			return LiteralDecimal, zeros
		}
	}

	end = readWhile(line, end, decimalDigits)
	kind, end := readFloatingPoint(line, LiteralDecimal, end)
	if kind == LiteralDecimal && t.version.Is2x() {
		end = readLongSuffix(line, end)
	}
	return kind, end
}

func startsFloatPart(c byte) bool {
	switch c {
	case '.', 'e', 'E', 'j', 'J', '8', '9':
		return true
	}
	return false
}

func readLongSuffix(line string, end int) int {
	if end < len(line) && (line[end] == 'l' || line[end] == 'L') {
		return end + 1
	}
	return end
}

func readFloatingPoint(line string, kind Kind, end int) (Kind, int) {
	if end >= len(line) {
		return kind, end
	}
	if line[end] == '.' {
		kind = LiteralFloat
		end = readWhile(line, end+1, decimalDigits)
	}
	kind, end = readExponent(line, kind, end)
	if kind != Error {
		kind, end = readImaginary(line, kind, end)
	}
	return kind, end
}

// readExponent consumes an exponent only when e/E is followed by a sign or
// a digit; otherwise the 'e' belongs to the next token.
func readExponent(line string, kind Kind, end int) (Kind, int) {
	if end >= len(line) || (line[end] != 'e' && line[end] != 'E') {
		return kind, end
	}
	if end+1 >= len(line) {
		return kind, end
	}
	next := end + 1
	switch c2 := line[next]; {
	case c2 == '+' || c2 == '-':
		next++
	case isDigit(c2):
	default:
		return kind, end
	}
	digitsEnd := readWhile(line, next, decimalDigits)
	if digitsEnd == next {
		return Error, next
	}
	return LiteralFloat, digitsEnd
}

func readImaginary(line string, kind Kind, end int) (Kind, int) {
	if end >= len(line) || (kind != LiteralDecimal && kind != LiteralFloat) {
		return kind, end
	}
	if line[end] == 'j' || line[end] == 'J' {
		return LiteralImaginary, end + 1
	}
	return kind, end
}

var (
	singleOps = map[byte]Kind{
		'+': Add, '-': Subtract, '*': Multiply, '@': MatMultiply, '/': Divide, '%': Mod,
		'&': BitwiseAnd, '|': BitwiseOr, '^': ExclusiveOr, '~': Twiddle,
		'<': LessThan, '>': GreaterThan, '=': Assign,
	}
	equalOps = map[byte]Kind{
		'+': AddEqual, '-': SubtractEqual, '*': MultiplyEqual, '@': MatMultiplyEqual,
		'/': DivideEqual, '%': ModEqual, '&': BitwiseAndEqual, '|': BitwiseOrEqual,
		'^': ExclusiveOrEqual, '=': Equals, '!': NotEquals, '<': LessThanOrEqual, '>': GreaterThanOrEqual,
	}
	doubledOps = map[byte]Kind{
		'*': Power, '/': FloorDivide, '<': LeftShift, '>': RightShift,
	}
	doubledEqualOps = map[byte]Kind{
		'*': PowerEqual, '/': FloorDivideEqual, '<': LeftShiftEqual, '>': RightShiftEqual,
	}
)

func readOperator(line string, start int) (Kind, int) {
	c1 := line[start]
	var c2, c3 byte
	if start+1 < len(line) {
		c2 = line[start+1]
	}
	if start+2 < len(line) {
		c3 = line[start+2]
	}

	switch {
	case c1 == '<' && c2 == '>':
		return LessThanGreaterThan, 2
	case c1 == '-' && c2 == '>':
		return Arrow, 2
	case c2 == '=':
		if k, ok := equalOps[c1]; ok {
			return k, 2
		}
	case c2 == c1 && c3 == '=':
		if k, ok := doubledEqualOps[c1]; ok {
			return k, 3
		}
		if k, ok := doubledOps[c1]; ok {
			return k, 2
		}
	case c2 == c1:
		if k, ok := doubledOps[c1]; ok {
			return k, 2
		}
	}
	if k, ok := singleOps[c1]; ok {
		return k, 1
	}
	return Error, 1
}
