package tokenizer

// Kind is the fine-grained token type produced by the tokenizer.
type Kind uint16

const (
	Unknown Kind = iota
	EndOfFile
	NewLine
	IgnoredNewLine
	ExplicitLineJoin
	Whitespace
	SignificantWhitespace
	Comment
	Error

	Name

	LiteralDecimal
	LiteralHex
	LiteralOctal
	LiteralBinary
	LiteralFloat
	LiteralImaginary
	LiteralString

	LeftSingleQuote
	RightSingleQuote
	LeftDoubleQuote
	RightDoubleQuote
	LeftSingleTripleQuote
	RightSingleTripleQuote
	LeftDoubleTripleQuote
	RightDoubleTripleQuote

	LeftParenthesis
	RightParenthesis
	LeftBracket
	RightBracket
	LeftBrace
	RightBrace

	Comma
	Colon
	SemiColon
	Dot
	Ellipsis
	Arrow

	Add
	AddEqual
	Subtract
	SubtractEqual
	Power
	PowerEqual
	Multiply
	MultiplyEqual
	MatMultiply
	MatMultiplyEqual
	FloorDivide
	FloorDivideEqual
	Divide
	DivideEqual
	Mod
	ModEqual
	LeftShift
	LeftShiftEqual
	RightShift
	RightShiftEqual
	BitwiseAnd
	BitwiseAndEqual
	BitwiseOr
	BitwiseOrEqual
	ExclusiveOr
	ExclusiveOrEqual
	Twiddle
	LessThan
	GreaterThan
	LessThanOrEqual
	GreaterThanOrEqual
	Equals
	NotEquals
	LessThanGreaterThan
	Assign

	KeywordAnd
	KeywordAs
	KeywordAssert
	KeywordAsync
	KeywordAwait
	KeywordBreak
	KeywordClass
	KeywordContinue
	KeywordDef
	KeywordDel
	KeywordElseIf
	KeywordElse
	KeywordExcept
	KeywordExec
	KeywordFalse
	KeywordFinally
	KeywordFor
	KeywordFrom
	KeywordGlobal
	KeywordIf
	KeywordImport
	KeywordIn
	KeywordIs
	KeywordLambda
	KeywordNone
	KeywordNonlocal
	KeywordNot
	KeywordOr
	KeywordPass
	KeywordPrint
	KeywordRaise
	KeywordReturn
	KeywordTrue
	KeywordTry
	KeywordWhile
	KeywordWith
	KeywordYield

	kindCount
)

var kindNames = [kindCount]string{
	Unknown: "Unknown", EndOfFile: "EndOfFile", NewLine: "NewLine", IgnoredNewLine: "IgnoredNewLine",
	ExplicitLineJoin: "ExplicitLineJoin", Whitespace: "Whitespace", SignificantWhitespace: "SignificantWhitespace",
	Comment: "Comment", Error: "Error", Name: "Name",
	LiteralDecimal: "LiteralDecimal", LiteralHex: "LiteralHex", LiteralOctal: "LiteralOctal",
	LiteralBinary: "LiteralBinary", LiteralFloat: "LiteralFloat", LiteralImaginary: "LiteralImaginary",
	LiteralString: "LiteralString",
	LeftSingleQuote: "LeftSingleQuote", RightSingleQuote: "RightSingleQuote",
	LeftDoubleQuote: "LeftDoubleQuote", RightDoubleQuote: "RightDoubleQuote",
	LeftSingleTripleQuote: "LeftSingleTripleQuote", RightSingleTripleQuote: "RightSingleTripleQuote",
	LeftDoubleTripleQuote: "LeftDoubleTripleQuote", RightDoubleTripleQuote: "RightDoubleTripleQuote",
	LeftParenthesis: "(", RightParenthesis: ")", LeftBracket: "[", RightBracket: "]", LeftBrace: "{", RightBrace: "}",
	Comma: ",", Colon: ":", SemiColon: ";", Dot: ".", Ellipsis: "...", Arrow: "->",
	Add: "+", AddEqual: "+=", Subtract: "-", SubtractEqual: "-=", Power: "**", PowerEqual: "**=",
	Multiply: "*", MultiplyEqual: "*=", MatMultiply: "@", MatMultiplyEqual: "@=",
	FloorDivide: "//", FloorDivideEqual: "//=", Divide: "/", DivideEqual: "/=", Mod: "%", ModEqual: "%=",
	LeftShift: "<<", LeftShiftEqual: "<<=", RightShift: ">>", RightShiftEqual: ">>=",
	BitwiseAnd: "&", BitwiseAndEqual: "&=", BitwiseOr: "|", BitwiseOrEqual: "|=",
	ExclusiveOr: "^", ExclusiveOrEqual: "^=", Twiddle: "~",
	LessThan: "<", GreaterThan: ">", LessThanOrEqual: "<=", GreaterThanOrEqual: ">=",
	Equals: "==", NotEquals: "!=", LessThanGreaterThan: "<>", Assign: "=",
	KeywordAnd: "and", KeywordAs: "as", KeywordAssert: "assert", KeywordAsync: "async", KeywordAwait: "await",
	KeywordBreak: "break", KeywordClass: "class", KeywordContinue: "continue", KeywordDef: "def", KeywordDel: "del",
	KeywordElseIf: "elif", KeywordElse: "else", KeywordExcept: "except", KeywordExec: "exec",
	KeywordFalse: "False", KeywordFinally: "finally", KeywordFor: "for", KeywordFrom: "from",
	KeywordGlobal: "global", KeywordIf: "if", KeywordImport: "import", KeywordIn: "in", KeywordIs: "is",
	KeywordLambda: "lambda", KeywordNone: "None", KeywordNonlocal: "nonlocal", KeywordNot: "not",
	KeywordOr: "or", KeywordPass: "pass", KeywordPrint: "print", KeywordRaise: "raise",
	KeywordReturn: "return", KeywordTrue: "True", KeywordTry: "try", KeywordWhile: "while",
	KeywordWith: "with", KeywordYield: "yield",
}

func (k Kind) String() string {
	if k < kindCount && kindNames[k] != "" {
		return kindNames[k]
	}
	return "Kind(?)"
}

// IsKeyword reports whether k is a reserved word.
func (k Kind) IsKeyword() bool {
	return k >= KeywordAnd && k <= KeywordYield
}

// IsOperator reports whether k is an arithmetic, bitwise, comparison or
// assignment operator.
func (k Kind) IsOperator() bool {
	return k >= Add && k <= Assign
}

// IsAugmentedAssign reports whether k is one of the "op=" forms.
func (k Kind) IsAugmentedAssign() bool {
	switch k {
	case AddEqual, SubtractEqual, PowerEqual, MultiplyEqual, MatMultiplyEqual, FloorDivideEqual,
		DivideEqual, ModEqual, LeftShiftEqual, RightShiftEqual, BitwiseAndEqual, BitwiseOrEqual,
		ExclusiveOrEqual:
		return true
	}
	return false
}

// GroupEnding returns the kind that closes a group opened by k, or Unknown.
func (k Kind) GroupEnding() Kind {
	switch k {
	case LeftParenthesis:
		return RightParenthesis
	case LeftBracket:
		return RightBracket
	case LeftBrace:
		return RightBrace
	case LeftSingleQuote:
		return RightSingleQuote
	case LeftDoubleQuote:
		return RightDoubleQuote
	case LeftSingleTripleQuote:
		return RightSingleTripleQuote
	case LeftDoubleTripleQuote:
		return RightDoubleTripleQuote
	}
	return Unknown
}

func (k Kind) isQuoteEnd() bool {
	return k == RightSingleQuote || k == RightDoubleQuote || k == RightSingleTripleQuote || k == RightDoubleTripleQuote
}

// Category groups token kinds into the coarse classes used by consumers
// such as classifiers.
type Category uint8

const (
	CategoryNone Category = iota
	CategoryEndOfStream
	CategoryEndOfLine
	CategoryIgnoreEndOfLine
	CategoryWhiteSpace
	CategoryComment
	CategoryDecimalIntegerLiteral
	CategoryOctalIntegerLiteral
	CategoryHexadecimalIntegerLiteral
	CategoryBinaryIntegerLiteral
	CategoryFloatingPointLiteral
	CategoryImaginaryLiteral
	CategoryStringLiteral
	CategoryOperator
	CategoryComma
	CategoryPeriod
	CategorySemiColon
	CategoryColon
	CategoryIdentifier
	CategoryOpenGrouping
	CategoryCloseGrouping
	CategoryOpenQuote
	CategoryCloseQuote
	CategoryError
)

var categoryNames = []string{
	"None", "EndOfStream", "EndOfLine", "IgnoreEndOfLine", "WhiteSpace", "Comment",
	"DecimalIntegerLiteral", "OctalIntegerLiteral", "HexadecimalIntegerLiteral", "BinaryIntegerLiteral",
	"FloatingPointLiteral", "ImaginaryLiteral", "StringLiteral", "Operator", "Comma", "Period",
	"SemiColon", "Colon", "Identifier", "OpenGrouping", "CloseGrouping", "OpenQuote", "CloseQuote", "Error",
}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return "Category(?)"
}

func (k Kind) Category() Category {
	switch {
	case k.IsKeyword() || k == Name:
		return CategoryIdentifier
	case k.IsOperator() || k == Arrow || k == Ellipsis:
		return CategoryOperator
	}
	switch k {
	case EndOfFile:
		return CategoryEndOfStream
	case NewLine:
		return CategoryEndOfLine
	case IgnoredNewLine, ExplicitLineJoin:
		return CategoryIgnoreEndOfLine
	case Whitespace, SignificantWhitespace:
		return CategoryWhiteSpace
	case Comment:
		return CategoryComment
	case LiteralDecimal:
		return CategoryDecimalIntegerLiteral
	case LiteralOctal:
		return CategoryOctalIntegerLiteral
	case LiteralHex:
		return CategoryHexadecimalIntegerLiteral
	case LiteralBinary:
		return CategoryBinaryIntegerLiteral
	case LiteralFloat:
		return CategoryFloatingPointLiteral
	case LiteralImaginary:
		return CategoryImaginaryLiteral
	case LiteralString:
		return CategoryStringLiteral
	case Comma:
		return CategoryComma
	case Dot:
		return CategoryPeriod
	case SemiColon:
		return CategorySemiColon
	case Colon:
		return CategoryColon
	case LeftParenthesis, LeftBracket, LeftBrace:
		return CategoryOpenGrouping
	case RightParenthesis, RightBracket, RightBrace:
		return CategoryCloseGrouping
	case LeftSingleQuote, LeftDoubleQuote, LeftSingleTripleQuote, LeftDoubleTripleQuote:
		return CategoryOpenQuote
	case RightSingleQuote, RightDoubleQuote, RightSingleTripleQuote, RightDoubleTripleQuote:
		return CategoryCloseQuote
	case Error:
		return CategoryError
	}
	return CategoryNone
}

var keywords = map[string]Kind{
	"and": KeywordAnd, "as": KeywordAs, "assert": KeywordAssert, "break": KeywordBreak,
	"class": KeywordClass, "continue": KeywordContinue, "def": KeywordDef, "del": KeywordDel,
	"elif": KeywordElseIf, "else": KeywordElse, "except": KeywordExcept, "False": KeywordFalse,
	"finally": KeywordFinally, "for": KeywordFor, "from": KeywordFrom, "global": KeywordGlobal,
	"if": KeywordIf, "import": KeywordImport, "in": KeywordIn, "is": KeywordIs,
	"lambda": KeywordLambda, "None": KeywordNone, "not": KeywordNot, "or": KeywordOr,
	"pass": KeywordPass, "raise": KeywordRaise, "return": KeywordReturn, "True": KeywordTrue,
	"try": KeywordTry, "while": KeywordWhile, "with": KeywordWith, "yield": KeywordYield,
}

var keywords2x = map[string]Kind{
	"print": KeywordPrint, "exec": KeywordExec,
}

var keywords3x = map[string]Kind{
	"nonlocal": KeywordNonlocal, "async": KeywordAsync, "await": KeywordAwait,
}

func lookupKeyword(word string, version LanguageVersion) (Kind, bool) {
	if k, ok := keywords[word]; ok {
		return k, true
	}
	if version.Is2x() {
		k, ok := keywords2x[word]
		return k, ok
	}
	k, ok := keywords3x[word]
	return k, ok
}
