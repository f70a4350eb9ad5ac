package tokenizer

import (
	"bytes"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"

	domainerrors "pyanalyzer/internal/core/errors"
)

const (
	EncodingUTF8    = "utf-8"
	EncodingUTF8BOM = "utf-8-sig"
)

var (
	utf8BOM     = []byte{0xEF, 0xBB, 0xBF}
	codingRegex = regexp.MustCompile(`coding[:=]\s*([-\w.]+)`)
)

// pythonCodecAliases maps spellings accepted by Python's codec registry to
// names the x/text indexes recognise.
var pythonCodecAliases = map[string]string{
	"utf8":    EncodingUTF8,
	"utf-8":   EncodingUTF8,
	"latin-1": "iso-8859-1",
	"latin1":  "iso-8859-1",
	"l1":      "iso-8859-1",
	"cp1252":  "windows-1252",
	"ascii":   "us-ascii",
}

// DetectEncoding inspects the first two lines of raw source for a BOM or a
// coding declaration. It returns the declared name, or utf-8.
func DetectEncoding(head []byte) string {
	if bytes.HasPrefix(head, utf8BOM) {
		return EncodingUTF8BOM
	}
	rest := head
	for line := 0; line < 2 && len(rest) > 0; line++ {
		text, next := rest, []byte(nil)
		if end := bytes.IndexAny(rest, "\r\n"); end >= 0 {
			text, next = rest[:end], rest[end+1:]
			if rest[end] == '\r' && len(next) > 0 && next[0] == '\n' {
				next = next[1:]
			}
		}
		if m := codingRegex.FindSubmatch(text); m != nil {
			return normalizeCodec(string(m[1]))
		}
		rest = next
	}
	return EncodingUTF8
}

func normalizeCodec(name string) string {
	n := strings.ToLower(strings.ReplaceAll(name, "_", "-"))
	if alias, ok := pythonCodecAliases[n]; ok {
		return alias
	}
	if strings.HasPrefix(n, "utf-8-") {
		return EncodingUTF8
	}
	return n
}

func lookupEncoding(name string) (encoding.Encoding, bool) {
	if enc, err := ianaindex.IANA.Encoding(name); err == nil && enc != nil {
		return enc, true
	}
	if enc, err := htmlindex.Get(name); err == nil && enc != nil {
		return enc, true
	}
	return nil, false
}

// DecodeSource reads all of r and returns UTF-8 text plus the name of the
// encoding that was applied. Unknown declared encodings fall back to utf-8.
func DecodeSource(r io.Reader) (string, string, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", "", domainerrors.Wrap(err, domainerrors.CodeIO, "read source")
	}
	name := DetectEncoding(raw)
	switch name {
	case EncodingUTF8BOM:
		return string(raw[len(utf8BOM):]), name, nil
	case EncodingUTF8:
		return string(raw), name, nil
	}
	enc, ok := lookupEncoding(name)
	if !ok {
		return string(raw), EncodingUTF8, nil
	}
	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", name, domainerrors.Wrap(err, domainerrors.CodeValidationError, "decode source as "+name)
	}
	if !utf8.Valid(decoded) {
		return "", name, domainerrors.New(domainerrors.CodeValidationError, "decoded source is not valid UTF-8")
	}
	return string(decoded), name, nil
}
