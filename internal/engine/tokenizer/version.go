package tokenizer

import (
	"fmt"
	"strconv"
	"strings"

	domainerrors "pyanalyzer/internal/core/errors"
)

// LanguageVersion is a Python major/minor pair packed as major*10+minor.
type LanguageVersion int

const (
	V27 LanguageVersion = 27
	V30 LanguageVersion = 30
	V31 LanguageVersion = 31
	V32 LanguageVersion = 32
	V33 LanguageVersion = 33
	V34 LanguageVersion = 34
	V35 LanguageVersion = 35
	V36 LanguageVersion = 36
	V37 LanguageVersion = 37
)

// DefaultVersion is used when an interpreter does not report one.
const DefaultVersion = V36

func (v LanguageVersion) Is2x() bool { return v >= 20 && v < 30 }
func (v LanguageVersion) Is3x() bool { return v >= 30 && v < 40 }

func (v LanguageVersion) String() string {
	return fmt.Sprintf("%d.%d", int(v)/10, int(v)%10)
}

// ParseVersion accepts "major.minor", optionally followed by a patch level.
func ParseVersion(s string) (LanguageVersion, error) {
	fields := strings.SplitN(strings.TrimSpace(s), ".", 3)
	if len(fields) < 2 {
		return 0, domainerrors.New(domainerrors.CodeValidationError, "invalid language version "+strconv.Quote(s))
	}
	major, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, domainerrors.Wrap(err, domainerrors.CodeValidationError, "invalid major version")
	}
	minor, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, domainerrors.Wrap(err, domainerrors.CodeValidationError, "invalid minor version")
	}
	if major < 2 || major > 3 || minor < 0 || minor > 9 {
		return 0, domainerrors.New(domainerrors.CodeNotSupported, "unsupported language version "+s)
	}
	return LanguageVersion(major*10 + minor), nil
}
