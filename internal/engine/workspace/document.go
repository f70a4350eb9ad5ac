// Package workspace holds the documents the analyzer reads and the file
// contexts that group them into packages.
package workspace

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	domainerrors "pyanalyzer/internal/core/errors"
)

// SourceDocument is a readable unit of source. The moniker is a stable
// identity; a changed document is replaced, never mutated.
type SourceDocument interface {
	Moniker() string
	Read(ctx context.Context) (io.ReadCloser, error)
}

// FileDocument reads its content from disk on every Read.
type FileDocument struct {
	path string
}

func NewFileDocument(path string) *FileDocument {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return &FileDocument{path: filepath.Clean(path)}
}

func (d *FileDocument) Moniker() string { return d.path }

func (d *FileDocument) Read(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, domainerrors.Cancelled(err)
	}
	f, err := os.Open(d.path)
	if err != nil {
		return nil, domainerrors.AddContext(
			domainerrors.Wrap(err, domainerrors.CodeIO, "open source document"),
			domainerrors.CtxPath, d.path,
		)
	}
	return f, nil
}

// StringDocument is an in-memory document, such as an unsaved buffer.
type StringDocument struct {
	moniker string
	text    string
}

func NewStringDocument(moniker, text string) *StringDocument {
	return &StringDocument{moniker: moniker, text: text}
}

func (d *StringDocument) Moniker() string { return d.moniker }
func (d *StringDocument) Text() string    { return d.text }

func (d *StringDocument) Read(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, domainerrors.Cancelled(err)
	}
	return io.NopCloser(strings.NewReader(d.text)), nil
}

// SourcelessDocument stands in for modules without Python source, such as
// builtins.
type SourcelessDocument struct {
	moniker string
}

func NewSourcelessDocument(moniker string) *SourcelessDocument {
	return &SourcelessDocument{moniker: moniker}
}

func (d *SourcelessDocument) Moniker() string { return d.moniker }

func (d *SourcelessDocument) Read(context.Context) (io.ReadCloser, error) {
	return nil, domainerrors.Wrap(domainerrors.ErrNotSupported, domainerrors.CodeNotSupported, d.moniker+" has no source")
}

// IsSourceless reports whether doc can never be read.
func IsSourceless(doc SourceDocument) bool {
	_, ok := doc.(*SourcelessDocument)
	return ok
}
