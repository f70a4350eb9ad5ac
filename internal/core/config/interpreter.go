package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/muhammadmuzzammil1998/jsonc"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	domainerrors "pyanalyzer/internal/core/errors"
	"pyanalyzer/internal/engine/tokenizer"
)

//go:embed interpreter.schema.json
var interpreterSchemaJSON []byte

const interpreterSchemaURL = "mem://schemas/interpreter.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func interpreterSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(interpreterSchemaJSON))
		if err != nil {
			schemaErr = fmt.Errorf("decode interpreter schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(interpreterSchemaURL, doc); err != nil {
			schemaErr = fmt.Errorf("register interpreter schema: %w", err)
			return
		}
		schema, schemaErr = c.Compile(interpreterSchemaURL)
	})
	return schema, schemaErr
}

// InterpreterManifest describes an installed Python interpreter. SysPath
// entries are library roots searched without a package prefix.
type InterpreterManifest struct {
	ID              string   `json:"id"`
	Description     string   `json:"description,omitempty"`
	InterpreterPath string   `json:"interpreter_path,omitempty"`
	PrefixPath      string   `json:"prefix_path,omitempty"`
	Version         string   `json:"version"`
	Architecture    string   `json:"architecture,omitempty"`
	SysPath         []string `json:"sys_path,omitempty"`
}

// LanguageVersion parses Version; it has already passed the schema pattern.
func (m *InterpreterManifest) LanguageVersion() (tokenizer.LanguageVersion, error) {
	return tokenizer.ParseVersion(m.Version)
}

// LoadInterpreterManifest reads a JSONC manifest, checks it against the
// embedded schema and makes relative paths absolute from the manifest's
// directory.
func LoadInterpreterManifest(path string) (*InterpreterManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domainerrors.AddContext(
			domainerrors.Wrap(err, domainerrors.CodeIO, "read interpreter manifest"), domainerrors.CtxPath, path)
	}
	m, err := ParseInterpreterManifest(data)
	if err != nil {
		return nil, domainerrors.AddContext(err, domainerrors.CtxPath, path)
	}

	base := filepath.Dir(path)
	if m.InterpreterPath != "" {
		m.InterpreterPath = ResolveRelative(base, m.InterpreterPath)
	}
	if m.PrefixPath != "" {
		m.PrefixPath = ResolveRelative(base, m.PrefixPath)
	}
	for i, p := range m.SysPath {
		m.SysPath[i] = ResolveRelative(base, p)
	}
	return m, nil
}

func ParseInterpreterManifest(data []byte) (*InterpreterManifest, error) {
	clean := jsonc.ToJSON(data)

	var instance any
	if err := json.Unmarshal(clean, &instance); err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeValidationError, "decode interpreter manifest")
	}
	s, err := interpreterSchema()
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "compile interpreter schema")
	}
	if err := s.Validate(instance); err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeValidationError, "interpreter manifest invalid")
	}

	var m InterpreterManifest
	if err := json.Unmarshal(clean, &m); err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeValidationError, "decode interpreter manifest")
	}
	if _, err := m.LanguageVersion(); err != nil {
		return nil, err
	}
	return &m, nil
}
