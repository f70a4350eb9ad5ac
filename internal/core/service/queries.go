package service

import (
	"context"

	"pyanalyzer/internal/engine/analysis"
	"pyanalyzer/internal/engine/ast"
	"pyanalyzer/internal/engine/tokenizer"
)

// Queries take an optional context ID. An empty ID searches every context.
// Each one returns nil without error when the moniker is unknown, and
// schedules analysis for a document that has never been processed.

func (s *LanguageService) GetTokenization(ctx context.Context, contextID, moniker string) (*tokenizer.Tokenization, error) {
	st, err := s.readyState(ctx, contextID, moniker, func(st *AnalysisState) bool {
		return st.Tokenization() != nil
	})
	if err != nil || st == nil {
		return nil, err
	}
	return st.Tokenization(), nil
}

// GetAST returns the parsed module and its syntax errors.
func (s *LanguageService) GetAST(ctx context.Context, contextID, moniker string) (*ast.Module, error) {
	parsed, err := s.GetParsed(ctx, contextID, moniker)
	if err != nil || parsed == nil {
		return nil, err
	}
	return parsed.Module, nil
}

func (s *LanguageService) GetParsed(ctx context.Context, contextID, moniker string) (*ParsedModule, error) {
	st, err := s.readyState(ctx, contextID, moniker, func(st *AnalysisState) bool {
		_, ok := st.Parsed()
		return ok
	})
	if err != nil || st == nil {
		return nil, err
	}
	parsed, ok := st.Parsed()
	if !ok {
		return nil, nil
	}
	return &parsed, nil
}

// GetModuleMembers returns the module's variables directly under localName,
// or its top-level variables when localName is empty.
func (s *LanguageService) GetModuleMembers(ctx context.Context, contextID, moniker, localName string) (map[string]*analysis.Variable, error) {
	st, err := s.readyState(ctx, contextID, moniker, func(st *AnalysisState) bool {
		return st.Variables() != nil
	})
	if err != nil || st == nil {
		return nil, err
	}

	all := make(map[string]*analysis.Variable)
	if st.Sourceless() {
		for name, types := range st.AllTypes() {
			v := analysis.NewVariable(name)
			v.AddTypes(types)
			all[name] = v
		}
	} else if vars := st.Variables(); vars != nil {
		for _, key := range vars.Keys() {
			all[key] = vars.Get(key)
		}
	}
	return analysis.PrefixView(all, memberPrefix(localName), memberExclude), nil
}

// GetModuleMemberTypes is GetModuleMembers with rule-derived types, waiting
// for the rules to finish.
func (s *LanguageService) GetModuleMemberTypes(ctx context.Context, contextID, moniker, localName string) (map[string][]analysis.Value, error) {
	st, err := s.readyState(ctx, contextID, moniker, func(st *AnalysisState) bool {
		_, ok := st.Results()
		return ok
	})
	if err != nil || st == nil {
		return nil, err
	}
	return analysis.PrefixView(st.AllTypes(), memberPrefix(localName), memberExclude), nil
}

// memberExclude drops nested scopes, argument slots and call sites.
const memberExclude = ".#$("

func memberPrefix(localName string) string {
	if localName == "" {
		return ""
	}
	return localName + "."
}

// GetTypesAt returns the types name has at a 1-based position, applying any
// isinstance narrowing that covers it.
func (s *LanguageService) GetTypesAt(ctx context.Context, contextID, moniker string, line, column int, name string) ([]analysis.Value, error) {
	st, err := s.readyState(ctx, contextID, moniker, func(st *AnalysisState) bool {
		_, ok := st.Results()
		return ok && st.Tokenization() != nil
	})
	if err != nil || st == nil {
		return nil, err
	}
	if st.Sourceless() {
		return st.Types(name), nil
	}
	res, _, ok := st.Walk()
	stamp, rok := st.Results()
	tok := st.Tokenization()
	if !ok || !rok || tok == nil {
		return nil, nil
	}

	loc := locationOf(line, column)
	if start := tok.LineStartIndex(line - 1); start >= 0 {
		loc.Index = start + column - 1
	} else {
		loc.Index = -1
	}
	scope := analysis.ScopeAt(res.Scope.WithResults(stamp.Results), res.Narrowings, loc.Index)
	for _, key := range analysis.FindScopeNames(res.Regions, loc, name) {
		if types := scope.Types(key); len(types) > 0 {
			return types, nil
		}
	}
	return nil, nil
}

func locationOf(line, column int) tokenizer.Location {
	return tokenizer.Location{Line: line, Column: column}
}

// WaitForUpdate blocks until the state for moniker changes. It returns
// false when the moniker is unknown.
func (s *LanguageService) WaitForUpdate(ctx context.Context, contextID, moniker string) (bool, error) {
	st, err := s.readyState(ctx, contextID, moniker, func(*AnalysisState) bool { return true })
	if err != nil || st == nil {
		return false, err
	}
	if err := st.WaitForUpdate(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// WaitForUpToDate blocks until every stage of moniker reflects its latest
// document.
func (s *LanguageService) WaitForUpToDate(ctx context.Context, contextID, moniker string) (*AnalysisState, error) {
	return s.readyState(ctx, contextID, moniker, (*AnalysisState).UpToDate)
}
