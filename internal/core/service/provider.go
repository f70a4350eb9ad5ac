package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	domainerrors "pyanalyzer/internal/core/errors"
	"pyanalyzer/internal/engine/pathindex"
	"pyanalyzer/internal/engine/workspace"
)

const defaultInterpreterKey = "default"

// ServiceProvider hands out one LanguageService per interpreter. It owns one
// reference to each service it created; every Get adds another that the
// caller must Close.
type ServiceProvider struct {
	mu       sync.Mutex
	services *pathindex.Index[*LanguageService]
	closed   bool
}

func NewServiceProvider() *ServiceProvider {
	return &ServiceProvider{services: pathindex.New[*LanguageService]("")}
}

func interpreterKey(path string) string {
	if path == "" {
		return defaultInterpreterKey
	}
	return path
}

// Get returns the service for opts.InterpreterPath, creating it on first use.
// A new service receives the interpreter's library contexts from fp, which
// may be nil.
func (p *ServiceProvider) Get(ctx context.Context, opts Options, fp *workspace.Provider) (*LanguageService, error) {
	if err := ctx.Err(); err != nil {
		return nil, domainerrors.Cancelled(err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, domainerrors.Disposed("service provider")
	}

	key := interpreterKey(opts.InterpreterPath)
	if svc, ok := p.services.TryGet(key); ok {
		if svc.AddReference() {
			return svc, nil
		}
		p.services.Remove(key)
	}

	svc := New(opts)
	if fp != nil && len(opts.SysPath) > 0 {
		contexts, err := fp.ContextsForInterpreter(ctx, opts.SysPath)
		if err != nil {
			_ = svc.Close()
			return nil, err
		}
		for _, fc := range contexts {
			if err := svc.AddFileContext(ctx, fc); err != nil {
				_ = svc.Close()
				return nil, err
			}
		}
	}
	if _, err := p.services.Add(key, svc); err != nil {
		_ = svc.Close()
		return nil, err
	}
	svc.AddReference()
	slog.Debug("language service created", "interpreter", key, "version", svc.Version().String())
	return svc, nil
}

// Close releases the provider's reference to every service.
func (p *ServiceProvider) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	services := p.services.Values()
	p.services.Clear()
	p.mu.Unlock()

	var errs []error
	for _, svc := range services {
		if err := svc.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
