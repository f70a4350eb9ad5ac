package errors

import (
	"context"
	"errors"
	"testing"
)

func TestDomainError(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		err := New(CodeNotFound, "module not found")
		if err.Error() != "[NOT_FOUND] module not found" {
			t.Errorf("expected [NOT_FOUND] module not found, got %s", err.Error())
		}
	})

	t.Run("Wrap", func(t *testing.T) {
		original := errors.New("original error")
		err := Wrap(original, CodeIO, "read failed")
		expected := "[IO_ERROR] read failed: original error"
		if err.Error() != expected {
			t.Errorf("expected %s, got %s", expected, err.Error())
		}
		if !errors.Is(err, original) {
			t.Error("expected wrapped error to unwrap to original")
		}
	})

	t.Run("IsCode", func(t *testing.T) {
		err := New(CodeValidationError, "invalid input")
		if !IsCode(err, CodeValidationError) {
			t.Error("expected IsCode to return true for CodeValidationError")
		}
		if IsCode(err, CodeNotFound) {
			t.Error("expected IsCode to return false for CodeNotFound")
		}
	})

	t.Run("AddContext", func(t *testing.T) {
		err := AddContext(New(CodeNotFound, "missing"), CtxMoniker, "a.py")
		var de *DomainError
		if !errors.As(err, &de) {
			t.Fatalf("expected DomainError, got %T", err)
		}
		if de.Context[CtxMoniker] != "a.py" {
			t.Errorf("expected moniker context, got %v", de.Context)
		}
	})
}

func TestSentinels(t *testing.T) {
	t.Run("Cancelled", func(t *testing.T) {
		err := Cancelled(context.Canceled)
		if !errors.Is(err, ErrCancelled) {
			t.Error("expected cancelled error to match ErrCancelled")
		}
		if !errors.Is(err, context.Canceled) {
			t.Error("expected cancelled error to match context.Canceled")
		}
		if errors.Is(err, ErrNotReady) {
			t.Error("cancelled must not match ErrNotReady")
		}
	})

	t.Run("Disposed", func(t *testing.T) {
		err := Disposed("language service")
		if !errors.Is(err, ErrDisposed) {
			t.Error("expected disposed error to match ErrDisposed")
		}
		if !IsCode(err, CodeDisposed) {
			t.Error("expected DISPOSED code")
		}
	})

	t.Run("PlainCodeDoesNotMatchOtherDomainErrors", func(t *testing.T) {
		a := New(CodeNotFound, "a")
		b := New(CodeNotFound, "b")
		if errors.Is(a, b) {
			t.Error("non-sentinel domain errors must compare by identity")
		}
	})
}
