package core

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestMapError_AssignsStableCodes(t *testing.T) {
	mapped := MapError(stderrors.New("inbound: slack signature mismatch"))
	if mapped.TextCode != ErrorUnauthorized {
		t.Fatalf("expected unauthorized text code, got %q", mapped.TextCode)
	}
	if mapped.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 code, got %d", mapped.Code)
	}

	mapped = MapError(stderrors.New("challenge is required"))
	if mapped.TextCode != ErrorBadInput {
		t.Fatalf("expected bad input code, got %q", mapped.TextCode)
	}
	if mapped.Category != goerrors.CategoryBadInput {
		t.Fatalf("expected bad input category, got %q", mapped.Category)
	}

	mapped = MapError(fmt.Errorf("backend call: %w", context.DeadlineExceeded))
	if mapped.TextCode != ErrorBackendFailed {
		t.Fatalf("expected backend failed code, got %q", mapped.TextCode)
	}
}

func TestMapError_PreservesRichErrors(t *testing.T) {
	source := NewError("dispatch: queue full", goerrors.CategoryOperation, ErrorDispatchFailed, map[string]any{
		"task_id": "Ev1",
	})
	wrapped := fmt.Errorf("receiver: %w", source)

	mapped := MapError(wrapped)
	if mapped.TextCode != ErrorDispatchFailed {
		t.Fatalf("expected dispatch failed code, got %q", mapped.TextCode)
	}
	if mapped.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 code, got %d", mapped.Code)
	}
	if !HasTextCode(wrapped, ErrorDispatchFailed) {
		t.Fatalf("expected wrapped error to carry text code")
	}
	if HasTextCode(stderrors.New("plain"), ErrorDispatchFailed) {
		t.Fatalf("expected plain error to carry no text code")
	}
}

func TestMapError_Nil(t *testing.T) {
	if MapError(nil) != nil {
		t.Fatalf("expected nil mapping for nil error")
	}
}
