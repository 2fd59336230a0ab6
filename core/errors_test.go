package core

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestMapErrorNil(t *testing.T) {
	if MapError(nil) != nil {
		t.Fatalf("expected nil mapping for nil error")
	}
}

func TestMapErrorSentinels(t *testing.T) {
	cases := []struct {
		err      error
		category goerrors.Category
		textCode string
		status   int
	}{
		{ErrEventNotFound, goerrors.CategoryNotFound, BillingErrorEventNotFound, http.StatusNotFound},
		{ErrOrderNotFound, goerrors.CategoryNotFound, BillingErrorRecordNotFound, http.StatusNotFound},
		{ErrSubscriptionNotFound, goerrors.CategoryNotFound, BillingErrorRecordNotFound, http.StatusNotFound},
		{ErrEventTerminal, goerrors.CategoryConflict, BillingErrorEventTerminal, http.StatusConflict},
	}
	for _, tc := range cases {
		mapped := MapError(fmt.Errorf("lookup: %w", tc.err))
		if mapped == nil {
			t.Fatalf("expected mapping for %v", tc.err)
		}
		if mapped.Category != tc.category {
			t.Fatalf("%v: expected category %q, got %q", tc.err, tc.category, mapped.Category)
		}
		if mapped.TextCode != tc.textCode {
			t.Fatalf("%v: expected text code %q, got %q", tc.err, tc.textCode, mapped.TextCode)
		}
		if mapped.Code != tc.status {
			t.Fatalf("%v: expected status %d, got %d", tc.err, tc.status, mapped.Code)
		}
	}
}

func TestMapErrorMessageHeuristics(t *testing.T) {
	mapped := MapError(errors.New("sqlstore: event store is not configured"))
	if mapped.TextCode != BillingErrorStoreUnavailable {
		t.Fatalf("expected store unavailable code, got %q", mapped.TextCode)
	}
	if mapped.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", mapped.Code)
	}

	mapped = MapError(errors.New("reconcile: provider and event id are required"))
	if mapped.TextCode != BillingErrorBadInput {
		t.Fatalf("expected bad input code, got %q", mapped.TextCode)
	}
	if mapped.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", mapped.Code)
	}
}

func TestMapErrorPreservesExistingEnvelope(t *testing.T) {
	original := goerrors.New("explicit", goerrors.CategoryConflict).
		WithTextCode("BILLING_CUSTOM").
		WithCode(http.StatusConflict)

	mapped := MapError(fmt.Errorf("wrap: %w", original))
	if mapped.TextCode != "BILLING_CUSTOM" {
		t.Fatalf("expected existing text code preserved, got %q", mapped.TextCode)
	}
	if mapped.Category != goerrors.CategoryConflict {
		t.Fatalf("expected existing category preserved, got %q", mapped.Category)
	}
}

func TestMapErrorFillsEnvelopeDefaults(t *testing.T) {
	sparse := goerrors.New("sparse failure", goerrors.CategoryNotFound)
	mapped := MapError(sparse)
	if mapped.Code != http.StatusNotFound {
		t.Fatalf("expected http status filled from category, got %d", mapped.Code)
	}
	if mapped.TextCode != BillingErrorRecordNotFound {
		t.Fatalf("expected default text code for category, got %q", mapped.TextCode)
	}
}
