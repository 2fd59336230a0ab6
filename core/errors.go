package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	BillingErrorBadInput         = "BILLING_BAD_INPUT"
	BillingErrorEventNotFound    = "BILLING_EVENT_NOT_FOUND"
	BillingErrorRecordNotFound   = "BILLING_RECORD_NOT_FOUND"
	BillingErrorEventTerminal    = "BILLING_EVENT_TERMINAL"
	BillingErrorStoreUnavailable = "BILLING_STORE_UNAVAILABLE"
	BillingErrorInternal         = "BILLING_INTERNAL_ERROR"
)

// MapError wraps any pipeline error into the billing error envelope used at
// the command/query boundary.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureBillingErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrEventNotFound):
		return newBillingError(err.Error(), goerrors.CategoryNotFound, BillingErrorEventNotFound)
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrSubscriptionNotFound):
		return newBillingError(err.Error(), goerrors.CategoryNotFound, BillingErrorRecordNotFound)
	case errors.Is(err, ErrEventTerminal):
		return newBillingError(err.Error(), goerrors.CategoryConflict, BillingErrorEventTerminal)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not configured"), strings.Contains(msg, "store is nil"):
		return newBillingError(err.Error(), goerrors.CategoryInternal, BillingErrorStoreUnavailable)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newBillingError(err.Error(), goerrors.CategoryBadInput, BillingErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureBillingErrorEnvelope(mapped)
}

func newBillingError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureBillingErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureBillingErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = billingHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultBillingTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultBillingTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return BillingErrorBadInput
	case goerrors.CategoryNotFound:
		return BillingErrorRecordNotFound
	case goerrors.CategoryConflict:
		return BillingErrorEventTerminal
	default:
		return BillingErrorInternal
	}
}

func billingHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
