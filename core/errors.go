package core

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorBadInput          = "DISPATCH_BAD_INPUT"
	ErrorUnauthorized      = "DISPATCH_UNAUTHORIZED"
	ErrorDuplicate         = "DISPATCH_DUPLICATE"
	ErrorDispatchFailed    = "DISPATCH_FAILED"
	ErrorBackendFailed     = "DISPATCH_BACKEND_FAILED"
	ErrorConfigInvalid     = "DISPATCH_CONFIG_INVALID"
	ErrorSecretUnavailable = "DISPATCH_SECRET_UNAVAILABLE"
	ErrorInternal          = "DISPATCH_INTERNAL"
)

// NewError builds a rich error envelope with an HTTP status derived from the
// category.
func NewError(message string, category goerrors.Category, textCode string, metadata map[string]any) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(HTTPStatus(category)).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func WrapError(source error, category goerrors.Category, message, textCode string, metadata map[string]any) *goerrors.Error {
	if source == nil {
		return NewError(message, category, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(HTTPStatus(category)).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// MapError normalizes any error into a dispatch envelope.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureEnvelope(richErr)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ensureEnvelope(goerrors.New(err.Error(), goerrors.CategoryOperation).WithTextCode(ErrorBackendFailed))
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "signature"), strings.Contains(msg, "unauthorized"):
		return ensureEnvelope(goerrors.New(err.Error(), goerrors.CategoryAuth).WithTextCode(ErrorUnauthorized))
	case strings.Contains(msg, "secret") && strings.Contains(msg, "not found"):
		return ensureEnvelope(goerrors.New(err.Error(), goerrors.CategoryNotFound).WithTextCode(ErrorSecretUnavailable))
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "malformed"):
		return ensureEnvelope(goerrors.New(err.Error(), goerrors.CategoryBadInput).WithTextCode(ErrorBadInput))
	}

	return ensureEnvelope(goerrors.MapToError(err, goerrors.DefaultErrorMappers()))
}

// HasTextCode reports whether err carries the given dispatch text code.
func HasTextCode(err error, textCode string) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr == nil {
		return false
	}
	return richErr.TextCode == textCode
}

func ensureEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = HTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorUnauthorized
	case goerrors.CategoryConflict:
		return ErrorDuplicate
	case goerrors.CategoryNotFound:
		return ErrorSecretUnavailable
	case goerrors.CategoryOperation:
		return ErrorDispatchFailed
	default:
		return ErrorInternal
	}
}

func HTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
