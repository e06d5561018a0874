package backend

import (
	"context"
	"errors"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-slack-dispatch/core"
)

func backendFailed(source error, message string, metadata map[string]any) error {
	if errors.Is(source, context.DeadlineExceeded) {
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata["timeout"] = true
	}
	return core.WrapError(source, goerrors.CategoryOperation, message, core.ErrorBackendFailed, metadata)
}

func backendConfigInvalid(message string, metadata map[string]any) error {
	return core.NewError(message, goerrors.CategoryValidation, core.ErrorConfigInvalid, metadata)
}
