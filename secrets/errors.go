package secrets

import (
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-slack-dispatch/core"
)

func secretNotFound(id string) error {
	return core.NewError("secrets: secret not found", goerrors.CategoryNotFound, core.ErrorSecretUnavailable, map[string]any{
		"secret_id": id,
	})
}

func secretUnavailable(source error, message, id string) error {
	return core.WrapError(source, goerrors.CategoryInternal, message, core.ErrorSecretUnavailable, map[string]any{
		"secret_id": id,
	})
}

func secretBadInput(message string, metadata map[string]any) error {
	return core.NewError(message, goerrors.CategoryBadInput, core.ErrorBadInput, metadata)
}
