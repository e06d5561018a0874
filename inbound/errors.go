package inbound

import (
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-slack-dispatch/core"
)

func inboundBadInput(message string, metadata map[string]any) error {
	return core.NewError(message, goerrors.CategoryBadInput, core.ErrorBadInput, metadata)
}

func inboundUnauthorized(source error, metadata map[string]any) error {
	return core.WrapError(source, goerrors.CategoryAuth, "inbound: request verification failed", core.ErrorUnauthorized, metadata)
}

func inboundInternal(message string, metadata map[string]any) error {
	return core.NewError(message, goerrors.CategoryInternal, core.ErrorInternal, metadata)
}

func inboundDispatchFailed(source error, metadata map[string]any) error {
	return core.WrapError(source, goerrors.CategoryOperation, "inbound: deferred dispatch failed", core.ErrorDispatchFailed, metadata)
}
