package deferred

import (
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-slack-dispatch/core"
)

var ErrClosed = core.NewError("deferred: dispatcher is closed", goerrors.CategoryOperation, core.ErrorDispatchFailed, nil)

func dispatchFailed(message string, source error, metadata map[string]any) error {
	return core.WrapError(source, goerrors.CategoryOperation, message, core.ErrorDispatchFailed, metadata)
}

func dispatchInternal(message string, metadata map[string]any) error {
	return core.NewError(message, goerrors.CategoryInternal, core.ErrorInternal, metadata)
}
