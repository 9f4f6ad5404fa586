package script

import (
	"errors"

	lua "github.com/yuin/gopher-lua"
)

// Error is a script-level error surfaced at a native boundary. It carries
// the raised message and, when available, the Lua traceback.
type Error struct {
	Message   string
	Traceback string
}

func (e *Error) Error() string {
	return e.Message
}

// wrapError converts an error returned by a PCall boundary into an *Error.
// Non-Lua errors pass through unchanged.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) {
		msg := apiErr.Object.String()
		if apiErr.Object == lua.LNil && apiErr.Cause != nil {
			msg = apiErr.Cause.Error()
		}
		return &Error{Message: msg, Traceback: apiErr.StackTrace}
	}
	return err
}
