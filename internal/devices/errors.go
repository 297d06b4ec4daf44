package devices

import (
	"errors"
	"fmt"
)

// Error is a device-layer error carrying a stable code.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Error codes
const (
	ErrCodeDeviceNotFound = "DEVICE_NOT_FOUND"
	ErrCodeDetectFailed   = "DETECT_FAILED"
	ErrCodeInvalidProfile = "INVALID_PROFILE"
	ErrCodeApplyFailed    = "APPLY_FAILED"
	ErrCodeInvalidCommand = "INVALID_COMMAND"
)

// NewError creates a new device error.
func NewError(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// HasCode reports whether err is a device Error with the given code.
func HasCode(err error, code string) bool {
	var de *Error
	if !errors.As(err, &de) {
		return false
	}
	return de.Code == code
}
