package capture

import "errors"

// Workflow errors. Messages are shown to the operator as-is.
var (
	ErrEmptyOTP           = errors.New("Please enter an OTP")
	ErrInvalidMode        = errors.New("Please select a capture mode")
	ErrCaptureNotRequired = errors.New("capture type is not required for this mode")
	ErrCapturesIncomplete = errors.New("Please capture all required images")
	ErrNoCapture          = errors.New("no capture recorded for this type")
	ErrInvalidTransition  = errors.New("action not available in the current step")
	ErrBusy               = errors.New("a request is already in progress")
	ErrStartFailed        = errors.New("Failed to start session")
	ErrSetModeFailed      = errors.New("Failed to set capture mode")
	ErrCompleteFailed     = errors.New("Failed to complete session")
)

// Receipt errors
var (
	ErrReceiptNotFound = errors.New("receipt not found")
	ErrNoArchive       = errors.New("no receipt archive configured")
)
