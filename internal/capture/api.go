package capture

import "context"

// API is the part of the Remote Access Service the workflow drives.
// Every call is fire-once: implementations must not retry.
type API interface {
	// StartSession validates an OTP and opens a session for it.
	StartSession(ctx context.Context, otp string) (*Session, error)

	// SetMode assigns the capture mode and returns the capture types the
	// server will accept for the session.
	SetMode(ctx context.Context, sessionID string, mode Mode) ([]CaptureType, error)

	// UploadCapture sends one image for the given capture type.
	UploadCapture(ctx context.Context, sessionID string, captureType CaptureType, upload Upload) error

	// CompleteSession closes the session and returns its summary.
	CompleteSession(ctx context.Context, sessionID string) (*CompletionSummary, error)
}
