package capture

import "io"

// Stager holds captured images between the moment they are taken and the
// moment they are uploaded. Staged content never outlives the capture step:
// the workflow calls Discard when it leaves that step.
type Stager interface {
	// Stage copies the image read from r and returns a reference to it.
	// The image must be a JPEG or PNG no larger than the configured limit.
	Stage(captureType CaptureType, source string, r io.Reader) (ImageRef, error)

	// Open returns a reader for a staged image.
	Open(ref ImageRef) (io.ReadCloser, error)

	// Remove drops a staged image. Removing an unknown image is not an error.
	Remove(ref ImageRef) error

	// Discard drops every staged image.
	Discard() error
}
