package capture

import (
	"io"
	"time"
)

// Mode determines which identification documents a visitor must present.
type Mode string

const (
	ModePedestrian Mode = "pedestrian"
	ModeVehicle    Mode = "vehicle"
)

// CaptureType identifies the kind of document a single photo shows.
type CaptureType string

const (
	CapturePerson  CaptureType = "person"
	CaptureVehicle CaptureType = "vehicle"
)

// ResidentInfo describes the resident who issued the visitor's OTP.
type ResidentInfo struct {
	Name       string `json:"name"`
	UnitNumber string `json:"unitNumber"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
}

// Session is one visitor check-in transaction as created by the
// Remote Access Service when it accepts an OTP.
type Session struct {
	ID       string       `json:"sessionId"`
	Resident ResidentInfo `json:"residentInfo"`
}

// DemoOTP is a sample OTP advertised by a backend running in demo mode.
type DemoOTP struct {
	OTP      string `json:"otp"`
	Resident string `json:"resident"`
	Unit     string `json:"unit"`
	Type     string `json:"type"`
}

// HealthInfo is the subset of the health response the terminal consumes.
type HealthInfo struct {
	DemoMode bool      `json:"demoMode"`
	DemoOTPs []DemoOTP `json:"demoOTPs"`
}

// CaptureDetail is the server's free-form record of one stored capture.
type CaptureDetail map[string]any

// CompletionSummary is returned by the service when a session is completed.
type CompletionSummary struct {
	SessionID     string                        `json:"sessionId"`
	Resident      ResidentInfo                  `json:"residentInfo"`
	Mode          Mode                          `json:"mode"`
	TotalCaptures int                           `json:"totalCaptures"`
	CompletedAt   time.Time                     `json:"completedAt"`
	Captures      map[CaptureType]CaptureDetail `json:"captures"`
}

// ImageRef points at a captured image held in the staging area.
type ImageRef struct {
	ID          string // SHA-256 of the image bytes
	Type        CaptureType
	Size        int64
	ContentType string
	Source      string // where the image came from, for display only
}

// Capture is one locally taken photo bound to a capture type.
type Capture struct {
	Type     CaptureType
	Image    ImageRef
	Uploaded bool
}

// Upload is the payload for a single image upload.
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}
