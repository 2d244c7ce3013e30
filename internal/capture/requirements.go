package capture

import (
	"fmt"
	"strings"
)

// Info holds the operator-facing description of a capture type.
type Info struct {
	Type        CaptureType
	Title       string
	Description string
}

var captureInfo = map[CaptureType]Info{
	CapturePerson: {
		Type:        CapturePerson,
		Title:       "Person Identification",
		Description: "Capture ID, Passport, or Driver's License",
	},
	CaptureVehicle: {
		Type:        CaptureVehicle,
		Title:       "Vehicle Identification",
		Description: "Capture License Disc or License Plate",
	},
}

// RequiredCaptures returns the capture types a mode requires, in upload order.
// Unknown modes require nothing.
func RequiredCaptures(mode Mode) []CaptureType {
	switch mode {
	case ModePedestrian:
		return []CaptureType{CapturePerson}
	case ModeVehicle:
		return []CaptureType{CapturePerson, CaptureVehicle}
	default:
		return nil
	}
}

// IsRequired reports whether t is part of the requirement set for mode.
func IsRequired(mode Mode, t CaptureType) bool {
	for _, r := range RequiredCaptures(mode) {
		if r == t {
			return true
		}
	}
	return false
}

// CaptureInfo returns the description of t.
func CaptureInfo(t CaptureType) Info {
	if info, ok := captureInfo[t]; ok {
		return info
	}
	return Info{Type: t, Title: string(t)}
}

// ParseMode converts user input into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModePedestrian:
		return ModePedestrian, nil
	case ModeVehicle:
		return ModeVehicle, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// ParseCaptureType converts user input into a CaptureType.
func ParseCaptureType(s string) (CaptureType, error) {
	switch CaptureType(strings.ToLower(strings.TrimSpace(s))) {
	case CapturePerson:
		return CapturePerson, nil
	case CaptureVehicle:
		return CaptureVehicle, nil
	default:
		return "", fmt.Errorf("unknown capture type: %q", s)
	}
}
