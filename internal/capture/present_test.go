package capture_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"seren/internal/capture"
	"seren/internal/testutil"
)

func TestProgressBar(t *testing.T) {
	tests := []struct {
		pct  float64
		want string
	}{
		{0, "[--------------------] 0% Complete"},
		{50, "[##########----------] 50% Complete"},
		{100, "[####################] 100% Complete"},
		{150, "[####################] 150% Complete"},
	}
	for _, tt := range tests {
		if got := capture.ProgressBar(tt.pct); got != tt.want {
			t.Errorf("ProgressBar(%v) = %q, want %q", tt.pct, got, tt.want)
		}
	}
}

func TestTitleMode(t *testing.T) {
	if got := capture.TitleMode(capture.ModePedestrian); got != "Pedestrian" {
		t.Errorf("TitleMode(pedestrian) = %q", got)
	}
	if got := capture.TitleMode(""); got != "" {
		t.Errorf("TitleMode(\"\") = %q", got)
	}
}

func TestFormatTime(t *testing.T) {
	if got := capture.FormatTime(time.Time{}); got != "N/A" {
		t.Errorf("FormatTime(zero) = %q, want N/A", got)
	}
	if got := capture.FormatTime(time.Now()); got == "N/A" {
		t.Error("FormatTime(now) = N/A")
	}
}

// lineWith returns the first line of out containing substr.
func lineWith(out, substr string) string {
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, substr) {
			return line
		}
	}
	return ""
}

func TestWriteSummary(t *testing.T) {
	t.Run("pedestrian", func(t *testing.T) {
		var buf bytes.Buffer
		capture.WriteSummary(&buf, capture.CompletionSummary{
			SessionID:     "S1",
			Resident:      capture.ResidentInfo{Name: "Jane", UnitNumber: "4B"},
			Mode:          capture.ModePedestrian,
			TotalCaptures: 1,
			Captures:      map[capture.CaptureType]capture.CaptureDetail{capture.CapturePerson: {"size": 10.0}},
		})
		out := buf.String()

		checks := map[string]string{
			"Session ID":     "S1",
			"Resident":       "Jane",
			"Unit Number":    "4B",
			"Capture Mode":   "Pedestrian",
			"Total Captures": "1",
			"Completed At":   "N/A",
		}
		for label, value := range checks {
			line := lineWith(out, label)
			if !strings.HasSuffix(line, value) {
				t.Errorf("%s line = %q, want value %q", label, line, value)
			}
		}
		if !strings.HasSuffix(lineWith(out, "Person Identification"), "Completed") {
			t.Errorf("person row missing or not completed:\n%s", out)
		}
		if strings.Contains(out, "Vehicle Identification") {
			t.Errorf("pedestrian summary shows a vehicle row:\n%s", out)
		}
	})

	t.Run("vehicle with missing capture", func(t *testing.T) {
		var buf bytes.Buffer
		capture.WriteSummary(&buf, capture.CompletionSummary{
			SessionID:   "S2",
			Mode:        capture.ModeVehicle,
			CompletedAt: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
			Captures:    map[capture.CaptureType]capture.CaptureDetail{capture.CapturePerson: {}},
		})
		out := buf.String()
		if !strings.HasSuffix(lineWith(out, "Vehicle Identification"), "Pending") {
			t.Errorf("vehicle row should be pending:\n%s", out)
		}
		if strings.HasSuffix(lineWith(out, "Completed At"), "N/A") {
			t.Errorf("completion time should be shown:\n%s", out)
		}
	})
}

func TestWriteSummary_RowsFollowRequirementSet(t *testing.T) {
	all := []capture.CaptureType{capture.CapturePerson, capture.CaptureVehicle}
	for _, mode := range []capture.Mode{capture.ModePedestrian, capture.ModeVehicle, capture.Mode("bicycle")} {
		t.Run(string(mode), func(t *testing.T) {
			var buf bytes.Buffer
			capture.WriteSummary(&buf, capture.CompletionSummary{SessionID: "S3", Mode: mode})
			out := buf.String()
			for _, ct := range all {
				title := capture.CaptureInfo(ct).Title
				shown := strings.Contains(out, title)
				if want := capture.IsRequired(mode, ct); shown != want {
					t.Errorf("%s row shown = %v, want %v:\n%s", title, shown, want, out)
				}
			}
		})
	}
}

func TestWriteCaptureStatus(t *testing.T) {
	wf, _ := newWorkflow(t)
	toCapture(t, wf, capture.ModeVehicle)
	mustCapture(t, wf, capture.CapturePerson, testutil.JPEG("id"))

	var buf bytes.Buffer
	capture.WriteCaptureStatus(&buf, wf)
	out := buf.String()

	if !strings.Contains(out, "50% Complete") {
		t.Errorf("missing progress:\n%s", out)
	}
	if !strings.Contains(lineWith(out, "Person Identification"), "[x]") {
		t.Errorf("person should be checked:\n%s", out)
	}
	if !strings.Contains(lineWith(out, "Vehicle Identification"), "[ ]") {
		t.Errorf("vehicle should be unchecked:\n%s", out)
	}
}

func TestWriteModeOptions(t *testing.T) {
	var buf bytes.Buffer
	capture.WriteModeOptions(&buf)
	out := buf.String()
	for _, want := range []string{
		"[1] Pedestrian",
		"Capture ID/Passport only",
		"[2] Vehicle",
		"For visitors arriving by vehicle",
		"requires: Person Identification, Vehicle Identification",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("mode options missing %q:\n%s", want, out)
		}
	}
}

func TestWriteResident(t *testing.T) {
	var buf bytes.Buffer
	capture.WriteResident(&buf, capture.ResidentInfo{Name: "Jane", UnitNumber: "4B"})
	out := buf.String()
	if !strings.HasSuffix(lineWith(out, "Name"), "Jane") {
		t.Errorf("name row:\n%s", out)
	}
	if !strings.HasSuffix(lineWith(out, "Phone"), "N/A") {
		t.Errorf("missing phone should show N/A:\n%s", out)
	}
}
