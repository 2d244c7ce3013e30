package capture

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"
)

const progressWidth = 20

// ModeOption describes a mode choice on the mode selection step.
type ModeOption struct {
	Mode        Mode
	Title       string
	Description string
	Details     string
}

// ModeOptions lists the two capture modes in display order.
var ModeOptions = []ModeOption{
	{Mode: ModePedestrian, Title: "Pedestrian", Description: "Capture ID/Passport only", Details: "For visitors arriving on foot"},
	{Mode: ModeVehicle, Title: "Vehicle", Description: "Capture ID + Vehicle", Details: "For visitors arriving by vehicle"},
}

// orNA substitutes "N/A" for empty optional values.
func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// TitleMode returns the mode name with an upper-case first letter.
func TitleMode(m Mode) string {
	s := string(m)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// FormatTime renders a completion timestamp, or "N/A" when unknown.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// WriteResident prints the resident card shown during mode selection.
func WriteResident(w io.Writer, r ResidentInfo) {
	fmt.Fprintln(w, "Resident Information")
	fmt.Fprintf(w, "  %-12s %s\n", "Name", r.Name)
	fmt.Fprintf(w, "  %-12s %s\n", "Unit Number", r.UnitNumber)
	fmt.Fprintf(w, "  %-12s %s\n", "Phone", orNA(r.Phone))
	fmt.Fprintf(w, "  %-12s %s\n", "Email", orNA(r.Email))
}

// WriteModeOptions prints the numbered mode choices.
func WriteModeOptions(w io.Writer) {
	for i, opt := range ModeOptions {
		var titles []string
		for _, t := range RequiredCaptures(opt.Mode) {
			titles = append(titles, CaptureInfo(t).Title)
		}
		fmt.Fprintf(w, "  [%d] %-10s %s (%s)\n", i+1, opt.Title, opt.Description, opt.Details)
		fmt.Fprintf(w, "      requires: %s\n", strings.Join(titles, ", "))
	}
}

// ProgressBar renders a percentage as a fixed-width bar.
func ProgressBar(pct float64) string {
	filled := int(math.Round(pct / 100 * progressWidth))
	if filled < 0 {
		filled = 0
	}
	if filled > progressWidth {
		filled = progressWidth
	}
	return fmt.Sprintf("[%s%s] %d%% Complete",
		strings.Repeat("#", filled),
		strings.Repeat("-", progressWidth-filled),
		int(math.Round(pct)))
}

// WriteCaptureStatus prints the capture step: progress plus one line per
// required capture type.
func WriteCaptureStatus(w io.Writer, wf *Workflow) {
	fmt.Fprintln(w, ProgressBar(wf.Progress()))
	recorded := make(map[CaptureType]Capture)
	for _, c := range wf.Captures() {
		recorded[c.Type] = c
	}
	for _, t := range wf.Required() {
		info := CaptureInfo(t)
		if c, ok := recorded[t]; ok {
			fmt.Fprintf(w, "  [x] %-24s captured (%s, %d bytes)\n", info.Title, c.Image.Source, c.Image.Size)
		} else {
			fmt.Fprintf(w, "  [ ] %-24s %s\n", info.Title, info.Description)
		}
	}
}

// WriteSummary prints the completion summary.
func WriteSummary(w io.Writer, s CompletionSummary) {
	fmt.Fprintln(w, "Capture Summary")
	rows := [][2]string{
		{"Session ID", s.SessionID},
		{"Resident", s.Resident.Name},
		{"Unit Number", s.Resident.UnitNumber},
		{"Capture Mode", TitleMode(s.Mode)},
		{"Total Captures", fmt.Sprintf("%d", s.TotalCaptures)},
		{"Completed At", FormatTime(s.CompletedAt)},
	}
	for _, row := range rows {
		fmt.Fprintf(w, "  %-15s %s\n", row[0], row[1])
	}

	fmt.Fprintln(w, "Captured Images")
	for _, t := range RequiredCaptures(s.Mode) {
		status := "Pending"
		if _, ok := s.Captures[t]; ok {
			status = "Completed"
		}
		fmt.Fprintf(w, "  %-24s %s\n", CaptureInfo(t).Title, status)
	}
}

// UploadStatus returns the status line shown while Complete is running.
func UploadStatus(t CaptureType) string {
	return fmt.Sprintf("Uploading %s image...", t)
}

// CompletingStatus is shown while the session completion call is running.
const CompletingStatus = "Completing session..."
