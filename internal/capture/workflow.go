package capture

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// State is a step of the capture workflow.
type State int

const (
	StateIdle State = iota
	StateOTPEntered
	StateModeSelected
	StateCapturesInProgress
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOTPEntered:
		return "otp-entered"
	case StateModeSelected:
		return "mode-selected"
	case StateCapturesInProgress:
		return "captures-in-progress"
	case StateCompleted:
		return "completed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// SessionStarted is handed from OTP entry to mode selection.
type SessionStarted struct {
	Session Session
}

// ModeConfirmed is handed from mode selection to the capture step.
type ModeConfirmed struct {
	Session           Session
	Mode              Mode
	AvailableCaptures []CaptureType
}

// SessionCompleted is handed from the capture step to the summary.
type SessionCompleted struct {
	Session Session
	Summary CompletionSummary
}

// Progress reports workflow activity while requests are outstanding.
type Progress interface {
	Uploading(captureType CaptureType)
	Completing()
}

// Workflow drives one visitor through OTP entry, mode selection, image
// capture and upload. It is strictly linear; Back steps one state backwards
// without telling the server anything.
//
// All requests are issued sequentially. While one is outstanding every other
// action fails with ErrBusy.
type Workflow struct {
	api      API
	stager   Stager
	logger   Logger
	progress Progress

	mu        sync.Mutex
	busy      bool
	state     State
	started   *SessionStarted
	confirmed *ModeConfirmed
	completed *SessionCompleted
	captures  map[CaptureType]*Capture
}

// NewWorkflow creates a workflow in the Idle state.
func NewWorkflow(api API, stager Stager, logger Logger) *Workflow {
	return &Workflow{
		api:      api,
		stager:   stager,
		logger:   logger,
		captures: make(map[CaptureType]*Capture),
	}
}

// SetProgress registers a listener for upload progress. nil disables it.
func (w *Workflow) SetProgress(p Progress) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.progress = p
}

// State returns the current step.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Session returns the active session, or nil when Idle.
func (w *Workflow) Session() *Session {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started == nil {
		return nil
	}
	s := w.started.Session
	return &s
}

// Mode returns the confirmed capture mode, or "" before mode selection.
func (w *Workflow) Mode() Mode {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.confirmed == nil {
		return ""
	}
	return w.confirmed.Mode
}

// Completed returns the completion message once the workflow has finished.
func (w *Workflow) Completed() *SessionCompleted {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.completed == nil {
		return nil
	}
	c := *w.completed
	return &c
}

// begin marks a request as outstanding. The caller must hold w.mu and must
// call end when the request resolves.
func (w *Workflow) begin(want ...State) error {
	if w.busy {
		return ErrBusy
	}
	for _, s := range want {
		if w.state == s {
			w.busy = true
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidTransition, w.state)
}

func (w *Workflow) end() {
	w.mu.Lock()
	w.busy = false
	w.mu.Unlock()
}

// Submit starts a session for the given OTP. On failure the workflow stays
// Idle and the error is returned unchanged.
func (w *Workflow) Submit(ctx context.Context, otp string) (*SessionStarted, error) {
	otp = strings.TrimSpace(otp)
	if otp == "" {
		return nil, ErrEmptyOTP
	}

	w.mu.Lock()
	if err := w.begin(StateIdle); err != nil {
		w.mu.Unlock()
		return nil, err
	}
	w.mu.Unlock()
	defer w.end()

	w.logger.Debug("starting session")
	session, err := w.api.StartSession(ctx, otp)
	if err != nil {
		w.logger.Info("start session failed", "error", err)
		return nil, err
	}

	msg := &SessionStarted{Session: *session}

	w.mu.Lock()
	w.started = msg
	w.state = StateOTPEntered
	w.mu.Unlock()

	w.logger.Info("session started", "session", session.ID, "unit", session.Resident.UnitNumber)
	return msg, nil
}

// SelectMode assigns the capture mode for the session. It may be called
// again after Back to pick a different mode.
func (w *Workflow) SelectMode(ctx context.Context, mode Mode) (*ModeConfirmed, error) {
	if mode != ModePedestrian && mode != ModeVehicle {
		return nil, ErrInvalidMode
	}

	w.mu.Lock()
	if err := w.begin(StateOTPEntered, StateModeSelected); err != nil {
		w.mu.Unlock()
		return nil, err
	}
	session := w.started.Session
	w.mu.Unlock()
	defer w.end()

	available, err := w.api.SetMode(ctx, session.ID, mode)
	if err != nil {
		w.logger.Info("set mode failed", "session", session.ID, "mode", string(mode), "error", err)
		return nil, err
	}

	msg := &ModeConfirmed{
		Session:           session,
		Mode:              mode,
		AvailableCaptures: available,
	}

	w.mu.Lock()
	w.confirmed = msg
	w.state = StateModeSelected
	w.mu.Unlock()

	w.logger.Info("capture mode set", "session", session.ID, "mode", string(mode))
	return msg, nil
}

// EnterCapture moves to the capture step with an empty capture map.
func (w *Workflow) EnterCapture() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy {
		return ErrBusy
	}
	if w.state != StateModeSelected {
		return fmt.Errorf("%w: %s", ErrInvalidTransition, w.state)
	}
	w.captures = make(map[CaptureType]*Capture)
	w.state = StateCapturesInProgress
	return nil
}

// Required returns the capture types the confirmed mode requires.
func (w *Workflow) Required() []CaptureType {
	return RequiredCaptures(w.Mode())
}

// Capture stages an image for t, replacing any earlier capture of that type.
func (w *Workflow) Capture(t CaptureType, source string, r io.Reader) (*Capture, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy {
		return nil, ErrBusy
	}
	if w.state != StateCapturesInProgress {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTransition, w.state)
	}
	if !IsRequired(w.confirmed.Mode, t) {
		return nil, fmt.Errorf("%w: %s", ErrCaptureNotRequired, t)
	}

	ref, err := w.stager.Stage(t, source, r)
	if err != nil {
		return nil, fmt.Errorf("staging %s image: %w", t, err)
	}

	if old, ok := w.captures[t]; ok && old.Image.ID != ref.ID {
		if err := w.stager.Remove(old.Image); err != nil {
			w.logger.Warn("removing replaced capture", "type", string(t), "error", err)
		}
	}

	c := &Capture{Type: t, Image: ref}
	w.captures[t] = c
	w.logger.Debug("image captured", "type", string(t), "size", ref.Size)

	cp := *c
	return &cp, nil
}

// Remove drops the capture for t.
func (w *Workflow) Remove(t CaptureType) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy {
		return ErrBusy
	}
	if w.state != StateCapturesInProgress {
		return fmt.Errorf("%w: %s", ErrInvalidTransition, w.state)
	}
	c, ok := w.captures[t]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoCapture, t)
	}
	delete(w.captures, t)
	if err := w.stager.Remove(c.Image); err != nil {
		return fmt.Errorf("removing %s image: %w", t, err)
	}
	return nil
}

// Captures returns the recorded captures in requirement order.
func (w *Workflow) Captures() []Capture {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.orderedCaptures()
}

func (w *Workflow) orderedCaptures() []Capture {
	if w.confirmed == nil {
		return nil
	}
	var out []Capture
	for _, t := range RequiredCaptures(w.confirmed.Mode) {
		if c, ok := w.captures[t]; ok {
			out = append(out, *c)
		}
	}
	return out
}

// Progress returns the percentage of required captures recorded.
func (w *Workflow) Progress() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.confirmed == nil {
		return 0
	}
	required := RequiredCaptures(w.confirmed.Mode)
	if len(required) == 0 {
		return 0
	}
	return float64(len(w.orderedCaptures())) / float64(len(required)) * 100
}

// CanComplete reports whether every required capture type has a capture.
func (w *Workflow) CanComplete() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.canComplete()
}

func (w *Workflow) canComplete() bool {
	if w.state != StateCapturesInProgress || w.confirmed == nil {
		return false
	}
	for _, t := range RequiredCaptures(w.confirmed.Mode) {
		if _, ok := w.captures[t]; !ok {
			return false
		}
	}
	return true
}

// Complete uploads every capture one at a time and then completes the
// session. The first failure aborts the batch and leaves the workflow in the
// capture step; a retry uploads everything again.
func (w *Workflow) Complete(ctx context.Context) (*SessionCompleted, error) {
	w.mu.Lock()
	if err := w.begin(StateCapturesInProgress); err != nil {
		w.mu.Unlock()
		return nil, err
	}
	if !w.canComplete() {
		w.busy = false
		w.mu.Unlock()
		return nil, ErrCapturesIncomplete
	}
	session := w.started.Session
	batch := w.orderedCaptures()
	progress := w.progress
	w.mu.Unlock()
	defer w.end()

	for _, c := range batch {
		if progress != nil {
			progress.Uploading(c.Type)
		}
		if err := w.upload(ctx, session.ID, c); err != nil {
			w.resetUploaded()
			w.logger.Info("upload failed", "session", session.ID, "type", string(c.Type), "error", err)
			return nil, err
		}
		w.markUploaded(c.Type)
		w.logger.Info("capture uploaded", "session", session.ID, "type", string(c.Type))
	}

	if progress != nil {
		progress.Completing()
	}
	summary, err := w.api.CompleteSession(ctx, session.ID)
	if err != nil {
		w.resetUploaded()
		w.logger.Info("complete session failed", "session", session.ID, "error", err)
		return nil, err
	}

	msg := &SessionCompleted{Session: session, Summary: *summary}

	w.mu.Lock()
	w.discardLocked()
	w.completed = msg
	w.state = StateCompleted
	w.mu.Unlock()

	w.logger.Info("session completed", "session", session.ID, "captures", summary.TotalCaptures)
	return msg, nil
}

func (w *Workflow) upload(ctx context.Context, sessionID string, c Capture) error {
	rc, err := w.stager.Open(c.Image)
	if err != nil {
		return fmt.Errorf("opening %s image: %w", c.Type, err)
	}
	defer rc.Close()

	return w.api.UploadCapture(ctx, sessionID, c.Type, Upload{
		Filename:    UploadFilename(c.Type, c.Image.ContentType),
		ContentType: c.Image.ContentType,
		Body:        rc,
	})
}

func (w *Workflow) markUploaded(t CaptureType) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if c, ok := w.captures[t]; ok {
		c.Uploaded = true
	}
}

func (w *Workflow) resetUploaded() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, c := range w.captures {
		c.Uploaded = false
	}
}

// discardLocked drops all captures. The caller must hold w.mu.
func (w *Workflow) discardLocked() {
	w.captures = make(map[CaptureType]*Capture)
	if err := w.stager.Discard(); err != nil {
		w.logger.Warn("discarding staged images", "error", err)
	}
}

// Back returns to the previous step without contacting the server. The
// session stays in whatever state the server has recorded.
func (w *Workflow) Back() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy {
		return ErrBusy
	}
	switch w.state {
	case StateCapturesInProgress:
		w.discardLocked()
		w.state = StateModeSelected
	case StateModeSelected:
		w.confirmed = nil
		w.state = StateOTPEntered
	case StateOTPEntered:
		w.started = nil
		w.state = StateIdle
	default:
		return fmt.Errorf("%w: %s", ErrInvalidTransition, w.state)
	}
	return nil
}

// StartNew clears a completed workflow so the next visitor can be served.
func (w *Workflow) StartNew() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy {
		return ErrBusy
	}
	if w.state != StateCompleted {
		return fmt.Errorf("%w: %s", ErrInvalidTransition, w.state)
	}
	w.resetLocked()
	return nil
}

// Abandon drops the workflow from any step, discarding local state.
// Nothing is sent to the server. It returns ErrBusy while a request is in
// flight and leaves the workflow untouched.
func (w *Workflow) Abandon() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy {
		return ErrBusy
	}
	if w.state == StateCapturesInProgress {
		w.logger.Info("abandoning session with unsent captures", "session", w.started.Session.ID)
	}
	w.discardLocked()
	w.resetLocked()
	return nil
}

func (w *Workflow) resetLocked() {
	w.started = nil
	w.confirmed = nil
	w.completed = nil
	w.captures = make(map[CaptureType]*Capture)
	w.state = StateIdle
}

// UploadFilename returns the multipart filename used for a capture upload.
func UploadFilename(t CaptureType, contentType string) string {
	if contentType == "image/png" {
		return string(t) + "_capture.png"
	}
	return string(t) + "_capture.jpg"
}
