package app

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"seren/internal/capture"
)

// errQuit ends the wizard: the operator typed q or input ran out.
var errQuit = errors.New("quit")

// wizard drives the capture workflow from a line-oriented terminal. Each
// workflow state has one screen; every failure is shown as a single
// "Error: <message>" line that the operator acknowledges with Enter.
type wizard struct {
	app *SerenApp
	wf  *capture.Workflow
	in  *bufio.Scanner
	out io.Writer

	result *CaptureResult
}

// RunWizard serves visitors interactively until the operator quits or in
// is exhausted.
func (a *SerenApp) RunWizard(ctx context.Context, in io.Reader, out io.Writer) error {
	wf, err := a.NewWorkflow()
	if err != nil {
		return a.Fail(err)
	}
	w := &wizard{app: a, wf: wf, in: bufio.NewScanner(in), out: out}
	wf.SetProgress(w)
	defer wf.Abandon()

	// Health is checked once per run, not on every return to the home screen.
	fmt.Fprintln(out, "Seren Visitor Capture")
	info, err := a.Health(ctx)
	WriteHealth(out, info, err)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		switch wf.State() {
		case capture.StateIdle:
			err = w.home(ctx)
		case capture.StateOTPEntered, capture.StateModeSelected:
			err = w.modeSelection(ctx)
		case capture.StateCapturesInProgress:
			err = w.captureImages(ctx)
		case capture.StateCompleted:
			err = w.completion()
		}
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			return a.Fail(err)
		}
	}
}

func (w *wizard) Uploading(t capture.CaptureType) {
	fmt.Fprintln(w.out, capture.UploadStatus(t))
}

func (w *wizard) Completing() {
	fmt.Fprintln(w.out, capture.CompletingStatus)
}

// ask prints prompt and returns the next trimmed input line.
func (w *wizard) ask(prompt string) (string, error) {
	fmt.Fprint(w.out, prompt)
	if !w.in.Scan() {
		if err := w.in.Err(); err != nil {
			return "", err
		}
		fmt.Fprintln(w.out)
		return "", errQuit
	}
	return strings.TrimSpace(w.in.Text()), nil
}

// showError reports a failed action and waits for acknowledgement. The
// workflow stays on the current screen.
func (w *wizard) showError(err error) error {
	fmt.Fprintf(w.out, "Error: %s\n", err)
	_, ackErr := w.ask("Press Enter to continue")
	return ackErr
}

func (w *wizard) home(ctx context.Context) error {
	fmt.Fprintln(w.out)
	otp, err := w.ask("Enter visitor OTP (q to quit): ")
	if err != nil {
		return err
	}
	if otp == "q" {
		return errQuit
	}
	if _, err := w.wf.Submit(ctx, otp); err != nil {
		return w.showError(err)
	}
	return nil
}

func (w *wizard) modeSelection(ctx context.Context) error {
	session := w.wf.Session()
	fmt.Fprintln(w.out)
	capture.WriteResident(w.out, session.Resident)
	fmt.Fprintln(w.out, "Select Capture Mode")
	capture.WriteModeOptions(w.out)

	choice, err := w.ask("Mode [1-2] (b to go back): ")
	if err != nil {
		return err
	}
	if choice == "b" {
		for w.wf.State() != capture.StateIdle {
			if err := w.wf.Back(); err != nil {
				return err
			}
		}
		return nil
	}

	mode, err := parseModeChoice(choice)
	if err != nil {
		return w.showError(capture.ErrInvalidMode)
	}
	if _, err := w.wf.SelectMode(ctx, mode); err != nil {
		return w.showError(err)
	}
	return w.wf.EnterCapture()
}

func (w *wizard) captureImages(ctx context.Context) error {
	required := w.wf.Required()
	fmt.Fprintln(w.out)
	fmt.Fprintf(w.out, "Capture Images (%s)\n", capture.TitleMode(w.wf.Mode()))
	capture.WriteCaptureStatus(w.out, w.wf)
	for i, t := range required {
		fmt.Fprintf(w.out, "  %d  capture %s\n", i+1, capture.CaptureInfo(t).Title)
	}
	fmt.Fprintln(w.out, "  r N  remove a capture    u  upload and complete    b  back")

	choice, err := w.ask("> ")
	if err != nil {
		return err
	}
	switch {
	case choice == "b":
		return w.wf.Back()
	case choice == "u":
		return w.complete(ctx)
	case strings.HasPrefix(choice, "r "):
		t, err := pickCaptureType(required, strings.TrimSpace(choice[2:]))
		if err != nil {
			return w.showError(err)
		}
		if err := w.wf.Remove(t); err != nil {
			return w.showError(err)
		}
		return nil
	default:
		t, err := pickCaptureType(required, choice)
		if err != nil {
			return w.showError(err)
		}
		return w.take(ctx, t)
	}
}

func (w *wizard) take(ctx context.Context, t capture.CaptureType) error {
	title := capture.CaptureInfo(t).Title
	prompt := fmt.Sprintf("Image path for %s: ", title)
	if w.app.Camera().HasCommand() {
		prompt = fmt.Sprintf("Image path for %s (Enter to use camera): ", title)
	}
	path, err := w.ask(prompt)
	if err != nil {
		return err
	}

	data, source, err := w.app.Camera().Acquire(ctx, t, path)
	if err != nil {
		return w.showError(err)
	}
	if _, err := w.wf.Capture(t, source, bytes.NewReader(data)); err != nil {
		return w.showError(err)
	}
	return nil
}

func (w *wizard) complete(ctx context.Context) error {
	if !w.wf.CanComplete() {
		return w.showError(capture.ErrCapturesIncomplete)
	}
	done, err := w.wf.Complete(ctx)
	if err != nil {
		return w.showError(err)
	}
	w.result = w.app.recordCompletion(ctx, done)
	return nil
}

func (w *wizard) completion() error {
	done := w.wf.Completed()
	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Capture Complete")
	capture.WriteSummary(w.out, done.Summary)
	WriteReceiptStatus(w.out, w.result)

	choice, err := w.ask("Press Enter to start a new capture (q to quit): ")
	if err != nil {
		return err
	}
	w.result = nil
	if choice == "q" {
		return errQuit
	}
	return w.wf.StartNew()
}

// WriteReceiptStatus prints where the receipt for a completed session went.
func WriteReceiptStatus(w io.Writer, res *CaptureResult) {
	if res == nil {
		return
	}
	if res.Receipt != nil {
		state := "journaled"
		if res.Receipt.Archived {
			state = "archived"
		}
		fmt.Fprintf(w, "Receipt %s (%s)\n", res.Receipt.ID, state)
	}
	if res.ReceiptErr != nil {
		fmt.Fprintf(w, "Warning: %s\n", res.ReceiptErr)
	}
}

// parseModeChoice accepts a mode number from the mode list or a mode name.
func parseModeChoice(s string) (capture.Mode, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 || n > len(capture.ModeOptions) {
			return "", capture.ErrInvalidMode
		}
		return capture.ModeOptions[n-1].Mode, nil
	}
	return capture.ParseMode(s)
}

// pickCaptureType accepts a number from the capture list or a type name.
func pickCaptureType(required []capture.CaptureType, s string) (capture.CaptureType, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 || n > len(required) {
			return "", fmt.Errorf("no capture numbered %d", n)
		}
		return required[n-1], nil
	}
	t, err := capture.ParseCaptureType(s)
	if err != nil {
		return "", err
	}
	for _, r := range required {
		if r == t {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %s", capture.ErrCaptureNotRequired, t)
}
