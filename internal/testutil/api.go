package testutil

import (
	"context"
	"fmt"
	"io"
	"sync"

	"seren/internal/capture"
)

// FakeAPI is an in-memory capture.API that records every call. Errors can
// be injected per operation name: "start", "mode", "complete", or
// "upload:<type>".
type FakeAPI struct {
	mu sync.Mutex

	Session  capture.Session
	Summary  *capture.CompletionSummary
	Errors   map[string]error
	Calls    []string
	Uploads  map[capture.CaptureType][]byte
	Filename map[capture.CaptureType]string

	// Gate, when set, blocks StartSession until it is closed. Entered is
	// closed once StartSession is waiting on Gate.
	Gate    chan struct{}
	Entered chan struct{}

	mode capture.Mode
}

var _ capture.API = (*FakeAPI)(nil)

// NewFakeAPI returns a FakeAPI that accepts any OTP and opens session S1
// for Jane in unit 4B.
func NewFakeAPI() *FakeAPI {
	return &FakeAPI{
		Session: capture.Session{
			ID:       "S1",
			Resident: capture.ResidentInfo{Name: "Jane", UnitNumber: "4B"},
		},
		Errors:   make(map[string]error),
		Uploads:  make(map[capture.CaptureType][]byte),
		Filename: make(map[capture.CaptureType]string),
	}
}

// Fail makes the named operation return err.
func (f *FakeAPI) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[op] = err
}

// Clear removes an injected error.
func (f *FakeAPI) Clear(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Errors, op)
}

// CallLog returns a copy of the recorded calls.
func (f *FakeAPI) CallLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Calls...)
}

func (f *FakeAPI) record(call, op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, call)
	return f.Errors[op]
}

func (f *FakeAPI) StartSession(ctx context.Context, otp string) (*capture.Session, error) {
	if f.Gate != nil {
		if f.Entered != nil {
			close(f.Entered)
		}
		select {
		case <-f.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.record("start "+otp, "start"); err != nil {
		return nil, err
	}
	s := f.Session
	return &s, nil
}

func (f *FakeAPI) SetMode(_ context.Context, sessionID string, mode capture.Mode) ([]capture.CaptureType, error) {
	if err := f.record(fmt.Sprintf("mode %s %s", sessionID, mode), "mode"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.mode = mode
	f.mu.Unlock()
	return capture.RequiredCaptures(mode), nil
}

func (f *FakeAPI) UploadCapture(_ context.Context, sessionID string, t capture.CaptureType, upload capture.Upload) error {
	data, err := io.ReadAll(upload.Body)
	if err != nil {
		return err
	}
	if err := f.record(fmt.Sprintf("upload %s %s", sessionID, t), "upload:"+string(t)); err != nil {
		return err
	}
	f.mu.Lock()
	f.Uploads[t] = data
	f.Filename[t] = upload.Filename
	f.mu.Unlock()
	return nil
}

func (f *FakeAPI) CompleteSession(_ context.Context, sessionID string) (*capture.CompletionSummary, error) {
	if err := f.record("complete "+sessionID, "complete"); err != nil {
		return nil, err
	}
	if f.Summary != nil {
		s := *f.Summary
		return &s, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	captures := make(map[capture.CaptureType]capture.CaptureDetail)
	for t, data := range f.Uploads {
		captures[t] = capture.CaptureDetail{"filename": f.Filename[t], "size": float64(len(data))}
	}
	return &capture.CompletionSummary{
		SessionID:     sessionID,
		Resident:      f.Session.Resident,
		Mode:          f.mode,
		TotalCaptures: len(captures),
		Captures:      captures,
	}, nil
}
