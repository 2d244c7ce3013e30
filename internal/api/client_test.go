package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"seren/internal/capture"
	"seren/internal/config"
)

// newTestClient starts a server running handler and returns a client for it.
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/api/capture", 5*time.Second, capture.NewNopLogger())
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

// callAll invokes every client method once and returns their errors.
func callAll(c *Client) map[string]error {
	ctx := context.Background()
	errs := make(map[string]error)
	_, errs["health"] = c.Health(ctx)
	_, errs["start"] = c.StartSession(ctx, "ABC123")
	_, errs["mode"] = c.SetMode(ctx, "S1", capture.ModeVehicle)
	errs["upload"] = c.UploadCapture(ctx, "S1", capture.CapturePerson, capture.Upload{
		Filename: "person_capture.jpg",
		Body:     strings.NewReader("img"),
	})
	_, errs["complete"] = c.CompleteSession(ctx, "S1")
	_, errs["status"] = c.SessionStatus(ctx, "S1")
	_, errs["stats"] = c.StorageStats(ctx)
	return errs
}

func TestClient_StatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind Kind
		wantMsg  string
		wantIs   error
	}{
		{
			name:     "400 uses server message",
			status:   400,
			body:     `{"success":false,"error":"OTP is required"}`,
			wantKind: KindInvalidRequest,
			wantMsg:  "OTP is required",
			wantIs:   ErrInvalidRequest,
		},
		{
			name:     "400 without message",
			status:   400,
			body:     `{}`,
			wantKind: KindInvalidRequest,
			wantMsg:  "Invalid request data",
			wantIs:   ErrInvalidRequest,
		},
		{
			name:     "401 ignores server message",
			status:   401,
			body:     `{"error":"token missing"}`,
			wantKind: KindUnauthorized,
			wantMsg:  "Unauthorized access",
			wantIs:   ErrUnauthorized,
		},
		{
			name:     "404 uses server message",
			status:   404,
			body:     `{"success":false,"error":"Invalid or expired OTP"}`,
			wantKind: KindNotFound,
			wantMsg:  "Invalid or expired OTP",
			wantIs:   ErrNotFound,
		},
		{
			name:     "404 without body",
			status:   404,
			body:     ``,
			wantKind: KindNotFound,
			wantMsg:  "Resource not found",
			wantIs:   ErrNotFound,
		},
		{
			name:     "429",
			status:   429,
			body:     `{"success":false,"error":"slow down"}`,
			wantKind: KindRateLimited,
			wantMsg:  "Too many requests. Please try again later.",
			wantIs:   ErrRateLimited,
		},
		{
			name:     "500",
			status:   500,
			body:     `{"success":false,"error":"db down"}`,
			wantKind: KindServer,
			wantMsg:  "Server error. Please try again later.",
			wantIs:   ErrServer,
		},
		{
			name:     "503 uses server message",
			status:   503,
			body:     `{"error":"maintenance"}`,
			wantKind: KindUnexpected,
			wantMsg:  "maintenance",
		},
		{
			name:     "418 generic",
			status:   418,
			body:     `not json`,
			wantKind: KindUnexpected,
			wantMsg:  "Request failed with status 418",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})

			_, err := c.StartSession(context.Background(), "ABC123")
			var apiErr *Error
			if !errors.As(err, &apiErr) {
				t.Fatalf("StartSession() error = %v, want *Error", err)
			}
			if apiErr.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", apiErr.Kind, tt.wantKind)
			}
			if apiErr.Status != tt.status {
				t.Errorf("Status = %d, want %d", apiErr.Status, tt.status)
			}
			if err.Error() != tt.wantMsg {
				t.Errorf("message = %q, want %q", err.Error(), tt.wantMsg)
			}
			if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
				t.Errorf("errors.Is(err, %v) = false", tt.wantIs)
			}
		})
	}
}

func TestClient_RateLimitedOnEveryEndpoint(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusTooManyRequests, `{"success":false,"error":"quota"}`)
	})

	for op, err := range callAll(c) {
		if err == nil {
			t.Errorf("%s: expected error", op)
			continue
		}
		if got := err.Error(); got != "Too many requests. Please try again later." {
			t.Errorf("%s: message = %q", op, got)
		}
		if !errors.Is(err, ErrRateLimited) {
			t.Errorf("%s: errors.Is(err, ErrRateLimited) = false", op)
		}
	}
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(url, time.Second, capture.NewNopLogger())
	for op, err := range callAll(c) {
		var apiErr *Error
		if !errors.As(err, &apiErr) {
			t.Errorf("%s: error = %v, want *Error", op, err)
			continue
		}
		if apiErr.Kind != KindNetwork {
			t.Errorf("%s: Kind = %v, want network", op, apiErr.Kind)
		}
		if apiErr.Message != "Network error. Please check your internet connection." {
			t.Errorf("%s: message = %q", op, apiErr.Message)
		}
		if apiErr.Unwrap() == nil {
			t.Errorf("%s: network error should wrap the transport error", op)
		}
	}
}

func TestClient_NoRetry(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeJSON(w, http.StatusInternalServerError, `{}`)
	})

	if _, err := c.CompleteSession(context.Background(), "S1"); err == nil {
		t.Fatal("CompleteSession() expected error")
	}
	if calls != 1 {
		t.Errorf("server saw %d calls, want 1", calls)
	}
}

func TestClient_StartSession(t *testing.T) {
	var gotMethod, gotPath, gotContentType string
	var gotBody map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&gotBody)
		writeJSON(w, 200, `{"success":true,"data":{"sessionId":"S1","residentInfo":{"name":"Jane","unitNumber":"4B"}}}`)
	})

	session, err := c.StartSession(context.Background(), "ABC123")
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	if gotMethod != http.MethodPost || gotPath != "/api/capture/session/start" {
		t.Errorf("request = %s %s", gotMethod, gotPath)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q", gotContentType)
	}
	if gotBody["otp"] != "ABC123" {
		t.Errorf("otp = %q, want ABC123", gotBody["otp"])
	}
	if session.ID != "S1" || session.Resident.Name != "Jane" || session.Resident.UnitNumber != "4B" {
		t.Errorf("session = %+v", session)
	}
}

func TestClient_StartSession_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{name: "server message", body: `{"success":false,"error":"OTP already used"}`, wantMsg: "OTP already used"},
		{name: "fallback message", body: `{"success":false}`, wantMsg: "Failed to start session"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, 200, tt.body)
			})
			_, err := c.StartSession(context.Background(), "X")
			if err == nil || err.Error() != tt.wantMsg {
				t.Fatalf("StartSession() error = %v, want %q", err, tt.wantMsg)
			}
			if !errors.Is(err, ErrRejected) {
				t.Error("errors.Is(err, ErrRejected) = false")
			}
			if !errors.Is(err, capture.ErrStartFailed) {
				t.Error("errors.Is(err, capture.ErrStartFailed) = false")
			}
		})
	}
}

func TestClient_SetMode(t *testing.T) {
	tests := []struct {
		name string
		data string
		want []capture.CaptureType
	}{
		{name: "names", data: `{"availableCaptures":["person","vehicle"]}`, want: []capture.CaptureType{"person", "vehicle"}},
		{name: "objects", data: `{"availableCaptures":[{"type":"person","required":true}]}`, want: []capture.CaptureType{"person"}},
		{name: "missing", data: `{}`, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath, gotMode string
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				var body map[string]string
				json.NewDecoder(r.Body).Decode(&body)
				gotMode = body["mode"]
				writeJSON(w, 200, `{"success":true,"data":`+tt.data+`}`)
			})

			got, err := c.SetMode(context.Background(), "S 1", capture.ModeVehicle)
			if err != nil {
				t.Fatalf("SetMode() error = %v", err)
			}
			if gotPath != "/api/capture/session/S 1/mode" {
				t.Errorf("path = %q", gotPath)
			}
			if gotMode != "vehicle" {
				t.Errorf("mode = %q, want vehicle", gotMode)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("SetMode() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("SetMode()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestClient_UploadCapture(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		contentType string
		image       []byte
		wantType    string
	}{
		{name: "jpeg", filename: "vehicle_capture.jpg", contentType: "image/jpeg", image: []byte{0xFF, 0xD8, 0xFF, 0xE0, 'j', 'p', 'g'}, wantType: "image/jpeg"},
		{name: "png", filename: "vehicle_capture.png", contentType: "image/png", image: []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}, wantType: "image/png"},
		{name: "unknown type defaults to jpeg", filename: "vehicle_capture.jpg", image: []byte("raw"), wantType: "image/jpeg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath, gotFilename, gotPartType string
			var gotImage []byte
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				f, hdr, err := r.FormFile("image")
				if err != nil {
					writeJSON(w, 400, `{"success":false,"error":"No image file provided"}`)
					return
				}
				defer f.Close()
				gotFilename = hdr.Filename
				gotPartType = hdr.Header.Get("Content-Type")
				gotImage, _ = io.ReadAll(f)
				writeJSON(w, 200, `{"success":true}`)
			})

			err := c.UploadCapture(context.Background(), "S1", capture.CaptureVehicle, capture.Upload{
				Filename:    tt.filename,
				ContentType: tt.contentType,
				Body:        bytes.NewReader(tt.image),
			})
			if err != nil {
				t.Fatalf("UploadCapture() error = %v", err)
			}
			if gotPath != "/api/capture/session/S1/capture/vehicle" {
				t.Errorf("path = %q", gotPath)
			}
			if gotFilename != tt.filename {
				t.Errorf("filename = %q, want %q", gotFilename, tt.filename)
			}
			if gotPartType != tt.wantType {
				t.Errorf("part Content-Type = %q, want %q", gotPartType, tt.wantType)
			}
			if !bytes.Equal(gotImage, tt.image) {
				t.Errorf("image bytes = %v, want %v", gotImage, tt.image)
			}
		})
	}
}

func TestClient_UploadCapture_Rejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"success":false}`)
	})
	err := c.UploadCapture(context.Background(), "S1", capture.CapturePerson, capture.Upload{Body: strings.NewReader("x")})
	if err == nil || err.Error() != "Failed to upload person image" {
		t.Fatalf("UploadCapture() error = %v", err)
	}
}

func TestClient_CompleteSession(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/capture/session/S1/complete" {
			writeJSON(w, 404, `{}`)
			return
		}
		writeJSON(w, 200, `{"success":true,"data":{
			"sessionId":"S1",
			"residentInfo":{"name":"Jane","unitNumber":"4B","phone":"555-0100"},
			"mode":"vehicle",
			"totalCaptures":1,
			"completedAt":"2024-01-15T10:30:00.000Z",
			"captures":{"person":{"filename":"person_capture.jpg","size":7},"vehicle":null}
		}}`)
	})

	summary, err := c.CompleteSession(context.Background(), "S1")
	if err != nil {
		t.Fatalf("CompleteSession() error = %v", err)
	}
	if summary.SessionID != "S1" || summary.Mode != capture.ModeVehicle || summary.TotalCaptures != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if summary.Resident.Phone != "555-0100" {
		t.Errorf("Resident.Phone = %q", summary.Resident.Phone)
	}
	want := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	if !summary.CompletedAt.Equal(want) {
		t.Errorf("CompletedAt = %v, want %v", summary.CompletedAt, want)
	}
	if _, ok := summary.Captures[capture.CapturePerson]; !ok {
		t.Error("person capture missing from summary")
	}
	if _, ok := summary.Captures[capture.CaptureVehicle]; ok {
		t.Error("null vehicle capture should be absent")
	}
}

func TestClient_CompleteSession_BadTimestamp(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"success":true,"data":{"sessionId":"S1","mode":"pedestrian","completedAt":"yesterday"}}`)
	})
	summary, err := c.CompleteSession(context.Background(), "S1")
	if err != nil {
		t.Fatalf("CompleteSession() error = %v", err)
	}
	if !summary.CompletedAt.IsZero() {
		t.Errorf("CompletedAt = %v, want zero", summary.CompletedAt)
	}
}

func TestClient_Health(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/capture/health" {
			writeJSON(w, 404, `{}`)
			return
		}
		writeJSON(w, 200, `{"status":"ok","demoMode":true,"demoOTPs":[{"otp":"123456","resident":"Jane Smith","unit":"4B","type":"pedestrian"}]}`)
	})

	info, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if !info.DemoMode {
		t.Error("DemoMode = false, want true")
	}
	if len(info.DemoOTPs) != 1 || info.DemoOTPs[0].OTP != "123456" || info.DemoOTPs[0].Unit != "4B" {
		t.Errorf("DemoOTPs = %+v", info.DemoOTPs)
	}
}

func TestClient_RawDocuments(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/capture/session/S1/status":
			writeJSON(w, 200, `{"success":true,"data":{"status":"active"}}`)
		case "/api/capture/storage/stats":
			writeJSON(w, 200, `{"success":true,"data":{"totalBytes":42}}`)
		default:
			writeJSON(w, 404, `{}`)
		}
	})

	status, err := c.SessionStatus(context.Background(), "S1")
	if err != nil {
		t.Fatalf("SessionStatus() error = %v", err)
	}
	if !strings.Contains(string(status), `"active"`) {
		t.Errorf("SessionStatus() = %s", status)
	}

	stats, err := c.StorageStats(context.Background())
	if err != nil {
		t.Fatalf("StorageStats() error = %v", err)
	}
	if !strings.Contains(string(stats), `"totalBytes":42`) {
		t.Errorf("StorageStats() = %s", stats)
	}
}

func TestNewClientFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.APIConfig
		wantErr bool
	}{
		{name: "https", cfg: config.APIConfig{BaseURL: "https://access.example.com/api/capture"}},
		{name: "trailing slash", cfg: config.APIConfig{BaseURL: "http://10.0.0.5:3000/api/capture/", TimeoutSeconds: 5}},
		{name: "no scheme", cfg: config.APIConfig{BaseURL: "access.example.com"}, wantErr: true},
		{name: "bad scheme", cfg: config.APIConfig{BaseURL: "ftp://access.example.com"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClientFromConfig(tt.cfg, capture.NewNopLogger())
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewClientFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if strings.HasSuffix(c.BaseURL(), "/") {
				t.Errorf("BaseURL() = %q, want no trailing slash", c.BaseURL())
			}
			if c.http.Timeout <= 0 {
				t.Errorf("timeout = %v, want positive default", c.http.Timeout)
			}
		})
	}
}
