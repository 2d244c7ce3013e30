package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"seren/internal/capture"
	"seren/internal/config"
)

// Client talks to the Remote Access Service. It is constructed once at
// startup and shared by reference; it holds no per-session state.
//
// Every method issues exactly one HTTP request and never retries. All
// failures are returned as *Error.
type Client struct {
	baseURL string
	http    *http.Client
	logger  capture.Logger
}

var _ capture.API = (*Client)(nil)

// NewClient creates a Client for the service rooted at baseURL, e.g.
// "https://access.example.com/api/capture".
func NewClient(baseURL string, timeout time.Duration, logger capture.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// NewClientFromConfig validates cfg and creates a Client.
func NewClientFromConfig(cfg config.APIConfig, logger capture.Logger) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing api.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api.base_url must be an http or https URL: %q", cfg.BaseURL)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = config.DefaultTimeoutSeconds * time.Second
	}
	return NewClient(cfg.BaseURL, timeout, logger), nil
}

// BaseURL returns the service root the client was created with.
func (c *Client) BaseURL() string { return c.baseURL }

// envelope is the common shape of service responses.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// do sends one request and returns the body of a 2xx response. Any other
// outcome is returned as *Error.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		c.logger.Info("request error", "method", method, "path", path, "error", err)
		return nil, 0, unexpectedError(err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("api request", "method", method, "path", path)
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Info("api response error", "method", method, "path", path, "error", err)
		return nil, 0, networkError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Info("api response error", "method", method, "path", path, "status", resp.StatusCode, "error", err)
		return nil, resp.StatusCode, networkError(err)
	}
	c.logger.Debug("api response", "method", method, "path", path, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var env envelope
		_ = json.Unmarshal(data, &env)
		apiErr := statusError(resp.StatusCode, env.Error)
		c.logger.Info("api response error", "method", method, "path", path, "status", resp.StatusCode, "error", apiErr.Message)
		return nil, resp.StatusCode, apiErr
	}
	return data, resp.StatusCode, nil
}

// doJSON sends payload (or no body when nil) as JSON and decodes the
// envelope. fallback is the message used when the service reports failure
// without one.
func (c *Client) doJSON(ctx context.Context, method, path string, payload any, fallback error) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, unexpectedError(err)
		}
		body = bytes.NewReader(b)
	}

	data, status, err := c.do(ctx, method, path, body, "application/json")
	if err != nil {
		return nil, err
	}
	return decodeEnvelope(data, status, fallback)
}

func decodeEnvelope(data []byte, status int, fallback error) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, unexpectedError(fmt.Errorf("decoding response: %w", err))
	}
	if !env.Success {
		e := rejectedError(status, env.Error, fallback.Error())
		e.Err = fallback
		return nil, e
	}
	return env.Data, nil
}

func sessionPath(sessionID string, parts ...string) string {
	p := "/session/" + url.PathEscape(sessionID)
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

// Health fetches service health and demo information.
func (c *Client) Health(ctx context.Context) (*capture.HealthInfo, error) {
	data, _, err := c.do(ctx, http.MethodGet, "/health", nil, "application/json")
	if err != nil {
		return nil, err
	}
	var info capture.HealthInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, unexpectedError(fmt.Errorf("decoding health: %w", err))
	}
	return &info, nil
}

// StartSession validates an OTP and opens a session.
func (c *Client) StartSession(ctx context.Context, otp string) (*capture.Session, error) {
	data, err := c.doJSON(ctx, http.MethodPost, "/session/start", map[string]string{"otp": otp}, capture.ErrStartFailed)
	if err != nil {
		return nil, err
	}
	var session capture.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, unexpectedError(fmt.Errorf("decoding session: %w", err))
	}
	if session.ID == "" {
		return nil, unexpectedError(fmt.Errorf("service returned a session without an id"))
	}
	return &session, nil
}

// SetMode assigns the capture mode for a session.
func (c *Client) SetMode(ctx context.Context, sessionID string, mode capture.Mode) ([]capture.CaptureType, error) {
	data, err := c.doJSON(ctx, http.MethodPost, sessionPath(sessionID, "mode"), map[string]string{"mode": string(mode)}, capture.ErrSetModeFailed)
	if err != nil {
		return nil, err
	}
	var body struct {
		AvailableCaptures captureList `json:"availableCaptures"`
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &body); err != nil {
			return nil, unexpectedError(fmt.Errorf("decoding mode response: %w", err))
		}
	}
	return body.AvailableCaptures, nil
}

// UploadCapture sends one image as multipart form data in a field named
// "image".
func (c *Client) UploadCapture(ctx context.Context, sessionID string, captureType capture.CaptureType, upload capture.Upload) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	contentType := upload.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, upload.Filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return unexpectedError(err)
	}
	if _, err := io.Copy(part, upload.Body); err != nil {
		return unexpectedError(fmt.Errorf("reading %s image: %w", captureType, err))
	}
	if err := mw.Close(); err != nil {
		return unexpectedError(err)
	}

	data, status, err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "capture", string(captureType)), &buf, mw.FormDataContentType())
	if err != nil {
		return err
	}
	_, err = decodeEnvelope(data, status, fmt.Errorf("Failed to upload %s image", captureType))
	return err
}

// completion is the wire form of a completion summary.
type completion struct {
	SessionID     string                     `json:"sessionId"`
	Resident      capture.ResidentInfo       `json:"residentInfo"`
	Mode          capture.Mode               `json:"mode"`
	TotalCaptures int                        `json:"totalCaptures"`
	CompletedAt   string                     `json:"completedAt"`
	Captures      map[string]json.RawMessage `json:"captures"`
}

// CompleteSession closes a session and returns its summary.
func (c *Client) CompleteSession(ctx context.Context, sessionID string) (*capture.CompletionSummary, error) {
	data, err := c.doJSON(ctx, http.MethodPost, sessionPath(sessionID, "complete"), nil, capture.ErrCompleteFailed)
	if err != nil {
		return nil, err
	}
	var wire completion
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, unexpectedError(fmt.Errorf("decoding completion: %w", err))
	}

	summary := &capture.CompletionSummary{
		SessionID:     wire.SessionID,
		Resident:      wire.Resident,
		Mode:          wire.Mode,
		TotalCaptures: wire.TotalCaptures,
		CompletedAt:   parseTime(wire.CompletedAt),
		Captures:      make(map[capture.CaptureType]capture.CaptureDetail),
	}
	for k, raw := range wire.Captures {
		var detail capture.CaptureDetail
		if err := json.Unmarshal(raw, &detail); err != nil || detail == nil {
			// null or non-object entries mean the capture is missing
			continue
		}
		summary.Captures[capture.CaptureType(k)] = detail
	}
	return summary, nil
}

// SessionStatus returns the raw status document for a session.
func (c *Client) SessionStatus(ctx context.Context, sessionID string) (json.RawMessage, error) {
	return c.getRaw(ctx, sessionPath(sessionID, "status"))
}

// StorageStats returns the raw storage statistics document.
func (c *Client) StorageStats(ctx context.Context) (json.RawMessage, error) {
	return c.getRaw(ctx, "/storage/stats")
}

func (c *Client) getRaw(ctx context.Context, path string) (json.RawMessage, error) {
	data, status, err := c.do(ctx, http.MethodGet, path, nil, "application/json")
	if err != nil {
		return nil, err
	}
	if _, err := decodeEnvelope(data, status, fmt.Errorf("Request to %s failed", path)); err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

// parseTime accepts RFC 3339 timestamps and returns the zero time for
// anything else.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// captureList decodes availableCaptures given either as a list of type
// names or as a list of objects with a "type" field.
type captureList []capture.CaptureType

func (l *captureList) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(captureList, 0, len(raw))
	for _, item := range raw {
		var name string
		if err := json.Unmarshal(item, &name); err == nil {
			out = append(out, capture.CaptureType(name))
			continue
		}
		var obj struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(item, &obj); err != nil {
			return fmt.Errorf("unrecognized capture entry: %s", item)
		}
		out = append(out, capture.CaptureType(obj.Type))
	}
	*l = out
	return nil
}
