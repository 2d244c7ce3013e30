// Package demo is a self-contained Remote Access Service for trying the
// terminal without a real backend. It accepts a fixed set of OTPs and keeps
// all sessions in memory.
package demo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"seren/internal/capture"
	"seren/internal/config"
)

// DefaultMaxImageSize caps a single upload (10MB).
const DefaultMaxImageSize int64 = 10 * 1024 * 1024

// Account is a demo OTP and the resident it belongs to.
type Account struct {
	OTP      string
	Resident capture.ResidentInfo
	Mode     capture.Mode // the visit type the resident expects
}

// DefaultAccounts are advertised by the health endpoint.
var DefaultAccounts = []Account{
	{
		OTP:      "123456",
		Resident: capture.ResidentInfo{Name: "Jane Smith", UnitNumber: "4B", Phone: "+27 82 555 0101", Email: "jane.smith@example.com"},
		Mode:     capture.ModePedestrian,
	},
	{
		OTP:      "654321",
		Resident: capture.ResidentInfo{Name: "John Doe", UnitNumber: "12A", Phone: "+27 83 555 0199"},
		Mode:     capture.ModeVehicle,
	},
	{
		OTP:      "111222",
		Resident: capture.ResidentInfo{Name: "Thandi Nkosi", UnitNumber: "7C"},
		Mode:     capture.ModeVehicle,
	},
}

// Server serves the demo API under /api/capture.
type Server struct {
	accounts     map[string]Account
	order        []Account
	sessions     *store
	limiters     *limiterStore // nil disables rate limiting
	maxImageSize int64
	logger       capture.Logger
	clock        capture.Clock
	idgen        capture.IDGenerator
	engine       *gin.Engine
}

// NewServer creates a demo server. A non-positive cfg.RatePerSecond
// disables rate limiting.
func NewServer(cfg config.DemoConfig, accounts []Account, logger capture.Logger, clock capture.Clock, idgen capture.IDGenerator) *Server {
	srv := &Server{
		accounts:     make(map[string]Account, len(accounts)),
		order:        accounts,
		sessions:     newStore(),
		maxImageSize: DefaultMaxImageSize,
		logger:       logger,
		clock:        clock,
		idgen:        idgen,
	}
	for _, a := range accounts {
		srv.accounts[a.OTP] = a
	}
	if cfg.RatePerSecond > 0 {
		srv.limiters = newLimiterStore(cfg.RatePerSecond, cfg.Burst)
	}
	srv.engine = srv.routes()
	return srv
}

// Handler returns the HTTP handler for the demo API.
func (srv *Server) Handler() http.Handler {
	return srv.engine
}

// ListenAndServe serves on addr until ctx is cancelled.
func (srv *Server) ListenAndServe(ctx context.Context, addr string) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           srv.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- hs.ListenAndServe() }()
	srv.logger.Info("demo service listening", "addr", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.logger.Info("demo service shutting down")
		return hs.Shutdown(shutdownCtx)
	}
}

func (srv *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), srv.requestLog(), srv.rateLimit())
	r.MaxMultipartMemory = srv.maxImageSize

	api := r.Group("/api/capture")
	api.GET("/health", srv.health)
	api.POST("/session/start", srv.startSession)
	api.POST("/session/:id/mode", srv.setMode)
	api.POST("/session/:id/capture/:type", srv.uploadCapture)
	api.POST("/session/:id/complete", srv.completeSession)
	api.GET("/session/:id/status", srv.sessionStatus)
	api.GET("/storage/stats", srv.storageStats)
	return r
}

func (srv *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := srv.clock.Now()
		c.Next()
		srv.logger.Debug("demo request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", srv.clock.Now().Sub(start))
	}
}

func ok(c *gin.Context, data any) {
	body := gin.H{"success": true}
	if data != nil {
		body["data"] = data
	}
	c.JSON(http.StatusOK, body)
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"success": false, "error": msg})
}

// failSession maps store errors to responses.
func failSession(c *gin.Context, err error) {
	status := http.StatusBadRequest
	if errors.Is(err, errSessionNotFound) {
		status = http.StatusNotFound
	}
	fail(c, status, err.Error())
}

func (srv *Server) health(c *gin.Context) {
	otps := make([]capture.DemoOTP, 0, len(srv.order))
	for _, a := range srv.order {
		otps = append(otps, capture.DemoOTP{
			OTP:      a.OTP,
			Resident: a.Resident.Name,
			Unit:     a.Resident.UnitNumber,
			Type:     string(a.Mode),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"status":   "ok",
		"demoMode": true,
		"demoOTPs": otps,
	})
}

func (srv *Server) startSession(c *gin.Context) {
	var req struct {
		OTP string `json:"otp"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.OTP) == "" {
		fail(c, http.StatusBadRequest, "OTP is required")
		return
	}
	account, found := srv.accounts[strings.TrimSpace(req.OTP)]
	if !found {
		fail(c, http.StatusNotFound, "Invalid or expired OTP")
		return
	}

	s := srv.sessions.create(srv.idgen.New(), account.Resident, srv.clock.Now())
	srv.logger.Info("demo session started", "session", s.ID, "unit", account.Resident.UnitNumber)
	ok(c, capture.Session{ID: s.ID, Resident: s.Resident})
}

type captureOption struct {
	Type        capture.CaptureType `json:"type"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Required    bool                `json:"required"`
}

func (srv *Server) setMode(c *gin.Context) {
	var req struct {
		Mode string `json:"mode"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Mode is required")
		return
	}
	mode, err := capture.ParseMode(req.Mode)
	if err != nil {
		fail(c, http.StatusBadRequest, "Invalid capture mode")
		return
	}

	err = srv.sessions.update(c.Param("id"), func(s *session) error {
		if !s.CompletedAt.IsZero() {
			return errSessionCompleted
		}
		s.Mode = mode
		// changing the mode invalidates earlier uploads
		s.Captures = make(map[capture.CaptureType]storedImage)
		return nil
	})
	if err != nil {
		failSession(c, err)
		return
	}

	var options []captureOption
	for _, t := range capture.RequiredCaptures(mode) {
		info := capture.CaptureInfo(t)
		options = append(options, captureOption{Type: t, Title: info.Title, Description: info.Description, Required: true})
	}
	ok(c, gin.H{"mode": mode, "availableCaptures": options})
}

func (srv *Server) uploadCapture(c *gin.Context) {
	captureType, err := capture.ParseCaptureType(c.Param("type"))
	if err != nil {
		fail(c, http.StatusBadRequest, "Invalid capture type")
		return
	}

	fh, err := c.FormFile("image")
	if err != nil {
		fail(c, http.StatusBadRequest, "No image file provided")
		return
	}
	if fh.Size > srv.maxImageSize {
		fail(c, http.StatusBadRequest, "Image too large")
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, http.StatusInternalServerError, "Failed to read image")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, srv.maxImageSize+1))
	if err != nil {
		fail(c, http.StatusInternalServerError, "Failed to read image")
		return
	}
	contentType := http.DetectContentType(data)
	if contentType != "image/jpeg" && contentType != "image/png" {
		fail(c, http.StatusBadRequest, "Only JPEG and PNG images are accepted")
		return
	}
	sum := sha256.Sum256(data)
	img := storedImage{
		Filename:    fh.Filename,
		ContentType: contentType,
		Size:        int64(len(data)),
		Checksum:    hex.EncodeToString(sum[:]),
		UploadedAt:  srv.clock.Now(),
	}

	err = srv.sessions.update(c.Param("id"), func(s *session) error {
		if !s.CompletedAt.IsZero() {
			return errSessionCompleted
		}
		if s.Mode == "" {
			return errModeNotSet
		}
		if !capture.IsRequired(s.Mode, captureType) {
			return fmt.Errorf("Capture type %s is not allowed in %s mode", captureType, s.Mode)
		}
		s.Captures[captureType] = img
		return nil
	})
	if err != nil {
		failSession(c, err)
		return
	}

	srv.logger.Info("demo capture stored", "session", c.Param("id"), "type", captureType, "size", img.Size)
	ok(c, gin.H{"type": captureType, "filename": img.Filename, "size": img.Size})
}

func (srv *Server) completeSession(c *gin.Context) {
	var summary gin.H
	err := srv.sessions.update(c.Param("id"), func(s *session) error {
		if !s.CompletedAt.IsZero() {
			return errSessionCompleted
		}
		if s.Mode == "" {
			return errModeNotSet
		}
		if missing := s.missing(); len(missing) > 0 {
			names := make([]string, len(missing))
			for i, t := range missing {
				names[i] = string(t)
			}
			return fmt.Errorf("Missing required captures: %s", strings.Join(names, ", "))
		}
		s.CompletedAt = srv.clock.Now()
		summary = completionSummary(s)
		return nil
	})
	if err != nil {
		failSession(c, err)
		return
	}

	srv.logger.Info("demo session completed", "session", c.Param("id"))
	ok(c, summary)
}

// completionSummary lists every capture type; types the mode did not
// require are reported as null.
func completionSummary(s *session) gin.H {
	captures := gin.H{}
	for _, t := range []capture.CaptureType{capture.CapturePerson, capture.CaptureVehicle} {
		if img, found := s.Captures[t]; found {
			captures[string(t)] = img
		} else {
			captures[string(t)] = nil
		}
	}
	return gin.H{
		"sessionId":     s.ID,
		"residentInfo":  s.Resident,
		"mode":          s.Mode,
		"totalCaptures": len(s.Captures),
		"completedAt":   s.CompletedAt.UTC().Format(time.RFC3339Nano),
		"captures":      captures,
	}
}

func (srv *Server) sessionStatus(c *gin.Context) {
	var status gin.H
	err := srv.sessions.update(c.Param("id"), func(s *session) error {
		status = gin.H{
			"sessionId": s.ID,
			"status":    s.status(),
			"mode":      s.Mode,
			"captures":  sortedTypes(s.Captures),
			"missing":   s.missing(),
			"createdAt": s.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
		return nil
	})
	if err != nil {
		failSession(c, err)
		return
	}
	ok(c, status)
}

func (srv *Server) storageStats(c *gin.Context) {
	ok(c, srv.sessions.stats())
}
