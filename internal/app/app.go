package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"seren/internal/api"
	"seren/internal/archive"
	"seren/internal/capture"
	"seren/internal/config"
	"seren/internal/database"
	"seren/internal/encryption"
	"seren/internal/staging"
)

// SerenApp is the application layer between the CLI and the capture
// workflow. It constructs all dependencies from config, exposes the
// operator-level operations and manages the journal lifecycle on Close.
type SerenApp struct {
	cfg       *config.Config
	client    *api.Client
	stager    capture.Stager
	journal   capture.Journal
	archive   capture.Archive // nil when archiving is disabled
	encryptor capture.Encryptor
	receipts  *capture.ReceiptService
	camera    *Camera
	logger    capture.Logger
	clock     capture.Clock
	op        *Operation
	logFile   *os.File
}

// NewSerenApp creates a fully wired SerenApp from the given config.
// op identifies the CLI command being run. Warnings and errors are echoed
// to console when it is non-nil. The caller must call Close when done.
func NewSerenApp(ctx context.Context, cfg *config.Config, op *Operation, console io.Writer) (*SerenApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	clock := capture.RealClock{}
	opID := clock.Now().UTC().Format("20060102T150405Z")
	sl, logFile, err := newLogger(cfg.LogDir, opID, console)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: sl}

	a := &SerenApp{
		cfg:     cfg,
		camera:  NewCamera(cfg.Camera),
		logger:  logger,
		clock:   clock,
		op:      op,
		logFile: logFile,
	}
	if err := a.wire(ctx); err != nil {
		a.closeResources()
		return nil, err
	}
	return a, nil
}

func (a *SerenApp) wire(ctx context.Context) error {
	cfg := a.cfg

	client, err := api.NewClientFromConfig(cfg.API, a.logger)
	if err != nil {
		return fmt.Errorf("creating api client: %w", err)
	}
	a.client = client

	a.stager, err = staging.NewStagingAreaFromConfig(cfg.Staging)
	if err != nil {
		return fmt.Errorf("creating staging area: %w", err)
	}

	a.journal, err = database.NewDatabaseFromConfig(cfg.Database, cfg.TerminalID)
	if err != nil {
		return fmt.Errorf("creating journal: %w", err)
	}
	if err := a.journal.CheckMigrations(); err != nil {
		return fmt.Errorf("journal schema out of date: %w", err)
	}

	a.archive, err = archive.NewArchiveFromConfig(ctx, cfg.Archive)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}

	a.encryptor, err = encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}

	var receiptEnc capture.Encryptor
	if cfg.Archive.Encrypt {
		if !a.encryptor.IsConfigured() {
			return fmt.Errorf("archive.encrypt is set but no encryption keys exist: run 'seren config keys init'")
		}
		receiptEnc = a.encryptor
	}

	a.receipts = capture.NewReceiptService(a.journal, a.archive, receiptEnc, cfg.TerminalID, a.logger, a.clock, capture.UUIDGenerator{})
	return nil
}

// persistOperation saves the operation to the journal, giving it an
// auto-increment ID. Only commands that change terminal state call it.
func (a *SerenApp) persistOperation() error {
	if a.op.Persisted() {
		return nil
	}
	id, err := a.journal.CreateOperation(a.op.Name, a.op.Parameters, a.clock.Now())
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = id
	return nil
}

// Config returns the configuration the app was built from.
func (a *SerenApp) Config() *config.Config { return a.cfg }

// Camera returns the image source used by the capture step.
func (a *SerenApp) Camera() *Camera { return a.camera }

// Fail records err against the current operation and returns it.
func (a *SerenApp) Fail(err error) error { return a.op.Track(err) }

// Health queries the service. A failure means the service is offline; it is
// logged but never treated as fatal by callers.
func (a *SerenApp) Health(ctx context.Context) (*capture.HealthInfo, error) {
	info, err := a.client.Health(ctx)
	if err != nil {
		a.logger.Info("service offline", "url", a.client.BaseURL(), "error", err)
		return nil, err
	}
	return info, nil
}

// NewWorkflow creates a capture workflow bound to this terminal's client
// and staging area.
func (a *SerenApp) NewWorkflow() (*capture.Workflow, error) {
	if err := a.persistOperation(); err != nil {
		return nil, err
	}
	return capture.NewWorkflow(a.client, a.stager, a.logger), nil
}

// CaptureRequest describes one non-interactive pass through the workflow.
// Images maps each capture type to a file path; an empty path uses the
// configured capture command.
type CaptureRequest struct {
	OTP    string
	Mode   capture.Mode
	Images map[capture.CaptureType]string
}

// CaptureResult is the outcome of a completed session.
type CaptureResult struct {
	Completed *capture.SessionCompleted
	Receipt   *capture.Receipt // nil when the receipt could not be journaled

	// ReceiptErr is a journal or archive failure after the session was
	// completed on the server.
	ReceiptErr error
}

// Capture runs the whole workflow for one visitor: start the session, set
// the mode, stage every required image, upload and complete. All images are
// acquired before any request is sent.
func (a *SerenApp) Capture(ctx context.Context, req CaptureRequest, progress capture.Progress) (*CaptureResult, error) {
	if req.Mode != capture.ModePedestrian && req.Mode != capture.ModeVehicle {
		return nil, a.Fail(capture.ErrInvalidMode)
	}
	for t := range req.Images {
		if !capture.IsRequired(req.Mode, t) {
			return nil, a.Fail(fmt.Errorf("%w: %s", capture.ErrCaptureNotRequired, t))
		}
	}

	type acquired struct {
		data   []byte
		source string
	}
	images := make(map[capture.CaptureType]acquired)
	for _, t := range capture.RequiredCaptures(req.Mode) {
		data, source, err := a.camera.Acquire(ctx, t, req.Images[t])
		if err != nil {
			return nil, a.Fail(fmt.Errorf("%s image: %w", t, err))
		}
		images[t] = acquired{data: data, source: source}
	}

	wf, err := a.NewWorkflow()
	if err != nil {
		return nil, a.Fail(err)
	}
	wf.SetProgress(progress)
	defer wf.Abandon()

	if _, err := wf.Submit(ctx, req.OTP); err != nil {
		return nil, a.Fail(err)
	}
	if _, err := wf.SelectMode(ctx, req.Mode); err != nil {
		return nil, a.Fail(err)
	}
	if err := wf.EnterCapture(); err != nil {
		return nil, a.Fail(err)
	}
	for _, t := range wf.Required() {
		img := images[t]
		if _, err := wf.Capture(t, img.source, bytes.NewReader(img.data)); err != nil {
			return nil, a.Fail(err)
		}
	}

	done, err := wf.Complete(ctx)
	if err != nil {
		return nil, a.Fail(err)
	}
	return a.recordCompletion(ctx, done), nil
}

// recordCompletion journals (and archives) the receipt for a completed
// session. Failures are reported on the result, never instead of it.
func (a *SerenApp) recordCompletion(ctx context.Context, done *capture.SessionCompleted) *CaptureResult {
	res := &CaptureResult{Completed: done}
	res.Receipt, res.ReceiptErr = a.receipts.Record(ctx, &done.Summary)
	if res.ReceiptErr != nil {
		a.op.Track(res.ReceiptErr)
		a.logger.Info("recording receipt", "session", done.Summary.SessionID, "error", res.ReceiptErr)
	}
	return res
}

// SessionStatus returns the service's raw status document for a session.
func (a *SerenApp) SessionStatus(ctx context.Context, sessionID string) (json.RawMessage, error) {
	return a.client.SessionStatus(ctx, sessionID)
}

// StorageStats returns the service's raw storage statistics.
func (a *SerenApp) StorageStats(ctx context.Context) (json.RawMessage, error) {
	return a.client.StorageStats(ctx)
}

// ListReceipts returns the most recent receipts, newest first.
func (a *SerenApp) ListReceipts(limit int) ([]*capture.Receipt, error) {
	return a.receipts.List(limit)
}

// GetReceipt returns a journaled receipt and its decoded summary.
func (a *SerenApp) GetReceipt(id string) (*capture.Receipt, *capture.CompletionSummary, error) {
	r, err := a.receipts.Get(id)
	if err != nil {
		return nil, nil, err
	}
	summary, err := DecodeSummary(r)
	if err != nil {
		return nil, nil, err
	}
	return r, summary, nil
}

// FetchReceipt downloads the archived copy of a receipt. passphrase is only
// called when the archived copy is encrypted.
func (a *SerenApp) FetchReceipt(ctx context.Context, id string, passphrase func() (string, error)) (*capture.CompletionSummary, error) {
	r, err := a.receipts.Get(id)
	if err != nil {
		return nil, err
	}

	var dc capture.DecryptionContext
	if r.Encrypted {
		if !a.encryptor.IsConfigured() {
			return nil, fmt.Errorf("receipt %s is encrypted but no encryption keys exist", id)
		}
		pass, err := passphrase()
		if err != nil {
			return nil, fmt.Errorf("reading passphrase: %w", err)
		}
		dc, err = a.encryptor.Unlock(pass)
		if err != nil {
			return nil, err
		}
	}
	return a.receipts.Fetch(ctx, id, dc)
}

// SyncReceipts archives every journaled receipt that has not reached the
// archive yet. Returns the number archived.
func (a *SerenApp) SyncReceipts(ctx context.Context) (int, error) {
	if err := a.persistOperation(); err != nil {
		return 0, err
	}
	n, err := a.receipts.ArchivePending(ctx, 0)
	return n, a.Fail(err)
}

// CheckArchive verifies the configured archive is reachable and writable.
func (a *SerenApp) CheckArchive(ctx context.Context) error {
	if a.archive == nil {
		return capture.ErrNoArchive
	}
	return a.archive.ValidateSetup(ctx)
}

// GetHistory returns the most recent operator operations.
func (a *SerenApp) GetHistory(limit int) ([]*capture.OperationRecord, error) {
	return a.journal.ListOperations(limit)
}

// Close finalizes the operation record and closes all resources. Staged
// images never outlive the process.
func (a *SerenApp) Close() error {
	var firstErr error
	if a.op.Persisted() {
		if err := a.journal.FinishOperation(a.op.ID, a.op.Status, a.clock.Now()); err != nil {
			firstErr = fmt.Errorf("finishing operation: %w", err)
		}
	}
	if err := a.closeResources(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (a *SerenApp) closeResources() error {
	var firstErr error
	if a.stager != nil {
		if err := a.stager.Discard(); err != nil {
			firstErr = fmt.Errorf("discarding staged images: %w", err)
		}
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing journal: %w", err)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

// DecodeSummary decodes the completion summary stored with a receipt.
func DecodeSummary(r *capture.Receipt) (*capture.CompletionSummary, error) {
	var s capture.CompletionSummary
	if err := json.Unmarshal(r.Summary, &s); err != nil {
		return nil, fmt.Errorf("decoding receipt %s: %w", r.ID, err)
	}
	return &s, nil
}

// InitKeys generates the receipt encryption key pair. It returns the public
// key when the encryptor exposes one.
func InitKeys(cfg config.EncryptionConfig, passphrase string) (string, error) {
	enc, err := encryption.NewEncryptorFromConfig(cfg)
	if err != nil {
		return "", err
	}
	if err := enc.Setup(passphrase); err != nil {
		return "", err
	}
	if pk, ok := enc.(interface{ PublicKey() (string, error) }); ok {
		return pk.PublicKey()
	}
	return "", nil
}

// WriteHealth prints the service status and, in demo mode, the sample OTPs.
func WriteHealth(w io.Writer, info *capture.HealthInfo, err error) {
	if err != nil {
		fmt.Fprintln(w, "Service: offline")
		var apiErr *api.Error
		if errors.As(err, &apiErr) {
			fmt.Fprintf(w, "  %s\n", apiErr.Message)
		}
		return
	}
	fmt.Fprintln(w, "Service: online")
	if !info.DemoMode || len(info.DemoOTPs) == 0 {
		return
	}
	fmt.Fprintln(w, "Demo OTPs")
	for _, d := range info.DemoOTPs {
		fmt.Fprintf(w, "  %-8s %s (unit %s, %s)\n", d.OTP, d.Resident, d.Unit, d.Type)
	}
}

// FormatDuration renders how long an operation ran, or "" while running.
func FormatDuration(op *capture.OperationRecord) string {
	if op.FinishedAt == nil {
		return ""
	}
	return op.FinishedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
}
