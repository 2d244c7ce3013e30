package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// ReceiptService records completed sessions on the terminal and, when an
// archive is configured, copies each receipt off the terminal.
type ReceiptService struct {
	journal    Journal
	archive    Archive   // may be nil
	encryptor  Encryptor // may be nil when receipts are archived in plaintext
	terminalID string
	logger     Logger
	clock      Clock
	idgen      IDGenerator
}

// NewReceiptService creates a ReceiptService. archive and encryptor are optional.
func NewReceiptService(journal Journal, archive Archive, encryptor Encryptor, terminalID string, logger Logger, clock Clock, idgen IDGenerator) *ReceiptService {
	return &ReceiptService{
		journal:    journal,
		archive:    archive,
		encryptor:  encryptor,
		terminalID: terminalID,
		logger:     logger,
		clock:      clock,
		idgen:      idgen,
	}
}

// Record journals the summary of a completed session and archives it.
//
// The journal entry is written first. An archive failure is returned to the
// caller but leaves the receipt journaled with Archived=false, so the
// terminal never loses track of a completed session.
func (s *ReceiptService) Record(ctx context.Context, summary *CompletionSummary) (*Receipt, error) {
	existing, err := s.journal.FindReceiptBySession(summary.SessionID)
	if err != nil {
		return nil, fmt.Errorf("checking for existing receipt: %w", err)
	}
	if existing != nil {
		s.logger.Debug("receipt already recorded", "session", summary.SessionID)
		return existing, nil
	}

	doc, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("encoding summary: %w", err)
	}

	r := &Receipt{
		ID:            s.idgen.New(),
		SessionID:     summary.SessionID,
		ResidentName:  summary.Resident.Name,
		UnitNumber:    summary.Resident.UnitNumber,
		Mode:          summary.Mode,
		TotalCaptures: summary.TotalCaptures,
		CompletedAt:   summary.CompletedAt,
		RecordedAt:    s.clock.Now(),
		Summary:       doc,
	}
	if err := s.journal.CreateReceipt(r); err != nil {
		return nil, fmt.Errorf("recording receipt: %w", err)
	}
	s.logger.Info("receipt recorded", "receipt", r.ID, "session", r.SessionID)

	if s.archive == nil {
		return r, nil
	}
	if err := s.archiveReceipt(ctx, r); err != nil {
		return r, err
	}
	return r, nil
}

func (s *ReceiptService) archiveReceipt(ctx context.Context, r *Receipt) error {
	payload := r.Summary
	encrypted := false
	if s.encryptor != nil {
		var buf bytes.Buffer
		if err := s.encryptor.Encrypt(bytes.NewReader(r.Summary), &buf); err != nil {
			return fmt.Errorf("encrypting receipt: %w", err)
		}
		payload = buf.Bytes()
		encrypted = true
	}

	if err := s.archive.PutReceipt(ctx, s.terminalID, r.ID, bytes.NewReader(payload), int64(len(payload))); err != nil {
		return fmt.Errorf("archiving receipt: %w", err)
	}
	if err := s.journal.MarkReceiptArchived(r.ID, encrypted); err != nil {
		return fmt.Errorf("marking receipt archived: %w", err)
	}
	r.Archived = true
	r.Encrypted = encrypted

	s.logger.Info("receipt archived", "receipt", r.ID, "encrypted", encrypted)
	return nil
}

// List returns the most recent receipts, newest first.
func (s *ReceiptService) List(limit int) ([]*Receipt, error) {
	receipts, err := s.journal.ListReceipts(limit)
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	return receipts, nil
}

// Get returns a journaled receipt.
func (s *ReceiptService) Get(id string) (*Receipt, error) {
	r, err := s.journal.FindReceipt(id)
	if err != nil {
		return nil, fmt.Errorf("finding receipt: %w", err)
	}
	if r == nil {
		return nil, fmt.Errorf("%w: %s", ErrReceiptNotFound, id)
	}
	return r, nil
}

// Fetch downloads an archived receipt and decrypts it with dc when the
// archived copy is encrypted. dc may be nil for plaintext receipts.
func (s *ReceiptService) Fetch(ctx context.Context, id string, dc DecryptionContext) (*CompletionSummary, error) {
	if s.archive == nil {
		return nil, ErrNoArchive
	}
	r, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if !r.Archived {
		return nil, fmt.Errorf("receipt %s has not been archived", id)
	}

	var raw bytes.Buffer
	if err := s.archive.GetReceipt(ctx, s.terminalID, id, &raw); err != nil {
		return nil, fmt.Errorf("downloading receipt: %w", err)
	}

	doc := raw.Bytes()
	if r.Encrypted {
		if dc == nil {
			return nil, fmt.Errorf("receipt %s is encrypted: passphrase required", id)
		}
		var plain bytes.Buffer
		if err := dc.Decrypt(bytes.NewReader(doc), &plain); err != nil {
			return nil, fmt.Errorf("decrypting receipt: %w", err)
		}
		doc = plain.Bytes()
	}

	var summary CompletionSummary
	if err := json.Unmarshal(doc, &summary); err != nil {
		return nil, fmt.Errorf("decoding receipt: %w", err)
	}
	return &summary, nil
}

// ArchivePending retries archiving for journaled receipts that never reached
// the archive. Returns the number archived.
func (s *ReceiptService) ArchivePending(ctx context.Context, limit int) (int, error) {
	if s.archive == nil {
		return 0, ErrNoArchive
	}
	receipts, err := s.journal.ListReceipts(limit)
	if err != nil {
		return 0, fmt.Errorf("listing receipts: %w", err)
	}
	count := 0
	for _, r := range receipts {
		if r.Archived {
			continue
		}
		if err := s.archiveReceipt(ctx, r); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
