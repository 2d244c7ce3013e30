package capture_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"seren/internal/capture"
	"seren/internal/testutil"
)

func testSummary(sessionID string) *capture.CompletionSummary {
	return &capture.CompletionSummary{
		SessionID:     sessionID,
		Resident:      capture.ResidentInfo{Name: "Jane", UnitNumber: "4B"},
		Mode:          capture.ModeVehicle,
		TotalCaptures: 2,
		CompletedAt:   time.Date(2024, 1, 15, 10, 31, 0, 0, time.UTC),
		Captures: map[capture.CaptureType]capture.CaptureDetail{
			capture.CapturePerson:  {"filename": "person_capture.jpg"},
			capture.CaptureVehicle: {"filename": "vehicle_capture.jpg"},
		},
	}
}

func newReceiptService(t *testing.T, journal capture.Journal, archive capture.Archive, enc capture.Encryptor) *capture.ReceiptService {
	t.Helper()
	return capture.NewReceiptService(journal, archive, enc, "gate-01",
		capture.NewNopLogger(), testutil.FixedClock(), testutil.NewPrefixedIDGenerator("r"))
}

// failingArchive rejects every write.
type failingArchive struct{}

func (failingArchive) PutReceipt(context.Context, string, string, io.Reader, int64) error {
	return errors.New("bucket unreachable")
}
func (failingArchive) GetReceipt(context.Context, string, string, io.Writer) error {
	return errors.New("bucket unreachable")
}
func (failingArchive) ValidateSetup(context.Context) error { return errors.New("bucket unreachable") }

func TestReceiptService_RecordJournalOnly(t *testing.T) {
	journal := testutil.NewTestJournal(t)
	svc := newReceiptService(t, journal, nil, nil)

	r, err := svc.Record(context.Background(), testSummary("S1"))
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if r.ID != "r-1" || r.SessionID != "S1" || r.ResidentName != "Jane" || r.Mode != capture.ModeVehicle {
		t.Errorf("Record() = %+v", r)
	}
	if r.Archived {
		t.Error("receipt archived without an archive")
	}

	again, err := svc.Record(context.Background(), testSummary("S1"))
	if err != nil {
		t.Fatalf("second Record() error = %v", err)
	}
	if again.ID != "r-1" {
		t.Errorf("second Record() ID = %s, want the existing r-1", again.ID)
	}

	list, err := svc.List(0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 {
		t.Errorf("List() returned %d receipts, want 1", len(list))
	}

	if _, err := svc.Fetch(context.Background(), "r-1", nil); !errors.Is(err, capture.ErrNoArchive) {
		t.Errorf("Fetch() without archive error = %v, want ErrNoArchive", err)
	}
}

func TestReceiptService_RecordEncryptedArchive(t *testing.T) {
	journal := testutil.NewTestJournal(t)
	archive := testutil.NewTestArchive()
	enc := testutil.NewTestEncryptor()
	svc := newReceiptService(t, journal, archive, enc)
	ctx := context.Background()

	r, err := svc.Record(ctx, testSummary("S1"))
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if !r.Archived || !r.Encrypted {
		t.Errorf("Archived/Encrypted = %v/%v, want true/true", r.Archived, r.Encrypted)
	}
	if archive.Len() != 1 {
		t.Errorf("archive holds %d receipts, want 1", archive.Len())
	}

	stored, err := svc.Get(r.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !stored.Archived || !stored.Encrypted {
		t.Error("journal not updated after archiving")
	}

	if _, err := svc.Fetch(ctx, r.ID, nil); err == nil {
		t.Error("Fetch() of encrypted receipt without a key expected error")
	}

	dc, err := enc.Unlock("")
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	summary, err := svc.Fetch(ctx, r.ID, dc)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if summary.SessionID != "S1" || summary.Mode != capture.ModeVehicle || summary.TotalCaptures != 2 {
		t.Errorf("Fetch() = %+v", summary)
	}
	if !summary.CompletedAt.Equal(testSummary("S1").CompletedAt) {
		t.Errorf("CompletedAt = %v", summary.CompletedAt)
	}
	if _, ok := summary.Captures[capture.CaptureVehicle]; !ok {
		t.Error("vehicle capture lost in round trip")
	}
}

func TestReceiptService_RecordPlainArchive(t *testing.T) {
	svc := newReceiptService(t, testutil.NewTestJournal(t), testutil.NewTestArchive(), nil)

	r, err := svc.Record(context.Background(), testSummary("S1"))
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if !r.Archived || r.Encrypted {
		t.Errorf("Archived/Encrypted = %v/%v, want true/false", r.Archived, r.Encrypted)
	}
	summary, err := svc.Fetch(context.Background(), r.ID, nil)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if summary.Resident.UnitNumber != "4B" {
		t.Errorf("Fetch() resident = %+v", summary.Resident)
	}
}

func TestReceiptService_ArchiveFailureKeepsReceipt(t *testing.T) {
	journal := testutil.NewTestJournal(t)
	svc := newReceiptService(t, journal, failingArchive{}, nil)

	r, err := svc.Record(context.Background(), testSummary("S1"))
	if err == nil {
		t.Fatal("Record() expected archive error")
	}
	if r == nil || r.Archived {
		t.Fatalf("Record() receipt = %+v, want journaled and unarchived", r)
	}

	// a later sync with a working archive picks it up
	archive := testutil.NewTestArchive()
	retry := newReceiptService(t, journal, archive, nil)
	n, err := retry.ArchivePending(context.Background(), 0)
	if err != nil {
		t.Fatalf("ArchivePending() error = %v", err)
	}
	if n != 1 || archive.Len() != 1 {
		t.Errorf("ArchivePending() = %d, archive has %d, want 1/1", n, archive.Len())
	}

	n, err = retry.ArchivePending(context.Background(), 0)
	if err != nil || n != 0 {
		t.Errorf("second ArchivePending() = %d, %v; want 0, nil", n, err)
	}
}

func TestReceiptService_GetMissing(t *testing.T) {
	svc := newReceiptService(t, testutil.NewTestJournal(t), nil, nil)
	if _, err := svc.Get("nope"); !errors.Is(err, capture.ErrReceiptNotFound) {
		t.Errorf("Get() error = %v, want ErrReceiptNotFound", err)
	}
	if _, err := svc.ArchivePending(context.Background(), 0); !errors.Is(err, capture.ErrNoArchive) {
		t.Errorf("ArchivePending() without archive error = %v, want ErrNoArchive", err)
	}
}
