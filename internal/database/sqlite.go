package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"seren/internal/capture"
	"seren/internal/database/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements capture.Journal using SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

var _ capture.Journal = (*SQLiteDatabase)(nil)

// NewSQLiteDatabase opens the journal at path and brings its schema up to
// date. path can be a file path or ":memory:".
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteDatabase{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}
	return db, nil
}

// Path returns the database file path (or ":memory:").
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// Receipt operations

const receiptColumns = `id, session_id, resident_name, unit_number, mode, total_captures,
	completed_at, recorded_at, summary, archived, encrypted`

func (s *SQLiteDatabase) CreateReceipt(r *capture.Receipt) error {
	var completedAt sql.NullTime
	if !r.CompletedAt.IsZero() {
		completedAt = sql.NullTime{Time: r.CompletedAt.UTC(), Valid: true}
	}
	_, err := s.db.Exec(`INSERT INTO receipts (`+receiptColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SessionID, r.ResidentName, r.UnitNumber, string(r.Mode), r.TotalCaptures,
		completedAt, r.RecordedAt.UTC(), r.Summary, r.Archived, r.Encrypted)
	if err != nil {
		return fmt.Errorf("creating receipt: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FindReceipt(id string) (*capture.Receipt, error) {
	row := s.db.QueryRow(`SELECT `+receiptColumns+` FROM receipts WHERE id = ?`, id)
	r, err := scanReceipt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding receipt: %w", err)
	}
	return r, nil
}

func (s *SQLiteDatabase) FindReceiptBySession(sessionID string) (*capture.Receipt, error) {
	row := s.db.QueryRow(`SELECT `+receiptColumns+` FROM receipts WHERE session_id = ?`, sessionID)
	r, err := scanReceipt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding receipt by session: %w", err)
	}
	return r, nil
}

// ListReceipts returns receipts newest first. A limit <= 0 returns all.
func (s *SQLiteDatabase) ListReceipts(limit int) ([]*capture.Receipt, error) {
	rows, err := s.db.Query(`SELECT `+receiptColumns+` FROM receipts
		ORDER BY recorded_at DESC, rowid DESC LIMIT ?`, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	defer rows.Close()

	var receipts []*capture.Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning receipt: %w", err)
		}
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}

func (s *SQLiteDatabase) MarkReceiptArchived(id string, encrypted bool) error {
	res, err := s.db.Exec(`UPDATE receipts SET archived = 1, encrypted = ? WHERE id = ?`, encrypted, id)
	if err != nil {
		return fmt.Errorf("marking receipt archived: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("marking receipt archived: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", capture.ErrReceiptNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReceipt(row rowScanner) (*capture.Receipt, error) {
	var (
		r           capture.Receipt
		mode        string
		completedAt sql.NullTime
	)
	err := row.Scan(&r.ID, &r.SessionID, &r.ResidentName, &r.UnitNumber, &mode, &r.TotalCaptures,
		&completedAt, &r.RecordedAt, &r.Summary, &r.Archived, &r.Encrypted)
	if err != nil {
		return nil, err
	}
	r.Mode = capture.Mode(mode)
	if completedAt.Valid {
		r.CompletedAt = completedAt.Time
	}
	return &r, nil
}

// Operation operations

func (s *SQLiteDatabase) CreateOperation(operation, parameters string, startedAt time.Time) (int64, error) {
	res, err := s.db.Exec(`INSERT INTO operations (operation, parameters, started_at, status)
		VALUES (?, ?, ?, 'running')`, operation, parameters, startedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("creating operation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("creating operation: %w", err)
	}
	return id, nil
}

func (s *SQLiteDatabase) FinishOperation(id int64, status string, finishedAt time.Time) error {
	_, err := s.db.Exec(`UPDATE operations SET status = ?, finished_at = ? WHERE id = ?`,
		status, finishedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	return nil
}

// ListOperations returns operations newest first. A limit <= 0 returns all.
func (s *SQLiteDatabase) ListOperations(limit int) ([]*capture.OperationRecord, error) {
	rows, err := s.db.Query(`SELECT id, operation, parameters, started_at, finished_at, status
		FROM operations ORDER BY id DESC LIMIT ?`, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var ops []*capture.OperationRecord
	for rows.Next() {
		var (
			op         capture.OperationRecord
			finishedAt sql.NullTime
		)
		if err := rows.Scan(&op.ID, &op.Operation, &op.Parameters, &op.StartedAt, &finishedAt, &op.Status); err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		if finishedAt.Valid {
			t := finishedAt.Time
			op.FinishedAt = &t
		}
		ops = append(ops, &op)
	}
	return ops, rows.Err()
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// sqlLimit maps "no limit" to SQLite's LIMIT -1.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
