package leads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the durable local lead log. Writes are serialized by mu and by
// keeping a single open connection.
type Store struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// scanRecord handles nullable columns when scanning a row
func scanRecord(scanner interface{ Scan(...any) error }) (*Record, error) {
	var r Record
	var status string
	var username sql.NullString
	var createdAt, updatedAt sql.NullTime

	err := scanner.Scan(&r.ID, &r.Name, &r.Email, &r.UserID, &username, &status, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	r.Username = username.String
	r.Status = Status(status)
	r.CreatedAt = createdAt.Time
	r.UpdatedAt = updatedAt.Time
	return &r, nil
}

const selectColumns = `SELECT id, name, email, user_id, username, status, created_at, updated_at FROM leads`

// NewStore opens (creating if missing) the SQLite file at dbPath.
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, &PersistenceError{Op: "open", Err: fmt.Errorf("failed to create store directory: %w", err)}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, &PersistenceError{Op: "open", Err: fmt.Errorf("failed to open database: %w", err)}
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS leads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		user_id TEXT NOT NULL,
		username TEXT,
		status TEXT NOT NULL DEFAULT 'Pending',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_leads_user_email ON leads(user_id, email);
	CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
	`

	if _, err := s.db.Exec(query); err != nil {
		return &PersistenceError{Op: "migrate", Err: err}
	}
	return nil
}

// Append inserts r as a new row and fills in its ID and timestamps. An
// empty status is stored as Pending.
func (s *Store) Append(ctx context.Context, r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.Status == "" {
		r.Status = StatusPending
	}
	now := s.now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	result, err := s.db.ExecContext(ctx, `
	INSERT INTO leads (name, email, user_id, username, status, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.Name, r.Email, r.UserID, r.Username, string(r.Status), r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return &PersistenceError{Op: "append", Err: fmt.Errorf("failed to insert lead: %w", err)}
	}

	id, err := result.LastInsertId()
	if err != nil {
		return &PersistenceError{Op: "append", Err: fmt.Errorf("failed to get last insert id: %w", err)}
	}
	r.ID = id
	return nil
}

// UpdateStatus moves the most recent record for userID and email
// (case-insensitive) from Pending to status. It reports false when there is
// no such record or the record has already left Pending.
func (s *Store) UpdateStatus(ctx context.Context, userID, email string, status Status) (bool, error) {
	if !status.Final() {
		return false, &PersistenceError{Op: "update", Err: fmt.Errorf("invalid target status %q", status)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var id int64
	var current string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, status FROM leads WHERE user_id = ? AND lower(email) = lower(?) ORDER BY id DESC LIMIT 1`,
		userID, email,
	).Scan(&id, &current)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, &PersistenceError{Op: "update", Err: fmt.Errorf("failed to query lead: %w", err)}
	}
	if Status(current) != StatusPending {
		return false, nil
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE leads SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(status), s.now(), id, string(StatusPending),
	)
	if err != nil {
		return false, &PersistenceError{Op: "update", Err: fmt.Errorf("failed to update lead: %w", err)}
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, &PersistenceError{Op: "update", Err: err}
	}
	return n == 1, nil
}

// All returns every record in insertion order.
func (s *Store) All(ctx context.Context) ([]Record, error) {
	return s.query(ctx, "all", selectColumns+` ORDER BY id ASC`)
}

// ForUser returns userID's records in insertion order.
func (s *Store) ForUser(ctx context.Context, userID string) ([]Record, error) {
	return s.query(ctx, "for user", selectColumns+` WHERE user_id = ? ORDER BY id ASC`, userID)
}

// Latest returns the most recent record for email, or nil.
func (s *Store) Latest(ctx context.Context, email string) (*Record, error) {
	record, err := scanRecord(s.db.QueryRowContext(ctx,
		selectColumns+` WHERE lower(email) = lower(?) ORDER BY id DESC LIMIT 1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "latest", Err: fmt.Errorf("failed to query lead: %w", err)}
	}
	return record, nil
}

func (s *Store) query(ctx context.Context, op, query string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &PersistenceError{Op: op, Err: fmt.Errorf("failed to query leads: %w", err)}
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, &PersistenceError{Op: op, Err: fmt.Errorf("failed to scan lead: %w", err)}
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: op, Err: err}
	}
	return records, nil
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	query := `SELECT COUNT(*),
		SUM(CASE WHEN status='Pending' THEN 1 ELSE 0 END),
		SUM(CASE WHEN status='Verified' THEN 1 ELSE 0 END),
		SUM(CASE WHEN status='Invalid' THEN 1 ELSE 0 END) FROM leads`

	var st Stats
	var pending, verified, invalid sql.NullInt64
	if err := s.db.QueryRowContext(ctx, query).Scan(&st.Total, &pending, &verified, &invalid); err != nil {
		return Stats{}, &PersistenceError{Op: "stats", Err: fmt.Errorf("failed to get stats: %w", err)}
	}
	st.Pending = int(pending.Int64)
	st.Verified = int(verified.Int64)
	st.Invalid = int(invalid.Int64)
	return st, nil
}

func (s *Store) Close() error { return s.db.Close() }
