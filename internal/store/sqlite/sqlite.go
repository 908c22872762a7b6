package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/beamlink/relay-server/internal/store"
)

// SQLiteStore implements store.RoomStore on a SQLite database. Recipient
// membership lives in its own table so joins and disconnect scrubs are
// row-level operations instead of whole-document rewrites.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	code       TEXT PRIMARY KEY,
	sender     TEXT NOT NULL,
	files      TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rooms_sender ON rooms(sender);

CREATE TABLE IF NOT EXISTS recipients (
	room_code TEXT NOT NULL,
	conn_id   TEXT NOT NULL,
	chunks    TEXT NOT NULL DEFAULT '[]',
	PRIMARY KEY (room_code, conn_id)
);
CREATE INDEX IF NOT EXISTS idx_recipients_conn ON recipients(conn_id);
`

// New creates a SQLite room store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get retrieves a room by code.
func (s *SQLiteStore) Get(ctx context.Context, code string) (*store.Room, error) {
	query := `
		SELECT code, sender, files, created_at
		FROM rooms
		WHERE code = ?
	`
	var room store.Room
	var filesJSON string
	err := s.db.QueryRowContext(ctx, query, code).Scan(&room.Code, &room.Sender, &filesJSON, &room.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select room: %w", err)
	}

	if err := json.Unmarshal([]byte(filesJSON), &room.Files); err != nil {
		return nil, fmt.Errorf("decode files: %w", err)
	}

	room.Recipients, err = s.loadRecipients(ctx, code)
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// Upsert writes a room record, replacing any existing record with the same
// code, recipients included.
func (s *SQLiteStore) Upsert(ctx context.Context, room *store.Room) error {
	filesJSON, err := json.Marshal(room.Files)
	if err != nil {
		return fmt.Errorf("encode files: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO rooms (code, sender, files, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			sender = excluded.sender,
			files = excluded.files,
			created_at = excluded.created_at
	`
	if _, err := tx.ExecContext(ctx, query, room.Code, room.Sender, string(filesJSON), room.CreatedAt); err != nil {
		return fmt.Errorf("upsert room: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM recipients WHERE room_code = ?`, room.Code); err != nil {
		return fmt.Errorf("clear recipients: %w", err)
	}
	for connID, chunks := range room.Recipients {
		chunksJSON, err := json.Marshal(chunks)
		if err != nil {
			return fmt.Errorf("encode chunks: %w", err)
		}
		insert := `INSERT INTO recipients (room_code, conn_id, chunks) VALUES (?, ?, ?)`
		if _, err := tx.ExecContext(ctx, insert, room.Code, connID, string(chunksJSON)); err != nil {
			return fmt.Errorf("insert recipient: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// Delete removes a room record and its recipients. Absent rooms are ignored.
func (s *SQLiteStore) Delete(ctx context.Context, code string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM recipients WHERE room_code = ?`, code); err != nil {
		return fmt.Errorf("delete recipients: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM rooms WHERE code = ?`, code); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

// AddRecipient inserts a recipient row for an existing room. The insert is a
// single-row operation, so concurrent joins never clobber each other.
func (s *SQLiteStore) AddRecipient(ctx context.Context, code, connID string) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM rooms WHERE code = ?`, code).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check room: %w", err)
	}

	query := `INSERT OR IGNORE INTO recipients (room_code, conn_id, chunks) VALUES (?, ?, '[]')`
	if _, err := s.db.ExecContext(ctx, query, code, connID); err != nil {
		return fmt.Errorf("insert recipient: %w", err)
	}
	return nil
}

// FindBySender returns every room owned by the given connection.
func (s *SQLiteStore) FindBySender(ctx context.Context, connID string) ([]*store.Room, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT code FROM rooms WHERE sender = ?`, connID)
	if err != nil {
		return nil, fmt.Errorf("select rooms by sender: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan room code: %w", err)
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rooms: %w", err)
	}

	var owned []*store.Room
	for _, code := range codes {
		room, err := s.Get(ctx, code)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		owned = append(owned, room)
	}
	return owned, nil
}

// RemoveRecipientEverywhere deletes the recipient rows for a connection.
func (s *SQLiteStore) RemoveRecipientEverywhere(ctx context.Context, connID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM recipients WHERE conn_id = ?`, connID); err != nil {
		return fmt.Errorf("delete recipient rows: %w", err)
	}
	return nil
}

// ExpiredCodes returns codes of rooms created before cutoff.
func (s *SQLiteStore) ExpiredCodes(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT code FROM rooms WHERE created_at < ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("select expired rooms: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan expired code: %w", err)
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired rooms: %w", err)
	}
	return codes, nil
}

func (s *SQLiteStore) loadRecipients(ctx context.Context, code string) (map[string][]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT conn_id, chunks FROM recipients WHERE room_code = ?`, code)
	if err != nil {
		return nil, fmt.Errorf("select recipients: %w", err)
	}
	defer rows.Close()

	recipients := make(map[string][]int)
	for rows.Next() {
		var connID, chunksJSON string
		if err := rows.Scan(&connID, &chunksJSON); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		var chunks []int
		if err := json.Unmarshal([]byte(chunksJSON), &chunks); err != nil {
			return nil, fmt.Errorf("decode chunks: %w", err)
		}
		recipients[connID] = chunks
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recipients: %w", err)
	}
	return recipients, nil
}
