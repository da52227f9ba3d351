package snapshot

import (
	"context"
	"database/sql"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sameersharmadev/canverse/internal/board"
)

// SQLiteStore is a file-backed snapshot store. Rows carry an expiry
// timestamp and expired rows are treated as absent; Sweep reclaims them.
type SQLiteStore struct {
	db *sql.DB
}

var _ board.Cache = (*SQLiteStore)(nil)

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// WAL keeps readers from blocking the write-through path
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS room_snapshots (
		room_id TEXT PRIMARY KEY,
		snapshot_data BLOB NOT NULL,
		expires_at INTEGER NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_room_snapshots_expires_at ON room_snapshots(expires_at);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}

	log.Printf("Snapshot database initialized at %s", path)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context, roomID string) (*board.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT snapshot_data, expires_at FROM room_snapshots WHERE room_id = ?",
		roomID,
	)

	var data []byte
	var expiresAt int64
	err := row.Scan(&data, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, board.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}

	if expiresAt <= time.Now().Unix() {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM room_snapshots WHERE room_id = ?", roomID); err != nil {
			log.Printf("Failed to drop expired snapshot for room %s: %v", roomID, err)
		}
		return nil, board.ErrSnapshotNotFound
	}

	var snap board.Snapshot
	if err := snap.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *SQLiteStore) Save(ctx context.Context, roomID string, snap *board.Snapshot, ttl time.Duration) error {
	data, err := snap.MarshalBinary()
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO room_snapshots (room_id, snapshot_data, expires_at, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(room_id) DO UPDATE SET
			snapshot_data = excluded.snapshot_data,
			expires_at = excluded.expires_at,
			updated_at = CURRENT_TIMESTAMP
	`, roomID, data, time.Now().Add(ttl).Unix())
	return err
}

func (s *SQLiteStore) Delete(ctx context.Context, roomID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM room_snapshots WHERE room_id = ?", roomID)
	return err
}

// Sweep deletes every expired row and returns how many were reclaimed.
func (s *SQLiteStore) Sweep(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM room_snapshots WHERE expires_at <= ?",
		time.Now().Unix(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
