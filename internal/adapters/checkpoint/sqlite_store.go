package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/core"
)

// SQLiteStore is a SQLite implementation of the CheckpointRepository interface.
// Timestamps are stored as unix seconds.
type SQLiteStore struct {
	db      *sql.DB
	logger  *zap.Logger
	ttl     time.Duration
	janitor *janitor
}

// NewSQLiteStore creates a new SQLite checkpoint store
func NewSQLiteStore(dbPath string, logger *zap.Logger, ttl, cleanupFreq time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// a single connection keeps ":memory:" databases shared across calls
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS mailbox_checkpoints (
			mailbox TEXT PRIMARY KEY,
			uid_validity INTEGER NOT NULL,
			last_uid INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_checkpoint_expires_at ON mailbox_checkpoints(expires_at)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
		ttl:    ttl,
	}
	s.janitor = startJanitor(cleanupFreq, s.Cleanup, logger)
	return s, nil
}

// Get retrieves the checkpoint for a mailbox
func (s *SQLiteStore) Get(ctx context.Context, mailbox string) (*core.Checkpoint, error) {
	return queryCheckpoint(ctx, s.db, `
		SELECT mailbox, uid_validity, last_uid, updated_at, expires_at
		FROM mailbox_checkpoints
		WHERE mailbox = ? AND (expires_at = 0 OR expires_at > ?)
	`, mailbox)
}

// Set stores a checkpoint
func (s *SQLiteStore) Set(ctx context.Context, checkpoint *core.Checkpoint) error {
	cp := stamp(checkpoint, s.ttl, time.Now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mailbox_checkpoints (mailbox, uid_validity, last_uid, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(mailbox) DO UPDATE SET
			uid_validity = excluded.uid_validity,
			last_uid = excluded.last_uid,
			updated_at = excluded.updated_at,
			expires_at = excluded.expires_at
	`, cp.Mailbox, cp.UIDValidity, cp.LastUID, unixOrZero(cp.UpdatedAt), unixOrZero(cp.ExpiresAt))
	if err != nil {
		return fmt.Errorf("failed to store checkpoint: %w", err)
	}
	return nil
}

// Delete removes a checkpoint
func (s *SQLiteStore) Delete(ctx context.Context, mailbox string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM mailbox_checkpoints WHERE mailbox = ?`, mailbox); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Cleanup removes expired checkpoints
func (s *SQLiteStore) Cleanup(ctx context.Context) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM mailbox_checkpoints
		WHERE expires_at != 0 AND expires_at <= ?
	`, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to clean up expired checkpoints: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		s.logger.Warn("Failed to get rows affected during cleanup", zap.Error(err))
	} else {
		s.logger.Debug("Cleaned up expired checkpoints", zap.Int64("expired_count", rowsAffected))
	}
	return nil
}

// Stop stops the background cleanup task and closes the database connection
func (s *SQLiteStore) Stop() {
	s.janitor.stop()
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close SQLite database", zap.Error(err))
	}
}

// queryCheckpoint runs a single-row checkpoint query whose second argument is
// the current unix time
func queryCheckpoint(ctx context.Context, db *sql.DB, query, mailbox string) (*core.Checkpoint, error) {
	var cp core.Checkpoint
	var updatedAt, expiresAt int64

	err := db.QueryRowContext(ctx, query, mailbox, time.Now().Unix()).
		Scan(&cp.Mailbox, &cp.UIDValidity, &cp.LastUID, &updatedAt, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query checkpoint: %w", err)
	}

	cp.UpdatedAt = time.Unix(updatedAt, 0)
	if expiresAt != 0 {
		cp.ExpiresAt = time.Unix(expiresAt, 0)
	}
	return &cp, nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
