package checkpoint

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/core"
)

// MySQLStore is a MySQL implementation of the CheckpointRepository interface
type MySQLStore struct {
	db      *sql.DB
	logger  *zap.Logger
	ttl     time.Duration
	janitor *janitor
}

// NewMySQLStore creates a new MySQL checkpoint store
func NewMySQLStore(dsn string, logger *zap.Logger, ttl, cleanupFreq time.Duration) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS mailbox_checkpoints (
			mailbox VARCHAR(255) PRIMARY KEY,
			uid_validity INT UNSIGNED NOT NULL,
			last_uid INT UNSIGNED NOT NULL,
			updated_at BIGINT NOT NULL,
			expires_at BIGINT NOT NULL,
			INDEX idx_checkpoint_expires_at (expires_at)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	s := &MySQLStore{
		db:     db,
		logger: logger,
		ttl:    ttl,
	}
	s.janitor = startJanitor(cleanupFreq, s.Cleanup, logger)
	return s, nil
}

// Get retrieves the checkpoint for a mailbox
func (s *MySQLStore) Get(ctx context.Context, mailbox string) (*core.Checkpoint, error) {
	return queryCheckpoint(ctx, s.db, `
		SELECT mailbox, uid_validity, last_uid, updated_at, expires_at
		FROM mailbox_checkpoints
		WHERE mailbox = ? AND (expires_at = 0 OR expires_at > ?)
	`, mailbox)
}

// Set stores a checkpoint
func (s *MySQLStore) Set(ctx context.Context, checkpoint *core.Checkpoint) error {
	cp := stamp(checkpoint, s.ttl, time.Now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mailbox_checkpoints (mailbox, uid_validity, last_uid, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			uid_validity = VALUES(uid_validity),
			last_uid = VALUES(last_uid),
			updated_at = VALUES(updated_at),
			expires_at = VALUES(expires_at)
	`, cp.Mailbox, cp.UIDValidity, cp.LastUID, unixOrZero(cp.UpdatedAt), unixOrZero(cp.ExpiresAt))
	if err != nil {
		return fmt.Errorf("failed to store checkpoint: %w", err)
	}
	return nil
}

// Delete removes a checkpoint
func (s *MySQLStore) Delete(ctx context.Context, mailbox string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM mailbox_checkpoints WHERE mailbox = ?`, mailbox); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Cleanup removes expired checkpoints
func (s *MySQLStore) Cleanup(ctx context.Context) error {
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
func (s *MySQLStore) Stop() {
	s.janitor.stop()
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close MySQL database", zap.Error(err))
	}
}
