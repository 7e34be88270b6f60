package checkpoint

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/core"
)

// MemoryStore is an in-memory implementation of the CheckpointRepository interface
type MemoryStore struct {
	entries map[string]core.Checkpoint
	mu      sync.RWMutex
	logger  *zap.Logger
	ttl     time.Duration
	janitor *janitor
}

// NewMemoryStore creates a new in-memory checkpoint store
func NewMemoryStore(logger *zap.Logger, ttl, cleanupFreq time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]core.Checkpoint),
		logger:  logger,
		ttl:     ttl,
	}
	s.janitor = startJanitor(cleanupFreq, s.Cleanup, logger)
	return s
}

// Get retrieves the checkpoint for a mailbox
func (s *MemoryStore) Get(ctx context.Context, mailbox string) (*core.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.entries[mailbox]
	if !ok || expired(&cp, time.Now()) {
		return nil, ErrNotFound
	}
	return &cp, nil
}

// Set stores a checkpoint
func (s *MemoryStore) Set(ctx context.Context, checkpoint *core.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[checkpoint.Mailbox] = stamp(checkpoint, s.ttl, time.Now())
	return nil
}

// Delete removes a checkpoint
func (s *MemoryStore) Delete(ctx context.Context, mailbox string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, mailbox)
	return nil
}

// Cleanup removes expired checkpoints
func (s *MemoryStore) Cleanup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	expiredCount := 0
	for mailbox, cp := range s.entries {
		if expired(&cp, now) {
			delete(s.entries, mailbox)
			expiredCount++
		}
	}

	s.logger.Debug("Cleaned up expired checkpoints", zap.Int("expired_count", expiredCount))
	return nil
}

// Stop stops the background cleanup task
func (s *MemoryStore) Stop() {
	s.janitor.stop()
}
