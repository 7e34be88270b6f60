package ports

import (
	"context"

	"github.com/mikey/mail-triage/internal/core"
)

// CheckpointRepository persists how far each mailbox has been polled
type CheckpointRepository interface {
	// Get retrieves the checkpoint for a mailbox
	Get(ctx context.Context, mailbox string) (*core.Checkpoint, error)

	// Set stores a checkpoint
	Set(ctx context.Context, checkpoint *core.Checkpoint) error

	// Delete removes a checkpoint
	Delete(ctx context.Context, mailbox string) error

	// Cleanup removes expired checkpoints
	Cleanup(ctx context.Context) error

	// Stop ends background maintenance and releases resources
	Stop()
}
