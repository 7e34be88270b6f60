package ports

import (
	"context"
)

// MessageRef identifies a message inside a provider mailbox
type MessageRef struct {
	Mailbox string
	UID     uint32
}

// Mailbox applies classification side effects to a provider mailbox
type Mailbox interface {
	// ApplyTags makes the message carry exactly the given prefixed tags
	ApplyTags(ctx context.Context, ref MessageRef, tags []string) error

	// Move relocates the message when allowed; already being in folder is not an error
	Move(ctx context.Context, ref MessageRef, folder string, allowed bool) error
}
