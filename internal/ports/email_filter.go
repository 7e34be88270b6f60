package ports

import (
	"context"
	"io"

	"github.com/mikey/mail-triage/internal/core"
)

// EmailFilter defines the interface for message sources that feed the engine
type EmailFilter interface {
	// ProcessEmail classifies one raw message
	ProcessEmail(ctx context.Context, id string, raw io.Reader) (*core.Classified, error)

	// Start starts the email filter service
	Start() error

	// Stop stops the email filter service
	Stop() error
}
