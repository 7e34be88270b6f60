package checkpoint

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/core"
)

// ErrNotFound is returned when a mailbox has no live checkpoint
var ErrNotFound = errors.New("checkpoint not found")

// stamp fills the bookkeeping timestamps of a checkpoint about to be stored
func stamp(cp *core.Checkpoint, ttl time.Duration, now time.Time) core.Checkpoint {
	out := *cp
	if out.UpdatedAt.IsZero() {
		out.UpdatedAt = now
	}
	if out.ExpiresAt.IsZero() && ttl > 0 {
		out.ExpiresAt = now.Add(ttl)
	}
	return out
}

func expired(cp *core.Checkpoint, now time.Time) bool {
	return !cp.ExpiresAt.IsZero() && !now.Before(cp.ExpiresAt)
}

// janitor runs a cleanup function on a fixed interval until stopped
type janitor struct {
	stopCh chan struct{}
	doneCh chan struct{}
}

func startJanitor(freq time.Duration, cleanup func(context.Context) error, logger *zap.Logger) *janitor {
	j := &janitor{stopCh: make(chan struct{}), doneCh: make(chan struct{})}
	if freq <= 0 {
		close(j.doneCh)
		return j
	}

	go func() {
		defer close(j.doneCh)
		ticker := time.NewTicker(freq)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := cleanup(context.Background()); err != nil {
					logger.Error("Failed to clean up checkpoints", zap.Error(err))
				}
			case <-j.stopCh:
				return
			}
		}
	}()
	return j
}

func (j *janitor) stop() {
	select {
	case <-j.stopCh:
	default:
		close(j.stopCh)
	}
	<-j.doneCh
}
