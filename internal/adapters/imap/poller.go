package imap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/adapters/checkpoint"
	"github.com/mikey/mail-triage/internal/config"
	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/ports"
	"github.com/mikey/mail-triage/internal/triage"
)

const (
	sourceIMAP = "imap"

	defaultPollInterval = time.Minute
	defaultBatchSize    = 50
)

// MessageObserver records the outcome of each handled message
type MessageObserver interface {
	ObserveMessage(source string, err error)
}

// Poller periodically classifies new messages of one mailbox, writes the
// result back as keywords and moves messages the policy allows
type Poller struct {
	service     *core.TriageService
	mailbox     *Mailbox
	checkpoints ports.CheckpointRepository
	observer    MessageObserver
	logger      *zap.Logger

	name      string
	interval  time.Duration
	batchSize int
	applyTags bool
	move      bool
	tagPrefix string

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewPoller creates a poller over an authenticated mailbox
func NewPoller(
	service *core.TriageService,
	mailbox *Mailbox,
	checkpoints ports.CheckpointRepository,
	observer MessageObserver,
	logger *zap.Logger,
	cfg config.IMAPConfig,
	tagPrefix string,
) *Poller {
	name := cfg.Mailbox
	if name == "" {
		name = "INBOX"
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}

	return &Poller{
		service:     service,
		mailbox:     mailbox,
		checkpoints: checkpoints,
		observer:    observer,
		logger:      logger,
		name:        name,
		interval:    interval,
		batchSize:   batch,
		applyTags:   cfg.ApplyTags,
		move:        cfg.Move,
		tagPrefix:   tagPrefix,
		stopCh:      make(chan struct{}),
	}
}

// Start begins polling in the background
func (p *Poller) Start() error {
	p.logger.Info("IMAP poller starting",
		zap.String("mailbox", p.name),
		zap.Duration("interval", p.interval),
		zap.Int("batch_size", p.batchSize))

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-p.stopCh:
				cancel()
			case <-ctx.Done():
			}
		}()

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			if _, err := p.PollOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				p.logger.Error("IMAP poll failed", zap.String("mailbox", p.name), zap.Error(err))
			}
			select {
			case <-ticker.C:
			case <-p.stopCh:
				return
			}
		}
	}()
	return nil
}

// Stop ends polling, waits for the current poll, logs out and stops the
// checkpoint store
func (p *Poller) Stop() error {
	var err error
	p.once.Do(func() {
		close(p.stopCh)
		p.wg.Wait()
		err = p.mailbox.Logout()
		p.checkpoints.Stop()
	})
	return err
}

// ProcessEmail classifies a raw message without touching the mailbox
func (p *Poller) ProcessEmail(ctx context.Context, id string, raw io.Reader) (*core.Classified, error) {
	_, result, err := p.service.ProcessMessage(ctx, id, raw)
	return result, err
}

// PollOnce processes every message above the stored checkpoint and returns
// how many were fetched
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	status, err := p.mailbox.Select(p.name)
	if err != nil {
		return 0, err
	}

	cp, err := p.loadCheckpoint(ctx, status.UidValidity)
	if err != nil {
		return 0, err
	}

	uids, err := p.search(ctx, cp.LastUID)
	if err != nil {
		return 0, err
	}
	if len(uids) == 0 {
		// an idle mailbox still refreshes its cursor so it never expires
		return 0, p.saveCheckpoint(ctx, cp)
	}

	p.logger.Debug("Found new messages", zap.String("mailbox", p.name), zap.Int("count", len(uids)))

	processed := 0
	for start := 0; start < len(uids); start += p.batchSize {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		end := start + p.batchSize
		if end > len(uids) {
			end = len(uids)
		}

		batch, err := p.mailbox.Fetch(ctx, p.name, uids[start:end], true)
		if err != nil {
			return processed, err
		}
		for _, msg := range batch {
			p.handle(ctx, msg)
		}
		processed += len(batch)

		cp.LastUID = uids[end-1]
		if err := p.saveCheckpoint(ctx, cp); err != nil {
			return processed, err
		}
	}
	return processed, nil
}

func (p *Poller) loadCheckpoint(ctx context.Context, validity uint32) (core.Checkpoint, error) {
	stored, err := p.checkpoints.Get(ctx, p.name)
	switch {
	case errors.Is(err, checkpoint.ErrNotFound):
		return core.Checkpoint{Mailbox: p.name, UIDValidity: validity}, nil
	case err != nil:
		return core.Checkpoint{}, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	if stored.UIDValidity != validity {
		p.logger.Warn("UIDVALIDITY changed, resetting checkpoint",
			zap.String("mailbox", p.name),
			zap.Uint32("old", stored.UIDValidity),
			zap.Uint32("new", validity))
		return core.Checkpoint{Mailbox: p.name, UIDValidity: validity}, nil
	}
	return core.Checkpoint{Mailbox: p.name, UIDValidity: validity, LastUID: stored.LastUID}, nil
}

func (p *Poller) saveCheckpoint(ctx context.Context, cp core.Checkpoint) error {
	// fresh timestamps so the store restarts the ttl
	next := core.Checkpoint{Mailbox: cp.Mailbox, UIDValidity: cp.UIDValidity, LastUID: cp.LastUID}
	if err := p.checkpoints.Set(ctx, &next); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// search returns the sorted UIDs above last. "last+1:*" always matches the
// newest message, so the result is filtered again.
func (p *Poller) search(ctx context.Context, last uint32) ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.Uid = new(imap.SeqSet)
	criteria.Uid.AddRange(last+1, 0)

	found, err := p.mailbox.Search(ctx, p.name, criteria)
	if err != nil {
		return nil, err
	}

	uids := found[:0]
	for _, uid := range found {
		if uid > last {
			uids = append(uids, uid)
		}
	}
	return uids, nil
}

// handle classifies one message and applies its side effects. Failures are
// logged and the message is skipped.
func (p *Poller) handle(ctx context.Context, msg Message) {
	ref := ports.MessageRef{Mailbox: p.name, UID: msg.UID}
	id := messageID(p.name, msg.UID)

	_, result, err := p.service.ProcessMessage(ctx, id, bytes.NewReader(msg.Raw))
	if err != nil {
		p.logger.Warn("Skipping message", zap.String("message_id", id), zap.Error(err))
		p.observe(err)
		return
	}

	if p.applyTags {
		if err := p.mailbox.ApplyTags(ctx, ref, triage.FormatTags(p.tagPrefix, *result)); err != nil {
			p.logger.Warn("Failed to apply tags", zap.String("message_id", id), zap.Error(err))
			p.observe(err)
			return
		}
	}

	if err := p.mailbox.Move(ctx, ref, result.PrimaryFolder, p.move && result.Move); err != nil {
		p.logger.Warn("Failed to move message", zap.String("message_id", id), zap.Error(err))
		p.observe(err)
		return
	}
	p.observe(nil)
}

func messageID(mailbox string, uid uint32) string {
	return fmt.Sprintf("%s/%d", mailbox, uid)
}

func (p *Poller) observe(err error) {
	if p.observer != nil {
		p.observer.ObserveMessage(sourceIMAP, err)
	}
}
