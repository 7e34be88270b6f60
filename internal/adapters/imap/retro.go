package imap

import (
	"bytes"
	"context"
	"time"

	"github.com/emersion/go-imap"
	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/config"
	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/ports"
	"github.com/mikey/mail-triage/internal/triage"
)

const (
	defaultRetroPageSize = 50
	defaultRetroMaxPages = 500
)

// RetroOptions selects the messages a reclassification run visits
type RetroOptions struct {
	// Since is compared at day granularity, as IMAP SEARCH SINCE does
	Since     time.Time
	PageSize  int
	MaxPages  int
	DryRun    bool
	Overwrite bool
}

// RetroSummary counts the outcome of a reclassification run
type RetroSummary struct {
	Since     time.Time `json:"since"`
	DryRun    bool      `json:"dry_run"`
	Fetched   int       `json:"fetched"`
	Changed   int       `json:"changed"`
	Unchanged int       `json:"unchanged"`
	Moved     int       `json:"moved"`
	Failed    int       `json:"failed"`
}

// Reclassifier re-runs classification over messages already in a mailbox
// and brings their tags and location up to date
type Reclassifier struct {
	service   *core.TriageService
	mailbox   *Mailbox
	logger    *zap.Logger
	name      string
	move      bool
	tagPrefix string
}

// NewReclassifier creates a reclassifier over the configured mailbox
func NewReclassifier(service *core.TriageService, mailbox *Mailbox, logger *zap.Logger, cfg config.IMAPConfig, tagPrefix string) *Reclassifier {
	name := cfg.Mailbox
	if name == "" {
		name = "INBOX"
	}
	return &Reclassifier{
		service:   service,
		mailbox:   mailbox,
		logger:    logger,
		name:      name,
		move:      cfg.Move,
		tagPrefix: tagPrefix,
	}
}

// Run visits every message received since opts.Since, newest first, one
// page at a time. A message that fails is logged and counted, never fatal.
func (r *Reclassifier) Run(ctx context.Context, opts RetroOptions) (RetroSummary, error) {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultRetroPageSize
	}
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = defaultRetroMaxPages
	}

	summary := RetroSummary{Since: opts.Since, DryRun: opts.DryRun}

	criteria := imap.NewSearchCriteria()
	criteria.Since = opts.Since
	uids, err := r.mailbox.Search(ctx, r.name, criteria)
	if err != nil {
		return summary, err
	}
	for i, j := 0, len(uids)-1; i < j; i, j = i+1, j-1 {
		uids[i], uids[j] = uids[j], uids[i]
	}

	r.logger.Info("Reclassifying messages",
		zap.String("mailbox", r.name),
		zap.Time("since", opts.Since),
		zap.Int("matched", len(uids)),
		zap.Bool("dry_run", opts.DryRun),
		zap.Bool("overwrite", opts.Overwrite))

	for page := 0; page < maxPages && page*pageSize < len(uids); page++ {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		end := (page + 1) * pageSize
		if end > len(uids) {
			end = len(uids)
		}
		batch, err := r.mailbox.Fetch(ctx, r.name, uids[page*pageSize:end], true)
		if err != nil {
			return summary, err
		}
		for i := len(batch) - 1; i >= 0; i-- {
			summary.Fetched++
			r.handle(ctx, batch[i], opts, &summary)
		}
	}

	r.logger.Info("Reclassification finished",
		zap.String("mailbox", r.name),
		zap.Int("fetched", summary.Fetched),
		zap.Int("changed", summary.Changed),
		zap.Int("unchanged", summary.Unchanged),
		zap.Int("moved", summary.Moved),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

func (r *Reclassifier) handle(ctx context.Context, msg Message, opts RetroOptions, summary *RetroSummary) {
	ref := ports.MessageRef{Mailbox: r.name, UID: msg.UID}
	id := messageID(r.name, msg.UID)

	record, result, err := r.service.ProcessMessage(ctx, id, bytes.NewReader(msg.Raw))
	if err != nil {
		r.logger.Warn("Failed to reclassify message", zap.String("message_id", id), zap.Error(err))
		summary.Failed++
		return
	}

	fields := []zap.Field{
		zap.String("message_id", id),
		zap.String("subject", record.Subject),
		zap.String("from", record.From),
	}
	r.logger.Info("Reclassified message", append(fields,
		zap.String("label", result.PrimaryLabel),
		zap.String("folder", result.PrimaryFolder))...)

	change, err := r.mailbox.UpdateTags(ctx, ref, triage.FormatTags(r.tagPrefix, *result), !opts.Overwrite, opts.DryRun)
	if err != nil {
		r.logger.Warn("Failed to update tags", zap.String("message_id", id), zap.Error(err))
		summary.Failed++
		return
	}
	if change.Changed() {
		summary.Changed++
		r.logger.Info("Tags changed", append(fields,
			zap.Strings("before", change.Before),
			zap.Strings("added", change.Added),
			zap.Strings("removed", change.Removed),
			zap.Bool("applied", change.Applied))...)
	} else {
		summary.Unchanged++
	}

	folder := result.PrimaryFolder
	if !r.move || !result.Move {
		r.logger.Debug("Move skipped by policy", append(fields,
			zap.String("label", result.PrimaryLabel),
			zap.Float64("confidence", result.PrimaryConfidence))...)
		return
	}
	if folder == "" || sameMailbox(r.name, folder) {
		return
	}
	if opts.DryRun {
		r.logger.Info("Would move message", append(fields, zap.String("folder", folder))...)
		summary.Moved++
		return
	}
	if err := r.mailbox.Move(ctx, ref, folder, true); err != nil {
		r.logger.Warn("Failed to move message", zap.String("message_id", id), zap.Error(err))
		return
	}
	summary.Moved++
}
