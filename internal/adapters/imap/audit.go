package imap

import (
	"bytes"
	"context"
	"strings"

	"github.com/emersion/go-imap"
	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/config"
	"github.com/mikey/mail-triage/internal/core"
)

// special-use mailboxes hold copies or user-managed mail and are never audited
var skippedAttrs = []string{`\All`, `\Drafts`, `\Junk`, `\Sent`, `\Trash`}

// AuditOptions controls a misfiled-message audit
type AuditOptions struct {
	// MaxPerFolder limits the audit to the newest messages of each folder; 0 means all
	MaxPerFolder int
	// Classify attaches a fresh classification to every misfiled message
	Classify bool
}

// MisfiledMessage is a message whose folder tag names another folder
type MisfiledMessage struct {
	UID        uint32           `json:"uid"`
	Folder     string           `json:"folder"`
	Expected   string           `json:"expected_folder"`
	Subject    string           `json:"subject,omitempty"`
	From       string           `json:"from,omitempty"`
	Tags       []string         `json:"tags"`
	Classified *core.Classified `json:"classification,omitempty"`
}

// MisfiledGroup collects the misfiled messages of one folder
type MisfiledGroup struct {
	Folder   string            `json:"folder"`
	Total    int               `json:"total"`
	Expected map[string]int    `json:"expected"`
	Messages []MisfiledMessage `json:"messages"`
}

// Auditor finds messages that live in a different folder than the one their
// folder tag records, usually because they were moved by hand
type Auditor struct {
	service   *core.TriageService
	mailbox   *Mailbox
	logger    *zap.Logger
	source    string
	folderTag string
}

// NewAuditor creates an auditor. The polled mailbox itself is not audited.
func NewAuditor(service *core.TriageService, mailbox *Mailbox, logger *zap.Logger, cfg config.IMAPConfig) *Auditor {
	source := cfg.Mailbox
	if source == "" {
		source = "INBOX"
	}
	return &Auditor{
		service:   service,
		mailbox:   mailbox,
		logger:    logger,
		source:    source,
		folderTag: mailbox.tagPrefix + ":Folder:",
	}
}

// Run audits every selectable folder and returns the folders holding at
// least one misfiled message
func (a *Auditor) Run(ctx context.Context, opts AuditOptions) ([]MisfiledGroup, error) {
	folders, err := a.mailbox.Folders(ctx)
	if err != nil {
		return nil, err
	}

	var groups []MisfiledGroup
	for _, folder := range folders {
		if sameMailbox(folder.Name, a.source) || hasAnyAttr(folder, skippedAttrs) {
			continue
		}
		group, err := a.auditFolder(ctx, folder, opts)
		if err != nil {
			return groups, err
		}
		if group.Total == 0 {
			continue
		}
		a.logger.Info("Misfiled messages found",
			zap.String("folder", group.Folder),
			zap.Int("total", group.Total),
			zap.Any("expected", group.Expected))
		groups = append(groups, group)
	}
	return groups, nil
}

func (a *Auditor) auditFolder(ctx context.Context, folder *imap.MailboxInfo, opts AuditOptions) (MisfiledGroup, error) {
	group := MisfiledGroup{Folder: folder.Name, Expected: make(map[string]int)}

	uids, err := a.mailbox.Search(ctx, folder.Name, imap.NewSearchCriteria())
	if err != nil {
		return group, err
	}
	if opts.MaxPerFolder > 0 && len(uids) > opts.MaxPerFolder {
		uids = uids[len(uids)-opts.MaxPerFolder:]
	}

	messages, err := a.mailbox.Fetch(ctx, folder.Name, uids, opts.Classify)
	if err != nil {
		return group, err
	}

	actual := Keyword(strings.TrimSpace(leafName(folder)))
	for _, msg := range messages {
		expected := a.expectedFolder(msg.Flags)
		if expected == "" || strings.EqualFold(expected, actual) {
			continue
		}

		record := MisfiledMessage{
			UID:      msg.UID,
			Folder:   folder.Name,
			Expected: expected,
			Tags:     msg.Flags,
		}
		if opts.Classify {
			a.classify(ctx, folder.Name, msg, &record)
		}

		group.Total++
		group.Expected[expected]++
		group.Messages = append(group.Messages, record)
		a.logger.Debug("Misfiled message",
			zap.String("folder", folder.Name),
			zap.Uint32("uid", msg.UID),
			zap.String("expected_folder", expected))
	}
	return group, nil
}

func (a *Auditor) classify(ctx context.Context, folder string, msg Message, record *MisfiledMessage) {
	id := messageID(folder, msg.UID)
	features, result, err := a.service.ProcessMessage(ctx, id, bytes.NewReader(msg.Raw))
	if err != nil {
		a.logger.Warn("Failed to classify misfiled message", zap.String("message_id", id), zap.Error(err))
		return
	}
	record.Subject = features.Subject
	record.From = features.From
	record.Classified = result
}

// expectedFolder returns the folder named by the first folder tag
func (a *Auditor) expectedFolder(flags []string) string {
	for _, flag := range flags {
		if len(flag) > len(a.folderTag) && strings.EqualFold(flag[:len(a.folderTag)], a.folderTag) {
			return strings.TrimSpace(flag[len(a.folderTag):])
		}
	}
	return ""
}

func leafName(folder *imap.MailboxInfo) string {
	if folder.Delimiter == "" {
		return folder.Name
	}
	parts := strings.Split(folder.Name, folder.Delimiter)
	return parts[len(parts)-1]
}

func hasAnyAttr(mb *imap.MailboxInfo, attrs []string) bool {
	for _, attr := range attrs {
		if hasAttr(mb, attr) {
			return true
		}
	}
	return false
}
