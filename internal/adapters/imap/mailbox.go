package imap

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/emersion/go-imap"
	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/ports"
	"github.com/mikey/mail-triage/internal/triage"
)

// Mailbox writes tags as IMAP keywords and executes moves. The underlying
// connection has a single selected mailbox, so every call is serialized.
type Mailbox struct {
	mu        sync.Mutex
	client    Client
	tagPrefix string
	selected  string
	logger    *zap.Logger
}

// NewMailbox creates a mailbox over an authenticated client
func NewMailbox(c Client, tagPrefix string, logger *zap.Logger) *Mailbox {
	if tagPrefix = strings.TrimSpace(tagPrefix); tagPrefix == "" {
		tagPrefix = triage.DefaultTagPrefix
	}
	return &Mailbox{
		client:    c,
		tagPrefix: Keyword(tagPrefix),
		logger:    logger,
	}
}

// Keyword turns a tag into a valid IMAP flag keyword. Characters outside
// the atom set are replaced with an underscore.
func Keyword(tag string) string {
	var b strings.Builder
	for _, r := range tag {
		switch {
		case r <= ' ' || r >= 0x7f:
			b.WriteByte('_')
		case strings.ContainsRune(`(){%*"\]`, r):
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// TagChange describes one tag update. Before holds the flags the message
// carried when it was read.
type TagChange struct {
	Before  []string
	Added   []string
	Removed []string
	Applied bool
}

// Changed reports whether the update adds or removes anything
func (c TagChange) Changed() bool {
	return len(c.Added)+len(c.Removed) > 0
}

// ApplyTags makes the message carry exactly the given tags in the prefix
// namespace. Other flags are left untouched.
func (m *Mailbox) ApplyTags(ctx context.Context, ref ports.MessageRef, tags []string) error {
	_, err := m.UpdateTags(ctx, ref, tags, false, false)
	return err
}

// UpdateTags brings the message to the given tags. With keep set, tags
// already in the prefix namespace survive; with dryRun set, the change is
// computed but not stored.
func (m *Mailbox) UpdateTags(ctx context.Context, ref ports.MessageRef, tags []string, keep, dryRun bool) (TagChange, error) {
	if err := ctx.Err(); err != nil {
		return TagChange{}, err
	}

	desired := make([]string, len(tags))
	for i, tag := range tags {
		desired[i] = Keyword(tag)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.selectLocked(ref.Mailbox); err != nil {
		return TagChange{}, err
	}

	existing, err := m.flagsLocked(ref.UID)
	if err != nil {
		return TagChange{}, err
	}

	change := TagChange{Before: existing}
	change.Added, change.Removed = triage.DiffTags(m.tagPrefix, existing, desired)
	if keep {
		change.Removed = nil
	}
	if dryRun || !change.Changed() {
		return change, nil
	}

	if len(change.Removed) > 0 {
		if err := m.storeLocked(ref.UID, imap.RemoveFlags, change.Removed); err != nil {
			return change, fmt.Errorf("failed to remove stale tags: %w", err)
		}
	}
	if len(change.Added) > 0 {
		if err := m.storeLocked(ref.UID, imap.AddFlags, change.Added); err != nil {
			return change, fmt.Errorf("failed to add tags: %w", err)
		}
	}
	change.Applied = true

	m.logger.Debug("Updated message tags",
		zap.String("mailbox", ref.Mailbox),
		zap.Uint32("uid", ref.UID),
		zap.Strings("added", change.Added),
		zap.Strings("removed", change.Removed))
	return change, nil
}

// Move relocates the message to folder. It does nothing when the move is not
// allowed or the message already lives there. Missing folders are created.
func (m *Mailbox) Move(ctx context.Context, ref ports.MessageRef, folder string, allowed bool) error {
	if !allowed || folder == "" || sameMailbox(ref.Mailbox, folder) {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureFolderLocked(folder); err != nil {
		return err
	}
	if err := m.selectLocked(ref.Mailbox); err != nil {
		return err
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ref.UID)
	if err := m.client.UidMove(seqset, folder); err != nil {
		return fmt.Errorf("failed to move message %d to %s: %w", ref.UID, folder, err)
	}

	m.logger.Info("Moved message",
		zap.String("mailbox", ref.Mailbox),
		zap.Uint32("uid", ref.UID),
		zap.String("folder", folder))
	return nil
}

// Select selects a mailbox read-write and returns its status
func (m *Mailbox) Select(name string) (*imap.MailboxStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.selected = ""
	status, err := m.client.Select(name, false)
	if err != nil {
		return nil, fmt.Errorf("failed to select mailbox %s: %w", name, err)
	}
	m.selected = name
	return status, nil
}

// Message is a fetched message. Raw is nil when the body was not requested.
type Message struct {
	UID   uint32
	Flags []string
	Raw   []byte
}

// Search returns the UIDs of mailbox matching criteria in ascending order
func (m *Mailbox) Search(ctx context.Context, mailbox string, criteria *imap.SearchCriteria) ([]uint32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.selectLocked(mailbox); err != nil {
		return nil, err
	}
	uids, err := m.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search mailbox %s: %w", mailbox, err)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids, nil
}

// Fetch reads the flags of the given messages, and their raw content when
// withBody is set. Messages come back in ascending UID order; a message the
// server returns no body for is skipped.
func (m *Mailbox) Fetch(ctx context.Context, mailbox string, uids []uint32, withBody bool) ([]Message, error) {
	if len(uids) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchFlags}
	if withBody {
		items = append(items, section.FetchItem())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.selectLocked(mailbox); err != nil {
		return nil, err
	}

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- m.client.UidFetch(seqset, items, messages)
	}()

	var fetched []Message
	for msg := range messages {
		out := Message{UID: msg.Uid, Flags: msg.Flags}
		if withBody {
			body := msg.GetBody(section)
			if body == nil {
				m.logger.Warn("Server returned no body", zap.String("mailbox", mailbox), zap.Uint32("uid", msg.Uid))
				continue
			}
			raw, err := io.ReadAll(body)
			if err != nil {
				m.logger.Warn("Failed to read message body", zap.Uint32("uid", msg.Uid), zap.Error(err))
				continue
			}
			out.Raw = raw
		}
		fetched = append(fetched, out)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages from %s: %w", mailbox, err)
	}

	sort.Slice(fetched, func(i, j int) bool { return fetched[i].UID < fetched[j].UID })
	return fetched, nil
}

// Folders lists every selectable mailbox, sorted by name
func (m *Mailbox) Folders(ctx context.Context) ([]*imap.MailboxInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() {
		done <- m.client.List("", "*", mailboxes)
	}()

	var folders []*imap.MailboxInfo
	for mb := range mailboxes {
		if hasAttr(mb, imap.NoSelectAttr) {
			continue
		}
		folders = append(folders, mb)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to list mailboxes: %w", err)
	}

	sort.Slice(folders, func(i, j int) bool { return folders[i].Name < folders[j].Name })
	return folders, nil
}

// Logout closes the connection
func (m *Mailbox) Logout() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selected = ""
	return m.client.Logout()
}

func (m *Mailbox) selectLocked(name string) error {
	if m.selected == name {
		return nil
	}
	m.selected = ""
	if _, err := m.client.Select(name, false); err != nil {
		return fmt.Errorf("failed to select mailbox %s: %w", name, err)
	}
	m.selected = name
	return nil
}

func (m *Mailbox) flagsLocked(uid uint32) ([]string, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- m.client.UidFetch(seqset, []imap.FetchItem{imap.FetchUid, imap.FetchFlags}, messages)
	}()

	var flags []string
	for msg := range messages {
		if msg.Uid == uid {
			flags = msg.Flags
		}
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch flags of message %d: %w", uid, err)
	}
	return flags, nil
}

func (m *Mailbox) storeLocked(uid uint32, op imap.FlagsOp, flags []string) error {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)

	values := make([]interface{}, len(flags))
	for i, f := range flags {
		values[i] = f
	}
	return m.client.UidStore(seqset, imap.FormatFlagsOp(op, true), values, nil)
}

func (m *Mailbox) ensureFolderLocked(folder string) error {
	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() {
		done <- m.client.List("", folder, mailboxes)
	}()

	exists := false
	for mb := range mailboxes {
		if sameMailbox(mb.Name, folder) {
			exists = true
		}
	}
	if err := <-done; err != nil {
		return fmt.Errorf("failed to list folder %s: %w", folder, err)
	}
	if exists {
		return nil
	}

	if err := m.client.Create(folder); err != nil {
		return fmt.Errorf("failed to create folder %s: %w", folder, err)
	}
	m.logger.Info("Created folder", zap.String("folder", folder))
	return nil
}

func hasAttr(mb *imap.MailboxInfo, attr string) bool {
	for _, a := range mb.Attributes {
		if strings.EqualFold(a, attr) {
			return true
		}
	}
	return false
}

// sameMailbox compares mailbox names; INBOX is case-insensitive
func sameMailbox(a, b string) bool {
	if strings.EqualFold(a, "INBOX") && strings.EqualFold(b, "INBOX") {
		return true
	}
	return a == b
}
