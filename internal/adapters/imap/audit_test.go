package imap

import (
	"context"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/config"
)

func newTestAuditor(fake *fakeClient) *Auditor {
	logger := zap.NewNop()
	return NewAuditor(newTestService(), NewMailbox(fake, "Triage", logger), logger, config.IMAPConfig{Mailbox: "INBOX"})
}

func TestAuditorReportsMisfiledMessages(t *testing.T) {
	now := time.Now()
	fake := newFakeClient(1)
	fake.add(1, newsletter, "Triage:Folder:Newsletters")
	fake.addTo("Newsletters", 2, now, newsletter, "Triage:Folder:Newsletters")
	fake.addTo("Newsletters", 3, now, newsletter, imap.SeenFlag, "Triage:Folder:Receipts")
	fake.addTo("Newsletters", 4, now, personal)
	fake.addTo("Archive/Needs Reply", 5, now, personal, "triage:folder:needs_reply")
	fake.addTo("Archive/Needs Reply", 6, now, personal, "Triage:Folder:Newsletters")
	fake.addFolder("Trash", `\Trash`)
	fake.addTo("Trash", 7, now, personal, "Triage:Folder:Newsletters")
	fake.addFolder("Shared", imap.NoSelectAttr)
	fake.addTo("Shared", 8, now, personal, "Triage:Folder:Newsletters")

	groups, err := newTestAuditor(fake).Run(context.Background(), AuditOptions{Classify: true})
	require.NoError(t, err)
	require.Len(t, groups, 2)

	archive := groups[0]
	assert.Equal(t, "Archive/Needs Reply", archive.Folder)
	assert.Equal(t, 1, archive.Total)
	assert.Equal(t, map[string]int{"Newsletters": 1}, archive.Expected)
	require.Len(t, archive.Messages, 1)
	assert.Equal(t, uint32(6), archive.Messages[0].UID)

	news := groups[1]
	assert.Equal(t, "Newsletters", news.Folder)
	assert.Equal(t, map[string]int{"Receipts": 1}, news.Expected)
	require.Len(t, news.Messages, 1)
	msg := news.Messages[0]
	assert.Equal(t, uint32(3), msg.UID)
	assert.Equal(t, "Receipts", msg.Expected)
	assert.Equal(t, "Your weekly roundup", msg.Subject)
	assert.Contains(t, msg.Tags, imap.SeenFlag)
	require.NotNil(t, msg.Classified)
	assert.Equal(t, "Newsletters", msg.Classified.PrimaryLabel)

	assert.Empty(t, fake.stores, "audit never writes")
	assert.Empty(t, fake.moved)
}

func TestAuditorWithoutClassification(t *testing.T) {
	fake := newFakeClient(1)
	fake.addTo("Receipts", 3, time.Now(), newsletter, "Triage:Folder:Newsletters")

	groups, err := newTestAuditor(fake).Run(context.Background(), AuditOptions{})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Nil(t, groups[0].Messages[0].Classified)
	assert.Empty(t, groups[0].Messages[0].Subject)
}

func TestAuditorLimitsMessagesPerFolder(t *testing.T) {
	fake := newFakeClient(1)
	fake.addTo("Receipts", 3, time.Now(), newsletter, "Triage:Folder:Newsletters")
	fake.addTo("Receipts", 9, time.Now(), newsletter, "Triage:Folder:Newsletters")

	groups, err := newTestAuditor(fake).Run(context.Background(), AuditOptions{MaxPerFolder: 1})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, 1, groups[0].Total)
	assert.Equal(t, uint32(9), groups[0].Messages[0].UID)
}

func TestAuditorCleanMailbox(t *testing.T) {
	fake := newFakeClient(1)
	fake.addTo("Newsletters", 2, time.Now(), newsletter, "Triage:Folder:Newsletters")

	groups, err := newTestAuditor(fake).Run(context.Background(), AuditOptions{})
	require.NoError(t, err)
	assert.Empty(t, groups)
}
