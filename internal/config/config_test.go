package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fromYAML(t *testing.T, doc string) *Config {
	t.Helper()
	v := NewEmptyViper()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(doc)))
	return NewFromViper(v)
}

func TestDefaults(t *testing.T) {
	cfg := NewFromViper(NewEmptyViper())

	server := cfg.GetServer()
	assert.Equal(t, "postfix", server.FilterType)
	assert.Equal(t, "X-Triage-Folder", server.Headers.Folder)
	assert.Equal(t, 10026, server.Postfix.Port)

	imapCfg, err := cfg.GetIMAP()
	require.NoError(t, err)
	assert.Equal(t, "INBOX", imapCfg.Mailbox)
	assert.Equal(t, time.Minute, imapCfg.PollInterval)

	triageCfg, err := cfg.GetTriage()
	require.NoError(t, err)
	assert.Equal(t, "Triage", triageCfg.TagPrefix)
	assert.Equal(t, 0.05, triageCfg.ClosenessDelta)
	assert.Equal(t, "Other", triageCfg.DefaultFolder)
	assert.Empty(t, triageCfg.Priorities)
	assert.Empty(t, triageCfg.MoveThresholds)

	cp, err := cfg.GetCheckpoint()
	require.NoError(t, err)
	assert.Equal(t, "memory", cp.Type)
	assert.Equal(t, time.Hour, cp.CleanupFrequency)

	assert.Equal(t, 4096, cfg.GetExtract().MaxBodySize)
	assert.False(t, cfg.GetHTTP().Enabled)
}

func TestTriageTables(t *testing.T) {
	cfg := fromYAML(t, `
triage:
  closeness_delta: 0.1
  priorities:
    Phishing: 200
    Newsletters: "5"
  auxiliary_labels: [Mentions, KnownContact]
  folders:
    Newsletters: Reading
  move:
    thresholds:
      Promotions: 0.5
`)

	triageCfg, err := cfg.GetTriage()
	require.NoError(t, err)
	assert.Equal(t, 0.1, triageCfg.ClosenessDelta)
	assert.Equal(t, map[string]int{"phishing": 200, "newsletters": 5}, triageCfg.Priorities)
	assert.Equal(t, []string{"Mentions", "KnownContact"}, triageCfg.AuxiliaryLabels)
	assert.Equal(t, map[string]string{"newsletters": "Reading"}, triageCfg.Folders)
	assert.Equal(t, map[string]float64{"promotions": 0.5}, triageCfg.MoveThresholds)
}

func TestTriageTablesRejectBadValues(t *testing.T) {
	cfg := fromYAML(t, `
triage:
  priorities:
    Phishing: high
`)
	_, err := cfg.GetTriage()
	assert.ErrorContains(t, err, "invalid priority for label phishing")
}

func TestInvalidDurations(t *testing.T) {
	cfg := fromYAML(t, `
imap:
  poll_interval: soon
checkpoint:
  ttl: forever
`)

	_, err := cfg.GetIMAP()
	assert.Error(t, err)
	_, err = cfg.GetCheckpoint()
	assert.Error(t, err)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "triage.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  filter_type: imap\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "imap", cfg.GetServer().FilterType)
	assert.Equal(t, "info", cfg.GetString("logging.level"))
}
