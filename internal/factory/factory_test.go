package factory

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/adapters/checkpoint"
	"github.com/mikey/mail-triage/internal/adapters/filter"
	"github.com/mikey/mail-triage/internal/adapters/imap"
	"github.com/mikey/mail-triage/internal/config"
	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/metrics"
	"github.com/mikey/mail-triage/internal/rules"
	"github.com/mikey/mail-triage/internal/triage"
)

func newConfig(values map[string]interface{}) *config.Config {
	v := config.NewEmptyViper()
	for k, val := range values {
		v.Set(k, val)
	}
	return config.NewFromViper(v)
}

func TestMergeTriageConfig(t *testing.T) {
	tc := config.TriageConfig{
		ClosenessDelta:  0.1,
		DefaultPriority: 5,
		Priorities:      map[string]int{"promotions": 95},
		Folders:         map[string]string{"newsletters": "Reading"},
		MoveThresholds:  map[string]float64{"calendar": 0.5},
	}

	merged := MergeTriageConfig(triage.DefaultConfig(), tc)

	assert.Equal(t, 95, merged.Priorities["promotions"])
	assert.Equal(t, 100, merged.Priorities["phishing"])
	assert.Equal(t, "Reading", merged.Folders["newsletters"])
	assert.Equal(t, "Suspicious", merged.Folders["phishing"])
	assert.InDelta(t, 0.5, merged.MoveThresholds["calendar"], 1e-9)
	assert.InDelta(t, 0.7, merged.MoveThresholds["newsletters"], 1e-9)
	assert.InDelta(t, 0.1, merged.Delta, 1e-9)
	assert.Equal(t, 5, merged.DefaultPriority)
	assert.Equal(t, triage.DefaultConfig().Auxiliary, merged.Auxiliary)
	assert.Equal(t, triage.DefaultFolder, merged.DefaultFolder)

	merged = MergeTriageConfig(triage.DefaultConfig(), config.TriageConfig{AuxiliaryLabels: []string{"Updates"}, DefaultFolder: "Misc"})
	assert.Equal(t, []string{"Updates"}, merged.Auxiliary)
	assert.Equal(t, "Misc", merged.DefaultFolder)
}

func TestCreateEngineAppliesOverrides(t *testing.T) {
	cfg := newConfig(map[string]interface{}{
		"triage.folders": map[string]interface{}{"Newsletters": "Reading"},
	})

	engine, err := NewEngineFactory(cfg, zap.NewNop(), metrics.NewRecorder()).CreateEngine()
	require.NoError(t, err)

	result := engine.Classify(&core.FeatureRecord{
		Subject:        "Your weekly roundup",
		Body:           "Here is your weekly roundup. Click to unsubscribe.",
		HasListID:      true,
		HasUnsubscribe: true,
	})
	assert.Equal(t, rules.LabelNewsletters, result.PrimaryLabel)
	assert.Equal(t, "Reading", result.PrimaryFolder)
	assert.True(t, result.Move)
}

func TestCreateEngineTransactionalDomains(t *testing.T) {
	cfg := newConfig(map[string]interface{}{
		"triage.transactional_domains": []string{"mailer.example.net"},
	})

	engine, err := NewEngineFactory(cfg, zap.NewNop(), metrics.NewRecorder()).CreateEngine()
	require.NoError(t, err)

	result := engine.Classify(&core.FeatureRecord{
		From:       "billing@shop.example.com",
		FromDomain: "shop.example.com",
		ReplyTo:    "bounce@eu.mailer.example.net",
	})
	for _, d := range result.Detections {
		for _, ev := range d.Evidence {
			assert.NotContains(t, ev.RuleID, "reply_to_mismatch")
		}
	}
}

func TestCreateEngineRejectsBadTables(t *testing.T) {
	cfg := newConfig(map[string]interface{}{
		"triage.priorities": map[string]interface{}{"Promotions": "high"},
	})
	_, err := NewEngineFactory(cfg, zap.NewNop(), nil).CreateEngine()
	assert.Error(t, err)
}

func TestCreateCheckpointRepository(t *testing.T) {
	cfg := newConfig(nil)
	repo, err := NewCheckpointFactory(cfg, zap.NewNop()).CreateCheckpointRepository()
	require.NoError(t, err)
	defer repo.Stop()
	assert.IsType(t, &checkpoint.MemoryStore{}, repo)

	cfg = newConfig(map[string]interface{}{
		"checkpoint.type":        "sqlite",
		"checkpoint.sqlite_path": filepath.Join(t.TempDir(), "nested", "cp.db"),
	})
	repo, err = NewCheckpointFactory(cfg, zap.NewNop()).CreateCheckpointRepository()
	require.NoError(t, err)
	defer repo.Stop()
	assert.IsType(t, &checkpoint.SQLiteStore{}, repo)

	cfg = newConfig(map[string]interface{}{"checkpoint.type": "redis"})
	_, err = NewCheckpointFactory(cfg, zap.NewNop()).CreateCheckpointRepository()
	assert.EqualError(t, err, "unsupported checkpoint type: redis")
}

func TestCreateEmailFilter(t *testing.T) {
	logger := zap.NewNop()
	service := core.NewTriageService(triage.NewDefaultEngine(), NewExtractorFactory(newConfig(nil), logger).CreateExtractor(), nil, logger)

	tests := []struct {
		filterType string
		want       interface{}
		wantErr    string
	}{
		{filterType: "postfix", want: &filter.PostfixFilter{}},
		{filterType: "cli", want: &filter.CliFilter{}},
		{filterType: "imap", wantErr: "imap filter requires a checkpoint store"},
		{filterType: "milter", wantErr: "unsupported filter type: milter"},
	}

	for _, tt := range tests {
		t.Run(tt.filterType, func(t *testing.T) {
			f := NewFilterFactory(FilterParams{
				Config:   newConfig(map[string]interface{}{"server.filter_type": tt.filterType}),
				Logger:   logger,
				Service:  service,
				Recorder: metrics.NewRecorder(),
			})
			got, err := f.CreateEmailFilter()
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, got)
		})
	}
}

type nopIMAPClient struct {
	imap.Client
	loggedOut bool
}

func (c *nopIMAPClient) Logout() error {
	c.loggedOut = true
	return nil
}

func TestCreateMailboxJobs(t *testing.T) {
	logger := zap.NewNop()
	service := core.NewTriageService(triage.NewDefaultEngine(), NewExtractorFactory(newConfig(nil), logger).CreateExtractor(), nil, logger)
	f := NewFilterFactory(FilterParams{Config: newConfig(nil), Logger: logger, Service: service, Recorder: metrics.NewRecorder()})

	var dialed []string
	client := &nopIMAPClient{}
	f.dial = func(cfg config.IMAPConfig, _ *zap.Logger) (imap.Client, error) {
		dialed = append(dialed, cfg.Address)
		return client, nil
	}

	reclassifier, mailbox, err := f.CreateReclassifier()
	require.NoError(t, err)
	assert.NotNil(t, reclassifier)
	require.NoError(t, mailbox.Logout())
	assert.True(t, client.loggedOut)

	auditor, _, err := f.CreateAuditor()
	require.NoError(t, err)
	assert.NotNil(t, auditor)
	assert.Equal(t, []string{"localhost:993", "localhost:993"}, dialed)

	f.dial = func(config.IMAPConfig, *zap.Logger) (imap.Client, error) {
		return nil, errors.New("connection refused")
	}
	_, _, err = f.CreateReclassifier()
	assert.EqualError(t, err, "connection refused")
}
