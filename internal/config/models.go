package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// HeaderNames are the headers the Postfix filter writes
type HeaderNames struct {
	Folder     string
	Label      string
	Confidence string
	Move       string
	Evidence   string
	Error      string
}

// PostfixConfig is the re-injection target of the content filter
type PostfixConfig struct {
	Address string
	Port    int
	Enabled bool
}

// ServerConfig represents the filter server configuration
type ServerConfig struct {
	FilterType    string
	ListenAddress string
	Postfix       PostfixConfig
	Headers       HeaderNames
}

// IMAPConfig represents the configuration of the IMAP poller
type IMAPConfig struct {
	Address       string
	Username      string
	Password      string
	Mailbox       string
	PollInterval  time.Duration
	BatchSize     int
	TLS           bool
	SelfAddresses []string
	ApplyTags     bool
	Move          bool
}

// TriageConfig holds the engine tuning overrides. Map keys are lower-cased
// label names; empty maps leave the built-in tables in place.
type TriageConfig struct {
	TagPrefix            string
	ClosenessDelta       float64
	DefaultPriority      int
	Priorities           map[string]int
	AuxiliaryLabels      []string
	Folders              map[string]string
	DefaultFolder        string
	MoveThresholds       map[string]float64
	TransactionalDomains []string
}

// ExtractConfig bounds feature extraction
type ExtractConfig struct {
	MaxBodySize int
	MaxLinks    int
}

// CheckpointConfig represents the checkpoint store configuration
type CheckpointConfig struct {
	Type             string
	TTL              time.Duration
	CleanupFrequency time.Duration
	SQLitePath       string
	MySQLDSN         string
}

// HTTPConfig represents the admin HTTP API configuration
type HTTPConfig struct {
	Enabled       bool
	ListenAddress string
}

// GetServer returns the server configuration
func (c *Config) GetServer() ServerConfig {
	return ServerConfig{
		FilterType:    c.GetString("server.filter_type"),
		ListenAddress: c.GetString("server.listen_address"),
		Postfix: PostfixConfig{
			Address: c.GetString("server.postfix.address"),
			Port:    c.GetInt("server.postfix.port"),
			Enabled: c.GetBool("server.postfix.enabled"),
		},
		Headers: HeaderNames{
			Folder:     c.GetString("server.headers.folder"),
			Label:      c.GetString("server.headers.label"),
			Confidence: c.GetString("server.headers.confidence"),
			Move:       c.GetString("server.headers.move"),
			Evidence:   c.GetString("server.headers.evidence"),
			Error:      c.GetString("server.headers.error"),
		},
	}
}

// GetIMAP returns the IMAP configuration
func (c *Config) GetIMAP() (IMAPConfig, error) {
	interval, err := c.GetDuration("imap.poll_interval")
	if err != nil {
		return IMAPConfig{}, fmt.Errorf("invalid imap poll interval: %w", err)
	}
	return IMAPConfig{
		Address:       c.GetString("imap.address"),
		Username:      c.GetString("imap.username"),
		Password:      c.GetString("imap.password"),
		Mailbox:       c.GetString("imap.mailbox"),
		PollInterval:  interval,
		BatchSize:     c.GetInt("imap.batch_size"),
		TLS:           c.GetBool("imap.tls"),
		SelfAddresses: c.GetStringSlice("imap.self_addresses"),
		ApplyTags:     c.GetBool("imap.apply_tags"),
		Move:          c.GetBool("imap.move"),
	}, nil
}

// GetTriage returns the engine tuning configuration
func (c *Config) GetTriage() (TriageConfig, error) {
	priorities := make(map[string]int)
	for label, raw := range c.GetStringMap("triage.priorities") {
		p, err := cast.ToIntE(raw)
		if err != nil {
			return TriageConfig{}, fmt.Errorf("invalid priority for label %s: %w", label, err)
		}
		priorities[strings.ToLower(label)] = p
	}

	folders := make(map[string]string)
	for label, raw := range c.GetStringMap("triage.folders") {
		folders[strings.ToLower(label)] = cast.ToString(raw)
	}

	thresholds := make(map[string]float64)
	for label, raw := range c.GetStringMap("triage.move.thresholds") {
		t, err := cast.ToFloat64E(raw)
		if err != nil {
			return TriageConfig{}, fmt.Errorf("invalid move threshold for label %s: %w", label, err)
		}
		thresholds[strings.ToLower(label)] = t
	}

	return TriageConfig{
		TagPrefix:            c.GetString("triage.tag_prefix"),
		ClosenessDelta:       c.GetFloat64("triage.closeness_delta"),
		DefaultPriority:      c.GetInt("triage.default_priority"),
		Priorities:           priorities,
		AuxiliaryLabels:      c.GetStringSlice("triage.auxiliary_labels"),
		Folders:              folders,
		DefaultFolder:        c.GetString("triage.default_folder"),
		MoveThresholds:       thresholds,
		TransactionalDomains: c.GetStringSlice("triage.transactional_domains"),
	}, nil
}

// GetExtract returns the feature extraction limits
func (c *Config) GetExtract() ExtractConfig {
	return ExtractConfig{
		MaxBodySize: c.GetInt("extract.max_body_size"),
		MaxLinks:    c.GetInt("extract.max_links"),
	}
}

// GetCheckpoint returns the checkpoint store configuration
func (c *Config) GetCheckpoint() (CheckpointConfig, error) {
	ttl, err := c.GetDuration("checkpoint.ttl")
	if err != nil {
		return CheckpointConfig{}, fmt.Errorf("invalid checkpoint ttl: %w", err)
	}
	cleanup, err := c.GetDuration("checkpoint.cleanup_frequency")
	if err != nil {
		return CheckpointConfig{}, fmt.Errorf("invalid checkpoint cleanup frequency: %w", err)
	}
	return CheckpointConfig{
		Type:             c.GetString("checkpoint.type"),
		TTL:              ttl,
		CleanupFrequency: cleanup,
		SQLitePath:       c.GetString("checkpoint.sqlite_path"),
		MySQLDSN:         c.GetString("checkpoint.mysql_dsn"),
	}, nil
}

// GetHTTP returns the admin HTTP API configuration
func (c *Config) GetHTTP() HTTPConfig {
	return HTTPConfig{
		Enabled:       c.GetBool("http.enabled"),
		ListenAddress: c.GetString("http.listen_address"),
	}
}
