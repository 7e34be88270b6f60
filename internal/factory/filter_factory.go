package factory

import (
	"fmt"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/adapters/filter"
	"github.com/mikey/mail-triage/internal/adapters/imap"
	"github.com/mikey/mail-triage/internal/config"
	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/metrics"
	"github.com/mikey/mail-triage/internal/ports"
)

// FilterParams are the dependencies of the filter factory. Checkpoints is
// only needed by the IMAP poller.
type FilterParams struct {
	dig.In

	Config      *config.Config
	Logger      *zap.Logger
	Service     *core.TriageService
	Recorder    *metrics.Recorder
	Checkpoints *CheckpointFactory `optional:"true"`
}

// FilterFactory creates email filters based on configuration
type FilterFactory struct {
	cfg         *config.Config
	logger      *zap.Logger
	service     *core.TriageService
	recorder    *metrics.Recorder
	checkpoints *CheckpointFactory
	dial        func(config.IMAPConfig, *zap.Logger) (imap.Client, error)
}

// NewFilterFactory creates a new filter factory
func NewFilterFactory(p FilterParams) *FilterFactory {
	return &FilterFactory{
		cfg:         p.Config,
		logger:      p.Logger,
		service:     p.Service,
		recorder:    p.Recorder,
		checkpoints: p.Checkpoints,
		dial: func(cfg config.IMAPConfig, logger *zap.Logger) (imap.Client, error) {
			return imap.Dial(cfg, logger)
		},
	}
}

// CreateEmailFilter creates an email filter based on the configuration
func (f *FilterFactory) CreateEmailFilter() (ports.EmailFilter, error) {
	filterType := f.cfg.GetString("server.filter_type")

	switch filterType {
	case "postfix":
		return filter.NewPostfixFilter(f.service, f.recorder, f.logger, f.cfg.GetServer()), nil
	case "imap":
		return f.createIMAPPoller()
	case "cli":
		return filter.NewCliFilter(f.service, f.logger, f.cfg.GetBool("cli.verbose"))
	default:
		return nil, fmt.Errorf("unsupported filter type: %s", filterType)
	}
}

func (f *FilterFactory) createIMAPPoller() (ports.EmailFilter, error) {
	if f.checkpoints == nil {
		return nil, fmt.Errorf("imap filter requires a checkpoint store")
	}

	store, err := f.checkpoints.CreateCheckpointRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to create checkpoint store: %w", err)
	}

	mailbox, ic, tc, err := f.dialMailbox()
	if err != nil {
		store.Stop()
		return nil, err
	}
	return imap.NewPoller(f.service, mailbox, store, f.recorder, f.logger, ic, tc.TagPrefix), nil
}

// CreateReclassifier connects to the configured IMAP mailbox for a
// reclassification run
func (f *FilterFactory) CreateReclassifier() (*imap.Reclassifier, *imap.Mailbox, error) {
	mailbox, ic, tc, err := f.dialMailbox()
	if err != nil {
		return nil, nil, err
	}
	return imap.NewReclassifier(f.service, mailbox, f.logger, ic, tc.TagPrefix), mailbox, nil
}

// CreateAuditor connects to the configured IMAP account for a misfiled audit
func (f *FilterFactory) CreateAuditor() (*imap.Auditor, *imap.Mailbox, error) {
	mailbox, ic, _, err := f.dialMailbox()
	if err != nil {
		return nil, nil, err
	}
	return imap.NewAuditor(f.service, mailbox, f.logger, ic), mailbox, nil
}

func (f *FilterFactory) dialMailbox() (*imap.Mailbox, config.IMAPConfig, config.TriageConfig, error) {
	ic, err := f.cfg.GetIMAP()
	if err != nil {
		return nil, ic, config.TriageConfig{}, err
	}
	tc, err := f.cfg.GetTriage()
	if err != nil {
		return nil, ic, tc, err
	}

	client, err := f.dial(ic, f.logger)
	if err != nil {
		return nil, ic, tc, err
	}
	return imap.NewMailbox(client, tc.TagPrefix, f.logger), ic, tc, nil
}
