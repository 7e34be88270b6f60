package factory

import (
	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/adapters/extract"
	"github.com/mikey/mail-triage/internal/config"
	"github.com/mikey/mail-triage/internal/utils"
)

// ExtractorFactory creates feature extractors
type ExtractorFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewExtractorFactory creates a new extractor factory
func NewExtractorFactory(cfg *config.Config, logger *zap.Logger) *ExtractorFactory {
	return &ExtractorFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateExtractor creates an extractor bounded by the extract limits
func (f *ExtractorFactory) CreateExtractor() *extract.Extractor {
	ec := f.cfg.GetExtract()
	return extract.NewExtractor(extract.Options{
		SelfAddresses: f.cfg.GetStringSlice("imap.self_addresses"),
		MaxBodySize:   ec.MaxBodySize,
		MaxLinks:      ec.MaxLinks,
	}, utils.NewTextProcessor(f.logger), f.logger)
}
