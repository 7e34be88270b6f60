package factory

import (
	"strings"

	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/config"
	"github.com/mikey/mail-triage/internal/metrics"
	"github.com/mikey/mail-triage/internal/rules"
	"github.com/mikey/mail-triage/internal/triage"
	"github.com/mikey/mail-triage/internal/whitelist"
)

// EngineFactory builds the triage engine from the built-in taxonomy and the
// configured overrides
type EngineFactory struct {
	cfg      *config.Config
	logger   *zap.Logger
	recorder *metrics.Recorder
}

// NewEngineFactory creates a new engine factory
func NewEngineFactory(cfg *config.Config, logger *zap.Logger, recorder *metrics.Recorder) *EngineFactory {
	return &EngineFactory{
		cfg:      cfg,
		logger:   logger,
		recorder: recorder,
	}
}

// CreateEngine creates the engine. Rule-set failures are logged and counted.
func (f *EngineFactory) CreateEngine() (*triage.Engine, error) {
	tc, err := f.cfg.GetTriage()
	if err != nil {
		return nil, err
	}

	if len(tc.TransactionalDomains) > 0 {
		f.logger.Info("Loaded transactional domains", zap.Strings("domains", tc.TransactionalDomains))
	}
	evaluator := rules.NewEvaluator(whitelist.NewTransactionalChecker(tc.TransactionalDomains, f.logger))

	registry := rules.NewRegistry(rules.DefaultRuleSets(),
		rules.WithEvaluator(evaluator),
		rules.WithErrorHook(f.onRuleSetError),
	)

	return triage.NewEngine(registry, MergeTriageConfig(triage.DefaultConfig(), tc)), nil
}

func (f *EngineFactory) onRuleSetError(err *rules.EvalError) {
	f.logger.Warn("Rule set evaluation failed", zap.String("label", err.Label), zap.Error(err.Cause))
	if f.recorder != nil {
		f.recorder.ObserveRuleSetFailure(err.Label)
	}
}

// MergeTriageConfig overlays configured tables on the defaults. Map entries
// are merged per label; the auxiliary set is replaced when configured.
func MergeTriageConfig(base triage.Config, tc config.TriageConfig) triage.Config {
	out := triage.Config{
		Priorities:      overlay(base.Priorities, tc.Priorities),
		DefaultPriority: tc.DefaultPriority,
		Auxiliary:       base.Auxiliary,
		Delta:           tc.ClosenessDelta,
		Folders:         overlay(base.Folders, tc.Folders),
		DefaultFolder:   base.DefaultFolder,
		MoveThresholds:  overlay(base.MoveThresholds, tc.MoveThresholds),
	}
	if len(tc.AuxiliaryLabels) > 0 {
		out.Auxiliary = tc.AuxiliaryLabels
	}
	if strings.TrimSpace(tc.DefaultFolder) != "" {
		out.DefaultFolder = tc.DefaultFolder
	}
	return out
}

func overlay[V any](base, over map[string]V) map[string]V {
	out := make(map[string]V, len(base)+len(over))
	for k, v := range base {
		out[strings.ToLower(k)] = v
	}
	for k, v := range over {
		out[strings.ToLower(k)] = v
	}
	return out
}
