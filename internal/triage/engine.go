package triage

import (
	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/rules"
)

// Engine turns a feature record into a classification. It holds no
// per-call state and is safe for concurrent use.
type Engine struct {
	registry *rules.Registry
	resolver *Resolver
	folders  *FolderMapper
	policy   *MovePolicy
}

// NewEngine creates an engine over a registry and its tuning tables
func NewEngine(registry *rules.Registry, cfg Config) *Engine {
	return &Engine{
		registry: registry,
		resolver: NewResolver(cfg),
		folders:  NewFolderMapper(cfg.Folders, cfg.DefaultFolder),
		policy:   NewMovePolicy(cfg.MoveThresholds),
	}
}

// NewDefaultEngine creates an engine over the built-in taxonomy
func NewDefaultEngine(opts ...rules.Option) *Engine {
	return NewEngine(rules.NewRegistry(rules.DefaultRuleSets(), opts...), DefaultConfig())
}

// Classify scores every rule set and resolves the primary label, folder and
// move decision. It always returns a result.
func (e *Engine) Classify(record *core.FeatureRecord) core.Classified {
	detections := e.registry.ClassifyByRules(record)

	primary, ok := e.resolver.Primary(detections)
	if !ok {
		return core.Classified{
			PrimaryLabel:  core.UnknownLabel,
			PrimaryFolder: e.folders.DefaultFolder(),
			Detections:    []core.Detection{},
		}
	}

	return core.Classified{
		PrimaryLabel:      primary.Label,
		PrimaryFolder:     e.folders.MapToFolder(primary.Label),
		PrimaryConfidence: primary.Confidence,
		Move:              e.policy.ShouldMove(primary.Label, primary.Confidence, primary.MoveEligible),
		Detections:        detections,
	}
}

// RuleSets returns the rule sets the engine evaluates
func (e *Engine) RuleSets() []rules.RuleSet {
	return e.registry.RuleSets()
}

// Folders returns the folder mapper
func (e *Engine) Folders() *FolderMapper {
	return e.folders
}
