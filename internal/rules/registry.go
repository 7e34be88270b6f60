package rules

import (
	"fmt"
	"sort"

	"github.com/mikey/mail-triage/internal/core"
)

// EvalError reports a rule set whose evaluation failed and was skipped
type EvalError struct {
	Label string
	Cause error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("rule set %q failed: %v", e.Label, e.Cause)
}

func (e *EvalError) Unwrap() error {
	return e.Cause
}

// ErrorHook receives rule-set failures. It is called synchronously.
type ErrorHook func(err *EvalError)

// Option configures a Registry
type Option func(*Registry)

// WithEvaluator replaces the default evaluator
func WithEvaluator(e *Evaluator) Option {
	return func(r *Registry) {
		if e != nil {
			r.eval = e
		}
	}
}

// WithErrorHook sets the callback for skipped rule sets
func WithErrorHook(hook ErrorHook) Option {
	return func(r *Registry) {
		r.onError = hook
	}
}

// Registry is an ordered, immutable collection of rule sets
type Registry struct {
	sets    []RuleSet
	eval    *Evaluator
	onError ErrorHook
}

// NewRegistry creates a registry over a copy of sets
func NewRegistry(sets []RuleSet, opts ...Option) *Registry {
	r := &Registry{
		sets: append([]RuleSet(nil), sets...),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.eval == nil {
		r.eval = DefaultEvaluator()
	}
	return r
}

// RuleSets returns the registered rule sets in order
func (r *Registry) RuleSets() []RuleSet {
	return append([]RuleSet(nil), r.sets...)
}

// ClassifyByRules scores every rule set independently and returns the
// detections sorted by confidence descending, registry order breaking ties.
// A failing rule set is reported to the error hook and skipped.
func (r *Registry) ClassifyByRules(rec *core.FeatureRecord) []core.Detection {
	if rec == nil {
		rec = &core.FeatureRecord{}
	}

	detections := make([]core.Detection, 0, len(r.sets))
	for _, set := range r.sets {
		detection, ok, err := r.safeScore(rec, set)
		if err != nil {
			if r.onError != nil {
				r.onError(err)
			}
			continue
		}
		if ok {
			detections = append(detections, detection)
		}
	}

	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})
	return detections
}

func (r *Registry) safeScore(rec *core.FeatureRecord, set RuleSet) (detection core.Detection, ok bool, evalErr *EvalError) {
	defer func() {
		if p := recover(); p != nil {
			cause, isErr := p.(error)
			if !isErr {
				cause = fmt.Errorf("panic: %v", p)
			}
			detection, ok, evalErr = core.Detection{}, false, &EvalError{Label: set.Label, Cause: cause}
		}
	}()

	detection, ok = r.eval.Score(rec, set)
	return detection, ok, nil
}
