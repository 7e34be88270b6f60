package rules

import (
	"github.com/mikey/mail-triage/internal/core"
)

// DefaultHardCap bounds a rule set's summed weight when no cap is configured
const DefaultHardCap = 1.0

// scoreEpsilon absorbs float summation error in threshold comparisons so a
// total that equals the threshold on paper is never rejected
const scoreEpsilon = 1e-9

// DetailFunc renders a human-readable explanation for evidence logging
type DetailFunc func(rec *core.FeatureRecord) string

// RuleItem is one weighted group of operands
type RuleItem struct {
	ID       string
	Weight   float64
	Operands []Operand
	// Any fires the rule when at least one operand holds; the default requires all
	Any    bool
	Detail DetailFunc
}

// RuleSet detects one taxonomy label
type RuleSet struct {
	Label     string
	Threshold float64
	// HardCap clamps the summed weight; zero means DefaultHardCap
	HardCap     float64
	MoveEnabled bool
	Rules       []RuleItem
}

// Cap returns the effective cap, never above 1
func (s RuleSet) Cap() float64 {
	if s.HardCap <= 0 || s.HardCap > DefaultHardCap {
		return DefaultHardCap
	}
	return s.HardCap
}

// Rule evaluates a rule item. The detail generator always runs; its result
// is returned only when the rule fired. Without operands an "all" rule holds
// vacuously and an "any" rule never fires.
func (e *Evaluator) Rule(rec *core.FeatureRecord, item RuleItem) (bool, string) {
	var detail string
	if item.Detail != nil {
		detail = item.Detail(rec)
	}

	fired := !item.Any
	for _, op := range item.Operands {
		ok := e.Operand(rec, op)
		if item.Any && ok {
			fired = true
			break
		}
		if !item.Any && !ok {
			fired = false
			break
		}
	}

	if !fired {
		return false, ""
	}
	return true, detail
}

// Score evaluates every rule item of a set and reports a detection when the
// clamped total reaches the threshold
func (e *Evaluator) Score(rec *core.FeatureRecord, set RuleSet) (core.Detection, bool) {
	var total float64
	var evidence []core.Evidence

	for _, item := range set.Rules {
		fired, detail := e.Rule(rec, item)
		if !fired {
			continue
		}
		total += item.Weight
		evidence = append(evidence, core.Evidence{RuleID: item.ID, Detail: detail})
	}

	if len(evidence) == 0 {
		return core.Detection{}, false
	}

	confidence := clamp(total, 0, set.Cap())
	if confidence+scoreEpsilon < set.Threshold {
		return core.Detection{}, false
	}

	return core.Detection{
		Label:        set.Label,
		Confidence:   confidence,
		Evidence:     evidence,
		MoveEligible: set.MoveEnabled,
	}, true
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}
