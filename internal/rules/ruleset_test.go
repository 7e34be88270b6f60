package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikey/mail-triage/internal/core"
)

func TestEvaluatorRule(t *testing.T) {
	eval := DefaultEvaluator()
	rec := &core.FeatureRecord{HasListID: true}
	detail := func(*core.FeatureRecord) string { return "explained" }

	tests := []struct {
		name       string
		item       RuleItem
		wantFired  bool
		wantDetail string
	}{
		{
			name:       "all operands hold",
			item:       RuleItem{ID: "r", Operands: []Operand{Flagged(FlagHasListID), Flagged(FlagHasListID)}, Detail: detail},
			wantFired:  true,
			wantDetail: "explained",
		},
		{
			name:      "all with one failing operand",
			item:      RuleItem{ID: "r", Operands: []Operand{Flagged(FlagHasListID), Flagged(FlagHasUnsubscribe)}, Detail: detail},
			wantFired: false,
		},
		{
			name:       "any with one holding operand",
			item:       RuleItem{ID: "r", Operands: []Operand{Flagged(FlagHasUnsubscribe), Flagged(FlagHasListID)}, Any: true, Detail: detail},
			wantFired:  true,
			wantDetail: "explained",
		},
		{
			name:      "any with none holding",
			item:      RuleItem{ID: "r", Operands: []Operand{Flagged(FlagHasUnsubscribe)}, Any: true},
			wantFired: false,
		},
		{
			name:       "all without operands holds",
			item:       RuleItem{ID: "r", Detail: detail},
			wantFired:  true,
			wantDetail: "explained",
		},
		{
			name:      "any without operands never fires",
			item:      RuleItem{ID: "r", Any: true, Detail: detail},
			wantFired: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fired, got := eval.Rule(rec, tt.item)
			assert.Equal(t, tt.wantFired, fired)
			assert.Equal(t, tt.wantDetail, got)
		})
	}
}

func TestRuleDetailRunsRegardlessOfOutcome(t *testing.T) {
	calls := 0
	item := RuleItem{
		ID:       "r",
		Operands: []Operand{Flagged(FlagHasUnsubscribe)},
		Detail: func(*core.FeatureRecord) string {
			calls++
			return "computed"
		},
	}

	fired, detail := DefaultEvaluator().Rule(&core.FeatureRecord{}, item)
	assert.False(t, fired)
	assert.Empty(t, detail)
	assert.Equal(t, 1, calls)
}

func weightedSet(threshold, cap float64, weights ...float64) RuleSet {
	set := RuleSet{Label: "Test", Threshold: threshold, HardCap: cap, MoveEnabled: true}
	for i, w := range weights {
		set.Rules = append(set.Rules, RuleItem{
			ID:       "rule" + string(rune('a'+i)),
			Weight:   w,
			Operands: []Operand{Flagged(FlagHasListID)},
		})
	}
	return set
}

func TestScoreThresholdBoundary(t *testing.T) {
	eval := DefaultEvaluator()
	rec := &core.FeatureRecord{HasListID: true}

	tests := []struct {
		name    string
		set     RuleSet
		detects bool
	}{
		{name: "single weight equals threshold", set: weightedSet(0.7, 0, 0.7), detects: true},
		{name: "summed weights equal threshold", set: weightedSet(0.8, 0, 0.7, 0.1), detects: true},
		{name: "sum equal to threshold with float error", set: weightedSet(0.3, 0, 0.1, 0.2), detects: true},
		{name: "just below threshold", set: weightedSet(0.7, 0, 0.69), detects: false},
		{name: "far below threshold", set: weightedSet(0.7, 0, 0.2, 0.2), detects: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := eval.Score(rec, tt.set)
			assert.Equal(t, tt.detects, ok)
		})
	}
}

func TestScoreCapEnforcement(t *testing.T) {
	eval := DefaultEvaluator()
	rec := &core.FeatureRecord{HasListID: true}

	detection, ok := eval.Score(rec, weightedSet(0.5, 0.8, 0.6, 0.6))
	require.True(t, ok)
	assert.Equal(t, 0.8, detection.Confidence)

	detection, ok = eval.Score(rec, weightedSet(0.5, 0, 0.9, 0.9))
	require.True(t, ok)
	assert.Equal(t, DefaultHardCap, detection.Confidence)

	detection, ok = eval.Score(rec, weightedSet(0.5, 3, 0.9, 0.9))
	require.True(t, ok)
	assert.Equal(t, 1.0, detection.Confidence)
}

func TestScoreNegativeTotalClampsToZero(t *testing.T) {
	_, ok := DefaultEvaluator().Score(&core.FeatureRecord{HasListID: true}, weightedSet(0.1, 0, -0.5))
	assert.False(t, ok)
}

func TestScoreCollectsEvidenceFromEveryFiredRule(t *testing.T) {
	set := RuleSet{
		Label:     "Test",
		Threshold: 0.5,
		Rules: []RuleItem{
			{ID: "first", Weight: 0.6, Operands: []Operand{Flagged(FlagHasListID)}},
			{ID: "skipped", Weight: 0.6, Operands: []Operand{Flagged(FlagHasUnsubscribe)}},
			{
				ID:       "second",
				Weight:   0.6,
				Operands: []Operand{Flagged(FlagHasListID)},
				Detail:   func(*core.FeatureRecord) string { return "why" },
			},
		},
	}

	detection, ok := DefaultEvaluator().Score(&core.FeatureRecord{HasListID: true}, set)
	require.True(t, ok)
	assert.Equal(t, "Test", detection.Label)
	assert.False(t, detection.MoveEligible)
	assert.Equal(t, []core.Evidence{{RuleID: "first"}, {RuleID: "second", Detail: "why"}}, detection.Evidence)
}
