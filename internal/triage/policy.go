package triage

// MovePolicy decides whether a classified message may leave the inbox.
// Labels without a configured threshold are never moved.
type MovePolicy struct {
	thresholds map[string]float64
}

// NewMovePolicy creates a policy over per-label minimum confidences
func NewMovePolicy(thresholds map[string]float64) *MovePolicy {
	return &MovePolicy{thresholds: lowerKeys(thresholds)}
}

// Threshold returns the minimum confidence configured for a label
func (p *MovePolicy) Threshold(label string) (float64, bool) {
	t, ok := p.thresholds[labelKey(label)]
	return t, ok
}

// ShouldMove reports whether the message may be relocated
func (p *MovePolicy) ShouldMove(label string, confidence float64, moveEligible bool) bool {
	if !moveEligible {
		return false
	}
	threshold, ok := p.Threshold(label)
	if !ok {
		return false
	}
	return confidence+confidenceEpsilon >= threshold
}
