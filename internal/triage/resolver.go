package triage

import (
	"math"
	"sort"

	"github.com/mikey/mail-triage/internal/core"
)

const confidenceEpsilon = 1e-9

// Resolver picks the primary detection out of a set of detections
type Resolver struct {
	priorities      map[string]int
	defaultPriority int
	auxiliary       map[string]struct{}
	delta           float64
}

// NewResolver creates a resolver from the priority and auxiliary tables of cfg.
// A negative delta disables auxiliary demotion.
func NewResolver(cfg Config) *Resolver {
	aux := make(map[string]struct{}, len(cfg.Auxiliary))
	for _, label := range cfg.Auxiliary {
		aux[labelKey(label)] = struct{}{}
	}
	return &Resolver{
		priorities:      lowerKeys(cfg.Priorities),
		defaultPriority: cfg.DefaultPriority,
		auxiliary:       aux,
		delta:           cfg.Delta,
	}
}

// Priority returns the configured priority of a label
func (r *Resolver) Priority(label string) int {
	if p, ok := r.priorities[labelKey(label)]; ok {
		return p
	}
	return r.defaultPriority
}

// IsAuxiliary reports whether a label only corroborates other labels
func (r *Resolver) IsAuxiliary(label string) bool {
	_, ok := r.auxiliary[labelKey(label)]
	return ok
}

// Rank orders detections by confidence descending, then by priority
// descending. The input is not modified.
func (r *Resolver) Rank(detections []core.Detection) []core.Detection {
	ranked := append([]core.Detection(nil), detections...)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if math.Abs(a.Confidence-b.Confidence) > confidenceEpsilon {
			return a.Confidence > b.Confidence
		}
		return r.Priority(a.Label) > r.Priority(b.Label)
	})
	return ranked
}

// Primary returns the detection that represents the message. It returns
// false when there are no detections.
func (r *Resolver) Primary(detections []core.Detection) (core.Detection, bool) {
	if len(detections) == 0 {
		return core.Detection{}, false
	}

	ranked := r.Rank(detections)
	top := ranked[0]
	if !r.IsAuxiliary(top.Label) || r.delta < 0 {
		return top, true
	}

	for _, candidate := range ranked[1:] {
		if r.IsAuxiliary(candidate.Label) {
			continue
		}
		// ranked order means the first non-auxiliary is the closest one
		if top.Confidence-candidate.Confidence <= r.delta+confidenceEpsilon {
			return candidate, true
		}
		break
	}
	return top, true
}

// ChoosePrimary returns the primary label, or core.UnknownLabel
func (r *Resolver) ChoosePrimary(detections []core.Detection) string {
	primary, ok := r.Primary(detections)
	if !ok {
		return core.UnknownLabel
	}
	return primary.Label
}
