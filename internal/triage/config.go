package triage

import (
	"strings"

	"github.com/mikey/mail-triage/internal/rules"
)

const (
	// DefaultFolder receives every label without a folder mapping
	DefaultFolder = "Other"

	// DefaultClosenessDelta is how close a non-auxiliary runner-up must be to
	// an auxiliary top detection to take its place
	DefaultClosenessDelta = 0.05

	// DefaultTagPrefix namespaces the tags written back to a mailbox
	DefaultTagPrefix = "Triage"
)

// Config holds the tuning tables of the engine. Label keys are matched
// case-insensitively.
type Config struct {
	Priorities      map[string]int
	DefaultPriority int
	Auxiliary       []string
	Delta           float64
	Folders         map[string]string
	DefaultFolder   string
	MoveThresholds  map[string]float64
}

// DefaultConfig returns the tuning for the built-in taxonomy
func DefaultConfig() Config {
	return Config{
		Priorities: map[string]int{
			rules.LabelPhishing:      100,
			rules.LabelNeedsReply:    90,
			rules.LabelCalendar:      80,
			rules.LabelTravel:        75,
			rules.LabelOrders:        70,
			rules.LabelReceipts:      65,
			rules.LabelBilling:       60,
			rules.LabelSubscriptions: 55,
			rules.LabelUpdates:       40,
			rules.LabelNewsletters:   35,
			rules.LabelPromotions:    30,
			rules.LabelPolitical:     25,
			rules.LabelMentions:      10,
		},
		DefaultPriority: 0,
		Auxiliary:       []string{rules.LabelMentions},
		Delta:           DefaultClosenessDelta,
		Folders: map[string]string{
			rules.LabelNeedsReply:    "Needs Reply",
			rules.LabelSubscriptions: "Subscriptions",
			rules.LabelReceipts:      "Receipts",
			rules.LabelBilling:       "Billing",
			rules.LabelOrders:        "Orders",
			rules.LabelTravel:        "Travel",
			rules.LabelCalendar:      "Calendar",
			rules.LabelPromotions:    "Promotions",
			rules.LabelNewsletters:   "Newsletters",
			rules.LabelUpdates:       "Updates",
			rules.LabelPolitical:     "Political",
			rules.LabelPhishing:      "Suspicious",
			rules.LabelMentions:      "Mentions",
		},
		DefaultFolder: DefaultFolder,
		MoveThresholds: map[string]float64{
			rules.LabelNewsletters:   0.70,
			rules.LabelPromotions:    0.70,
			rules.LabelPolitical:     0.70,
			rules.LabelUpdates:       0.75,
			rules.LabelReceipts:      0.80,
			rules.LabelOrders:        0.80,
			rules.LabelSubscriptions: 0.80,
			rules.LabelBilling:       0.85,
			rules.LabelTravel:        0.85,
			rules.LabelPhishing:      0.90,
		},
	}
}

func labelKey(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

func lowerKeys[V any](in map[string]V) map[string]V {
	out := make(map[string]V, len(in))
	for k, v := range in {
		out[labelKey(k)] = v
	}
	return out
}
