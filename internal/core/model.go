package core

import (
	"time"
)

// UnknownLabel is the primary label used when no rule set fired
const UnknownLabel = "Unknown"

// Link is one hyperlink extracted from a message. Either side may be empty.
type Link struct {
	Text string
	Href string
}

// AuthResults holds the parsed Authentication-Results verdicts.
// A nil pointer means the mechanism was not reported.
type AuthResults struct {
	SPFPass  *bool
	DKIMPass *bool
	ARCPass  *bool
}

// FeatureRecord is the normalized, provider-agnostic view of one message
type FeatureRecord struct {
	ID              string
	Subject         string
	Body            string
	From            string
	FromDomain      string
	ReplyTo         string
	HasListID       bool
	HasUnsubscribe  bool
	MentionsMailbox bool
	IsReplyChain    bool
	HasInReplyTo    bool
	// AttachmentExts holds lower-cased extensions including the dot (".pdf")
	AttachmentExts map[string]struct{}
	Links          []Link
	// Headers maps a lower-cased header name to its first value
	Headers map[string]string
	Auth    *AuthResults
}

// Evidence records one fired rule
type Evidence struct {
	RuleID string `json:"rule_id"`
	Detail string `json:"detail,omitempty"`
}

// Detection is the scored output of one rule set that met its threshold
type Detection struct {
	Label        string     `json:"label"`
	Confidence   float64    `json:"confidence"`
	Evidence     []Evidence `json:"evidence"`
	MoveEligible bool       `json:"move_eligible"`
}

// Classified is the final decision for one message
type Classified struct {
	ProcessingID      string      `json:"processing_id,omitempty"`
	PrimaryLabel      string      `json:"primary_label"`
	PrimaryFolder     string      `json:"primary_folder"`
	PrimaryConfidence float64     `json:"primary_confidence"`
	Move              bool        `json:"move"`
	Detections        []Detection `json:"detections"`
}

// Checkpoint tracks how far a mailbox has been processed
type Checkpoint struct {
	Mailbox     string
	UIDValidity uint32
	LastUID     uint32
	UpdatedAt   time.Time
	ExpiresAt   time.Time
}
