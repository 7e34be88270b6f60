package rules

import (
	"regexp"
	"strings"
)

// Scope selects which text fields a TextMatch inspects
type Scope int

const (
	ScopeBoth Scope = iota
	ScopeSubject
	ScopeBody
)

// Flag names a boolean field of core.FeatureRecord
type Flag string

const (
	FlagHasListID       Flag = "hasListId"
	FlagHasUnsubscribe  Flag = "hasUnsubscribe"
	FlagMentionsMailbox Flag = "mentionsMailbox"
	FlagIsReplyChain    Flag = "isReplyChain"
	FlagHasInReplyTo    Flag = "hasInReplyTo"
)

// Field names a string field of core.FeatureRecord
type Field string

const (
	FieldID         Field = "id"
	FieldSubject    Field = "subject"
	FieldBody       Field = "body"
	FieldFrom       Field = "from"
	FieldFromDomain Field = "fromDomain"
	FieldReplyTo    Field = "replyTo"
)

// Operand is one atomic test against a feature record. The set of
// implementations is closed; the evaluator treats anything else as false.
type Operand interface {
	isOperand()
}

// TextMatch is true when any literal (case-insensitive substring) or
// pattern matches the scoped text
type TextMatch struct {
	Scope    Scope
	Literals []string
	Patterns []*regexp.Regexp
}

// HeaderEquals is true when the named header equals one of Values
// (case-insensitive, surrounding whitespace ignored)
type HeaderEquals struct {
	Name   string
	Values []string
}

// FlagTrue is true when the named boolean field is set
type FlagTrue struct {
	Flag Flag
}

// ReplyToDomainMismatch is true when a reply-to domain differs from the
// sender domain and is not a known transactional sending service
type ReplyToDomainMismatch struct{}

// AuthFailed is true when SPF or DKIM was reported and did not pass
type AuthFailed struct{}

// AttachmentExtIn is true when any attachment extension is in Exts
type AttachmentExtIn struct {
	Exts []string
}

// LinkHostIn is true when any link href host is in Hosts
type LinkHostIn struct {
	Hosts []string
}

// SenderDomainIn is true when the sender domain is in Domains
type SenderDomainIn struct {
	Domains []string
}

// LinkHostMismatch is true when a link displays one host and points to another
type LinkHostMismatch struct{}

// FieldMatches is true when Pattern matches the named field
type FieldMatches struct {
	Field   Field
	Pattern *regexp.Regexp
}

func (TextMatch) isOperand()             {}
func (HeaderEquals) isOperand()          {}
func (FlagTrue) isOperand()              {}
func (ReplyToDomainMismatch) isOperand() {}
func (AuthFailed) isOperand()            {}
func (AttachmentExtIn) isOperand()       {}
func (LinkHostIn) isOperand()            {}
func (SenderDomainIn) isOperand()        {}
func (LinkHostMismatch) isOperand()      {}
func (FieldMatches) isOperand()          {}

// Text builds a literal TextMatch
func Text(scope Scope, literals ...string) TextMatch {
	return TextMatch{Scope: scope, Literals: literals}
}

// TextPattern builds a case-insensitive pattern TextMatch. It panics on an
// invalid expression, so it is only meant for static rule tables.
func TextPattern(scope Scope, patterns ...string) TextMatch {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile("(?i)" + p)
	}
	return TextMatch{Scope: scope, Patterns: compiled}
}

// Header builds a HeaderEquals operand
func Header(name string, values ...string) HeaderEquals {
	return HeaderEquals{Name: strings.ToLower(name), Values: values}
}

// Flagged builds a FlagTrue operand
func Flagged(flag Flag) FlagTrue {
	return FlagTrue{Flag: flag}
}

// AttachmentExt builds an AttachmentExtIn operand
func AttachmentExt(exts ...string) AttachmentExtIn {
	return AttachmentExtIn{Exts: exts}
}

// LinkHost builds a LinkHostIn operand
func LinkHost(hosts ...string) LinkHostIn {
	return LinkHostIn{Hosts: hosts}
}

// SenderDomain builds a SenderDomainIn operand
func SenderDomain(domains ...string) SenderDomainIn {
	return SenderDomainIn{Domains: domains}
}

// Matches builds a case-insensitive FieldMatches operand; see TextPattern
func Matches(field Field, pattern string) FieldMatches {
	return FieldMatches{Field: field, Pattern: regexp.MustCompile("(?i)" + pattern)}
}
