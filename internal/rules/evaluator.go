package rules

import (
	"net/url"
	"strings"

	"golang.org/x/text/cases"

	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/whitelist"
)

// Evaluator evaluates operands and rules against feature records. It holds
// no per-call state and is safe for concurrent use.
type Evaluator struct {
	transactional *whitelist.Checker
}

// NewEvaluator creates an evaluator. transactional is the allow-list used by
// ReplyToDomainMismatch; nil disables the exemption.
func NewEvaluator(transactional *whitelist.Checker) *Evaluator {
	return &Evaluator{transactional: transactional}
}

// DefaultEvaluator returns an evaluator using the built-in transactional domains
func DefaultEvaluator() *Evaluator {
	return NewEvaluator(whitelist.NewTransactionalChecker(nil, nil))
}

// Operand evaluates one operand. Missing or malformed data yields false.
func (e *Evaluator) Operand(rec *core.FeatureRecord, op Operand) bool {
	if rec == nil {
		return false
	}

	switch o := op.(type) {
	case TextMatch:
		return matchText(rec, o)
	case HeaderEquals:
		return headerEquals(rec, o)
	case FlagTrue:
		return flagValue(rec, o.Flag)
	case ReplyToDomainMismatch:
		return e.replyToMismatch(rec)
	case AuthFailed:
		return authFailed(rec.Auth)
	case AttachmentExtIn:
		return attachmentIn(rec, o.Exts)
	case LinkHostIn:
		return linkHostIn(rec, o.Hosts)
	case SenderDomainIn:
		return containsFold(o.Domains, senderDomain(rec))
	case LinkHostMismatch:
		return linkHostMismatch(rec)
	case FieldMatches:
		if o.Pattern == nil {
			return false
		}
		value, ok := fieldValue(rec, o.Field)
		return ok && o.Pattern.MatchString(value)
	default:
		return false
	}
}

func fold(s string) string {
	// A Caser is stateful, so one is created per call
	return cases.Fold().String(s)
}

func matchText(rec *core.FeatureRecord, m TextMatch) bool {
	var text string
	switch m.Scope {
	case ScopeSubject:
		text = rec.Subject
	case ScopeBody:
		text = rec.Body
	case ScopeBoth:
		text = rec.Subject + "\n" + rec.Body
	default:
		return false
	}
	if text == "" {
		return false
	}
	text = fold(text)

	for _, literal := range m.Literals {
		if literal != "" && strings.Contains(text, fold(literal)) {
			return true
		}
	}
	for _, p := range m.Patterns {
		if p != nil && p.MatchString(text) {
			return true
		}
	}
	return false
}

func headerEquals(rec *core.FeatureRecord, h HeaderEquals) bool {
	value, ok := rec.Headers[strings.ToLower(h.Name)]
	if !ok {
		return false
	}
	value = strings.TrimSpace(value)
	for _, accepted := range h.Values {
		if strings.EqualFold(value, strings.TrimSpace(accepted)) {
			return true
		}
	}
	return false
}

func flagValue(rec *core.FeatureRecord, flag Flag) bool {
	switch flag {
	case FlagHasListID:
		return rec.HasListID
	case FlagHasUnsubscribe:
		return rec.HasUnsubscribe
	case FlagMentionsMailbox:
		return rec.MentionsMailbox
	case FlagIsReplyChain:
		return rec.IsReplyChain
	case FlagHasInReplyTo:
		return rec.HasInReplyTo
	default:
		return false
	}
}

func fieldValue(rec *core.FeatureRecord, field Field) (string, bool) {
	switch field {
	case FieldID:
		return rec.ID, true
	case FieldSubject:
		return rec.Subject, true
	case FieldBody:
		return rec.Body, true
	case FieldFrom:
		return rec.From, true
	case FieldFromDomain:
		return senderDomain(rec), true
	case FieldReplyTo:
		return rec.ReplyTo, true
	default:
		return "", false
	}
}

func (e *Evaluator) replyToMismatch(rec *core.FeatureRecord) bool {
	replyDomain := DomainOf(rec.ReplyTo)
	if replyDomain == "" {
		return false
	}
	fromDomain := senderDomain(rec)
	if fromDomain == "" || replyDomain == fromDomain {
		return false
	}
	return !e.transactional.Contains(replyDomain)
}

func authFailed(auth *core.AuthResults) bool {
	if auth == nil {
		return false
	}
	return (auth.SPFPass != nil && !*auth.SPFPass) || (auth.DKIMPass != nil && !*auth.DKIMPass)
}

func attachmentIn(rec *core.FeatureRecord, exts []string) bool {
	if len(rec.AttachmentExts) == 0 {
		return false
	}
	for _, ext := range exts {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if _, ok := rec.AttachmentExts[ext]; ok {
			return true
		}
	}
	return false
}

func linkHostIn(rec *core.FeatureRecord, hosts []string) bool {
	for _, link := range rec.Links {
		host := HostOf(link.Href)
		if host != "" && containsFold(hosts, host) {
			return true
		}
	}
	return false
}

func linkHostMismatch(rec *core.FeatureRecord) bool {
	for _, link := range rec.Links {
		shown := visibleHost(link.Text)
		if shown == "" {
			continue
		}
		actual := HostOf(link.Href)
		if actual == "" {
			continue
		}
		if strings.TrimPrefix(shown, "www.") != strings.TrimPrefix(actual, "www.") {
			return true
		}
	}
	return false
}

func senderDomain(rec *core.FeatureRecord) string {
	if rec.FromDomain != "" {
		return strings.ToLower(strings.TrimSpace(rec.FromDomain))
	}
	return DomainOf(rec.From)
}

func containsFold(set []string, value string) bool {
	if value == "" {
		return false
	}
	for _, s := range set {
		if strings.EqualFold(s, value) {
			return true
		}
	}
	return false
}

// DomainOf returns the lower-cased domain of an email address, or "" if there is none
func DomainOf(address string) string {
	address = strings.TrimSpace(address)
	at := strings.LastIndex(address, "@")
	if at < 0 || at == len(address)-1 {
		return ""
	}
	return strings.ToLower(strings.TrimRight(address[at+1:], "> "))
}

// HostOf returns the lower-cased host of an absolute URL, or "" if it cannot be parsed
func HostOf(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
}

// visibleHost extracts a host from link text that is an absolute URL or a
// "www." address. Bare dotted words such as file names are not hosts.
func visibleHost(text string) string {
	text = strings.TrimSpace(text)
	if text == "" || strings.ContainsAny(text, " \t\r\n") {
		return ""
	}
	lower := strings.ToLower(text)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
	case strings.HasPrefix(lower, "www."):
		text = "http://" + text
	default:
		return ""
	}
	host := HostOf(text)
	if !looksLikeDomain(host) {
		return ""
	}
	return host
}

// looksLikeDomain requires dot-separated LDH labels ending in an alphabetic TLD
func looksLikeDomain(host string) bool {
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if label == "" {
			return false
		}
		for _, r := range label {
			if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-') {
				return false
			}
		}
	}
	tld := labels[len(labels)-1]
	if len(tld) < 2 {
		return false
	}
	for _, r := range tld {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}
