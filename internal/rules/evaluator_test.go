package rules

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/whitelist"
)

func boolPtr(b bool) *bool { return &b }

type unknownOperand struct{ TextMatch }

func TestEvaluatorOperand(t *testing.T) {
	eval := DefaultEvaluator()

	tests := []struct {
		name string
		rec  *core.FeatureRecord
		op   Operand
		want bool
	}{
		{
			name: "text literal in subject is case-insensitive",
			rec:  &core.FeatureRecord{Subject: "Your WEEKLY Roundup"},
			op:   Text(ScopeSubject, "weekly roundup"),
			want: true,
		},
		{
			name: "text scope subject ignores body",
			rec:  &core.FeatureRecord{Body: "weekly roundup"},
			op:   Text(ScopeSubject, "weekly roundup"),
			want: false,
		},
		{
			name: "text scope both spans subject and body",
			rec:  &core.FeatureRecord{Subject: "hello", Body: "see the invoice"},
			op:   Text(ScopeBoth, "invoice"),
			want: true,
		},
		{
			name: "text pattern",
			rec:  &core.FeatureRecord{Body: "Order #A1B2C3 confirmed"},
			op:   TextPattern(ScopeBody, `order\s*#\s*[a-z0-9]{4,}`),
			want: true,
		},
		{
			name: "text empty literal never matches",
			rec:  &core.FeatureRecord{Body: "anything"},
			op:   Text(ScopeBody, ""),
			want: false,
		},
		{
			name: "text unknown scope",
			rec:  &core.FeatureRecord{Body: "anything"},
			op:   TextMatch{Scope: Scope(42), Literals: []string{"anything"}},
			want: false,
		},
		{
			name: "header equals ignores case and whitespace",
			rec:  &core.FeatureRecord{Headers: map[string]string{"precedence": " Bulk "}},
			op:   Header("Precedence", "bulk"),
			want: true,
		},
		{
			name: "header missing",
			rec:  &core.FeatureRecord{},
			op:   Header("Precedence", "bulk"),
			want: false,
		},
		{
			name: "flag true",
			rec:  &core.FeatureRecord{HasListID: true},
			op:   Flagged(FlagHasListID),
			want: true,
		},
		{
			name: "unknown flag",
			rec:  &core.FeatureRecord{HasListID: true},
			op:   Flagged(Flag("isVIP")),
			want: false,
		},
		{
			name: "reply-to mismatch",
			rec:  &core.FeatureRecord{From: "support@paypal.com", ReplyTo: "help@paypa1-secure.ru"},
			op:   ReplyToDomainMismatch{},
			want: true,
		},
		{
			name: "reply-to same domain",
			rec:  &core.FeatureRecord{From: "a@example.com", ReplyTo: "b@EXAMPLE.com"},
			op:   ReplyToDomainMismatch{},
			want: false,
		},
		{
			name: "reply-to transactional service is exempt",
			rec:  &core.FeatureRecord{From: "news@shop.com", ReplyTo: "bounce@em123.sendgrid.net"},
			op:   ReplyToDomainMismatch{},
			want: false,
		},
		{
			name: "reply-to absent",
			rec:  &core.FeatureRecord{From: "a@example.com"},
			op:   ReplyToDomainMismatch{},
			want: false,
		},
		{
			name: "spf failed",
			rec:  &core.FeatureRecord{Auth: &core.AuthResults{SPFPass: boolPtr(false)}},
			op:   AuthFailed{},
			want: true,
		},
		{
			name: "dkim failed with spf pass",
			rec:  &core.FeatureRecord{Auth: &core.AuthResults{SPFPass: boolPtr(true), DKIMPass: boolPtr(false)}},
			op:   AuthFailed{},
			want: true,
		},
		{
			name: "absent verdicts are not failures",
			rec:  &core.FeatureRecord{Auth: &core.AuthResults{ARCPass: boolPtr(false)}},
			op:   AuthFailed{},
			want: false,
		},
		{
			name: "no auth results",
			rec:  &core.FeatureRecord{},
			op:   AuthFailed{},
			want: false,
		},
		{
			name: "attachment extension with or without dot",
			rec:  &core.FeatureRecord{AttachmentExts: map[string]struct{}{".exe": {}}},
			op:   AttachmentExt("EXE"),
			want: true,
		},
		{
			name: "link host in set",
			rec:  &core.FeatureRecord{Links: []core.Link{{Href: "https://WWW.UPS.com/track?id=1"}}},
			op:   LinkHost("www.ups.com"),
			want: true,
		},
		{
			name: "unparsable href contributes nothing",
			rec:  &core.FeatureRecord{Links: []core.Link{{Href: "http://[::1"}}},
			op:   LinkHost("::1"),
			want: false,
		},
		{
			name: "sender domain from address when domain field empty",
			rec:  &core.FeatureRecord{From: "Receipts@Stripe.com"},
			op:   SenderDomain("stripe.com"),
			want: true,
		},
		{
			name: "visible host differs from href host",
			rec: &core.FeatureRecord{Links: []core.Link{
				{Text: "www.paypal.com", Href: "http://paypal.account-check.io/login"},
			}},
			op:   LinkHostMismatch{},
			want: true,
		},
		{
			name: "visible host matches modulo www",
			rec: &core.FeatureRecord{Links: []core.Link{
				{Text: "www.paypal.com", Href: "https://paypal.com/signin"},
			}},
			op:   LinkHostMismatch{},
			want: false,
		},
		{
			name: "plain link text is not a host",
			rec: &core.FeatureRecord{Links: []core.Link{
				{Text: "Click here", Href: "https://evil.example"},
				{Text: "$49.99", Href: "https://shop.example"},
			}},
			op:   LinkHostMismatch{},
			want: false,
		},
		{
			name: "file and product names are not hosts",
			rec: &core.FeatureRecord{Links: []core.Link{
				{Text: "statement.pdf", Href: "https://files.bank.example/d/1"},
				{Text: "Node.js", Href: "https://nodejs.org/en"},
				{Text: "example.com", Href: "https://other.example"},
			}},
			op:   LinkHostMismatch{},
			want: false,
		},
		{
			name: "absolute url text differs from href host",
			rec: &core.FeatureRecord{Links: []core.Link{
				{Text: "https://bank.example/login", Href: "https://bank-example.attacker.io/login"},
			}},
			op:   LinkHostMismatch{},
			want: true,
		},
		{
			name: "field matches",
			rec:  &core.FeatureRecord{From: "no-reply@github.com"},
			op:   Matches(FieldFrom, `^no-?reply@`),
			want: true,
		},
		{
			name: "field matches unknown field",
			rec:  &core.FeatureRecord{From: "no-reply@github.com"},
			op:   FieldMatches{Field: Field("cc"), Pattern: regexp.MustCompile(".")},
			want: false,
		},
		{
			name: "field matches nil pattern",
			rec:  &core.FeatureRecord{From: "x"},
			op:   FieldMatches{Field: FieldFrom},
			want: false,
		},
		{
			name: "unknown operand variant",
			rec:  &core.FeatureRecord{Body: "anything"},
			op:   unknownOperand{Text(ScopeBody, "anything")},
			want: false,
		},
		{
			name: "nil operand",
			rec:  &core.FeatureRecord{},
			op:   nil,
			want: false,
		},
		{
			name: "nil record",
			rec:  nil,
			op:   Flagged(FlagHasListID),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, eval.Operand(tt.rec, tt.op))
		})
	}
}

func TestReplyToMismatchWithoutAllowList(t *testing.T) {
	rec := &core.FeatureRecord{From: "news@shop.com", ReplyTo: "bounce@sendgrid.net"}

	assert.True(t, NewEvaluator(nil).Operand(rec, ReplyToDomainMismatch{}))
	assert.False(t, NewEvaluator(whitelist.NewChecker([]string{"sendgrid.net"}, nil)).Operand(rec, ReplyToDomainMismatch{}))
}

func TestDomainAndHostHelpers(t *testing.T) {
	assert.Equal(t, "example.com", DomainOf("Someone <Someone@Example.COM>"))
	assert.Equal(t, "", DomainOf("not-an-address"))
	assert.Equal(t, "", DomainOf("trailing@"))

	assert.Equal(t, "shop.example", HostOf("https://Shop.Example:8443/path"))
	assert.Equal(t, "", HostOf("shop.example/path"))
	assert.Equal(t, "", HostOf(""))
}
