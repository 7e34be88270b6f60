package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mikey/mail-triage/internal/core"
)

// Taxonomy labels
const (
	LabelNeedsReply    = "NeedsReply"
	LabelSubscriptions = "Subscriptions"
	LabelReceipts      = "Receipts"
	LabelBilling       = "Billing"
	LabelOrders        = "Orders"
	LabelTravel        = "Travel"
	LabelCalendar      = "Calendar"
	LabelPromotions    = "Promotions"
	LabelNewsletters   = "Newsletters"
	LabelUpdates       = "Updates"
	LabelPolitical     = "Political"
	LabelPhishing      = "Phishing"
	LabelMentions      = "Mentions"
)

var (
	riskyExts = []string{
		".exe", ".scr", ".js", ".vbs", ".bat", ".cmd", ".com", ".pif", ".jar",
		".iso", ".img", ".lnk", ".hta", ".msi", ".ps1", ".wsf",
	}

	amountPattern = `[$€£]\s?\d[\d,]*[.,]\d{2}`

	carrierHosts = []string{
		"ups.com", "www.ups.com", "fedex.com", "www.fedex.com", "usps.com", "tools.usps.com",
		"dhl.com", "www.dhl.com", "amazon.com", "www.amazon.com", "track.aftership.com",
	}
)

// DefaultRuleSets returns the built-in taxonomy in registry order
func DefaultRuleSets() []RuleSet {
	return []RuleSet{
		phishingRuleSet(),
		needsReplyRuleSet(),
		calendarRuleSet(),
		travelRuleSet(),
		ordersRuleSet(),
		receiptsRuleSet(),
		billingRuleSet(),
		subscriptionsRuleSet(),
		updatesRuleSet(),
		newslettersRuleSet(),
		promotionsRuleSet(),
		politicalRuleSet(),
		mentionsRuleSet(),
	}
}

func phishingRuleSet() RuleSet {
	return RuleSet{
		Label:       LabelPhishing,
		Threshold:   0.6,
		MoveEnabled: true,
		Rules: []RuleItem{
			{
				ID:       "phishing.reply_to_mismatch",
				Weight:   0.3,
				Operands: []Operand{ReplyToDomainMismatch{}},
				Detail: func(rec *core.FeatureRecord) string {
					return fmt.Sprintf("reply-to domain %q differs from sender domain %q",
						DomainOf(rec.ReplyTo), senderDomain(rec))
				},
			},
			{
				ID:       "phishing.auth_failed",
				Weight:   0.3,
				Operands: []Operand{AuthFailed{}},
				Detail:   describeAuth,
			},
			{
				ID:       "phishing.risky_attachment",
				Weight:   0.3,
				Operands: []Operand{AttachmentExt(riskyExts...)},
				Detail: func(rec *core.FeatureRecord) string {
					return "attachments: " + strings.Join(sortedExts(rec), ", ")
				},
			},
			{
				ID:       "phishing.link_host_mismatch",
				Weight:   0.35,
				Operands: []Operand{LinkHostMismatch{}},
				Detail:   describeMismatchedLink,
			},
			{
				ID:     "phishing.credential_lure",
				Weight: 0.25,
				Operands: []Operand{Text(ScopeBoth,
					"verify your account", "confirm your password", "account suspended",
					"account has been suspended", "unusual sign-in activity", "update your payment information",
					"your account will be closed", "login immediately", "confirm your identity",
				)},
			},
			{
				ID:       "phishing.ip_link",
				Weight:   0.2,
				Operands: []Operand{Matches(FieldBody, `https?://\d{1,3}(\.\d{1,3}){3}`)},
			},
		},
	}
}

func needsReplyRuleSet() RuleSet {
	return RuleSet{
		Label:     LabelNeedsReply,
		Threshold: 0.6,
		Rules: []RuleItem{
			{
				ID:       "needs_reply.thread",
				Weight:   0.3,
				Operands: []Operand{Flagged(FlagIsReplyChain), Flagged(FlagHasInReplyTo)},
				Any:      true,
			},
			{
				ID:     "needs_reply.question",
				Weight: 0.35,
				Operands: []Operand{Text(ScopeBody,
					"can you", "could you", "would you", "let me know", "please reply",
					"get back to me", "what do you think", "are you available", "thoughts?",
				)},
			},
			{
				ID:     "needs_reply.deadline",
				Weight: 0.3,
				Operands: []Operand{Text(ScopeBoth,
					"reply by", "respond by", "awaiting your response", "waiting for your reply",
					"need your input", "rsvp",
				)},
			},
		},
	}
}

func calendarRuleSet() RuleSet {
	return RuleSet{
		Label:     LabelCalendar,
		Threshold: 0.6,
		Rules: []RuleItem{
			{
				ID:       "calendar.ics_attachment",
				Weight:   0.5,
				Operands: []Operand{AttachmentExt(".ics", ".vcs")},
			},
			{
				ID:     "calendar.invite_language",
				Weight: 0.3,
				Operands: []Operand{Text(ScopeBoth,
					"invitation:", "has invited you", "meeting request", "updated invitation",
					"accept", "decline", "tentative",
				)},
			},
			{
				ID:       "calendar.content_class",
				Weight:   0.3,
				Operands: []Operand{Header("Content-Class", "urn:content-classes:calendarmessage")},
			},
		},
	}
}

func travelRuleSet() RuleSet {
	return RuleSet{
		Label:       LabelTravel,
		Threshold:   0.6,
		MoveEnabled: true,
		Rules: []RuleItem{
			{
				ID:     "travel.booking_language",
				Weight: 0.4,
				Operands: []Operand{Text(ScopeBoth,
					"itinerary", "boarding pass", "booking confirmation", "reservation",
					"check-in", "flight", "e-ticket",
				)},
			},
			{
				ID:     "travel.sender",
				Weight: 0.35,
				Operands: []Operand{SenderDomain(
					"airbnb.com", "booking.com", "expedia.com", "united.com", "delta.com", "aa.com",
					"southwest.com", "marriott.com", "hilton.com", "hotels.com", "kayak.com", "trainline.com",
				)},
				Detail: describeSender,
			},
			{
				ID:       "travel.record_locator",
				Weight:   0.2,
				Operands: []Operand{TextPattern(ScopeBoth, `\b(pnr|record locator|confirmation (code|number))\b`)},
			},
		},
	}
}

func ordersRuleSet() RuleSet {
	return RuleSet{
		Label:       LabelOrders,
		Threshold:   0.6,
		MoveEnabled: true,
		Rules: []RuleItem{
			{
				ID:     "orders.order_language",
				Weight: 0.45,
				Operands: []Operand{Text(ScopeBoth,
					"your order", "order confirmation", "has shipped", "out for delivery",
					"tracking number", "track your package", "estimated delivery",
				)},
			},
			{
				ID:       "orders.carrier_link",
				Weight:   0.3,
				Operands: []Operand{LinkHost(carrierHosts...)},
			},
			{
				ID:       "orders.order_number",
				Weight:   0.25,
				Operands: []Operand{TextPattern(ScopeBoth, `order\s*(#|no\.?|number)\s*:?\s*[a-z0-9-]{4,}`)},
			},
		},
	}
}

func receiptsRuleSet() RuleSet {
	return RuleSet{
		Label:       LabelReceipts,
		Threshold:   0.6,
		MoveEnabled: true,
		Rules: []RuleItem{
			{
				ID:     "receipts.receipt_language",
				Weight: 0.45,
				Operands: []Operand{Text(ScopeBoth,
					"receipt", "payment received", "thank you for your purchase", "order total",
					"amount paid", "transaction id", "paid with",
				)},
			},
			{
				ID:       "receipts.pdf_attachment",
				Weight:   0.15,
				Operands: []Operand{AttachmentExt(".pdf")},
			},
			{
				ID:       "receipts.amount",
				Weight:   0.25,
				Operands: []Operand{Matches(FieldBody, amountPattern)},
			},
			{
				ID:     "receipts.payment_processor",
				Weight: 0.2,
				Operands: []Operand{SenderDomain(
					"paypal.com", "stripe.com", "square.com", "squareup.com", "venmo.com", "wise.com",
				)},
				Detail: describeSender,
			},
		},
	}
}

func billingRuleSet() RuleSet {
	return RuleSet{
		Label:       LabelBilling,
		Threshold:   0.6,
		MoveEnabled: true,
		Rules: []RuleItem{
			{
				ID:     "billing.invoice_language",
				Weight: 0.45,
				Operands: []Operand{Text(ScopeBoth,
					"invoice", "amount due", "balance due", "statement is ready", "payment due",
					"past due", "bill is ready", "autopay",
				)},
			},
			{
				ID:       "billing.due_date",
				Weight:   0.25,
				Operands: []Operand{TextPattern(ScopeBoth, `\bdue (on|by)\b`)},
			},
			{
				ID:       "billing.pdf_attachment",
				Weight:   0.15,
				Operands: []Operand{AttachmentExt(".pdf")},
			},
			{
				ID:       "billing.amount",
				Weight:   0.15,
				Operands: []Operand{Matches(FieldBody, amountPattern)},
			},
		},
	}
}

func subscriptionsRuleSet() RuleSet {
	return RuleSet{
		Label:       LabelSubscriptions,
		Threshold:   0.55,
		MoveEnabled: true,
		Rules: []RuleItem{
			{
				ID:     "subscriptions.subscription_language",
				Weight: 0.4,
				Operands: []Operand{Text(ScopeBoth,
					"your subscription", "membership", "renews on", "auto-renew", "premium",
					"subscription plan", "trial ends",
				)},
			},
			{
				ID:       "subscriptions.billing_cycle",
				Weight:   0.25,
				Operands: []Operand{TextPattern(ScopeBoth, `\b(monthly|annual|yearly) (plan|subscription)\b`)},
			},
			{
				ID:     "subscriptions.sender",
				Weight: 0.3,
				Operands: []Operand{SenderDomain(
					"netflix.com", "spotify.com", "youtube.com", "patreon.com", "substack.com",
					"medium.com", "nytimes.com", "hulu.com", "disneyplus.com", "audible.com",
					"dropbox.com", "adobe.com",
				)},
				Detail: describeSender,
			},
		},
	}
}

func updatesRuleSet() RuleSet {
	return RuleSet{
		Label:       LabelUpdates,
		Threshold:   0.5,
		MoveEnabled: true,
		Rules: []RuleItem{
			{
				ID:       "updates.automated_sender",
				Weight:   0.3,
				Operands: []Operand{Matches(FieldFrom, `^(no-?reply|do-?not-?reply|notifications?|alerts?|updates?)@`)},
			},
			{
				ID:       "updates.auto_submitted",
				Weight:   0.3,
				Operands: []Operand{Header("Auto-Submitted", "auto-generated", "auto-replied")},
			},
			{
				ID:     "updates.notification_language",
				Weight: 0.3,
				Operands: []Operand{Text(ScopeBoth,
					"notification", "security alert", "new sign-in", "new login", "we've updated",
					"policy update", "terms of service", "verification code",
				)},
			},
		},
	}
}

func newslettersRuleSet() RuleSet {
	return RuleSet{
		Label:       LabelNewsletters,
		Threshold:   0.6,
		MoveEnabled: true,
		Rules: []RuleItem{
			{
				ID:       "newsletters.list_headers",
				Weight:   0.4,
				Operands: []Operand{Flagged(FlagHasListID), Flagged(FlagHasUnsubscribe)},
			},
			{
				ID:     "newsletters.digest_language",
				Weight: 0.35,
				Operands: []Operand{Text(ScopeBoth,
					"weekly roundup", "newsletter", "digest", "this week in", "issue #", "edition",
				)},
			},
			{
				ID:     "newsletters.unsubscribe_footer",
				Weight: 0.15,
				Operands: []Operand{Text(ScopeBody,
					"unsubscribe", "manage your subscription", "view in browser", "email preferences",
				)},
			},
		},
	}
}

func promotionsRuleSet() RuleSet {
	return RuleSet{
		Label:       LabelPromotions,
		Threshold:   0.5,
		MoveEnabled: true,
		Rules: []RuleItem{
			{
				ID:     "promotions.offer_language",
				Weight: 0.4,
				Operands: []Operand{Text(ScopeBoth,
					"% off", "sale", "discount", "coupon", "promo code", "limited time", "shop now",
					"free shipping", "exclusive offer", "special offer", "save up to",
				)},
			},
			{
				ID:       "promotions.bulk_unsubscribe",
				Weight:   0.2,
				Operands: []Operand{Flagged(FlagHasUnsubscribe), Text(ScopeBody, "unsubscribe")},
			},
			{
				ID:       "promotions.bulk_precedence",
				Weight:   0.12,
				Operands: []Operand{Header("Precedence", "bulk")},
			},
			{
				ID:     "promotions.urgency",
				Weight: 0.2,
				Operands: []Operand{Text(ScopeSubject,
					"last chance", "ends tonight", "today only", "hurry", "final hours",
				)},
			},
		},
	}
}

func politicalRuleSet() RuleSet {
	return RuleSet{
		Label:       LabelPolitical,
		Threshold:   0.6,
		MoveEnabled: true,
		Rules: []RuleItem{
			{
				ID:     "political.solicitation_language",
				Weight: 0.4,
				Operands: []Operand{Text(ScopeBoth,
					"donate", "chip in", "contribute", "campaign", "election", "ballot", "your vote",
					"matching gift", "deadline to give",
				)},
			},
			{
				ID:     "political.donation_platform",
				Weight: 0.4,
				Operands: []Operand{LinkHost(
					"actblue.com", "secure.actblue.com", "winred.com", "secure.winred.com",
					"ngpvan.com", "secure.ngpvan.com",
				)},
			},
			{
				ID:       "political.disclaimer",
				Weight:   0.3,
				Operands: []Operand{Text(ScopeBody, "paid for by")},
			},
		},
	}
}

func mentionsRuleSet() RuleSet {
	return RuleSet{
		Label:     LabelMentions,
		Threshold: 0.6,
		Rules: []RuleItem{
			{
				ID:       "mentions.mailbox",
				Weight:   0.6,
				Operands: []Operand{Flagged(FlagMentionsMailbox)},
			},
			{
				ID:       "mentions.in_thread",
				Weight:   0.2,
				Operands: []Operand{Flagged(FlagMentionsMailbox), Flagged(FlagIsReplyChain)},
			},
		},
	}
}

func describeSender(rec *core.FeatureRecord) string {
	return "sender domain " + senderDomain(rec)
}

func describeAuth(rec *core.FeatureRecord) string {
	if rec.Auth == nil {
		return ""
	}
	return fmt.Sprintf("spf=%s dkim=%s", verdict(rec.Auth.SPFPass), verdict(rec.Auth.DKIMPass))
}

func verdict(pass *bool) string {
	switch {
	case pass == nil:
		return "none"
	case *pass:
		return "pass"
	default:
		return "fail"
	}
}

func describeMismatchedLink(rec *core.FeatureRecord) string {
	for _, link := range rec.Links {
		shown, actual := visibleHost(link.Text), HostOf(link.Href)
		if shown != "" && actual != "" && strings.TrimPrefix(shown, "www.") != strings.TrimPrefix(actual, "www.") {
			return fmt.Sprintf("link shows %s but points to %s", shown, actual)
		}
	}
	return ""
}

func sortedExts(rec *core.FeatureRecord) []string {
	exts := make([]string, 0, len(rec.AttachmentExts))
	for ext := range rec.AttachmentExts {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
