package whitelist

import (
	"strings"

	"go.uber.org/zap"
)

// TransactionalDomains are bulk/transactional sending services that commonly
// set a Reply-To outside the sender's own domain
var TransactionalDomains = []string{
	"amazonses.com",
	"sendgrid.net",
	"sendgrid.com",
	"mailgun.org",
	"mailgun.net",
	"mandrillapp.com",
	"mcsv.net",
	"mcdlv.net",
	"rsgsv.net",
	"mailchimp.com",
	"sparkpostmail.com",
	"postmarkapp.com",
	"mtasv.net",
	"exacttarget.com",
	"hubspotemail.net",
	"sendinblue.com",
	"brevo.com",
	"klaviyomail.com",
	"customeriomail.com",
	"intercom-mail.com",
	"zendesk.com",
	"freshdesk.com",
	"salesforce.com",
}

// Checker matches domains against an allow-list. A listed domain also
// covers its subdomains.
type Checker struct {
	domains []string
	logger  *zap.Logger
}

// NewChecker creates a new whitelist checker. logger may be nil.
func NewChecker(domains []string, logger *zap.Logger) *Checker {
	// Normalize domains (lowercase)
	normalizedDomains := make([]string, 0, len(domains))
	for _, domain := range domains {
		domain = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), "@")
		if domain != "" {
			normalizedDomains = append(normalizedDomains, domain)
		}
	}

	if len(normalizedDomains) > 0 && logger != nil {
		logger.Debug("Initialized whitelist checker", zap.Int("domains", len(normalizedDomains)))
	}

	return &Checker{
		domains: normalizedDomains,
		logger:  logger,
	}
}

// NewTransactionalChecker returns a checker over TransactionalDomains plus extra
func NewTransactionalChecker(extra []string, logger *zap.Logger) *Checker {
	domains := make([]string, 0, len(TransactionalDomains)+len(extra))
	domains = append(domains, TransactionalDomains...)
	domains = append(domains, extra...)
	return NewChecker(domains, logger)
}

// Contains reports whether domain or one of its parents is listed
func (c *Checker) Contains(domain string) bool {
	if c == nil || len(c.domains) == 0 {
		return false
	}
	domain = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
	if domain == "" {
		return false
	}

	for _, listed := range c.domains {
		if domain == listed || strings.HasSuffix(domain, "."+listed) {
			if c.logger != nil {
				c.logger.Debug("Domain is whitelisted", zap.String("domain", domain))
			}
			return true
		}
	}

	return false
}

// IsWhitelisted checks if the domain of an email address is listed
func (c *Checker) IsWhitelisted(from string) bool {
	// Extract domain from email address
	at := strings.LastIndex(from, "@")
	if at < 0 || at == len(from)-1 {
		return false
	}
	return c.Contains(strings.TrimRight(from[at+1:], ">"))
}
