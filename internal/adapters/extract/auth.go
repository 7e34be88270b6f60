package extract

import (
	"strings"

	"github.com/emersion/go-msgauth/authres"

	"github.com/mikey/mail-triage/internal/core"
)

// ParseAuthResults reads SPF, DKIM and ARC verdicts from an
// Authentication-Results header value. It returns nil when no verdict is
// present or the header cannot be parsed.
func ParseAuthResults(header string) *core.AuthResults {
	if strings.TrimSpace(header) == "" {
		return nil
	}

	_, results, err := authres.Parse(strings.ToLower(header))
	if err != nil {
		return nil
	}

	auth := &core.AuthResults{}
	for _, result := range results {
		switch r := result.(type) {
		case *authres.SPFResult:
			auth.SPFPass = merge(auth.SPFPass, r.Value)
		case *authres.DKIMResult:
			auth.DKIMPass = merge(auth.DKIMPass, r.Value)
		case *authres.GenericResult:
			if r.Method == "arc" {
				auth.ARCPass = merge(auth.ARCPass, r.Value)
			}
		}
	}
	if auth.SPFPass == nil && auth.DKIMPass == nil && auth.ARCPass == nil {
		return nil
	}
	return auth
}

// merge folds one result into a verdict. Any pass wins, so a message with
// several DKIM signatures passes when one of them verifies.
func merge(current *bool, value authres.ResultValue) *bool {
	pass := value == authres.ResultPass
	if current != nil && *current {
		return current
	}
	return &pass
}
