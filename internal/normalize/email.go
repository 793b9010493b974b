package normalize

import (
	"net/mail"
	"strings"

	"github.com/sells-group/contact-resolver/internal/model"
)

// disposableDomains are throwaway-email providers. Addresses on these
// domains are kept but flagged so downstream consumers can skip them.
var disposableDomains = map[string]struct{}{
	"mailinator.com":    {},
	"yopmail.com":       {},
	"tempmail.com":      {},
	"temp-mail.org":     {},
	"guerrillamail.com": {},
	"10minutemail.com":  {},
	"trashmail.com":     {},
}

// junkDomains are placeholder domains that appear in page templates and
// never belong to a real business.
var junkDomains = map[string]struct{}{
	"example.com": {},
	"domain.com":  {},
	"email.com":   {},
}

// Email validates and normalizes an address. Invalid addresses are
// returned with Valid=false rather than dropped, so callers can decide
// what to surface.
func Email(raw string) model.EmailAddress {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	out := model.EmailAddress{Address: cleaned}
	if cleaned == "" {
		return out
	}

	addr, err := mail.ParseAddress(cleaned)
	if err != nil {
		return out
	}

	at := strings.LastIndex(addr.Address, "@")
	if at < 1 || at == len(addr.Address)-1 {
		return out
	}
	domain := addr.Address[at+1:]
	if !strings.Contains(domain, ".") {
		return out
	}

	out.Address = addr.Address
	out.Domain = domain
	out.Valid = true
	if _, ok := disposableDomains[domain]; ok {
		out.IsDisposable = true
	}
	return out
}

// IsJunkEmailDomain reports whether the address sits on a placeholder
// domain and should never be attached to a record.
func IsJunkEmailDomain(address string) bool {
	at := strings.LastIndex(address, "@")
	if at < 0 {
		return false
	}
	_, ok := junkDomains[strings.ToLower(address[at+1:])]
	return ok
}
