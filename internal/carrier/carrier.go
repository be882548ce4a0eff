// Package carrier maps Chilean mobile numbers to email-to-SMS gateway
// addresses.
//
// Carrier detection from a number prefix is a heuristic: Chilean mobile
// prefixes overlap between carriers (several claim the leading 9), so the
// table below is ordered and the first match wins. The result is a valid
// gateway, not necessarily the subscriber's actual carrier. That ambiguity is
// inherent to email-to-SMS gateways and is not resolvable from the number
// alone.
package carrier

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Tjuaco/Molaris-sub001/internal/phone"
)

// ErrNoCarrierMatch is returned when no gateway claims the number's prefix.
// It marks the email-to-SMS path as unavailable for that contact; it is a
// legitimate terminal outcome, not a retryable fault.
var ErrNoCarrierMatch = errors.New("no carrier gateway for number prefix")

// Gateway is a resolved email-to-SMS destination.
type Gateway struct {
	Carrier string
	Domain  string
	number  string
}

// Address returns the gateway email address (<national>@<domain>).
func (g Gateway) Address() string {
	return g.number + "@" + g.Domain
}

type tableEntry struct {
	carrier  string
	domain   string
	prefixes []string
}

// Ordered as in the clinic's deployment; overlapping prefixes are intentional
// and resolve to the earliest entry.
var gatewayTable = []tableEntry{
	{carrier: "movistar", domain: "movistar.cl", prefixes: []string{"9", "8"}},
	{carrier: "entel", domain: "entelpcs.com", prefixes: []string{"9", "7"}},
	{carrier: "claro", domain: "clarochile.cl", prefixes: []string{"9"}},
	{carrier: "wom", domain: "wom.cl", prefixes: []string{"9"}},
}

// Resolve picks an email-to-SMS gateway for the supplied number by matching
// the first national digits against the gateway table.
func Resolve(p phone.NormalizedPhone) (Gateway, error) {
	if p.IsZero() {
		return Gateway{}, fmt.Errorf("%w: zero phone", ErrNoCarrierMatch)
	}

	national := p.National()
	for _, entry := range gatewayTable {
		for _, prefix := range entry.prefixes {
			if strings.HasPrefix(national, prefix) {
				return Gateway{
					Carrier: entry.carrier,
					Domain:  entry.domain,
					number:  national,
				}, nil
			}
		}
	}

	return Gateway{}, fmt.Errorf("%w: %s", ErrNoCarrierMatch, p.E164())
}
