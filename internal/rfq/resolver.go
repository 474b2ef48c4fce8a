package rfq

import (
	"fmt"
	"sort"
	"time"
)

// TieBreakPolicy names the rule applied when suppliers quote the same total price.
type TieBreakPolicy string

const (
	// FirstSubmittedWins prefers the earliest submitted quote, then the lowest quote id.
	FirstSubmittedWins TieBreakPolicy = "first_submitted"
	// IterationOrderWins prefers the quote that appears first in RFQ.Quotes.
	IterationOrderWins TieBreakPolicy = "iteration_order"
	// FastestLeadTimeWins prefers the shorter lead time, then FirstSubmittedWins.
	FastestLeadTimeWins TieBreakPolicy = "fastest_lead_time"
)

// DefaultTieBreak is used when no policy is configured.
const DefaultTieBreak = FirstSubmittedWins

// ParseTieBreakPolicy validates a configured policy name. Empty selects the default.
func ParseTieBreakPolicy(name string) (TieBreakPolicy, error) {
	switch p := TieBreakPolicy(name); p {
	case "":
		return DefaultTieBreak, nil
	case FirstSubmittedWins, IterationOrderWins, FastestLeadTimeWins:
		return p, nil
	default:
		return "", fmt.Errorf("rfq: unknown tie-break policy %q", name)
	}
}

// Offer is one supplier's priced response for a line item.
type Offer struct {
	SupplierID   int64
	SupplierName string
	QuoteID      int64
	SubmittedAt  time.Time
	Line         QuoteLine
	position     int
}

// Resolver determines the best-priced offer per line item.
type Resolver struct {
	Policy TieBreakPolicy
}

// NewResolver returns a resolver using the given policy, or the default when empty.
func NewResolver(policy TieBreakPolicy) Resolver {
	if policy == "" {
		policy = DefaultTieBreak
	}
	return Resolver{Policy: policy}
}

// Offers lists every active offer for the line, cheapest first, ties ordered by policy.
func (res Resolver) Offers(r *RFQ, lineItemID int64) []Offer {
	var offers []Offer
	for i, q := range r.Quotes {
		if !q.Status.Active() {
			continue
		}
		line, ok := q.line(lineItemID)
		if !ok {
			continue
		}
		offers = append(offers, Offer{
			SupplierID:   q.SupplierID,
			SupplierName: q.Supplier.Name,
			QuoteID:      q.ID,
			SubmittedAt:  q.SubmittedAt,
			Line:         line,
			position:     i,
		})
	}
	sort.SliceStable(offers, func(i, j int) bool {
		if c := offers[i].Line.TotalPrice.Cmp(offers[j].Line.TotalPrice); c != 0 {
			return c < 0
		}
		return res.before(offers[i], offers[j])
	})
	return offers
}

// FindCheapest returns the minimum total price offer for the line.
func (res Resolver) FindCheapest(r *RFQ, lineItemID int64) (Offer, bool) {
	offers := res.Offers(r, lineItemID)
	if len(offers) == 0 {
		return Offer{}, false
	}
	return offers[0], true
}

func (res Resolver) before(a, b Offer) bool {
	switch res.Policy {
	case IterationOrderWins:
		return a.position < b.position
	case FastestLeadTimeWins:
		if a.Line.LeadTimeDays != b.Line.LeadTimeDays {
			return a.Line.LeadTimeDays < b.Line.LeadTimeDays
		}
	}
	if !a.SubmittedAt.Equal(b.SubmittedAt) {
		return a.SubmittedAt.Before(b.SubmittedAt)
	}
	return a.QuoteID < b.QuoteID
}

// FindCheapest resolves the cheapest offer using the default tie-break policy.
func FindCheapest(r *RFQ, lineItemID int64) (Offer, bool) {
	return NewResolver(DefaultTieBreak).FindCheapest(r, lineItemID)
}
