package rfq

import "time"

// Change records one operator selection in the order it was issued.
type Change struct {
	Seq                int       `json:"seq"`
	LineItemID         int64     `json:"line_item_id"`
	SupplierID         int64     `json:"supplier_id"`
	QuoteID            int64     `json:"quote_id"`
	PreviousSupplierID *int64    `json:"previous_supplier_id,omitempty"`
	ActorID            int64     `json:"actor_id,omitempty"`
	At                 time.Time `json:"at"`
}

// Allocation is the working line-item to supplier mapping for one RFQ.
// It is owned by a single caller and is not safe for concurrent mutation.
type Allocation struct {
	rfq        *RFQ
	resolver   Resolver
	emitter    Emitter
	selections map[int64]Selection
	changes    []Change
	now        func() time.Time
}

// NewAllocation prepares an empty allocation. A nil emitter discards events.
func NewAllocation(r *RFQ, resolver Resolver, emitter Emitter) *Allocation {
	if emitter == nil {
		emitter = discardEmitter{}
	}
	return &Allocation{
		rfq:        r,
		resolver:   resolver,
		emitter:    emitter,
		selections: make(map[int64]Selection),
		now:        time.Now,
	}
}

// RFQ returns the aggregate the allocation was built for.
func (a *Allocation) RFQ() *RFQ {
	return a.rfq
}

// Seed replaces every selection with the best-price recommendation.
// Lines without any responding quote stay unassigned.
func (a *Allocation) Seed() []Selection {
	a.selections = make(map[int64]Selection, len(a.rfq.LineItems))
	a.changes = nil
	for _, item := range a.rfq.LineItems {
		offer, ok := a.resolver.FindCheapest(a.rfq, item.ID)
		if !ok {
			continue
		}
		a.selections[item.ID] = Selection{LineItemID: item.ID, SupplierID: offer.SupplierID, QuoteID: offer.QuoteID}
	}
	return a.Selections()
}

// Select overrides the selection for a line on behalf of an anonymous operator.
func (a *Allocation) Select(lineItemID, supplierID, quoteID int64) (Selection, error) {
	return a.SelectAs(0, lineItemID, supplierID, quoteID)
}

// SelectAs overrides the selection for a line. Invalid combinations return a
// *ValidationError and leave the previous selection untouched. A successful
// call emits selection_changed; emit failures never surface here.
func (a *Allocation) SelectAs(actorID, lineItemID, supplierID, quoteID int64) (Selection, error) {
	if err := a.validate(lineItemID, supplierID, quoteID); err != nil {
		return Selection{}, err
	}
	sel := Selection{LineItemID: lineItemID, SupplierID: supplierID, QuoteID: quoteID}
	change := Change{
		Seq:        len(a.changes) + 1,
		LineItemID: lineItemID,
		SupplierID: supplierID,
		QuoteID:    quoteID,
		ActorID:    actorID,
		At:         a.now().UTC(),
	}
	if prev, ok := a.selections[lineItemID]; ok {
		prevSupplier := prev.SupplierID
		change.PreviousSupplierID = &prevSupplier
	}
	a.selections[lineItemID] = sel
	a.changes = append(a.changes, change)

	evt := NewEvent(EventSelectionChanged, a.rfq.ID, change.At)
	evt.ActorID = actorID
	evt.Payload = &SelectionChange{
		Seq:                change.Seq,
		RFQID:              a.rfq.ID,
		LineItemID:         lineItemID,
		SupplierID:         supplierID,
		QuoteID:            quoteID,
		PreviousSupplierID: change.PreviousSupplierID,
		ActorID:            actorID,
	}
	a.emitter.Emit(evt)
	return sel, nil
}

// Selection returns the current selection for the line.
func (a *Allocation) Selection(lineItemID int64) (Selection, bool) {
	sel, ok := a.selections[lineItemID]
	return sel, ok
}

// Selections returns the current selections in material request line order.
func (a *Allocation) Selections() []Selection {
	out := make([]Selection, 0, len(a.selections))
	for _, item := range a.rfq.LineItems {
		if sel, ok := a.selections[item.ID]; ok {
			out = append(out, sel)
		}
	}
	return out
}

// Changes returns the operator decisions in issue order.
func (a *Allocation) Changes() []Change {
	return append([]Change(nil), a.changes...)
}

// Restore rebuilds working state saved earlier. Every selection is validated
// against the current RFQ; the first invalid one aborts the restore and the
// allocation is left unchanged.
func (a *Allocation) Restore(selections []Selection, changes []Change) error {
	restored := make(map[int64]Selection, len(selections))
	for _, sel := range selections {
		if err := a.validate(sel.LineItemID, sel.SupplierID, sel.QuoteID); err != nil {
			return err
		}
		restored[sel.LineItemID] = sel
	}
	a.selections = restored
	a.changes = append([]Change(nil), changes...)
	return nil
}

func (a *Allocation) validate(lineItemID, supplierID, quoteID int64) error {
	reject := func(reason string) error {
		return &ValidationError{LineItemID: lineItemID, SupplierID: supplierID, QuoteID: quoteID, Reason: reason}
	}
	if _, ok := a.rfq.LineItem(lineItemID); !ok {
		return reject("line item is not part of this rfq")
	}
	q, ok := QuoteByID(a.rfq, quoteID)
	if !ok {
		return reject("quote not found on this rfq")
	}
	if q.RFQID != a.rfq.ID {
		return reject("quote belongs to another rfq")
	}
	if q.SupplierID != supplierID {
		return reject("quote was not submitted by this supplier")
	}
	if _, ok := q.line(lineItemID); !ok {
		return reject("supplier did not quote this line")
	}
	return nil
}
