package offers

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/amberfork/backend-resto/internal/cart"
)

// Querier captures the database methods required by the enforcer.
type Querier interface {
	ListActiveOffers(ctx context.Context) ([]Offer, error)
}

// Enforcer keeps derived free cart lines consistent with the offer catalog.
// It is invoked after every cart mutation and before totals are computed.
type Enforcer struct {
	Q Querier
}

// Reconcile loads the active offer catalog and runs a reconciliation pass.
// The caller recomputes the paid discountable subtotal and re-invokes until
// no further mutation occurs; a pass with unchanged inputs is a no-op.
func (e *Enforcer) Reconcile(ctx context.Context, lines []cart.LineItem, paidDiscountable decimal.Decimal) ([]cart.LineItem, bool, error) {
	if e == nil || e.Q == nil {
		return nil, false, errors.New("offer enforcer not configured")
	}
	catalog, err := e.Q.ListActiveOffers(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("list active offers: %w", err)
	}
	out, changed := ReconcileLines(lines, catalog, paidDiscountable)
	return out, changed, nil
}

// ValidateClaim checks whether one more free unit of the product may be
// claimed under the offer, given the current lines. Bogof lines are granted
// automatically and cannot be claimed.
func (e *Enforcer) ValidateClaim(ctx context.Context, lines []cart.LineItem, offerID, productID uuid.UUID, paidDiscountable decimal.Decimal) error {
	if e == nil || e.Q == nil {
		return errors.New("offer enforcer not configured")
	}
	catalog, err := e.Q.ListActiveOffers(ctx)
	if err != nil {
		return fmt.Errorf("list active offers: %w", err)
	}
	for _, offer := range catalog {
		if offer.ID != offerID {
			continue
		}
		return validateClaim(offer, lines, productID, paidDiscountable)
	}
	return ErrOfferNotFound
}

func validateClaim(offer Offer, lines []cart.LineItem, productID uuid.UUID, paidDiscountable decimal.Decimal) error {
	switch offer.Variant {
	case FreeOnSpend:
		if !containsID(offer.EligibleProduct, productID) {
			return ErrNotEligible
		}
		if paidDiscountable.LessThan(offer.MinSpend) {
			return ErrConditionNotMet
		}
		if offer.MaxQuantity > 0 && freeQty(lines, offer.ID) >= offer.MaxQuantity {
			return ErrMaxClaimed
		}
		return nil
	case BuyXGetFree:
		if !containsID(offer.TriggerProducts, productID) {
			return ErrNotEligible
		}
		if offer.CheapestFree {
			cheapest, ok := CheapestTrigger(offer, lines)
			if !ok || cheapest != productID {
				return ErrNotEligible
			}
		}
		if allowedFree(offer, lines) <= freeCount(lines, offer.ID) {
			return ErrMaxClaimed
		}
		return nil
	case Bogof:
		return ErrNotEligible
	default:
		return ErrOfferNotFound
	}
}

// ReconcileLines is the pure reconciliation pass over a working copy of the
// cart. Rules run in order: orphan and threshold checks for every derived
// free line, bogof grants and quantity sync, the buy-x free-line ceiling,
// then the orphan pass again in case removals changed the picture. The
// result is a fixed point for these inputs: running it twice changes
// nothing.
func ReconcileLines(lines []cart.LineItem, catalog []Offer, paidDiscountable decimal.Decimal) ([]cart.LineItem, bool) {
	byID := make(map[uuid.UUID]Offer, len(catalog))
	for _, o := range catalog {
		if o.Active {
			byID[o.ID] = o
		}
	}

	out := make([]cart.LineItem, len(lines))
	copy(out, lines)
	changed := false

	out, c := dropOrphans(out, byID, paidDiscountable)
	changed = changed || c
	out, c = grantBogof(out, catalog)
	changed = changed || c
	out, c = enforceBuyXCeiling(out, byID)
	changed = changed || c
	out, c = dropOrphans(out, byID, paidDiscountable)
	changed = changed || c
	return out, changed
}

// dropOrphans removes free lines whose backing offer or unlocking condition
// is gone, and syncs bogof free-line quantities to their paid line.
func dropOrphans(lines []cart.LineItem, byID map[uuid.UUID]Offer, paidDiscountable decimal.Decimal) ([]cart.LineItem, bool) {
	paid := make(map[uuid.UUID]cart.LineItem, len(lines))
	for _, l := range lines {
		if !l.IsFree {
			paid[l.ID] = l
		}
	}

	changed := false
	fosQty := make(map[uuid.UUID]int)
	out := lines[:0]
	for _, l := range lines {
		if !l.IsFree || l.OfferID == nil {
			out = append(out, l)
			continue
		}
		offer, ok := byID[*l.OfferID]
		if !ok {
			changed = true
			continue
		}
		switch offer.Variant {
		case FreeOnSpend:
			if paidDiscountable.LessThan(offer.MinSpend) {
				changed = true
				continue
			}
			if offer.MaxQuantity > 0 && fosQty[offer.ID]+l.Qty > offer.MaxQuantity {
				changed = true
				continue
			}
			fosQty[offer.ID] += l.Qty
		case Bogof:
			if l.LinkedLineID == nil {
				changed = true
				continue
			}
			paidLine, ok := paid[*l.LinkedLineID]
			if !ok {
				changed = true
				continue
			}
			if l.Qty != paidLine.Qty {
				l.Qty = paidLine.Qty
				changed = true
			}
		}
		out = append(out, l)
	}
	return out, changed
}

// grantBogof appends a quantity-synced free line for every paid line whose
// product sits in an active bogof offer and has no free line yet.
func grantBogof(lines []cart.LineItem, catalog []Offer) ([]cart.LineItem, bool) {
	linked := make(map[uuid.UUID]bool)
	for _, l := range lines {
		if l.IsFree && l.LinkedLineID != nil {
			linked[*l.LinkedLineID] = true
		}
	}

	changed := false
	out := lines
	for _, offer := range catalog {
		if !offer.Active || offer.Variant != Bogof {
			continue
		}
		for _, l := range lines {
			if l.IsFree || linked[l.ID] || !containsID(offer.Products, l.ProductID) {
				continue
			}
			offerID := offer.ID
			linkedID := l.ID
			out = append(out, cart.LineItem{
				ID:           uuid.New(),
				ProductID:    l.ProductID,
				Name:         l.Name,
				Qty:          l.Qty,
				UnitPrice:    decimal.Zero,
				IsFree:       true,
				Discountable: l.Discountable,
				OfferID:      &offerID,
				LinkedLineID: &linkedID,
			})
			linked[l.ID] = true
			changed = true
		}
	}
	return out, changed
}

// enforceBuyXCeiling removes free lines beyond floor(triggerQty/N) per
// buy-x offer. Exactly the excess count is removed; which of the free lines
// go is unspecified (later-positioned lines are dropped first here).
func enforceBuyXCeiling(lines []cart.LineItem, byID map[uuid.UUID]Offer) ([]cart.LineItem, bool) {
	excess := make(map[uuid.UUID]int)
	for _, offer := range byID {
		if offer.Variant != BuyXGetFree {
			continue
		}
		over := freeCount(lines, offer.ID) - allowedFree(offer, lines)
		if over > 0 {
			excess[offer.ID] = over
		}
	}
	if len(excess) == 0 {
		return lines, false
	}
	out := make([]cart.LineItem, 0, len(lines))
	for i := len(lines) - 1; i >= 0; i-- {
		l := lines[i]
		if l.IsFree && l.OfferID != nil && excess[*l.OfferID] > 0 {
			excess[*l.OfferID]--
			continue
		}
		out = append(out, l)
	}
	// restore original order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, true
}

// allowedFree computes how many free units a buy-x offer currently permits.
func allowedFree(offer Offer, lines []cart.LineItem) int {
	if offer.TriggerQuantity <= 0 {
		return 0
	}
	trigger := 0
	for _, l := range lines {
		if l.IsFree {
			continue
		}
		if containsID(offer.TriggerProducts, l.ProductID) {
			trigger += l.Qty
		}
	}
	return trigger / offer.TriggerQuantity
}

func freeCount(lines []cart.LineItem, offerID uuid.UUID) int {
	n := 0
	for _, l := range lines {
		if l.IsFree && l.OfferID != nil && *l.OfferID == offerID {
			n++
		}
	}
	return n
}

func freeQty(lines []cart.LineItem, offerID uuid.UUID) int {
	n := 0
	for _, l := range lines {
		if l.IsFree && l.OfferID != nil && *l.OfferID == offerID {
			n += l.Qty
		}
	}
	return n
}

// CheapestTrigger picks the lowest-priced trigger product present in the
// cart, used when a buy-x offer marks the free unit as cheapest-free.
func CheapestTrigger(offer Offer, lines []cart.LineItem) (uuid.UUID, bool) {
	var (
		best      uuid.UUID
		bestPrice decimal.Decimal
		found     bool
	)
	for _, l := range lines {
		if l.IsFree || !containsID(offer.TriggerProducts, l.ProductID) {
			continue
		}
		if !found || l.UnitPrice.LessThan(bestPrice) {
			best = l.ProductID
			bestPrice = l.UnitPrice
			found = true
		}
	}
	return best, found
}
