package cart

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/amberfork/backend-resto/internal/catalog"
)

var (
	// ErrLineNotFound indicates the referenced cart line does not exist.
	ErrLineNotFound = errors.New("cart line not found")
	// ErrQuantityLimit indicates the per-line quantity cap would be exceeded.
	ErrQuantityLimit = errors.New("quantity limit exceeded")
	// ErrFreeLineImmutable indicates a derived free line cannot be adjusted by hand.
	ErrFreeLineImmutable = errors.New("free items are managed automatically")
)

// LineItem is one cart entry. Derived free lines carry an OfferID, and BOGOF
// free lines additionally reference the paid line that unlocked them; the
// free line's quantity always mirrors the linked paid line's.
type LineItem struct {
	ID           uuid.UUID           `json:"id"`
	ProductID    uuid.UUID           `json:"productId"`
	Name         string              `json:"name"`
	Selections   []catalog.Selection `json:"selections,omitempty"`
	Qty          int                 `json:"qty"`
	UnitPrice    decimal.Decimal     `json:"unitPrice"`
	IsFree       bool                `json:"isFree"`
	Discountable bool                `json:"discountable"`
	OfferID      *uuid.UUID          `json:"offerId,omitempty"`
	LinkedLineID *uuid.UUID          `json:"linkedLineId,omitempty"`
}

// LineTotal returns unit price times quantity. Free lines only ever carry
// their option extras in UnitPrice, so this already excludes the base charge.
func (l LineItem) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Qty)))
}

// Cart is the session-scoped ordered list of line items plus the promo and
// delivery state previews run against. Line order is display order only.
type Cart struct {
	ID             uuid.UUID       `json:"id"`
	TableRef       string          `json:"tableRef,omitempty"`
	DeliveryMethod string          `json:"deliveryMethod"`
	Postcode       string          `json:"postcode,omitempty"`
	DeliveryFee    decimal.Decimal `json:"deliveryFee"`
	Tip            decimal.Decimal `json:"tip"`
	PromoCodes     []string        `json:"promoCodes"`
	Lines          []LineItem      `json:"lines"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Equivalent reports whether two paid lines can be merged: same product and
// the same option selection set. Free lines never merge.
func Equivalent(a, b LineItem) bool {
	if a.IsFree || b.IsFree {
		return false
	}
	if a.ProductID != b.ProductID {
		return false
	}
	return sameSelections(a.Selections, b.Selections)
}

func sameSelections(a, b []catalog.Selection) bool {
	if len(a) != len(b) {
		return false
	}
	matched := make([]bool, len(b))
	for _, sa := range a {
		found := false
		for i, sb := range b {
			if matched[i] {
				continue
			}
			if sa.GroupID == sb.GroupID && sa.OptionID == sb.OptionID && sa.Quantity == sb.Quantity {
				matched[i] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// AddLine inserts the line, merging into an equivalent paid line when one
// exists. maxQty caps the resulting line quantity.
func (c *Cart) AddLine(line LineItem, maxQty int) error {
	if line.Qty <= 0 {
		return fmt.Errorf("quantity must be positive: %w", ErrQuantityLimit)
	}
	if !line.IsFree {
		for i := range c.Lines {
			if Equivalent(c.Lines[i], line) {
				next := c.Lines[i].Qty + line.Qty
				if maxQty > 0 && next > maxQty {
					return fmt.Errorf("line quantity capped at %d: %w", maxQty, ErrQuantityLimit)
				}
				c.Lines[i].Qty = next
				return nil
			}
		}
	}
	if maxQty > 0 && line.Qty > maxQty {
		return fmt.Errorf("line quantity capped at %d: %w", maxQty, ErrQuantityLimit)
	}
	if line.ID == uuid.Nil {
		line.ID = uuid.New()
	}
	c.Lines = append(c.Lines, line)
	return nil
}

// UpdateQty sets the quantity of a paid line. Free lines are reconciled, not
// edited.
func (c *Cart) UpdateQty(lineID uuid.UUID, qty, maxQty int) error {
	if qty <= 0 {
		return fmt.Errorf("quantity must be positive: %w", ErrQuantityLimit)
	}
	if maxQty > 0 && qty > maxQty {
		return fmt.Errorf("line quantity capped at %d: %w", maxQty, ErrQuantityLimit)
	}
	for i := range c.Lines {
		if c.Lines[i].ID == lineID {
			if c.Lines[i].IsFree {
				return ErrFreeLineImmutable
			}
			c.Lines[i].Qty = qty
			return nil
		}
	}
	return ErrLineNotFound
}

// RemoveLine deletes the line with the given id. Reconciliation afterwards
// takes care of any free line that was linked to it.
func (c *Cart) RemoveLine(lineID uuid.UUID) error {
	for i := range c.Lines {
		if c.Lines[i].ID == lineID {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			return nil
		}
	}
	return ErrLineNotFound
}

// Clear drops every line but keeps promo and delivery state.
func (c *Cart) Clear() {
	c.Lines = nil
}

// Subtotal sums all line totals, free lines contributing option extras only.
func Subtotal(lines []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		if l.Qty <= 0 {
			continue
		}
		total = total.Add(l.LineTotal())
	}
	return total.Round(2)
}

// DiscountableSubtotal sums line totals over promo-eligible lines, the
// subtotal promo minimums and percent discounts run against.
func DiscountableSubtotal(lines []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		if l.Qty <= 0 || !l.Discountable {
			continue
		}
		total = total.Add(l.LineTotal())
	}
	return total.Round(2)
}

// PaidDiscountableSubtotal excludes derived free lines entirely; automatic
// offer thresholds are judged against this figure so a granted free item can
// never help unlock itself.
func PaidDiscountableSubtotal(lines []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		if l.Qty <= 0 || !l.Discountable || l.IsFree {
			continue
		}
		total = total.Add(l.LineTotal())
	}
	return total.Round(2)
}
