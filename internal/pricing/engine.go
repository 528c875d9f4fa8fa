package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/amberfork/backend-resto/internal/promo"
)

// Line describes a priced cart line used for total calculation. UnitPrice is
// the amount actually charged per unit, so free lines carry only their option
// extras here.
type Line struct {
	Qty          int
	UnitPrice    decimal.Decimal
	Discountable bool
}

// Totals aggregates computed order amounts. All values carry two decimal
// places and Total is never negative.
type Totals struct {
	Subtotal             decimal.Decimal `json:"subtotal"`
	DiscountableSubtotal decimal.Decimal `json:"discountableSubtotal"`
	Discount             decimal.Decimal `json:"discount"`
	DeliveryFee          decimal.Decimal `json:"deliveryFee"`
	Tip                  decimal.Decimal `json:"tip"`
	Total                decimal.Decimal `json:"total"`
	Applied              []promo.Applied `json:"appliedPromos"`
	Removed              []promo.Removed `json:"removedPromos,omitempty"`
}

// LineTotal returns the amount a single line contributes to the subtotal.
func (l Line) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Qty)))
}

// Subtotal sums line totals over the given lines.
func Subtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		if l.Qty <= 0 {
			continue
		}
		sum = sum.Add(l.LineTotal())
	}
	return sum.Round(2)
}

// DiscountableSubtotal sums line totals over discountable lines only.
func DiscountableSubtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		if l.Qty <= 0 || !l.Discountable {
			continue
		}
		sum = sum.Add(l.LineTotal())
	}
	return sum.Round(2)
}

// Compute assembles order totals from priced lines, delivery charges and an
// already resolved promo outcome. Each code's discount is already capped by
// the resolver, so the stacked sum is subtracted as-is and only the grand
// total floors at zero.
func Compute(lines []Line, deliveryFee, tip decimal.Decimal, res promo.Resolution) Totals {
	subtotal := Subtotal(lines)
	discountable := DiscountableSubtotal(lines)

	discount := res.TotalDiscount.Round(2)
	if discount.IsNegative() {
		discount = decimal.Zero
	}

	total := subtotal.Add(deliveryFee).Add(tip).Sub(discount).Round(2)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return Totals{
		Subtotal:             subtotal,
		DiscountableSubtotal: discountable,
		Discount:             discount,
		DeliveryFee:          deliveryFee.Round(2),
		Tip:                  tip.Round(2),
		Total:                total,
		Applied:              res.Applied,
		Removed:              res.Removed,
	}
}
