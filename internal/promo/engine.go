package promo

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/amberfork/backend-resto/internal/customer"
)

var (
	// ErrUnknownCode is returned when the code has no catalog definition.
	ErrUnknownCode = errors.New("promo code not recognised")
	// ErrInactive is returned for codes disabled by admin configuration.
	ErrInactive = errors.New("promo code not active")
	// ErrNotStarted indicates the code's validity window has not opened yet.
	ErrNotStarted = errors.New("promo code not yet valid")
	// ErrExpired indicates the code's validity window has closed.
	ErrExpired = errors.New("promo code expired")
	// ErrMinOrderNotMet indicates the discountable subtotal is below the code's minimum.
	ErrMinOrderNotMet = errors.New("minimum order not met")
	// ErrMethodNotAllowed indicates the delivery method is outside the code's allow-list.
	ErrMethodNotAllowed = errors.New("not valid for this delivery method")
	// ErrUsageLimitReached indicates the global usage quota is exhausted.
	ErrUsageLimitReached = errors.New("promo usage limit reached")
	// ErrFirstOrderOnly indicates the customer has ordered before.
	ErrFirstOrderOnly = errors.New("promo is for first orders only")
	// ErrAlreadyRedeemed indicates the customer has already used a one-time code.
	ErrAlreadyRedeemed = errors.New("promo already used")
	// ErrLoginRequired indicates a tier-restricted code was attempted by a guest.
	ErrLoginRequired = errors.New("sign in to use this promo")
	// ErrTierRequired indicates the customer's loyalty tier is too low.
	ErrTierRequired = errors.New("loyalty tier too low for this promo")
	// ErrAlreadyApplied indicates the code is already in the applied set.
	ErrAlreadyApplied = errors.New("promo code already applied")
	// ErrNoDiscount indicates a valid code that computes to zero on this order.
	ErrNoDiscount = errors.New("promo gives no discount on this order")
)

// Kind enumerates supported discount strategies.
type Kind string

const (
	KindPercent     Kind = "percent"
	KindFixed       Kind = "fixed"
	KindDeliveryFee Kind = "delivery_fee"
)

// Code is a promo code definition plus the usage counters loaded alongside it.
type Code struct {
	Code               string
	Description        string
	Kind               Kind
	Value              decimal.Decimal
	MinOrder           decimal.Decimal
	MaxDiscount        *decimal.Decimal
	Stackable          bool
	Methods            []string
	ValidFrom          *time.Time
	ValidUntil         *time.Time
	UsageLimit         *int32
	UsedCount          int32
	FirstOrderOnly     bool
	OneTimePerCustomer bool
	RequiredTier       customer.Tier
	AutoApply          bool
	Active             bool
}

// Facts carries the contextual inputs a resolution pass validates against.
// CustomerUses is keyed by normalised code and holds the resolved identity's
// prior redemption counts for the candidate set.
type Facts struct {
	Now            time.Time
	DeliveryMethod string
	Identity       customer.Identity
	CustomerUses   map[string]int64
}

// Applied describes one code that survived stacking resolution.
type Applied struct {
	Code        string          `json:"code"`
	Description string          `json:"description"`
	Kind        Kind            `json:"type"`
	Discount    decimal.Decimal `json:"discount"`
}

// Removed describes a code rejected during stacking resolution.
type Removed struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// Resolution is the outcome of resolving a candidate set of codes.
type Resolution struct {
	TotalDiscount decimal.Decimal `json:"totalDiscount"`
	Applied       []Applied       `json:"applied"`
	Removed       []Removed       `json:"removed"`
}

// Normalize canonicalises a code for case-insensitive matching.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks every eligibility rule for the code. The first failing rule
// is returned as a sentinel error; nil means the code is applicable.
func (c Code) Validate(discountable decimal.Decimal, facts Facts) error {
	if !c.Active {
		return ErrInactive
	}
	if c.ValidFrom != nil && facts.Now.Before(*c.ValidFrom) {
		return ErrNotStarted
	}
	if c.ValidUntil != nil && facts.Now.After(*c.ValidUntil) {
		return ErrExpired
	}
	if discountable.LessThan(c.MinOrder) {
		return ErrMinOrderNotMet
	}
	if len(c.Methods) > 0 && facts.DeliveryMethod != "" {
		allowed := false
		for _, m := range c.Methods {
			if strings.EqualFold(m, facts.DeliveryMethod) {
				allowed = true
				break
			}
		}
		if !allowed {
			return ErrMethodNotAllowed
		}
	}
	if c.UsageLimit != nil && *c.UsageLimit >= 0 && c.UsedCount >= *c.UsageLimit {
		return ErrUsageLimitReached
	}
	// First-order and one-time rules can only be checked against a resolved
	// identity. Guests without an email pass at preview; the checkout pass
	// resolves the identity and is authoritative.
	if c.FirstOrderOnly && facts.Identity.Known() && facts.Identity.PriorOrders > 0 {
		return ErrFirstOrderOnly
	}
	if c.OneTimePerCustomer && facts.Identity.Known() && facts.CustomerUses[Normalize(c.Code)] > 0 {
		return ErrAlreadyRedeemed
	}
	if c.RequiredTier > customer.TierNone {
		if facts.Identity.CustomerID == nil {
			return ErrLoginRequired
		}
		if !facts.Identity.Tier.AtLeast(c.RequiredTier) {
			return ErrTierRequired
		}
	}
	return nil
}

// Discount computes the code's discount amount, rounded to two decimal
// places. Unknown kinds compute to zero and are dropped by the resolver.
func (c Code) Discount(discountable, deliveryFee decimal.Decimal) decimal.Decimal {
	switch c.Kind {
	case KindPercent:
		d := discountable.Mul(c.Value).Div(decimal.NewFromInt(100)).Round(2)
		if c.MaxDiscount != nil && d.GreaterThan(*c.MaxDiscount) {
			d = c.MaxDiscount.Round(2)
		}
		return d
	case KindFixed:
		return decimal.Min(c.Value, discountable).Round(2)
	case KindDeliveryFee:
		pct := deliveryFee.Mul(c.Value).Div(decimal.NewFromInt(100))
		return decimal.Min(deliveryFee, pct).Round(2)
	default:
		return decimal.Zero
	}
}

type candidate struct {
	code     Code
	discount decimal.Decimal
	order    int
}

// Resolve applies the stacking rules to the candidate set. Candidate order is
// significant: the stable sort by descending discount keeps earlier
// candidates ahead on ties, so the caller's ordering (manual codes before
// auto-applied ones) decides equal-discount conflicts deterministically.
//
// Unknown and invalid codes are dropped silently; the interactive apply path
// is responsible for surfacing per-code failures.
func Resolve(defs map[string]Code, candidates []string, discountable, deliveryFee decimal.Decimal, facts Facts) Resolution {
	seen := make(map[string]bool, len(candidates))
	var stackable, exclusive []candidate
	order := 0
	for _, raw := range candidates {
		key := Normalize(raw)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		def, ok := defs[key]
		if !ok {
			continue
		}
		if err := def.Validate(discountable, facts); err != nil {
			continue
		}
		discount := def.Discount(discountable, deliveryFee)
		if !discount.IsPositive() {
			continue
		}
		c := candidate{code: def, discount: discount, order: order}
		order++
		if def.Stackable {
			stackable = append(stackable, c)
		} else {
			exclusive = append(exclusive, c)
		}
	}

	res := Resolution{TotalDiscount: decimal.Zero}
	if len(exclusive) > 0 {
		sort.SliceStable(exclusive, func(i, j int) bool {
			return exclusive[i].discount.GreaterThan(exclusive[j].discount)
		})
		winner := exclusive[0]
		res.Applied = append(res.Applied, toApplied(winner))
		res.TotalDiscount = winner.discount
		for _, c := range exclusive[1:] {
			res.Removed = append(res.Removed, Removed{Code: c.code.Code, Reason: "higher discount applied"})
		}
		for _, c := range stackable {
			res.Removed = append(res.Removed, Removed{
				Code:   c.code.Code,
				Reason: fmt.Sprintf("cannot combine with %s", winner.code.Code),
			})
		}
		return res
	}
	for _, c := range stackable {
		res.Applied = append(res.Applied, toApplied(c))
		res.TotalDiscount = res.TotalDiscount.Add(c.discount)
	}
	return res
}

func toApplied(c candidate) Applied {
	return Applied{
		Code:        c.code.Code,
		Description: c.code.Description,
		Kind:        c.code.Kind,
		Discount:    c.discount,
	}
}

// Message maps a validation sentinel onto the user-facing rejection text.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyApplied):
		return "Code already applied"
	case errors.Is(err, ErrUnknownCode):
		return "Invalid promo code"
	case errors.Is(err, ErrInactive), errors.Is(err, ErrNotStarted):
		return "This code is not active"
	case errors.Is(err, ErrExpired):
		return "This code has expired"
	case errors.Is(err, ErrMinOrderNotMet):
		return "Order does not meet the minimum for this code"
	case errors.Is(err, ErrMethodNotAllowed):
		return "This code is not valid for the selected delivery method"
	case errors.Is(err, ErrUsageLimitReached):
		return "This code has reached its usage limit"
	case errors.Is(err, ErrFirstOrderOnly):
		return "This code is only valid on your first order"
	case errors.Is(err, ErrAlreadyRedeemed):
		return "You have already used this code"
	case errors.Is(err, ErrLoginRequired):
		return "Sign in to use this code"
	case errors.Is(err, ErrTierRequired):
		return "Your loyalty tier does not qualify for this code"
	case errors.Is(err, ErrNoDiscount):
		return "This code would not reduce this order"
	default:
		return "Unable to apply this code"
	}
}
