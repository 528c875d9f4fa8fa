package offers

import (
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrOfferNotFound indicates the offer is unknown or inactive.
	ErrOfferNotFound = errors.New("offer not found")
	// ErrConditionNotMet indicates the offer's unlocking condition does not hold.
	ErrConditionNotMet = errors.New("offer condition not met")
	// ErrMaxClaimed indicates the offer's free-item allowance is exhausted.
	ErrMaxClaimed = errors.New("offer limit reached")
	// ErrNotEligible indicates the product is outside the offer's scope.
	ErrNotEligible = errors.New("product not eligible for this offer")
)

// Variant enumerates the automatic offer mechanics.
type Variant string

const (
	// FreeOnSpend grants a free item once the paid discountable subtotal
	// crosses a threshold, capped at MaxQuantity claims.
	FreeOnSpend Variant = "free_on_spend"
	// BuyXGetFree grants one free unit per TriggerQuantity qualifying units.
	BuyXGetFree Variant = "buy_x_get_free"
	// Bogof pairs a free line with the paid line that unlocked it,
	// quantity-synced.
	Bogof Variant = "bogof"
)

// Offer is one automatic offer definition from admin configuration.
type Offer struct {
	ID              uuid.UUID       `json:"id"`
	Name            string          `json:"name"`
	Variant         Variant         `json:"variant"`
	Active          bool            `json:"active"`
	Badge           string          `json:"badge,omitempty"`
	MinSpend        decimal.Decimal `json:"minSpend"`
	EligibleProduct []uuid.UUID     `json:"eligibleProducts,omitempty"`
	MaxQuantity     int             `json:"maxQuantity,omitempty"`
	TriggerProducts []uuid.UUID     `json:"triggerProducts,omitempty"`
	TriggerQuantity int             `json:"triggerQuantity,omitempty"`
	CheapestFree    bool            `json:"cheapestFree,omitempty"`
	Products        []uuid.UUID     `json:"products,omitempty"`
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
