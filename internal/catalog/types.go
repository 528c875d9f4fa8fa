package catalog

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is a menu item with its configurable option groups.
type Product struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	BasePrice    decimal.Decimal `json:"basePrice"`
	Discountable bool            `json:"discountable"`
	Active       bool            `json:"active"`
	Groups       []OptionGroup   `json:"groups"`
}

// OptionGroup constrains how many options a customer picks from it.
type OptionGroup struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Min     int       `json:"min"`
	Max     int       `json:"max"`
	Options []Option  `json:"options"`
}

// Option is one selectable choice; PriceDelta adjusts the unit price.
// Child options reference the parent option they extend.
type Option struct {
	ID             uuid.UUID       `json:"id"`
	Name           string          `json:"name"`
	PriceDelta     decimal.Decimal `json:"priceDelta"`
	ParentOptionID *uuid.UUID      `json:"parentOptionId,omitempty"`
}

// Selection is one chosen option on a cart line. ParentOptionID must be set
// when the chosen option is a child option, and the referenced parent must
// itself be selected.
type Selection struct {
	GroupID        uuid.UUID  `json:"groupId"`
	OptionID       uuid.UUID  `json:"optionId"`
	Quantity       int        `json:"quantity"`
	ParentOptionID *uuid.UUID `json:"parentOptionId,omitempty"`
}

// Quote is the authoritative price for a product with its selections.
type Quote struct {
	Name         string
	UnitPrice    decimal.Decimal
	OptionsPrice decimal.Decimal
	Discountable bool
}
