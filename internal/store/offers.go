package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/amberfork/backend-resto/internal/offers"
)

const listActiveOffers = `
SELECT id, name, variant, active, badge, config
FROM offers
WHERE active
ORDER BY name
`

// offerConfig is the variant-specific portion of an offer row. Admin tooling
// writes it as JSON; only the fields relevant to the variant are set.
type offerConfig struct {
	MinSpend        decimal.Decimal `json:"minSpend"`
	EligibleProduct []uuid.UUID     `json:"eligibleProducts"`
	MaxQuantity     int             `json:"maxQuantity"`
	TriggerProducts []uuid.UUID     `json:"triggerProducts"`
	TriggerQuantity int             `json:"triggerQuantity"`
	CheapestFree    bool            `json:"cheapestFree"`
	Products        []uuid.UUID     `json:"products"`
}

// ListActiveOffers returns the active automatic offer catalog.
func (q *Queries) ListActiveOffers(ctx context.Context) ([]offers.Offer, error) {
	rows, err := q.db.Query(ctx, listActiveOffers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []offers.Offer
	for rows.Next() {
		var (
			o   offers.Offer
			cfg []byte
		)
		if err := rows.Scan(&o.ID, &o.Name, &o.Variant, &o.Active, &o.Badge, &cfg); err != nil {
			return nil, err
		}
		if len(cfg) > 0 {
			var c offerConfig
			if err := json.Unmarshal(cfg, &c); err != nil {
				return nil, fmt.Errorf("decode offer config: %w", err)
			}
			o.MinSpend = c.MinSpend
			o.EligibleProduct = c.EligibleProduct
			o.MaxQuantity = c.MaxQuantity
			o.TriggerProducts = c.TriggerProducts
			o.TriggerQuantity = c.TriggerQuantity
			o.CheapestFree = c.CheapestFree
			o.Products = c.Products
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
