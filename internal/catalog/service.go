package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ErrProductNotFound indicates the product reference is unknown or inactive.
var ErrProductNotFound = errors.New("product not found")

// Querier captures the database methods required by the catalog service.
type Querier interface {
	GetProduct(ctx context.Context, id uuid.UUID) (Product, error)
}

// Service is the authoritative price source for cart lines. Product records
// are cached in Redis with a short TTL; checkout re-reads through the same
// path so the database stays the source of truth.
type Service struct {
	Q     Querier
	Cache *Cache
}

// Product loads one product with its option groups, via cache when possible.
func (s *Service) Product(ctx context.Context, id uuid.UUID) (Product, error) {
	if s == nil || s.Q == nil {
		return Product{}, errors.New("catalog service not configured")
	}
	key := productKey(id)
	var cached Product
	if ok, err := s.Cache.GetJSON(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}
	product, err := s.Q.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, fmt.Errorf("load product %s: %w", id, err)
	}
	if !product.Active {
		return Product{}, ErrProductNotFound
	}
	_ = s.Cache.SetJSON(ctx, key, product)
	return product, nil
}

// Quote computes the authoritative unit price for a product with the given
// selections: base price plus the sum of option price adjustments. Free cart
// lines charge OptionsPrice only.
func (s *Service) Quote(ctx context.Context, id uuid.UUID, sels []Selection) (Quote, error) {
	product, err := s.Product(ctx, id)
	if err != nil {
		return Quote{}, err
	}
	if err := ValidateSelections(product, sels); err != nil {
		return Quote{}, err
	}
	options := make(map[uuid.UUID]Option)
	for _, g := range product.Groups {
		for _, o := range g.Options {
			options[o.ID] = o
		}
	}
	extras := decimal.Zero
	for _, sel := range sels {
		opt := options[sel.OptionID]
		extras = extras.Add(opt.PriceDelta.Mul(decimal.NewFromInt(int64(sel.Quantity))))
	}
	return Quote{
		Name:         product.Name,
		UnitPrice:    product.BasePrice.Add(extras).Round(2),
		OptionsPrice: extras.Round(2),
		Discountable: product.Discountable,
	}, nil
}

func productKey(id uuid.UUID) string {
	return "menu:product:" + id.String()
}
