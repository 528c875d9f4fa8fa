package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/amberfork/backend-resto/internal/catalog"
)

const getProduct = `
SELECT id, name, base_price, discountable, active, option_groups
FROM products
WHERE id = $1
`

// GetProduct loads a menu product with its option groups. Option groups are
// stored denormalised as JSON alongside the product row; the menu is small
// and read-heavy, and a product is always priced with its full group set.
func (q *Queries) GetProduct(ctx context.Context, id uuid.UUID) (catalog.Product, error) {
	var (
		p      catalog.Product
		groups []byte
	)
	row := q.db.QueryRow(ctx, getProduct, id)
	if err := row.Scan(&p.ID, &p.Name, &p.BasePrice, &p.Discountable, &p.Active, &groups); err != nil {
		return catalog.Product{}, err
	}
	if len(groups) > 0 {
		if err := json.Unmarshal(groups, &p.Groups); err != nil {
			return catalog.Product{}, fmt.Errorf("decode option groups: %w", err)
		}
	}
	return p, nil
}

const listActiveProducts = `
SELECT id, name, base_price, discountable, active, option_groups
FROM products
WHERE active
ORDER BY name
`

// ListActiveProducts returns the orderable menu.
func (q *Queries) ListActiveProducts(ctx context.Context) ([]catalog.Product, error) {
	rows, err := q.db.Query(ctx, listActiveProducts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalog.Product
	for rows.Next() {
		var (
			p      catalog.Product
			groups []byte
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.BasePrice, &p.Discountable, &p.Active, &groups); err != nil {
			return nil, err
		}
		if len(groups) > 0 {
			if err := json.Unmarshal(groups, &p.Groups); err != nil {
				return nil, fmt.Errorf("decode option groups: %w", err)
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
