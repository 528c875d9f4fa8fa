package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/amberfork/backend-resto/internal/customer"
	"github.com/amberfork/backend-resto/internal/promo"
)

const promoColumns = `
code, description, kind, value, min_order, max_discount, stackable, methods,
valid_from, valid_until, usage_limit, used_count, first_order_only,
one_time_per_customer, required_tier, auto_apply, active
`

const getPromoByCode = `
SELECT ` + promoColumns + `
FROM promo_codes
WHERE code = $1
`

const getPromoByCodeForUpdate = getPromoByCode + `
FOR UPDATE
`

const listAutoApplyPromos = `
SELECT ` + promoColumns + `
FROM promo_codes
WHERE auto_apply AND active
ORDER BY code
`

func scanPromo(row pgx.Row) (promo.Code, error) {
	var (
		c       promo.Code
		methods []byte
		tier    string
	)
	err := row.Scan(
		&c.Code, &c.Description, &c.Kind, &c.Value, &c.MinOrder, &c.MaxDiscount,
		&c.Stackable, &methods, &c.ValidFrom, &c.ValidUntil, &c.UsageLimit,
		&c.UsedCount, &c.FirstOrderOnly, &c.OneTimePerCustomer, &tier,
		&c.AutoApply, &c.Active,
	)
	if err != nil {
		return promo.Code{}, err
	}
	if len(methods) > 0 {
		if err := json.Unmarshal(methods, &c.Methods); err != nil {
			return promo.Code{}, fmt.Errorf("decode promo methods: %w", err)
		}
	}
	c.RequiredTier = customer.ParseTier(tier)
	return c, nil
}

// GetPromoByCode loads a promo definition by its normalised code.
func (q *Queries) GetPromoByCode(ctx context.Context, code string) (promo.Code, error) {
	return scanPromo(q.db.QueryRow(ctx, getPromoByCode, code))
}

// GetPromoByCodeForUpdate loads a promo definition with a row lock, serialising
// concurrent checkouts racing on the same usage-limited code.
func (q *Queries) GetPromoByCodeForUpdate(ctx context.Context, code string) (promo.Code, error) {
	return scanPromo(q.db.QueryRow(ctx, getPromoByCodeForUpdate, code))
}

// ListAutoApplyPromos returns the active codes the resolver merges into every
// candidate set.
func (q *Queries) ListAutoApplyPromos(ctx context.Context) ([]promo.Code, error) {
	rows, err := q.db.Query(ctx, listAutoApplyPromos)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []promo.Code
	for rows.Next() {
		c, err := scanPromo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const countPromoUsageByCustomer = `
SELECT COUNT(*)
FROM promo_usages
WHERE code = $1
  AND (($2::uuid IS NOT NULL AND customer_id = $2)
    OR ($3::text <> '' AND lower(email) = lower($3)))
`

// CountPromoUsageByCustomer counts prior redemptions of the code by the
// identity, matched by customer id or email so guest orders count too.
func (q *Queries) CountPromoUsageByCustomer(ctx context.Context, code string, customerID *uuid.UUID, email string) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countPromoUsageByCustomer, code, customerID, email).Scan(&n)
	return n, err
}

const getPromoUsageByOrder = `
SELECT EXISTS (
	SELECT 1 FROM promo_usages WHERE code = $1 AND order_id = $2
)
`

// GetPromoUsageByOrder reports whether the code was already settled for the
// order, making settlement idempotent under retries.
func (q *Queries) GetPromoUsageByOrder(ctx context.Context, code string, orderID uuid.UUID) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, getPromoUsageByOrder, code, orderID).Scan(&exists)
	return exists, err
}

const insertPromoUsage = `
INSERT INTO promo_usages (code, order_id, customer_id, email, amount, redeemed_at)
VALUES ($1, $2, $3, $4, $5, now())
`

// InsertPromoUsage records one redemption against an order.
func (q *Queries) InsertPromoUsage(ctx context.Context, arg promo.InsertUsageParams) error {
	_, err := q.db.Exec(ctx, insertPromoUsage, arg.Code, arg.OrderID, arg.CustomerID, arg.Email, arg.Amount)
	return err
}

const incrementPromoUsedCount = `
UPDATE promo_codes SET used_count = used_count + 1 WHERE code = $1
`

// IncrementPromoUsedCount bumps the global usage counter.
func (q *Queries) IncrementPromoUsedCount(ctx context.Context, code string) error {
	_, err := q.db.Exec(ctx, incrementPromoUsedCount, code)
	return err
}
