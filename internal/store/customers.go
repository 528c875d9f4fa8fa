package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/amberfork/backend-resto/internal/customer"
)

const getCustomerByID = `
SELECT id, email, tier FROM customers WHERE id = $1
`

func (q *Queries) GetCustomerByID(ctx context.Context, id uuid.UUID) (customer.Customer, error) {
	return scanCustomer(q.db.QueryRow(ctx, getCustomerByID, id))
}

const getCustomerByEmail = `
SELECT id, email, tier FROM customers WHERE lower(email) = lower($1)
`

func (q *Queries) GetCustomerByEmail(ctx context.Context, email string) (customer.Customer, error) {
	return scanCustomer(q.db.QueryRow(ctx, getCustomerByEmail, email))
}

func scanCustomer(row pgx.Row) (customer.Customer, error) {
	var (
		c    customer.Customer
		tier string
	)
	if err := row.Scan(&c.ID, &c.Email, &tier); err != nil {
		return customer.Customer{}, err
	}
	c.Tier = customer.ParseTier(tier)
	return c, nil
}

const countOrdersByCustomer = `
SELECT COUNT(*)
FROM orders
WHERE (($1::uuid IS NOT NULL AND customer_id = $1)
    OR ($2::text <> '' AND lower(email) = lower($2)))
  AND status <> 'cancelled'
`

// CountOrdersByCustomer counts completed orders for the identity across both
// registered and guest checkouts, which is what first-order promos check.
func (q *Queries) CountOrdersByCustomer(ctx context.Context, customerID *uuid.UUID, email string) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countOrdersByCustomer, customerID, email).Scan(&n)
	return n, err
}
