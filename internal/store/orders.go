package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InsertOrderParams holds the authoritative totals recorded at checkout.
type InsertOrderParams struct {
	CartID               uuid.UUID
	CustomerID           *uuid.UUID
	Email                string
	TableRef             string
	DeliveryMethod       string
	Postcode             string
	Currency             string
	Status               string
	Subtotal             decimal.Decimal
	DiscountableSubtotal decimal.Decimal
	Discount             decimal.Decimal
	DeliveryFee          decimal.Decimal
	Tip                  decimal.Decimal
	Total                decimal.Decimal
	AppliedPromos        []byte
}

// Order is the persisted order header.
type Order struct {
	ID        uuid.UUID
	Status    string
	CreatedAt time.Time
}

const insertOrder = `
INSERT INTO orders (
	id, cart_id, customer_id, email, table_ref, delivery_method, postcode,
	currency, status, subtotal, discountable_subtotal, discount, delivery_fee,
	tip, total, applied_promos, created_at
)
VALUES (
	gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
	$13, $14, $15, now()
)
RETURNING id, status, created_at
`

// InsertOrder persists the order header and returns its identity.
func (q *Queries) InsertOrder(ctx context.Context, arg InsertOrderParams) (Order, error) {
	var o Order
	err := q.db.QueryRow(ctx, insertOrder,
		arg.CartID, arg.CustomerID, arg.Email, arg.TableRef, arg.DeliveryMethod,
		arg.Postcode, arg.Currency, arg.Status, arg.Subtotal,
		arg.DiscountableSubtotal, arg.Discount, arg.DeliveryFee, arg.Tip,
		arg.Total, arg.AppliedPromos,
	).Scan(&o.ID, &o.Status, &o.CreatedAt)
	return o, err
}

// InsertOrderItemParams is one priced order line.
type InsertOrderItemParams struct {
	OrderID    uuid.UUID
	ProductID  uuid.UUID
	Name       string
	Qty        int
	UnitPrice  decimal.Decimal
	IsFree     bool
	OfferID    *uuid.UUID
	Selections []byte
}

const insertOrderItem = `
INSERT INTO order_items (
	id, order_id, product_id, name, qty, unit_price, is_free, offer_id, selections
)
VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8)
`

// InsertOrderItem persists one order line.
func (q *Queries) InsertOrderItem(ctx context.Context, arg InsertOrderItemParams) error {
	_, err := q.db.Exec(ctx, insertOrderItem,
		arg.OrderID, arg.ProductID, arg.Name, arg.Qty, arg.UnitPrice,
		arg.IsFree, arg.OfferID, arg.Selections,
	)
	return err
}
