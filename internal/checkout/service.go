package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/amberfork/backend-resto/internal/cart"
	"github.com/amberfork/backend-resto/internal/catalog"
	"github.com/amberfork/backend-resto/internal/customer"
	"github.com/amberfork/backend-resto/internal/events"
	"github.com/amberfork/backend-resto/internal/obs"
	"github.com/amberfork/backend-resto/internal/offers"
	"github.com/amberfork/backend-resto/internal/pricing"
	"github.com/amberfork/backend-resto/internal/promo"
	"github.com/amberfork/backend-resto/internal/store"
)

var (
	// ErrEmptyCart indicates there is nothing to check out.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrCartNotFound indicates the session cart is gone or expired.
	ErrCartNotFound = errors.New("cart not found")
)

// Input is the checkout request.
type Input struct {
	CartID     string `json:"cartId" validate:"required,uuid"`
	CustomerID string `json:"customerId" validate:"omitempty,uuid"`
	Email      string `json:"email" validate:"omitempty,email"`
}

// Output is the finalised order summary returned to the client.
type Output struct {
	OrderID string         `json:"orderId"`
	Status  string         `json:"status"`
	Totals  pricing.Totals `json:"totals"`
}

// Service finalises orders. It is the authority on money: unit prices are
// re-derived from the catalog, offers re-enforced and promo codes re-resolved
// under row locks, all inside one transaction. A client preview that
// disagrees with this result simply loses.
type Service struct {
	Pool      *pgxpool.Pool
	Q         *store.Queries
	Carts     *cart.Store
	Promos    *promo.Service
	Customers *customer.Service
	Currency  string
	Events    *events.Bus
}

// Create finalises the cart into an order.
func (s *Service) Create(ctx context.Context, in Input) (out Output, err error) {
	if s == nil || s.Q == nil || s.Pool == nil || s.Carts == nil {
		return Output{}, errors.New("checkout service not configured")
	}
	start := time.Now()
	defer func() {
		if obs.CheckoutTotal != nil {
			result := "ok"
			if err != nil {
				result = "error"
			}
			obs.CheckoutTotal.WithLabelValues(result).Inc()
		}
		if obs.CheckoutLatency != nil {
			obs.CheckoutLatency.Observe(float64(time.Since(start).Milliseconds()))
		}
	}()
	cartID, err := uuid.Parse(in.CartID)
	if err != nil {
		return Output{}, fmt.Errorf("invalid cart id: %w", err)
	}
	c, err := s.Carts.Get(ctx, cartID)
	if err != nil {
		if errors.Is(err, cart.ErrNotFound) {
			return Output{}, ErrCartNotFound
		}
		return Output{}, err
	}
	if len(c.Lines) == 0 {
		return Output{}, ErrEmptyCart
	}

	pctx := promo.Context{Email: in.Email, DeliveryMethod: c.DeliveryMethod}
	if id, err := uuid.Parse(in.CustomerID); err == nil {
		pctx.CustomerID = &id
	}

	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Output{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	qtx := s.Q.WithTx(tx)

	lines, err := s.requote(ctx, qtx, c.Lines)
	if err != nil {
		return Output{}, err
	}
	lines, err = reconcile(ctx, qtx, lines)
	if err != nil {
		return Output{}, err
	}

	promos := s.Promos.WithQuerier(qtx)
	res, err := promos.ResolveLocked(ctx, c.PromoCodes, cart.DiscountableSubtotal(lines), c.DeliveryFee, pctx)
	if err != nil {
		return Output{}, err
	}
	c.Lines = lines
	totals := pricing.Compute(cart.PricingLines(lines), c.DeliveryFee, c.Tip, res)

	var ident customer.Identity
	if s.Customers != nil {
		ident, err = s.Customers.Resolve(ctx, pctx.CustomerID, pctx.Email)
		if err != nil {
			return Output{}, err
		}
	}

	appliedJSON, err := json.Marshal(res.Applied)
	if err != nil {
		return Output{}, err
	}
	order, err := qtx.InsertOrder(ctx, store.InsertOrderParams{
		CartID:               c.ID,
		CustomerID:           ident.CustomerID,
		Email:                ident.Email,
		TableRef:             c.TableRef,
		DeliveryMethod:       c.DeliveryMethod,
		Postcode:             c.Postcode,
		Currency:             s.Currency,
		Status:               "confirmed",
		Subtotal:             totals.Subtotal,
		DiscountableSubtotal: totals.DiscountableSubtotal,
		Discount:             totals.Discount,
		DeliveryFee:          totals.DeliveryFee,
		Tip:                  totals.Tip,
		Total:                totals.Total,
		AppliedPromos:        appliedJSON,
	})
	if err != nil {
		return Output{}, err
	}
	for _, l := range lines {
		sels, err := json.Marshal(l.Selections)
		if err != nil {
			return Output{}, err
		}
		if err := qtx.InsertOrderItem(ctx, store.InsertOrderItemParams{
			OrderID:    order.ID,
			ProductID:  l.ProductID,
			Name:       l.Name,
			Qty:        l.Qty,
			UnitPrice:  l.UnitPrice,
			IsFree:     l.IsFree,
			OfferID:    l.OfferID,
			Selections: sels,
		}); err != nil {
			return Output{}, err
		}
	}
	for _, a := range res.Applied {
		if err := promos.Settle(ctx, a.Code, order.ID, ident, a.Discount); err != nil {
			return Output{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Output{}, err
	}

	_ = s.Carts.Delete(ctx, c.ID)
	if s.Events != nil {
		payload := map[string]any{
			"orderId": order.ID,
			"total":   totals.Total,
			"promos":  res.Applied,
		}
		if ident.Email != "" {
			payload["email"] = ident.Email
		}
		_, _ = s.Events.Emit(ctx, events.TopicOrderCreated, order.ID, payload)
		for _, a := range res.Applied {
			_, _ = s.Events.Emit(ctx, events.TopicPromoSettled, order.ID, map[string]any{
				"orderId": order.ID,
				"code":    a.Code,
				"amount":  a.Discount,
			})
		}
	}

	return Output{OrderID: order.ID.String(), Status: order.Status, Totals: totals}, nil
}

// requote replaces every line's price with the catalog's current answer.
// Free lines keep their derived status and are charged option extras only.
func (s *Service) requote(ctx context.Context, qtx *store.Queries, lines []cart.LineItem) ([]cart.LineItem, error) {
	cat := &catalog.Service{Q: qtx}
	out := make([]cart.LineItem, 0, len(lines))
	for _, l := range lines {
		quote, err := cat.Quote(ctx, l.ProductID, l.Selections)
		if err != nil {
			return nil, fmt.Errorf("requote %s: %w", l.ProductID, err)
		}
		l.Name = quote.Name
		if l.IsFree {
			if l.LinkedLineID != nil {
				l.UnitPrice = decimal.Zero
			} else {
				l.UnitPrice = quote.OptionsPrice
			}
		} else {
			l.UnitPrice = quote.UnitPrice
			l.Discountable = quote.Discountable
		}
		out = append(out, l)
	}
	return out, nil
}

func reconcile(ctx context.Context, qtx *store.Queries, lines []cart.LineItem) ([]cart.LineItem, error) {
	enf := &offers.Enforcer{Q: qtx}
	for pass := 0; pass < 5; pass++ {
		next, changed, err := enf.Reconcile(ctx, lines, cart.PaidDiscountableSubtotal(lines))
		if err != nil {
			return nil, err
		}
		lines = next
		if !changed {
			break
		}
	}
	return lines, nil
}
