package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/amberfork/backend-resto/internal/catalog"
	"github.com/amberfork/backend-resto/internal/events"
	"github.com/amberfork/backend-resto/internal/lock"
	"github.com/amberfork/backend-resto/internal/obs"
	"github.com/amberfork/backend-resto/internal/pricing"
	"github.com/amberfork/backend-resto/internal/promo"
)

// maxReconcilePasses bounds the refresh loop. Each pass only removes or
// syncs derived lines, so the fixed point is reached well before this.
const maxReconcilePasses = 5

// PriceSource quotes a configured product from the menu catalog.
type PriceSource interface {
	Quote(ctx context.Context, productID uuid.UUID, sels []catalog.Selection) (catalog.Quote, error)
}

// OfferEnforcer keeps derived free lines consistent with the offer catalog.
type OfferEnforcer interface {
	Reconcile(ctx context.Context, lines []LineItem, paidDiscountable decimal.Decimal) ([]LineItem, bool, error)
	ValidateClaim(ctx context.Context, lines []LineItem, offerID, productID uuid.UUID, paidDiscountable decimal.Decimal) error
}

// DiscountResolver evaluates promo codes against the cart.
type DiscountResolver interface {
	Resolve(ctx context.Context, candidates []string, discountable, deliveryFee decimal.Decimal, pctx promo.Context) (promo.Resolution, error)
	Apply(ctx context.Context, code string, applied []string, discountable, deliveryFee decimal.Decimal, pctx promo.Context) (promo.ApplyResult, error)
}

// FeeSource quotes delivery charges for a destination postcode.
type FeeSource interface {
	Quote(ctx context.Context, postcode string) (decimal.Decimal, error)
}

// Snapshot is a cart plus its preview totals. Notices surface free lines the
// reconciliation pass revoked since the last mutation.
type Snapshot struct {
	Cart    Cart           `json:"cart"`
	Totals  pricing.Totals `json:"totals"`
	Notices []string       `json:"notices,omitempty"`
}

// Service runs the mutate, reconcile, preview pipeline over session carts.
// Every mutation re-enforces offer conditions before totals are previewed,
// so clients never see a cart whose free lines contradict its contents.
type Service struct {
	Store      *Store
	Catalog    PriceSource
	Offers     OfferEnforcer
	Promos     DiscountResolver
	Delivery   FeeSource
	Lock       *lock.Locker
	Events     *events.Bus
	MaxLineQty int
	Now        func() time.Time
}

// mutate serialises read-modify-write cycles on one cart. The Redis blob has
// no optimistic concurrency, so without the lock two concurrent mutations
// would silently drop one another's lines.
func (s *Service) mutate(ctx context.Context, id uuid.UUID, fn func(context.Context) error) error {
	if s.Lock == nil {
		return fn(ctx)
	}
	return s.Lock.WithLock(ctx, "cart:mutate:"+id.String(), 5*time.Second, fn)
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) maxQty() int {
	if s == nil || s.MaxLineQty <= 0 {
		return 20
	}
	return s.MaxLineQty
}

// Create opens a new session cart.
func (s *Service) Create(ctx context.Context, tableRef, method string) (Cart, error) {
	if s == nil || s.Store == nil {
		return Cart{}, errors.New("cart service not configured")
	}
	now := s.now()
	c := Cart{
		ID:             uuid.New(),
		TableRef:       tableRef,
		DeliveryMethod: method,
		DeliveryFee:    decimal.Zero,
		Tip:            decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.Store.Save(ctx, c); err != nil {
		return Cart{}, err
	}
	return c, nil
}

// Snapshot loads the cart, reconciles derived lines and previews totals. The
// refreshed cart is persisted when reconciliation changed it.
func (s *Service) Snapshot(ctx context.Context, id uuid.UUID, pctx promo.Context) (Snapshot, error) {
	c, err := s.Store.Get(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	return s.refreshAndPreview(ctx, c, pctx, false)
}

// AddItem quotes the product, merges it into the cart and refreshes.
func (s *Service) AddItem(ctx context.Context, id, productID uuid.UUID, sels []catalog.Selection, qty int, pctx promo.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.mutate(ctx, id, func(ctx context.Context) error {
		c, err := s.Store.Get(ctx, id)
		if err != nil {
			return err
		}
		quote, err := s.Catalog.Quote(ctx, productID, sels)
		if err != nil {
			return err
		}
		line := LineItem{
			ID:           uuid.New(),
			ProductID:    productID,
			Name:         quote.Name,
			Selections:   sels,
			Qty:          qty,
			UnitPrice:    quote.UnitPrice,
			Discountable: quote.Discountable,
		}
		if err := c.AddLine(line, s.maxQty()); err != nil {
			return err
		}
		snap, err = s.refreshAndPreview(ctx, c, pctx, true)
		return err
	})
	return snap, err
}

// UpdateItemQty changes the quantity of a paid line.
func (s *Service) UpdateItemQty(ctx context.Context, id, lineID uuid.UUID, qty int, pctx promo.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.mutate(ctx, id, func(ctx context.Context) error {
		c, err := s.Store.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := c.UpdateQty(lineID, qty, s.maxQty()); err != nil {
			return err
		}
		snap, err = s.refreshAndPreview(ctx, c, pctx, true)
		return err
	})
	return snap, err
}

// RemoveItem deletes a line. Removing a paid line may cascade into derived
// free lines during the refresh pass.
func (s *Service) RemoveItem(ctx context.Context, id, lineID uuid.UUID, pctx promo.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.mutate(ctx, id, func(ctx context.Context) error {
		c, err := s.Store.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := c.RemoveLine(lineID); err != nil {
			return err
		}
		snap, err = s.refreshAndPreview(ctx, c, pctx, true)
		return err
	})
	return snap, err
}

// ClearItems empties the cart but keeps its promo and delivery state.
func (s *Service) ClearItems(ctx context.Context, id uuid.UUID, pctx promo.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.mutate(ctx, id, func(ctx context.Context) error {
		c, err := s.Store.Get(ctx, id)
		if err != nil {
			return err
		}
		c.Clear()
		snap, err = s.refreshAndPreview(ctx, c, pctx, true)
		return err
	})
	return snap, err
}

// ClaimFreeItem adds a claim-based free line after the enforcer confirms the
// offer condition holds and the cap is not yet reached. The line is charged
// only for its option extras.
func (s *Service) ClaimFreeItem(ctx context.Context, id, offerID, productID uuid.UUID, sels []catalog.Selection, pctx promo.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.mutate(ctx, id, func(ctx context.Context) error {
		c, err := s.Store.Get(ctx, id)
		if err != nil {
			return err
		}
		paid := PaidDiscountableSubtotal(c.Lines)
		if err := s.Offers.ValidateClaim(ctx, c.Lines, offerID, productID, paid); err != nil {
			return err
		}
		quote, err := s.Catalog.Quote(ctx, productID, sels)
		if err != nil {
			return err
		}
		oid := offerID
		c.Lines = append(c.Lines, LineItem{
			ID:           uuid.New(),
			ProductID:    productID,
			Name:         quote.Name,
			Selections:   sels,
			Qty:          1,
			UnitPrice:    quote.OptionsPrice,
			IsFree:       true,
			Discountable: quote.Discountable,
			OfferID:      &oid,
		})
		snap, err = s.refreshAndPreview(ctx, c, pctx, true)
		return err
	})
	return snap, err
}

// ApplyPromo runs the interactive apply path and, on success, records the
// code as a cart candidate. The resolver's outcome message is returned
// verbatim for rejected codes.
func (s *Service) ApplyPromo(ctx context.Context, id uuid.UUID, code string, pctx promo.Context) (Snapshot, promo.ApplyResult, error) {
	var (
		snap Snapshot
		res  promo.ApplyResult
	)
	err := s.mutate(ctx, id, func(ctx context.Context) error {
		c, err := s.Store.Get(ctx, id)
		if err != nil {
			return err
		}
		notices, _, err := s.refresh(ctx, &c)
		if err != nil {
			return err
		}
		pctx.DeliveryMethod = c.DeliveryMethod
		res, err = s.Promos.Apply(ctx, code, c.PromoCodes, DiscountableSubtotal(c.Lines), c.DeliveryFee, pctx)
		if err != nil {
			return err
		}
		if obs.PromoApplyTotal != nil {
			result := "rejected"
			if res.Success {
				result = "accepted"
			}
			obs.PromoApplyTotal.WithLabelValues(result).Inc()
		}
		if res.Success {
			c.PromoCodes = appendCode(c.PromoCodes, promo.Normalize(code))
			if s.Events != nil {
				_, _ = s.Events.Emit(ctx, events.TopicPromoApplied, c.ID, map[string]any{
					"cartId": c.ID,
					"code":   promo.Normalize(code),
				})
			}
		}
		snap, err = s.preview(ctx, c, pctx, notices)
		return err
	})
	if err != nil {
		return Snapshot{}, promo.ApplyResult{}, err
	}
	return snap, res, nil
}

// RemovePromo drops a code from the cart's candidate set.
func (s *Service) RemovePromo(ctx context.Context, id uuid.UUID, code string, pctx promo.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.mutate(ctx, id, func(ctx context.Context) error {
		c, err := s.Store.Get(ctx, id)
		if err != nil {
			return err
		}
		key := promo.Normalize(code)
		kept := c.PromoCodes[:0]
		for _, existing := range c.PromoCodes {
			if promo.Normalize(existing) != key {
				kept = append(kept, existing)
			}
		}
		c.PromoCodes = kept
		snap, err = s.refreshAndPreview(ctx, c, pctx, true)
		return err
	})
	return snap, err
}

// SetDelivery switches the fulfilment method, re-quoting the fee for
// delivery orders and zeroing it for collection.
func (s *Service) SetDelivery(ctx context.Context, id uuid.UUID, method, postcode string, tip decimal.Decimal, pctx promo.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.mutate(ctx, id, func(ctx context.Context) error {
		c, err := s.Store.Get(ctx, id)
		if err != nil {
			return err
		}
		c.DeliveryMethod = method
		c.Postcode = postcode
		if tip.IsNegative() {
			tip = decimal.Zero
		}
		c.Tip = tip
		if method == "delivery" {
			if s.Delivery == nil {
				return errors.New("delivery quoting not configured")
			}
			fee, err := s.Delivery.Quote(ctx, postcode)
			if err != nil {
				return err
			}
			c.DeliveryFee = fee
		} else {
			c.DeliveryFee = decimal.Zero
		}
		snap, err = s.refreshAndPreview(ctx, c, pctx, true)
		return err
	})
	return snap, err
}

// Delete discards the session cart.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.Store.Delete(ctx, id)
}

func (s *Service) refreshAndPreview(ctx context.Context, c Cart, pctx promo.Context, mutated bool) (Snapshot, error) {
	notices, refreshed, err := s.refresh(ctx, &c)
	if err != nil {
		return Snapshot{}, err
	}
	if !mutated && !refreshed {
		return s.previewOnly(ctx, c, pctx, notices)
	}
	return s.preview(ctx, c, pctx, notices)
}

// refresh re-runs offer enforcement until the line set stops changing and
// reports whether any pass changed the cart. The paid discountable subtotal
// is recomputed for every pass because removing a free-on-spend line cannot
// raise it, but removing paid trigger lines in an earlier pass can lower it
// below another offer's threshold.
func (s *Service) refresh(ctx context.Context, c *Cart) ([]string, bool, error) {
	if s.Offers == nil {
		return nil, false, nil
	}
	before := freeLineNames(c.Lines)
	refreshed := false
	for pass := 0; pass < maxReconcilePasses; pass++ {
		paid := PaidDiscountableSubtotal(c.Lines)
		lines, changed, err := s.Offers.Reconcile(ctx, c.Lines, paid)
		if err != nil {
			return nil, false, err
		}
		c.Lines = lines
		if !changed {
			break
		}
		refreshed = true
	}
	after := freeLineNames(c.Lines)
	var notices []string
	revoked := 0
	for name, n := range before {
		if after[name] < n {
			notices = append(notices, fmt.Sprintf("free item %q was removed: the offer conditions are no longer met", name))
			revoked += n - after[name]
		}
	}
	if obs.OfferReconcileTotal != nil {
		outcome := "clean"
		if revoked > 0 {
			outcome = "revoked"
		}
		obs.OfferReconcileTotal.WithLabelValues(outcome).Inc()
	}
	if revoked > 0 && obs.FreeItemsRevoked != nil {
		obs.FreeItemsRevoked.Add(float64(revoked))
	}
	if revoked > 0 && s.Events != nil {
		_, _ = s.Events.Emit(ctx, events.TopicOfferRevoked, c.ID, map[string]any{
			"cartId":  c.ID,
			"notices": notices,
		})
	}
	return notices, refreshed, nil
}

// preview resolves promos, computes totals and persists the cart.
func (s *Service) preview(ctx context.Context, c Cart, pctx promo.Context, notices []string) (Snapshot, error) {
	snap, err := s.previewOnly(ctx, c, pctx, notices)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Cart.UpdatedAt = s.now()
	if err := s.Store.Save(ctx, snap.Cart); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func (s *Service) previewOnly(ctx context.Context, c Cart, pctx promo.Context, notices []string) (Snapshot, error) {
	var (
		res promo.Resolution
		err error
	)
	if s.Promos != nil {
		pctx.DeliveryMethod = c.DeliveryMethod
		res, err = s.Promos.Resolve(ctx, c.PromoCodes, DiscountableSubtotal(c.Lines), c.DeliveryFee, pctx)
		if err != nil {
			return Snapshot{}, err
		}
	}
	totals := pricing.Compute(PricingLines(c.Lines), c.DeliveryFee, c.Tip, res)
	return Snapshot{Cart: c, Totals: totals, Notices: notices}, nil
}

// PricingLines converts cart lines into the shape the totals engine takes.
func PricingLines(lines []LineItem) []pricing.Line {
	out := make([]pricing.Line, 0, len(lines))
	for _, l := range lines {
		out = append(out, pricing.Line{
			Qty:          l.Qty,
			UnitPrice:    l.UnitPrice,
			Discountable: l.Discountable,
		})
	}
	return out
}

func freeLineNames(lines []LineItem) map[string]int {
	counts := make(map[string]int)
	for _, l := range lines {
		if l.IsFree {
			counts[l.Name] += l.Qty
		}
	}
	return counts
}

func appendCode(codes []string, code string) []string {
	for _, existing := range codes {
		if promo.Normalize(existing) == code {
			return codes
		}
	}
	return append(codes, code)
}
