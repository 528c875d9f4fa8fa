package cart_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/amberfork/backend-resto/internal/cart"
	"github.com/amberfork/backend-resto/internal/catalog"
	"github.com/amberfork/backend-resto/internal/events"
	"github.com/amberfork/backend-resto/internal/lock"
	"github.com/amberfork/backend-resto/internal/offers"
	"github.com/amberfork/backend-resto/internal/promo"
)

func amount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type stubCatalog struct {
	quotes map[uuid.UUID]catalog.Quote
}

func (s stubCatalog) Quote(_ context.Context, productID uuid.UUID, _ []catalog.Selection) (catalog.Quote, error) {
	q, ok := s.quotes[productID]
	if !ok {
		return catalog.Quote{}, catalog.ErrProductNotFound
	}
	return q, nil
}

// offerTable backs the enforcer with a fixed catalog.
type offerTable struct {
	offers []offers.Offer
}

func (o offerTable) ListActiveOffers(context.Context) ([]offers.Offer, error) {
	return o.offers, nil
}

type stubPromos struct {
	resolution promo.Resolution
	apply      promo.ApplyResult
}

func (s stubPromos) Resolve(context.Context, []string, decimal.Decimal, decimal.Decimal, promo.Context) (promo.Resolution, error) {
	return s.resolution, nil
}

func (s stubPromos) Apply(context.Context, string, []string, decimal.Decimal, decimal.Decimal, promo.Context) (promo.ApplyResult, error) {
	return s.apply, nil
}

type stubFees struct {
	fee decimal.Decimal
}

func (s stubFees) Quote(context.Context, string) (decimal.Decimal, error) {
	return s.fee, nil
}

func newTestService(t *testing.T, catalogOffers []offers.Offer, quotes map[uuid.UUID]catalog.Quote, promos cart.DiscountResolver) *cart.Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	if promos == nil {
		promos = stubPromos{}
	}
	return &cart.Service{
		Store:    &cart.Store{R: client, TTL: time.Hour},
		Catalog:  stubCatalog{quotes: quotes},
		Offers:   &offers.Enforcer{Q: offerTable{offers: catalogOffers}},
		Promos:   promos,
		Delivery: stubFees{fee: amount("2.99")},
		Lock:     &lock.Locker{R: client},
	}
}

func TestAddItemQuotesAndPersists(t *testing.T) {
	product := uuid.New()
	quotes := map[uuid.UUID]catalog.Quote{
		product: {Name: "Margherita", UnitPrice: amount("9.50"), Discountable: true},
	}
	svc := newTestService(t, nil, quotes, nil)
	ctx := context.Background()

	c, err := svc.Create(ctx, "", "collection")
	require.NoError(t, err)

	snap, err := svc.AddItem(ctx, c.ID, product, nil, 2, promo.Context{})
	require.NoError(t, err)
	require.Len(t, snap.Cart.Lines, 1)
	require.Equal(t, "Margherita", snap.Cart.Lines[0].Name)
	require.True(t, snap.Totals.Subtotal.Equal(amount("19.00")), "subtotal %s", snap.Totals.Subtotal)

	// the snapshot was persisted: a fresh read sees the line
	again, err := svc.Snapshot(ctx, c.ID, promo.Context{})
	require.NoError(t, err)
	require.Len(t, again.Cart.Lines, 1)
}

func TestSnapshotPersistsReconcileGrant(t *testing.T) {
	product := uuid.New()
	quotes := map[uuid.UUID]catalog.Quote{
		product: {Name: "Dumplings", UnitPrice: amount("5.00"), Discountable: true},
	}
	svc := newTestService(t, nil, quotes, nil)
	ctx := context.Background()

	c, err := svc.Create(ctx, "", "collection")
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, c.ID, product, nil, 1, promo.Context{})
	require.NoError(t, err)

	// the bogof goes live after the cart was last saved
	offer := offers.Offer{ID: uuid.New(), Variant: offers.Bogof, Active: true, Products: []uuid.UUID{product}}
	live := *svc
	live.Offers = &offers.Enforcer{Q: offerTable{offers: []offers.Offer{offer}}}

	snap, err := live.Snapshot(ctx, c.ID, promo.Context{})
	require.NoError(t, err)
	require.Len(t, snap.Cart.Lines, 2, "the new offer grants a free line")

	var freeID uuid.UUID
	for _, l := range snap.Cart.Lines {
		if l.IsFree {
			freeID = l.ID
		}
	}
	require.NotEqual(t, uuid.Nil, freeID)

	// the grant was persisted, so the free line keeps its id on a fresh read
	again, err := live.Snapshot(ctx, c.ID, promo.Context{})
	require.NoError(t, err)
	require.Len(t, again.Cart.Lines, 2)
	for _, l := range again.Cart.Lines {
		if l.IsFree {
			require.Equal(t, freeID, l.ID)
		}
	}
}

func TestAddItemUnknownProduct(t *testing.T) {
	svc := newTestService(t, nil, nil, nil)
	ctx := context.Background()

	c, err := svc.Create(ctx, "", "collection")
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, c.ID, uuid.New(), nil, 1, promo.Context{})
	require.ErrorIs(t, err, catalog.ErrProductNotFound)
}

func TestSnapshotMissingCart(t *testing.T) {
	svc := newTestService(t, nil, nil, nil)
	_, err := svc.Snapshot(context.Background(), uuid.New(), promo.Context{})
	require.ErrorIs(t, err, cart.ErrNotFound)
}

func TestBogofGrantAndRevocationNotice(t *testing.T) {
	product := uuid.New()
	offer := offers.Offer{
		ID:       uuid.New(),
		Variant:  offers.Bogof,
		Active:   true,
		Products: []uuid.UUID{product},
	}
	quotes := map[uuid.UUID]catalog.Quote{
		product: {Name: "Spring Rolls", UnitPrice: amount("4.50"), Discountable: true},
	}
	svc := newTestService(t, []offers.Offer{offer}, quotes, nil)
	ctx := context.Background()

	c, err := svc.Create(ctx, "", "collection")
	require.NoError(t, err)

	snap, err := svc.AddItem(ctx, c.ID, product, nil, 1, promo.Context{})
	require.NoError(t, err)
	require.Len(t, snap.Cart.Lines, 2, "a free line should be granted")

	var paidID uuid.UUID
	for _, l := range snap.Cart.Lines {
		if !l.IsFree {
			paidID = l.ID
		} else {
			require.True(t, l.UnitPrice.IsZero())
		}
	}
	require.True(t, snap.Totals.Total.Equal(amount("4.50")), "total %s", snap.Totals.Total)

	snap, err = svc.RemoveItem(ctx, c.ID, paidID, promo.Context{})
	require.NoError(t, err)
	require.Empty(t, snap.Cart.Lines, "free line should cascade away")
	require.Len(t, snap.Notices, 1)
	require.Contains(t, snap.Notices[0], "Spring Rolls")
}

func TestClaimFreeItemChargesOptionsOnly(t *testing.T) {
	mains, side := uuid.New(), uuid.New()
	offer := offers.Offer{
		ID:              uuid.New(),
		Variant:         offers.FreeOnSpend,
		Active:          true,
		MinSpend:        amount("20.00"),
		EligibleProduct: []uuid.UUID{side},
		MaxQuantity:     1,
	}
	quotes := map[uuid.UUID]catalog.Quote{
		mains: {Name: "Feast Platter", UnitPrice: amount("25.00"), Discountable: true},
		side:  {Name: "Garlic Bread", UnitPrice: amount("4.00"), OptionsPrice: amount("0.50"), Discountable: true},
	}
	svc := newTestService(t, []offers.Offer{offer}, quotes, nil)
	ctx := context.Background()

	c, err := svc.Create(ctx, "", "collection")
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, c.ID, mains, nil, 1, promo.Context{})
	require.NoError(t, err)

	snap, err := svc.ClaimFreeItem(ctx, c.ID, offer.ID, side, nil, promo.Context{})
	require.NoError(t, err)
	require.Len(t, snap.Cart.Lines, 2)
	var free cart.LineItem
	for _, l := range snap.Cart.Lines {
		if l.IsFree {
			free = l
		}
	}
	require.True(t, free.UnitPrice.Equal(amount("0.50")), "free line charges option extras only, got %s", free.UnitPrice)
	require.True(t, snap.Totals.Total.Equal(amount("25.50")), "total %s", snap.Totals.Total)

	_, err = svc.ClaimFreeItem(ctx, c.ID, offer.ID, side, nil, promo.Context{})
	require.ErrorIs(t, err, offers.ErrMaxClaimed)
}

func TestClaimRevokedWhenSpendDropsBelowThreshold(t *testing.T) {
	mains, side := uuid.New(), uuid.New()
	offer := offers.Offer{
		ID:              uuid.New(),
		Variant:         offers.FreeOnSpend,
		Active:          true,
		MinSpend:        amount("20.00"),
		EligibleProduct: []uuid.UUID{side},
		MaxQuantity:     1,
	}
	quotes := map[uuid.UUID]catalog.Quote{
		mains: {Name: "Feast Platter", UnitPrice: amount("12.00"), Discountable: true},
		side:  {Name: "Garlic Bread", UnitPrice: amount("4.00"), Discountable: true},
	}
	svc := newTestService(t, []offers.Offer{offer}, quotes, nil)
	ctx := context.Background()

	c, err := svc.Create(ctx, "", "collection")
	require.NoError(t, err)

	snap, err := svc.AddItem(ctx, c.ID, mains, nil, 2, promo.Context{})
	require.NoError(t, err)
	lineID := snap.Cart.Lines[0].ID

	_, err = svc.ClaimFreeItem(ctx, c.ID, offer.ID, side, nil, promo.Context{})
	require.NoError(t, err)

	snap, err = svc.UpdateItemQty(ctx, c.ID, lineID, 1, promo.Context{})
	require.NoError(t, err)
	require.Len(t, snap.Cart.Lines, 1, "free line should be revoked once spend drops")
	require.Len(t, snap.Notices, 1)
}

func TestApplyPromoRecordsCode(t *testing.T) {
	product := uuid.New()
	quotes := map[uuid.UUID]catalog.Quote{
		product: {Name: "Burger", UnitPrice: amount("10.00"), Discountable: true},
	}
	promos := stubPromos{
		apply: promo.ApplyResult{Success: true},
		resolution: promo.Resolution{
			TotalDiscount: amount("2.00"),
			Applied:       []promo.Applied{{Code: "SAVE2", Discount: amount("2.00")}},
		},
	}
	svc := newTestService(t, nil, quotes, promos)
	ctx := context.Background()

	c, err := svc.Create(ctx, "", "collection")
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, c.ID, product, nil, 1, promo.Context{})
	require.NoError(t, err)

	snap, res, err := svc.ApplyPromo(ctx, c.ID, "save2", promo.Context{})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, []string{"SAVE2"}, snap.Cart.PromoCodes)
	require.True(t, snap.Totals.Total.Equal(amount("8.00")), "total %s", snap.Totals.Total)

	snap, err = svc.RemovePromo(ctx, c.ID, "SAVE2", promo.Context{})
	require.NoError(t, err)
	require.Empty(t, snap.Cart.PromoCodes)
}

type captureEvents struct {
	topics []string
}

func (c *captureEvents) InsertDomainEvent(_ context.Context, arg events.InsertEventParams) (events.DomainEvent, error) {
	c.topics = append(c.topics, arg.Topic)
	return events.DomainEvent{
		ID:          uuid.New(),
		Topic:       arg.Topic,
		AggregateID: arg.AggregateID,
		Payload:     arg.Payload,
		OccurredAt:  time.Now(),
	}, nil
}

func TestServiceEmitsPromoAndOfferEvents(t *testing.T) {
	product := uuid.New()
	offer := offers.Offer{
		ID:       uuid.New(),
		Variant:  offers.Bogof,
		Active:   true,
		Products: []uuid.UUID{product},
	}
	quotes := map[uuid.UUID]catalog.Quote{
		product: {Name: "Bao Buns", UnitPrice: amount("6.00"), Discountable: true},
	}
	promos := stubPromos{apply: promo.ApplyResult{Success: true}}
	svc := newTestService(t, []offers.Offer{offer}, quotes, promos)
	sink := &captureEvents{}
	svc.Events = &events.Bus{Store: sink}
	ctx := context.Background()

	c, err := svc.Create(ctx, "", "collection")
	require.NoError(t, err)
	snap, err := svc.AddItem(ctx, c.ID, product, nil, 1, promo.Context{})
	require.NoError(t, err)

	_, _, err = svc.ApplyPromo(ctx, c.ID, "save2", promo.Context{})
	require.NoError(t, err)
	require.Contains(t, sink.topics, events.TopicPromoApplied)

	var paidID uuid.UUID
	for _, l := range snap.Cart.Lines {
		if !l.IsFree {
			paidID = l.ID
		}
	}
	_, err = svc.RemoveItem(ctx, c.ID, paidID, promo.Context{})
	require.NoError(t, err)
	require.Contains(t, sink.topics, events.TopicOfferRevoked)
}

func TestApplyPromoRejectedLeavesCartAlone(t *testing.T) {
	promos := stubPromos{apply: promo.ApplyResult{Success: false, ErrorMessage: "Invalid promo code"}}
	svc := newTestService(t, nil, nil, promos)
	ctx := context.Background()

	c, err := svc.Create(ctx, "", "collection")
	require.NoError(t, err)

	snap, res, err := svc.ApplyPromo(ctx, c.ID, "NOPE", promo.Context{})
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Empty(t, snap.Cart.PromoCodes)
}

func TestSetDeliveryQuotesFee(t *testing.T) {
	svc := newTestService(t, nil, nil, nil)
	ctx := context.Background()

	c, err := svc.Create(ctx, "", "collection")
	require.NoError(t, err)

	snap, err := svc.SetDelivery(ctx, c.ID, "delivery", "SW1A 1AA", amount("1.50"), promo.Context{})
	require.NoError(t, err)
	require.True(t, snap.Cart.DeliveryFee.Equal(amount("2.99")), "fee %s", snap.Cart.DeliveryFee)
	require.True(t, snap.Cart.Tip.Equal(amount("1.50")))

	snap, err = svc.SetDelivery(ctx, c.ID, "collection", "", decimal.Zero, promo.Context{})
	require.NoError(t, err)
	require.True(t, snap.Cart.DeliveryFee.IsZero(), "collection orders carry no fee")
}

func TestClearKeepsPromoAndDeliveryState(t *testing.T) {
	product := uuid.New()
	quotes := map[uuid.UUID]catalog.Quote{
		product: {Name: "Burger", UnitPrice: amount("10.00"), Discountable: true},
	}
	promos := stubPromos{apply: promo.ApplyResult{Success: true}}
	svc := newTestService(t, nil, quotes, promos)
	ctx := context.Background()

	c, err := svc.Create(ctx, "", "collection")
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, c.ID, product, nil, 1, promo.Context{})
	require.NoError(t, err)
	_, _, err = svc.ApplyPromo(ctx, c.ID, "SAVE2", promo.Context{})
	require.NoError(t, err)

	snap, err := svc.ClearItems(ctx, c.ID, promo.Context{})
	require.NoError(t, err)
	require.Empty(t, snap.Cart.Lines)
	require.Equal(t, []string{"SAVE2"}, snap.Cart.PromoCodes)
}
