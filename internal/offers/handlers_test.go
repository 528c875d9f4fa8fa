package offers_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/amberfork/backend-resto/internal/cart"
	"github.com/amberfork/backend-resto/internal/catalog"
	"github.com/amberfork/backend-resto/internal/offers"
	"github.com/amberfork/backend-resto/internal/promo"
)

type fixedOffers struct {
	offers []offers.Offer
}

func (f fixedOffers) ListActiveOffers(context.Context) ([]offers.Offer, error) {
	return f.offers, nil
}

type fixedQuotes struct {
	quotes map[uuid.UUID]catalog.Quote
}

func (f fixedQuotes) Quote(_ context.Context, productID uuid.UUID, _ []catalog.Selection) (catalog.Quote, error) {
	q, ok := f.quotes[productID]
	if !ok {
		return catalog.Quote{}, catalog.ErrProductNotFound
	}
	return q, nil
}

type noPromos struct{}

func (noPromos) Resolve(context.Context, []string, decimal.Decimal, decimal.Decimal, promo.Context) (promo.Resolution, error) {
	return promo.Resolution{}, nil
}

func (noPromos) Apply(context.Context, string, []string, decimal.Decimal, decimal.Decimal, promo.Context) (promo.ApplyResult, error) {
	return promo.ApplyResult{}, nil
}

func money(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newClaimRouter(t *testing.T, catalogOffers []offers.Offer, quotes map[uuid.UUID]catalog.Quote) (*chi.Mux, *cart.Service) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	svc := &cart.Service{
		Store:   &cart.Store{R: client, TTL: time.Hour},
		Catalog: fixedQuotes{quotes: quotes},
		Offers:  &offers.Enforcer{Q: fixedOffers{offers: catalogOffers}},
		Promos:  noPromos{},
	}
	h := &offers.Handler{Q: fixedOffers{offers: catalogOffers}, Carts: svc, Currency: "GBP"}
	r := chi.NewRouter()
	r.Get("/offers", h.List)
	r.Post("/carts/{id}/free-items", h.Claim)
	return r, svc
}

func TestListOffersShapesByVariant(t *testing.T) {
	spend := offers.Offer{
		ID: uuid.New(), Name: "Free side over 30", Variant: offers.FreeOnSpend,
		Active: true, Badge: "FREE SIDE", MinSpend: money("30.00"),
		EligibleProduct: []uuid.UUID{uuid.New()}, MaxQuantity: 1,
	}
	bogof := offers.Offer{
		ID: uuid.New(), Name: "Rolls 2-for-1", Variant: offers.Bogof,
		Active: true, Products: []uuid.UUID{uuid.New()},
	}
	r, _ := newClaimRouter(t, []offers.Offer{spend, bogof}, nil)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/offers", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	require.Contains(t, body.Data[0], "minSpend")
	require.NotContains(t, body.Data[0], "products")
	require.Contains(t, body.Data[1], "products")
}

func TestClaimHandler(t *testing.T) {
	mains, side := uuid.New(), uuid.New()
	offer := offers.Offer{
		ID:              uuid.New(),
		Variant:         offers.FreeOnSpend,
		Active:          true,
		MinSpend:        money("20.00"),
		EligibleProduct: []uuid.UUID{side},
		MaxQuantity:     1,
	}
	quotes := map[uuid.UUID]catalog.Quote{
		mains: {Name: "Feast Platter", UnitPrice: money("25.00"), Discountable: true},
		side:  {Name: "Garlic Bread", UnitPrice: money("4.00"), Discountable: true},
	}
	r, svc := newClaimRouter(t, []offers.Offer{offer}, quotes)
	ctx := t.Context()

	c, err := svc.Create(ctx, "", "collection")
	require.NoError(t, err)

	claim := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/carts/%s/free-items", c.ID), strings.NewReader(body))
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr
	}
	payload := fmt.Sprintf(`{"offerId":%q,"productId":%q}`, offer.ID, side)

	// nothing in the cart yet: condition not met
	rr := claim(payload)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), "CONDITION_NOT_MET")

	_, err = svc.AddItem(ctx, c.ID, mains, nil, 1, promo.Context{})
	require.NoError(t, err)

	rr = claim(payload)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = claim(payload)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), "MAX_CLAIMED")

	rr = claim(fmt.Sprintf(`{"offerId":%q,"productId":%q}`, uuid.New(), side))
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = claim(`{"offerId":"","productId":""}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
