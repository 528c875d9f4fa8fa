package cart_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/amberfork/backend-resto/internal/cart"
	"github.com/amberfork/backend-resto/internal/catalog"
	"github.com/amberfork/backend-resto/internal/promo"
)

func newTestRouter(svc *cart.Service) *chi.Mux {
	h := &cart.Handler{Svc: svc, Currency: "GBP"}
	r := chi.NewRouter()
	r.Post("/carts", h.Create)
	r.Get("/carts/{id}", h.Get)
	r.Post("/carts/{id}/items", h.AddItem)
	r.Patch("/carts/{id}/items/{lineId}", h.UpdateItem)
	r.Delete("/carts/{id}/items/{lineId}", h.RemoveItem)
	r.Post("/carts/{id}/promos", h.ApplyPromo)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	var decoded map[string]any
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &decoded))
	}
	return rr, decoded
}

func TestCreateCartHandler(t *testing.T) {
	svc := newTestService(t, nil, nil, nil)
	r := newTestRouter(svc)

	rr, body := doJSON(t, r, http.MethodPost, "/carts", `{"deliveryMethod":"Delivery","tableRef":"12"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	data := body["data"].(map[string]any)
	require.Equal(t, "delivery", data["deliveryMethod"])
	_, err := uuid.Parse(data["cartId"].(string))
	require.NoError(t, err)

	rr, _ = doJSON(t, r, http.MethodPost, "/carts", `{"deliveryMethod":"teleport"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAddItemHandler(t *testing.T) {
	product := uuid.New()
	quotes := map[uuid.UUID]catalog.Quote{
		product: {Name: "Margherita", UnitPrice: amount("9.50"), Discountable: true},
	}
	svc := newTestService(t, nil, quotes, nil)
	r := newTestRouter(svc)
	ctx := t.Context()

	c, err := svc.Create(ctx, "", "collection")
	require.NoError(t, err)

	rr, body := doJSON(t, r, http.MethodPost,
		fmt.Sprintf("/carts/%s/items", c.ID),
		fmt.Sprintf(`{"productId":%q,"qty":2}`, product))
	require.Equal(t, http.StatusOK, rr.Code)
	data := body["data"].(map[string]any)
	require.Equal(t, "GBP", data["currency"])
	totals := data["totals"].(map[string]any)
	require.Equal(t, "19", totals["total"])

	// validation failures name the offending field
	rr, body = doJSON(t, r, http.MethodPost, fmt.Sprintf("/carts/%s/items", c.ID), `{"qty":1}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	errBody := body["error"].(map[string]any)
	require.Equal(t, "VALIDATION", errBody["code"])

	// unknown product
	rr, body = doJSON(t, r, http.MethodPost,
		fmt.Sprintf("/carts/%s/items", c.ID),
		fmt.Sprintf(`{"productId":%q,"qty":1}`, uuid.New()))
	require.Equal(t, http.StatusNotFound, rr.Code)
	errBody = body["error"].(map[string]any)
	require.Equal(t, "NOT_FOUND", errBody["code"])
}

func TestUpdateAndRemoveItemHandler(t *testing.T) {
	product := uuid.New()
	quotes := map[uuid.UUID]catalog.Quote{
		product: {Name: "Burger", UnitPrice: amount("10.00"), Discountable: true},
	}
	svc := newTestService(t, nil, quotes, nil)
	r := newTestRouter(svc)
	ctx := t.Context()

	c, err := svc.Create(ctx, "", "collection")
	require.NoError(t, err)
	snap, err := svc.AddItem(ctx, c.ID, product, nil, 1, promo.Context{})
	require.NoError(t, err)
	lineID := snap.Cart.Lines[0].ID

	rr, _ := doJSON(t, r, http.MethodPatch,
		fmt.Sprintf("/carts/%s/items/%s", c.ID, lineID), `{"qty":3}`)
	require.Equal(t, http.StatusOK, rr.Code)

	// over the per-line cap
	rr, body := doJSON(t, r, http.MethodPatch,
		fmt.Sprintf("/carts/%s/items/%s", c.ID, lineID), `{"qty":99}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	errBody := body["error"].(map[string]any)
	require.Equal(t, "QUANTITY_LIMIT", errBody["code"])

	rr, _ = doJSON(t, r, http.MethodDelete,
		fmt.Sprintf("/carts/%s/items/%s", c.ID, lineID), "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr, body = doJSON(t, r, http.MethodDelete,
		fmt.Sprintf("/carts/%s/items/%s", c.ID, lineID), "")
	require.Equal(t, http.StatusNotFound, rr.Code)
	errBody = body["error"].(map[string]any)
	require.Equal(t, "NOT_FOUND", errBody["code"])
}

func TestApplyPromoHandlerRejectionIsOK(t *testing.T) {
	promos := stubPromos{apply: promo.ApplyResult{Success: false, ErrorMessage: "Invalid promo code"}}
	svc := newTestService(t, nil, nil, promos)
	r := newTestRouter(svc)

	c, err := svc.Create(t.Context(), "", "collection")
	require.NoError(t, err)

	rr, body := doJSON(t, r, http.MethodPost,
		fmt.Sprintf("/carts/%s/promos", c.ID), `{"code":"NOPE"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	data := body["data"].(map[string]any)
	require.Equal(t, false, data["success"])
	require.Equal(t, "Invalid promo code", data["errorMessage"])
}

func TestCartHandlerBadIDs(t *testing.T) {
	svc := newTestService(t, nil, nil, nil)
	r := newTestRouter(svc)

	rr, _ := doJSON(t, r, http.MethodGet, "/carts/not-a-uuid", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr, _ = doJSON(t, r, http.MethodGet, "/carts/"+uuid.NewString(), "")
	require.Equal(t, http.StatusNotFound, rr.Code)
}
