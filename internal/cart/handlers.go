package cart

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/amberfork/backend-resto/internal/catalog"
	"github.com/amberfork/backend-resto/internal/common"
	"github.com/amberfork/backend-resto/internal/delivery"
	"github.com/amberfork/backend-resto/internal/promo"
)

// Handler wires the cart service to HTTP.
type Handler struct {
	Svc      *Service
	Currency string
}

// Create opens a new session cart.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	var payload struct {
		TableRef       string `json:"tableRef"`
		DeliveryMethod string `json:"deliveryMethod"`
	}
	_ = json.NewDecoder(r.Body).Decode(&payload)
	method := delivery.MethodCollection
	if strings.TrimSpace(payload.DeliveryMethod) != "" {
		parsed, err := delivery.ParseMethod(payload.DeliveryMethod)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid delivery method", nil)
			return
		}
		method = parsed
	}
	c, err := h.Svc.Create(r.Context(), strings.TrimSpace(payload.TableRef), string(method))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": map[string]any{
		"cartId":         c.ID,
		"deliveryMethod": c.DeliveryMethod,
	}})
}

// Get returns the reconciled cart with preview totals.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.cartID(w, r)
	if !ok {
		return
	}
	snap, err := h.Svc.Snapshot(r.Context(), id, promoContext(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSnapshot(w, http.StatusOK, snap)
}

// AddItem adds a configured product to the cart.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.cartID(w, r)
	if !ok {
		return
	}
	var payload struct {
		ProductID  string              `json:"productId" validate:"required,uuid"`
		Qty        int                 `json:"qty" validate:"required,gt=0"`
		Selections []catalog.Selection `json:"selections"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := common.ValidateStruct(payload); err != nil {
		h.writeError(w, err)
		return
	}
	productID, err := uuid.Parse(payload.ProductID)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "productId is required", nil)
		return
	}
	snap, err := h.Svc.AddItem(r.Context(), id, productID, payload.Selections, payload.Qty, promoContext(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSnapshot(w, http.StatusOK, snap)
}

// UpdateItem changes a line's quantity.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.cartID(w, r)
	if !ok {
		return
	}
	lineID, err := uuid.Parse(chi.URLParam(r, "lineId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid line id", nil)
		return
	}
	var payload struct {
		Qty int `json:"qty" validate:"required,gt=0"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := common.ValidateStruct(payload); err != nil {
		h.writeError(w, err)
		return
	}
	snap, err := h.Svc.UpdateItemQty(r.Context(), id, lineID, payload.Qty, promoContext(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSnapshot(w, http.StatusOK, snap)
}

// RemoveItem deletes a line.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.cartID(w, r)
	if !ok {
		return
	}
	lineID, err := uuid.Parse(chi.URLParam(r, "lineId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid line id", nil)
		return
	}
	snap, err := h.Svc.RemoveItem(r.Context(), id, lineID, promoContext(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSnapshot(w, http.StatusOK, snap)
}

// Clear empties the cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	id, ok := h.cartID(w, r)
	if !ok {
		return
	}
	snap, err := h.Svc.ClearItems(r.Context(), id, promoContext(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSnapshot(w, http.StatusOK, snap)
}

// ApplyPromo runs the interactive code apply path. Rejections come back with
// a 200 and a success=false envelope carrying the user-facing message.
func (h *Handler) ApplyPromo(w http.ResponseWriter, r *http.Request) {
	id, ok := h.cartID(w, r)
	if !ok {
		return
	}
	var payload struct {
		Code string `json:"code" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := common.ValidateStruct(payload); err != nil {
		h.writeError(w, err)
		return
	}
	snap, result, err := h.Svc.ApplyPromo(r.Context(), id, payload.Code, promoContext(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"success":      result.Success,
		"errorMessage": result.ErrorMessage,
		"cart":         snap.Cart,
		"totals":       snap.Totals,
		"notices":      snap.Notices,
		"currency":     h.Currency,
	}})
}

// RemovePromo drops a code from the cart.
func (h *Handler) RemovePromo(w http.ResponseWriter, r *http.Request) {
	id, ok := h.cartID(w, r)
	if !ok {
		return
	}
	code := chi.URLParam(r, "code")
	snap, err := h.Svc.RemovePromo(r.Context(), id, code, promoContext(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSnapshot(w, http.StatusOK, snap)
}

// QuoteDelivery switches the fulfilment method and quotes the fee.
func (h *Handler) QuoteDelivery(w http.ResponseWriter, r *http.Request) {
	id, ok := h.cartID(w, r)
	if !ok {
		return
	}
	var payload struct {
		Method   string          `json:"method"`
		Postcode string          `json:"postcode"`
		Tip      decimal.Decimal `json:"tip"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	method, err := delivery.ParseMethod(payload.Method)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid delivery method", nil)
		return
	}
	snap, err := h.Svc.SetDelivery(r.Context(), id, string(method), strings.TrimSpace(payload.Postcode), payload.Tip, promoContext(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSnapshot(w, http.StatusOK, snap)
}

func (h *Handler) cartID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid cart id", nil)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeSnapshot(w http.ResponseWriter, status int, snap Snapshot) {
	common.JSON(w, status, map[string]any{"data": map[string]any{
		"cart":     snap.Cart,
		"totals":   snap.Totals,
		"notices":  snap.Notices,
		"currency": h.Currency,
	}})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if err == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unknown error", nil)
		return
	}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusBadRequest
		}
		code := appErr.Code
		if code == "" {
			code = "BAD_REQUEST"
		}
		common.JSONError(w, status, code, appErr.Message, appErr.Details)
		return
	}
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "cart not found", nil)
	case errors.Is(err, ErrLineNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "cart line not found", nil)
	case errors.Is(err, ErrQuantityLimit):
		common.JSONError(w, http.StatusBadRequest, "QUANTITY_LIMIT", err.Error(), nil)
	case errors.Is(err, ErrFreeLineImmutable):
		common.JSONError(w, http.StatusBadRequest, "FREE_LINE_MANAGED", err.Error(), nil)
	case errors.Is(err, catalog.ErrProductNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product not found", nil)
	case errors.Is(err, catalog.ErrInvalidSelection):
		common.JSONError(w, http.StatusBadRequest, "INVALID_SELECTION", err.Error(), nil)
	case errors.Is(err, delivery.ErrOutsideZone), errors.Is(err, delivery.ErrMissingAddress):
		common.JSONError(w, http.StatusUnprocessableEntity, "DELIVERY_UNAVAILABLE", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to process cart", nil)
	}
}

// promoContext collects the request-scoped identity facts promo resolution
// runs against. Guests simply omit both values.
func promoContext(r *http.Request) promo.Context {
	pctx := promo.Context{
		Email: strings.TrimSpace(r.Header.Get("X-Customer-Email")),
	}
	if raw := strings.TrimSpace(r.Header.Get("X-Customer-Id")); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			pctx.CustomerID = &id
		}
	}
	return pctx
}
