package offers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/amberfork/backend-resto/internal/cart"
	"github.com/amberfork/backend-resto/internal/catalog"
	"github.com/amberfork/backend-resto/internal/common"
	"github.com/amberfork/backend-resto/internal/promo"
)

// Handler serves the offer catalog and the free-item claim path.
type Handler struct {
	Q        Querier
	Carts    *cart.Service
	Currency string
}

// List returns active automatic offers for badge display.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Q == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "offer queries not configured", nil)
		return
	}
	active, err := h.Q.ListActiveOffers(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to load offers", nil)
		return
	}
	out := make([]map[string]any, 0, len(active))
	for _, o := range active {
		entry := map[string]any{
			"id":    o.ID,
			"name":  o.Name,
			"type":  o.Variant,
			"badge": o.Badge,
		}
		switch o.Variant {
		case FreeOnSpend:
			entry["minSpend"] = o.MinSpend
			entry["eligibleProducts"] = o.EligibleProduct
			entry["maxQuantity"] = o.MaxQuantity
		case BuyXGetFree:
			entry["triggerProducts"] = o.TriggerProducts
			entry["triggerQuantity"] = o.TriggerQuantity
		case Bogof:
			entry["products"] = o.Products
		}
		out = append(out, entry)
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

// Claim adds a claim-based free item to the cart.
func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	if h.Carts == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	cartID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid cart id", nil)
		return
	}
	var payload struct {
		OfferID    string              `json:"offerId"`
		ProductID  string              `json:"productId"`
		Selections []catalog.Selection `json:"selections"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	offerID, err := uuid.Parse(payload.OfferID)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "offerId is required", nil)
		return
	}
	productID, err := uuid.Parse(payload.ProductID)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "productId is required", nil)
		return
	}
	snap, err := h.Carts.ClaimFreeItem(r.Context(), cartID, offerID, productID, payload.Selections, promo.Context{})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"cart":     snap.Cart,
		"totals":   snap.Totals,
		"notices":  snap.Notices,
		"currency": h.Currency,
	}})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cart.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "cart not found", nil)
	case errors.Is(err, ErrOfferNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "offer not found", nil)
	case errors.Is(err, ErrNotEligible):
		common.JSONError(w, http.StatusUnprocessableEntity, "NOT_ELIGIBLE", "product is not eligible for this offer", nil)
	case errors.Is(err, ErrConditionNotMet):
		common.JSONError(w, http.StatusUnprocessableEntity, "CONDITION_NOT_MET", "the offer condition is not met", nil)
	case errors.Is(err, ErrMaxClaimed):
		common.JSONError(w, http.StatusUnprocessableEntity, "MAX_CLAIMED", "the free item limit for this offer is reached", nil)
	case errors.Is(err, catalog.ErrProductNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product not found", nil)
	case errors.Is(err, catalog.ErrInvalidSelection):
		common.JSONError(w, http.StatusBadRequest, "INVALID_SELECTION", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to process claim", nil)
	}
}
