package catalog

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/amberfork/backend-resto/internal/common"
)

// Lister enumerates the orderable menu.
type Lister interface {
	ListActiveProducts(ctx context.Context) ([]Product, error)
}

// Handler serves the menu catalog.
type Handler struct {
	Svc  *Service
	List Lister
}

// Menu returns all active products with their option groups.
func (h *Handler) Menu(w http.ResponseWriter, r *http.Request) {
	if h.List == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog queries not configured", nil)
		return
	}
	products, err := h.List.ListActiveProducts(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to load menu", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": products})
}

// Get returns one product.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid product id", nil)
		return
	}
	product, err := h.Svc.Product(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to load product", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": product})
}
