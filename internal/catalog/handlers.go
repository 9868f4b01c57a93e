package catalog

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agromaq/crm-api/internal/auth"
	"github.com/agromaq/crm-api/internal/common"
)

// Handler exposes the product catalog over HTTP.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Routes mounts the catalog endpoints on a fresh router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/{productID}", h.Get)
	return r
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "No autorizado", nil)
		return
	}

	products, err := h.svc.List(r.Context(), p, r.URL.Query().Get("q"))
	if err != nil {
		common.JSONAppError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": products})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "No autorizado", nil)
		return
	}

	product, err := h.svc.Get(r.Context(), p, chi.URLParam(r, "productID"))
	if err != nil {
		common.JSONAppError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": product})
}
