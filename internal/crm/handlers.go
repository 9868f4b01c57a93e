package crm

import (
	"net/http"

	"github.com/agromaq/crm-api/internal/auth"
	"github.com/agromaq/crm-api/internal/common"
)

// Handler exposes the CRM picker lists over HTTP.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func requirePrincipal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "No autorizado", nil)
	}
	return p, ok
}

func searchParam(r *http.Request) string {
	q := r.URL.Query()
	if v := q.Get("q"); v != "" {
		return v
	}
	return q.Get("search")
}

func (h *Handler) ListContacts(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	page, limit := common.ParsePagination(r, 50, 200)
	contacts, total, err := h.svc.ListContacts(r.Context(), p, searchParam(r), limit, (page-1)*limit)
	if err != nil {
		common.JSONAppError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": contacts,
		"meta": common.NewListMeta(page, limit, total),
	})
}

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	accounts, err := h.svc.ListAccounts(r.Context(), p, searchParam(r))
	if err != nil {
		common.JSONAppError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": accounts})
}

func (h *Handler) ListOpportunities(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	opportunities, err := h.svc.ListOpportunities(r.Context(), p, searchParam(r))
	if err != nil {
		common.JSONAppError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": opportunities})
}
