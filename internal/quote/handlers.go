package quote

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/agromaq/crm-api/internal/auth"
	"github.com/agromaq/crm-api/internal/common"
)

// Handler exposes the quote lifecycle over HTTP.
type Handler struct {
	svc      *Service
	validate *validator.Validate
	logger   zerolog.Logger
}

func NewHandler(svc *Service, validate *validator.Validate, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, validate: validate, logger: logger}
}

// Routes mounts the quote endpoints on a fresh router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Route("/{quoteID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Patch("/", h.Update)
		r.Delete("/", h.Delete)
	})
	return r
}

type itemRequest struct {
	ProductID   *string  `json:"productId"`
	Description string   `json:"description" validate:"required"`
	Quantity    float64  `json:"quantity" validate:"gt=0"`
	UnitPrice   float64  `json:"unitPrice" validate:"gte=0"`
	Discount    *float64 `json:"discount" validate:"omitempty,gte=0,lte=100"`
}

func (i itemRequest) raw() RawItem {
	return RawItem{
		ProductID:   i.ProductID,
		Description: i.Description,
		Quantity:    i.Quantity,
		UnitPrice:   i.UnitPrice,
		Discount:    i.Discount,
	}
}

func rawItems(reqs []itemRequest) []RawItem {
	raw := make([]RawItem, 0, len(reqs))
	for _, it := range reqs {
		raw = append(raw, it.raw())
	}
	return raw
}

type createRequest struct {
	Title         string        `json:"title" validate:"required,max=200"`
	Status        *Status       `json:"status" validate:"omitempty,oneof=BORRADOR ENVIADA NEGOCIACION ACEPTADA PERDIDA"`
	Discount      *float64      `json:"discount" validate:"omitempty,gte=0,lte=100"`
	TaxRate       *float64      `json:"taxRate" validate:"omitempty,gte=0,lte=100"`
	Notes         *string       `json:"notes"`
	ContactID     *string       `json:"contactId"`
	AccountID     *string       `json:"accountId"`
	OpportunityID *string       `json:"opportunityId"`
	Items         []itemRequest `json:"items" validate:"required,min=1,dive"`
}

// relationField distinguishes an omitted relation key from an explicit
// null or empty value, which clears the link.
type relationField struct {
	present bool
	id      *string
}

func (f *relationField) UnmarshalJSON(b []byte) error {
	f.present = true
	if string(b) == "null" {
		return nil
	}
	return json.Unmarshal(b, &f.id)
}

func (f relationField) input() RelationInput {
	return RelationInput{Present: f.present, ID: f.id}
}

type updateRequest struct {
	Title         *string        `json:"title" validate:"omitempty,max=200"`
	Status        *Status        `json:"status" validate:"omitempty,oneof=BORRADOR ENVIADA NEGOCIACION ACEPTADA PERDIDA"`
	Discount      *float64       `json:"discount" validate:"omitempty,gte=0,lte=100"`
	TaxRate       *float64       `json:"taxRate" validate:"omitempty,gte=0,lte=100"`
	Notes         *string        `json:"notes"`
	ContactID     relationField  `json:"contactId"`
	AccountID     relationField  `json:"accountId"`
	OpportunityID relationField  `json:"opportunityId"`
	Items         *[]itemRequest `json:"items" validate:"omitempty,min=1,dive"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "No autorizado", nil)
		return
	}

	page, limit := common.ParsePagination(r, 10, 100)
	query := r.URL.Query()
	in := ListInput{
		Search:        query.Get("q"),
		Status:        query.Get("status"),
		ContactID:     query.Get("contactId"),
		AccountID:     query.Get("accountId"),
		OpportunityID: query.Get("opportunityId"),
		From:          parseTimeParam(query.Get("from")),
		To:            parseTimeParam(query.Get("to")),
		Limit:         limit,
		Offset:        (page - 1) * limit,
	}

	quotes, total, err := h.svc.List(r.Context(), p, in)
	if err != nil {
		common.JSONAppError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": quotes,
		"meta": common.NewListMeta(page, limit, total),
	})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "No autorizado", nil)
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "cuerpo JSON invalido", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "datos invalidos", validationDetails(err))
		return
	}

	quote, err := h.svc.Create(r.Context(), p, CreateInput{
		Title:         req.Title,
		Status:        req.Status,
		Discount:      req.Discount,
		TaxRate:       req.TaxRate,
		Notes:         req.Notes,
		ContactID:     req.ContactID,
		AccountID:     req.AccountID,
		OpportunityID: req.OpportunityID,
		Items:         rawItems(req.Items),
	})
	if err != nil {
		common.JSONAppError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": quote})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "No autorizado", nil)
		return
	}

	quote, err := h.svc.Get(r.Context(), p, chi.URLParam(r, "quoteID"))
	if err != nil {
		common.JSONAppError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": quote})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "No autorizado", nil)
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "cuerpo JSON invalido", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "datos invalidos", validationDetails(err))
		return
	}

	in := UpdateInput{
		Title:       req.Title,
		Status:      req.Status,
		Discount:    req.Discount,
		TaxRate:     req.TaxRate,
		Notes:       req.Notes,
		Contact:     req.ContactID.input(),
		Account:     req.AccountID.input(),
		Opportunity: req.OpportunityID.input(),
	}
	if req.Items != nil {
		in.ItemsPresent = true
		in.Items = rawItems(*req.Items)
	}

	quote, err := h.svc.Update(r.Context(), p, chi.URLParam(r, "quoteID"), in)
	if err != nil {
		common.JSONAppError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": quote})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "No autorizado", nil)
		return
	}

	if err := h.svc.Delete(r.Context(), p, chi.URLParam(r, "quoteID")); err != nil {
		common.JSONAppError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]bool{"success": true}})
}

func validationDetails(err error) any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	details := make([]map[string]string, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, map[string]string{"field": fe.Namespace(), "rule": fe.Tag()})
	}
	return details
}

// parseTimeParam accepts RFC 3339 timestamps or bare dates.
func parseTimeParam(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return &t
	}
	return nil
}
