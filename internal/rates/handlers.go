package rates

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/noah-isme/backend-levy/internal/common"
	"github.com/noah-isme/backend-levy/internal/tax"
)

// Handler exposes the admin rate catalog endpoints.
type Handler struct {
	admin    *Admin
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(admin *Admin, validate *validator.Validate) *Handler {
	if validate == nil {
		validate = validator.New()
	}
	return &Handler{admin: admin, validate: validate}
}

type upsertRateRequest struct {
	Jurisdiction     string     `json:"jurisdiction" validate:"required"`
	JurisdictionCode string     `json:"jurisdictionCode" validate:"required"`
	RateBps          int64      `json:"rateBps" validate:"min=0"`
	Categories       []string   `json:"categories"`
	EffectiveFrom    time.Time  `json:"effectiveFrom" validate:"required"`
	EffectiveTo      *time.Time `json:"effectiveTo"`
}

type rateResponse struct {
	ID               string     `json:"id"`
	Jurisdiction     string     `json:"jurisdiction"`
	JurisdictionCode string     `json:"jurisdictionCode"`
	RateBps          int64      `json:"rateBps"`
	Categories       []string   `json:"categories"`
	EffectiveFrom    time.Time  `json:"effectiveFrom"`
	EffectiveTo      *time.Time `json:"effectiveTo,omitempty"`
	Active           bool       `json:"active"`
	PublishedAt      time.Time  `json:"publishedAt"`
}

func toRateResponse(record tax.RateRecord) rateResponse {
	categories := record.Categories
	if categories == nil {
		categories = []string{}
	}
	return rateResponse{
		ID:               record.ID.String(),
		Jurisdiction:     string(record.Jurisdiction),
		JurisdictionCode: record.JurisdictionCode,
		RateBps:          int64(record.RateBps),
		Categories:       categories,
		EffectiveFrom:    record.EffectiveFrom,
		EffectiveTo:      record.EffectiveTo,
		Active:           record.Active,
		PublishedAt:      record.PublishedAt,
	}
}

// Create handles POST /api/v1/admin/rates.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var body upsertRateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid JSON body", nil)
		return
	}
	if err := h.validate.Struct(body); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid rate record", nil)
		return
	}
	jurisdiction := tax.ParseJurisdictionType(body.Jurisdiction)
	record, err := h.admin.UpsertRate(r.Context(), UpsertRateInput{
		Jurisdiction:     jurisdiction,
		JurisdictionCode: body.JurisdictionCode,
		RateBps:          tax.Bps(body.RateBps),
		Categories:       body.Categories,
		EffectiveFrom:    body.EffectiveFrom,
		EffectiveTo:      body.EffectiveTo,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": toRateResponse(record)})
}

// Deactivate handles DELETE /api/v1/admin/rates/{id}.
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "malformed rate id", nil)
		return
	}
	code := strings.TrimSpace(r.URL.Query().Get("jurisdictionCode"))
	if err := h.admin.DeactivateRate(r.Context(), id, code); err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]string{"id": id.String(), "status": "deactivated"}})
}

// List handles GET /api/v1/admin/rates.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := common.ParsePagination(r, 20)
	records, total, err := h.admin.ListRates(
		r.Context(),
		r.URL.Query().Get("jurisdictionCode"),
		r.URL.Query().Get("category"),
		page,
		perPage,
	)
	if err != nil {
		h.writeError(w, err)
		return
	}
	items := make([]rateResponse, 0, len(records))
	for _, record := range records {
		items = append(items, toRateResponse(record))
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": items,
		"pagination": common.Pagination{
			Page:       page,
			PerPage:    perPage,
			TotalItems: int(total),
		},
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidRate):
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, err.Error(), nil)
	case errors.Is(err, tax.ErrStoreUnavailable):
		w.Header().Set("Retry-After", "1")
		common.JSONError(w, http.StatusServiceUnavailable, common.CodeStoreUnavailable, "rate store temporarily unavailable", nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "rate catalog operation failed", nil)
	}
}
