package tax

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/noah-isme/backend-levy/internal/common"
)

// Handler exposes the tax calculation endpoints.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service  *Service
	Validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	v := cfg.Validate
	if v == nil {
		v = validator.New()
	}
	return &Handler{service: cfg.Service, validate: v}
}

type calculateItem struct {
	ID          string `json:"id" validate:"required"`
	Name        string `json:"name"`
	Quantity    int64  `json:"quantity" validate:"min=0"`
	UnitPrice   int64  `json:"unitPrice" validate:"min=0"`
	TaxCategory string `json:"taxCategory"`
}

type calculateAddress struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zipCode"`
	Country string `json:"country"`
}

type calculateRequest struct {
	BusinessID        string           `json:"businessId" validate:"omitempty,uuid"`
	Items             []calculateItem  `json:"items" validate:"required,min=1,dive"`
	Address           calculateAddress `json:"address"`
	CustomerLocation  string           `json:"customerLocation"`
	CustomerTaxExempt bool             `json:"customerTaxExempt"`
	TransactionDate   *time.Time       `json:"transactionDate"`
}

// Calculate handles POST /api/v1/tax/calculate.
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r)
}

// Preview handles POST /api/v1/tax/preview. The calculation is identical to
// Calculate and equally stateless; the separate route mirrors the upstream
// transaction vs preview API split.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r)
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "tax service not configured", nil)
		return
	}

	var body calculateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid JSON body", nil)
		return
	}
	if err := h.validate.Struct(body); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid calculation request", validationDetails(err))
		return
	}

	businessID, err := resolveBusinessID(r, body.BusinessID)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "missing or malformed business id", nil)
		return
	}

	req := CalculationRequest{
		BusinessID: businessID,
		Address: Address{
			Street:  body.Address.Street,
			City:    body.Address.City,
			State:   body.Address.State,
			ZipCode: body.Address.ZipCode,
			Country: body.Address.Country,
		},
		CustomerLocation:  body.CustomerLocation,
		CustomerTaxExempt: body.CustomerTaxExempt,
	}
	if body.TransactionDate != nil {
		req.TransactionDate = *body.TransactionDate
	}
	req.Items = make([]LineItem, 0, len(body.Items))
	for _, it := range body.Items {
		req.Items = append(req.Items, LineItem{
			ID:          it.ID,
			Name:        it.Name,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			TaxCategory: it.TaxCategory,
		})
	}

	breakdown, err := h.service.Calculate(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": breakdown})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBusinessNotFound):
		common.JSONError(w, http.StatusNotFound, common.CodeEntityNotFound, "business not found", nil)
	case errors.Is(err, ErrInvalidLocation):
		common.JSONError(w, http.StatusUnprocessableEntity, common.CodeInvalidLocation, "sale location could not be resolved", nil)
	case errors.Is(err, ErrStoreUnavailable):
		w.Header().Set("Retry-After", "1")
		common.JSONError(w, http.StatusServiceUnavailable, common.CodeStoreUnavailable, "rate store temporarily unavailable, retry with backoff", nil)
	default:
		var appErr *common.AppError
		if errors.As(err, &appErr) {
			status := appErr.HTTPStatus
			if status == 0 {
				status = http.StatusInternalServerError
			}
			common.JSONError(w, status, appErr.Code, appErr.Message, appErr.Details)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "tax calculation failed", nil)
	}
}

func resolveBusinessID(r *http.Request, bodyID string) (uuid.UUID, error) {
	raw := strings.TrimSpace(r.Header.Get("X-Business-ID"))
	if raw == "" {
		raw = strings.TrimSpace(bodyID)
	}
	return uuid.Parse(raw)
}

func validationDetails(err error) any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return fields
}
