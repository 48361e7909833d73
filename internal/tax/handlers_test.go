package tax

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T, rates *fakeRates) *Handler {
	t.Helper()
	svc := newTestService(t, rates, fakeExemptions{"CA": {"food"}}, NopSink{})
	return NewHandler(HandlerConfig{Service: svc})
}

func postCalculate(t *testing.T, h *Handler, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tax/calculate", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.Calculate(rec, req)
	return rec
}

func TestHandlerCalculateOK(t *testing.T) {
	h := newTestHandler(t, &fakeRates{byCode: map[string][]RateRecord{"CA": {stateRate("CA", 875)}}})

	body := fmt.Sprintf(`{
		"businessId": %q,
		"items": [
			{"id": "a", "quantity": 1, "unitPrice": 2000},
			{"id": "b", "quantity": 1, "unitPrice": 1500}
		],
		"address": {"city": "San Francisco", "state": "CA", "zipCode": "94105", "country": "US"}
	}`, bizCA.ID)

	rec := postCalculate(t, h, body, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data Breakdown `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, Money(3500), resp.Data.Subtotal)
	require.Equal(t, Money(306), resp.Data.TotalTax)
	require.Equal(t, Money(3806), resp.Data.GrandTotal)
	require.Len(t, resp.Data.Items, 2)
	require.Len(t, resp.Data.Jurisdictions, 1)
}

func TestHandlerBusinessIDFromHeader(t *testing.T) {
	h := newTestHandler(t, &fakeRates{byCode: map[string][]RateRecord{"CA": {stateRate("CA", 875)}}})

	body := `{
		"items": [{"id": "a", "quantity": 1, "unitPrice": 1000}],
		"address": {"state": "CA", "country": "US"}
	}`
	rec := postCalculate(t, h, body, map[string]string{"X-Business-ID": bizCA.ID.String()})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlerRejectsMalformedBody(t *testing.T) {
	h := newTestHandler(t, &fakeRates{})

	rec := postCalculate(t, h, `{not json`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postCalculate(t, h, `{"items": []}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code, "at least one item is required")

	rec = postCalculate(t, h, `{"items": [{"id": "a", "quantity": 1, "unitPrice": 100}]}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code, "business id is required somewhere")
}

func TestHandlerUnknownBusiness(t *testing.T) {
	h := newTestHandler(t, &fakeRates{byCode: map[string][]RateRecord{"CA": {stateRate("CA", 875)}}})

	body := `{
		"items": [{"id": "a", "quantity": 1, "unitPrice": 1000}],
		"address": {"state": "CA", "country": "US"}
	}`
	rec := postCalculate(t, h, body, map[string]string{"X-Business-ID": "00000000-0000-0000-0000-000000000001"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerInvalidLocation(t *testing.T) {
	h := newTestHandler(t, &fakeRates{})

	body := fmt.Sprintf(`{
		"businessId": %q,
		"items": [{"id": "a", "quantity": 1, "unitPrice": 1000}],
		"customerLocation": "???"
	}`, bizCA.ID)
	rec := postCalculate(t, h, body, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandlerStoreUnavailable(t *testing.T) {
	h := newTestHandler(t, &fakeRates{err: ErrStoreUnavailable})

	body := fmt.Sprintf(`{
		"businessId": %q,
		"items": [{"id": "a", "quantity": 1, "unitPrice": 1000}],
		"address": {"state": "CA", "country": "US"}
	}`, bizCA.ID)
	rec := postCalculate(t, h, body, nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestHandlerPreviewMatchesCalculate(t *testing.T) {
	h := newTestHandler(t, &fakeRates{byCode: map[string][]RateRecord{"CA": {stateRate("CA", 875)}}})

	body := fmt.Sprintf(`{
		"businessId": %q,
		"items": [{"id": "a", "quantity": 2, "unitPrice": 750}],
		"address": {"state": "CA", "country": "US"}
	}`, bizCA.ID)

	calc := postCalculate(t, h, body, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tax/preview", bytes.NewBufferString(body))
	prev := httptest.NewRecorder()
	h.Preview(prev, req)

	require.Equal(t, http.StatusOK, calc.Code)
	require.Equal(t, http.StatusOK, prev.Code)
	require.JSONEq(t, calc.Body.String(), prev.Body.String())
}
