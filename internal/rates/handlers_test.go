package rates

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	dbgen "github.com/noah-isme/backend-levy/internal/db/gen"
)

func newAdminRouter(t *testing.T, q Querier) *chi.Mux {
	t.Helper()
	admin, _, _ := newAdminFixture(t, q)
	handler := NewHandler(admin, nil)
	r := chi.NewRouter()
	r.Get("/admin/rates", handler.List)
	r.Post("/admin/rates", handler.Create)
	r.Delete("/admin/rates/{id}", handler.Deactivate)
	return r
}

func TestCreateRate(t *testing.T) {
	q := &stubQuerier{}
	router := newAdminRouter(t, q)

	body := `{
		"jurisdiction": "state",
		"jurisdictionCode": "ca",
		"rateBps": 875,
		"categories": ["food"],
		"effectiveFrom": "2024-07-01T00:00:00Z"
	}`
	req := httptest.NewRequest(http.MethodPost, "/admin/rates", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp struct {
		Data struct {
			JurisdictionCode string `json:"jurisdictionCode"`
			RateBps          int64  `json:"rateBps"`
			Active           bool   `json:"active"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "CA", resp.Data.JurisdictionCode)
	require.Equal(t, int64(875), resp.Data.RateBps)
	require.True(t, resp.Data.Active)
	require.Len(t, q.inserted, 1)
}

func TestCreateRateRejectsBadInput(t *testing.T) {
	router := newAdminRouter(t, &stubQuerier{})

	cases := []string{
		`{broken`,
		`{"jurisdictionCode": "CA"}`,
		`{"jurisdiction": "state", "jurisdictionCode": "CA", "rateBps": -1, "effectiveFrom": "2024-07-01T00:00:00Z"}`,
	}
	for _, body := range cases {
		req := httptest.NewRequest(http.MethodPost, "/admin/rates", strings.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestCreateRateStoreUnavailable(t *testing.T) {
	q := &stubQuerier{insertErr: context.DeadlineExceeded}
	router := newAdminRouter(t, q)

	body := `{"jurisdiction": "state", "jurisdictionCode": "CA", "rateBps": 875, "effectiveFrom": "2024-07-01T00:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/admin/rates", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestListRatesEndpoint(t *testing.T) {
	q := &stubQuerier{rates: []dbgen.TaxRate{taxRateRow("CA", 875), taxRateRow("CA", 700)}}
	router := newAdminRouter(t, q)

	req := httptest.NewRequest(http.MethodGet, "/admin/rates?jurisdictionCode=CA", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data       []json.RawMessage `json:"data"`
		Pagination struct {
			Page       int `json:"page"`
			TotalItems int `json:"total_items"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	require.Equal(t, 1, resp.Pagination.Page)
	require.Equal(t, 2, resp.Pagination.TotalItems)
}

func TestDeactivateRateEndpoint(t *testing.T) {
	router := newAdminRouter(t, &stubQuerier{})

	id := uuid.New()
	req := httptest.NewRequest(http.MethodDelete, "/admin/rates/"+id.String()+"?jurisdictionCode=CA", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	badReq := httptest.NewRequest(http.MethodDelete, "/admin/rates/not-a-uuid", nil)
	badRec := httptest.NewRecorder()
	router.ServeHTTP(badRec, badReq)
	require.Equal(t, http.StatusBadRequest, badRec.Code)
}
