package rates

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	dbgen "github.com/noah-isme/backend-levy/internal/db/gen"
	"github.com/noah-isme/backend-levy/internal/resilience"
	"github.com/noah-isme/backend-levy/internal/tax"
)

type stubQuerier struct {
	rates      []dbgen.TaxRate
	ratesErr   error
	business   dbgen.Business
	bizErr     error
	exempt     []string
	exemptErr  error
	inserted   []dbgen.InsertTaxRateParams
	insertErr  error
	lastLookup dbgen.FindActiveTaxRatesParams
}

func (s *stubQuerier) FindActiveTaxRates(_ context.Context, arg dbgen.FindActiveTaxRatesParams) ([]dbgen.TaxRate, error) {
	s.lastLookup = arg
	if s.ratesErr != nil {
		return nil, s.ratesErr
	}
	return s.rates, nil
}

func (s *stubQuerier) InsertTaxRate(_ context.Context, arg dbgen.InsertTaxRateParams) (dbgen.TaxRate, error) {
	if s.insertErr != nil {
		return dbgen.TaxRate{}, s.insertErr
	}
	s.inserted = append(s.inserted, arg)
	return dbgen.TaxRate{
		ID:               pgtype.UUID{Bytes: uuid.New(), Valid: true},
		Jurisdiction:     arg.Jurisdiction,
		JurisdictionCode: arg.JurisdictionCode,
		RateBps:          arg.RateBps,
		Categories:       arg.Categories,
		EffectiveFrom:    arg.EffectiveFrom,
		EffectiveTo:      arg.EffectiveTo,
		Active:           arg.Active,
		PublishedAt:      pgtype.Timestamptz{Time: time.Now(), Valid: true},
	}, nil
}

func (s *stubQuerier) DeactivateTaxRate(context.Context, pgtype.UUID) error { return nil }

func (s *stubQuerier) ListTaxRates(context.Context, dbgen.ListTaxRatesParams) ([]dbgen.TaxRate, error) {
	return s.rates, nil
}

func (s *stubQuerier) CountTaxRates(context.Context, dbgen.CountTaxRatesParams) (int64, error) {
	return int64(len(s.rates)), nil
}

func (s *stubQuerier) GetBusiness(context.Context, pgtype.UUID) (dbgen.Business, error) {
	if s.bizErr != nil {
		return dbgen.Business{}, s.bizErr
	}
	return s.business, nil
}

func (s *stubQuerier) ListExemptCategories(context.Context, string) ([]string, error) {
	if s.exemptErr != nil {
		return nil, s.exemptErr
	}
	return s.exempt, nil
}

func taxRateRow(code string, bps int64) dbgen.TaxRate {
	return dbgen.TaxRate{
		ID:               pgtype.UUID{Bytes: uuid.New(), Valid: true},
		Jurisdiction:     "state",
		JurisdictionCode: code,
		RateBps:          bps,
		EffectiveFrom:    pgtype.Timestamptz{Time: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), Valid: true},
		Active:           true,
		PublishedAt:      pgtype.Timestamptz{Time: time.Date(2022, 12, 1, 0, 0, 0, 0, time.UTC), Valid: true},
	}
}

func TestFindActiveRatesMapsRows(t *testing.T) {
	q := &stubQuerier{rates: []dbgen.TaxRate{taxRateRow("CA", 875)}}
	store := &Store{Q: q}

	asOf := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	records, err := store.FindActiveRates(context.Background(), "CA", "Food", asOf)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, tax.JurisdictionState, records[0].Jurisdiction)
	require.Equal(t, tax.Bps(875), records[0].RateBps)
	require.Nil(t, records[0].EffectiveTo)

	require.Equal(t, "food", q.lastLookup.Category, "categories are normalized before hitting the store")
	require.Equal(t, asOf, q.lastLookup.AsOf.Time)
}

func TestGetBusinessNotFound(t *testing.T) {
	store := &Store{Q: &stubQuerier{bizErr: pgx.ErrNoRows}}
	_, err := store.GetBusiness(context.Background(), uuid.New())
	require.ErrorIs(t, err, tax.ErrBusinessNotFound)
}

func TestStoreTimeoutIsTransient(t *testing.T) {
	store := &Store{Q: &stubQuerier{ratesErr: context.DeadlineExceeded}}
	_, err := store.FindActiveRates(context.Background(), "CA", "general", time.Now())
	require.ErrorIs(t, err, tax.ErrStoreUnavailable)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "dial tcp: i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestStoreNetworkFailureIsTransient(t *testing.T) {
	store := &Store{Q: &stubQuerier{ratesErr: timeoutErr{}}}
	_, err := store.FindActiveRates(context.Background(), "CA", "general", time.Now())
	require.ErrorIs(t, err, tax.ErrStoreUnavailable)
}

func TestStoreCallerCancellationPassesThrough(t *testing.T) {
	store := &Store{Q: &stubQuerier{ratesErr: context.Canceled}}
	_, err := store.FindActiveRates(context.Background(), "CA", "general", time.Now())
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, tax.ErrStoreUnavailable)
}

func TestStoreOpenBreakerIsTransient(t *testing.T) {
	breaker := resilience.NewBreaker(1, 0.5, time.Hour)
	ctx := context.Background()
	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.False(t, breaker.Allow(ctx))

	store := &Store{Q: &stubQuerier{rates: []dbgen.TaxRate{taxRateRow("CA", 875)}}, Breaker: breaker}
	_, err := store.FindActiveRates(ctx, "CA", "general", time.Now())
	require.ErrorIs(t, err, tax.ErrStoreUnavailable)
}

func TestStoreDataErrorsAreNotTransient(t *testing.T) {
	boom := errors.New("syntax error")
	store := &Store{Q: &stubQuerier{ratesErr: boom}}
	_, err := store.FindActiveRates(context.Background(), "CA", "general", time.Now())
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, tax.ErrStoreUnavailable)
}
