package ingest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgtype"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	dbgen "github.com/noah-isme/backend-levy/internal/db/gen"
	"github.com/noah-isme/backend-levy/internal/lock"
	"github.com/noah-isme/backend-levy/internal/rates"
	"github.com/noah-isme/backend-levy/internal/tax"
)

type recordingQuerier struct {
	inserted []dbgen.InsertTaxRateParams
}

func (r *recordingQuerier) FindActiveTaxRates(context.Context, dbgen.FindActiveTaxRatesParams) ([]dbgen.TaxRate, error) {
	return nil, nil
}

func (r *recordingQuerier) InsertTaxRate(_ context.Context, arg dbgen.InsertTaxRateParams) (dbgen.TaxRate, error) {
	r.inserted = append(r.inserted, arg)
	return dbgen.TaxRate{
		Jurisdiction:     arg.Jurisdiction,
		JurisdictionCode: arg.JurisdictionCode,
		RateBps:          arg.RateBps,
		Categories:       arg.Categories,
		EffectiveFrom:    arg.EffectiveFrom,
		EffectiveTo:      arg.EffectiveTo,
		Active:           arg.Active,
	}, nil
}

func (r *recordingQuerier) DeactivateTaxRate(context.Context, pgtype.UUID) error { return nil }

func (r *recordingQuerier) ListTaxRates(context.Context, dbgen.ListTaxRatesParams) ([]dbgen.TaxRate, error) {
	return nil, nil
}

func (r *recordingQuerier) CountTaxRates(context.Context, dbgen.CountTaxRatesParams) (int64, error) {
	return 0, nil
}

func (r *recordingQuerier) GetBusiness(context.Context, pgtype.UUID) (dbgen.Business, error) {
	return dbgen.Business{}, nil
}

func (r *recordingQuerier) ListExemptCategories(context.Context, string) ([]string, error) {
	return nil, nil
}

func newProcessor(t *testing.T, q rates.Querier) (*Processor, *recordingQuerier) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	rec, _ := q.(*recordingQuerier)
	return &Processor{
		Admin:  &rates.Admin{Store: &rates.Store{Q: q}},
		Locker: lock.Locker{R: client},
	}, rec
}

func TestHandleApplyRate(t *testing.T) {
	q := &recordingQuerier{}
	p, rec := newProcessor(t, q)

	task, err := NewApplyRateTask(ApplyRatePayload{
		Jurisdiction:     "state",
		JurisdictionCode: "ca",
		RateBps:          875,
		Categories:       []string{"food"},
		EffectiveFrom:    time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	require.NoError(t, p.HandleApplyRate(context.Background(), task))
	require.Len(t, rec.inserted, 1)
	require.Equal(t, "CA", rec.inserted[0].JurisdictionCode)
	require.Equal(t, string(tax.JurisdictionState), rec.inserted[0].Jurisdiction)
	require.True(t, rec.inserted[0].Active)
}

func TestHandleApplyRateMalformedPayloadSkipsRetry(t *testing.T) {
	p, _ := newProcessor(t, &recordingQuerier{})

	task := asynq.NewTask(TaskApplyRate, []byte(`{broken`))
	err := p.HandleApplyRate(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleApplyRateMissingCodeSkipsRetry(t *testing.T) {
	p, _ := newProcessor(t, &recordingQuerier{})

	payload, err := json.Marshal(ApplyRatePayload{Jurisdiction: "state", RateBps: 875, EffectiveFrom: time.Now()})
	require.NoError(t, err)
	err = p.HandleApplyRate(context.Background(), asynq.NewTask(TaskApplyRate, payload))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleApplyRateInvalidRecordSkipsRetry(t *testing.T) {
	p, _ := newProcessor(t, &recordingQuerier{})

	payload, err := json.Marshal(ApplyRatePayload{
		Jurisdiction:     "state",
		JurisdictionCode: "CA",
		RateBps:          -5,
		EffectiveFrom:    time.Now(),
	})
	require.NoError(t, err)
	err = p.HandleApplyRate(context.Background(), asynq.NewTask(TaskApplyRate, payload))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
