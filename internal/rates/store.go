package rates

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	dbgen "github.com/noah-isme/backend-levy/internal/db/gen"
	"github.com/noah-isme/backend-levy/internal/resilience"
	"github.com/noah-isme/backend-levy/internal/tax"
)

// Querier defines the sqlc generated queries used by the Store.
type Querier interface {
	FindActiveTaxRates(ctx context.Context, arg dbgen.FindActiveTaxRatesParams) ([]dbgen.TaxRate, error)
	InsertTaxRate(ctx context.Context, arg dbgen.InsertTaxRateParams) (dbgen.TaxRate, error)
	DeactivateTaxRate(ctx context.Context, id pgtype.UUID) error
	ListTaxRates(ctx context.Context, arg dbgen.ListTaxRatesParams) ([]dbgen.TaxRate, error)
	CountTaxRates(ctx context.Context, arg dbgen.CountTaxRatesParams) (int64, error)
	GetBusiness(ctx context.Context, id pgtype.UUID) (dbgen.Business, error)
	ListExemptCategories(ctx context.Context, stateCode string) ([]string, error)
}

// Store is the postgres rate store. Every query carries its own timeout and
// optionally passes through a circuit breaker; timeouts, connectivity
// failures, and an open breaker all surface as tax.ErrStoreUnavailable so
// callers can retry with backoff.
type Store struct {
	Q       Querier
	Breaker *resilience.Breaker
	// Timeout caps a single query. Zero means 2s.
	Timeout time.Duration
}

func (s *Store) timeout() time.Duration {
	if s.Timeout <= 0 {
		return 2 * time.Second
	}
	return s.Timeout
}

// query runs fn under the store timeout and breaker discipline.
func (s *Store) query(ctx context.Context, fn func(context.Context) error) error {
	if s.Breaker != nil && !s.Breaker.Allow(ctx) {
		return tax.ErrStoreUnavailable
	}
	qctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()
	err := fn(qctx)
	if s.Breaker != nil {
		s.Breaker.Report(ctx, err == nil || errors.Is(err, pgx.ErrNoRows))
	}
	return err
}

// FindActiveRates returns the records in effect for one jurisdiction code,
// category, and instant.
func (s *Store) FindActiveRates(ctx context.Context, jurisdictionCode, category string, asOf time.Time) ([]tax.RateRecord, error) {
	var rows []dbgen.TaxRate
	err := s.query(ctx, func(qctx context.Context) error {
		var err error
		rows, err = s.Q.FindActiveTaxRates(qctx, dbgen.FindActiveTaxRatesParams{
			JurisdictionCode: jurisdictionCode,
			AsOf:             pgtype.Timestamptz{Time: asOf, Valid: true},
			Category:         tax.NormalizeCategory(category),
		})
		return err
	})
	if err != nil {
		return nil, transient(err)
	}
	records := make([]tax.RateRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, recordFromRow(row))
	}
	return records, nil
}

// GetBusiness implements tax.BusinessProvider.
func (s *Store) GetBusiness(ctx context.Context, id uuid.UUID) (tax.Business, error) {
	var row dbgen.Business
	err := s.query(ctx, func(qctx context.Context) error {
		var err error
		row, err = s.Q.GetBusiness(qctx, pgtype.UUID{Bytes: id, Valid: true})
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return tax.Business{}, tax.ErrBusinessNotFound
		}
		return tax.Business{}, transient(err)
	}
	return tax.Business{
		ID:          uuid.UUID(row.ID.Bytes),
		Name:        row.Name,
		HomeState:   row.HomeState,
		NexusStates: row.NexusStates,
	}, nil
}

// ListExemptCategories returns the statutory exempt categories for a state.
func (s *Store) ListExemptCategories(ctx context.Context, stateCode string) ([]string, error) {
	var categories []string
	err := s.query(ctx, func(qctx context.Context) error {
		var err error
		categories, err = s.Q.ListExemptCategories(qctx, stateCode)
		return err
	})
	if err != nil {
		return nil, transient(err)
	}
	return categories, nil
}

// InsertRate persists a new rate record and returns it.
func (s *Store) InsertRate(ctx context.Context, arg dbgen.InsertTaxRateParams) (tax.RateRecord, error) {
	var row dbgen.TaxRate
	err := s.query(ctx, func(qctx context.Context) error {
		var err error
		row, err = s.Q.InsertTaxRate(qctx, arg)
		return err
	})
	if err != nil {
		return tax.RateRecord{}, transient(err)
	}
	return recordFromRow(row), nil
}

// DeactivateRate retires a rate record without deleting it.
func (s *Store) DeactivateRate(ctx context.Context, id uuid.UUID) error {
	err := s.query(ctx, func(qctx context.Context) error {
		return s.Q.DeactivateTaxRate(qctx, pgtype.UUID{Bytes: id, Valid: true})
	})
	return transient(err)
}

// ListRates pages through rate records, optionally filtered by jurisdiction
// code and category. It returns the page plus the unfiltered total.
func (s *Store) ListRates(ctx context.Context, jurisdictionCode, category string, limit, offset int32) ([]tax.RateRecord, int64, error) {
	codeFilter := pgtype.Text{String: jurisdictionCode, Valid: jurisdictionCode != ""}
	categoryFilter := pgtype.Text{String: category, Valid: category != ""}
	var (
		rows  []dbgen.TaxRate
		total int64
	)
	err := s.query(ctx, func(qctx context.Context) error {
		var err error
		rows, err = s.Q.ListTaxRates(qctx, dbgen.ListTaxRatesParams{
			JurisdictionCode: codeFilter,
			Category:         categoryFilter,
			LimitValue:       limit,
			OffsetValue:      offset,
		})
		if err != nil {
			return err
		}
		total, err = s.Q.CountTaxRates(qctx, dbgen.CountTaxRatesParams{
			JurisdictionCode: codeFilter,
			Category:         categoryFilter,
		})
		return err
	})
	if err != nil {
		return nil, 0, transient(err)
	}
	records := make([]tax.RateRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, recordFromRow(row))
	}
	return records, total, nil
}

// transient wraps timeout and connectivity failures in
// tax.ErrStoreUnavailable. Caller-driven cancellation passes through
// untouched; anomalies in the data never reach this path.
func transient(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return errors.Join(tax.ErrStoreUnavailable, err)
	case errors.Is(err, tax.ErrStoreUnavailable):
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return errors.Join(tax.ErrStoreUnavailable, err)
	}
	return err
}

func recordFromRow(row dbgen.TaxRate) tax.RateRecord {
	record := tax.RateRecord{
		ID:               uuid.UUID(row.ID.Bytes),
		Jurisdiction:     tax.ParseJurisdictionType(row.Jurisdiction),
		JurisdictionCode: row.JurisdictionCode,
		RateBps:          row.RateBps,
		Categories:       row.Categories,
		EffectiveFrom:    row.EffectiveFrom.Time,
		Active:           row.Active,
		PublishedAt:      row.PublishedAt.Time,
	}
	if row.EffectiveTo.Valid {
		to := row.EffectiveTo.Time
		record.EffectiveTo = &to
	}
	return record
}
