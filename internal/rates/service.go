package rates

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	dbgen "github.com/noah-isme/backend-levy/internal/db/gen"
	"github.com/noah-isme/backend-levy/internal/events"
	"github.com/noah-isme/backend-levy/internal/ratecache"
	"github.com/noah-isme/backend-levy/internal/tax"
)

// ErrInvalidRate reports a rate write that fails domain validation.
var ErrInvalidRate = errors.New("rates: invalid rate record")

// Admin manages the rate catalog. Every write sweeps the matching cache
// entries before returning: callers must never observe a successful write
// while stale rates keep serving.
type Admin struct {
	Store  *Store
	Cache  *ratecache.Cache
	Bus    *events.Bus
	Logger *zerolog.Logger
}

// UpsertRateInput describes a new rate record to publish.
type UpsertRateInput struct {
	Jurisdiction     tax.JurisdictionType
	JurisdictionCode string
	RateBps          tax.Bps
	Categories       []string
	EffectiveFrom    time.Time
	EffectiveTo      *time.Time
}

func (in UpsertRateInput) validate() error {
	if !in.Jurisdiction.Valid() {
		return fmt.Errorf("%w: unknown jurisdiction type %q", ErrInvalidRate, string(in.Jurisdiction))
	}
	if strings.TrimSpace(in.JurisdictionCode) == "" {
		return fmt.Errorf("%w: jurisdiction code is required", ErrInvalidRate)
	}
	if in.RateBps < 0 {
		return fmt.Errorf("%w: rate must not be negative", ErrInvalidRate)
	}
	if in.EffectiveFrom.IsZero() {
		return fmt.Errorf("%w: effective_from is required", ErrInvalidRate)
	}
	if in.EffectiveTo != nil && in.EffectiveTo.Before(in.EffectiveFrom) {
		return fmt.Errorf("%w: effective_to precedes effective_from", ErrInvalidRate)
	}
	return nil
}

// UpsertRate publishes a rate record, sweeps the jurisdiction's cache
// entries, and emits a rate.updated event.
func (a *Admin) UpsertRate(ctx context.Context, in UpsertRateInput) (tax.RateRecord, error) {
	if err := in.validate(); err != nil {
		return tax.RateRecord{}, err
	}
	code := strings.ToUpper(strings.TrimSpace(in.JurisdictionCode))
	categories := make([]string, 0, len(in.Categories))
	for _, category := range in.Categories {
		normalized := tax.NormalizeCategory(category)
		if normalized != "" {
			categories = append(categories, normalized)
		}
	}
	var effectiveTo pgtype.Timestamptz
	if in.EffectiveTo != nil {
		effectiveTo = pgtype.Timestamptz{Time: *in.EffectiveTo, Valid: true}
	}
	record, err := a.Store.InsertRate(ctx, dbgen.InsertTaxRateParams{
		Jurisdiction:     string(in.Jurisdiction),
		JurisdictionCode: code,
		RateBps:          int64(in.RateBps),
		Categories:       categories,
		EffectiveFrom:    pgtype.Timestamptz{Time: in.EffectiveFrom, Valid: true},
		EffectiveTo:      effectiveTo,
		Active:           true,
	})
	if err != nil {
		return tax.RateRecord{}, err
	}
	a.sweep(ctx, code)
	a.emitUpdated(ctx, record.ID, map[string]any{
		"rateId":           record.ID.String(),
		"jurisdictionCode": code,
		"rateBps":          record.RateBps,
		"action":           "published",
	})
	return record, nil
}

// DeactivateRate retires a rate record and sweeps its jurisdiction's cache
// entries.
func (a *Admin) DeactivateRate(ctx context.Context, id uuid.UUID, jurisdictionCode string) error {
	code := strings.ToUpper(strings.TrimSpace(jurisdictionCode))
	if code == "" {
		return fmt.Errorf("%w: jurisdiction code is required", ErrInvalidRate)
	}
	if err := a.Store.DeactivateRate(ctx, id); err != nil {
		return err
	}
	a.sweep(ctx, code)
	a.emitUpdated(ctx, id, map[string]any{
		"rateId":           id.String(),
		"jurisdictionCode": code,
		"action":           "deactivated",
	})
	return nil
}

// ListRates pages through the rate catalog.
func (a *Admin) ListRates(ctx context.Context, jurisdictionCode, category string, page, perPage int) ([]tax.RateRecord, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	offset := (page - 1) * perPage
	return a.Store.ListRates(ctx, strings.ToUpper(strings.TrimSpace(jurisdictionCode)), tax.NormalizeCategory(category), int32(perPage), int32(offset))
}

// sweep synchronously removes the jurisdiction's cache entries. A failed
// sweep is logged loudly; the write itself already committed.
func (a *Admin) sweep(ctx context.Context, jurisdictionCode string) {
	if a.Cache == nil {
		return
	}
	removed, err := a.Cache.Invalidate(ctx, ratecache.RatesPattern(jurisdictionCode))
	if err != nil {
		if a.Logger != nil {
			a.Logger.Error().Err(err).
				Str("jurisdiction_code", jurisdictionCode).
				Msg("cache sweep after rate write failed; stale rates may serve until TTL")
		}
		return
	}
	if a.Logger != nil {
		a.Logger.Info().
			Str("jurisdiction_code", jurisdictionCode).
			Int("removed", removed).
			Msg("swept rate cache")
	}
}

func (a *Admin) emitUpdated(ctx context.Context, id uuid.UUID, payload map[string]any) {
	if a.Bus == nil {
		return
	}
	if _, err := a.Bus.Emit(ctx, events.TopicRateUpdated, pgtype.UUID{Bytes: id, Valid: true}, payload); err != nil && a.Logger != nil {
		a.Logger.Error().Err(err).Msg("emit rate.updated event")
	}
}
