package tax

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Service is the calculation facade: it composes nexus evaluation,
// jurisdiction resolution, rate selection, exemption handling, and breakdown
// aggregation into one stateless request/response cycle. Every call is
// independently retriable; the only side effect is cache population inside
// the rate source.
type Service struct {
	businesses BusinessProvider
	rates      Selector
	exemptions ExemptionEvaluator
	anomalies  AnomalySink
	now        func() time.Time
}

// ServiceConfig groups the Service dependencies.
type ServiceConfig struct {
	Businesses BusinessProvider
	Rates      RateSource
	Exemptions ExemptionSource
	Anomalies  AnomalySink
	// Now overrides the wall clock, used by tests.
	Now func() time.Time
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Businesses == nil {
		return nil, errors.New("tax: business provider is required")
	}
	if cfg.Rates == nil {
		return nil, errors.New("tax: rate source is required")
	}
	sink := cfg.Anomalies
	if sink == nil {
		sink = NopSink{}
	}
	clock := cfg.Now
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		businesses: cfg.Businesses,
		rates:      Selector{Source: cfg.Rates, Anomalies: sink},
		exemptions: ExemptionEvaluator{Source: cfg.Exemptions},
		anomalies:  sink,
		now:        clock,
	}, nil
}

// Calculate produces the tax breakdown for one transaction.
//
// It fails with ErrBusinessNotFound for unknown businesses and with
// ErrInvalidLocation when the sale location cannot be resolved to at least a
// country. Zero-amount and zero-quantity items never fail; they contribute
// zero. Store timeouts surface wrapped in ErrStoreUnavailable.
func (s *Service) Calculate(ctx context.Context, req CalculationRequest) (Breakdown, error) {
	asOf := req.TransactionDate
	if asOf.IsZero() {
		asOf = s.now()
	}

	subtotals := make([]Money, len(req.Items))
	for i, item := range req.Items {
		subtotals[i] = item.Subtotal()
	}

	// A customer-level exemption zeroes the whole transaction before any
	// rate lookup happens, so no misleading lookups are recorded.
	if req.CustomerTaxExempt {
		return aggregate(req.Items, subtotals, nil), nil
	}

	addr := req.Address
	if addressEmpty(addr) && strings.TrimSpace(req.CustomerLocation) != "" {
		addr = ParseLocation(req.CustomerLocation)
	}
	jurisdictions := ResolveJurisdictions(addr)
	if jurisdictions.CountryCode == "" {
		return Breakdown{}, fmt.Errorf("%w: %q", ErrInvalidLocation, req.CustomerLocation)
	}

	nexus, err := NexusEvaluator{Businesses: s.businesses}.HasNexus(ctx, req.BusinessID, jurisdictions.StateCode)
	if err != nil {
		return Breakdown{}, err
	}
	if !nexus {
		return aggregate(req.Items, subtotals, nil), nil
	}

	exempt, err := s.exemptions.ExemptSet(ctx, jurisdictions.StateCode)
	if err != nil {
		return Breakdown{}, err
	}

	groups, err := s.groupByRate(ctx, req.Items, subtotals, jurisdictions, exempt, asOf)
	if err != nil {
		return Breakdown{}, err
	}

	bd := aggregate(req.Items, subtotals, groups)
	if bd.Subtotal > 0 && jurisdictions.StateCode != "" {
		s.anomalies.EffectiveRateObserved(ctx, jurisdictions.StateCode, bd.EffectiveRateBps)
	}
	return bd, nil
}

// groupByRate selects rates once per distinct category and folds each
// taxable item's subtotal into the group of every record that governs it.
func (s *Service) groupByRate(ctx context.Context, items []LineItem, subtotals []Money, j Jurisdictions, exempt map[string]struct{}, asOf time.Time) ([]*ratedGroup, error) {
	selections := make(map[string][]RateRecord)
	groups := make([]*ratedGroup, 0, 4)
	groupIndex := make(map[string]*ratedGroup)
	fallbackReported := make(map[string]struct{})

	for i, item := range items {
		if subtotals[i] <= 0 {
			continue
		}
		category := NormalizeCategory(item.TaxCategory)
		if ItemExempt(exempt, category) {
			continue
		}

		records, ok := selections[category]
		if !ok {
			var err error
			records, err = s.rates.SelectRates(ctx, j, category, asOf)
			if err != nil {
				return nil, err
			}
			selections[category] = records

			if category != GeneralCategory && !anyCategoryScoped(records, category) {
				if _, seen := fallbackReported[category]; !seen {
					fallbackReported[category] = struct{}{}
					code := j.StateCode
					if code == "" {
						code = j.CountryCode
					}
					s.anomalies.CategoryFallback(ctx, code, category)
				}
			}
		}

		for _, record := range records {
			key := groupKey(record)
			g, ok := groupIndex[key]
			if !ok {
				g = &ratedGroup{record: record}
				groupIndex[key] = g
				groups = append(groups, g)
			}
			g.contributions = append(g.contributions, contribution{itemIndex: i, amount: subtotals[i]})
		}
	}
	return groups, nil
}

func anyCategoryScoped(records []RateRecord, category string) bool {
	for _, r := range records {
		if r.CategoryScoped(category) {
			return true
		}
	}
	return false
}

func groupKey(r RateRecord) string {
	return fmt.Sprintf("%s|%s|%d|%d", r.Jurisdiction, r.JurisdictionCode, r.RateBps, r.EffectiveFrom.UnixNano())
}

func addressEmpty(a Address) bool {
	return strings.TrimSpace(a.Street) == "" &&
		strings.TrimSpace(a.City) == "" &&
		strings.TrimSpace(a.State) == "" &&
		strings.TrimSpace(a.ZipCode) == "" &&
		strings.TrimSpace(a.Country) == ""
}
