package tax

import "context"

// ExemptionSource serves the statutory category exemptions configured for a
// state. The production implementation is backed by the tax_exemptions table
// behind the same redis cache discipline as rates.
type ExemptionSource interface {
	ExemptCategories(ctx context.Context, stateCode string) ([]string, error)
}

// ExemptionEvaluator applies per-item category exemptions. Customer-level
// exemption is handled earlier by the facade so that fully exempt requests
// never touch the store at all.
type ExemptionEvaluator struct {
	Source ExemptionSource
}

// ExemptSet loads the exempt categories for a state as a normalized lookup
// set. A nil source or empty state yields an empty set, never an error.
func (e ExemptionEvaluator) ExemptSet(ctx context.Context, stateCode string) (map[string]struct{}, error) {
	if e.Source == nil || stateCode == "" {
		return map[string]struct{}{}, nil
	}
	categories, err := e.Source.ExemptCategories(ctx, stateCode)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		set[NormalizeCategory(c)] = struct{}{}
	}
	return set, nil
}

// ItemExempt reports whether a category is statutorily tax-free given a
// previously loaded exempt set. The general category is never exempt: an
// unrecognised category must fall back to the general rate rather than
// silently produce zero tax.
func ItemExempt(exempt map[string]struct{}, category string) bool {
	category = NormalizeCategory(category)
	if category == GeneralCategory {
		return false
	}
	_, ok := exempt[category]
	return ok
}
