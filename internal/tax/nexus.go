package tax

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Business is the minimal business profile the engine needs: where the
// business lives and where it has registered a collection obligation.
type Business struct {
	ID          uuid.UUID
	Name        string
	HomeState   string
	NexusStates []string
}

// BusinessProvider looks up business profiles. Implementations return
// ErrBusinessNotFound (possibly wrapped) for unknown identifiers.
type BusinessProvider interface {
	GetBusiness(ctx context.Context, id uuid.UUID) (Business, error)
}

// NexusEvaluator decides whether a business has a legal obligation to
// collect tax in a given state.
type NexusEvaluator struct {
	Businesses BusinessProvider
}

// HasNexus reports whether the business must collect tax in stateCode.
// Nexus holds when the state is the business's home state or appears in its
// registered nexus set. An empty state code does not gate the calculation:
// with no state resolved there is no state-level obligation to test, and the
// remaining jurisdiction levels stand on their own.
func (e NexusEvaluator) HasNexus(ctx context.Context, businessID uuid.UUID, stateCode string) (bool, error) {
	if e.Businesses == nil {
		return false, fmt.Errorf("tax: business provider not configured")
	}
	biz, err := e.Businesses.GetBusiness(ctx, businessID)
	if err != nil {
		return false, err
	}
	if stateCode == "" {
		return true, nil
	}
	if strings.EqualFold(biz.HomeState, stateCode) {
		return true, nil
	}
	for _, s := range biz.NexusStates {
		if strings.EqualFold(s, stateCode) {
			return true, nil
		}
	}
	return false, nil
}
