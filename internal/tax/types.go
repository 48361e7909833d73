package tax

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// JurisdictionType classifies the taxing authority level of a rate record.
type JurisdictionType string

const (
	// JurisdictionFederal is the country-level authority.
	JurisdictionFederal JurisdictionType = "federal"
	// JurisdictionState is the state-level authority.
	JurisdictionState JurisdictionType = "state"
	// JurisdictionCounty is the county-level authority.
	JurisdictionCounty JurisdictionType = "county"
	// JurisdictionCity is the city-level authority.
	JurisdictionCity JurisdictionType = "city"
	// JurisdictionSpecialDistrict absorbs any authority outside the four named levels.
	JurisdictionSpecialDistrict JurisdictionType = "special_district"
)

// Valid reports whether t is one of the closed set of jurisdiction levels.
func (t JurisdictionType) Valid() bool {
	switch t {
	case JurisdictionFederal, JurisdictionState, JurisdictionCounty, JurisdictionCity, JurisdictionSpecialDistrict:
		return true
	default:
		return false
	}
}

// ParseJurisdictionType maps a free-form jurisdiction name onto the closed
// set of levels. Anything unrecognised lands in the special district bucket.
func ParseJurisdictionType(name string) JurisdictionType {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "federal", "country":
		return JurisdictionFederal
	case "state":
		return JurisdictionState
	case "county", "parish", "borough":
		return JurisdictionCounty
	case "city", "municipal", "municipality":
		return JurisdictionCity
	default:
		return JurisdictionSpecialDistrict
	}
}

// GeneralCategory is the fallback product category when a line item carries
// none or an unrecognised one.
const GeneralCategory = "general"

// NormalizeCategory lowercases and trims a category tag, defaulting to the
// general category when empty.
func NormalizeCategory(category string) string {
	c := strings.ToLower(strings.TrimSpace(category))
	if c == "" {
		return GeneralCategory
	}
	return c
}

// RateRecord is an effective-dated, category-scoped tax rate published for a
// single jurisdiction. Records are immutable once published; supersessions
// arrive as new records with adjacent effective windows.
type RateRecord struct {
	ID               uuid.UUID
	Jurisdiction     JurisdictionType
	JurisdictionCode string
	RateBps          Bps
	// Categories restricts the record to specific product categories.
	// An empty set means the rate applies to every category.
	Categories    []string
	EffectiveFrom time.Time
	EffectiveTo   *time.Time
	Active        bool
	PublishedAt   time.Time
}

// InEffect reports whether the record's effective window contains at.
// The window is inclusive of EffectiveFrom and of EffectiveTo.
func (r RateRecord) InEffect(at time.Time) bool {
	if !r.Active {
		return false
	}
	if at.Before(r.EffectiveFrom) {
		return false
	}
	if r.EffectiveTo != nil && at.After(*r.EffectiveTo) {
		return false
	}
	return true
}

// AppliesTo reports whether the record covers the given category, either by
// listing it explicitly or by being unscoped.
func (r RateRecord) AppliesTo(category string) bool {
	if len(r.Categories) == 0 {
		return true
	}
	category = NormalizeCategory(category)
	for _, c := range r.Categories {
		if NormalizeCategory(c) == category {
			return true
		}
	}
	return false
}

// CategoryScoped reports whether the record names the category explicitly
// rather than matching through the unscoped wildcard.
func (r RateRecord) CategoryScoped(category string) bool {
	return len(r.Categories) > 0 && r.AppliesTo(category)
}

// LineItem is a single sellable line on a transaction.
type LineItem struct {
	ID          string
	Name        string
	Quantity    int64
	UnitPrice   Money
	TaxCategory string
}

// Subtotal returns quantity times unit price. Zero or negative quantities
// and prices contribute nothing rather than erroring.
func (li LineItem) Subtotal() Money {
	if li.Quantity <= 0 || li.UnitPrice <= 0 {
		return 0
	}
	return li.Quantity * li.UnitPrice
}

// Address is the sale location used for jurisdiction resolution.
type Address struct {
	Street  string
	City    string
	State   string
	ZipCode string
	Country string
}

// CalculationRequest is the facade input for a single tax calculation.
type CalculationRequest struct {
	BusinessID        uuid.UUID
	Items             []LineItem
	Address           Address
	CustomerLocation  string
	CustomerTaxExempt bool
	// TransactionDate selects which effective rates apply. The zero value
	// means "now".
	TransactionDate time.Time
}

// JurisdictionTax is one component of a breakdown: the tax levied by a single
// rate record on the portion of the sale it covers.
type JurisdictionTax struct {
	Jurisdiction     JurisdictionType `json:"jurisdictionType"`
	JurisdictionName string           `json:"jurisdiction"`
	JurisdictionCode string           `json:"jurisdictionCode"`
	RateBps          Bps              `json:"rate"`
	TaxableAmount    Money            `json:"taxableAmount"`
	TaxAmount        Money            `json:"taxAmount"`
}

// ItemTax reports the subtotal and apportioned tax for one line item.
type ItemTax struct {
	ID        string `json:"id"`
	Subtotal  Money  `json:"subtotal"`
	TaxAmount Money  `json:"taxAmount"`
}

// Breakdown is the complete result of a calculation. TotalTax is always the
// sum of the already-rounded per-jurisdiction amounts, so the displayed
// components foot to the displayed total.
type Breakdown struct {
	Subtotal           Money             `json:"subtotal"`
	FederalTax         Money             `json:"federalTax"`
	StateTax           Money             `json:"stateTax"`
	CountyTax          Money             `json:"countyTax"`
	CityTax            Money             `json:"cityTax"`
	SpecialDistrictTax Money             `json:"specialDistrictTax"`
	TotalTax           Money             `json:"totalTax"`
	EffectiveRateBps   Bps               `json:"effectiveRate"`
	GrandTotal         Money             `json:"grandTotal"`
	Jurisdictions      []JurisdictionTax `json:"taxBreakdown"`
	Items              []ItemTax         `json:"itemBreakdown"`
}
