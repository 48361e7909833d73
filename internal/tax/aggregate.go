package tax

import "sort"

// contribution ties one line item's taxable amount to a selected rate record.
type contribution struct {
	itemIndex int
	amount    Money
}

// ratedGroup collects every taxable contribution governed by a single rate
// record. One group produces exactly one JurisdictionTax component.
type ratedGroup struct {
	record        RateRecord
	contributions []contribution
}

func (g *ratedGroup) taxable() Money {
	var total Money
	for _, c := range g.contributions {
		total += c.amount
	}
	return total
}

// aggregate folds the selected rate groups into the final breakdown.
//
// Each jurisdiction's tax is rounded once from its full taxable base
// (round-then-sum), so the per-jurisdiction components always foot to
// TotalTax. The per-item view is then an exact apportionment of those same
// rounded amounts, largest-remainder, so both itemized views foot to the
// identical total.
func aggregate(items []LineItem, itemSubtotals []Money, groups []*ratedGroup) Breakdown {
	var bd Breakdown
	for _, s := range itemSubtotals {
		bd.Subtotal += s
	}

	itemTax := make([]Money, len(items))
	bd.Jurisdictions = make([]JurisdictionTax, 0, len(groups))
	for _, g := range groups {
		taxable := g.taxable()
		if taxable <= 0 {
			continue
		}
		tax := TaxFor(taxable, g.record.RateBps)
		bd.Jurisdictions = append(bd.Jurisdictions, JurisdictionTax{
			Jurisdiction:     g.record.Jurisdiction,
			JurisdictionName: jurisdictionDisplayName(g.record.Jurisdiction),
			JurisdictionCode: g.record.JurisdictionCode,
			RateBps:          g.record.RateBps,
			TaxableAmount:    taxable,
			TaxAmount:        tax,
		})

		switch g.record.Jurisdiction {
		case JurisdictionFederal:
			bd.FederalTax += tax
		case JurisdictionState:
			bd.StateTax += tax
		case JurisdictionCounty:
			bd.CountyTax += tax
		case JurisdictionCity:
			bd.CityTax += tax
		default:
			bd.SpecialDistrictTax += tax
		}
		bd.TotalTax += tax

		apportion(tax, taxable, g.contributions, itemTax)
	}

	bd.GrandTotal = bd.Subtotal + bd.TotalTax
	bd.EffectiveRateBps = EffectiveRate(bd.TotalTax, bd.Subtotal)

	bd.Items = make([]ItemTax, len(items))
	for i, it := range items {
		bd.Items[i] = ItemTax{ID: it.ID, Subtotal: itemSubtotals[i], TaxAmount: itemTax[i]}
	}
	return bd
}

// apportion distributes a rounded jurisdiction tax amount across the items
// that contributed its taxable base, proportionally to their contribution.
// Floors are assigned first; the leftover minor units go to the largest
// fractional remainders, ties broken by item order, so the split is exact
// and deterministic.
func apportion(tax, taxable Money, contributions []contribution, itemTax []Money) {
	if tax <= 0 || taxable <= 0 {
		return
	}
	type slice struct {
		itemIndex int
		share     Money
		remainder Money
	}
	slices := make([]slice, 0, len(contributions))
	var assigned Money
	for _, c := range contributions {
		if c.amount <= 0 {
			continue
		}
		product := tax * c.amount
		s := slice{
			itemIndex: c.itemIndex,
			share:     product / taxable,
			remainder: product % taxable,
		}
		assigned += s.share
		slices = append(slices, s)
	}
	leftover := tax - assigned
	sort.SliceStable(slices, func(i, j int) bool {
		if slices[i].remainder != slices[j].remainder {
			return slices[i].remainder > slices[j].remainder
		}
		return slices[i].itemIndex < slices[j].itemIndex
	})
	for i := range slices {
		if leftover <= 0 {
			break
		}
		slices[i].share++
		leftover--
	}
	for _, s := range slices {
		itemTax[s.itemIndex] += s.share
	}
}

func jurisdictionDisplayName(t JurisdictionType) string {
	switch t {
	case JurisdictionFederal:
		return "Federal"
	case JurisdictionState:
		return "State"
	case JurisdictionCounty:
		return "County"
	case JurisdictionCity:
		return "City"
	default:
		return "Special District"
	}
}
