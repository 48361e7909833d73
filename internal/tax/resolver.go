package tax

import "strings"

// Jurisdictions holds the normalized jurisdiction codes resolved for a sale.
// An empty code means no jurisdiction exists at that level; the selector
// skips the level rather than treating it as a wildcard.
type Jurisdictions struct {
	CountryCode string
	StateCode   string
	CountyCode  string
	CityCode    string
}

var usStateCodes = map[string]struct{}{
	"AL": {}, "AK": {}, "AZ": {}, "AR": {}, "CA": {}, "CO": {}, "CT": {},
	"DE": {}, "DC": {}, "FL": {}, "GA": {}, "HI": {}, "ID": {}, "IL": {},
	"IN": {}, "IA": {}, "KS": {}, "KY": {}, "LA": {}, "ME": {}, "MD": {},
	"MA": {}, "MI": {}, "MN": {}, "MS": {}, "MO": {}, "MT": {}, "NE": {},
	"NV": {}, "NH": {}, "NJ": {}, "NM": {}, "NY": {}, "NC": {}, "ND": {},
	"OH": {}, "OK": {}, "OR": {}, "PA": {}, "RI": {}, "SC": {}, "SD": {},
	"TN": {}, "TX": {}, "UT": {}, "VT": {}, "VA": {}, "WA": {}, "WV": {},
	"WI": {}, "WY": {},
}

var usStateNames = map[string]string{
	"ALABAMA": "AL", "ALASKA": "AK", "ARIZONA": "AZ", "ARKANSAS": "AR",
	"CALIFORNIA": "CA", "COLORADO": "CO", "CONNECTICUT": "CT",
	"DELAWARE": "DE", "DISTRICT OF COLUMBIA": "DC", "FLORIDA": "FL",
	"GEORGIA": "GA", "HAWAII": "HI", "IDAHO": "ID", "ILLINOIS": "IL",
	"INDIANA": "IN", "IOWA": "IA", "KANSAS": "KS", "KENTUCKY": "KY",
	"LOUISIANA": "LA", "MAINE": "ME", "MARYLAND": "MD",
	"MASSACHUSETTS": "MA", "MICHIGAN": "MI", "MINNESOTA": "MN",
	"MISSISSIPPI": "MS", "MISSOURI": "MO", "MONTANA": "MT", "NEBRASKA": "NE",
	"NEVADA": "NV", "NEW HAMPSHIRE": "NH", "NEW JERSEY": "NJ",
	"NEW MEXICO": "NM", "NEW YORK": "NY", "NORTH CAROLINA": "NC",
	"NORTH DAKOTA": "ND", "OHIO": "OH", "OKLAHOMA": "OK", "OREGON": "OR",
	"PENNSYLVANIA": "PA", "RHODE ISLAND": "RI", "SOUTH CAROLINA": "SC",
	"SOUTH DAKOTA": "SD", "TENNESSEE": "TN", "TEXAS": "TX", "UTAH": "UT",
	"VERMONT": "VT", "VIRGINIA": "VA", "WASHINGTON": "WA",
	"WEST VIRGINIA": "WV", "WISCONSIN": "WI", "WYOMING": "WY",
}

// ResolveJurisdictions normalizes a sale address into jurisdiction codes.
// It never fails: unresolvable components come back as empty strings.
//
// County codes are derived as STATE-zip3, matching how the rate ingestion
// process scopes county rates; city codes are STATE-CITYNAME. A missing or
// malformed postal code therefore drops only the county level, leaving the
// calculation to proceed on the remaining levels.
func ResolveJurisdictions(addr Address) Jurisdictions {
	var j Jurisdictions

	j.StateCode = normalizeState(addr.State)
	j.CountryCode = normalizeCountry(addr.Country, j.StateCode)

	if j.StateCode != "" {
		if zip3 := zipPrefix(addr.ZipCode); zip3 != "" {
			j.CountyCode = j.StateCode + "-" + zip3
		}
		if city := normalizeCityName(addr.City); city != "" {
			j.CityCode = j.StateCode + "-" + city
		}
	}
	return j
}

// ParseLocation splits a free-form "street, city, state zip" location string
// into an Address on a best-effort basis. Unparseable parts stay empty.
func ParseLocation(location string) Address {
	var addr Address
	parts := strings.Split(location, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	switch len(parts) {
	case 0:
		return addr
	case 1:
		addr.State = parts[0]
	case 2:
		addr.City = parts[0]
		addr.State, addr.ZipCode = splitStateZip(parts[1])
	default:
		addr.Street = strings.Join(parts[:len(parts)-2], ", ")
		addr.City = parts[len(parts)-2]
		addr.State, addr.ZipCode = splitStateZip(parts[len(parts)-1])
	}
	if normalizeState(addr.State) == "" && normalizeCountry(addr.State, "") != "" {
		addr.Country = addr.State
		addr.State = ""
	}
	return addr
}

func splitStateZip(part string) (state, zip string) {
	fields := strings.Fields(part)
	for _, f := range fields {
		if zipPrefix(f) != "" && zip == "" {
			zip = f
			continue
		}
		if state == "" {
			state = f
		} else {
			state += " " + f
		}
	}
	return state, zip
}

func normalizeState(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	if _, ok := usStateCodes[s]; ok {
		return s
	}
	if code, ok := usStateNames[s]; ok {
		return code
	}
	return ""
}

func normalizeCountry(raw, stateCode string) string {
	c := strings.ToUpper(strings.TrimSpace(raw))
	switch c {
	case "US", "USA", "UNITED STATES", "UNITED STATES OF AMERICA":
		return "US"
	case "":
		// A recognised US state implies the country even when the address
		// omits it.
		if stateCode != "" {
			return "US"
		}
		return ""
	}
	if len(c) == 2 && isAlpha(c) {
		return c
	}
	return ""
}

// zipPrefix returns the first three digits of a postal code, or empty when
// the code does not start with at least three digits.
func zipPrefix(zip string) string {
	z := strings.TrimSpace(zip)
	if len(z) < 3 {
		return ""
	}
	for i := 0; i < 3; i++ {
		if z[i] < '0' || z[i] > '9' {
			return ""
		}
	}
	return z[:3]
}

func normalizeCityName(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(raw)) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return len(s) > 0
}
