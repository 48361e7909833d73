package tax

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveJurisdictions(t *testing.T) {
	j := ResolveJurisdictions(Address{
		Street:  "1 Market St",
		City:    "San Francisco",
		State:   "CA",
		ZipCode: "94105",
		Country: "US",
	})
	require.Equal(t, "US", j.CountryCode)
	require.Equal(t, "CA", j.StateCode)
	require.Equal(t, "CA-941", j.CountyCode)
	require.Equal(t, "CA-SANFRANCISCO", j.CityCode)
}

func TestResolveJurisdictionsStateNameAndImpliedCountry(t *testing.T) {
	j := ResolveJurisdictions(Address{State: "california", City: "Los Angeles"})
	require.Equal(t, "US", j.CountryCode, "a recognised state implies the country")
	require.Equal(t, "CA", j.StateCode)
	require.Equal(t, "CA-LOSANGELES", j.CityCode)
}

func TestResolveJurisdictionsMissingZipDropsCountyOnly(t *testing.T) {
	j := ResolveJurisdictions(Address{State: "TX", City: "Austin"})
	require.Equal(t, "US", j.CountryCode)
	require.Equal(t, "TX", j.StateCode)
	require.Empty(t, j.CountyCode)
	require.Equal(t, "TX-AUSTIN", j.CityCode)

	j = ResolveJurisdictions(Address{State: "TX", ZipCode: "ab123"})
	require.Empty(t, j.CountyCode, "malformed zip resolves no county")
}

func TestResolveJurisdictionsUnresolvable(t *testing.T) {
	j := ResolveJurisdictions(Address{City: "Nowhere", State: "XX"})
	require.Empty(t, j.CountryCode)
	require.Empty(t, j.StateCode)
	require.Empty(t, j.CountyCode)
	require.Empty(t, j.CityCode)
}

func TestResolveJurisdictionsForeignCountry(t *testing.T) {
	j := ResolveJurisdictions(Address{Country: "DE", City: "Berlin"})
	require.Equal(t, "DE", j.CountryCode)
	require.Empty(t, j.StateCode)
	require.Empty(t, j.CityCode, "city codes are only derived under a resolved state")
}

func TestParseLocation(t *testing.T) {
	addr := ParseLocation("123 Main St, Austin, TX 78701")
	require.Equal(t, "123 Main St", addr.Street)
	require.Equal(t, "Austin", addr.City)
	require.Equal(t, "TX", addr.State)
	require.Equal(t, "78701", addr.ZipCode)

	addr = ParseLocation("Austin, TX 78701")
	require.Empty(t, addr.Street)
	require.Equal(t, "Austin", addr.City)
	require.Equal(t, "TX", addr.State)
	require.Equal(t, "78701", addr.ZipCode)

	addr = ParseLocation("Texas")
	require.Equal(t, "Texas", addr.State)

	addr = ParseLocation("FR")
	require.Equal(t, "FR", addr.Country)
	require.Empty(t, addr.State)
}

func TestParseLocationSuiteBeforeCityStays(t *testing.T) {
	addr := ParseLocation("1 Market St, Suite 300, San Francisco, CA 94105")
	require.Equal(t, "1 Market St, Suite 300", addr.Street)
	require.Equal(t, "San Francisco", addr.City)
	require.Equal(t, "CA", addr.State)
	require.Equal(t, "94105", addr.ZipCode)
}
