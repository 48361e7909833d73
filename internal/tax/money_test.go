package tax

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTaxFor(t *testing.T) {
	cases := []struct {
		name   string
		amount Money
		rate   Bps
		want   Money
	}{
		{"exact", 10000, 875, 875},
		{"rounds down", 9900, 825, 817},
		{"rounds half up", 1000, 5, 1},
		{"zero amount", 0, 875, 0},
		{"negative amount", -500, 875, 0},
		{"zero rate", 10000, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, TaxFor(tc.amount, tc.rate))
		})
	}
}

func TestEffectiveRate(t *testing.T) {
	require.Equal(t, Bps(875), EffectiveRate(875, 10000))
	require.Equal(t, Bps(0), EffectiveRate(0, 10000))
	require.Equal(t, Bps(0), EffectiveRate(100, 0))

	// 306 on 3500 is 8.742857%; half-up lands on 874 bps.
	require.Equal(t, Bps(874), EffectiveRate(306, 3500))
}
