package tax

// Money is a monetary amount expressed in minor currency units.
type Money = int64

// Bps is a tax rate expressed in basis points (1 bps = 0.01%).
type Bps = int64

// TaxFor computes the tax due on amount at rate, rounded half-up to the
// nearest minor unit. Non-positive amounts or rates yield zero.
func TaxFor(amount Money, rate Bps) Money {
	if amount <= 0 || rate <= 0 {
		return 0
	}
	return (amount*rate + 5000) / 10000
}

// EffectiveRate returns totalTax relative to subtotal in basis points,
// rounded half-up. A zero subtotal yields a zero rate.
func EffectiveRate(totalTax, subtotal Money) Bps {
	if subtotal <= 0 || totalTax <= 0 {
		return 0
	}
	return (totalTax*10000 + subtotal/2) / subtotal
}
