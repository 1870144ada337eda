package lend

import "math/big"

// RateScale is the fixed-point scale shared by interest rates, collateral
// ratios, margins and fee rates.
var RateScale = big.NewInt(100_000_000)

const secondsPerYear = 365 * 24 * 60 * 60

// mulDiv computes a*b/den with flooring, never mutating its inputs.
func mulDiv(a, b, den *big.Int) *big.Int {
	if a == nil || b == nil || den == nil || den.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, den)
}

// mulRate applies a RateScale fixed-point rate to an amount.
func mulRate(amount, rate *big.Int) *big.Int {
	return mulDiv(amount, rate, RateScale)
}

// addRate scales an amount by (1 + rate) at RateScale.
func addRate(amount, rate *big.Int) *big.Int {
	factor := new(big.Int).Add(RateScale, rate)
	return mulDiv(amount, factor, RateScale)
}

// termInterest computes the full contracted term's interest on principal.
// The window is matchDeadline to maturity regardless of when resolution runs.
func termInterest(principal, annualRate *big.Int, matchDeadline, maturity int64) *big.Int {
	if principal == nil || annualRate == nil || maturity <= matchDeadline {
		return big.NewInt(0)
	}
	term := big.NewInt(maturity - matchDeadline)
	out := new(big.Int).Mul(principal, annualRate)
	out.Mul(out, term)
	den := new(big.Int).Mul(RateScale, big.NewInt(secondsPerYear))
	return out.Quo(out, den)
}
