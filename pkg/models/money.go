package models

import "github.com/shopspring/decimal"

// CentTolerance is the smallest amount that counts as money still owed.
var CentTolerance = decimal.New(1, -2)

var hundred = decimal.NewFromInt(100)

// RoundCents rounds half away from zero to two decimals, which is half-up for the
// non-negative amounts the ledger deals with.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// IsNegligible reports whether an owed amount is below one cent.
func IsNegligible(owed decimal.Decimal) bool {
	return owed.LessThan(CentTolerance)
}

// Percent returns pct percent of base, rounded to cents.
func Percent(base, pct decimal.Decimal) decimal.Decimal {
	return RoundCents(base.Mul(pct).Div(hundred))
}

// SumOwed adds up Owed over a set of installments without clamping.
func SumOwed(installments []Installment) decimal.Decimal {
	total := decimal.Zero
	for _, inst := range installments {
		total = total.Add(inst.Owed())
	}
	return total
}
