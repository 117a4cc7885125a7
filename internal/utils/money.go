package utils

import "github.com/shopspring/decimal"

// minorUnitExponent is the scale between minor and major currency units (cents).
const minorUnitExponent = -2

// MinorToMajor converts an amount in minor units to major units exactly.
func MinorToMajor(cents int64) decimal.Decimal {
	return decimal.New(cents, minorUnitExponent)
}

// FormatMajor renders minor units as a fixed two-decimal major amount, e.g. 50000 -> "500.00".
func FormatMajor(cents int64) string {
	return MinorToMajor(cents).StringFixed(2)
}
