package models

import "math"

// MinorToMajor converts a Stripe minor-unit amount to the major-unit value
// QBO expects. Every amount crosses this boundary exactly once.
func MinorToMajor(minor int64) float64 {
	return float64(minor) / 100
}

// RoundMoney rounds a derived major-unit value to cents.
func RoundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}
