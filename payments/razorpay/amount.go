package razorpay

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

var (
	// ErrInvalidAmount indicates a non-positive, non-finite or sub-unit amount.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrUnsupportedCurrency indicates the currency does not use two decimal minor units.
	ErrUnsupportedCurrency = errors.New("unsupported currency")
)

// twoDecimalCurrencies lists the currencies whose minor unit is exactly 1/100 of the major unit.
var twoDecimalCurrencies = map[string]struct{}{
	"INR": {},
	"USD": {},
	"EUR": {},
	"GBP": {},
	"SGD": {},
	"AED": {},
	"AUD": {},
	"CAD": {},
	"HKD": {},
	"MYR": {},
	"CHF": {},
	"SAR": {},
	"QAR": {},
	"NZD": {},
}

// NormalizeCurrency upper-cases and validates a currency code.
func NormalizeCurrency(currency string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if _, ok := twoDecimalCurrencies[code]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCurrency, currency)
	}
	return code, nil
}

// ToMinorUnits converts a major-unit amount into provider minor units. The amount's shortest
// decimal representation is scaled by 100 exactly and rounded half away from zero, so 10.005
// becomes 1001 rather than inheriting the binary float error of 10.005*100.
func ToMinorUnits(amount float64, currency string) (int64, error) {
	if _, err := NormalizeCurrency(currency); err != nil {
		return 0, err
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	decimal, ok := new(big.Rat).SetString(strconv.FormatFloat(amount, 'f', -1, 64))
	if !ok {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	scaled := decimal.Mul(decimal, big.NewRat(100, 1))
	minor := roundHalfAwayFromZero(scaled)
	if !minor.IsInt64() {
		return 0, fmt.Errorf("%w: %v overflows minor units", ErrInvalidAmount, amount)
	}
	if minor.Sign() <= 0 {
		return 0, fmt.Errorf("%w: %v rounds to zero", ErrInvalidAmount, amount)
	}
	return minor.Int64(), nil
}

// FormatMinorUnits renders minor units back into a two-decimal major-unit string.
func FormatMinorUnits(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

func roundHalfAwayFromZero(r *big.Rat) *big.Int {
	num := new(big.Int).Set(r.Num())
	den := r.Denom()
	negative := num.Sign() < 0
	num.Abs(num)
	// floor((2*num + den) / (2*den)) rounds a non-negative rational half up.
	twice := new(big.Int).Lsh(num, 1)
	twice.Add(twice, den)
	out := twice.Quo(twice, new(big.Int).Lsh(den, 1))
	if negative {
		out.Neg(out)
	}
	return out
}
