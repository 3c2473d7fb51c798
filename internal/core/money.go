package core

import "math"

type MoneyKind string

const (
	MoneyOverageSpend   MoneyKind = "overage_spend"
	MoneyPrepaidBalance MoneyKind = "prepaid_balance"
)

// MonetaryBucket is either overage spend against a ceiling or a prepaid
// balance. Use the constructors; they fix the meaning of each field.
type MonetaryBucket struct {
	Kind     MoneyKind `json:"kind"`
	Consumed float64   `json:"consumed"`
	Ceiling  float64   `json:"ceiling"`
	Currency string    `json:"currency"`
}

// NewOverageBucket starts an overage bucket at zero consumed.
func NewOverageBucket(ceiling float64, currency string) MonetaryBucket {
	return MonetaryBucket{
		Kind:     MoneyOverageSpend,
		Ceiling:  nonNegativeMoney(ceiling),
		Currency: currencyOrDefault(currency),
	}
}

// NewPrepaidBucket reports the available balance as the ceiling with
// nothing consumed.
func NewPrepaidBucket(balance float64, currency string) MonetaryBucket {
	return MonetaryBucket{
		Kind:     MoneyPrepaidBalance,
		Ceiling:  nonNegativeMoney(balance),
		Currency: currencyOrDefault(currency),
	}
}

// WithConsumed records spend on an overage bucket. Prepaid buckets are
// returned unchanged.
func (b MonetaryBucket) WithConsumed(amount float64) MonetaryBucket {
	if b.Kind != MoneyOverageSpend {
		return b
	}
	b.Consumed = nonNegativeMoney(amount)
	return b
}

func (b MonetaryBucket) Available() float64 {
	return math.Max(0, b.Ceiling-b.Consumed)
}

func (b MonetaryBucket) FillRatio() float64 {
	if b.Ceiling <= 0 {
		return 0
	}
	return math.Min(1, math.Max(0, b.Consumed/b.Ceiling))
}

func nonNegativeMoney(v float64) float64 {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func currencyOrDefault(symbol string) string {
	if symbol == "" {
		return "$"
	}
	return symbol
}
