package core

import "time"

// TokenLedger counts tokens by billing category.
type TokenLedger struct {
	Input       int64 `json:"input"`
	CachedInput int64 `json:"cached_input"`
	CacheWrite  int64 `json:"cache_write"`
	Output      int64 `json:"output"`
}

func (l TokenLedger) Combine(o TokenLedger) TokenLedger {
	return TokenLedger{
		Input:       l.Input + o.Input,
		CachedInput: l.CachedInput + o.CachedInput,
		CacheWrite:  l.CacheWrite + o.CacheWrite,
		Output:      l.Output + o.Output,
	}
}

func (l TokenLedger) TotalConsumed() int64 {
	return l.Input + l.CachedInput + l.CacheWrite + l.Output
}

func (l TokenLedger) IsZero() bool { return l == TokenLedger{} }

// NonNegative zeroes any negative counter.
func (l TokenLedger) NonNegative() TokenLedger {
	return TokenLedger{
		Input:       max(l.Input, 0),
		CachedInput: max(l.CachedInput, 0),
		CacheWrite:  max(l.CacheWrite, 0),
		Output:      max(l.Output, 0),
	}
}

// Since returns the per-category growth from prev to l, clamped at zero.
func (l TokenLedger) Since(prev TokenLedger) TokenLedger {
	return TokenLedger{
		Input:       l.Input - prev.Input,
		CachedInput: l.CachedInput - prev.CachedInput,
		CacheWrite:  l.CacheWrite - prev.CacheWrite,
		Output:      l.Output - prev.Output,
	}.NonNegative()
}

const DayLayout = "2006-01-02"

// ConsumptionSlice is usage for one calendar day and one model.
type ConsumptionSlice struct {
	Day     string      `json:"day"`
	Model   string      `json:"model"`
	Ledger  TokenLedger `json:"ledger"`
	CostUSD float64     `json:"cost_usd"`
}

// ConsumptionDigest rolls slices up into today and a trailing window.
type ConsumptionDigest struct {
	Today         TokenLedger        `json:"today"`
	TodayCostUSD  float64            `json:"today_cost_usd"`
	WindowDays    int                `json:"window_days"`
	Window        TokenLedger        `json:"window"`
	WindowCostUSD float64            `json:"window_cost_usd"`
	Slices        []ConsumptionSlice `json:"slices"`
	ComputedAt    time.Time          `json:"computed_at"`
}

func EmptyDigest(days int, now time.Time) ConsumptionDigest {
	return ConsumptionDigest{WindowDays: days, Slices: []ConsumptionSlice{}, ComputedAt: now}
}

func (d ConsumptionDigest) IsEmpty() bool { return len(d.Slices) == 0 }
