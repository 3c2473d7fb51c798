// Package expense turns consumption slices into a today/rolling-window cost
// digest.
package expense

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/samber/lo"

	"github.com/janekbaraniewski/openpulse/internal/core"
)

// SliceSource yields per-day, per-model slices for the last days days.
type SliceSource interface {
	Digest(ctx context.Context, days int) ([]core.ConsumptionSlice, error)
}

type Analyzer struct {
	source   SliceSource
	days     int
	location *time.Location
	now      func() time.Time
}

type Option func(*Analyzer)

func WithLocation(loc *time.Location) Option {
	return func(a *Analyzer) {
		if loc != nil {
			a.location = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		if now != nil {
			a.now = now
		}
	}
}

func NewAnalyzer(source SliceSource, days int, opts ...Option) *Analyzer {
	a := &Analyzer{
		source:   source,
		days:     lo.Ternary(days > 0, days, 30),
		location: time.Local,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Analyzer) Days() int { return a.days }

// Analyze never returns an empty-data error: with no logs the digest is
// simply empty.
func (a *Analyzer) Analyze(ctx context.Context) (core.ConsumptionDigest, error) {
	now := a.now()
	if a.source == nil {
		return core.EmptyDigest(a.days, now), nil
	}
	got, err := a.source.Digest(ctx, a.days)
	if err != nil {
		return core.ConsumptionDigest{}, fmt.Errorf("expense: digest: %w", err)
	}
	return Summarize(got, a.days, now.In(a.location)), nil
}

// Summarize folds slices into a digest. Slices whose day matches now's
// calendar date count towards today.
func Summarize(in []core.ConsumptionSlice, days int, now time.Time) core.ConsumptionDigest {
	d := core.EmptyDigest(days, now)
	if len(in) == 0 {
		return d
	}
	today := now.Format(core.DayLayout)
	for _, s := range in {
		d.Window = d.Window.Combine(s.Ledger)
		d.WindowCostUSD += s.CostUSD
		if s.Day == today {
			d.Today = d.Today.Combine(s.Ledger)
			d.TodayCostUSD += s.CostUSD
		}
	}
	d.Slices = append(d.Slices, in...)
	return d
}

// ByModel collapses a digest's slices into one total per model, largest
// cost first.
func ByModel(d core.ConsumptionDigest) []core.ConsumptionSlice {
	grouped := lo.GroupBy(d.Slices, func(s core.ConsumptionSlice) string { return s.Model })
	out := lo.MapToSlice(grouped, func(model string, group []core.ConsumptionSlice) core.ConsumptionSlice {
		return lo.Reduce(group, func(acc core.ConsumptionSlice, s core.ConsumptionSlice, _ int) core.ConsumptionSlice {
			acc.Ledger = acc.Ledger.Combine(s.Ledger)
			acc.CostUSD += s.CostUSD
			return acc
		}, core.ConsumptionSlice{Model: model})
	})
	sortByCost(out)
	return out
}

func sortByCost(in []core.ConsumptionSlice) {
	slices.SortFunc(in, func(a, b core.ConsumptionSlice) int {
		if c := cmp.Compare(b.CostUSD, a.CostUSD); c != 0 {
			return c
		}
		return cmp.Compare(a.Model, b.Model)
	})
}
