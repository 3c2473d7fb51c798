package logscan

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/samber/lo"

	"github.com/janekbaraniewski/openpulse/internal/core"
	"github.com/janekbaraniewski/openpulse/internal/tariff"
)

const DefaultDigestDays = 30

// Pricer prices a ledger for a model.
type Pricer interface {
	ComputeCost(model string, family tariff.Family, l core.TokenLedger) float64
}

// Digestor rolls a provider's logs up into per-day, per-model slices over a
// trailing window of calendar days.
type Digestor struct {
	Schema       Schema
	Locator      Locator
	Pricer       Pricer
	MaxLineBytes int
	Location     *time.Location
	Now          func() time.Time
}

type sliceKey struct {
	day   string
	model string
}

type sliceSum struct {
	ledger core.TokenLedger
	cost   float64
}

// Digest returns one slice per populated (day, model) for the last days
// calendar days including today, most recent day first and models in
// ascending order within a day.
func (d *Digestor) Digest(ctx context.Context, days int) ([]core.ConsumptionSlice, error) {
	if days <= 0 {
		days = DefaultDigestDays
	}
	loc := lo.Ternary(d.Location == nil, time.Local, d.Location)
	now := time.Now()
	if d.Now != nil {
		now = d.Now()
	}
	start := startOfDay(now.In(loc)).AddDate(0, 0, -(days - 1))

	if d.Locator == nil {
		return []core.ConsumptionSlice{}, nil
	}
	files := d.Locator.Locate(start)
	ing := d.Schema.newIngest()
	sums := make(map[sliceKey]*sliceSum)

	for _, path := range files {
		fc := &fileContext{}
		err := StreamFile(ctx, path, d.MaxLineBytes, func(line []byte) {
			rec, ok := d.Schema.decode(line)
			if !ok {
				return
			}
			rec = fc.apply(rec)
			if rec.Kind != KindUsage || rec.Timestamp.IsZero() {
				return
			}
			inc, ok := ing.increment(path, rec)
			if !ok || rec.Timestamp.Before(start) {
				return
			}
			key := sliceKey{
				day:   rec.Timestamp.In(loc).Format(core.DayLayout),
				model: lo.Ternary(rec.Model == "", unknownModel, rec.Model),
			}
			sum, found := sums[key]
			if !found {
				sum = &sliceSum{}
				sums[key] = sum
			}
			sum.ledger = sum.ledger.Combine(inc)
			if d.Pricer != nil {
				sum.cost += d.Pricer.ComputeCost(key.model, d.Schema.Family, inc)
			}
		})
		if err != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	keys := lo.Keys(sums)
	slices.SortFunc(keys, func(a, b sliceKey) int {
		if c := cmp.Compare(b.day, a.day); c != 0 {
			return c
		}
		return cmp.Compare(a.model, b.model)
	})
	return lo.Map(keys, func(k sliceKey, _ int) core.ConsumptionSlice {
		s := sums[k]
		return core.ConsumptionSlice{Day: k.day, Model: k.model, Ledger: s.ledger, CostUSD: s.cost}
	}), nil
}
