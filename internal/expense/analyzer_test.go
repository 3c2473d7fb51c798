package expense

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janekbaraniewski/openpulse/internal/core"
	"github.com/janekbaraniewski/openpulse/internal/logscan"
	"github.com/janekbaraniewski/openpulse/internal/tariff"
)

type fakeSource struct {
	slices  []core.ConsumptionSlice
	err     error
	gotDays int
}

func (f *fakeSource) Digest(_ context.Context, days int) ([]core.ConsumptionSlice, error) {
	f.gotDays = days
	return f.slices, f.err
}

var now = time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func TestAnalyzeTodayAndWindow(t *testing.T) {
	src := &fakeSource{slices: []core.ConsumptionSlice{
		{Day: "2026-04-02", Model: "a", Ledger: core.TokenLedger{Input: 10, Output: 1}, CostUSD: 1},
		{Day: "2026-04-02", Model: "b", Ledger: core.TokenLedger{Input: 5}, CostUSD: 0.5},
		{Day: "2026-03-30", Model: "a", Ledger: core.TokenLedger{Output: 100}, CostUSD: 2},
	}}
	a := NewAnalyzer(src, 14, WithClock(clock), WithLocation(time.UTC))

	d, err := a.Analyze(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 14, src.gotDays)
	assert.Equal(t, 14, d.WindowDays)
	assert.Equal(t, core.TokenLedger{Input: 15, Output: 1}, d.Today)
	assert.InDelta(t, 1.5, d.TodayCostUSD, 1e-9)
	assert.Equal(t, core.TokenLedger{Input: 15, Output: 101}, d.Window)
	assert.InDelta(t, 3.5, d.WindowCostUSD, 1e-9)
	assert.Len(t, d.Slices, 3)
	assert.True(t, now.Equal(d.ComputedAt))
}

func TestAnalyzeEmpty(t *testing.T) {
	d, err := NewAnalyzer(&fakeSource{}, 0, WithClock(clock)).Analyze(context.Background())
	require.NoError(t, err)
	assert.True(t, d.IsEmpty())
	assert.Equal(t, 30, d.WindowDays)
	assert.Zero(t, d.WindowCostUSD)

	d, err = NewAnalyzer(nil, 7, WithClock(clock)).Analyze(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, d.WindowDays)
}

func TestAnalyzeWrapsSourceError(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewAnalyzer(&fakeSource{err: boom}, 1).Analyze(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestByModel(t *testing.T) {
	d := Summarize([]core.ConsumptionSlice{
		{Day: "2026-04-02", Model: "a", Ledger: core.TokenLedger{Input: 1}, CostUSD: 1},
		{Day: "2026-04-01", Model: "b", Ledger: core.TokenLedger{Input: 2}, CostUSD: 5},
		{Day: "2026-04-01", Model: "a", Ledger: core.TokenLedger{Input: 3}, CostUSD: 1},
	}, 30, now)

	got := ByModel(d)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Model)
	assert.Equal(t, "a", got[1].Model)
	assert.Equal(t, int64(4), got[1].Ledger.Input)
	assert.InDelta(t, 2, got[1].CostUSD, 1e-9)
}

func TestAnalyzeOverDigestor(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "s.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(
		`{"day":"today","in":1000,"out":200}`+"\n"+
			`{"day":"today","in":500,"out":100}`+"\n"), 0o644))

	schema := logscan.Schema{
		Provider: "test",
		Family:   tariff.FamilyAnthropic,
		Decode: func(line []byte) (logscan.Record, bool) {
			var in, out int64
			switch string(line) {
			case `{"day":"today","in":1000,"out":200}`:
				in, out = 1000, 200
			case `{"day":"today","in":500,"out":100}`:
				in, out = 500, 100
			default:
				return logscan.Record{}, false
			}
			return logscan.Record{
				Kind:      logscan.KindUsage,
				Timestamp: now.Add(-time.Hour),
				Model:     "m1",
				Ledger:    core.TokenLedger{Input: in, Output: out},
			}, true
		},
	}
	reg := tariff.New(map[string]tariff.RateCard{
		"m1": {Input: tariff.Flat(0.000003), Output: tariff.Flat(0.000015)},
	}, nil)
	dig := &logscan.Digestor{
		Schema:   schema,
		Locator:  logscan.ModTimeLocator{Roots: []string{root}},
		Pricer:   reg,
		Location: time.UTC,
		Now:      clock,
	}

	d, err := NewAnalyzer(dig, 30, WithClock(clock), WithLocation(time.UTC)).Analyze(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.TokenLedger{Input: 1500, Output: 300}, d.Today)
	assert.InDelta(t, 0.009, d.TodayCostUSD, 1e-12)
	assert.InDelta(t, 0.009, d.WindowCostUSD, 1e-12)
}
