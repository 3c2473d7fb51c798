package render

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janekbaraniewski/openpulse/internal/core"
)

func TestFormatTokens(t *testing.T) {
	assert.Equal(t, "999", FormatTokens(999))
	assert.Equal(t, "1.5K", FormatTokens(1500))
	assert.Equal(t, "2.0M", FormatTokens(2_000_000))
	assert.Equal(t, "3.1B", FormatTokens(3_100_000_000))
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "$0.00", FormatMoney(0, ""))
	assert.Equal(t, "$0.0042", FormatMoney(0.0042, "$"))
	assert.Equal(t, "€12.50", FormatMoney(12.5, "€"))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "now", FormatDuration(0))
	assert.Equal(t, "1m", FormatDuration(10*time.Second))
	assert.Equal(t, "4h 05m", FormatDuration(4*time.Hour+5*time.Minute))
	assert.Equal(t, "2d 3h", FormatDuration(51*time.Hour))
}

func TestFormatWindowUsage(t *testing.T) {
	assert.Equal(t, "-", FormatWindowUsage(nil))
	assert.Equal(t, "42%", FormatWindowUsage(core.Percent(42)))
	assert.Equal(t, "1.2M tokens", FormatWindowUsage(core.Tokens(1_200_000, 0)))
	assert.Equal(t, "1.0M / 5.0M tokens", FormatWindowUsage(core.Tokens(1_000_000, 5_000_000)))
}

func TestFormatAge(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "never", FormatAge(time.Time{}, now))
	assert.Equal(t, "just now", FormatAge(now.Add(-20*time.Second), now))
	assert.Equal(t, "5m ago", FormatAge(now.Add(-5*time.Minute), now))
}

func TestUsageGauge(t *testing.T) {
	g := ansi.Strip(UsageGauge(50, 10))
	assert.Equal(t, strings.Repeat("━", 10)+"  50.0%", g)

	assert.Contains(t, ansi.Strip(UsageGauge(-1, 10)), "N/A")
	assert.Contains(t, ansi.Strip(UsageGauge(140, 10)), "100.0%")
}

func TestStatusRendersProviderCard(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reset := now.Add(150 * time.Minute)
	money := core.NewOverageBucket(20, "$").WithConsumed(1.5)
	digest := core.ConsumptionDigest{TodayCostUSD: 0.3, WindowDays: 30, WindowCostUSD: 1.2,
		Slices: []core.ConsumptionSlice{{Day: "2026-03-01", Model: "claude-sonnet-4", CostUSD: 0.3}}}

	r := core.NewReading("claude", core.SourceAPI, core.ConfidenceHigh, now.Add(-2*time.Minute), "session 80% · week 40% (api)").
		WithUsage(core.UsagePulse{
			Session:       core.Percent(80),
			Week:          core.Percent(40),
			SessionWindow: &core.QuotaWindow{Duration: 5 * time.Hour, ResetAt: &reset},
			Money:         &money,
		}).
		WithIdentity(core.Identity{Email: "dev@example.com", Plan: "Claude Max"}).
		WithDigest(digest)

	state := core.NewPulseState()
	state.Readings["claude"] = r
	state.LastRefresh = now.Add(-2 * time.Minute)
	state.Errors = []string{"codex: boom"}

	out := ansi.Strip(Status(state, StatusOptions{
		Profiles: map[core.ProviderID]core.ProviderProfile{"claude": {ID: "claude", DisplayName: "Claude"}},
		Width:    100,
		Now:      now,
	}))

	assert.Contains(t, out, "updated 2m ago")
	assert.Contains(t, out, "Claude")
	assert.Contains(t, out, "dev@example.com · Claude Max")
	assert.Contains(t, out, "80.0%")
	assert.Contains(t, out, "resets in 2h 30m · far ahead, out in 38m")
	assert.Contains(t, out, "40.0%")
	assert.Contains(t, out, "$1.50 / $20.00 extra usage")
	assert.Contains(t, out, "today $0.30 · 30d $1.20")
	assert.Contains(t, out, "session 80% · week 40% (api)")
	assert.Contains(t, out, "! codex: boom")
}

func TestStatusTokenWindowWithoutLimit(t *testing.T) {
	now := time.Now()
	r := core.NewReading("codex", core.SourceLocalLog, core.ConfidenceLow, now, "logs").
		WithUsage(core.UsagePulse{Session: core.Tokens(1_500_000, 0)})
	state := core.NewPulseState()
	state.Readings["codex"] = r

	out := ansi.Strip(Status(state, StatusOptions{Width: 80, Now: now}))
	assert.Contains(t, out, "codex")
	assert.Contains(t, out, "1.5M tokens")
	assert.NotContains(t, out, "%")
}

func TestStatusEmpty(t *testing.T) {
	out := ansi.Strip(Status(core.NewPulseState(), StatusOptions{}))
	assert.Contains(t, out, "updated never")
	assert.Contains(t, out, "No providers reported yet.")
}

func TestCosts(t *testing.T) {
	d := core.ConsumptionDigest{
		WindowDays: 7,
		Window:     core.TokenLedger{Input: 150_000, CachedInput: 2_000, Output: 9_000},
		Slices: []core.ConsumptionSlice{
			{Day: "2026-03-01", Model: "claude-sonnet-4", Ledger: core.TokenLedger{Input: 100_000, Output: 4_000}, CostUSD: 0.36},
			{Day: "2026-03-02", Model: "gpt-5", Ledger: core.TokenLedger{Input: 50_000, CachedInput: 2_000, Output: 5_000}, CostUSD: 0.11},
		},
		WindowCostUSD: 0.47,
	}
	out, err := Costs("Claude", d)
	require.NoError(t, err)
	out = ansi.Strip(out)

	assert.Contains(t, out, "last 7 days")
	assert.Contains(t, out, "Cache write")
	assert.Contains(t, out, "claude-sonnet-4")
	assert.Contains(t, out, "100.0K")
	assert.Contains(t, out, "$0.36")
	assert.Contains(t, strings.ToLower(out), "total")
	assert.Contains(t, out, "$0.47")
}

func TestCostsEmptyDigest(t *testing.T) {
	out, err := Costs("Codex", core.EmptyDigest(30, time.Now()))
	require.NoError(t, err)
	assert.Contains(t, ansi.Strip(out), "No usage found")
}
