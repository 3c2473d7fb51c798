package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowUsagePercent(t *testing.T) {
	tests := []struct {
		name   string
		w      *WindowUsage
		want   float64
		wantOK bool
	}{
		{name: "percent", w: Percent(42), want: 42, wantOK: true},
		{name: "percent clamped", w: Percent(140), want: 100, wantOK: true},
		{name: "tokens with limit", w: Tokens(250, 1000), want: 25, wantOK: true},
		{name: "tokens without limit", w: Tokens(250, 0), want: 0, wantOK: false},
		{name: "negative tokens", w: Tokens(-5, 100), want: 0, wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.w.UsedPercent()
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestPercentFixesLimit(t *testing.T) {
	w := Percent(12.5)
	assert.Equal(t, UnitPercent, w.Unit)
	assert.Equal(t, 100.0, w.Limit)
	assert.Equal(t, 12.5, w.Used)
}

func TestConfidenceOrderAndText(t *testing.T) {
	assert.Less(t, ConfidenceUnknown, ConfidenceLow)
	assert.Less(t, ConfidenceLow, ConfidenceMedium)
	assert.Less(t, ConfidenceMedium, ConfidenceHigh)

	data, err := json.Marshal(map[string]Confidence{"c": ConfidenceMedium})
	require.NoError(t, err)
	assert.JSONEq(t, `{"c":"medium"}`, string(data))

	var back map[string]Confidence
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, ConfidenceMedium, back["c"])

	var bad Confidence
	assert.Error(t, bad.UnmarshalText([]byte("certain")))
}

func TestReadingCopiesDoNotAlias(t *testing.T) {
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	base := NewReading("claude", SourceAPI, ConfidenceHigh, now, "ok").
		WithUsage(UsagePulse{Provider: "claude", CapturedAt: now, Session: Percent(10)})

	withDigest := base.WithDigest(EmptyDigest(30, now))

	assert.Nil(t, base.Usage.Digest, "original reading must stay untouched")
	require.NotNil(t, withDigest.Usage.Digest)
	assert.Equal(t, 30, withDigest.Usage.Digest.WindowDays)
	assert.Equal(t, 10.0, withDigest.Usage.Session.Used)
}

func TestWithDigestOnReadingWithoutUsage(t *testing.T) {
	now := time.Now()
	r := NewReading("codex", SourceLocalLog, ConfidenceMedium, now, "logs").WithDigest(EmptyDigest(7, now))
	require.NotNil(t, r.Usage)
	assert.Equal(t, ProviderID("codex"), r.Usage.Provider)
	assert.Nil(t, r.Usage.Session)
}

func TestWithIdentityIgnoresEmpty(t *testing.T) {
	r := NoDataReading("claude", time.Now()).WithIdentity(Identity{})
	assert.Nil(t, r.Identity)
	assert.Equal(t, "No data", r.Summary)
	assert.Equal(t, ConfidenceUnknown, r.Confidence)
}

func TestTriggerShowsLoading(t *testing.T) {
	assert.True(t, TriggerManual.ShowsLoading(true))
	assert.True(t, TriggerInitial.ShowsLoading(false))
	assert.False(t, TriggerInitial.ShowsLoading(true))
	assert.False(t, TriggerScheduled.ShowsLoading(false))
	assert.False(t, TriggerSilent.ShowsLoading(false))
}

func TestPulseStateClone(t *testing.T) {
	s := NewPulseState()
	s.Readings["claude"] = NoDataReading("claude", time.Now())
	s.Errors = []string{"boom"}

	c := s.Clone()
	c.Readings["codex"] = NoDataReading("codex", time.Now())
	c.Errors[0] = "changed"

	assert.Len(t, s.Readings, 1)
	assert.Equal(t, "boom", s.Errors[0])
	assert.Equal(t, []ProviderID{"claude", "codex"}, c.Providers())
}
