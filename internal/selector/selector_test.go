package selector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janekbaraniewski/openpulse/internal/core"
)

var base = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

type fakeSource struct {
	name    string
	reading core.Reading
	err     error
	delay   time.Duration
	panics  bool
}

func (f *fakeSource) Profile() core.ProviderProfile {
	return core.ProviderProfile{ID: f.reading.Provider, DisplayName: "Fake"}
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Read(ctx context.Context) (core.Reading, error) {
	if f.panics {
		panic("boom")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return core.Reading{}, ctx.Err()
		}
	}
	return f.reading, f.err
}

func reading(c core.Confidence, at time.Time, summary string) core.Reading {
	return core.NewReading("claude", core.SourceAPI, c, at, summary)
}

func src(name string, r core.Reading) *fakeSource { return &fakeSource{name: name, reading: r} }

func TestSelectPrefersConfidence(t *testing.T) {
	s := New(nil)
	got, err := s.Select(context.Background(), "claude", []core.SignalSource{
		src("cli", reading(core.ConfidenceLow, base.Add(2*time.Hour), "low")),
		src("api", reading(core.ConfidenceHigh, base, "high")),
		src("logs", reading(core.ConfidenceMedium, base.Add(time.Hour), "medium")),
	})
	require.NoError(t, err)
	assert.Equal(t, "high", got.Summary)
}

func TestSelectBreaksTiesByRecency(t *testing.T) {
	s := New(nil)
	got, err := s.Select(context.Background(), "claude", []core.SignalSource{
		src("a", reading(core.ConfidenceHigh, base, "older")),
		src("b", reading(core.ConfidenceHigh, base.Add(time.Minute), "newer")),
	})
	require.NoError(t, err)
	assert.Equal(t, "newer", got.Summary)
}

func TestSelectAllFailing(t *testing.T) {
	s := New(nil, WithClock(func() time.Time { return base }))
	got, err := s.Select(context.Background(), "codex", []core.SignalSource{
		&fakeSource{name: "api", err: errors.New("401")},
		&fakeSource{name: "panicky", panics: true},
	})
	require.NoError(t, err)
	assert.Equal(t, core.ConfidenceUnknown, got.Confidence)
	assert.Equal(t, "No data", got.Summary)
	assert.Equal(t, core.ProviderID("codex"), got.Provider)
	assert.Nil(t, got.Usage)
	assert.Nil(t, got.Identity)
	assert.True(t, base.Equal(got.CapturedAt))
}

func TestSelectNoSources(t *testing.T) {
	got, err := New(nil).Select(context.Background(), "codex", nil)
	require.NoError(t, err)
	assert.Equal(t, "No data", got.Summary)
}

func TestSelectExcludesFailures(t *testing.T) {
	got, err := New(nil).Select(context.Background(), "claude", []core.SignalSource{
		&fakeSource{name: "api", reading: reading(core.ConfidenceHigh, base, "broken"), err: errors.New("nope")},
		src("logs", reading(core.ConfidenceMedium, base, "logs")),
	})
	require.NoError(t, err)
	assert.Equal(t, "logs", got.Summary)
}

func TestSelectCancelledDoesNotWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	slow := &fakeSource{name: "slow", reading: reading(core.ConfidenceHigh, base, "slow"), delay: time.Hour}

	done := make(chan error, 1)
	go func() {
		_, err := New(nil).Select(ctx, "claude", []core.SignalSource{slow})
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("select did not return after cancellation")
	}
}

func TestSelectSourceTimeout(t *testing.T) {
	slow := &fakeSource{name: "slow", reading: reading(core.ConfidenceHigh, base, "slow"), delay: time.Hour}
	got, err := New(nil, WithTimeout(20*time.Millisecond)).Select(context.Background(), "claude", []core.SignalSource{
		slow,
		src("logs", reading(core.ConfidenceMedium, base, "logs")),
	})
	require.NoError(t, err)
	assert.Equal(t, "logs", got.Summary)
}

func TestObserverSeesEveryRead(t *testing.T) {
	var (
		mu   sync.Mutex
		seen = map[string]bool{}
	)
	s := New(nil, WithObserver(func(o Outcome) {
		mu.Lock()
		defer mu.Unlock()
		seen[o.Source] = o.Err == nil
	}))
	_, err := s.Select(context.Background(), "claude", []core.SignalSource{
		src("ok", reading(core.ConfidenceLow, base, "ok")),
		&fakeSource{name: "bad", panics: true},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"ok": true, "bad": false}, seen)
}

func TestBestIsDeterministic(t *testing.T) {
	a := reading(core.ConfidenceMedium, base, "a")
	b := reading(core.ConfidenceMedium, base, "b")
	for i := 0; i < 10; i++ {
		assert.Equal(t, "a", Best([]core.Reading{a, b}, "claude", base).Summary)
	}
	assert.Equal(t, "No data", Best(nil, "claude", base).Summary)
}
