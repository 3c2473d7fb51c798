package parsers

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResetTime(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	ts := ParseResetTime("1700000000", now)
	require.NotNil(t, ts)
	assert.True(t, ts.Equal(time.Unix(1700000000, 0)))

	ts = ParseResetTime("2026-05-01T12:30:00.481Z", now)
	require.NotNil(t, ts)
	assert.Equal(t, 12, ts.Hour())

	ts = ParseResetTime("30s", now)
	require.NotNil(t, ts)
	assert.True(t, ts.Equal(now.Add(30*time.Second)))

	assert.Nil(t, ParseResetTime("", now))
	assert.Nil(t, ParseResetTime("tomorrow", now))
}

func TestRetryAfter(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	h := http.Header{}
	_, ok := RetryAfter(h, now)
	assert.False(t, ok)

	h.Set("Retry-After", "120")
	d, ok := RetryAfter(h, now)
	assert.True(t, ok)
	assert.Equal(t, 2*time.Minute, d)

	h.Set("Retry-After", now.Add(time.Hour).Format(http.TimeFormat))
	d, ok = RetryAfter(h, now)
	assert.True(t, ok)
	assert.Equal(t, time.Hour, d)

	h.Set("Retry-After", "soon")
	_, ok = RetryAfter(h, now)
	assert.False(t, ok)
}

func TestRedactSecret(t *testing.T) {
	assert.Equal(t, "sk-a...7890", RedactSecret("sk-ant-1234567890"))
	assert.Equal(t, "****", RedactSecret("short"))
}
