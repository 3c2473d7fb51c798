package parsers

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ParseResetTime accepts a unix timestamp, an RFC3339 time or a Go
// duration relative to now.
func ParseResetTime(val string, now time.Time) *time.Time {
	val = strings.TrimSpace(val)
	if val == "" {
		return nil
	}

	if ts, err := strconv.ParseFloat(val, 64); err == nil && ts > 1_000_000_000 {
		t := time.Unix(int64(ts), 0)
		return &t
	}

	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return &t
	}

	if d, err := time.ParseDuration(val); err == nil {
		t := now.Add(d)
		return &t
	}

	return nil
}

// RetryAfter reads a Retry-After header given in seconds or as an HTTP date.
func RetryAfter(h http.Header, now time.Time) (time.Duration, bool) {
	raw := strings.TrimSpace(h.Get("Retry-After"))
	if raw == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(raw); err == nil {
		if d := t.Sub(now); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}

// RedactSecret keeps only the edges of a credential.
func RedactSecret(val string) string {
	if len(val) > 8 {
		return val[:4] + "..." + val[len(val)-4:]
	}
	return "****"
}
