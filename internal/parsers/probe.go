package parsers

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ProbeResult is what could be recovered from a provider CLI's free-text
// status output. Percentages are always "used", 0..100.
type ProbeResult struct {
	SessionPercent *float64
	WeekPercent    *float64
	SessionReset   *time.Time
	WeekReset      *time.Time
}

func (r ProbeResult) Empty() bool {
	return r.SessionPercent == nil && r.WeekPercent == nil
}

type probeWindow int

const (
	probeNone probeWindow = iota
	probeSession
	probeWeek
)

var (
	percentRe      = regexp.MustCompile(`(\d{1,3}(?:\.\d+)?)\s*%\s*(used|left|remaining|consumed)?`)
	durationPartRe = regexp.MustCompile(`^(\d+)\s*(days|day|d|hours|hour|hrs|hr|h|minutes|minute|mins|min|m|seconds|second|secs|sec|s)`)
	clockRe        = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*(am|pm)?`)
)

// ParseProbe scans status output line by line. A line naming a window
// ("session", "5h", "week", "7d") makes it current; percentages and reset
// phrases on that or following lines apply to it. Percentages reported as
// "left" or "remaining" are converted to used. The first value seen for a
// window wins.
func ParseProbe(text string, now time.Time) ProbeResult {
	var (
		res     ProbeResult
		current = probeNone
	)
	for _, raw := range strings.Split(text, "\n") {
		line := strings.ToLower(strings.TrimSpace(raw))
		if line == "" {
			continue
		}

		label, tail := line, ""
		if idx := strings.Index(line, "reset"); idx >= 0 {
			label, tail = line[:idx], line[idx+len("reset"):]
		}
		if w := windowOf(label); w != probeNone {
			current = w
		}
		if current == probeNone {
			continue
		}

		pct, hasPct := percentUsed(label, line)
		var reset *time.Time
		if tail != "" {
			reset = parseResetPhrase(tail, now)
		}

		switch current {
		case probeSession:
			if hasPct && res.SessionPercent == nil {
				res.SessionPercent = &pct
			}
			if reset != nil && res.SessionReset == nil {
				res.SessionReset = reset
			}
		case probeWeek:
			if hasPct && res.WeekPercent == nil {
				res.WeekPercent = &pct
			}
			if reset != nil && res.WeekReset == nil {
				res.WeekReset = reset
			}
		}
	}
	return res
}

func windowOf(label string) probeWindow {
	switch {
	case strings.Contains(label, "week"), strings.Contains(label, "7d"),
		strings.Contains(label, "7-day"), strings.Contains(label, "7 day"):
		return probeWeek
	case strings.Contains(label, "session"), strings.Contains(label, "5h"),
		strings.Contains(label, "5-hour"), strings.Contains(label, "5 hour"):
		return probeSession
	}
	return probeNone
}

func percentUsed(label, line string) (float64, bool) {
	m := percentRe.FindStringSubmatch(label)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	remaining := m[2] == "left" || m[2] == "remaining"
	if m[2] == "" {
		remaining = strings.Contains(line, "left") || strings.Contains(line, "remaining")
	}
	v = min(max(v, 0), 100)
	if remaining {
		v = 100 - v
	}
	return v, true
}

// parseResetPhrase reads what follows the word "reset": a relative
// duration ("in 2h 15m", "3 days") or a clock time ("5pm", "at 14:30"),
// which resolves to its next occurrence after now.
func parseResetPhrase(tail string, now time.Time) *time.Time {
	tail = strings.TrimLeft(tail, "s:")
	tail = strings.TrimSpace(tail)
	for _, prefix := range []string{"in ", "at ", "on "} {
		tail = strings.TrimPrefix(tail, prefix)
	}

	if d, ok := parseRelative(tail); ok {
		t := now.Add(d)
		return &t
	}
	if t, ok := parseClock(tail, now); ok {
		return &t
	}
	return nil
}

func parseRelative(s string) (time.Duration, bool) {
	var (
		total   time.Duration
		matched bool
	)
	for {
		s = strings.TrimSpace(s)
		loc := durationPartRe.FindStringSubmatchIndex(s)
		if loc == nil {
			break
		}
		if loc[1] < len(s) && isLetter(s[loc[1]]) {
			break
		}
		n, err := strconv.Atoi(s[loc[2]:loc[3]])
		if err != nil {
			break
		}
		total += time.Duration(n) * unitDuration(s[loc[4]])
		matched = true
		s = strings.TrimLeft(s[loc[1]:], " ,")
		s = strings.TrimPrefix(s, "and ")
	}
	return total, matched
}

func unitDuration(unit byte) time.Duration {
	switch unit {
	case 'd':
		return 24 * time.Hour
	case 'h':
		return time.Hour
	case 'm':
		return time.Minute
	default:
		return time.Second
	}
}

func parseClock(s string, now time.Time) (time.Time, bool) {
	m := clockRe.FindStringSubmatch(s)
	if m == nil || (m[2] == "" && m[3] == "") {
		return time.Time{}, false
	}
	hour, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, false
	}
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	switch m[3] {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	if hour > 23 || minute > 59 {
		return time.Time{}, false
	}

	t := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !t.After(now) {
		t = t.AddDate(0, 0, 1)
	}
	return t, true
}

func isLetter(b byte) bool {
	return b >= 'a' && b <= 'z'
}
