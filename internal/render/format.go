// Package render draws pulse state and cost digests for the terminal.
package render

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/janekbaraniewski/openpulse/internal/core"
)

func FormatTokens(value int64) string {
	switch {
	case value >= 1_000_000_000:
		return fmt.Sprintf("%.1fB", float64(value)/1_000_000_000)
	case value >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(value)/1_000_000)
	case value >= 1_000:
		return fmt.Sprintf("%.1fK", float64(value)/1_000)
	default:
		return fmt.Sprintf("%d", value)
	}
}

// FormatMoney renders an amount with its currency symbol. Tiny non-zero
// amounts keep enough digits to stay visible.
func FormatMoney(amount float64, currency string) string {
	if currency == "" {
		currency = "$"
	}
	switch {
	case amount == 0:
		return currency + "0.00"
	case math.Abs(amount) < 0.01:
		return fmt.Sprintf("%s%.4f", currency, amount)
	default:
		return fmt.Sprintf("%s%.2f", currency, amount)
	}
}

// FormatDuration renders d as "2d 3h", "4h 05m" or "12m".
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "now"
	}
	d = d.Round(time.Minute)
	days := int(d / (24 * time.Hour))
	hours := int(d % (24 * time.Hour) / time.Hour)
	minutes := int(d % time.Hour / time.Minute)
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %02dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", max(minutes, 1))
	}
}

// FormatWindowUsage renders a window as "42%" or "1.2M / 5.0M tokens".
func FormatWindowUsage(w *core.WindowUsage) string {
	if w == nil {
		return "-"
	}
	if w.Unit == core.UnitPercent {
		return fmt.Sprintf("%.0f%%", w.Used)
	}
	used := FormatTokens(int64(w.Used))
	if !w.HasLimit() {
		return used + " tokens"
	}
	return fmt.Sprintf("%s / %s tokens", used, FormatTokens(int64(w.Limit)))
}

// FormatReset renders the time until a window resets.
func FormatReset(w *core.QuotaWindow, now time.Time) string {
	if w == nil || w.ResetAt == nil {
		return ""
	}
	return "resets in " + FormatDuration(w.ResetAt.Sub(now))
}

// FormatAge renders how long ago t was, "just now" under a minute.
func FormatAge(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	if d < time.Minute {
		return "just now"
	}
	return FormatDuration(d) + " ago"
}

func joinNonEmpty(sep string, parts ...string) string {
	return strings.Join(lo.Filter(parts, func(p string, _ int) bool { return strings.TrimSpace(p) != "" }), sep)
}
