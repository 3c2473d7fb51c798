package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/janekbaraniewski/openpulse/internal/core"
	"github.com/janekbaraniewski/openpulse/internal/pace"
)

const (
	DefaultWidth = 72
	minWidth     = 40
)

type StatusOptions struct {
	// Profiles supplies display names and brand colors; unknown providers
	// fall back to their id.
	Profiles map[core.ProviderID]core.ProviderProfile
	Width    int
	Now      time.Time
}

// Status renders one card per provider in id order, then any cycle errors.
func Status(state core.PulseState, opts StatusOptions) string {
	width := max(opts.Width, minWidth)
	if opts.Width <= 0 {
		width = DefaultWidth
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	var blocks []string
	header := headingStyle.Render("openpulse") + dimStyle.Render("  updated "+FormatAge(state.LastRefresh, now))
	if state.Refreshing {
		header += warnStyle.Render("  refreshing…")
	}
	blocks = append(blocks, header)

	ids := state.Providers()
	if len(ids) == 0 {
		blocks = append(blocks, dimStyle.Render("No providers reported yet."))
	}
	for _, id := range ids {
		profile, ok := opts.Profiles[id]
		if !ok {
			profile = core.ProviderProfile{ID: id, DisplayName: string(id)}
		}
		blocks = append(blocks, providerCard(state.Readings[id], profile, width, now))
	}
	for _, e := range state.Errors {
		blocks = append(blocks, errorStyle.Render("! "+ansi.Truncate(e, width, "…")))
	}
	return lipgloss.JoinVertical(lipgloss.Left, blocks...) + "\n"
}

func providerCard(r core.Reading, profile core.ProviderProfile, width int, now time.Time) string {
	inner := width - 4
	title := lipgloss.NewStyle().Bold(true)
	if profile.BrandColor != "" {
		title = title.Foreground(lipgloss.Color(profile.BrandColor))
	}
	meta := joinNonEmpty(" · ", r.Confidence.String(), string(r.Source), FormatAge(r.CapturedAt, now))
	lines := []string{title.Render(profile.DisplayName) + "  " + dimStyle.Render(meta)}

	if r.Identity != nil {
		if id := joinNonEmpty(" · ", r.Identity.Email, r.Identity.Plan, r.Identity.Org); id != "" {
			lines = append(lines, dimStyle.Render(ansi.Truncate(id, inner, "…")))
		}
	}

	if u := r.Usage; u != nil {
		gaugeWidth := max(inner/3, 10)
		lines = append(lines,
			windowLine("Session", u.Session, u.SessionWindow, gaugeWidth, now),
			windowLine("Week", u.Week, u.WeekWindow, gaugeWidth, now),
		)
		if u.Money != nil {
			lines = append(lines, labelStyle.Render("Money")+valueStyle.Render(moneyText(*u.Money)))
		}
		if u.Digest != nil && !u.Digest.IsEmpty() {
			lines = append(lines, labelStyle.Render("Spend")+valueStyle.Render(digestText(*u.Digest)))
		}
	}
	lines = append(lines, dimStyle.Render(ansi.Truncate(r.Summary, inner, "…")))
	return cardStyle.Width(width - 2).Render(strings.Join(lines, "\n"))
}

func windowLine(label string, w *core.WindowUsage, q *core.QuotaWindow, gaugeWidth int, now time.Time) string {
	if w == nil {
		return labelStyle.Render(label) + dimStyle.Render("-")
	}
	pct, ok := w.UsedPercent()
	if !ok {
		return labelStyle.Render(label) + valueStyle.Render(FormatWindowUsage(w)) + "  " + dimStyle.Render(FormatReset(q, now))
	}
	line := labelStyle.Render(label) + UsageGauge(pct, gaugeWidth)
	if w.Unit == core.UnitTokens {
		line += "  " + valueStyle.Render(FormatWindowUsage(w))
	}
	return line + "  " + dimStyle.Render(joinNonEmpty(" · ", FormatReset(q, now), paceText(pct, q, now)))
}

func paceText(pct float64, q *core.QuotaWindow, now time.Time) string {
	if q == nil {
		return ""
	}
	p, ok := pace.Compute(pct, q.ResetAt, q.Duration, now)
	if !ok {
		return ""
	}
	if p.WillLastToReset || p.ETA <= 0 {
		return p.Stage.String()
	}
	return fmt.Sprintf("%s, out in %s", p.Stage, FormatDuration(p.ETA))
}

func moneyText(b core.MonetaryBucket) string {
	if b.Kind == core.MoneyPrepaidBalance {
		return FormatMoney(b.Available(), b.Currency) + " balance"
	}
	return fmt.Sprintf("%s / %s extra usage", FormatMoney(b.Consumed, b.Currency), FormatMoney(b.Ceiling, b.Currency))
}

func digestText(d core.ConsumptionDigest) string {
	return fmt.Sprintf("today %s · %dd %s", FormatMoney(d.TodayCostUSD, "$"), d.WindowDays, FormatMoney(d.WindowCostUSD, "$"))
}
