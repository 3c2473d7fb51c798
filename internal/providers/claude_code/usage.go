package claude_code

import (
	"fmt"
	"strings"
	"time"

	"github.com/janekbaraniewski/openpulse/internal/core"
	"github.com/janekbaraniewski/openpulse/internal/parsers"
)

const (
	sessionWindow = 5 * time.Hour
	weekWindow    = 7 * 24 * time.Hour
)

// usageResponse is the body of both the OAuth usage endpoint and the
// claude.ai organization usage endpoint.
type usageResponse struct {
	FiveHour       *usageBucket `json:"five_hour"`
	SevenDay       *usageBucket `json:"seven_day"`
	SevenDaySonnet *usageBucket `json:"seven_day_sonnet"`
	SevenDayOpus   *usageBucket `json:"seven_day_opus"`
	ExtraUsage     *extraUsage  `json:"extra_usage"`
}

type usageBucket struct {
	Utilization float64 `json:"utilization"`
	ResetsAt    string  `json:"resets_at"`
}

// extraUsage amounts are in cents.
type extraUsage struct {
	IsEnabled    bool     `json:"is_enabled"`
	MonthlyLimit *float64 `json:"monthly_limit"`
	UsedCredits  *float64 `json:"used_credits"`
}

// toPulse maps a usage response. A bucket whose reset time has already
// passed reports 0% so a stale 100% does not outlive its window.
func (u *usageResponse) toPulse(now time.Time) (core.UsagePulse, bool) {
	pulse := core.UsagePulse{Provider: ProviderID, CapturedAt: now}
	if u == nil {
		return pulse, false
	}
	pulse.Session, pulse.SessionWindow = u.FiveHour.window(sessionWindow, now)
	pulse.Week, pulse.WeekWindow = u.SevenDay.window(weekWindow, now)

	if ex := u.ExtraUsage; ex != nil && ex.IsEnabled && ex.MonthlyLimit != nil {
		bucket := core.NewOverageBucket(*ex.MonthlyLimit/100, "$")
		if ex.UsedCredits != nil {
			bucket = bucket.WithConsumed(*ex.UsedCredits / 100)
		}
		pulse.Money = &bucket
	}
	return pulse, pulse.Session != nil || pulse.Week != nil
}

func (b *usageBucket) window(d time.Duration, now time.Time) (*core.WindowUsage, *core.QuotaWindow) {
	if b == nil {
		return nil, nil
	}
	util := b.Utilization
	w := &core.QuotaWindow{Duration: d}
	if t := parsers.ParseResetTime(b.ResetsAt, now); t != nil {
		if !t.After(now) {
			util = 0
		}
		w.ResetAt = t
	}
	return core.Percent(util), w
}

func usageSummary(p core.UsagePulse, via string) string {
	var parts []string
	if p.Session != nil {
		parts = append(parts, fmt.Sprintf("session %.0f%%", p.Session.Used))
	}
	if p.Week != nil {
		parts = append(parts, fmt.Sprintf("week %.0f%%", p.Week.Used))
	}
	if p.Money != nil {
		parts = append(parts, fmt.Sprintf("extra $%.2f/$%.2f", p.Money.Consumed, p.Money.Ceiling))
	}
	return strings.Join(parts, " · ") + " (" + via + ")"
}

// planName turns subscriptionType ("max", "pro", "team") into a label.
func planName(subscription string) string {
	subscription = strings.TrimSpace(subscription)
	if subscription == "" {
		return ""
	}
	return "Claude " + strings.ToUpper(subscription[:1]) + subscription[1:]
}
