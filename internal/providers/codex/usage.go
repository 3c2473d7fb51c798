package codex

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/janekbaraniewski/openpulse/internal/core"
)

const (
	sessionWindow = 5 * time.Hour
	weekWindow    = 7 * 24 * time.Hour

	// maxPlausibleBalance is the largest dollar balance taken at face
	// value; larger figures are cents.
	maxPlausibleBalance = 100_000
)

type usagePayload struct {
	AccountID string             `json:"account_id,omitempty"`
	Email     string             `json:"email,omitempty"`
	PlanType  string             `json:"plan_type,omitempty"`
	RateLimit *usageLimitDetails `json:"rate_limit,omitempty"`
	Credits   *usageCredits      `json:"credits,omitempty"`
}

type usageLimitDetails struct {
	Allowed         bool             `json:"allowed"`
	LimitReached    bool             `json:"limit_reached"`
	PrimaryWindow   *usageWindowInfo `json:"primary_window,omitempty"`
	SecondaryWindow *usageWindowInfo `json:"secondary_window,omitempty"`
}

type usageWindowInfo struct {
	UsedPercent        float64 `json:"used_percent"`
	LimitWindowSeconds int64   `json:"limit_window_seconds"`
	ResetAt            int64   `json:"reset_at"`
}

type usageCredits struct {
	HasCredits bool `json:"has_credits"`
	Unlimited  bool `json:"unlimited"`
	Balance    any  `json:"balance"`
}

// toPulse maps the primary window to the session and the secondary window
// to the week.
func (p *usagePayload) toPulse(now time.Time) (core.UsagePulse, bool) {
	pulse := core.UsagePulse{Provider: ProviderID, CapturedAt: now}
	if p == nil {
		return pulse, false
	}
	if rl := p.RateLimit; rl != nil {
		pulse.Session, pulse.SessionWindow = rl.PrimaryWindow.window(sessionWindow)
		pulse.Week, pulse.WeekWindow = rl.SecondaryWindow.window(weekWindow)
	}
	if bucket, ok := p.Credits.bucket(); ok {
		pulse.Money = &bucket
	}
	return pulse, pulse.Session != nil || pulse.Week != nil || pulse.Money != nil
}

func (w *usageWindowInfo) window(def time.Duration) (*core.WindowUsage, *core.QuotaWindow) {
	if w == nil {
		return nil, nil
	}
	q := &core.QuotaWindow{Duration: def}
	if w.LimitWindowSeconds > 0 {
		q.Duration = time.Duration(w.LimitWindowSeconds) * time.Second
	}
	if w.ResetAt > 0 {
		t := time.Unix(w.ResetAt, 0)
		q.ResetAt = &t
	}
	return core.Percent(w.UsedPercent), q
}

// bucket reports a prepaid credit balance. Unlimited plans and accounts
// without credits have none.
func (c *usageCredits) bucket() (core.MonetaryBucket, bool) {
	if c == nil || c.Unlimited || !c.HasCredits {
		return core.MonetaryBucket{}, false
	}
	balance, ok := parseBalance(c.Balance)
	if !ok {
		return core.MonetaryBucket{}, false
	}
	if balance > maxPlausibleBalance {
		balance /= 100
	}
	return core.NewPrepaidBucket(balance, "$"), true
}

func parseBalance(balance any) (float64, bool) {
	switch v := balance.(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
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
		parts = append(parts, fmt.Sprintf("credits $%.2f", p.Money.Available()))
	}
	return strings.Join(parts, " · ") + " (" + via + ")"
}

// planName turns plan_type ("plus", "pro", "team") into a label.
func planName(plan string) string {
	plan = strings.TrimSpace(plan)
	if plan == "" {
		return ""
	}
	return "ChatGPT " + strings.ToUpper(plan[:1]) + plan[1:]
}
