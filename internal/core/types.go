package core

import (
	"fmt"
	"strings"
	"time"
)

// ProviderID identifies one assistant backend ("claude", "codex").
type ProviderID string

type Confidence int

const (
	ConfidenceUnknown Confidence = iota
	ConfidenceLow
	ConfidenceMedium
	ConfidenceHigh
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceLow:
		return "low"
	case ConfidenceMedium:
		return "medium"
	case ConfidenceHigh:
		return "high"
	default:
		return "unknown"
	}
}

func (c Confidence) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Confidence) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "low":
		*c = ConfidenceLow
	case "medium":
		*c = ConfidenceMedium
	case "high":
		*c = ConfidenceHigh
	case "", "unknown":
		*c = ConfidenceUnknown
	default:
		return fmt.Errorf("core: unknown confidence %q", string(text))
	}
	return nil
}

// Source records where a reading came from. It is informational only and
// never participates in selection.
type Source string

const (
	SourceUnknown  Source = "unknown"
	SourceCLI      Source = "cli"
	SourceLocalLog Source = "local_log"
	SourceCookie   Source = "cookie"
	SourceWebProbe Source = "web_probe"
	SourceAPI      Source = "api"
)

type UsageUnit string

const (
	UnitPercent UsageUnit = "percent"
	UnitTokens  UsageUnit = "tokens"
)

// WindowUsage is the consumption of one quota window with an explicit unit.
// Percent readings always carry Limit == 100. Token readings carry the
// configured ceiling, or 0 when no ceiling is known.
type WindowUsage struct {
	Unit  UsageUnit `json:"unit"`
	Used  float64   `json:"used"`
	Limit float64   `json:"limit"`
}

func Percent(used float64) *WindowUsage {
	return &WindowUsage{Unit: UnitPercent, Used: ClampPercent(used), Limit: 100}
}

func Tokens(used int64, limit int64) *WindowUsage {
	if used < 0 {
		used = 0
	}
	if limit < 0 {
		limit = 0
	}
	return &WindowUsage{Unit: UnitTokens, Used: float64(used), Limit: float64(limit)}
}

func (w WindowUsage) HasLimit() bool { return w.Limit > 0 }

// UsedPercent converts the usage to a 0..100 scale. It returns false for
// token usage without a ceiling.
func (w WindowUsage) UsedPercent() (float64, bool) {
	switch {
	case w.Unit == UnitPercent:
		return ClampPercent(w.Used), true
	case w.Limit > 0:
		return ClampPercent(w.Used / w.Limit * 100), true
	default:
		return 0, false
	}
}

func ClampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// QuotaWindow describes a window length and, when known, its next reset.
type QuotaWindow struct {
	Duration time.Duration `json:"duration"`
	ResetAt  *time.Time    `json:"reset_at,omitempty"`
}

// UsagePulse is the usage payload of a reading.
type UsagePulse struct {
	Provider      ProviderID         `json:"provider"`
	CapturedAt    time.Time          `json:"captured_at"`
	Session       *WindowUsage       `json:"session,omitempty"`
	Week          *WindowUsage       `json:"week,omitempty"`
	SessionWindow *QuotaWindow       `json:"session_window,omitempty"`
	WeekWindow    *QuotaWindow       `json:"week_window,omitempty"`
	Money         *MonetaryBucket    `json:"money,omitempty"`
	Digest        *ConsumptionDigest `json:"digest,omitempty"`
}

// Identity is the account/plan description a source could attach.
type Identity struct {
	Email string `json:"email,omitempty"`
	Plan  string `json:"plan,omitempty"`
	Org   string `json:"org,omitempty"`
}

// Reading is one source's immutable answer for one provider. Build it once
// with NewReading or the With* copies; fields are never mutated in place.
type Reading struct {
	Provider   ProviderID  `json:"provider"`
	Usage      *UsagePulse `json:"usage,omitempty"`
	Identity   *Identity   `json:"identity,omitempty"`
	Summary    string      `json:"summary"`
	CapturedAt time.Time   `json:"captured_at"`
	Confidence Confidence  `json:"confidence"`
	Source     Source      `json:"source"`
}

func NewReading(provider ProviderID, source Source, confidence Confidence, capturedAt time.Time, summary string) Reading {
	return Reading{
		Provider:   provider,
		Source:     source,
		Confidence: confidence,
		CapturedAt: capturedAt,
		Summary:    summary,
	}
}

// NoDataReading is the synthetic answer used when no source produced anything.
func NoDataReading(provider ProviderID, now time.Time) Reading {
	return NewReading(provider, SourceUnknown, ConfidenceUnknown, now, "No data")
}

func (r Reading) WithUsage(u UsagePulse) Reading {
	r.Usage = &u
	return r
}

func (r Reading) WithIdentity(id Identity) Reading {
	if id == (Identity{}) {
		return r
	}
	r.Identity = &id
	return r
}

// WithDigest returns a copy whose usage carries the digest. A reading
// without usage gets a minimal usage pulse so the digest has a home.
func (r Reading) WithDigest(d ConsumptionDigest) Reading {
	var u UsagePulse
	if r.Usage != nil {
		u = *r.Usage
	} else {
		u = UsagePulse{Provider: r.Provider, CapturedAt: r.CapturedAt}
	}
	u.Digest = &d
	r.Usage = &u
	return r
}

func (r Reading) HasUsage() bool { return r.Usage != nil }
