// Package tariff maps model identifiers to per-token USD rate cards.
package tariff

import (
	"regexp"
	"sort"
	"strings"

	"github.com/janekbaraniewski/openpulse/internal/core"
)

// Rate is a per-token price with an optional single threshold: tokens
// beyond Threshold bill at Above instead of Base.
type Rate struct {
	Base      float64
	Above     float64
	Threshold int64
}

func Flat(perToken float64) Rate { return Rate{Base: perToken} }

func Tiered(base, above float64, threshold int64) Rate {
	return Rate{Base: base, Above: above, Threshold: threshold}
}

func (r Rate) Cost(tokens int64) float64 {
	if tokens <= 0 {
		return 0
	}
	if r.Threshold <= 0 || r.Above <= 0 || tokens <= r.Threshold {
		return float64(tokens) * r.Base
	}
	return float64(r.Threshold)*r.Base + float64(tokens-r.Threshold)*r.Above
}

// RateCard prices the four ledger categories.
type RateCard struct {
	Input       Rate
	CachedInput Rate
	CacheWrite  Rate
	Output      Rate
}

func (c RateCard) Cost(l core.TokenLedger) float64 {
	return c.Input.Cost(l.Input) +
		c.CachedInput.Cost(l.CachedInput) +
		c.CacheWrite.Cost(l.CacheWrite) +
		c.Output.Cost(l.Output)
}

// Family groups models by vendor for fallback pricing.
type Family string

const (
	FamilyAnthropic Family = "anthropic"
	FamilyOpenAI    Family = "openai"
)

// Registry is a read-only lookup table. Build it with Default or New and do
// not modify it after it is shared.
type Registry struct {
	cards    map[string]RateCard
	keys     []string // longest first, for prefix matching
	fallback map[Family]RateCard
}

func New(cards map[string]RateCard, fallback map[Family]RateCard) *Registry {
	r := &Registry{
		cards:    make(map[string]RateCard, len(cards)),
		fallback: make(map[Family]RateCard, len(fallback)),
	}
	for k, v := range cards {
		r.cards[strings.ToLower(k)] = v
	}
	for k, v := range fallback {
		r.fallback[k] = v
	}
	r.reindex()
	return r
}

func (r *Registry) reindex() {
	r.keys = r.keys[:0]
	for k := range r.cards {
		r.keys = append(r.keys, k)
	}
	sort.Slice(r.keys, func(i, j int) bool {
		if len(r.keys[i]) == len(r.keys[j]) {
			return r.keys[i] < r.keys[j]
		}
		return len(r.keys[i]) > len(r.keys[j])
	})
}

// Lookup resolves a raw model identifier. found is false when the card came
// from the family fallback.
func (r *Registry) Lookup(model string, family Family) (card RateCard, found bool) {
	raw := strings.ToLower(strings.TrimSpace(model))
	normalized := Normalize(raw)

	for _, candidate := range []string{normalized, raw} {
		if candidate == "" {
			continue
		}
		if c, ok := r.cards[candidate]; ok {
			return c, true
		}
	}
	for _, candidate := range []string{normalized, raw} {
		if candidate == "" {
			continue
		}
		for _, k := range r.keys {
			if strings.HasPrefix(candidate, k) {
				return r.cards[k], true
			}
		}
	}
	return r.Fallback(GuessFamily(raw, family)), false
}

func (r *Registry) Fallback(family Family) RateCard {
	if c, ok := r.fallback[family]; ok {
		return c
	}
	return r.fallback[FamilyAnthropic]
}

// ComputeCost prices a ledger for the given model.
func (r *Registry) ComputeCost(model string, family Family, l core.TokenLedger) float64 {
	card, _ := r.Lookup(model, family)
	return card.Cost(l)
}

var (
	dateSuffix     = regexp.MustCompile(`[-@](20\d{2}-?\d{2}-?\d{2})$`)
	bedrockVersion = regexp.MustCompile(`-v\d+(:\d+)?$`)
)

// Normalize strips vendor namespaces ("anthropic/", "us.anthropic."),
// version tags and date stamps: "anthropic/claude-sonnet-4-20250514" becomes
// "claude-sonnet-4".
func Normalize(model string) string {
	m := strings.ToLower(strings.TrimSpace(model))
	if i := strings.LastIndex(m, "/"); i >= 0 {
		m = m[i+1:]
	}
	for _, prefix := range []string{"us.", "eu.", "apac.", "global."} {
		m = strings.TrimPrefix(m, prefix)
	}
	for _, prefix := range []string{"anthropic.", "openai."} {
		m = strings.TrimPrefix(m, prefix)
	}
	m = bedrockVersion.ReplaceAllString(m, "")
	m = dateSuffix.ReplaceAllString(m, "")
	return m
}

// GuessFamily infers the vendor from the model name, falling back to def.
func GuessFamily(model string, def Family) Family {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "claude"), strings.Contains(m, "opus"),
		strings.Contains(m, "sonnet"), strings.Contains(m, "haiku"):
		return FamilyAnthropic
	case strings.Contains(m, "gpt"), strings.Contains(m, "codex"),
		strings.HasPrefix(Normalize(m), "o1"), strings.HasPrefix(Normalize(m), "o3"),
		strings.HasPrefix(Normalize(m), "o4"):
		return FamilyOpenAI
	default:
		return def
	}
}
