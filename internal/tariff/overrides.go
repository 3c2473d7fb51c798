package tariff

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
)

// liteLLMEntry is the subset of the LiteLLM model price file that maps onto
// a RateCard.
type liteLLMEntry struct {
	InputPerToken                float64 `json:"input_cost_per_token"`
	OutputPerToken               float64 `json:"output_cost_per_token"`
	CacheReadPerToken            float64 `json:"cache_read_input_token_cost"`
	CacheCreatePerToken          float64 `json:"cache_creation_input_token_cost"`
	InputPerTokenAbove200k       float64 `json:"input_cost_per_token_above_200k_tokens"`
	OutputPerTokenAbove200k      float64 `json:"output_cost_per_token_above_200k_tokens"`
	CacheReadPerTokenAbove200k   float64 `json:"cache_read_input_token_cost_above_200k_tokens"`
	CacheCreatePerTokenAbove200k float64 `json:"cache_creation_input_token_cost_above_200k_tokens"`
}

func (e liteLLMEntry) card() RateCard {
	rate := func(base, above float64) Rate {
		if above > 0 {
			return Tiered(base, above, longContextThreshold)
		}
		return Flat(base)
	}
	return RateCard{
		Input:       rate(e.InputPerToken, e.InputPerTokenAbove200k),
		CachedInput: rate(e.CacheReadPerToken, e.CacheReadPerTokenAbove200k),
		CacheWrite:  rate(e.CacheCreatePerToken, e.CacheCreatePerTokenAbove200k),
		Output:      rate(e.OutputPerToken, e.OutputPerTokenAbove200k),
	}
}

// ParseOverrides decodes a LiteLLM-format price document. Entries without
// any input or output price are ignored.
func ParseOverrides(data []byte) (map[string]RateCard, error) {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("tariff: parse overrides: %w", err)
	}
	out := make(map[string]RateCard, len(raw))
	for model, msg := range raw {
		var e liteLLMEntry
		// LiteLLM ships a "sample_spec" entry with string values; skip
		// anything that does not decode.
		if err := json.Unmarshal(msg, &e); err != nil {
			continue
		}
		if e.InputPerToken == 0 && e.OutputPerToken == 0 {
			continue
		}
		out[model] = e.card()
	}
	return out, nil
}

// WithOverrides returns a new registry with cards layered over r.
func (r *Registry) WithOverrides(cards map[string]RateCard) *Registry {
	merged := maps.Clone(r.cards)
	for k, v := range cards {
		merged[Normalize(k)] = v
	}
	return New(merged, r.fallback)
}

// LoadWithOverrides returns the default registry, merged with the file at
// path when path is non-empty.
func LoadWithOverrides(path string) (*Registry, error) {
	reg := Default()
	if path == "" {
		return reg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tariff: read overrides: %w", err)
	}
	cards, err := ParseOverrides(data)
	if err != nil {
		return nil, err
	}
	return reg.WithOverrides(cards), nil
}
