package tariff

const perMillion = 1.0 / 1_000_000

// longContextThreshold is where Anthropic's long-context surcharge starts.
const longContextThreshold = 200_000

func card(input, cachedInput, cacheWrite, output float64) RateCard {
	return RateCard{
		Input:       Flat(input * perMillion),
		CachedInput: Flat(cachedInput * perMillion),
		CacheWrite:  Flat(cacheWrite * perMillion),
		Output:      Flat(output * perMillion),
	}
}

func longContextCard(base, above RateCard) RateCard {
	return RateCard{
		Input:       Tiered(base.Input.Base, above.Input.Base, longContextThreshold),
		CachedInput: Tiered(base.CachedInput.Base, above.CachedInput.Base, longContextThreshold),
		CacheWrite:  Tiered(base.CacheWrite.Base, above.CacheWrite.Base, longContextThreshold),
		Output:      Tiered(base.Output.Base, above.Output.Base, longContextThreshold),
	}
}

var (
	opusCard    = card(15, 1.5, 18.75, 75)
	opus45Card  = card(5, 0.5, 6.25, 25)
	sonnetCard  = longContextCard(card(3, 0.3, 3.75, 15), card(6, 0.6, 7.5, 22.5))
	haikuCard   = card(1, 0.1, 1.25, 5)
	haiku35Card = card(0.8, 0.08, 1, 4)

	gpt5Card     = card(1.25, 0.125, 0, 10)
	gpt5MiniCard = card(0.25, 0.025, 0, 2)
	gpt5NanoCard = card(0.05, 0.005, 0, 0.4)
	o3Card       = card(2, 0.5, 0, 8)
	codexMini    = card(1.5, 0.375, 0, 6)
)

func defaultCards() map[string]RateCard {
	return map[string]RateCard{
		"claude-opus-4":     opusCard,
		"claude-opus-4-1":   opusCard,
		"claude-opus-4-5":   opus45Card,
		"claude-3-opus":     opusCard,
		"claude-sonnet-4":   sonnetCard,
		"claude-sonnet-4-5": sonnetCard,
		"claude-3-7-sonnet": card(3, 0.3, 3.75, 15),
		"claude-3-5-sonnet": card(3, 0.3, 3.75, 15),
		"claude-haiku-4-5":  haikuCard,
		"claude-3-5-haiku":  haiku35Card,

		"gpt-5":              gpt5Card,
		"gpt-5-codex":        gpt5Card,
		"gpt-5.1":            gpt5Card,
		"gpt-5.1-codex":      gpt5Card,
		"gpt-5-mini":         gpt5MiniCard,
		"gpt-5.1-codex-mini": gpt5MiniCard,
		"gpt-5-nano":         gpt5NanoCard,
		"gpt-4.1":            o3Card,
		"o3":                 o3Card,
		"o4-mini":            card(1.1, 0.275, 0, 4.4),
		"codex-mini-latest":  codexMini,
	}
}

// Fallback cards price models the registry does not know.
func defaultFallbacks() map[Family]RateCard {
	return map[Family]RateCard{
		FamilyAnthropic: sonnetCard,
		FamilyOpenAI:    gpt5Card,
	}
}

// Default returns the built-in registry.
func Default() *Registry {
	return New(defaultCards(), defaultFallbacks())
}
