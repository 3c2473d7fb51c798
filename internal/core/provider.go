package core

import "context"

// ProviderProfile is static metadata for a provider.
type ProviderProfile struct {
	ID          ProviderID
	DisplayName string
	BrandColor  string // hex, e.g. "#D97757"
}

// SignalSource is one way of obtaining a reading for a provider.
//
// Read resolves provider-specific failures into a low-confidence reading
// with an explanatory summary. A returned error means cancellation or a
// failure the source could not describe; callers exclude it.
type SignalSource interface {
	Profile() ProviderProfile
	Name() string
	Read(ctx context.Context) (Reading, error)
}

// Selector picks the best reading for one provider from its sources.
type Selector interface {
	Select(ctx context.Context, provider ProviderID, sources []SignalSource) (Reading, error)
}
