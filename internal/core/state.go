package core

import (
	"maps"
	"slices"
	"time"
)

type RefreshTrigger string

const (
	TriggerInitial   RefreshTrigger = "initial"
	TriggerScheduled RefreshTrigger = "scheduled"
	TriggerManual    RefreshTrigger = "manual"
	TriggerSilent    RefreshTrigger = "silent"
)

// ShowsLoading reports whether a loading state should be published before
// results land.
func (t RefreshTrigger) ShowsLoading(hasLoaded bool) bool {
	switch t {
	case TriggerManual:
		return true
	case TriggerInitial:
		return !hasLoaded
	default:
		return false
	}
}

// PulseState is the full published picture. The orchestrator owns the live
// value and only hands out clones.
type PulseState struct {
	Readings    map[ProviderID]Reading `json:"readings"`
	LastRefresh time.Time              `json:"last_refresh"`
	Errors      []string               `json:"errors,omitempty"`
	Refreshing  bool                   `json:"refreshing"`
	Trigger     RefreshTrigger         `json:"trigger"`
}

func NewPulseState() PulseState {
	return PulseState{Readings: map[ProviderID]Reading{}}
}

func (s PulseState) Clone() PulseState {
	out := s
	out.Readings = maps.Clone(s.Readings)
	if out.Readings == nil {
		out.Readings = map[ProviderID]Reading{}
	}
	out.Errors = slices.Clone(s.Errors)
	return out
}

// Providers returns the provider ids in the state in sorted order.
func (s PulseState) Providers() []ProviderID {
	ids := slices.Collect(maps.Keys(s.Readings))
	slices.Sort(ids)
	return ids
}
