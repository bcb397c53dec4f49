package domain

import "time"

// GenerationState tracks the lifecycle of a cache generation.
// Exactly one generation may be active at any time; all others are stale
// and eligible for deletion once the new generation activates.
type GenerationState string

const (
	GenerationInstalling GenerationState = "installing"
	GenerationWaiting    GenerationState = "waiting"
	GenerationActive     GenerationState = "active"
	GenerationStale      GenerationState = "stale"
)

// CacheGeneration is a named, immutable snapshot of cached responses
// identified by a monotonically increasing version.
type CacheGeneration struct {
	Name        string          `json:"name"`
	Version     int             `json:"version"`
	State       GenerationState `json:"state"`
	InstalledAt time.Time       `json:"installed_at"`
	ActivatedAt *time.Time      `json:"activated_at,omitempty"`
}

// MarkWaiting signals the generation finished installing and should replace
// the previously waiting generation immediately. Returns true on transition.
func (g *CacheGeneration) MarkWaiting() bool {
	if g.State != GenerationInstalling {
		return false
	}
	g.State = GenerationWaiting
	return true
}

// MarkActive promotes the generation to serve all clients.
func (g *CacheGeneration) MarkActive(at time.Time) bool {
	if g.State != GenerationWaiting && g.State != GenerationInstalling {
		return false
	}
	g.State = GenerationActive
	atCopy := at
	g.ActivatedAt = &atCopy
	return true
}

// MarkStale flags the generation for deletion during the next activation cycle.
func (g *CacheGeneration) MarkStale() bool {
	if g.State == GenerationStale {
		return false
	}
	g.State = GenerationStale
	return true
}
