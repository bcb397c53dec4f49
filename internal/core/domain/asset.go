package domain

import (
	"fmt"
	"time"
)

// AssetTier partitions manifest entries by caching priority.
type AssetTier string

const (
	AssetTierCritical  AssetTier = "critical"
	AssetTierSecondary AssetTier = "secondary"
	AssetTierImage     AssetTier = "image"
	AssetTierExternal  AssetTier = "external"
)

// AssetEntry is a single manifest line: a URL and the tier it belongs to.
type AssetEntry struct {
	URL  string    `json:"url"`
	Tier AssetTier `json:"tier"`
}

// Manifest is the static, versioned list of URLs that must survive offline.
type Manifest struct {
	Version int          `json:"version"`
	Assets  []AssetEntry `json:"assets"`
}

// GenerationName derives the cache generation identifier for this manifest version.
func (m Manifest) GenerationName() string {
	return fmt.Sprintf("asset-cache-v%d", m.Version)
}

// ByTier returns the entries belonging to any of the supplied tiers, in manifest order.
func (m Manifest) ByTier(tiers ...AssetTier) []AssetEntry {
	var out []AssetEntry
	for _, a := range m.Assets {
		for _, t := range tiers {
			if a.Tier == t {
				out = append(out, a)
				break
			}
		}
	}
	return out
}

// Validate checks the manifest is well formed.
func (m Manifest) Validate() error {
	if m.Version <= 0 {
		return fmt.Errorf("manifest version must be positive")
	}
	seen := make(map[string]struct{}, len(m.Assets))
	for _, a := range m.Assets {
		if a.URL == "" {
			return fmt.Errorf("manifest entry with empty url")
		}
		switch a.Tier {
		case AssetTierCritical, AssetTierSecondary, AssetTierImage, AssetTierExternal:
		default:
			return fmt.Errorf("unknown tier %q for %s", a.Tier, a.URL)
		}
		if _, dup := seen[a.URL]; dup {
			return fmt.Errorf("duplicate manifest entry %s", a.URL)
		}
		seen[a.URL] = struct{}{}
	}
	return nil
}

// CachedAsset is a stored copy of a network response.
type CachedAsset struct {
	URL         string              `json:"url"`
	Status      int                 `json:"status"`
	Header      map[string][]string `json:"header,omitempty"`
	Body        []byte              `json:"body"`
	StoredAt    time.Time           `json:"stored_at"`
	ContentType string              `json:"content_type,omitempty"`
}

// IsSuccess reports whether the response is storable (2xx).
func (a CachedAsset) IsSuccess() bool {
	return a.Status >= 200 && a.Status < 300
}

// InstallReport summarises the outcome of populating a cache generation.
type InstallReport struct {
	Generation     string
	Cached         []string
	Failed         []string
	CriticalFailed []string
}

// ShellBroken reports whether any critical-tier asset failed to cache.
// Install is never aborted on this condition; it is surfaced for logging.
func (r InstallReport) ShellBroken() bool {
	return len(r.CriticalFailed) > 0
}
