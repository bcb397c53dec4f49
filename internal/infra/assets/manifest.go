package assets

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/zvaradi/flipgate/internal/core/domain"
	"github.com/zvaradi/flipgate/internal/infra/config"
)

// LoadManifest reads the asset manifest from disk, or falls back to the
// built-in shell manifest when no path is configured. The manifest version
// always follows cache.version so a deploy bump forces an asset refresh.
func LoadManifest(cfg config.CacheSettings) (domain.Manifest, error) {
	manifest := defaultManifest()

	if cfg.ManifestPath != "" {
		raw, err := os.ReadFile(cfg.ManifestPath)
		if err != nil {
			return domain.Manifest{}, fmt.Errorf("read manifest %s: %w", cfg.ManifestPath, err)
		}
		if err := json.Unmarshal(raw, &manifest); err != nil {
			return domain.Manifest{}, fmt.Errorf("parse manifest %s: %w", cfg.ManifestPath, err)
		}
	}

	if cfg.Version > 0 {
		manifest.Version = cfg.Version
	}

	if err := manifest.Validate(); err != nil {
		return domain.Manifest{}, fmt.Errorf("validate manifest: %w", err)
	}

	return manifest, nil
}

func defaultManifest() domain.Manifest {
	return domain.Manifest{
		Version: 1,
		Assets: []domain.AssetEntry{
			{URL: "/index.html", Tier: domain.AssetTierCritical},
			{URL: "/offline.html", Tier: domain.AssetTierCritical},
			{URL: "/styles.css", Tier: domain.AssetTierCritical},
			{URL: "/app.js", Tier: domain.AssetTierCritical},
			{URL: "/manifest.webmanifest", Tier: domain.AssetTierCritical},
			{URL: "/pages/data.js", Tier: domain.AssetTierSecondary},
			{URL: "/sounds/page-turn.mp3", Tier: domain.AssetTierSecondary},
			{URL: "/img/cover.jpg", Tier: domain.AssetTierImage},
			{URL: "/img/back.jpg", Tier: domain.AssetTierImage},
			{URL: "https://fonts.googleapis.com/css2?family=Lora", Tier: domain.AssetTierExternal},
		},
	}
}
