package domain

import (
	"testing"
	"time"
)

func testManifest() Manifest {
	return Manifest{
		Version: 7,
		Assets: []AssetEntry{
			{URL: "/index.html", Tier: AssetTierCritical},
			{URL: "/app.js", Tier: AssetTierCritical},
			{URL: "/pages/data.js", Tier: AssetTierSecondary},
			{URL: "/img/cover.jpg", Tier: AssetTierImage},
			{URL: "https://fonts.example.com/serif.woff2", Tier: AssetTierExternal},
		},
	}
}

func TestManifest_GenerationName(t *testing.T) {
	if got := testManifest().GenerationName(); got != "asset-cache-v7" {
		t.Fatalf("unexpected generation name %q", got)
	}
}

func TestManifest_ByTier(t *testing.T) {
	entries := testManifest().ByTier(AssetTierCritical, AssetTierImage)
	if len(entries) != 3 {
		t.Fatalf("expected 3 critical+image entries, got %d", len(entries))
	}
	if entries[0].URL != "/index.html" || entries[2].URL != "/img/cover.jpg" {
		t.Fatalf("unexpected ordering: %+v", entries)
	}
}

func TestManifest_ValidateRejectsDuplicates(t *testing.T) {
	m := testManifest()
	m.Assets = append(m.Assets, AssetEntry{URL: "/index.html", Tier: AssetTierSecondary})
	if err := m.Validate(); err == nil {
		t.Fatalf("expected duplicate entry to be rejected")
	}
}

func TestManifest_ValidateRejectsUnknownTier(t *testing.T) {
	m := Manifest{Version: 1, Assets: []AssetEntry{{URL: "/x", Tier: "bogus"}}}
	if err := m.Validate(); err == nil {
		t.Fatalf("expected unknown tier to be rejected")
	}
}

func TestCacheGeneration_Lifecycle(t *testing.T) {
	gen := CacheGeneration{Name: "asset-cache-v7", Version: 7, State: GenerationInstalling}

	if !gen.MarkWaiting() {
		t.Fatalf("installing generation should transition to waiting")
	}
	if gen.MarkWaiting() {
		t.Fatalf("waiting generation should not transition to waiting again")
	}

	at := time.Now().UTC()
	if !gen.MarkActive(at) {
		t.Fatalf("waiting generation should activate")
	}
	if gen.ActivatedAt == nil || !gen.ActivatedAt.Equal(at) {
		t.Fatalf("expected activation timestamp recorded")
	}

	if !gen.MarkStale() {
		t.Fatalf("active generation should become stale")
	}
	if gen.MarkStale() {
		t.Fatalf("stale generation should stay stale")
	}
}

func TestInstallReport_ShellBroken(t *testing.T) {
	report := InstallReport{Cached: []string{"/index.html"}}
	if report.ShellBroken() {
		t.Fatalf("report without critical failures should not be broken")
	}
	report.CriticalFailed = []string{"/app.js"}
	if !report.ShellBroken() {
		t.Fatalf("report with critical failures should be broken")
	}
}
