package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zvaradi/flipgate/internal/core/domain"
	"github.com/zvaradi/flipgate/internal/core/port"
	"github.com/zvaradi/flipgate/internal/infra/telemetry"
	"github.com/zvaradi/flipgate/internal/repository"
)

// ResolveStrategy names the per-route caching strategies.
type ResolveStrategy string

const (
	// StrategyPassthrough skips the cache entirely.
	StrategyPassthrough ResolveStrategy = "passthrough"
	// StrategyCacheFirst serves the installed copy and only hits the network on a miss.
	StrategyCacheFirst ResolveStrategy = "cache_first"
	// StrategyNetworkFirst prefers the network and falls back to cache, then
	// to the reserved offline page.
	StrategyNetworkFirst ResolveStrategy = "network_first"
	// StrategyCacheFirstStore is cache-first but stores network responses on a miss.
	StrategyCacheFirstStore ResolveStrategy = "cache_first_store"
)

// CacheManagerConfig tunes install and resolution behaviour.
type CacheManagerConfig struct {
	// SecondaryDelay postpones secondary-tier population after install so the
	// critical tier never competes with it for bandwidth.
	SecondaryDelay time.Duration
	// ShellURL is the navigation shell served network-first.
	ShellURL string
	// OfflineURL is the reserved offline fallback page.
	OfflineURL string
	// PassthroughHosts are never cached or proxied through the cache.
	PassthroughHosts []string
	// FontHosts get the cache-first-store treatment.
	FontHosts []string
}

// CacheManager owns cache generations: installing a manifest into a fresh
// generation, promoting it, and resolving asset requests against it.
type CacheManager struct {
	cache    port.AssetCache
	origin   port.OriginFetcher
	events   port.EventPublisher
	manifest domain.Manifest
	cfg      CacheManagerConfig
	metrics  *telemetry.CacheMetrics
	logger   *zap.Logger
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
	schedule func(func())
}

// NewCacheManager constructs a CacheManager for the supplied manifest.
func NewCacheManager(cache port.AssetCache, origin port.OriginFetcher, events port.EventPublisher, manifest domain.Manifest, cfg CacheManagerConfig, log *zap.Logger) *CacheManager {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.ShellURL == "" {
		cfg.ShellURL = "/index.html"
	}
	if cfg.OfflineURL == "" {
		cfg.OfflineURL = "/offline.html"
	}

	manager := &CacheManager{
		cache:    cache,
		origin:   origin,
		events:   events,
		manifest: manifest,
		cfg:      cfg,
		logger:   log,
	}
	manager.now = func() time.Time { return time.Now().UTC() }
	manager.sleep = func(ctx context.Context, d time.Duration) error {
		if d <= 0 {
			return nil
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}
	manager.schedule = func(fn func()) { go fn() }
	return manager
}

// WithClock overrides the internal clock for deterministic tests.
func (m *CacheManager) WithClock(clock func() time.Time) *CacheManager {
	if clock != nil {
		m.now = clock
	}
	return m
}

// WithMetrics attaches cache collectors.
func (m *CacheManager) WithMetrics(metrics *telemetry.CacheMetrics) *CacheManager {
	m.metrics = metrics
	return m
}

// WithSleeper overrides the delay primitive, used by tests to skip the
// secondary-tier pause.
func (m *CacheManager) WithSleeper(sleep func(context.Context, time.Duration) error) *CacheManager {
	if sleep != nil {
		m.sleep = sleep
	}
	return m
}

// WithScheduler overrides how background work is launched, used by tests to
// run the secondary-tier population inline.
func (m *CacheManager) WithScheduler(schedule func(func())) *CacheManager {
	if schedule != nil {
		m.schedule = schedule
	}
	return m
}

// Install populates a new generation from the manifest. Only the critical
// and image tiers are fetched here; the secondary tier is deferred until
// after activation. Failures never abort the install: every asset is
// attempted and the report lists what could not be cached.
func (m *CacheManager) Install(ctx context.Context) (*domain.InstallReport, error) {
	if err := m.manifest.Validate(); err != nil {
		return nil, fmt.Errorf("validate manifest: %w", err)
	}

	gen := domain.CacheGeneration{
		Name:        m.manifest.GenerationName(),
		Version:     m.manifest.Version,
		State:       domain.GenerationInstalling,
		InstalledAt: m.now(),
	}
	if err := m.cache.SaveGeneration(ctx, gen); err != nil {
		return nil, fmt.Errorf("register generation: %w", err)
	}

	report := &domain.InstallReport{Generation: gen.Name}

	m.populate(ctx, gen.Name, m.manifest.ByTier(domain.AssetTierCritical), report, true)
	m.populate(ctx, gen.Name, m.manifest.ByTier(domain.AssetTierImage), report, false)

	gen.MarkWaiting()
	if err := m.cache.SaveGeneration(ctx, gen); err != nil {
		return report, fmt.Errorf("mark generation waiting: %w", err)
	}

	if m.metrics != nil {
		m.metrics.Installs.Inc()
	}

	if report.ShellBroken() {
		m.logger.Warn("critical assets failed to cache, shell may be broken offline",
			zap.String("generation", gen.Name),
			zap.Strings("failed", report.CriticalFailed))
	} else {
		m.logger.Info("generation installed",
			zap.String("generation", gen.Name),
			zap.Int("cached", len(report.Cached)),
			zap.Int("failed", len(report.Failed)))
	}

	return report, nil
}

func (m *CacheManager) populate(ctx context.Context, generation string, entries []domain.AssetEntry, report *domain.InstallReport, critical bool) {
	for _, entry := range entries {
		asset, err := m.origin.Fetch(ctx, entry.URL)
		if err == nil && !asset.IsSuccess() {
			err = fmt.Errorf("origin returned %d", asset.Status)
		}
		if err == nil {
			err = m.cache.Put(ctx, generation, *asset)
		}
		if err != nil {
			m.logger.Warn("asset install failed",
				zap.String("url", entry.URL),
				zap.Error(err))
			report.Failed = append(report.Failed, entry.URL)
			if critical {
				report.CriticalFailed = append(report.CriticalFailed, entry.URL)
			}
			continue
		}
		report.Cached = append(report.Cached, entry.URL)
	}
}

// Activate promotes the manifest's generation to active and deletes every
// other generation together with its stored assets. The secondary tier is
// then populated in the background after the configured delay, without
// blocking the caller.
func (m *CacheManager) Activate(ctx context.Context) error {
	generations, err := m.cache.ListGenerations(ctx)
	if err != nil {
		return fmt.Errorf("list generations: %w", err)
	}

	target := m.manifest.GenerationName()
	var promoted *domain.CacheGeneration

	for i := range generations {
		gen := generations[i]
		if gen.Name == target {
			if gen.MarkActive(m.now()) {
				if err := m.cache.SaveGeneration(ctx, gen); err != nil {
					return fmt.Errorf("promote generation: %w", err)
				}
			}
			promoted = &gen
			continue
		}
		if err := m.cache.DeleteGeneration(ctx, gen.Name); err != nil {
			m.logger.Warn("stale generation cleanup failed",
				zap.String("generation", gen.Name),
				zap.Error(err))
			// Leave a stale marker so the next activation retries the delete.
			if gen.MarkStale() {
				if saveErr := m.cache.SaveGeneration(ctx, gen); saveErr != nil {
					m.logger.Warn("stale generation marker not saved",
						zap.String("generation", gen.Name),
						zap.Error(saveErr))
				}
			}
		}
	}

	if promoted == nil {
		return fmt.Errorf("generation %s not installed", target)
	}

	if m.metrics != nil {
		m.metrics.Activation.Inc()
	}
	m.publishActivated(ctx, *promoted)

	m.logger.Info("generation activated", zap.String("generation", target))

	if secondary := m.manifest.ByTier(domain.AssetTierSecondary); len(secondary) > 0 {
		m.schedule(func() {
			m.populateSecondary(ctx, target, secondary)
		})
	}

	return nil
}

// populateSecondary fetches the secondary tier into an already-active
// generation after the configured delay. Fire-and-forget: outcomes are only
// logged.
func (m *CacheManager) populateSecondary(ctx context.Context, generation string, entries []domain.AssetEntry) {
	if err := m.sleep(ctx, m.cfg.SecondaryDelay); err != nil {
		return
	}

	report := &domain.InstallReport{Generation: generation}
	m.populate(ctx, generation, entries, report, false)

	m.logger.Info("secondary tier populated",
		zap.String("generation", generation),
		zap.Int("cached", len(report.Cached)),
		zap.Int("failed", len(report.Failed)))
}

// StrategyFor selects the resolution strategy for a request URL.
func (m *CacheManager) StrategyFor(rawURL string) ResolveStrategy {
	host := hostOf(rawURL)
	if host != "" {
		for _, h := range m.cfg.PassthroughHosts {
			if strings.EqualFold(host, h) {
				return StrategyPassthrough
			}
		}
		for _, h := range m.cfg.FontHosts {
			if strings.EqualFold(host, h) {
				return StrategyCacheFirstStore
			}
		}
	}

	if m.isNavigation(rawURL) {
		return StrategyNetworkFirst
	}
	return StrategyCacheFirst
}

// Resolve answers an asset request using the strategy for its URL. A
// passthrough result is a nil asset: the caller proxies the request itself.
// When every fallback is exhausted the result is a synthesized 503 carrying
// the requested URL, never an error the caller cannot serve.
func (m *CacheManager) Resolve(ctx context.Context, rawURL string) (*domain.CachedAsset, ResolveStrategy, error) {
	strategy := m.StrategyFor(rawURL)

	switch strategy {
	case StrategyPassthrough:
		return nil, strategy, nil
	case StrategyNetworkFirst:
		asset, err := m.resolveNetworkFirst(ctx, rawURL)
		return asset, strategy, err
	default:
		asset, err := m.resolveCacheFirst(ctx, rawURL, strategy)
		return asset, strategy, err
	}
}

// resolveCacheFirst serves the installed copy when one exists and otherwise
// fetches from origin, storing successful responses into the active
// generation so repeat requests stay off the network.
func (m *CacheManager) resolveCacheFirst(ctx context.Context, rawURL string, strategy ResolveStrategy) (*domain.CachedAsset, error) {
	generation, err := m.activeGenerationName(ctx)
	if err == nil {
		if cached, cacheErr := m.cache.Get(ctx, generation, rawURL); cacheErr == nil {
			m.countHit(strategy)
			return cached, nil
		} else if !errors.Is(cacheErr, repository.ErrNotFound) {
			m.logger.Warn("cache read failed", zap.String("url", rawURL), zap.Error(cacheErr))
		}
	}

	m.countMiss(strategy)

	asset, fetchErr := m.origin.Fetch(ctx, rawURL)
	if fetchErr != nil {
		return m.synthesizeUnavailable(rawURL), nil
	}

	if asset.IsSuccess() && generation != "" {
		if putErr := m.cache.Put(ctx, generation, *asset); putErr != nil {
			m.logger.Warn("cache store failed", zap.String("url", rawURL), zap.Error(putErr))
		}
	}

	return asset, nil
}

func (m *CacheManager) resolveNetworkFirst(ctx context.Context, rawURL string) (*domain.CachedAsset, error) {
	generation, genErr := m.activeGenerationName(ctx)

	asset, err := m.origin.Fetch(ctx, rawURL)
	if err == nil && asset.IsSuccess() {
		m.countHit(StrategyNetworkFirst)
		if genErr == nil {
			if putErr := m.cache.Put(ctx, generation, *asset); putErr != nil {
				m.logger.Warn("cache store failed", zap.String("url", rawURL), zap.Error(putErr))
			}
		}
		return asset, nil
	}

	m.countMiss(StrategyNetworkFirst)

	if genErr == nil {
		if cached, cacheErr := m.cache.Get(ctx, generation, rawURL); cacheErr == nil {
			return cached, nil
		}
		if offline, cacheErr := m.cache.Get(ctx, generation, m.cfg.OfflineURL); cacheErr == nil {
			if m.metrics != nil {
				m.metrics.Fallbacks.Inc()
			}
			return offline, nil
		}
	}

	return m.synthesizeUnavailable(rawURL), nil
}

func (m *CacheManager) activeGenerationName(ctx context.Context) (string, error) {
	gen, err := m.cache.ActiveGeneration(ctx)
	if err != nil {
		return "", err
	}
	return gen.Name, nil
}

// synthesizeUnavailable builds the 503 served when neither network nor cache
// can answer. The body names the URL so clients can tell failures apart.
func (m *CacheManager) synthesizeUnavailable(rawURL string) *domain.CachedAsset {
	return &domain.CachedAsset{
		URL:         rawURL,
		Status:      503,
		Body:        []byte(fmt.Sprintf("offline: %s unavailable", rawURL)),
		StoredAt:    m.now(),
		ContentType: "text/plain; charset=utf-8",
	}
}

func (m *CacheManager) isNavigation(rawURL string) bool {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		path = u.Path
	}
	if path == "/" || path == m.cfg.ShellURL || path == m.cfg.OfflineURL {
		return true
	}
	return strings.HasSuffix(path, ".html")
}

func (m *CacheManager) publishActivated(ctx context.Context, gen domain.CacheGeneration) {
	if m.events == nil {
		return
	}
	if err := m.events.PublishGenerationActivated(ctx, domain.GenerationActivatedEvent{
		EventID:     uuid.NewString(),
		Generation:  gen.Name,
		Version:     gen.Version,
		ActivatedAt: m.now(),
	}); err != nil {
		m.logger.Warn("publish generation activated event failed", zap.Error(err))
	}
}

func (m *CacheManager) countHit(strategy ResolveStrategy) {
	if m.metrics != nil {
		m.metrics.Hits.WithLabelValues(string(strategy)).Inc()
	}
}

func (m *CacheManager) countMiss(strategy ResolveStrategy) {
	if m.metrics != nil {
		m.metrics.Misses.WithLabelValues(string(strategy)).Inc()
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
