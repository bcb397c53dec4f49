package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zvaradi/flipgate/internal/core/domain"
	"github.com/zvaradi/flipgate/internal/core/port"
)

// GateConfig tunes the content gate.
type GateConfig struct {
	// EntryPage is served without any session or token check.
	EntryPage string
	// Freshness bounds how long a cached page is served without refetching.
	Freshness time.Duration
	// RevalidateInterval spaces out background access re-checks.
	RevalidateInterval time.Duration
}

type cachedPage struct {
	asset     *domain.CachedAsset
	fetchedAt time.Time
}

type inflightFetch struct {
	done  chan struct{}
	asset *domain.CachedAsset
	err   error
}

// ContentGate mediates page access: the entry page is open, every other page
// requires a committed session and a valid capability token. Fetched pages are
// cached in memory for the freshness window, and concurrent requests for the
// same page share a single origin fetch.
type ContentGate struct {
	sessions *ActivationService
	issuer   *TokenIssuer
	origin   port.OriginFetcher
	cfg      GateConfig
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	pages    map[string]cachedPage
	inflight map[string]*inflightFetch
	granted  map[string]time.Time
}

// NewContentGate constructs a ContentGate.
func NewContentGate(sessions *ActivationService, issuer *TokenIssuer, origin port.OriginFetcher, cfg GateConfig, log *zap.Logger) *ContentGate {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Freshness <= 0 {
		cfg.Freshness = 30 * time.Minute
	}
	if cfg.RevalidateInterval <= 0 {
		cfg.RevalidateInterval = time.Minute
	}

	gate := &ContentGate{
		sessions: sessions,
		issuer:   issuer,
		origin:   origin,
		cfg:      cfg,
		logger:   log,
		pages:    make(map[string]cachedPage),
		inflight: make(map[string]*inflightFetch),
		granted:  make(map[string]time.Time),
	}
	gate.now = func() time.Time { return time.Now().UTC() }
	return gate
}

// WithClock overrides the internal clock for deterministic tests.
func (g *ContentGate) WithClock(clock func() time.Time) *ContentGate {
	if clock != nil {
		g.now = clock
	}
	return g
}

// CheckAccess verifies the caller may read gated content. The check runs at
// most once per revalidate interval per gate instance; within the interval a
// previously granted caller passes without touching the stores again.
func (g *ContentGate) CheckAccess(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrNotActivated
	}

	now := g.now()
	g.mu.Lock()
	if granted, ok := g.granted[userID]; ok && now.Sub(granted) < g.cfg.RevalidateInterval {
		g.mu.Unlock()
		return nil
	}
	g.mu.Unlock()

	session, err := g.sessions.Session(ctx, userID)
	if err != nil {
		return err
	}
	if !session.IsAuthenticated() {
		return ErrNotActivated
	}

	if _, err := g.issuer.GetToken(ctx, userID); err != nil {
		return fmt.Errorf("obtain capability token: %w", err)
	}

	g.mu.Lock()
	g.granted[userID] = g.now()
	g.mu.Unlock()

	return nil
}

// LoadPage returns the page content. The entry page is always served; other
// pages require access. A fresh cached copy short-circuits the origin fetch,
// and concurrent misses for the same page coalesce into one fetch.
func (g *ContentGate) LoadPage(ctx context.Context, userID, pageID string) (*domain.CachedAsset, error) {
	pageID = strings.TrimSpace(pageID)
	if pageID == "" {
		return nil, fmt.Errorf("%w: page id is required", ErrInvalidInput)
	}

	var bearer string
	if pageID != g.cfg.EntryPage {
		if err := g.CheckAccess(ctx, userID); err != nil {
			return nil, err
		}
		token, err := g.issuer.GetToken(ctx, userID)
		if err != nil {
			return nil, err
		}
		bearer = token.Value
	}

	now := g.now()

	g.mu.Lock()
	if entry, ok := g.pages[pageID]; ok && now.Sub(entry.fetchedAt) < g.cfg.Freshness {
		g.mu.Unlock()
		return entry.asset, nil
	}
	if flight, ok := g.inflight[pageID]; ok {
		g.mu.Unlock()
		select {
		case <-flight.done:
			return flight.asset, flight.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	flight := &inflightFetch{done: make(chan struct{})}
	g.inflight[pageID] = flight
	g.mu.Unlock()

	asset, err := g.fetchPage(ctx, pageID, bearer)

	g.mu.Lock()
	delete(g.inflight, pageID)
	if err == nil {
		g.pages[pageID] = cachedPage{asset: asset, fetchedAt: g.now()}
	}
	g.mu.Unlock()

	flight.asset = asset
	flight.err = err
	close(flight.done)

	return asset, err
}

func (g *ContentGate) fetchPage(ctx context.Context, pageID, bearer string) (*domain.CachedAsset, error) {
	asset, err := g.origin.FetchPage(ctx, pageID, bearer)
	if err != nil {
		return nil, classify(fmt.Errorf("fetch page %s: %w", pageID, err))
	}
	if asset.Status == 401 || asset.Status == 403 {
		return nil, ErrPermissionDenied
	}
	if !asset.IsSuccess() {
		return nil, fmt.Errorf("origin returned %d for page %s", asset.Status, pageID)
	}
	return asset, nil
}

// Revalidate prunes cache entries that aged past the freshness window.
func (g *ContentGate) Revalidate() int {
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	pruned := 0
	for pageID, entry := range g.pages {
		if now.Sub(entry.fetchedAt) >= g.cfg.Freshness {
			delete(g.pages, pageID)
			pruned++
		}
	}
	for userID, granted := range g.granted {
		if now.Sub(granted) >= g.cfg.RevalidateInterval {
			delete(g.granted, userID)
		}
	}
	return pruned
}

// StartRevalidation runs Revalidate on the configured interval until the
// context is cancelled.
func (g *ContentGate) StartRevalidation(ctx context.Context) {
	ticker := time.NewTicker(g.cfg.RevalidateInterval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if pruned := g.Revalidate(); pruned > 0 {
					g.logger.Debug("pruned stale page cache entries", zap.Int("count", pruned))
				}
			}
		}
	}()
}
