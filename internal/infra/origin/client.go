package origin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zvaradi/flipgate/internal/core/domain"
	"github.com/zvaradi/flipgate/internal/core/port"
	"github.com/zvaradi/flipgate/internal/infra/config"
)

const maxAssetBody = 16 << 20 // 16 MiB per cached asset

// Client fetches assets and page HTML from the upstream content origin.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewClient constructs an origin fetcher rooted at the configured base URL.
func NewClient(cfg config.CacheSettings, logger *zap.Logger) (*Client, error) {
	base, err := url.Parse(cfg.OriginBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse origin base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("origin base url %q must be absolute", cfg.OriginBaseURL)
	}

	timeout := cfg.OriginTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		base:   base,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
		now:    time.Now,
	}, nil
}

// WithClock injects a custom clock, primarily for tests.
func (c *Client) WithClock(now func() time.Time) *Client {
	if now != nil {
		c.now = now
	}
	return c
}

// Fetch performs a GET for the supplied path or absolute URL.
func (c *Client) Fetch(ctx context.Context, target string) (*domain.CachedAsset, error) {
	resolved, err := c.resolve(target)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, resolved, nil)
}

// FetchPage retrieves page HTML by convention path pages/{pageID}.html.
// The bearer token is forwarded as informational defense-in-depth; the
// origin is not assumed to validate it.
func (c *Client) FetchPage(ctx context.Context, pageID, bearerToken string) (*domain.CachedAsset, error) {
	if pageID == "" {
		return nil, fmt.Errorf("page id is required")
	}

	resolved, err := c.resolve(fmt.Sprintf("pages/%s.html", pageID))
	if err != nil {
		return nil, err
	}

	var header http.Header
	if bearerToken != "" {
		header = http.Header{"Authorization": []string{"Bearer " + bearerToken}}
	}

	return c.do(ctx, resolved, header)
}

func (c *Client) resolve(target string) (string, error) {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return target, nil
	}

	ref, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parse target %q: %w", target, err)
	}

	return c.base.ResolveReference(ref).String(), nil
}

func (c *Client) do(ctx context.Context, target string, header http.Header) (*domain.CachedAsset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build origin request: %w", err)
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetBody))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", target, err)
	}

	return &domain.CachedAsset{
		URL:         target,
		Status:      resp.StatusCode,
		Header:      resp.Header,
		Body:        body,
		StoredAt:    c.now().UTC(),
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

var _ port.OriginFetcher = (*Client)(nil)
