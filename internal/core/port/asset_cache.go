package port

import (
	"context"

	"github.com/zvaradi/flipgate/internal/core/domain"
)

// AssetCache stores cache generations and their cached responses.
type AssetCache interface {
	// SaveGeneration creates or updates a generation record.
	SaveGeneration(ctx context.Context, gen domain.CacheGeneration) error

	// ListGenerations returns every known generation.
	ListGenerations(ctx context.Context) ([]domain.CacheGeneration, error)

	// ActiveGeneration returns the single active generation, or repository.ErrNotFound.
	ActiveGeneration(ctx context.Context) (*domain.CacheGeneration, error)

	// DeleteGeneration removes a generation and every asset stored under it.
	DeleteGeneration(ctx context.Context, name string) error

	// Get returns the cached asset for the URL within the generation,
	// or repository.ErrNotFound on a cache miss.
	Get(ctx context.Context, generation, url string) (*domain.CachedAsset, error)

	// Put stores the asset under the generation.
	Put(ctx context.Context, generation string, asset domain.CachedAsset) error
}

// OriginFetcher retrieves content from the upstream content origin.
type OriginFetcher interface {
	// Fetch performs a GET against the origin for the supplied path or
	// absolute URL and returns the response as a cacheable asset.
	Fetch(ctx context.Context, url string) (*domain.CachedAsset, error)

	// FetchPage retrieves page HTML by convention path pages/{pageID}.html,
	// forwarding the capability token as a bearer header.
	FetchPage(ctx context.Context, pageID, bearerToken string) (*domain.CachedAsset, error)
}
