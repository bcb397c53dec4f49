package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	red "github.com/redis/go-redis/v9"

	"github.com/zvaradi/flipgate/internal/core/domain"
	"github.com/zvaradi/flipgate/internal/core/port"
	"github.com/zvaradi/flipgate/internal/repository"
)

const defaultCachePrefix = "asset-cache"

// AssetCacheRepository keeps cache generations and their responses in Redis.
// The generation registry is a hash of name -> generation JSON, and each
// generation owns a hash of url -> cached response JSON.
type AssetCacheRepository struct {
	client *red.Client
	prefix string
}

// NewAssetCacheRepository constructs an asset cache over the provided client.
func NewAssetCacheRepository(client *red.Client, keyPrefix string) *AssetCacheRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultCachePrefix
	}

	return &AssetCacheRepository{client: client, prefix: prefix}
}

// SaveGeneration creates or updates the generation record in the registry.
func (r *AssetCacheRepository) SaveGeneration(ctx context.Context, gen domain.CacheGeneration) error {
	if strings.TrimSpace(gen.Name) == "" {
		return errors.New("generation name is required")
	}

	payload, err := json.Marshal(gen)
	if err != nil {
		return fmt.Errorf("marshal generation: %w", err)
	}

	if err := r.client.HSet(ctx, r.registryKey(), gen.Name, payload).Err(); err != nil {
		return fmt.Errorf("redis hset generation: %w", err)
	}

	return nil
}

// ListGenerations returns every generation known to the registry.
func (r *AssetCacheRepository) ListGenerations(ctx context.Context) ([]domain.CacheGeneration, error) {
	values, err := r.client.HGetAll(ctx, r.registryKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall generations: %w", err)
	}

	generations := make([]domain.CacheGeneration, 0, len(values))
	for name, raw := range values {
		var gen domain.CacheGeneration
		if err := json.Unmarshal([]byte(raw), &gen); err != nil {
			return nil, fmt.Errorf("unmarshal generation %s: %w", name, err)
		}
		generations = append(generations, gen)
	}

	return generations, nil
}

// ActiveGeneration returns the generation currently serving clients.
func (r *AssetCacheRepository) ActiveGeneration(ctx context.Context) (*domain.CacheGeneration, error) {
	generations, err := r.ListGenerations(ctx)
	if err != nil {
		return nil, err
	}

	for i := range generations {
		if generations[i].State == domain.GenerationActive {
			return &generations[i], nil
		}
	}

	return nil, repository.ErrNotFound
}

// DeleteGeneration removes the generation record together with its assets.
func (r *AssetCacheRepository) DeleteGeneration(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("generation name is required")
	}

	pipe := r.client.TxPipeline()
	pipe.HDel(ctx, r.registryKey(), name)
	pipe.Del(ctx, r.assetsKey(name))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis delete generation: %w", err)
	}

	return nil
}

// Get returns the cached response for the URL within the generation.
func (r *AssetCacheRepository) Get(ctx context.Context, generation, url string) (*domain.CachedAsset, error) {
	raw, err := r.client.HGet(ctx, r.assetsKey(generation), url).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis hget asset: %w", err)
	}

	var asset domain.CachedAsset
	if err := json.Unmarshal([]byte(raw), &asset); err != nil {
		return nil, fmt.Errorf("unmarshal asset %s: %w", url, err)
	}

	return &asset, nil
}

// Put stores the response under the generation keyed by its URL.
func (r *AssetCacheRepository) Put(ctx context.Context, generation string, asset domain.CachedAsset) error {
	if strings.TrimSpace(generation) == "" {
		return errors.New("generation name is required")
	}
	if strings.TrimSpace(asset.URL) == "" {
		return errors.New("asset url is required")
	}

	payload, err := json.Marshal(asset)
	if err != nil {
		return fmt.Errorf("marshal asset: %w", err)
	}

	if err := r.client.HSet(ctx, r.assetsKey(generation), asset.URL, payload).Err(); err != nil {
		return fmt.Errorf("redis hset asset: %w", err)
	}

	return nil
}

func (r *AssetCacheRepository) registryKey() string {
	return fmt.Sprintf("%s:generations", r.prefix)
}

func (r *AssetCacheRepository) assetsKey(generation string) string {
	return fmt.Sprintf("%s:gen:%s", r.prefix, generation)
}

var _ port.AssetCache = (*AssetCacheRepository)(nil)
