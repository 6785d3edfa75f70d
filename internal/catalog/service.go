package catalog

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const optionableCacheKey = "catalog:optionable"

// Service serves catalog reads, caching the optionable product list in redis.
// Staleness is acceptable on this path: the public viewer tolerates
// eventually-consistent catalog data.
type Service struct {
	repo     Repository
	cache    *redis.Client
	cacheTTL time.Duration
	logger   *slog.Logger
}

// NewService constructs the catalog service. The cache client may be nil,
// in which case reads always hit the repository.
func NewService(repo Repository, cache *redis.Client, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		cache:    cache,
		cacheTTL: 5 * time.Minute,
		logger:   logger,
	}
}

// Get returns a single product by id.
func (s *Service) Get(ctx context.Context, id string) (*Product, error) {
	return s.repo.Get(ctx, id)
}

// ListActive returns every active product.
func (s *Service) ListActive(ctx context.Context) ([]Product, error) {
	return s.repo.ListActive(ctx)
}

// ListUpsell returns active products flagged for maintenance-upsell quotes.
func (s *Service) ListUpsell(ctx context.Context) ([]Product, error) {
	return s.repo.ListUpsell(ctx)
}

// ListOptionable returns active products a client may add as an option,
// served from the redis cache when possible.
func (s *Service) ListOptionable(ctx context.Context) ([]Product, error) {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, optionableCacheKey).Bytes()
		if err == nil {
			var products []Product
			if err := json.Unmarshal(raw, &products); err == nil {
				return products, nil
			}
			s.logger.Warn("decode cached optionable products", slog.Any("error", err))
		}
	}

	products, err := s.repo.ListOptionable(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if raw, err := json.Marshal(products); err == nil {
			if err := s.cache.Set(ctx, optionableCacheKey, raw, s.cacheTTL).Err(); err != nil {
				s.logger.Warn("cache optionable products", slog.Any("error", err))
			}
		}
	}

	return products, nil
}
