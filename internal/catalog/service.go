package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ProductStore loads products from the system of record.
type ProductStore interface {
	GetProduct(ctx context.Context, id uuid.UUID) (Product, error)
}

// Service serves product lookups through a read-through Redis cache. Cache
// failures degrade to a direct store read.
type Service struct {
	Store  ProductStore
	Cache  *Cache
	Logger zerolog.Logger
}

// Product returns the product with id or ErrProductNotFound.
func (s *Service) Product(ctx context.Context, id uuid.UUID) (Product, error) {
	key := ProductKey(id)
	var cached Product
	hit, err := s.Cache.GetJSON(ctx, key, &cached)
	if err != nil {
		s.Logger.Warn().Err(err).Str("key", key).Msg("catalog_cache_read_failed")
	}
	if hit {
		return cached, nil
	}
	p, err := s.Store.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if err := s.Cache.SetJSON(ctx, key, p); err != nil {
		s.Logger.Warn().Err(err).Str("key", key).Msg("catalog_cache_write_failed")
	}
	return p, nil
}
