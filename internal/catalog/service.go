package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/odyssey-erp/freightdesk/internal/shared"
)

// ProductPage is a cached listing result.
type ProductPage struct {
	Products []Product `json:"products"`
	Total    int       `json:"total"`
}

// Service orchestrates catalog reads through the cache and writes through the repository.
type Service struct {
	repo   Repository
	cache  *Cache
	logger *slog.Logger
}

// NewService constructs the catalog service. cache may be nil.
func NewService(repo Repository, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger}
}

// List returns a page of products.
func (s *Service) List(ctx context.Context, filters ListFilters) (ProductPage, error) {
	filters.Limit, filters.Offset = shared.NormalizeLimit(filters.Limit, filters.Offset)
	active := "all"
	if filters.IsActive != nil {
		active = strconv.FormatBool(*filters.IsActive)
	}
	key, err := s.cache.BuildKey(ctx, "catalog", "list", filters.Search, filters.Category, active,
		strconv.Itoa(filters.Limit), strconv.Itoa(filters.Offset))
	if err != nil {
		return ProductPage{}, fmt.Errorf("catalog: build key: %w", err)
	}
	var page ProductPage
	err = s.cache.FetchJSON(ctx, key, &page, func(ctx context.Context) (any, error) {
		products, total, err := s.repo.List(ctx, filters)
		if err != nil {
			return nil, err
		}
		return ProductPage{Products: products, Total: total}, nil
	})
	if err != nil {
		return ProductPage{}, fmt.Errorf("catalog: list: %w", err)
	}
	return page, nil
}

// Get returns one product by id.
func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, shared.Validation("id", "invalid product id")
	}
	key, err := s.cache.BuildKey(ctx, "catalog", "product", strconv.FormatInt(id, 10))
	if err != nil {
		return Product{}, fmt.Errorf("catalog: build key: %w", err)
	}
	var product Product
	err = s.cache.FetchJSON(ctx, key, &product, func(ctx context.Context) (any, error) {
		return s.repo.Get(ctx, id)
	})
	if err != nil {
		return Product{}, err
	}
	return product, nil
}

// Create validates and stores a new product.
func (s *Service) Create(ctx context.Context, product Product) (Product, error) {
	product.normalize()
	if err := product.validate(); err != nil {
		return Product{}, err
	}
	created, err := s.repo.Create(ctx, product)
	if err != nil {
		return Product{}, err
	}
	s.invalidate(ctx)
	return created, nil
}

// Update replaces a product. Lines already issued keep their copied values.
func (s *Service) Update(ctx context.Context, product Product) (Product, error) {
	if product.ID <= 0 {
		return Product{}, shared.Validation("id", "invalid product id")
	}
	product.normalize()
	if err := product.validate(); err != nil {
		return Product{}, err
	}
	if err := s.repo.Update(ctx, product); err != nil {
		return Product{}, err
	}
	s.invalidate(ctx)
	return s.repo.Get(ctx, product.ID)
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("catalog cache bump failed", slog.Any("error", err))
	}
}
