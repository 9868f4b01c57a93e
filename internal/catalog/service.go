package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/agromaq/crm-api/internal/access"
	"github.com/agromaq/crm-api/internal/auth"
	"github.com/agromaq/crm-api/internal/common"
)

// Resource is the permission resource name of the catalog.
const Resource = "products"

// listLimit caps the product picker payload; quote forms search instead
// of paging through the whole catalog.
const listLimit = 200

// Service orchestrates catalog queries and caching.
type Service struct {
	store Store
	cache *Cache
}

func NewService(store Store, cache *Cache) *Service {
	return &Service{store: store, cache: cache}
}

func canRead(p auth.Principal) bool {
	return p.Permissions.AllowsAny(
		access.Permission{Resource: Resource, Action: access.ActionRead},
		access.Permission{Resource: Resource, Action: access.ActionWildcard},
	)
}

// List returns products matching the search term, name-ordered. The
// unfiltered list is served from cache when possible.
func (s *Service) List(ctx context.Context, p auth.Principal, search string) ([]Product, error) {
	if !canRead(p) {
		return nil, common.Forbidden("Sin permisos")
	}
	search = strings.TrimSpace(search)

	const cacheKey = "catalog:products:all"
	if search == "" {
		var cached []Product
		if ok, err := s.cache.GetJSON(ctx, cacheKey, &cached); err == nil && ok {
			return cached, nil
		}
	}

	products, err := s.store.ListProducts(ctx, search, listLimit)
	if err != nil {
		return nil, err
	}
	if search == "" {
		_ = s.cache.SetJSON(ctx, cacheKey, products)
	}
	return products, nil
}

// Get returns one product by id.
func (s *Service) Get(ctx context.Context, p auth.Principal, id string) (Product, error) {
	if !canRead(p) {
		return Product{}, common.Forbidden("Sin permisos")
	}

	cacheKey := "catalog:products:detail:" + id
	var cached Product
	if ok, err := s.cache.GetJSON(ctx, cacheKey, &cached); err == nil && ok {
		return cached, nil
	}

	product, err := s.store.GetProduct(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Product{}, common.NotFound("Producto no encontrado")
	}
	if err != nil {
		return Product{}, err
	}
	_ = s.cache.SetJSON(ctx, cacheKey, product)
	return product, nil
}
