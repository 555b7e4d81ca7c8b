package cart

import (
	"context"
	"fmt"

	"github.com/itsneelabh/cartshare/api"
	"github.com/itsneelabh/cartshare/cache"
)

// Products binds product reads to the cache. Products are read-only.
type Products struct {
	binding
	api ProductAPI
}

func NewProducts(svc ProductAPI, c *cache.Cache, opts ...Option) *Products {
	return &Products{binding: newBinding(c, opts), api: svc}
}

func (p *Products) Categories(ctx context.Context) ([]api.ProductGroup, error) {
	var out []api.ProductGroup
	err := p.trace(ctx, "Categories", nil, func(ctx context.Context) error {
		var err error
		out, err = cache.Fetch(ctx, p.cache, ProductKeys.Categories(), p.api.Categories)
		return err
	})
	return out, err
}

// Search finds products; an empty query lists everything.
func (p *Products) Search(ctx context.Context, query string) ([]api.Product, error) {
	var out []api.Product
	err := p.trace(ctx, "SearchProducts", map[string]interface{}{"query": query}, func(ctx context.Context) error {
		var err error
		out, err = cache.Fetch(ctx, p.cache, ProductKeys.Search(query), func(ctx context.Context) ([]api.Product, error) {
			return p.api.Search(ctx, query)
		})
		return err
	})
	return out, err
}

// Offers lists every store's price for a product group.
func (p *Products) Offers(ctx context.Context, groupID api.ID) ([]api.Product, error) {
	if groupID == "" {
		return nil, fmt.Errorf("store offers: %w", ErrMissingID)
	}
	var out []api.Product
	err := p.trace(ctx, "StoreOffers", map[string]interface{}{"group.id": groupID.String()}, func(ctx context.Context) error {
		var err error
		out, err = cache.Fetch(ctx, p.cache, ProductKeys.Offers(groupID), func(ctx context.Context) ([]api.Product, error) {
			return p.api.StoreOffers(ctx, groupID)
		})
		return err
	})
	return out, err
}

func (p *Products) Get(ctx context.Context, productID api.ID) (*api.Product, error) {
	if productID == "" {
		return nil, fmt.Errorf("product: %w", ErrMissingID)
	}
	var out *api.Product
	err := p.trace(ctx, "GetProduct", map[string]interface{}{"product.id": productID.String()}, func(ctx context.Context) error {
		var err error
		out, err = cache.Fetch(ctx, p.cache, ProductKeys.Detail(productID), func(ctx context.Context) (*api.Product, error) {
			return p.api.Get(ctx, productID)
		})
		return err
	})
	return out, err
}
