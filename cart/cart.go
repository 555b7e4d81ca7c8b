// Package cart binds the basket, product and history services to the shared
// query cache.
//
// Reads go through cache.Fetch under the keys in keys.go. Every mutation
// applies a fixed cache effect on success:
//
//	AddItem, AddItems   patch basket detail, invalidate basket lists
//	UpdateQuantity      patch basket detail when a basket came back
//	RemoveItem          patch basket detail when a basket came back
//	TogglePurchased     patch basket detail when a basket came back
//	Create, Join        invalidate basket lists
//	Select              invalidate the current basket
//	Checkout            invalidate history, the current basket and basket lists
//
// A patch replaces only the currentBasket of a cached selection and never
// creates an entry. Failed mutations leave the cache untouched.
package cart

import (
	"context"
	"errors"

	"github.com/itsneelabh/cartshare/api"
	"github.com/itsneelabh/cartshare/cache"
	"github.com/itsneelabh/cartshare/core"
)

var (
	// ErrMissingID is returned by reads that need an id when none was given.
	ErrMissingID = errors.New("missing id")
	// ErrInvalidQuantity is returned before any request when a quantity would drop to zero or below.
	ErrInvalidQuantity = errors.New("quantity must be positive")
	// ErrPartialApply marks a suggestion apply that removed the original item
	// but failed to add the alternative.
	ErrPartialApply = errors.New("suggestion partially applied")
)

// BasketAPI is the slice of api.BasketService the bindings use.
type BasketAPI interface {
	Create(ctx context.Context, name string) error
	AddItem(ctx context.Context, cartID, productID api.ID, quantity int) (*api.ShoppingBasket, error)
	AddItems(ctx context.Context, cartID api.ID, items []api.AddItemRequest) (*api.ShoppingBasket, error)
	Current(ctx context.Context) ([]api.CurrentBasketItem, error)
	UserCarts(ctx context.Context) ([]api.BasketSummary, error)
	Select(ctx context.Context, basketID api.ID) (*api.BasketSelection, error)
	UpdateQuantity(ctx context.Context, basketItemID api.ID, quantity int) (*api.ShoppingBasket, error)
	RemoveItem(ctx context.Context, productID api.ID) (*api.ShoppingBasket, error)
	Join(ctx context.Context, code string) (string, error)
	TogglePurchased(ctx context.Context, cartID, productID api.ID, purchased bool) (*api.ShoppingBasket, error)
}

// ProductAPI is the slice of api.ProductService the bindings use.
type ProductAPI interface {
	Categories(ctx context.Context) ([]api.ProductGroup, error)
	StoreOffers(ctx context.Context, groupID api.ID) ([]api.Product, error)
	Search(ctx context.Context, query string) ([]api.Product, error)
	Get(ctx context.Context, productID api.ID) (*api.Product, error)
}

// HistoryAPI is the slice of api.HistoryService the bindings use.
type HistoryAPI interface {
	Checkout(ctx context.Context) (string, error)
	All(ctx context.Context) ([]api.History, error)
	Recent(ctx context.Context, limit int) ([]api.History, error)
}

// Option configures the bindings
type Option func(*binding)

// WithTelemetry traces every read and mutation
func WithTelemetry(t core.Telemetry) Option {
	return func(b *binding) {
		if t != nil {
			b.telemetry = t
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger core.Logger) Option {
	return func(b *binding) {
		b.logger = core.ComponentLogger(logger, "cart")
	}
}

// binding carries what every resource binding shares.
type binding struct {
	cache     *cache.Cache
	telemetry core.Telemetry
	logger    core.Logger
}

func newBinding(c *cache.Cache, opts []Option) binding {
	b := binding{
		cache:     c,
		telemetry: &core.NoOpTelemetry{},
		logger:    &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// trace runs fn inside a span named op and counts the outcome.
func (b binding) trace(ctx context.Context, op string, attrs map[string]interface{}, fn func(ctx context.Context) error) error {
	ctx, span := b.telemetry.StartSpan(ctx, "cart."+op)
	defer span.End()
	for k, v := range attrs {
		span.SetAttribute(k, v)
	}

	err := fn(ctx)
	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
	}
	b.telemetry.RecordMetric("cartshare.cart.operations", 1, map[string]string{
		"operation": op,
		"status":    status,
	})
	return err
}

// Service groups the three resource bindings over one cache.
type Service struct {
	Baskets  *Baskets
	Products *Products
	History  *History
}

// NewService binds the api services to c.
func NewService(services *api.Services, c *cache.Cache, opts ...Option) *Service {
	return &Service{
		Baskets:  NewBaskets(services.Basket, c, opts...),
		Products: NewProducts(services.Product, c, opts...),
		History:  NewHistory(services.History, c, opts...),
	}
}

// CheckoutBasket checks out cartID, selecting it first when another basket
// was read since, and then marks its detail stale so the next read shows the
// emptied basket. An empty cartID checks out the backend's selection.
func (s *Service) CheckoutBasket(ctx context.Context, cartID api.ID) (string, error) {
	if err := s.Baskets.ensureSelected(ctx, cartID); err != nil {
		return "", err
	}
	msg, err := s.History.Checkout(ctx)
	if err != nil {
		return "", err
	}
	if cartID != "" {
		s.Baskets.Refresh(cartID)
	}
	return msg, nil
}
