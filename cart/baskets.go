package cart

import (
	"context"
	"fmt"

	"github.com/itsneelabh/cartshare/api"
	"github.com/itsneelabh/cartshare/cache"
)

// Baskets binds basket reads and mutations to the cache.
type Baskets struct {
	binding
	api BasketAPI
}

// NewBaskets creates the basket binding
func NewBaskets(svc BasketAPI, c *cache.Cache, opts ...Option) *Baskets {
	return &Baskets{binding: newBinding(c, opts), api: svc}
}

// List returns the baskets the user owns or joined.
func (b *Baskets) List(ctx context.Context) ([]api.BasketSummary, error) {
	var out []api.BasketSummary
	err := b.trace(ctx, "ListBaskets", nil, func(ctx context.Context) error {
		var err error
		out, err = cache.Fetch(ctx, b.cache, BasketKeys.List(), b.api.UserCarts)
		return err
	})
	return out, err
}

// Current returns the raw lines of the selected basket.
func (b *Baskets) Current(ctx context.Context) ([]api.CurrentBasketItem, error) {
	var out []api.CurrentBasketItem
	err := b.trace(ctx, "CurrentBasket", nil, func(ctx context.Context) error {
		var err error
		out, err = cache.Fetch(ctx, b.cache, BasketKeys.Current(), b.api.Current)
		return err
	})
	return out, err
}

// Detail selects cartID and returns its enriched view, cached per basket.
func (b *Baskets) Detail(ctx context.Context, cartID api.ID) (*api.BasketSelection, error) {
	if cartID == "" {
		return nil, fmt.Errorf("basket detail: %w", ErrMissingID)
	}
	var out *api.BasketSelection
	err := b.trace(ctx, "BasketDetail", map[string]interface{}{"cart.id": cartID.String()}, func(ctx context.Context) error {
		var err error
		out, err = cache.Fetch(ctx, b.cache, BasketKeys.Detail(cartID), func(ctx context.Context) (*api.BasketSelection, error) {
			sel, err := b.api.Select(ctx, cartID)
			if err == nil {
				b.markSelected(cartID)
			}
			return sel, err
		})
		return err
	})
	return out, err
}

// Create makes a new basket.
func (b *Baskets) Create(ctx context.Context, name string) error {
	return b.trace(ctx, "CreateBasket", nil, func(ctx context.Context) error {
		if err := b.api.Create(ctx, name); err != nil {
			return err
		}
		b.cache.Invalidate(BasketKeys.List())
		return nil
	})
}

// Select switches the current basket.
func (b *Baskets) Select(ctx context.Context, cartID api.ID) (*api.BasketSelection, error) {
	var out *api.BasketSelection
	err := b.trace(ctx, "SelectBasket", map[string]interface{}{"cart.id": cartID.String()}, func(ctx context.Context) error {
		var err error
		if out, err = b.api.Select(ctx, cartID); err != nil {
			return err
		}
		b.markSelected(cartID)
		b.cache.Invalidate(BasketKeys.Current())
		return nil
	})
	return out, err
}

// AddItem adds quantity of productID to cartID.
func (b *Baskets) AddItem(ctx context.Context, cartID, productID api.ID, quantity int) (*api.ShoppingBasket, error) {
	var out *api.ShoppingBasket
	attrs := map[string]interface{}{"cart.id": cartID.String(), "product.id": productID.String()}
	err := b.trace(ctx, "AddItem", attrs, func(ctx context.Context) error {
		var err error
		if out, err = b.api.AddItem(ctx, cartID, productID, quantity); err != nil {
			return err
		}
		b.patchDetail(cartID, out)
		b.cache.Invalidate(BasketKeys.List())
		return nil
	})
	return out, err
}

// AddItems adds several products in one request.
func (b *Baskets) AddItems(ctx context.Context, cartID api.ID, items []api.AddItemRequest) (*api.ShoppingBasket, error) {
	var out *api.ShoppingBasket
	attrs := map[string]interface{}{"cart.id": cartID.String(), "items": len(items)}
	err := b.trace(ctx, "AddItems", attrs, func(ctx context.Context) error {
		var err error
		if out, err = b.api.AddItems(ctx, cartID, items); err != nil {
			return err
		}
		b.patchDetail(cartID, out)
		b.cache.Invalidate(BasketKeys.List())
		return nil
	})
	return out, err
}

// UpdateQuantity sets the quantity of the line for productID. The backend
// addresses lines by product id within its selected basket, so cartID is
// selected first when another basket was read since. Quantities below one
// are rejected without a request.
func (b *Baskets) UpdateQuantity(ctx context.Context, cartID, productID api.ID, quantity int) (*api.ShoppingBasket, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("update quantity to %d: %w", quantity, ErrInvalidQuantity)
	}
	var out *api.ShoppingBasket
	attrs := map[string]interface{}{"cart.id": cartID.String(), "product.id": productID.String(), "quantity": quantity}
	err := b.trace(ctx, "UpdateQuantity", attrs, func(ctx context.Context) error {
		if err := b.ensureSelected(ctx, cartID); err != nil {
			return err
		}
		var err error
		if out, err = b.api.UpdateQuantity(ctx, productID, quantity); err != nil {
			return err
		}
		if out != nil && cartID != "" {
			b.patchDetail(cartID, out)
		}
		return nil
	})
	return out, err
}

// AdjustQuantity changes a line's quantity by delta.
func (b *Baskets) AdjustQuantity(ctx context.Context, cartID api.ID, item api.BasketItem, delta int) (*api.ShoppingBasket, error) {
	return b.UpdateQuantity(ctx, cartID, item.ProductID, item.Quantity+delta)
}

// RemoveItem deletes productID from cartID, selecting it first if needed.
// An empty cartID acts on whatever basket the backend has selected.
func (b *Baskets) RemoveItem(ctx context.Context, cartID, productID api.ID) (*api.ShoppingBasket, error) {
	var out *api.ShoppingBasket
	attrs := map[string]interface{}{"cart.id": cartID.String(), "product.id": productID.String()}
	err := b.trace(ctx, "RemoveItem", attrs, func(ctx context.Context) error {
		if err := b.ensureSelected(ctx, cartID); err != nil {
			return err
		}
		var err error
		if out, err = b.api.RemoveItem(ctx, productID); err != nil {
			return err
		}
		if out != nil && cartID != "" {
			b.patchDetail(cartID, out)
		}
		return nil
	})
	return out, err
}

// TogglePurchased sets the purchased flag of a line.
func (b *Baskets) TogglePurchased(ctx context.Context, cartID, productID api.ID, purchased bool) (*api.ShoppingBasket, error) {
	var out *api.ShoppingBasket
	attrs := map[string]interface{}{"cart.id": cartID.String(), "product.id": productID.String(), "purchased": purchased}
	err := b.trace(ctx, "TogglePurchased", attrs, func(ctx context.Context) error {
		var err error
		if out, err = b.api.TogglePurchased(ctx, cartID, productID, purchased); err != nil {
			return err
		}
		if out != nil {
			b.patchDetail(cartID, out)
		}
		return nil
	})
	return out, err
}

// Join adds the user to the basket shared under code.
func (b *Baskets) Join(ctx context.Context, code string) (string, error) {
	var out string
	err := b.trace(ctx, "JoinBasket", nil, func(ctx context.Context) error {
		var err error
		if out, err = b.api.Join(ctx, code); err != nil {
			return err
		}
		b.cache.Invalidate(BasketKeys.List())
		return nil
	})
	return out, err
}

// Refresh marks cartID's detail stale so the next Detail refetches it.
func (b *Baskets) Refresh(cartID api.ID) {
	b.cache.Invalidate(BasketKeys.Detail(cartID))
}

// selected returns the basket the backend last selected, if known.
func (b *Baskets) selected() api.ID {
	v, _ := b.cache.Peek(BasketKeys.Selected())
	id, _ := v.(api.ID)
	return id
}

func (b *Baskets) markSelected(cartID api.ID) {
	b.cache.Set(BasketKeys.Selected(), cartID)
}

// ensureSelected makes cartID the backend's selected basket before a
// mutation that does not name the basket itself.
func (b *Baskets) ensureSelected(ctx context.Context, cartID api.ID) error {
	if cartID == "" || b.selected() == cartID {
		return nil
	}
	b.logger.Debug("Reselecting basket before mutation", map[string]interface{}{
		"cart_id":  cartID.String(),
		"selected": b.selected().String(),
	})
	if _, err := b.api.Select(ctx, cartID); err != nil {
		return fmt.Errorf("select basket %s: %w", cartID, err)
	}
	b.markSelected(cartID)
	b.cache.Invalidate(BasketKeys.Current())
	return nil
}

// patchDetail swaps the basket inside a cached selection. Nothing is cached
// when the detail was never read, and a basket that belongs to another id
// never lands in cartID's entry.
func (b *Baskets) patchDetail(cartID api.ID, basket *api.ShoppingBasket) bool {
	if basket == nil {
		return false
	}
	if basket.ID != "" && basket.ID != cartID {
		b.logger.Warn("Basket detail patch skipped", map[string]interface{}{
			"cart_id":   cartID.String(),
			"basket_id": basket.ID.String(),
		})
		return false
	}
	patched := b.cache.Update(BasketKeys.Detail(cartID), func(old interface{}) (interface{}, bool) {
		sel, ok := old.(*api.BasketSelection)
		if !ok || sel == nil {
			return nil, false
		}
		next := *sel
		next.CurrentBasket = basket
		return &next, true
	})
	b.logger.Debug("Basket detail patch", map[string]interface{}{
		"cart_id": cartID.String(),
		"patched": patched,
	})
	return patched
}
