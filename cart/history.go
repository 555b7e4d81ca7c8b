package cart

import (
	"context"

	"github.com/itsneelabh/cartshare/api"
	"github.com/itsneelabh/cartshare/cache"
)

// History binds order history to the cache.
type History struct {
	binding
	api HistoryAPI
}

func NewHistory(svc HistoryAPI, c *cache.Cache, opts ...Option) *History {
	return &History{binding: newBinding(c, opts), api: svc}
}

// All returns every past order.
func (h *History) All(ctx context.Context) ([]api.History, error) {
	var out []api.History
	err := h.trace(ctx, "FullHistory", nil, func(ctx context.Context) error {
		var err error
		out, err = cache.Fetch(ctx, h.cache, HistoryKeys.List(), h.api.All)
		return err
	})
	return out, err
}

// Recent returns the latest limit orders; limit <= 0 uses api.DefaultRecentLimit.
func (h *History) Recent(ctx context.Context, limit int) ([]api.History, error) {
	if limit <= 0 {
		limit = api.DefaultRecentLimit
	}
	var out []api.History
	err := h.trace(ctx, "RecentOrders", map[string]interface{}{"limit": limit}, func(ctx context.Context) error {
		var err error
		out, err = cache.Fetch(ctx, h.cache, HistoryKeys.Recent(limit), func(ctx context.Context) ([]api.History, error) {
			return h.api.Recent(ctx, limit)
		})
		return err
	})
	return out, err
}

// Checkout turns the current basket into an order.
func (h *History) Checkout(ctx context.Context) (string, error) {
	var out string
	err := h.trace(ctx, "Checkout", nil, func(ctx context.Context) error {
		var err error
		if out, err = h.api.Checkout(ctx); err != nil {
			return err
		}
		h.cache.Invalidate(HistoryKeys.All())
		h.cache.Invalidate(BasketKeys.Current())
		h.cache.Invalidate(BasketKeys.List())
		// The backend drops its selection once the basket is checked out.
		h.cache.Remove(BasketKeys.Selected())
		return nil
	})
	return out, err
}
