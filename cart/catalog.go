package cart

import (
	"sort"
	"strings"
	"sync"

	"github.com/itsneelabh/cartshare/api"
)

// SortOrder orders products by price
type SortOrder string

const (
	PriceAscending  SortOrder = "asc"
	PriceDescending SortOrder = "desc"
)

// ParseSortOrder accepts "asc" or "desc"; anything else is ascending.
func ParseSortOrder(s string) SortOrder {
	if strings.EqualFold(s, string(PriceDescending)) {
		return PriceDescending
	}
	return PriceAscending
}

// FilterProducts keeps products whose name or store contains query (case
// insensitive) and sorts them by price. The input slice is not modified.
func FilterProducts(products []api.Product, query string, order SortOrder) []api.Product {
	q := strings.ToLower(query)
	out := make([]api.Product, 0, len(products))
	for _, p := range products {
		if strings.Contains(strings.ToLower(p.Name), q) || strings.Contains(strings.ToLower(p.StoreName), q) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if order == PriceDescending {
			return out[i].Price.GreaterThan(out[j].Price)
		}
		return out[i].Price.LessThan(out[j].Price)
	})
	return out
}

// PartitionProducts splits products into those already in the basket or
// staged, and those still available to add.
func PartitionProducts(products []api.Product, basket *api.ShoppingBasket, staged *Staging) (added, available []api.Product) {
	for _, p := range products {
		_, inBasket := basket.Item(p.ProductID)
		if inBasket || staged.Quantity(p.ProductID) > 0 {
			added = append(added, p)
		} else {
			available = append(available, p)
		}
	}
	return added, available
}

// Staging accumulates quantities before a single batch add. A quantity that
// drops to zero or below removes the product. Safe for concurrent use.
type Staging struct {
	mu    sync.Mutex
	order []api.ID
	qty   map[api.ID]int
}

func NewStaging() *Staging {
	return &Staging{qty: make(map[api.ID]int)}
}

// Add increments the staged quantity by one.
func (s *Staging) Add(productID api.ID) int {
	return s.Adjust(productID, 1)
}

// Adjust changes the staged quantity by delta and returns the new quantity.
func (s *Staging) Adjust(productID api.ID, delta int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLocked(productID, s.qty[productID]+delta)
}

// Set replaces the staged quantity.
func (s *Staging) Set(productID api.ID, quantity int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLocked(productID, quantity)
}

// Remove unstages a product.
func (s *Staging) Remove(productID api.ID) {
	s.Set(productID, 0)
}

// Quantity returns the staged quantity, 0 when absent. A nil Staging is empty.
func (s *Staging) Quantity(productID api.ID) int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.qty[productID]
}

func (s *Staging) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Items returns the staged lines in the order they were first staged.
func (s *Staging) Items() []api.AddItemRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.AddItemRequest, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, api.AddItemRequest{ProductID: id, Quantity: s.qty[id]})
	}
	return out
}

// Reset drops everything staged.
func (s *Staging) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = nil
	s.qty = make(map[api.ID]int)
}

func (s *Staging) setLocked(productID api.ID, quantity int) int {
	_, exists := s.qty[productID]
	if quantity <= 0 {
		if exists {
			delete(s.qty, productID)
			for i, id := range s.order {
				if id == productID {
					s.order = append(s.order[:i], s.order[i+1:]...)
					break
				}
			}
		}
		return 0
	}
	if !exists {
		s.order = append(s.order, productID)
	}
	s.qty[productID] = quantity
	return quantity
}
