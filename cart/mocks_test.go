package cart

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/itsneelabh/cartshare/api"
)

type mockBasketAPI struct {
	mock.Mock
}

func basketOrNil(args mock.Arguments, i int) *api.ShoppingBasket {
	if v := args.Get(i); v != nil {
		return v.(*api.ShoppingBasket)
	}
	return nil
}

func (m *mockBasketAPI) Create(ctx context.Context, name string) error {
	return m.Called(ctx, name).Error(0)
}

func (m *mockBasketAPI) AddItem(ctx context.Context, cartID, productID api.ID, quantity int) (*api.ShoppingBasket, error) {
	args := m.Called(ctx, cartID, productID, quantity)
	return basketOrNil(args, 0), args.Error(1)
}

func (m *mockBasketAPI) AddItems(ctx context.Context, cartID api.ID, items []api.AddItemRequest) (*api.ShoppingBasket, error) {
	args := m.Called(ctx, cartID, items)
	return basketOrNil(args, 0), args.Error(1)
}

func (m *mockBasketAPI) Current(ctx context.Context) ([]api.CurrentBasketItem, error) {
	args := m.Called(ctx)
	items, _ := args.Get(0).([]api.CurrentBasketItem)
	return items, args.Error(1)
}

func (m *mockBasketAPI) UserCarts(ctx context.Context) ([]api.BasketSummary, error) {
	args := m.Called(ctx)
	carts, _ := args.Get(0).([]api.BasketSummary)
	return carts, args.Error(1)
}

func (m *mockBasketAPI) Select(ctx context.Context, basketID api.ID) (*api.BasketSelection, error) {
	args := m.Called(ctx, basketID)
	sel, _ := args.Get(0).(*api.BasketSelection)
	return sel, args.Error(1)
}

func (m *mockBasketAPI) UpdateQuantity(ctx context.Context, basketItemID api.ID, quantity int) (*api.ShoppingBasket, error) {
	args := m.Called(ctx, basketItemID, quantity)
	return basketOrNil(args, 0), args.Error(1)
}

func (m *mockBasketAPI) RemoveItem(ctx context.Context, productID api.ID) (*api.ShoppingBasket, error) {
	args := m.Called(ctx, productID)
	return basketOrNil(args, 0), args.Error(1)
}

func (m *mockBasketAPI) Join(ctx context.Context, code string) (string, error) {
	args := m.Called(ctx, code)
	return args.String(0), args.Error(1)
}

func (m *mockBasketAPI) TogglePurchased(ctx context.Context, cartID, productID api.ID, purchased bool) (*api.ShoppingBasket, error) {
	args := m.Called(ctx, cartID, productID, purchased)
	return basketOrNil(args, 0), args.Error(1)
}

type mockHistoryAPI struct {
	mock.Mock
}

func (m *mockHistoryAPI) Checkout(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockHistoryAPI) All(ctx context.Context) ([]api.History, error) {
	args := m.Called(ctx)
	h, _ := args.Get(0).([]api.History)
	return h, args.Error(1)
}

func (m *mockHistoryAPI) Recent(ctx context.Context, limit int) ([]api.History, error) {
	args := m.Called(ctx, limit)
	h, _ := args.Get(0).([]api.History)
	return h, args.Error(1)
}

type mockProductAPI struct {
	mock.Mock
}

func (m *mockProductAPI) Categories(ctx context.Context) ([]api.ProductGroup, error) {
	args := m.Called(ctx)
	g, _ := args.Get(0).([]api.ProductGroup)
	return g, args.Error(1)
}

func (m *mockProductAPI) StoreOffers(ctx context.Context, groupID api.ID) ([]api.Product, error) {
	args := m.Called(ctx, groupID)
	p, _ := args.Get(0).([]api.Product)
	return p, args.Error(1)
}

func (m *mockProductAPI) Search(ctx context.Context, query string) ([]api.Product, error) {
	args := m.Called(ctx, query)
	p, _ := args.Get(0).([]api.Product)
	return p, args.Error(1)
}

func (m *mockProductAPI) Get(ctx context.Context, productID api.ID) (*api.Product, error) {
	args := m.Called(ctx, productID)
	p, _ := args.Get(0).(*api.Product)
	return p, args.Error(1)
}
