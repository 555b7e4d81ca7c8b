package api

import (
	"context"
	"net/url"
	"strconv"

	"github.com/itsneelabh/cartshare/client"
)

// Resource base paths
const (
	UserBasePath    = "/api/user"
	BasketBasePath  = "/api/basket"
	ProductBasePath = "/api/products"
	HistoryBasePath = "/api/history"
)

// DefaultRecentLimit is the number of recent orders fetched when none is given.
const DefaultRecentLimit = 3

// Services bundles one service per backend resource over a shared client.
type Services struct {
	User    *UserService
	Basket  *BasketService
	Product *ProductService
	History *HistoryService
}

// NewServices creates every service over c
func NewServices(c *client.Client) *Services {
	return &Services{
		User:    NewUserService(c),
		Basket:  NewBasketService(c),
		Product: NewProductService(c),
		History: NewHistoryService(c),
	}
}

// ==================== Users ====================

// UserService covers /api/user.
type UserService struct {
	client *client.Client
}

func NewUserService(c *client.Client) *UserService {
	return &UserService{client: c}
}

// Register creates an account. The response carries the recovery code.
func (s *UserService) Register(ctx context.Context, req CreateUserRequest) (*RegisterUserAttemptResponse, error) {
	var out RegisterUserAttemptResponse
	if err := s.client.Put(ctx, UserBasePath+"/register", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *UserService) Login(ctx context.Context, req LoginRequest) (*LoginUserResponse, error) {
	var out LoginUserResponse
	if err := s.client.Post(ctx, UserBasePath+"/login", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *UserService) ResetPassword(ctx context.Context, req UpdatePasswordRequest) (*UpdatePasswordResponse, error) {
	var out UpdatePasswordResponse
	if err := s.client.Post(ctx, UserBasePath+"/reset-password", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *UserService) ChangePassword(ctx context.Context, req ChangePasswordRequest) (*UpdatePasswordResponse, error) {
	var out UpdatePasswordResponse
	if err := s.client.Post(ctx, UserBasePath+"/change-password", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *UserService) ChangeUsername(ctx context.Context, req ChangeUsernameRequest) (*ChangeUsernameResponse, error) {
	var out ChangeUsernameResponse
	if err := s.client.Post(ctx, UserBasePath+"/change-username", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CurrentUser returns the account bound to the session header.
func (s *UserService) CurrentUser(ctx context.Context) (*UserResponse, error) {
	var out UserResponse
	if err := s.client.Get(ctx, UserBasePath+"/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ==================== Baskets ====================

// BasketService covers /api/basket.
type BasketService struct {
	client *client.Client
}

func NewBasketService(c *client.Client) *BasketService {
	return &BasketService{client: c}
}

// Create makes a new basket owned by the current user.
func (s *BasketService) Create(ctx context.Context, name string) error {
	return s.client.Post(ctx, BasketBasePath+"/create", url.Values{"name": {name}}, nil, nil)
}

// AddItem adds a single product; the body is still a one-element list.
func (s *BasketService) AddItem(ctx context.Context, cartID, productID ID, quantity int) (*ShoppingBasket, error) {
	return s.AddItems(ctx, cartID, []AddItemRequest{{ProductID: productID, Quantity: quantity}})
}

// AddItems adds several products in one request and returns the enriched basket.
func (s *BasketService) AddItems(ctx context.Context, cartID ID, items []AddItemRequest) (*ShoppingBasket, error) {
	if items == nil {
		items = []AddItemRequest{}
	}
	var out *ShoppingBasket
	err := s.client.Post(ctx, BasketBasePath+"/add", url.Values{"cartId": {cartID.String()}}, items, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Current returns the raw lines of the currently selected basket.
func (s *BasketService) Current(ctx context.Context) ([]CurrentBasketItem, error) {
	var out []CurrentBasketItem
	if err := s.client.Get(ctx, BasketBasePath+"/current", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UserCarts lists every basket the user owns or joined.
func (s *BasketService) UserCarts(ctx context.Context) ([]BasketSummary, error) {
	var out []BasketSummary
	if err := s.client.Get(ctx, BasketBasePath+"/get/user/carts", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Select makes basketID the current basket and returns its enriched view.
func (s *BasketService) Select(ctx context.Context, basketID ID) (*BasketSelection, error) {
	var out BasketSelection
	err := s.client.Post(ctx, BasketBasePath+"/select/cart", url.Values{"basketId": {basketID.String()}}, nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateQuantity sets the quantity of a basket line. The returned basket may
// be nil when the backend answers with an empty body.
func (s *BasketService) UpdateQuantity(ctx context.Context, basketItemID ID, quantity int) (*ShoppingBasket, error) {
	q := url.Values{
		"basketItemId": {basketItemID.String()},
		"quantity":     {strconv.Itoa(quantity)},
	}
	var out *ShoppingBasket
	if err := s.client.Patch(ctx, BasketBasePath+"/quantity", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RemoveItem deletes a product from the current basket. The returned basket
// may be nil.
func (s *BasketService) RemoveItem(ctx context.Context, productID ID) (*ShoppingBasket, error) {
	var out *ShoppingBasket
	if err := s.client.Delete(ctx, BasketBasePath+"/item/"+url.PathEscape(productID.String()), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Join adds the user to a shared basket and returns the backend's message.
func (s *BasketService) Join(ctx context.Context, code string) (string, error) {
	var out string
	if err := s.client.Post(ctx, BasketBasePath+"/join", url.Values{"code": {code}}, nil, &out); err != nil {
		return "", err
	}
	return out, nil
}

// TogglePurchased sets the purchased flag of a line.
func (s *BasketService) TogglePurchased(ctx context.Context, cartID, productID ID, purchased bool) (*ShoppingBasket, error) {
	q := url.Values{
		"cartId":    {cartID.String()},
		"productId": {productID.String()},
		"purchased": {strconv.FormatBool(purchased)},
	}
	var out *ShoppingBasket
	if err := s.client.Patch(ctx, BasketBasePath+"/toggle", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ==================== Products ====================

// ProductService covers /api/products.
type ProductService struct {
	client *client.Client
}

func NewProductService(c *client.Client) *ProductService {
	return &ProductService{client: c}
}

func (s *ProductService) Categories(ctx context.Context) ([]ProductGroup, error) {
	var out []ProductGroup
	if err := s.client.Get(ctx, ProductBasePath+"/categories", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// StoreOffers lists every store's offer for a product group.
func (s *ProductService) StoreOffers(ctx context.Context, groupID ID) ([]Product, error) {
	var out []Product
	if err := s.client.Get(ctx, ProductBasePath+"/compare/"+url.PathEscape(groupID.String()), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Search sends the query parameter only when query is non-empty.
func (s *ProductService) Search(ctx context.Context, query string) ([]Product, error) {
	var params url.Values
	if query != "" {
		params = url.Values{"query": {query}}
	}
	var out []Product
	if err := s.client.Get(ctx, ProductBasePath+"/search", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ProductService) Get(ctx context.Context, productID ID) (*Product, error) {
	var out Product
	if err := s.client.Get(ctx, ProductBasePath+"/"+url.PathEscape(productID.String()), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ==================== History ====================

// HistoryService covers /api/history.
type HistoryService struct {
	client *client.Client
}

func NewHistoryService(c *client.Client) *HistoryService {
	return &HistoryService{client: c}
}

// Checkout closes the current basket into an order and returns the
// backend's message.
func (s *HistoryService) Checkout(ctx context.Context) (string, error) {
	var out string
	if err := s.client.Post(ctx, HistoryBasePath+"/checkout", nil, nil, &out); err != nil {
		return "", err
	}
	return out, nil
}

func (s *HistoryService) All(ctx context.Context) ([]History, error) {
	var out []History
	if err := s.client.Get(ctx, HistoryBasePath+"/all", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Recent returns the latest orders; limit <= 0 means DefaultRecentLimit.
func (s *HistoryService) Recent(ctx context.Context, limit int) ([]History, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	var out []History
	if err := s.client.Get(ctx, HistoryBasePath+"/recent", url.Values{"limit": {strconv.Itoa(limit)}}, &out); err != nil {
		return nil, err
	}
	return out, nil
}
