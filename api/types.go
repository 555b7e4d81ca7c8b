// Package api holds typed wrappers around the backend REST resources:
// users, baskets, products and order history. Each service is a thin layer
// over client.Client; it owns paths, query parameters and wire shapes, and
// nothing else. Cache policy lives in package cart and session policy in
// package auth.
package api

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ID is an entity identifier. The backend sends string ids, but some
// deployments serialize numeric primary keys; both decode to the same ID.
type ID string

// UnmarshalJSON implements json.Unmarshaler
func (id *ID) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*id = ID(str)
		return nil
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return fmt.Errorf("invalid id %s", data)
	}
	*id = ID(s)
	return nil
}

// String implements fmt.Stringer
func (id ID) String() string {
	return string(id)
}

// BaseResponse is embedded in every command-style response.
type BaseResponse struct {
	ErrorCode *int   `json:"errorCode,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Code returns the error code, 0 when absent.
func (r BaseResponse) Code() int {
	if r.ErrorCode == nil {
		return 0
	}
	return *r.ErrorCode
}

// HasCode reports whether the backend sent an error code at all.
func (r BaseResponse) HasCode() bool {
	return r.ErrorCode != nil
}

// ==================== Users ====================

type CreateUserRequest struct {
	Username             string `json:"username"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"passwordConfirmation"`
	Location             string `json:"location,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UpdatePasswordRequest resets a forgotten password with a recovery code.
type UpdatePasswordRequest struct {
	Token           string `json:"token"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

type ChangePasswordRequest struct {
	Email           string `json:"email"`
	OldPassword     string `json:"oldPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

type ChangeUsernameRequest struct {
	Email           string `json:"email"`
	CurrentPassword string `json:"currentPassword"`
	NewUsername     string `json:"newUsername"`
}

type LoginUserResponse struct {
	BaseResponse
	SessionID string `json:"sessionId,omitempty"`
}

// RegisterUserAttemptResponse carries the one-time recovery code.
type RegisterUserAttemptResponse struct {
	BaseResponse
	UniqueCode string `json:"uniqueCode,omitempty"`
}

type UpdatePasswordResponse struct {
	BaseResponse
}

type ChangeUsernameResponse struct {
	BaseResponse
}

type UserResponse struct {
	ID       ID     `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

// ==================== Baskets ====================

// PriceComparison is a cheaper offer for the same product at another store.
type PriceComparison struct {
	ProductID ID              `json:"productId"`
	Price     decimal.Decimal `json:"price"`
	StoreName string          `json:"storeName"`
}

// BasketItem is one line of an enriched basket.
type BasketItem struct {
	ProductID      ID               `json:"productId"`
	ProductName    string           `json:"productName"`
	Quantity       int              `json:"quantity"`
	StoreName      string           `json:"storeName"`
	Price          decimal.Decimal  `json:"price"`
	Purchased      bool             `json:"purchased,omitempty"`
	LowerPriceItem *PriceComparison `json:"lowerPriceItem,omitempty"`
}

// LineTotal is price × quantity
func (i BasketItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ShoppingBasket is the enriched basket returned by every item mutation.
type ShoppingBasket struct {
	ID                   ID               `json:"id"`
	Name                 string           `json:"name"`
	OwnerID              ID               `json:"ownerId"`
	Shared               bool             `json:"shared"`
	ShareCode            string           `json:"shareCode"`
	Items                []BasketItem     `json:"items"`
	Members              []string         `json:"members"`
	Total                decimal.Decimal  `json:"total"`
	TotalFromSuggestions *decimal.Decimal `json:"totalFromSuggestions,omitempty"`
}

// Item returns the line for productID.
func (b *ShoppingBasket) Item(productID ID) (BasketItem, bool) {
	if b == nil {
		return BasketItem{}, false
	}
	for _, it := range b.Items {
		if it.ProductID == productID {
			return it, true
		}
	}
	return BasketItem{}, false
}

// BasketSummary is the list view of a basket the user belongs to.
type BasketSummary struct {
	ID        ID       `json:"id"`
	UserID    ID       `json:"userId"`
	Name      string   `json:"name"`
	IsShared  bool     `json:"isShared"`
	OwnerID   ID       `json:"ownerId"`
	ShareCode string   `json:"shareCode"`
	Members   []string `json:"members"`
	CreatedAt string   `json:"createdAt"`
}

// BasketMember is a user's role in a shared basket.
type BasketMember struct {
	BasketID ID     `json:"basketId"`
	UserID   ID     `json:"userId"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Basket member roles
const (
	RoleOwner  = "OWNER"
	RoleMember = "MEMBER"
)

// CurrentBasketItem is a raw line of the currently selected basket.
type CurrentBasketItem struct {
	ID        ID              `json:"id"`
	BasketID  ID              `json:"basketId"`
	ProductID ID              `json:"productId"`
	Quantity  int             `json:"quantity"`
	AddedBy   string          `json:"addedBy"`
	AddedAt   string          `json:"addedAt"`
	RawName   string          `json:"rawName"`
	Price     decimal.Decimal `json:"price"`
	StoreName string          `json:"storeName"`
}

// BasketSelection is what selecting a basket returns, and what the basket
// detail cache entry holds.
type BasketSelection struct {
	Message       string          `json:"message"`
	CurrentBasket *ShoppingBasket `json:"currentBasket"`
	History       []History       `json:"history"`
}

// AddItemRequest is one element of the add-items body.
type AddItemRequest struct {
	ProductID ID  `json:"productId"`
	Quantity  int `json:"quantity"`
}

// ==================== Products ====================

// ProductGroup is a category entry grouping equivalent products.
type ProductGroup struct {
	ID            ID     `json:"id"`
	CanonicalName string `json:"canonicalName"`
	Category      string `json:"category"`
	ImageURL      string `json:"imageUrl"`
}

// Product is one store's offer for a product.
type Product struct {
	ProductID      ID               `json:"productId"`
	PriceID        ID               `json:"priceId,omitempty"`
	Name           string           `json:"name"`
	StoreName      string           `json:"storeName"`
	Price          decimal.Decimal  `json:"price"`
	Currency       string           `json:"currency,omitempty"`
	Quantity       *int             `json:"quantity,omitempty"`
	TotalLinePrice *decimal.Decimal `json:"totalLinePrice,omitempty"`
}

// ==================== History ====================

type HistoryItem struct {
	ID              ID              `json:"id"`
	HistoryID       ID              `json:"historyId"`
	ProductName     string          `json:"productName"`
	Quantity        int             `json:"quantity"`
	PriceAtPurchase decimal.Decimal `json:"priceAtPurchase"`
}

// History is a checked-out basket.
type History struct {
	ID         ID              `json:"id"`
	UserID     ID              `json:"userId"`
	BasketID   ID              `json:"basketId"`
	BasketName string          `json:"basketName"`
	TotalSpent decimal.Decimal `json:"totalSpent"`
	Currency   string          `json:"currency"`
	ClosedAt   string          `json:"closedAt"`
	Items      []HistoryItem   `json:"items"`
}
