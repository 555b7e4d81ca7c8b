package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/cartshare/client"
	"github.com/itsneelabh/cartshare/core"
)

type recorded struct {
	method string
	path   string
	query  string
	body   string
}

type recorder struct {
	mu    sync.Mutex
	calls []recorded
}

func (r *recorder) all() []recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recorded(nil), r.calls...)
}

// newServices serves every request with the canned response for its path.
func newServices(t *testing.T, responses map[string]string) (*Services, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.calls = append(rec.calls, recorded{r.Method, r.URL.Path, r.URL.RawQuery, string(body)})
		rec.mu.Unlock()
		if resp, ok := responses[r.Method+" "+r.URL.Path]; ok {
			_, _ = w.Write([]byte(resp))
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"errorCode":404,"message":"no route"}`))
	}))
	t.Cleanup(srv.Close)
	return NewServices(client.New(core.APIConfig{BaseURL: srv.URL}, nil)), rec
}

func TestID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in   string
		want ID
		err  bool
	}{
		{`"abc-1"`, "abc-1", false},
		{`42`, "42", false},
		{`null`, "", false},
		{`{}`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var id ID
			err := json.Unmarshal([]byte(tt.in), &id)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestShoppingBasket_DecodesNumbersAndStrings(t *testing.T) {
	raw := `{"id":7,"name":"Weekly","ownerId":"u1","shared":true,"shareCode":"XY",
		"items":[{"productId":"p1","productName":"Milk","quantity":3,"storeName":"A","price":"1.10",
		"lowerPriceItem":{"productId":"p9","price":0.95,"storeName":"B"}}],
		"members":["alice"],"total":3.30}`

	var b ShoppingBasket
	require.NoError(t, json.Unmarshal([]byte(raw), &b))
	assert.Equal(t, ID("7"), b.ID)
	require.Len(t, b.Items, 1)
	assert.True(t, b.Items[0].Price.Equal(decimal.RequireFromString("1.10")))
	assert.True(t, b.Items[0].LineTotal().Equal(decimal.RequireFromString("3.30")))
	assert.True(t, b.Total.Equal(b.Items[0].LineTotal()))
	assert.Nil(t, b.TotalFromSuggestions)

	item, ok := b.Item("p1")
	assert.True(t, ok)
	assert.Equal(t, "Milk", item.ProductName)
	_, ok = b.Item("nope")
	assert.False(t, ok)
}

func TestBasketService_Requests(t *testing.T) {
	basket := `{"id":"c1","name":"Weekly","items":[],"members":[],"total":0}`
	svc, calls := newServices(t, map[string]string{
		"POST /api/basket/create":        ``,
		"POST /api/basket/add":           basket,
		"PATCH /api/basket/quantity":     ``,
		"DELETE /api/basket/item/p1":     basket,
		"POST /api/basket/join":          `Joined basket Weekly`,
		"POST /api/basket/select/cart":   `{"message":"ok","currentBasket":` + basket + `,"history":[]}`,
		"PATCH /api/basket/toggle":       basket,
		"GET /api/basket/current":        `[{"id":"i1","basketId":"c1","productId":"p1","quantity":2,"price":1.5}]`,
		"GET /api/basket/get/user/carts": `[{"id":"c1","name":"Weekly","isShared":false}]`,
	})
	ctx := context.Background()

	require.NoError(t, svc.Basket.Create(ctx, "Weekly Shop"))

	b, err := svc.Basket.AddItem(ctx, "c1", "p1", 2)
	require.NoError(t, err)
	assert.Equal(t, ID("c1"), b.ID)

	b, err = svc.Basket.UpdateQuantity(ctx, "p1", 4)
	require.NoError(t, err)
	assert.Nil(t, b, "empty body decodes to a nil basket")

	b, err = svc.Basket.RemoveItem(ctx, "p1")
	require.NoError(t, err)
	assert.NotNil(t, b)

	msg, err := svc.Basket.Join(ctx, "XY12")
	require.NoError(t, err)
	assert.Equal(t, "Joined basket Weekly", msg)

	sel, err := svc.Basket.Select(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, ID("c1"), sel.CurrentBasket.ID)

	_, err = svc.Basket.TogglePurchased(ctx, "c1", "p1", true)
	require.NoError(t, err)

	current, err := svc.Basket.Current(ctx)
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, 2, current[0].Quantity)

	carts, err := svc.Basket.UserCarts(ctx)
	require.NoError(t, err)
	require.Len(t, carts, 1)

	want := []recorded{
		{"POST", "/api/basket/create", "name=Weekly+Shop", ""},
		{"POST", "/api/basket/add", "cartId=c1", `[{"productId":"p1","quantity":2}]`},
		{"PATCH", "/api/basket/quantity", "basketItemId=p1&quantity=4", ""},
		{"DELETE", "/api/basket/item/p1", "", ""},
		{"POST", "/api/basket/join", "code=XY12", ""},
		{"POST", "/api/basket/select/cart", "basketId=c1", ""},
		{"PATCH", "/api/basket/toggle", "cartId=c1&productId=p1&purchased=true", ""},
		{"GET", "/api/basket/current", "", ""},
		{"GET", "/api/basket/get/user/carts", "", ""},
	}
	assert.Equal(t, want, calls.all())
}

func TestProductService_SearchOmitsEmptyQuery(t *testing.T) {
	svc, calls := newServices(t, map[string]string{
		"GET /api/products/search":     `[{"productId":"p1","name":"Milk","storeName":"A","price":1}]`,
		"GET /api/products/categories": `[{"id":"g1","canonicalName":"Milk","category":"Dairy"}]`,
		"GET /api/products/compare/g1": `[]`,
		"GET /api/products/p1":         `{"productId":"p1","name":"Milk","storeName":"A","price":"1.00"}`,
	})
	ctx := context.Background()

	_, err := svc.Product.Search(ctx, "")
	require.NoError(t, err)
	_, err = svc.Product.Search(ctx, "milk")
	require.NoError(t, err)
	_, err = svc.Product.Categories(ctx)
	require.NoError(t, err)
	offers, err := svc.Product.StoreOffers(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, offers)
	p, err := svc.Product.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Milk", p.Name)

	assert.Equal(t, "", calls.all()[0].query)
	assert.Equal(t, "query=milk", calls.all()[1].query)
}

func TestHistoryService(t *testing.T) {
	svc, calls := newServices(t, map[string]string{
		"POST /api/history/checkout": `"Checkout complete"`,
		"GET /api/history/all":       `[{"id":"h1","basketName":"Weekly","totalSpent":"12.40","items":[]}]`,
		"GET /api/history/recent":    `[]`,
	})
	ctx := context.Background()

	msg, err := svc.History.Checkout(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Checkout complete", msg)

	all, err := svc.History.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "12.4", all[0].TotalSpent.String())

	_, err = svc.History.Recent(ctx, 0)
	require.NoError(t, err)
	_, err = svc.History.Recent(ctx, 10)
	require.NoError(t, err)

	assert.Equal(t, "limit=3", calls.all()[2].query)
	assert.Equal(t, "limit=10", calls.all()[3].query)
}

func TestUserService(t *testing.T) {
	svc, calls := newServices(t, map[string]string{
		"PUT /api/user/register":         `{"errorCode":1000,"uniqueCode":"RC-1"}`,
		"POST /api/user/login":           `{"errorCode":1000,"sessionId":"s-1"}`,
		"POST /api/user/reset-password":  `{"errorCode":1000}`,
		"POST /api/user/change-password": `{"errorCode":4001,"message":"Wrong password"}`,
		"POST /api/user/change-username": `{"errorCode":1000}`,
		"GET /api/user/me":               `{"id":"u1","email":"a@b.com","username":"alice"}`,
	})
	ctx := context.Background()

	reg, err := svc.User.Register(ctx, CreateUserRequest{Username: "alice", Email: "a@b.com", Password: "secret1", PasswordConfirmation: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "RC-1", reg.UniqueCode)
	assert.Equal(t, 1000, reg.Code())

	login, err := svc.User.Login(ctx, LoginRequest{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "s-1", login.SessionID)

	reset, err := svc.User.ResetPassword(ctx, UpdatePasswordRequest{Token: "RC-1", NewPassword: "n", ConfirmPassword: "n"})
	require.NoError(t, err)
	assert.True(t, reset.HasCode())

	cp, err := svc.User.ChangePassword(ctx, ChangePasswordRequest{Email: "a@b.com"})
	require.NoError(t, err, "a non-success code on 200 is a value, not an error")
	assert.Equal(t, "Wrong password", cp.Message)

	_, err = svc.User.ChangeUsername(ctx, ChangeUsernameRequest{Email: "a@b.com", NewUsername: "al"})
	require.NoError(t, err)

	me, err := svc.User.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", me.Username)

	assert.JSONEq(t, `{"username":"alice","email":"a@b.com","password":"secret1","passwordConfirmation":"secret1"}`, calls.all()[0].body)
	assert.JSONEq(t, `{"email":"a@b.com","oldPassword":"","newPassword":"","confirmPassword":""}`, calls.all()[3].body)
}

func TestServices_PropagateAPIError(t *testing.T) {
	svc, _ := newServices(t, nil)

	_, err := svc.Product.Get(context.Background(), "missing")
	apiErr, ok := client.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, 404, apiErr.ErrorCode)
	assert.Equal(t, "no route", apiErr.Message)
}
