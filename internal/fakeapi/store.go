package fakeapi

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/itsneelabh/cartshare/api"
)

// Backend error codes. Session codes match what the client treats as a
// forced logout.
const (
	CodeSuccess         = 1000
	CodeEmailTaken      = 2001
	CodeUsernameTaken   = 2002
	CodeInvalidRequest  = 2003
	CodeInvalidToken    = 3001
	CodeBadCredentials  = 4001
	CodeWrongPassword   = 4002
	CodeAlreadyLoggedIn = 5002
	CodeSessionInvalid  = 5003
	CodeSessionExpired  = 5004
	CodeNotFound        = 6004
	CodeNotMember       = 6003
	CodeNothingToBuy    = 6005
)

const currency = "EUR"

// Fault is a failed backend call.
type Fault struct {
	Status  int
	Code    int
	Message string
}

func (f *Fault) Error() string {
	return f.Message
}

func fault(status, code int, message string) *Fault {
	return &Fault{Status: status, Code: code, Message: message}
}

type account struct {
	id           int64
	email        string
	username     string
	location     string
	passwordHash []byte
	recoveryCode string
}

type sessionEntry struct {
	userID  int64
	expires time.Time
}

type offer struct {
	product api.Product
	groupID int64
}

type line struct {
	id        int64
	productID int64
	quantity  int
	purchased bool
	addedBy   string
	addedAt   time.Time
}

type basket struct {
	id        int64
	name      string
	ownerID   int64
	shareCode string
	shared    bool
	members   []int64
	lines     []*line
	createdAt time.Time
}

// Store holds the in-memory backend state.
type Store struct {
	mu sync.RWMutex

	passwordCost int
	sessionTTL   time.Duration
	now          func() time.Time

	nextID   int64
	accounts map[int64]*account
	sessions map[string]*sessionEntry
	groups   []api.ProductGroup
	offers   map[int64]*offer
	baskets  map[int64]*basket
	selected map[int64]int64
	orders   []api.History
}

// NewStore creates an empty store.
func NewStore(passwordCost int, sessionTTL time.Duration, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		passwordCost: passwordCost,
		sessionTTL:   sessionTTL,
		now:          now,
		nextID:       100,
		accounts:     make(map[int64]*account),
		sessions:     make(map[string]*sessionEntry),
		offers:       make(map[int64]*offer),
		baskets:      make(map[int64]*basket),
		selected:     make(map[int64]int64),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// Seed loads a fixed catalog: five product groups, each offered by three stores.
func (s *Store) Seed() {
	s.mu.Lock()
	defer s.mu.Unlock()

	catalog := []struct {
		name     string
		category string
		prices   [3]string
	}{
		{"Whole Milk 1L", "dairy", [3]string{"1.89", "1.69", "1.99"}},
		{"Rye Bread", "bakery", [3]string{"2.40", "2.55", "2.10"}},
		{"Free Range Eggs 10", "dairy", [3]string{"3.99", "3.49", "3.79"}},
		{"Ground Coffee 250g", "coffee", [3]string{"4.50", "4.95", "4.20"}},
		{"Apples 1kg", "fresh-produce", [3]string{"2.20", "1.95", "2.35"}},
	}
	stores := [3]string{"Lidl", "Kaufland", "Billa"}

	for gi, item := range catalog {
		groupID := int64(gi + 1)
		s.groups = append(s.groups, api.ProductGroup{
			ID:            api.ID(formatID(groupID)),
			CanonicalName: item.name,
			Category:      item.category,
		})
		for si, store := range stores {
			productID := groupID*10 + int64(si)
			s.offers[productID] = &offer{
				groupID: groupID,
				product: api.Product{
					ProductID: api.ID(formatID(productID)),
					PriceID:   api.ID(formatID(productID + 1000)),
					Name:      item.name,
					StoreName: store,
					Price:     decimal.RequireFromString(item.prices[si]),
					Currency:  currency,
				},
			}
		}
	}
}

// ==================== Accounts ====================

// Register creates an account and returns its recovery code.
func (s *Store) Register(req api.CreateUserRequest) (string, *Fault) {
	if req.Email == "" || req.Username == "" || req.Password == "" {
		return "", fault(400, CodeInvalidRequest, "Email, username and password are required")
	}
	if req.Password != req.PasswordConfirmation {
		return "", fault(400, CodeInvalidRequest, "Passwords do not match")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.passwordCost)
	if err != nil {
		return "", fault(500, 500, "Could not store password")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if strings.EqualFold(a.email, req.Email) {
			return "", fault(400, CodeEmailTaken, "Email is already registered")
		}
		if strings.EqualFold(a.username, req.Username) {
			return "", fault(400, CodeUsernameTaken, "Username is already taken")
		}
	}
	a := &account{
		id:           s.id(),
		email:        req.Email,
		username:     req.Username,
		location:     req.Location,
		passwordHash: hash,
		recoveryCode: uuid.NewString(),
	}
	s.accounts[a.id] = a
	return a.recoveryCode, nil
}

// Login opens a session. A user with a live session gets it back with
// CodeAlreadyLoggedIn.
func (s *Store) Login(email, password string) (string, int, *Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.accountByEmailLocked(email)
	if a == nil || bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)) != nil {
		return "", 0, fault(400, CodeBadCredentials, "Wrong email or password")
	}

	now := s.now()
	for id, sess := range s.sessions {
		if sess.userID == a.id && now.Before(sess.expires) {
			sess.expires = now.Add(s.sessionTTL)
			return id, CodeAlreadyLoggedIn, nil
		}
	}
	id := uuid.NewString()
	s.sessions[id] = &sessionEntry{userID: a.id, expires: now.Add(s.sessionTTL)}
	return id, CodeSuccess, nil
}

// Authenticate resolves a session id to its user.
func (s *Store) Authenticate(sessionID string) (api.UserResponse, *Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return api.UserResponse{}, fault(401, CodeSessionInvalid, "Session invalid")
	}
	if !s.now().Before(sess.expires) {
		delete(s.sessions, sessionID)
		return api.UserResponse{}, fault(401, CodeSessionExpired, "Session expired")
	}
	a := s.accounts[sess.userID]
	return userResponse(a), nil
}

// ExpireSessions ends every open session.
func (s *Store) ExpireSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	past := s.now().Add(-time.Second)
	for _, sess := range s.sessions {
		sess.expires = past
	}
}

// ResetPassword sets a new password using the recovery code. The code is
// rotated afterwards.
func (s *Store) ResetPassword(req api.UpdatePasswordRequest) *Fault {
	if req.NewPassword == "" || req.NewPassword != req.ConfirmPassword {
		return fault(400, CodeInvalidRequest, "Passwords do not match")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.passwordCost)
	if err != nil {
		return fault(500, 500, "Could not store password")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if req.Token != "" && a.recoveryCode == req.Token {
			a.passwordHash = hash
			a.recoveryCode = uuid.NewString()
			return nil
		}
	}
	return fault(400, CodeInvalidToken, "Recovery code is not valid")
}

// ChangePassword replaces the password of email's account.
func (s *Store) ChangePassword(req api.ChangePasswordRequest) *Fault {
	if req.NewPassword == "" || req.NewPassword != req.ConfirmPassword {
		return fault(400, CodeInvalidRequest, "Passwords do not match")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.passwordCost)
	if err != nil {
		return fault(500, 500, "Could not store password")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.accountByEmailLocked(req.Email)
	if a == nil || bcrypt.CompareHashAndPassword(a.passwordHash, []byte(req.OldPassword)) != nil {
		return fault(400, CodeWrongPassword, "Current password is wrong")
	}
	a.passwordHash = hash
	return nil
}

// ChangeUsername renames email's account.
func (s *Store) ChangeUsername(req api.ChangeUsernameRequest) *Fault {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.accountByEmailLocked(req.Email)
	if a == nil || bcrypt.CompareHashAndPassword(a.passwordHash, []byte(req.CurrentPassword)) != nil {
		return fault(400, CodeWrongPassword, "Current password is wrong")
	}
	for _, other := range s.accounts {
		if other.id != a.id && strings.EqualFold(other.username, req.NewUsername) {
			return fault(400, CodeUsernameTaken, "Username is already taken")
		}
	}
	a.username = req.NewUsername
	return nil
}

func (s *Store) accountByEmailLocked(email string) *account {
	for _, a := range s.accounts {
		if strings.EqualFold(a.email, email) {
			return a
		}
	}
	return nil
}

func userResponse(a *account) api.UserResponse {
	return api.UserResponse{ID: api.ID(formatID(a.id)), Email: a.email, Username: a.username}
}

// ==================== Baskets ====================

// CreateBasket makes a basket owned by user.
func (s *Store) CreateBasket(user api.UserResponse, name string) (*api.ShoppingBasket, *Fault) {
	if strings.TrimSpace(name) == "" {
		return nil, fault(400, CodeInvalidRequest, "Basket name is required")
	}
	uid := parseID(user.ID)

	s.mu.Lock()
	defer s.mu.Unlock()
	b := &basket{
		id:        s.id(),
		name:      name,
		ownerID:   uid,
		shareCode: strings.ToUpper(uuid.NewString()[:8]),
		members:   []int64{uid},
		createdAt: s.now(),
	}
	s.baskets[b.id] = b
	return s.enrichLocked(b), nil
}

// AddItems adds quantities to cartID, merging lines of the same product.
func (s *Store) AddItems(user api.UserResponse, cartID string, items []api.AddItemRequest) (*api.ShoppingBasket, *Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, f := s.memberBasketLocked(user, parseID(api.ID(cartID)))
	if f != nil {
		return nil, f
	}
	for _, it := range items {
		pid := parseID(it.ProductID)
		if _, ok := s.offers[pid]; !ok {
			return nil, fault(404, CodeNotFound, "Product not found")
		}
		if it.Quantity <= 0 {
			return nil, fault(400, CodeInvalidRequest, "Quantity must be positive")
		}
	}
	for _, it := range items {
		pid := parseID(it.ProductID)
		if l := b.line(pid); l != nil {
			l.quantity += it.Quantity
			continue
		}
		b.lines = append(b.lines, &line{
			id:        s.id(),
			productID: pid,
			quantity:  it.Quantity,
			addedBy:   user.Username,
			addedAt:   s.now(),
		})
	}
	return s.enrichLocked(b), nil
}

// Current lists the raw lines of the user's selected basket.
func (s *Store) Current(user api.UserResponse) []api.CurrentBasketItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []api.CurrentBasketItem{}
	b := s.baskets[s.selected[parseID(user.ID)]]
	if b == nil {
		return out
	}
	for _, l := range b.lines {
		o := s.offers[l.productID]
		out = append(out, api.CurrentBasketItem{
			ID:        api.ID(formatID(l.id)),
			BasketID:  api.ID(formatID(b.id)),
			ProductID: api.ID(formatID(l.productID)),
			Quantity:  l.quantity,
			AddedBy:   l.addedBy,
			AddedAt:   l.addedAt.UTC().Format(time.RFC3339),
			RawName:   o.product.Name,
			Price:     o.product.Price,
			StoreName: o.product.StoreName,
		})
	}
	return out
}

// UserCarts lists the baskets user belongs to, oldest first.
func (s *Store) UserCarts(user api.UserResponse) []api.BasketSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uid := parseID(user.ID)
	out := []api.BasketSummary{}
	for _, b := range s.baskets {
		if !b.hasMember(uid) {
			continue
		}
		out = append(out, api.BasketSummary{
			ID:        api.ID(formatID(b.id)),
			UserID:    user.ID,
			Name:      b.name,
			IsShared:  b.shared,
			OwnerID:   api.ID(formatID(b.ownerID)),
			ShareCode: b.shareCode,
			Members:   s.memberNamesLocked(b),
			CreatedAt: b.createdAt.UTC().Format(time.RFC3339),
		})
	}
	sort.Slice(out, func(i, j int) bool { return parseID(out[i].ID) < parseID(out[j].ID) })
	return out
}

// Select makes basketID the user's current basket.
func (s *Store) Select(user api.UserResponse, basketID string) (*api.BasketSelection, *Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, f := s.memberBasketLocked(user, parseID(api.ID(basketID)))
	if f != nil {
		return nil, f
	}
	s.selected[parseID(user.ID)] = b.id

	history := []api.History{}
	for _, h := range s.orders {
		if parseID(h.BasketID) == b.id {
			history = append(history, h)
		}
	}
	return &api.BasketSelection{
		Message:       "Basket selected",
		CurrentBasket: s.enrichLocked(b),
		History:       history,
	}, nil
}

// UpdateQuantity sets the quantity of a product in the current basket.
func (s *Store) UpdateQuantity(user api.UserResponse, productID string, quantity int) (*api.ShoppingBasket, *Fault) {
	if quantity <= 0 {
		return nil, fault(400, CodeInvalidRequest, "Quantity must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b, l, f := s.currentLineLocked(user, productID)
	if f != nil {
		return nil, f
	}
	l.quantity = quantity
	return s.enrichLocked(b), nil
}

// RemoveItem drops a product from the current basket.
func (s *Store) RemoveItem(user api.UserResponse, productID string) (*api.ShoppingBasket, *Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, l, f := s.currentLineLocked(user, productID)
	if f != nil {
		return nil, f
	}
	for i, cand := range b.lines {
		if cand == l {
			b.lines = append(b.lines[:i], b.lines[i+1:]...)
			break
		}
	}
	return s.enrichLocked(b), nil
}

// TogglePurchased sets the purchased flag of a product in cartID.
func (s *Store) TogglePurchased(user api.UserResponse, cartID, productID string, purchased bool) (*api.ShoppingBasket, *Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, f := s.memberBasketLocked(user, parseID(api.ID(cartID)))
	if f != nil {
		return nil, f
	}
	l := b.line(parseID(api.ID(productID)))
	if l == nil {
		return nil, fault(404, CodeNotFound, "Item not found in basket")
	}
	l.purchased = purchased
	return s.enrichLocked(b), nil
}

// Join adds user to the basket with the share code.
func (s *Store) Join(user api.UserResponse, code string) (string, *Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()

	uid := parseID(user.ID)
	for _, b := range s.baskets {
		if code == "" || !strings.EqualFold(b.shareCode, code) {
			continue
		}
		if b.hasMember(uid) {
			return "You are already a member of " + b.name, nil
		}
		b.members = append(b.members, uid)
		b.shared = true
		return "Joined basket " + b.name, nil
	}
	return "", fault(404, CodeNotFound, "No basket uses this share code")
}

// Checkout closes the current basket into an order and empties it.
func (s *Store) Checkout(user api.UserResponse) (string, *Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()

	uid := parseID(user.ID)
	b := s.baskets[s.selected[uid]]
	if b == nil || len(b.lines) == 0 {
		return "", fault(400, CodeNothingToBuy, "The current basket is empty")
	}

	h := api.History{
		ID:         api.ID(formatID(s.id())),
		UserID:     user.ID,
		BasketID:   api.ID(formatID(b.id)),
		BasketName: b.name,
		Currency:   currency,
		ClosedAt:   s.now().UTC().Format(time.RFC3339),
	}
	total := decimal.Zero
	for _, l := range b.lines {
		o := s.offers[l.productID]
		total = total.Add(o.product.Price.Mul(decimal.NewFromInt(int64(l.quantity))))
		h.Items = append(h.Items, api.HistoryItem{
			ID:              api.ID(formatID(s.id())),
			HistoryID:       h.ID,
			ProductName:     o.product.Name,
			Quantity:        l.quantity,
			PriceAtPurchase: o.product.Price,
		})
	}
	h.TotalSpent = total
	s.orders = append(s.orders, h)
	b.lines = nil
	delete(s.selected, uid)
	return "Checkout completed", nil
}

// History lists user's orders, newest first. limit <= 0 means all.
func (s *Store) History(user api.UserResponse, limit int) []api.History {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []api.History{}
	for i := len(s.orders) - 1; i >= 0; i-- {
		if s.orders[i].UserID != user.ID {
			continue
		}
		out = append(out, s.orders[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// ==================== Products ====================

func (s *Store) Categories() []api.ProductGroup {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]api.ProductGroup{}, s.groups...)
}

// Compare lists every store's offer for a product group, cheapest first.
func (s *Store) Compare(groupID string) ([]api.Product, *Fault) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	gid := parseID(api.ID(groupID))
	out := []api.Product{}
	for _, o := range s.offers {
		if o.groupID == gid {
			out = append(out, o.product)
		}
	}
	if len(out) == 0 {
		return nil, fault(404, CodeNotFound, "Product group not found")
	}
	sortProducts(out)
	return out, nil
}

// Search matches product or store names. An empty query returns everything.
func (s *Store) Search(query string) []api.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(query))
	out := []api.Product{}
	for _, o := range s.offers {
		if q == "" ||
			strings.Contains(strings.ToLower(o.product.Name), q) ||
			strings.Contains(strings.ToLower(o.product.StoreName), q) {
			out = append(out, o.product)
		}
	}
	sort.Slice(out, func(i, j int) bool { return parseID(out[i].ProductID) < parseID(out[j].ProductID) })
	return out
}

func (s *Store) Product(productID string) (api.Product, *Fault) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.offers[parseID(api.ID(productID))]
	if !ok {
		return api.Product{}, fault(404, CodeNotFound, "Product not found")
	}
	return o.product, nil
}

// ==================== helpers ====================

func (s *Store) memberBasketLocked(user api.UserResponse, basketID int64) (*basket, *Fault) {
	b, ok := s.baskets[basketID]
	if !ok {
		return nil, fault(404, CodeNotFound, "Basket not found")
	}
	if !b.hasMember(parseID(user.ID)) {
		return nil, fault(403, CodeNotMember, "You are not a member of this basket")
	}
	return b, nil
}

func (s *Store) currentLineLocked(user api.UserResponse, productID string) (*basket, *line, *Fault) {
	b := s.baskets[s.selected[parseID(user.ID)]]
	if b == nil {
		return nil, nil, fault(400, CodeInvalidRequest, "No basket selected")
	}
	l := b.line(parseID(api.ID(productID)))
	if l == nil {
		return nil, nil, fault(404, CodeNotFound, "Item not found in basket")
	}
	return b, l, nil
}

func (s *Store) memberNamesLocked(b *basket) []string {
	names := make([]string, 0, len(b.members))
	for _, id := range b.members {
		if a, ok := s.accounts[id]; ok {
			names = append(names, a.username)
		}
	}
	return names
}

// enrichLocked builds the wire view of b with a cheaper offer per line where
// another store sells the same product group for less.
func (s *Store) enrichLocked(b *basket) *api.ShoppingBasket {
	out := &api.ShoppingBasket{
		ID:        api.ID(formatID(b.id)),
		Name:      b.name,
		OwnerID:   api.ID(formatID(b.ownerID)),
		Shared:    b.shared,
		ShareCode: b.shareCode,
		Items:     []api.BasketItem{},
		Members:   s.memberNamesLocked(b),
	}
	total, best := decimal.Zero, decimal.Zero
	for _, l := range b.lines {
		o := s.offers[l.productID]
		qty := decimal.NewFromInt(int64(l.quantity))
		item := api.BasketItem{
			ProductID:   o.product.ProductID,
			ProductName: o.product.Name,
			Quantity:    l.quantity,
			StoreName:   o.product.StoreName,
			Price:       o.product.Price,
			Purchased:   l.purchased,
		}
		price := o.product.Price
		if cheaper := s.cheapestLocked(o); cheaper != nil {
			item.LowerPriceItem = &api.PriceComparison{
				ProductID: cheaper.product.ProductID,
				Price:     cheaper.product.Price,
				StoreName: cheaper.product.StoreName,
			}
			price = cheaper.product.Price
		}
		total = total.Add(o.product.Price.Mul(qty))
		best = best.Add(price.Mul(qty))
		out.Items = append(out.Items, item)
	}
	out.Total = total
	if len(b.lines) > 0 {
		out.TotalFromSuggestions = &best
	}
	return out
}

func (s *Store) cheapestLocked(o *offer) *offer {
	var best *offer
	for _, cand := range s.offers {
		if cand.groupID != o.groupID || !cand.product.Price.LessThan(o.product.Price) {
			continue
		}
		if best == nil || cand.product.Price.LessThan(best.product.Price) {
			best = cand
		}
	}
	return best
}

func (b *basket) line(productID int64) *line {
	for _, l := range b.lines {
		if l.productID == productID {
			return l
		}
	}
	return nil
}

func (b *basket) hasMember(userID int64) bool {
	for _, id := range b.members {
		if id == userID {
			return true
		}
	}
	return false
}

func sortProducts(products []api.Product) {
	sort.SliceStable(products, func(i, j int) bool {
		return products[i].Price.LessThan(products[j].Price)
	})
}
