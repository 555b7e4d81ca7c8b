package fakeapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/itsneelabh/cartshare/api"
	"github.com/itsneelabh/cartshare/client"
)

const userKey = "user"

// Handler serves the REST surface over a Store.
type Handler struct {
	store *Store
}

func NewHandler(s *Store) *Handler {
	return &Handler{store: s}
}

// errorBody is the backend's error shape.
type errorBody struct {
	ErrorCode int    `json:"errorCode"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Path      string `json:"path"`
}

func abortWith(c *gin.Context, f *Fault) {
	c.AbortWithStatusJSON(f.Status, errorBody{
		ErrorCode: f.Code,
		Message:   f.Message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Path:      c.Request.URL.Path,
	})
}

func success(c *gin.Context, body gin.H) {
	body["errorCode"] = CodeSuccess
	c.JSON(http.StatusOK, body)
}

// RequireSession resolves the Session-Id header and stores the user on the
// context.
func (h *Handler) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.GetHeader(client.HeaderSessionID)
		if sessionID == "" {
			abortWith(c, fault(http.StatusUnauthorized, CodeSessionInvalid, "Session not found"))
			return
		}
		user, f := h.store.Authenticate(sessionID)
		if f != nil {
			abortWith(c, f)
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

func currentUser(c *gin.Context) api.UserResponse {
	u, _ := c.Get(userKey)
	user, _ := u.(api.UserResponse)
	return user
}

func bind(c *gin.Context, out interface{}) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		abortWith(c, fault(http.StatusBadRequest, CodeInvalidRequest, "Invalid request body"))
		return false
	}
	return true
}

// ==================== User ====================

func (h *Handler) Register(c *gin.Context) {
	var req api.CreateUserRequest
	if !bind(c, &req) {
		return
	}
	code, f := h.store.Register(req)
	if f != nil {
		abortWith(c, f)
		return
	}
	success(c, gin.H{"message": "Account created", "uniqueCode": code})
}

func (h *Handler) Login(c *gin.Context) {
	var req api.LoginRequest
	if !bind(c, &req) {
		return
	}
	sessionID, code, f := h.store.Login(req.Email, req.Password)
	if f != nil {
		abortWith(c, f)
		return
	}
	c.JSON(http.StatusOK, gin.H{"errorCode": code, "message": "Logged in", "sessionId": sessionID})
}

func (h *Handler) ResetPassword(c *gin.Context) {
	var req api.UpdatePasswordRequest
	if !bind(c, &req) {
		return
	}
	if f := h.store.ResetPassword(req); f != nil {
		abortWith(c, f)
		return
	}
	success(c, gin.H{"message": "Password updated"})
}

func (h *Handler) ChangePassword(c *gin.Context) {
	var req api.ChangePasswordRequest
	if !bind(c, &req) {
		return
	}
	if req.Email != currentUser(c).Email {
		abortWith(c, fault(http.StatusForbidden, CodeWrongPassword, "You can only change your own password"))
		return
	}
	if f := h.store.ChangePassword(req); f != nil {
		abortWith(c, f)
		return
	}
	success(c, gin.H{"message": "Password changed"})
}

func (h *Handler) ChangeUsername(c *gin.Context) {
	var req api.ChangeUsernameRequest
	if !bind(c, &req) {
		return
	}
	if req.Email != currentUser(c).Email {
		abortWith(c, fault(http.StatusForbidden, CodeWrongPassword, "You can only rename your own account"))
		return
	}
	if f := h.store.ChangeUsername(req); f != nil {
		abortWith(c, f)
		return
	}
	success(c, gin.H{"message": "Username changed"})
}

func (h *Handler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c))
}

// ==================== Baskets ====================

func (h *Handler) CreateBasket(c *gin.Context) {
	b, f := h.store.CreateBasket(currentUser(c), c.Query("name"))
	if f != nil {
		abortWith(c, f)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (h *Handler) AddItems(c *gin.Context) {
	var items []api.AddItemRequest
	if !bind(c, &items) {
		return
	}
	b, f := h.store.AddItems(currentUser(c), c.Query("cartId"), items)
	if f != nil {
		abortWith(c, f)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *Handler) Current(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Current(currentUser(c)))
}

func (h *Handler) UserCarts(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.UserCarts(currentUser(c)))
}

func (h *Handler) Select(c *gin.Context) {
	sel, f := h.store.Select(currentUser(c), c.Query("basketId"))
	if f != nil {
		abortWith(c, f)
		return
	}
	c.JSON(http.StatusOK, sel)
}

func (h *Handler) UpdateQuantity(c *gin.Context) {
	qty, err := strconv.Atoi(c.Query("quantity"))
	if err != nil {
		abortWith(c, fault(http.StatusBadRequest, CodeInvalidRequest, "Quantity must be a number"))
		return
	}
	b, f := h.store.UpdateQuantity(currentUser(c), c.Query("basketItemId"), qty)
	if f != nil {
		abortWith(c, f)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *Handler) RemoveItem(c *gin.Context) {
	b, f := h.store.RemoveItem(currentUser(c), c.Param("productId"))
	if f != nil {
		abortWith(c, f)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *Handler) TogglePurchased(c *gin.Context) {
	purchased, err := strconv.ParseBool(c.Query("purchased"))
	if err != nil {
		abortWith(c, fault(http.StatusBadRequest, CodeInvalidRequest, "purchased must be true or false"))
		return
	}
	b, f := h.store.TogglePurchased(currentUser(c), c.Query("cartId"), c.Query("productId"), purchased)
	if f != nil {
		abortWith(c, f)
		return
	}
	c.JSON(http.StatusOK, b)
}

// Join answers with plain text, as the real backend does.
func (h *Handler) Join(c *gin.Context) {
	msg, f := h.store.Join(currentUser(c), c.Query("code"))
	if f != nil {
		abortWith(c, f)
		return
	}
	c.String(http.StatusOK, msg)
}

// ==================== Products ====================

func (h *Handler) Categories(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Categories())
}

func (h *Handler) Compare(c *gin.Context) {
	offers, f := h.store.Compare(c.Param("id"))
	if f != nil {
		abortWith(c, f)
		return
	}
	c.JSON(http.StatusOK, offers)
}

func (h *Handler) Search(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Search(c.Query("query")))
}

func (h *Handler) Product(c *gin.Context) {
	p, f := h.store.Product(c.Param("id"))
	if f != nil {
		abortWith(c, f)
		return
	}
	c.JSON(http.StatusOK, p)
}

// ==================== History ====================

// Checkout answers with a JSON string.
func (h *Handler) Checkout(c *gin.Context) {
	msg, f := h.store.Checkout(currentUser(c))
	if f != nil {
		abortWith(c, f)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *Handler) AllHistory(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.History(currentUser(c), 0))
}

func (h *Handler) RecentHistory(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(api.DefaultRecentLimit)))
	if err != nil || limit <= 0 {
		limit = api.DefaultRecentLimit
	}
	c.JSON(http.StatusOK, h.store.History(currentUser(c), limit))
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func parseID(id api.ID) int64 {
	n, err := strconv.ParseInt(id.String(), 10, 64)
	if err != nil {
		return -1
	}
	return n
}
