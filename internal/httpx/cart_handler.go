package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"storefront-cart/internal/auth"
	"storefront-cart/internal/cart"
	"storefront-cart/internal/logger"
	"storefront-cart/internal/metrics"
	"storefront-cart/internal/notify"
	"storefront-cart/internal/product"
	"storefront-cart/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CartManager is the cart surface the handler drives.
type CartManager interface {
	FetchCart(ctx context.Context) error
	AddToCart(ctx context.Context, p product.Product, quantity int) error
	RemoveFromCart(ctx context.Context, productID string) error
	UpdateQuantity(ctx context.Context, productID string, quantity int, known []product.Product) error
	ClearCart(ctx context.Context) error
	Lines() []cart.Line
	State() cart.State
	Select(productID string, selected bool) error
	Selection() map[string]bool
	SelectedLines() []cart.Line
}

type Session interface {
	Login(ctx context.Context, token string) error
	Logout(ctx context.Context)
	CurrentUser() (string, bool)
	TakeRedirectAfterLogin() string
}

type NoticeSource interface {
	Drain() []notify.Notice
}

type CartHandler struct {
	Cart    CartManager
	Catalog product.Client
	Session Session
	Notices NoticeSource
	Stats   *metrics.Cart
}

type LoginReq struct {
	Token string `json:"token"`
}

type LoginResp struct {
	UserID   string `json:"user_id"`
	Redirect string `json:"redirect,omitempty"`
}

type AddItemReq struct {
	ProductID string `json:"productId"`
	Quantity  *int   `json:"quantity"`
}

type UpdateItemReq struct {
	Quantity int `json:"quantity"`
}

type SelectReq struct {
	Selected bool `json:"selected"`
}

type CartLineView struct {
	Product  product.Product `json:"product"`
	Quantity int             `json:"quantity"`
	Selected bool            `json:"selected"`
}

type CartView struct {
	State         cart.State      `json:"state"`
	Items         []CartLineView  `json:"items"`
	Total         decimal.Decimal `json:"total"`
	SelectedTotal decimal.Decimal `json:"selected_total"`
}

func (h *CartHandler) Register(r chi.Router) {
	r.Post("/session", h.login)
	r.Delete("/session", h.logout)

	r.Get("/cart", h.getCart)
	r.Delete("/cart", h.clearCart)
	r.Post("/cart/items", h.addItem)
	r.Put("/cart/items/{productID}", h.updateItem)
	r.Delete("/cart/items/{productID}", h.removeItem)
	r.Put("/cart/selection/{productID}", h.selectItem)

	r.Get("/notices", h.notices)
	if h.Stats != nil {
		r.Get("/stats", h.stats)
	}
}

func (h *CartHandler) login(w http.ResponseWriter, r *http.Request) {
	var req LoginReq
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.WriteJSONError(w, "invalid json", http.StatusBadRequest)
			return
		}
	}
	if req.Token == "" {
		req.Token = auth.ExtractAccessToken(r)
	}
	if req.Token == "" {
		utils.WriteJSONError(w, "missing access token", http.StatusUnauthorized)
		return
	}

	if err := h.Session.Login(r.Context(), req.Token); err != nil {
		writeError(r.Context(), w, err)
		return
	}

	userID, _ := h.Session.CurrentUser()
	utils.WriteJSON(w, http.StatusOK, LoginResp{
		UserID:   userID,
		Redirect: h.Session.TakeRedirectAfterLogin(),
	})
}

func (h *CartHandler) logout(w http.ResponseWriter, r *http.Request) {
	h.Session.Logout(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) getCart(w http.ResponseWriter, r *http.Request) {
	if h.Cart.State() == cart.StateUnloaded {
		if err := h.Cart.FetchCart(r.Context()); err != nil {
			writeError(r.Context(), w, err)
			return
		}
	}
	h.writeCart(w, http.StatusOK)
}

func (h *CartHandler) addItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSONError(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.ProductID == "" {
		utils.WriteJSONError(w, "missing productId", http.StatusBadRequest)
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}

	ctx := utils.WithReturnPath(r.Context(), "/products/"+req.ProductID)
	if _, ok := h.Session.CurrentUser(); !ok {
		// let the manager record the login intent without a catalog round trip
		writeError(ctx, w, h.Cart.AddToCart(ctx, product.Product{ID: req.ProductID}, qty))
		return
	}

	p, err := h.Catalog.GetByID(ctx, req.ProductID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	if err := h.Cart.AddToCart(ctx, *p, qty); err != nil {
		writeError(ctx, w, err)
		return
	}
	h.writeCart(w, http.StatusCreated)
}

func (h *CartHandler) updateItem(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")

	var req UpdateItemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSONError(w, "invalid json", http.StatusBadRequest)
		return
	}

	// a fresh catalog record gives the stock check current numbers; the line snapshot is the fallback
	var known []product.Product
	if req.Quantity > 0 {
		if p, err := h.Catalog.GetByID(r.Context(), productID); err == nil {
			known = append(known, *p)
		} else {
			logger.FromCtx(r.Context()).Warn("using cached product for stock check",
				zap.String("product_id", productID),
				zap.Error(err),
			)
		}
	}

	if err := h.Cart.UpdateQuantity(r.Context(), productID, req.Quantity, known); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	h.writeCart(w, http.StatusOK)
}

func (h *CartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	if err := h.Cart.RemoveFromCart(r.Context(), chi.URLParam(r, "productID")); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	h.writeCart(w, http.StatusOK)
}

func (h *CartHandler) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.Cart.ClearCart(r.Context()); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	h.writeCart(w, http.StatusOK)
}

func (h *CartHandler) selectItem(w http.ResponseWriter, r *http.Request) {
	var req SelectReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSONError(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := h.Cart.Select(chi.URLParam(r, "productID"), req.Selected); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	h.writeCart(w, http.StatusOK)
}

func (h *CartHandler) notices(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, h.Notices.Drain())
}

func (h *CartHandler) stats(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, h.Stats.Snapshot())
}

func (h *CartHandler) writeCart(w http.ResponseWriter, code int) {
	lines := h.Cart.Lines()
	selection := h.Cart.Selection()

	view := CartView{
		State:         h.Cart.State(),
		Items:         make([]CartLineView, 0, len(lines)),
		Total:         cart.Total(lines),
		SelectedTotal: cart.Total(h.Cart.SelectedLines()),
	}
	for _, l := range lines {
		view.Items = append(view.Items, CartLineView{
			Product:  l.Product,
			Quantity: l.Quantity,
			Selected: selection[l.Product.ID],
		})
	}
	utils.WriteJSON(w, code, view)
}

// writeError maps the cart error taxonomy onto HTTP statuses. A nil err writes 204.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		logger.FromCtx(ctx).Error("request failed", zap.Error(err))
	}
	utils.WriteJSONError(w, err.Error(), code)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, cart.ErrUnauthenticated),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrMissingUserID):
		return http.StatusUnauthorized
	case errors.Is(err, cart.ErrInsufficientStock),
		errors.Is(err, cart.ErrSessionChanged):
		return http.StatusConflict
	case errors.Is(err, cart.ErrCartItemNotFound),
		errors.Is(err, product.ErrProductNotFound):
		return http.StatusNotFound
	case errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrEmptyProductID),
		errors.Is(err, product.ErrEmptyProductID):
		return http.StatusBadRequest
	default:
		// cart.ErrTransport and catalog failures both come from upstream calls
		return http.StatusBadGateway
	}
}
