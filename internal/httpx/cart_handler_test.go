package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"storefront-cart/internal/auth"
	"storefront-cart/internal/cart"
	"storefront-cart/internal/middleware"
	"storefront-cart/internal/notify"
	"storefront-cart/internal/product"
	"storefront-cart/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// upstream fakes the cart and catalog services behind one server.
type upstream struct {
	mu       sync.Mutex
	carts    map[string][]cart.Item
	products map[string]product.Product
	failAdd  bool
}

func newUpstream(t *testing.T) (*upstream, *httptest.Server) {
	t.Helper()
	u := &upstream{carts: map[string][]cart.Item{}, products: map[string]product.Product{}}

	r := chi.NewRouter()
	r.Get("/products/{id}", func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		p, ok := u.products[chi.URLParam(r, "id")]
		u.mu.Unlock()
		if !ok {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(p)
	})
	r.Get("/carts/{user}", func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		defer u.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"items": u.carts[chi.URLParam(r, "user")]})
	})
	r.Post("/carts/{user}/items", func(w http.ResponseWriter, r *http.Request) {
		var it cart.Item
		_ = json.NewDecoder(r.Body).Decode(&it)
		u.mu.Lock()
		defer u.mu.Unlock()
		if u.failAdd {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		user := chi.URLParam(r, "user")
		u.carts[user] = append(u.carts[user], it)
		w.WriteHeader(http.StatusCreated)
	})
	r.Put("/carts/{user}/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Delete("/carts/{user}/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Delete("/carts/{user}", func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		delete(u.carts, chi.URLParam(r, "user"))
		u.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return u, srv
}

type app struct {
	up      *upstream
	router  http.Handler
	session *auth.Session
	manager *cart.Manager
}

func newApp(t *testing.T) *app {
	t.Helper()
	up, srv := newUpstream(t)

	session := auth.NewSession()
	api := transport.NewClient(srv.URL, transport.WithTokenSource(session.Token))
	notices := notify.NewBuffer(20)
	catalog := product.NewClient(api)
	manager := cart.NewManager(cart.NewRemoteRepository(api), catalog, session, notices)
	t.Cleanup(func() { _ = manager.Close() })

	session.OnChange(func(ctx context.Context) { _ = manager.SyncAuth(ctx) })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := &CartHandler{Cart: manager, Catalog: catalog, Session: session, Notices: notices, Stats: manager.Stats()}
	return &app{
		up:      up,
		router:  NewRouter(h, middleware.NewRateLimiter(ctx, 100, 100), session.CurrentUser),
		session: session,
		manager: manager,
	}
}

func (a *app) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *app) login(t *testing.T, user string) {
	t.Helper()
	a.loginUntil(t, user, time.Now().Add(time.Hour))
}

func (a *app) loginUntil(t *testing.T, user string, exp time.Time) {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user,
		"exp":     exp.Unix(),
	}).SignedString([]byte("issuer-secret"))
	require.NoError(t, err)

	w := a.do(t, http.MethodPost, "/session", fmt.Sprintf(`{"token":%q}`, tok))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func decodeCart(t *testing.T, w *httptest.ResponseRecorder) CartView {
	t.Helper()
	var v CartView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func (u *upstream) addProduct(id, name string, price int64, stock int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.products[id] = product.Product{ID: id, Name: name, Price: decimal.NewFromInt(price)}.WithStock(stock)
}

func TestHealthz(t *testing.T) {
	a := newApp(t)
	w := a.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestCartFlow(t *testing.T) {
	a := newApp(t)
	a.up.addProduct("P1", "Teapot", 10, 5)
	a.up.addProduct("P2", "Kettle", 25, 3)
	a.up.carts["u1"] = []cart.Item{{ProductID: "P1", Quantity: 2}}

	a.login(t, "u1")

	w := a.do(t, http.MethodGet, "/cart", "")
	require.Equal(t, http.StatusOK, w.Code)
	v := decodeCart(t, w)
	assert.Equal(t, cart.StateLoaded, v.State)
	require.Len(t, v.Items, 1)
	assert.True(t, v.Items[0].Selected)

	w = a.do(t, http.MethodPost, "/cart/items", `{"productId":"P2"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	v = decodeCart(t, w)
	require.Len(t, v.Items, 2)
	assert.True(t, v.Total.Equal(decimal.NewFromInt(45)))

	w = a.do(t, http.MethodPut, "/cart/selection/P1", `{"selected":false}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeCart(t, w).SelectedTotal.Equal(decimal.NewFromInt(25)))

	w = a.do(t, http.MethodPut, "/cart/items/P2", `{"quantity":4}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = a.do(t, http.MethodPut, "/cart/items/P2", `{"quantity":0}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeCart(t, w).Items, 1)

	w = a.do(t, http.MethodDelete, "/cart", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, cart.StateEmpty, decodeCart(t, w).State)

	w = a.do(t, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats map[string]uint64
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, uint64(1), stats["fetches"])
	assert.Equal(t, uint64(1), stats["rejected"])

	w = a.do(t, http.MethodGet, "/notices", "")
	var notices []notify.Notice
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &notices))
	assert.NotEmpty(t, notices)
}

func TestAddItem_Errors(t *testing.T) {
	t.Run("anonymous", func(t *testing.T) {
		a := newApp(t)
		w := a.do(t, http.MethodPost, "/cart/items", `{"productId":"P1","quantity":1}`)
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		// login hands back the page the shopper came from
		a.up.addProduct("P1", "Teapot", 10, 5)
		tok, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u9"}).SignedString([]byte("k"))
		w = a.do(t, http.MethodPost, "/session", fmt.Sprintf(`{"token":%q}`, tok))
		require.Equal(t, http.StatusOK, w.Code)
		var resp LoginResp
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "u9", resp.UserID)
		assert.Equal(t, "/products/P1", resp.Redirect)
	})

	t.Run("unknown product", func(t *testing.T) {
		a := newApp(t)
		a.login(t, "u1")
		w := a.do(t, http.MethodPost, "/cart/items", `{"productId":"nope"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("bad input", func(t *testing.T) {
		a := newApp(t)
		a.login(t, "u1")
		a.up.addProduct("P1", "Teapot", 10, 5)
		assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPost, "/cart/items", `{`).Code)
		assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPost, "/cart/items", `{"quantity":1}`).Code)
		assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPost, "/cart/items", `{"productId":"P1","quantity":0}`).Code)
	})

	t.Run("upstream failure", func(t *testing.T) {
		a := newApp(t)
		a.login(t, "u1")
		a.up.addProduct("P1", "Teapot", 10, 5)
		a.up.failAdd = true
		assert.Equal(t, http.StatusBadGateway, a.do(t, http.MethodPost, "/cart/items", `{"productId":"P1"}`).Code)
		assert.Empty(t, a.manager.Lines())
	})
}

func TestLogoutEmptiesCart(t *testing.T) {
	a := newApp(t)
	a.up.addProduct("P1", "Teapot", 10, 5)
	a.up.carts["u1"] = []cart.Item{{ProductID: "P1", Quantity: 1}}
	a.login(t, "u1")
	require.Len(t, a.manager.Lines(), 1)

	assert.Equal(t, http.StatusNoContent, a.do(t, http.MethodDelete, "/session", "").Code)
	assert.Empty(t, a.manager.Lines())
	assert.Equal(t, cart.StateEmpty, a.manager.State())
}

func TestExpiredTokenEmptiesCart(t *testing.T) {
	a := newApp(t)
	a.up.addProduct("P1", "Teapot", 10, 5)
	a.up.carts["u1"] = []cart.Item{{ProductID: "P1", Quantity: 1}}

	a.loginUntil(t, "u1", time.Now().Add(2*time.Second))

	w := a.do(t, http.MethodGet, "/cart", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decodeCart(t, w).Items, 1)

	require.Eventually(t, func() bool {
		v := decodeCart(t, a.do(t, http.MethodGet, "/cart", ""))
		return v.State == cart.StateEmpty && len(v.Items) == 0
	}, 4*time.Second, 50*time.Millisecond)

	_, ok := a.session.CurrentUser()
	assert.False(t, ok)
	w = a.do(t, http.MethodPost, "/cart/items", `{"productId":"P1"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogin_Rejected(t *testing.T) {
	a := newApp(t)
	assert.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodPost, "/session", `{"token":"garbage"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodPost, "/session", "").Code)
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		cart.ErrUnauthenticated:                            http.StatusUnauthorized,
		auth.ErrTokenExpired:                               http.StatusUnauthorized,
		fmt.Errorf("%w: only 1", cart.ErrInsufficientStock): http.StatusConflict,
		cart.ErrSessionChanged:                             http.StatusConflict,
		cart.ErrCartItemNotFound:                           http.StatusNotFound,
		product.ErrProductNotFound:                         http.StatusNotFound,
		cart.ErrInvalidQuantity:                            http.StatusBadRequest,
		fmt.Errorf("%w: eof", cart.ErrTransport):            http.StatusBadGateway,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusFor(err), err.Error())
	}
}
