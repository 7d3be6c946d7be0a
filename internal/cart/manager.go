package cart

import (
	"context"
	"fmt"
	"sync"

	"storefront-cart/internal/logger"
	"storefront-cart/internal/metrics"
	"storefront-cart/internal/notify"
	"storefront-cart/internal/product"
	"storefront-cart/internal/stockfeed"
	"storefront-cart/internal/utils"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Authenticator is the ambient login state the manager reads on every operation.
type Authenticator interface {
	CurrentUser() (userID string, ok bool)
	SetRedirectAfterLogin(path string)
}

type Option func(*Manager)

// WithStats records reconciliation counters into stats.
func WithStats(stats *metrics.Cart) Option {
	return func(m *Manager) {
		if stats != nil {
			m.stats = stats
		}
	}
}

// WithStockFeed enables live stock updates for loaded carts.
func WithStockFeed(src stockfeed.Source) Option {
	return func(m *Manager) { m.feed = src }
}

// WithResolveConcurrency bounds parallel product lookups during FetchCart.
func WithResolveConcurrency(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.resolveConcurrency = n
		}
	}
}

// WithLoginReturnPath sets where an anonymous shopper is sent back to after login.
func WithLoginReturnPath(path string) Option {
	return func(m *Manager) { m.loginReturnPath = path }
}

// Manager owns the in-memory cart of the current session and keeps it consistent with
// the cart service. Mutations are server-first: local state changes only after the
// service acknowledged the request, and only if the session did not change meanwhile.
type Manager struct {
	repo     Repository
	products product.Client
	auth     Authenticator
	notifier notify.Notifier
	feed     stockfeed.Source
	stats    *metrics.Cart

	resolveConcurrency int
	loginReturnPath    string

	seq *sequencer

	baseCtx context.Context
	cancel  context.CancelFunc

	mu       sync.RWMutex
	gen      uint64
	userID   string
	state    State
	lines    []Line
	selected map[string]bool
	sub      stockfeed.Subscription

	// serialises subscribe attempts; never held together with a network call under mu
	subMu sync.Mutex
}

func NewManager(
	repo Repository,
	products product.Client,
	auth Authenticator,
	notifier notify.Notifier,
	opts ...Option,
) *Manager {
	if notifier == nil {
		notifier = notify.NewLogger(logger.L())
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		repo:               repo,
		products:           products,
		auth:               auth,
		notifier:           notifier,
		resolveConcurrency: 8,
		loginReturnPath:    "/cart",
		seq:                newSequencer(),
		stats:              &metrics.Cart{},
		baseCtx:            ctx,
		cancel:             cancel,
		state:              StateUnloaded,
		selected:           map[string]bool{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SyncAuth reconciles the cart with the current login state: a new user gets a fresh
// fetch, a logout empties the cart and drops the stock subscription.
func (m *Manager) SyncAuth(ctx context.Context) error {
	userID, ok := m.auth.CurrentUser()

	m.mu.Lock()
	if ok && userID == m.userID && m.state != StateUnloaded {
		m.mu.Unlock()
		return nil
	}
	if !ok {
		var old stockfeed.Subscription
		if m.userID != "" || m.state != StateEmpty {
			old = m.resetLocked("", StateEmpty)
		}
		m.mu.Unlock()
		m.closeSubscription(ctx, old)
		logger.FromCtx(ctx).Debug("cart reset after logout", zap.String("layer", "cart_manager"))
		return nil
	}
	m.mu.Unlock()

	return m.FetchCart(ctx)
}

// FetchCart replaces the local cart with the server's. Lines whose product cannot be
// resolved are dropped; if the cart itself cannot be fetched the cart becomes empty.
func (m *Manager) FetchCart(ctx context.Context) error {
	userID, ok := m.auth.CurrentUser()
	if !ok {
		m.mu.Lock()
		old := m.resetLocked("", StateEmpty)
		m.mu.Unlock()
		m.closeSubscription(ctx, old)
		return nil
	}

	ctx = logger.WithUserID(ctx, userID)
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "cart_manager"),
		zap.String("method", "FetchCart"),
	)

	m.stats.Fetches.Inc()
	gen := m.bind(ctx, userID)
	if !m.transition(gen, StateLoading) {
		return ErrSessionChanged
	}

	items, err := m.repo.Get(ctx, userID)
	if err != nil {
		m.mu.Lock()
		if m.gen != gen {
			m.mu.Unlock()
			m.stats.StaleResponses.Inc()
			log.Debug("discarding stale cart failure", zap.Error(err))
			return ErrSessionChanged
		}
		m.lines = nil
		m.selected = map[string]bool{}
		m.state = StateEmpty
		m.mu.Unlock()

		log.Error("failed to fetch cart", zap.Error(err))
		m.notifier.Error("Failed to load your cart")
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	lines := mapLines(items, m.resolve(ctx, items))

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		m.stats.StaleResponses.Inc()
		log.Debug("discarding stale cart response")
		return ErrSessionChanged
	}
	m.lines = lines
	m.selected = make(map[string]bool, len(lines))
	for _, l := range lines {
		m.selected[l.Product.ID] = true
	}
	m.state = StateLoaded
	m.mu.Unlock()

	log.Info("cart loaded",
		zap.Int("server_items", len(items)),
		zap.Int("lines", len(lines)),
	)

	m.ensureSubscribed(ctx, userID, gen)
	return nil
}

// resolve looks up every item's product. Failed lookups leave a nil slot.
func (m *Manager) resolve(ctx context.Context, items []Item) []*product.Product {
	log := logger.FromCtx(ctx).With(zap.String("layer", "cart_manager"))

	resolved := make([]*product.Product, len(items))
	var g errgroup.Group
	g.SetLimit(m.resolveConcurrency)

	for i, it := range items {
		i, it := i, it
		g.Go(func() error {
			p, err := m.products.GetByID(ctx, it.ProductID)
			if err != nil {
				m.stats.DroppedLines.Inc()
				log.Warn("dropping cart line",
					zap.String("product_id", it.ProductID),
					zap.Error(fmt.Errorf("%w: %w", ErrProductResolution, err)),
				)
				return nil
			}
			resolved[i] = p
			return nil
		})
	}
	_ = g.Wait()

	return resolved
}

// AddToCart adds quantity units of p. Anonymous shoppers are asked to log in first.
func (m *Manager) AddToCart(ctx context.Context, p product.Product, quantity int) error {
	userID, ok := m.auth.CurrentUser()
	if !ok {
		m.stats.Rejected.Inc()
		m.auth.SetRedirectAfterLogin(utils.ReturnPathFrom(ctx, m.loginReturnPath))
		m.notifier.Error("Please log in to add items to your cart")
		return ErrUnauthenticated
	}
	if p.ID == "" {
		return ErrEmptyProductID
	}
	if quantity < 1 {
		return ErrInvalidQuantity
	}

	ctx = logger.WithUserID(ctx, userID)
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "cart_manager"),
		zap.String("method", "AddToCart"),
		zap.String("product_id", p.ID),
		zap.Int("quantity", quantity),
	)

	gen := m.bind(ctx, userID)
	unlock := m.seq.Lock(p.ID)
	defer unlock()

	current, _ := m.line(p.ID)
	if !p.Allows(current.Quantity + quantity) {
		m.stats.Rejected.Inc()
		m.notifier.Error(fmt.Sprintf("Only %d of %s available", utils.PtrInt(p.Stock), p.Name))
		return fmt.Errorf("%w: only %d available", ErrInsufficientStock, utils.PtrInt(p.Stock))
	}

	if err := m.repo.AddItem(ctx, userID, p.ID, quantity); err != nil {
		log.Error("failed to add to cart", zap.Error(err))
		m.notifier.Error("Failed to add item to cart")
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		m.stats.StaleResponses.Inc()
		log.Debug("discarding stale add response")
		return ErrSessionChanged
	}
	if i := m.indexLocked(p.ID); i >= 0 {
		m.lines[i].Quantity += quantity
	} else {
		m.lines = append(m.lines, Line{Product: p, Quantity: quantity})
		m.selected[p.ID] = true
	}
	m.state = StateLoaded
	m.mu.Unlock()

	m.notifier.Success(fmt.Sprintf("%s added to cart", p.Name))
	m.ensureSubscribed(ctx, userID, gen)
	return nil
}

// RemoveFromCart deletes the product's line. It is a no-op for anonymous shoppers.
func (m *Manager) RemoveFromCart(ctx context.Context, productID string) error {
	userID, ok := m.auth.CurrentUser()
	if !ok {
		return nil
	}
	if productID == "" {
		return ErrEmptyProductID
	}

	ctx = logger.WithUserID(ctx, userID)
	gen := m.bind(ctx, userID)
	unlock := m.seq.Lock(productID)
	defer unlock()

	return m.remove(ctx, userID, gen, productID)
}

// remove expects the product's sequencer lock to be held.
func (m *Manager) remove(ctx context.Context, userID string, gen uint64, productID string) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "cart_manager"),
		zap.String("method", "RemoveFromCart"),
		zap.String("product_id", productID),
	)

	if err := m.repo.RemoveItem(ctx, userID, productID); err != nil {
		log.Error("failed to remove from cart", zap.Error(err))
		m.notifier.Error("Failed to remove item from cart")
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		m.stats.StaleResponses.Inc()
		log.Debug("discarding stale remove response")
		return ErrSessionChanged
	}
	if i := m.indexLocked(productID); i >= 0 {
		m.lines = append(m.lines[:i:i], m.lines[i+1:]...)
	}
	delete(m.selected, productID)
	m.mu.Unlock()

	m.notifier.Info("Item removed from cart")
	m.ensureSubscribed(ctx, userID, gen)
	return nil
}

// UpdateQuantity sets the line's quantity. quantity <= 0 removes the line. The stock
// check prefers the matching entry of known over the line's own snapshot.
func (m *Manager) UpdateQuantity(ctx context.Context, productID string, quantity int, known []product.Product) error {
	userID, ok := m.auth.CurrentUser()
	if !ok {
		return nil
	}
	if productID == "" {
		return ErrEmptyProductID
	}

	ctx = logger.WithUserID(ctx, userID)
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "cart_manager"),
		zap.String("method", "UpdateQuantity"),
		zap.String("product_id", productID),
		zap.Int("quantity", quantity),
	)

	gen := m.bind(ctx, userID)
	unlock := m.seq.Lock(productID)
	defer unlock()

	if quantity <= 0 {
		return m.remove(ctx, userID, gen, productID)
	}

	current, ok := m.line(productID)
	if !ok {
		return ErrCartItemNotFound
	}

	p, ok := product.FindByID(known, productID)
	if !ok {
		p = current.Product
	}
	if !p.Allows(quantity) {
		m.stats.Rejected.Inc()
		m.notifier.Error(fmt.Sprintf("Only %d of %s available", utils.PtrInt(p.Stock), p.Name))
		return fmt.Errorf("%w: only %d available", ErrInsufficientStock, utils.PtrInt(p.Stock))
	}

	if err := m.repo.UpdateItem(ctx, userID, productID, quantity); err != nil {
		log.Error("failed to update cart quantity", zap.Error(err))
		m.notifier.Error("Failed to update cart")
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		m.stats.StaleResponses.Inc()
		log.Debug("discarding stale update response")
		return ErrSessionChanged
	}
	if i := m.indexLocked(productID); i >= 0 {
		m.lines[i].Quantity = quantity
	}
	m.mu.Unlock()

	m.ensureSubscribed(ctx, userID, gen)
	return nil
}

// ClearCart empties the cart on the server, then locally. No-op for anonymous shoppers.
func (m *Manager) ClearCart(ctx context.Context) error {
	userID, ok := m.auth.CurrentUser()
	if !ok {
		return nil
	}

	ctx = logger.WithUserID(ctx, userID)
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "cart_manager"),
		zap.String("method", "ClearCart"),
	)

	gen := m.bind(ctx, userID)
	if err := m.repo.Clear(ctx, userID); err != nil {
		log.Error("failed to clear cart", zap.Error(err))
		m.notifier.Error("Failed to clear cart")
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		m.stats.StaleResponses.Inc()
		return ErrSessionChanged
	}
	m.lines = nil
	m.selected = map[string]bool{}
	m.state = StateEmpty
	m.mu.Unlock()

	m.notifier.Info("Cart cleared")
	return nil
}

// ApplyStockUpdate replaces the stock of the product's snapshot, if it is in the cart.
// Quantities are never touched.
func (m *Manager) ApplyStockUpdate(productID string, stock int) {
	m.mu.RLock()
	gen := m.gen
	m.mu.RUnlock()
	m.applyStock(gen, productID, stock)
}

func (m *Manager) applyStock(gen uint64, productID string, stock int) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	i := m.indexLocked(productID)
	if i < 0 {
		m.mu.Unlock()
		return
	}
	m.lines[i].Product = m.lines[i].Product.WithStock(stock)
	name := m.lines[i].Product.Name
	m.mu.Unlock()

	m.stats.StockEvents.Inc()
	if stock <= 0 {
		m.stats.OutOfStock.Inc()
		m.notifier.Warning(fmt.Sprintf("%s is now out of stock", name))
	}
}

// dropExpired empties the cart when the session ended without a logout, e.g. an
// access token that expired while the cart was loaded.
func (m *Manager) dropExpired() {
	if _, ok := m.auth.CurrentUser(); ok {
		return
	}
	m.mu.Lock()
	if m.userID == "" {
		m.mu.Unlock()
		return
	}
	old := m.resetLocked("", StateEmpty)
	m.mu.Unlock()

	log := logger.FromCtx(m.baseCtx)
	log.Info("cart reset after session expiry", zap.String("layer", "cart_manager"))
	m.closeSubscription(m.baseCtx, old)
}

// Lines returns a copy of the cart in insertion order.
func (m *Manager) Lines() []Line {
	m.dropExpired()
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Line, len(m.lines))
	copy(out, m.lines)
	return out
}

// Stats exposes the manager's reconciliation counters.
func (m *Manager) Stats() *metrics.Cart {
	return m.stats
}

func (m *Manager) State() State {
	m.dropExpired()
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Select marks a line for checkout.
func (m *Manager) Select(productID string, selected bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexLocked(productID) < 0 {
		return ErrCartItemNotFound
	}
	m.selected[productID] = selected
	return nil
}

func (m *Manager) Selection() map[string]bool {
	m.dropExpired()
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool, len(m.selected))
	for k, v := range m.selected {
		out[k] = v
	}
	return out
}

// SelectedLines returns the selected lines in cart order.
func (m *Manager) SelectedLines() []Line {
	m.dropExpired()
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Line, 0, len(m.lines))
	for _, l := range m.lines {
		if m.selected[l.Product.ID] {
			out = append(out, l)
		}
	}
	return out
}

// Close drops the stock subscription and invalidates in-flight operations.
func (m *Manager) Close() error {
	m.cancel()
	m.mu.Lock()
	m.gen++
	old := m.sub
	m.sub = nil
	m.mu.Unlock()
	if old != nil {
		return old.Close()
	}
	return nil
}

// bind makes userID the cart owner, resetting the cart if ownership changes.
func (m *Manager) bind(ctx context.Context, userID string) uint64 {
	m.mu.Lock()
	var old stockfeed.Subscription
	if userID != m.userID {
		old = m.resetLocked(userID, StateUnloaded)
	}
	gen := m.gen
	m.mu.Unlock()

	m.closeSubscription(ctx, old)
	return gen
}

// resetLocked starts a new session generation and hands back the subscription to close.
func (m *Manager) resetLocked(userID string, state State) stockfeed.Subscription {
	m.gen++
	m.userID = userID
	m.lines = nil
	m.selected = map[string]bool{}
	m.state = state
	old := m.sub
	m.sub = nil
	return old
}

func (m *Manager) transition(gen uint64, state State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return false
	}
	m.state = state
	return true
}

func (m *Manager) line(productID string) (Line, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i := m.indexLocked(productID); i >= 0 {
		return m.lines[i], true
	}
	return Line{}, false
}

func (m *Manager) indexLocked(productID string) int {
	for i, l := range m.lines {
		if l.Product.ID == productID {
			return i
		}
	}
	return -1
}

func (m *Manager) ensureSubscribed(ctx context.Context, userID string, gen uint64) {
	if m.feed == nil {
		return
	}

	m.subMu.Lock()
	defer m.subMu.Unlock()

	log := logger.FromCtx(ctx).With(zap.String("layer", "cart_manager"))

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	var ended stockfeed.Subscription
	if m.sub != nil {
		select {
		case <-m.sub.Done():
			ended, m.sub = m.sub, nil
		default:
			m.mu.Unlock()
			return
		}
	}
	m.mu.Unlock()

	if ended != nil {
		log.Info("stock feed ended, resubscribing")
		m.closeSubscription(ctx, ended)
	}

	subCtx := logger.WithUserID(m.baseCtx, userID)
	sub, err := m.feed.Subscribe(subCtx, userID, func(u stockfeed.StockUpdate) {
		m.applyStock(gen, u.ProductID, u.Stock)
	})
	if err != nil {
		// the cart stays usable without live stock
		log.Warn("stock feed unavailable", zap.Error(err))
		return
	}

	m.mu.Lock()
	if m.gen == gen && m.sub == nil {
		m.sub = sub
		sub = nil
	}
	m.mu.Unlock()

	if sub != nil {
		_ = sub.Close()
	}
}

func (m *Manager) closeSubscription(ctx context.Context, sub stockfeed.Subscription) {
	if sub == nil {
		return
	}
	if err := sub.Close(); err != nil {
		logger.FromCtx(ctx).Warn("failed to close stock subscription",
			zap.String("layer", "cart_manager"),
			zap.Error(err),
		)
	}
}
