package auth

import (
	"context"
	"sync"
	"time"

	"storefront-cart/internal/logger"

	"go.uber.org/zap"
)

// Session holds the authenticated user of this storefront client.
type Session struct {
	mu        sync.RWMutex
	userID    string
	token     string
	expiresAt time.Time
	redirect  string
	listeners []func(ctx context.Context)
	now       func() time.Time
	expiry    *time.Timer
}

func NewSession() *Session {
	return &Session{now: time.Now}
}

// OnChange registers fn to run after every login, user switch or logout.
func (s *Session) OnChange(fn func(ctx context.Context)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *Session) Login(ctx context.Context, token string) error {
	claims, err := ParseClaims(token, s.now())
	if err != nil {
		logger.FromCtx(ctx).Warn("login rejected", zap.Error(err))
		return err
	}

	s.mu.Lock()
	s.userID = claims.UserID
	s.token = token
	s.expiresAt = claims.ExpiresAt
	s.stopExpiryLocked()
	if !claims.ExpiresAt.IsZero() {
		s.expiry = time.AfterFunc(claims.ExpiresAt.Sub(s.now()), func() { s.expire(token) })
	}
	listeners := append([]func(context.Context){}, s.listeners...)
	s.mu.Unlock()

	logger.FromCtx(ctx).Info("session started", zap.String("user_id", claims.UserID))

	for _, fn := range listeners {
		fn(ctx)
	}
	return nil
}

func (s *Session) Logout(ctx context.Context) {
	s.mu.Lock()
	wasActive := s.userID != ""
	s.userID, s.token, s.expiresAt = "", "", time.Time{}
	s.stopExpiryLocked()
	listeners := append([]func(context.Context){}, s.listeners...)
	s.mu.Unlock()

	if !wasActive {
		return
	}
	logger.FromCtx(ctx).Info("session ended")
	for _, fn := range listeners {
		fn(ctx)
	}
}

// expire ends the session of token once it ran out, unless another login replaced it.
func (s *Session) expire(token string) {
	s.mu.Lock()
	if s.token != token || s.userID == "" {
		s.mu.Unlock()
		return
	}
	userID := s.userID
	s.userID, s.token, s.expiresAt = "", "", time.Time{}
	s.expiry = nil
	listeners := append([]func(context.Context){}, s.listeners...)
	s.mu.Unlock()

	ctx := context.Background()
	logger.FromCtx(ctx).Info("session expired", zap.String("user_id", userID))
	for _, fn := range listeners {
		fn(ctx)
	}
}

func (s *Session) stopExpiryLocked() {
	if s.expiry != nil {
		s.expiry.Stop()
		s.expiry = nil
	}
}

// CurrentUser returns the logged-in user id. An expired token counts as logged out.
func (s *Session) CurrentUser() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.userID == "" {
		return "", false
	}
	if !s.expiresAt.IsZero() && !s.now().Before(s.expiresAt) {
		return "", false
	}
	return s.userID, true
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) SetRedirectAfterLogin(path string) {
	s.mu.Lock()
	s.redirect = path
	s.mu.Unlock()
}

// TakeRedirectAfterLogin returns the pending redirect and clears it.
func (s *Session) TakeRedirectAfterLogin() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.redirect
	s.redirect = ""
	return r
}
