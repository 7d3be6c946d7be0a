package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("issuer-secret"))
	require.NoError(t, err)
	return token
}

func TestParseClaims(t *testing.T) {
	now := time.Now()

	t.Run("Numeric user_id", func(t *testing.T) {
		tok := signToken(t, jwt.MapClaims{"user_id": float64(42), "exp": now.Add(time.Hour).Unix()})

		c, err := ParseClaims(tok, now)
		require.NoError(t, err)
		assert.Equal(t, "42", c.UserID)
		assert.False(t, c.ExpiresAt.IsZero())
	})

	t.Run("Subject fallback without expiry", func(t *testing.T) {
		tok := signToken(t, jwt.MapClaims{"sub": "user-abc"})

		c, err := ParseClaims(tok, now)
		require.NoError(t, err)
		assert.Equal(t, "user-abc", c.UserID)
		assert.True(t, c.ExpiresAt.IsZero())
	})

	t.Run("Expired", func(t *testing.T) {
		tok := signToken(t, jwt.MapClaims{"user_id": "u-1", "exp": now.Add(-time.Hour).Unix()})

		_, err := ParseClaims(tok, now)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("Missing user", func(t *testing.T) {
		tok := signToken(t, jwt.MapClaims{"role": "user"})

		_, err := ParseClaims(tok, now)
		assert.ErrorIs(t, err, ErrMissingUserID)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := ParseClaims("invalid-token", now)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestSession(t *testing.T) {
	ctx := context.Background()

	t.Run("Login and logout notify listeners", func(t *testing.T) {
		s := NewSession()
		var seen []string
		s.OnChange(func(ctx context.Context) {
			id, _ := s.CurrentUser()
			seen = append(seen, id)
		})

		tok := signToken(t, jwt.MapClaims{"user_id": "u-1", "exp": time.Now().Add(time.Hour).Unix()})
		require.NoError(t, s.Login(ctx, tok))

		id, ok := s.CurrentUser()
		assert.True(t, ok)
		assert.Equal(t, "u-1", id)
		assert.Equal(t, tok, s.Token())

		s.Logout(ctx)
		_, ok = s.CurrentUser()
		assert.False(t, ok)
		assert.Empty(t, s.Token())

		// a second logout is not a change
		s.Logout(ctx)
		assert.Equal(t, []string{"u-1", ""}, seen)
	})

	t.Run("Rejected login keeps previous state", func(t *testing.T) {
		s := NewSession()
		calls := 0
		s.OnChange(func(context.Context) { calls++ })

		err := s.Login(ctx, "bad")
		assert.ErrorIs(t, err, ErrInvalidToken)
		assert.Equal(t, 0, calls)
		_, ok := s.CurrentUser()
		assert.False(t, ok)
	})

	t.Run("Expired session is unauthenticated", func(t *testing.T) {
		s := NewSession()
		now := time.Now()
		s.now = func() time.Time { return now }

		tok := signToken(t, jwt.MapClaims{"user_id": "u-1", "exp": now.Add(time.Minute).Unix()})
		require.NoError(t, s.Login(ctx, tok))

		s.now = func() time.Time { return now.Add(2 * time.Minute) }
		_, ok := s.CurrentUser()
		assert.False(t, ok)
	})

	t.Run("Expiry notifies listeners", func(t *testing.T) {
		s := NewSession()
		exp := time.Now().Add(time.Hour).Truncate(time.Second)
		// the clock sits just before exp so the expiry timer fires right away
		s.now = func() time.Time { return exp.Add(-20 * time.Millisecond) }

		changed := make(chan bool, 2)
		s.OnChange(func(context.Context) {
			_, ok := s.CurrentUser()
			changed <- ok
		})

		tok := signToken(t, jwt.MapClaims{"user_id": "u-1", "exp": exp.Unix()})
		require.NoError(t, s.Login(ctx, tok))
		assert.True(t, <-changed)

		select {
		case ok := <-changed:
			assert.False(t, ok)
		case <-time.After(2 * time.Second):
			t.Fatal("expiry did not notify listeners")
		}
		assert.Empty(t, s.Token())
	})

	t.Run("Logout cancels expiry", func(t *testing.T) {
		s := NewSession()
		exp := time.Now().Add(time.Hour).Truncate(time.Second)
		s.now = func() time.Time { return exp.Add(-20 * time.Millisecond) }

		calls := make(chan struct{}, 4)
		s.OnChange(func(context.Context) { calls <- struct{}{} })

		tok := signToken(t, jwt.MapClaims{"user_id": "u-1", "exp": exp.Unix()})
		require.NoError(t, s.Login(ctx, tok))
		s.Logout(ctx)

		time.Sleep(100 * time.Millisecond)
		assert.Len(t, calls, 2)
	})

	t.Run("Redirect intent is consumed once", func(t *testing.T) {
		s := NewSession()
		s.SetRedirectAfterLogin("/products/p-1")

		assert.Equal(t, "/products/p-1", s.TakeRedirectAfterLogin())
		assert.Empty(t, s.TakeRedirectAfterLogin())
	})
}
