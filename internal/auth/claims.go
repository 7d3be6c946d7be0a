package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken  = errors.New("invalid access token")
	ErrTokenExpired  = errors.New("access token expired")
	ErrMissingUserID = errors.New("access token has no user id")
)

// Claims is the subset of the access token the storefront relies on.
type Claims struct {
	UserID    string
	ExpiresAt time.Time
}

// ParseClaims reads the access token payload without verifying the
// signature; the API re-validates the token on every call.
func ParseClaims(token string, now time.Time) (Claims, error) {
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var c Claims
	switch v := mc["user_id"].(type) {
	case string:
		c.UserID = v
	case float64:
		c.UserID = strconv.FormatInt(int64(v), 10)
	}
	if c.UserID == "" {
		sub, _ := mc.GetSubject()
		c.UserID = sub
	}
	if c.UserID == "" {
		return Claims{}, ErrMissingUserID
	}

	exp, err := mc.GetExpirationTime()
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if exp != nil {
		c.ExpiresAt = exp.Time
		if !now.Before(c.ExpiresAt) {
			return Claims{}, ErrTokenExpired
		}
	}

	return c, nil
}
