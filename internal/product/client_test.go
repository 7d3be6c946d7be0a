package product

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"storefront-cart/internal/transport"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_GetByID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/products/p-1":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id": "p-1", "name": "Mug", "price": 10, "stock": 4,
			})
		case "/products/broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(transport.NewClient(srv.URL))

	t.Run("Success", func(t *testing.T) {
		p, err := c.GetByID(context.Background(), "p-1")
		require.NoError(t, err)
		assert.Equal(t, "Mug", p.Name)
		assert.True(t, decimal.NewFromInt(10).Equal(p.Price))
		assert.Equal(t, 4, *p.Stock)
	})

	t.Run("Error - not found", func(t *testing.T) {
		_, err := c.GetByID(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrProductNotFound)
	})

	t.Run("Error - server failure", func(t *testing.T) {
		_, err := c.GetByID(context.Background(), "broken")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrProductNotFound)
	})

	t.Run("Error - empty id", func(t *testing.T) {
		_, err := c.GetByID(context.Background(), "")
		assert.ErrorIs(t, err, ErrEmptyProductID)
	})
}
