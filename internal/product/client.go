package product

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"storefront-cart/internal/logger"
	"storefront-cart/internal/transport"

	"go.uber.org/zap"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrEmptyProductID  = errors.New("product ID is required")
)

// Client reads product records from the catalog API.
type Client interface {
	GetByID(ctx context.Context, id string) (*Product, error)
}

type client struct {
	api *transport.Client
}

func NewClient(api *transport.Client) Client {
	return &client{api: api}
}

func (c *client) GetByID(ctx context.Context, id string) (*Product, error) {
	if id == "" {
		return nil, ErrEmptyProductID
	}

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "product_client"),
		zap.String("method", "GetByID"),
		zap.String("product_id", id),
	)

	var p Product
	if err := c.api.Do(ctx, http.MethodGet, "/products/"+url.PathEscape(id), nil, &p); err != nil {
		if transport.IsNotFound(err) {
			log.Warn("product not found")
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, id)
		}
		log.Error("failed to get product", zap.Error(err))
		return nil, err
	}

	return &p, nil
}
