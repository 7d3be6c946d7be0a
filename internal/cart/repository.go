package cart

import (
	"context"
	"net/http"
	"net/url"

	"storefront-cart/internal/logger"
	"storefront-cart/internal/transport"

	"go.uber.org/zap"
)

// Repository is the remote cart service. It is the source of truth for cart contents.
type Repository interface {
	Get(ctx context.Context, userID string) ([]Item, error)
	AddItem(ctx context.Context, userID, productID string, quantity int) error
	UpdateItem(ctx context.Context, userID, productID string, quantity int) error
	RemoveItem(ctx context.Context, userID, productID string) error
	Clear(ctx context.Context, userID string) error
}

type remoteRepository struct {
	api *transport.Client
}

func NewRemoteRepository(api *transport.Client) Repository {
	return &remoteRepository{api: api}
}

type cartResponse struct {
	Items []Item `json:"items"`
}

type quantityRequest struct {
	ProductID string `json:"productId,omitempty"`
	Quantity  int    `json:"quantity"`
}

func cartPath(userID string) string {
	return "/carts/" + url.PathEscape(userID)
}

func itemPath(userID, productID string) string {
	return cartPath(userID) + "/items/" + url.PathEscape(productID)
}

func (r *remoteRepository) Get(ctx context.Context, userID string) ([]Item, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "Get"),
	)

	var resp cartResponse
	if err := r.api.Do(ctx, http.MethodGet, cartPath(userID), nil, &resp); err != nil {
		log.Error("failed to get cart", zap.Error(err))
		return nil, err
	}

	log.Debug("cart fetched", zap.Int("items", len(resp.Items)))
	return resp.Items, nil
}

func (r *remoteRepository) AddItem(ctx context.Context, userID, productID string, quantity int) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "AddItem"),
		zap.String("product_id", productID),
		zap.Int("quantity", quantity),
	)

	body := quantityRequest{ProductID: productID, Quantity: quantity}
	if err := r.api.Do(ctx, http.MethodPost, cartPath(userID)+"/items", body, nil); err != nil {
		log.Error("failed to add cart item", zap.Error(err))
		return err
	}

	log.Info("success add cart item")
	return nil
}

func (r *remoteRepository) UpdateItem(ctx context.Context, userID, productID string, quantity int) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "UpdateItem"),
		zap.String("product_id", productID),
		zap.Int("quantity", quantity),
	)

	body := quantityRequest{Quantity: quantity}
	if err := r.api.Do(ctx, http.MethodPut, itemPath(userID, productID), body, nil); err != nil {
		log.Error("failed to update cart item", zap.Error(err))
		return err
	}

	log.Info("success update cart item")
	return nil
}

func (r *remoteRepository) RemoveItem(ctx context.Context, userID, productID string) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "RemoveItem"),
		zap.String("product_id", productID),
	)

	if err := r.api.Do(ctx, http.MethodDelete, itemPath(userID, productID), nil, nil); err != nil {
		log.Error("failed to remove cart item", zap.Error(err))
		return err
	}

	log.Info("success remove cart item")
	return nil
}

func (r *remoteRepository) Clear(ctx context.Context, userID string) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "Clear"),
	)

	if err := r.api.Do(ctx, http.MethodDelete, cartPath(userID), nil, nil); err != nil {
		log.Error("failed to clear cart", zap.Error(err))
		return err
	}

	log.Info("success clear cart")
	return nil
}
