// Package catalog manages the products the purchase workflow reads.
package catalog

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/fastygo/storefront/domain"
	"github.com/fastygo/storefront/repository"
)

type UseCase struct {
	products repository.ProductRepository
	events   domain.EventPoster
	logger   *zap.Logger
}

func New(products repository.ProductRepository, events domain.EventPoster, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{products: products, events: events, logger: logger}
}

func (uc *UseCase) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return uc.products.List(ctx)
}

func (uc *UseCase) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return uc.products.GetByID(ctx, id)
}

// SaveProduct creates or updates p and announces the change.
func (uc *UseCase) SaveProduct(ctx context.Context, p *domain.Product) (*domain.Product, error) {
	if p == nil {
		return nil, domain.ErrInvalidPayload
	}
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return nil, domain.Invalidf("product name is required")
	}
	if p.Price.IsNegative() {
		return nil, domain.Invalidf("price must not be negative")
	}
	if p.StockCount < 0 {
		return nil, domain.Invalidf("stock count must not be negative")
	}
	p.Price = p.Price.Round(2)

	if err := uc.products.Save(ctx, p); err != nil {
		return nil, err
	}
	uc.logger.Info("product saved", zap.Int64("product_id", p.ID), zap.Int("version", p.Version))
	uc.post(ctx, domain.BooksChangedEvent{ProductID: p.ID, Change: domain.ChangeSave})
	return p, nil
}

func (uc *UseCase) DeleteProduct(ctx context.Context, id int64) error {
	if err := uc.products.Delete(ctx, id); err != nil {
		return err
	}
	uc.logger.Info("product deleted", zap.Int64("product_id", id))
	uc.post(ctx, domain.BooksChangedEvent{ProductID: id, Change: domain.ChangeDelete})
	return nil
}

func (uc *UseCase) post(ctx context.Context, event domain.Event) {
	if uc.events != nil {
		uc.events.Post(ctx, event)
	}
}
