package repository

import (
	"context"

	"github.com/fastygo/storefront/domain"
)

type ProductRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Product, error)
	// GetByIDs returns the products that exist among ids, keyed by id.
	GetByIDs(ctx context.Context, ids []int64) (map[int64]domain.Product, error)
	List(ctx context.Context) ([]domain.Product, error)
	// Save creates the product when ID is 0, otherwise updates it with a
	// version check.
	Save(ctx context.Context, product *domain.Product) error
	Delete(ctx context.Context, id int64) error
}
