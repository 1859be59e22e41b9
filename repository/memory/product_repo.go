package memory

import (
	"context"
	"sort"
	"time"

	"github.com/fastygo/storefront/domain"
	"github.com/fastygo/storefront/repository"
)

var _ repository.ProductRepository = (*ProductRepository)(nil)

type productRecord struct {
	product domain.Product
}

// ProductRepository is an in-memory product persistence adapter.
type ProductRepository struct {
	store *Store
}

func (r *ProductRepository) GetByID(_ context.Context, id int64) (*domain.Product, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	rec, ok := r.store.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	clone := rec.product
	return &clone, nil
}

func (r *ProductRepository) GetByIDs(_ context.Context, ids []int64) (map[int64]domain.Product, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make(map[int64]domain.Product, len(ids))
	for _, id := range ids {
		if rec, ok := r.store.products[id]; ok {
			out[id] = rec.product
		}
	}
	return out, nil
}

func (r *ProductRepository) List(_ context.Context) ([]domain.Product, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	list := make([]domain.Product, 0, len(r.store.products))
	for _, rec := range r.store.products {
		list = append(list, rec.product)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (r *ProductRepository) Save(_ context.Context, product *domain.Product) error {
	if product == nil {
		return domain.ErrInvalidPayload
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	product.UpdatedAt = time.Now().UTC()
	if product.ID == 0 {
		r.store.nextProductID++
		product.ID = r.store.nextProductID
		product.Version = 0
		r.store.products[product.ID] = &productRecord{product: *product}
		return nil
	}
	rec, ok := r.store.products[product.ID]
	if !ok {
		return domain.ErrProductNotFound
	}
	if rec.product.Version != product.Version {
		return domain.ErrVersionConflict
	}
	product.Version++
	rec.product = *product
	return nil
}

func (r *ProductRepository) Delete(_ context.Context, id int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.products[id]; !ok {
		return domain.ErrProductNotFound
	}
	delete(r.store.products, id)
	return nil
}
