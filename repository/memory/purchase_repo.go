package memory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fastygo/storefront/domain"
	"github.com/fastygo/storefront/repository"
)

var _ repository.PurchaseRepository = (*PurchaseRepository)(nil)

type purchaseRecord struct {
	purchase domain.Purchase
}

// PurchaseRepository is an in-memory purchase persistence adapter.
type PurchaseRepository struct {
	store *Store
}

func clonePurchase(p domain.Purchase) domain.Purchase {
	clone := p
	clone.Lines = append([]domain.PurchaseLine(nil), p.Lines...)
	if p.Approver != nil {
		approver := *p.Approver
		clone.Approver = &approver
	}
	if p.DecidedAt != nil {
		decidedAt := *p.DecidedAt
		clone.DecidedAt = &decidedAt
	}
	if p.DecisionReason != nil {
		reason := *p.DecisionReason
		clone.DecisionReason = &reason
	}
	clone.Refresh()
	return clone
}

func (r *PurchaseRepository) Create(_ context.Context, purchase *domain.Purchase) error {
	if purchase == nil {
		return domain.ErrInvalidPayload
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.users[purchase.Requester.ID]; !ok {
		return domain.ErrUserNotFound
	}
	for _, line := range purchase.Lines {
		if _, ok := r.store.products[line.ProductID]; !ok {
			return domain.ErrProductNotFound
		}
	}
	r.store.nextPurchaseID++
	purchase.ID = r.store.nextPurchaseID
	for i := range purchase.Lines {
		r.store.nextLineID++
		purchase.Lines[i].ID = r.store.nextLineID
	}
	purchase.Refresh()
	r.store.purchases[purchase.ID] = &purchaseRecord{purchase: clonePurchase(*purchase)}
	return nil
}

func (r *PurchaseRepository) GetByID(_ context.Context, id int64) (*domain.Purchase, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	rec, ok := r.store.purchases[id]
	if !ok {
		return nil, domain.ErrPurchaseNotFound
	}
	clone := clonePurchase(rec.purchase)
	return &clone, nil
}

func matches(p domain.Purchase, filter repository.PurchaseFilter) bool {
	if filter.RequesterID != 0 && p.Requester.ID != filter.RequesterID {
		return false
	}
	if filter.ApproverID != 0 && !p.AssignedTo(filter.ApproverID) {
		return false
	}
	if filter.Status != "" && p.Status != filter.Status {
		return false
	}
	return true
}

func (r *PurchaseRepository) filtered(filter repository.PurchaseFilter) []domain.Purchase {
	var list []domain.Purchase
	for _, rec := range r.store.purchases {
		if matches(rec.purchase, filter) {
			list = append(list, clonePurchase(rec.purchase))
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID > list[j].ID
	})
	return list
}

func (r *PurchaseRepository) Find(_ context.Context, filter repository.PurchaseFilter) ([]domain.Purchase, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	list := r.filtered(filter)
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(list) {
		return []domain.Purchase{}, nil
	}
	list = list[offset:]
	if filter.Limit > 0 && filter.Limit < len(list) {
		list = list[:filter.Limit]
	}
	return list, nil
}

func (r *PurchaseRepository) Count(_ context.Context, filter repository.PurchaseFilter) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	count := 0
	for _, rec := range r.store.purchases {
		if matches(rec.purchase, filter) {
			count++
		}
	}
	return count, nil
}

func (r *PurchaseRepository) FindDecidedSince(_ context.Context, requesterID int64, since time.Time) ([]domain.Purchase, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var list []domain.Purchase
	for _, rec := range r.store.purchases {
		p := rec.purchase
		if p.Requester.ID != requesterID || !p.Status.Terminal() || p.DecidedAt == nil {
			continue
		}
		if p.DecidedAt.Before(since) {
			continue
		}
		list = append(list, clonePurchase(p))
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].DecidedAt.Equal(*list[j].DecidedAt) {
			return list[i].DecidedAt.After(*list[j].DecidedAt)
		}
		return list[i].ID > list[j].ID
	})
	return list, nil
}

func (r *PurchaseRepository) Decide(_ context.Context, id int64, decide repository.DecideFunc) (*domain.Purchase, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	rec, ok := r.store.purchases[id]
	if !ok {
		return nil, domain.ErrPurchaseNotFound
	}
	current := clonePurchase(rec.purchase)
	products := make(map[int64]domain.Product, len(current.Lines))
	for _, line := range current.Lines {
		if p, ok := r.store.products[line.ProductID]; ok {
			products[line.ProductID] = p.product
		}
	}

	decision, err := decide(&current, products)
	if err != nil {
		return nil, err
	}
	for productID := range decision.Stock {
		if _, ok := r.store.products[productID]; !ok {
			return nil, domain.ErrProductNotFound
		}
	}

	for productID, stock := range decision.Stock {
		p := r.store.products[productID]
		p.product.StockCount = stock
		p.product.Version++
		p.product.UpdatedAt = decision.DecidedAt
	}

	decidedAt := decision.DecidedAt
	current.Status = decision.Status
	current.DecidedAt = &decidedAt
	current.DecisionReason = decision.Reason
	if decision.Approver != nil {
		approver := *decision.Approver
		current.Approver = &approver
	}
	rec.purchase = clonePurchase(current)
	return &current, nil
}

func (r *PurchaseRepository) ProductQuantities(_ context.Context, order repository.SortOrder, limit int) ([]domain.ProductPurchaseStat, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	byProduct := map[int64]*domain.ProductPurchaseStat{}
	for _, rec := range r.store.purchases {
		if rec.purchase.Status != domain.PurchaseCompleted {
			continue
		}
		for _, line := range rec.purchase.Lines {
			stat, ok := byProduct[line.ProductID]
			if !ok {
				name := line.ProductName
				if p, ok := r.store.products[line.ProductID]; ok {
					name = p.product.Name
				}
				stat = &domain.ProductPurchaseStat{ProductID: line.ProductID, ProductName: name}
				byProduct[line.ProductID] = stat
			}
			stat.Quantity += int64(line.Quantity)
		}
	}
	stats := make([]domain.ProductPurchaseStat, 0, len(byProduct))
	for _, stat := range byProduct {
		stats = append(stats, *stat)
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Quantity != stats[j].Quantity {
			if order == repository.SortAsc {
				return stats[i].Quantity < stats[j].Quantity
			}
			return stats[i].Quantity > stats[j].Quantity
		}
		return stats[i].ProductID < stats[j].ProductID
	})
	if limit > 0 && limit < len(stats) {
		stats = stats[:limit]
	}
	return stats, nil
}

func (r *PurchaseRepository) CompletedTotalsByMonth(_ context.Context, since time.Time) ([]domain.MonthlyPurchaseStat, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	totals := map[string]decimal.Decimal{}
	for _, rec := range r.store.purchases {
		p := rec.purchase
		if p.Status != domain.PurchaseCompleted || p.DecidedAt == nil || p.DecidedAt.Before(since) {
			continue
		}
		month := p.DecidedAt.UTC().Format("2006-01")
		totals[month] = totals[month].Add(p.TotalAmount())
	}
	stats := make([]domain.MonthlyPurchaseStat, 0, len(totals))
	for month, total := range totals {
		stats = append(stats, domain.MonthlyPurchaseStat{YearMonth: month, TotalAmount: total})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].YearMonth < stats[j].YearMonth })
	return stats, nil
}
