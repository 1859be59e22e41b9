package repository

import (
	"context"
	"time"

	"github.com/fastygo/storefront/domain"
)

// PurchaseFilter narrows purchase listings. Zero values match everything.
type PurchaseFilter struct {
	RequesterID int64
	ApproverID  int64
	Status      domain.PurchaseStatus
	Offset      int
	Limit       int
}

// Decision is the outcome computed for a pending purchase while it is locked.
type Decision struct {
	Status    domain.PurchaseStatus
	Reason    *string
	DecidedAt time.Time
	Approver  *domain.UserRef
	// Stock holds the new stock count for every product whose stock changes.
	Stock map[int64]int
}

// DecideFunc computes a decision from the locked purchase and the current
// state of its products. Returning an error aborts without changes.
type DecideFunc func(purchase *domain.Purchase, products map[int64]domain.Product) (Decision, error)

// SortOrder selects ascending or descending statistics.
type SortOrder string

const (
	SortDesc SortOrder = "desc"
	SortAsc  SortOrder = "asc"
)

type PurchaseRepository interface {
	// Create stores the purchase with its lines in one transaction and assigns ids.
	Create(ctx context.Context, purchase *domain.Purchase) error
	GetByID(ctx context.Context, id int64) (*domain.Purchase, error)
	// Find lists purchases newest first, ties broken by descending id.
	Find(ctx context.Context, filter PurchaseFilter) ([]domain.Purchase, error)
	Count(ctx context.Context, filter PurchaseFilter) (int, error)
	// FindDecidedSince lists terminal purchases of requesterID decided at or
	// after since, most recent decision first.
	FindDecidedSince(ctx context.Context, requesterID int64, since time.Time) ([]domain.Purchase, error)
	// Decide applies the decision returned by decide atomically, together
	// with the stock changes it carries.
	Decide(ctx context.Context, id int64, decide DecideFunc) (*domain.Purchase, error)
	// ProductQuantities sums completed line quantities per product.
	ProductQuantities(ctx context.Context, order SortOrder, limit int) ([]domain.ProductPurchaseStat, error)
	// CompletedTotalsByMonth sums completed purchase totals per decision month
	// (YYYY-MM, UTC) for decisions at or after since. Empty months are omitted.
	CompletedTotalsByMonth(ctx context.Context, since time.Time) ([]domain.MonthlyPurchaseStat, error)
}
