package purchase

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fastygo/storefront/domain"
	"github.com/fastygo/storefront/repository"
)

func (uc *UseCase) FindMyPurchases(ctx context.Context, requester *domain.User, offset, limit int) ([]domain.Purchase, error) {
	if requester == nil {
		return nil, domain.Invalidf("requester must not be nil")
	}
	if err := validatePage(offset, limit); err != nil {
		return nil, err
	}
	return uc.purchases.Find(ctx, repository.PurchaseFilter{RequesterID: requester.ID, Offset: offset, Limit: limit})
}

func (uc *UseCase) CountMyPurchases(ctx context.Context, requester *domain.User) (int, error) {
	if requester == nil {
		return 0, domain.Invalidf("requester must not be nil")
	}
	return uc.purchases.Count(ctx, repository.PurchaseFilter{RequesterID: requester.ID})
}

func (uc *UseCase) FindAll(ctx context.Context, offset, limit int) ([]domain.Purchase, error) {
	if err := validatePage(offset, limit); err != nil {
		return nil, err
	}
	return uc.purchases.Find(ctx, repository.PurchaseFilter{Offset: offset, Limit: limit})
}

func (uc *UseCase) CountAll(ctx context.Context) (int, error) {
	return uc.purchases.Count(ctx, repository.PurchaseFilter{})
}

func (uc *UseCase) FindPendingForApprover(ctx context.Context, approver *domain.User, offset, limit int) ([]domain.Purchase, error) {
	if approver == nil {
		return nil, domain.Invalidf("approver must not be nil")
	}
	if err := validatePage(offset, limit); err != nil {
		return nil, err
	}
	return uc.purchases.Find(ctx, pendingFor(approver, offset, limit))
}

func (uc *UseCase) CountPendingForApprover(ctx context.Context, approver *domain.User) (int, error) {
	if approver == nil {
		return 0, domain.Invalidf("approver must not be nil")
	}
	return uc.purchases.Count(ctx, pendingFor(approver, 0, 0))
}

// validatePage rejects negative paging arguments. A limit of zero returns
// every remaining row.
func validatePage(offset, limit int) error {
	if offset < 0 || limit < 0 {
		return domain.Invalidf("offset and limit must not be negative, got offset %d limit %d", offset, limit)
	}
	return nil
}

func pendingFor(approver *domain.User, offset, limit int) repository.PurchaseFilter {
	return repository.PurchaseFilter{
		ApproverID: approver.ID,
		Status:     domain.PurchasePending,
		Offset:     offset,
		Limit:      limit,
	}
}

// FetchPurchases pages through the history view selected by mode.
func (uc *UseCase) FetchPurchases(ctx context.Context, mode domain.PurchaseHistoryMode, offset, limit int, user *domain.User) ([]domain.Purchase, error) {
	if user == nil {
		return nil, domain.Invalidf("current user must not be nil")
	}
	switch mode {
	case domain.HistoryMyPurchases:
		return uc.FindMyPurchases(ctx, user, offset, limit)
	case domain.HistoryAll:
		return uc.FindAll(ctx, offset, limit)
	case domain.HistoryPendingApprovals:
		return uc.FindPendingForApprover(ctx, user, offset, limit)
	default:
		return nil, domain.Invalidf("unknown history mode %q", mode)
	}
}

// CountPurchases counts the rows FetchPurchases pages through.
func (uc *UseCase) CountPurchases(ctx context.Context, mode domain.PurchaseHistoryMode, user *domain.User) (int, error) {
	if user == nil {
		return 0, domain.Invalidf("current user must not be nil")
	}
	switch mode {
	case domain.HistoryMyPurchases:
		return uc.CountMyPurchases(ctx, user)
	case domain.HistoryAll:
		return uc.CountAll(ctx)
	case domain.HistoryPendingApprovals:
		return uc.CountPendingForApprover(ctx, user)
	default:
		return 0, domain.Invalidf("unknown history mode %q", mode)
	}
}

// FindRecentlyDecidedPurchases lists the requester's purchases decided at or
// after since, most recent first.
func (uc *UseCase) FindRecentlyDecidedPurchases(ctx context.Context, requester *domain.User, since time.Time) ([]domain.Purchase, error) {
	if requester == nil {
		return nil, domain.Invalidf("requester must not be nil")
	}
	return uc.purchases.FindDecidedSince(ctx, requester.ID, since)
}

func (uc *UseCase) TopProductsByQuantity(ctx context.Context, limit int) ([]domain.ProductPurchaseStat, error) {
	return uc.purchases.ProductQuantities(ctx, repository.SortDesc, limit)
}

func (uc *UseCase) LeastProductsByQuantity(ctx context.Context, limit int) ([]domain.ProductPurchaseStat, error) {
	return uc.purchases.ProductQuantities(ctx, repository.SortAsc, limit)
}

// MonthlyTotals returns completed purchase totals for the last months calendar
// months including the current one, oldest first. Months without purchases
// are reported as zero.
func (uc *UseCase) MonthlyTotals(ctx context.Context, months int) ([]domain.MonthlyPurchaseStat, error) {
	if months <= 0 {
		return nil, domain.Invalidf("months must be positive")
	}
	now := uc.clock.Now().UTC()
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	since := current.AddDate(0, -(months - 1), 0)

	rows, err := uc.purchases.CompletedTotalsByMonth(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("load monthly totals: %w", err)
	}
	byMonth := make(map[string]decimal.Decimal, len(rows))
	for _, row := range rows {
		byMonth[row.YearMonth] = row.TotalAmount
	}

	stats := make([]domain.MonthlyPurchaseStat, 0, months)
	for i := 0; i < months; i++ {
		month := since.AddDate(0, i, 0).Format("2006-01")
		total, ok := byMonth[month]
		if !ok {
			total = decimal.Zero
		}
		stats = append(stats, domain.MonthlyPurchaseStat{YearMonth: month, TotalAmount: total})
	}
	uc.logger.Debug("loaded monthly purchase stats", zap.Int("rows", len(rows)), zap.Int("months", months))
	return stats, nil
}
