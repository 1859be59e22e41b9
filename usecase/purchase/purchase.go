// Package purchase implements the purchase request and approval workflow.
package purchase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fastygo/storefront/domain"
	"github.com/fastygo/storefront/internal/metrics"
	"github.com/fastygo/storefront/pkg/clock"
	"github.com/fastygo/storefront/repository"
)

type UseCase struct {
	purchases repository.PurchaseRepository
	products  repository.ProductRepository
	users     repository.UserRepository
	events    domain.EventPoster
	clock     clock.Clock
	logger    *zap.Logger
}

func New(
	purchases repository.PurchaseRepository,
	products repository.ProductRepository,
	users repository.UserRepository,
	events domain.EventPoster,
	clk clock.Clock,
	logger *zap.Logger,
) *UseCase {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		purchases: purchases,
		products:  products,
		users:     users,
		events:    events,
		clock:     clk,
		logger:    logger,
	}
}

// CreatePendingPurchase turns the cart into a PENDING purchase. Prices and
// product names are copied from the catalog at this moment and the address is
// copied by value. When approver is nil the requester's supervisor is used; a
// purchase may end up without an approver.
func (uc *UseCase) CreatePendingPurchase(
	ctx context.Context,
	cart *domain.Cart,
	address domain.Address,
	requester *domain.User,
	approver *domain.User,
) (*domain.Purchase, error) {
	if requester == nil {
		return nil, domain.Invalidf("requester must not be nil")
	}
	if cart.IsEmpty() {
		return nil, domain.ErrEmptyCart
	}

	items := cart.Items()
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, domain.Invalidf("quantity for product %d must be positive", item.Product.ID)
		}
		ids = append(ids, item.Product.ID)
	}
	current, err := uc.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	lines := make([]domain.PurchaseLine, 0, len(items))
	for _, item := range items {
		product, ok := current[item.Product.ID]
		if !ok {
			return nil, domain.WrapError(domain.ErrCodeNotFound,
				fmt.Sprintf("product %d not found", item.Product.ID), domain.ErrProductNotFound)
		}
		lines = append(lines, domain.PurchaseLine{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    item.Quantity,
			UnitPrice:   product.Price,
		})
	}

	if approver == nil {
		approver, err = uc.users.SupervisorOf(ctx, requester.ID)
		if err != nil {
			return nil, err
		}
	}

	purchase := &domain.Purchase{
		Requester:       requester.Ref(),
		Status:          domain.PurchasePending,
		CreatedAt:       uc.clock.Now(),
		DeliveryAddress: address,
		Lines:           lines,
	}
	if approver != nil {
		ref := approver.Ref()
		purchase.Approver = &ref
	}

	uc.logger.Info("creating pending purchase", zap.String("requester", requester.Name))
	if err := uc.purchases.Create(ctx, purchase); err != nil {
		return nil, err
	}
	purchase.Refresh()

	metrics.PurchaseTransitions.WithLabelValues(string(domain.PurchasePending)).Inc()
	uc.logger.Info("created pending purchase",
		zap.Int64("purchase_id", purchase.ID),
		zap.String("requester", requester.Name),
		zap.String("total", domain.FormatAmount(purchase.Total)),
	)
	uc.post(ctx, domain.PurchaseSavedEvent{PurchaseID: purchase.ID})
	return purchase, nil
}

// FetchPurchase returns the purchase with its lines.
func (uc *UseCase) FetchPurchase(ctx context.Context, id int64) (*domain.Purchase, error) {
	return uc.purchases.GetByID(ctx, id)
}

// Approve decides a PENDING purchase on behalf of its assigned approver. When
// any product is short on stock the purchase is CANCELLED instead and stock is
// left untouched.
func (uc *UseCase) Approve(ctx context.Context, id int64, actor *domain.User, comment *string) (*domain.Purchase, error) {
	if actor == nil {
		return nil, domain.Invalidf("current user must not be nil")
	}
	uc.logger.Info("approving purchase", zap.Int64("purchase_id", id), zap.String("user", actor.Name))

	var stockChanged []int64
	decided, err := uc.purchases.Decide(ctx, id, func(p *domain.Purchase, products map[int64]domain.Product) (repository.Decision, error) {
		if p.Status != domain.PurchasePending {
			return repository.Decision{}, domain.ErrNotPending
		}
		if !p.AssignedTo(actor.ID) {
			return repository.Decision{}, domain.ErrNotApprover
		}

		decision := repository.Decision{DecidedAt: uc.clock.Now()}
		var shortages []string
		stock := make(map[int64]int, len(p.Lines))
		for _, line := range p.Lines {
			product, ok := products[line.ProductID]
			if !ok {
				return repository.Decision{}, domain.WrapError(domain.ErrCodeNotFound,
					fmt.Sprintf("product %d not found", line.ProductID), domain.ErrProductNotFound)
			}
			available, seen := stock[line.ProductID]
			if !seen {
				available = product.StockCount
			}
			if available < line.Quantity {
				shortages = append(shortages,
					fmt.Sprintf("%s: needs %d, has %d", product.Name, line.Quantity, available))
				continue
			}
			stock[line.ProductID] = available - line.Quantity
		}

		if len(shortages) > 0 {
			reason := "Insufficient stock: " + strings.Join(shortages, ", ")
			decision.Status = domain.PurchaseCancelled
			decision.Reason = &reason
			return decision, nil
		}

		decision.Status = domain.PurchaseCompleted
		decision.Reason = comment
		decision.Stock = stock
		for _, line := range p.Lines {
			if !contains(stockChanged, line.ProductID) {
				stockChanged = append(stockChanged, line.ProductID)
			}
		}
		return decision, nil
	})
	if err != nil {
		return nil, err
	}

	uc.afterDecision(ctx, decided)
	for _, productID := range stockChanged {
		uc.post(ctx, domain.BooksChangedEvent{ProductID: productID, Change: domain.ChangeSave})
	}
	return decided, nil
}

// Reject moves a PENDING purchase to REJECTED with a mandatory reason.
func (uc *UseCase) Reject(ctx context.Context, id int64, actor *domain.User, reason string) (*domain.Purchase, error) {
	if actor == nil {
		return nil, domain.Invalidf("current user must not be nil")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, domain.Invalidf("reason must not be empty")
	}
	uc.logger.Info("rejecting purchase", zap.Int64("purchase_id", id), zap.String("user", actor.Name))

	decided, err := uc.purchases.Decide(ctx, id, func(p *domain.Purchase, _ map[int64]domain.Product) (repository.Decision, error) {
		if p.Status != domain.PurchasePending {
			return repository.Decision{}, domain.ErrNotPending
		}
		return repository.Decision{
			Status:    domain.PurchaseRejected,
			Reason:    &reason,
			DecidedAt: uc.clock.Now(),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	uc.afterDecision(ctx, decided)
	return decided, nil
}

func (uc *UseCase) afterDecision(ctx context.Context, p *domain.Purchase) {
	p.Refresh()
	metrics.PurchaseTransitions.WithLabelValues(string(p.Status)).Inc()
	fields := []zap.Field{
		zap.Int64("purchase_id", p.ID),
		zap.String("status", string(p.Status)),
	}
	if p.DecisionReason != nil {
		fields = append(fields, zap.String("reason", *p.DecisionReason))
	}
	uc.logger.Info("purchase decided", fields...)
	uc.post(ctx, domain.PurchaseStatusChangedEvent{PurchaseID: p.ID, Status: p.Status})
}

func (uc *UseCase) post(ctx context.Context, event domain.Event) {
	if uc.events == nil {
		return
	}
	uc.events.Post(ctx, event)
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
