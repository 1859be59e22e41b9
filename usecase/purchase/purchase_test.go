package purchase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/storefront/domain"
	"github.com/fastygo/storefront/pkg/clock"
	"github.com/fastygo/storefront/repository/memory"
)

type eventLog struct {
	mu     sync.Mutex
	events []domain.Event
}

func (l *eventLog) Post(_ context.Context, event domain.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) all() []domain.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Event(nil), l.events...)
}

func (l *eventLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}

type fixture struct {
	uc        *UseCase
	store     *memory.Store
	events    *eventLog
	clock     *clock.MockClock
	requester *domain.User
	approver  *domain.User
	other     *domain.User
	book      domain.Product
	pen       domain.Product
	address   domain.Address
}

var now = time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		store:   memory.NewStore(),
		events:  &eventLog{},
		clock:   clock.NewMockClock(now),
		address: domain.Address{Street: "Main St 1", PostalCode: "00100", City: "Helsinki", Country: "Finland"},
	}

	users := f.store.Users()
	f.requester = &domain.User{Name: "Customer1", Password: "c", Role: domain.RoleCustomer, Active: true}
	f.approver = &domain.User{Name: "User1", Password: "u", Role: domain.RoleUser, Active: true}
	f.other = &domain.User{Name: "User2", Password: "u", Role: domain.RoleUser, Active: true}
	for _, u := range []*domain.User{f.requester, f.approver, f.other} {
		require.NoError(t, users.Create(ctx, u))
	}
	require.NoError(t, users.SetSupervisor(ctx, f.requester.ID, f.approver.ID))

	products := f.store.Products()
	f.book = domain.Product{Name: "Book", Price: decimal.RequireFromString("10.00"), StockCount: 5}
	f.pen = domain.Product{Name: "Pen", Price: decimal.RequireFromString("8.25"), StockCount: 2}
	require.NoError(t, products.Save(ctx, &f.book))
	require.NoError(t, products.Save(ctx, &f.pen))

	f.uc = New(f.store.Purchases(), products, users, f.events, f.clock, nil)
	return f
}

func (f *fixture) cart(t *testing.T, bookQty, penQty int) *domain.Cart {
	t.Helper()
	cart := domain.NewCart()
	if bookQty > 0 {
		require.NoError(t, cart.Add(f.book, bookQty))
	}
	if penQty > 0 {
		require.NoError(t, cart.Add(f.pen, penQty))
	}
	return cart
}

func (f *fixture) create(t *testing.T, bookQty, penQty int) *domain.Purchase {
	t.Helper()
	p, err := f.uc.CreatePendingPurchase(context.Background(), f.cart(t, bookQty, penQty), f.address, f.requester, nil)
	require.NoError(t, err)
	return p
}

func (f *fixture) stock(t *testing.T, id int64) int {
	t.Helper()
	p, err := f.store.Products().GetByID(context.Background(), id)
	require.NoError(t, err)
	return p.StockCount
}

func TestCreatePendingPurchase(t *testing.T) {
	f := newFixture(t)

	p := f.create(t, 2, 2)

	assert.NotZero(t, p.ID)
	assert.Equal(t, domain.PurchasePending, p.Status)
	assert.Equal(t, now, p.CreatedAt)
	assert.Nil(t, p.DecidedAt)
	assert.Equal(t, f.requester.Ref(), p.Requester)
	require.NotNil(t, p.Approver)
	assert.Equal(t, f.approver.Ref(), *p.Approver)
	assert.Equal(t, f.address, p.DeliveryAddress)
	require.Len(t, p.Lines, 2)
	assert.Equal(t, "Book", p.Lines[0].ProductName)
	assert.Equal(t, "36.50", domain.FormatAmount(p.TotalAmount()))
	assert.Equal(t, []domain.Event{domain.PurchaseSavedEvent{PurchaseID: p.ID}}, f.events.all())

	assert.Equal(t, 5, f.stock(t, f.book.ID), "creation never touches stock")
}

func TestPurchaseKeepsPriceAndAddressSnapshots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	address := f.address
	p, err := f.uc.CreatePendingPurchase(ctx, f.cart(t, 1, 0), address, f.requester, nil)
	require.NoError(t, err)

	book, err := f.store.Products().GetByID(ctx, f.book.ID)
	require.NoError(t, err)
	book.Price = decimal.RequireFromString("99.99")
	book.Name = "Renamed"
	require.NoError(t, f.store.Products().Save(ctx, book))
	address.City = "Tampere"

	stored, err := f.uc.FetchPurchase(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, stored.Lines[0].UnitPrice.Equal(decimal.RequireFromString("10.00")))
	assert.Equal(t, "Book", stored.Lines[0].ProductName)
	assert.Equal(t, "Helsinki", stored.DeliveryAddress.City)
}

func TestCreateRejectsEmptyCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.uc.CreatePendingPurchase(ctx, domain.NewCart(), f.address, f.requester, nil)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))

	_, err = f.uc.CreatePendingPurchase(ctx, f.cart(t, 1, 0), f.address, nil, nil)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))

	count, err := f.uc.CountAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, f.events.all())
}

func TestCreateApproverResolution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.uc.CreatePendingPurchase(ctx, f.cart(t, 1, 0), f.address, f.requester, f.other)
	require.NoError(t, err)
	assert.Equal(t, f.other.Ref(), *p.Approver)

	p, err = f.uc.CreatePendingPurchase(ctx, f.cart(t, 1, 0), f.address, f.other, nil)
	require.NoError(t, err)
	assert.Nil(t, p.Approver)
}

func TestCreateFailsForUnknownProduct(t *testing.T) {
	f := newFixture(t)
	cart := domain.NewCart()
	require.NoError(t, cart.Add(domain.Product{ID: 404, Name: "Ghost"}, 1))

	_, err := f.uc.CreatePendingPurchase(context.Background(), cart, f.address, f.requester, nil)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeNotFound))
}

func TestApproveCompletesAndDecrementsStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, 2, 2)
	f.events.reset()
	f.clock.Add(time.Hour)
	comment := "ok"

	approved, err := f.uc.Approve(ctx, p.ID, f.approver, &comment)
	require.NoError(t, err)

	assert.Equal(t, domain.PurchaseCompleted, approved.Status)
	require.NotNil(t, approved.DecidedAt)
	assert.Equal(t, now.Add(time.Hour), *approved.DecidedAt)
	require.NotNil(t, approved.DecisionReason)
	assert.Equal(t, "ok", *approved.DecisionReason)
	assert.Equal(t, 3, f.stock(t, f.book.ID))
	assert.Equal(t, 0, f.stock(t, f.pen.ID))

	book, err := f.store.Products().GetByID(ctx, f.book.ID)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), book.UpdatedAt)

	assert.Equal(t, []domain.Event{
		domain.PurchaseStatusChangedEvent{PurchaseID: p.ID, Status: domain.PurchaseCompleted},
		domain.BooksChangedEvent{ProductID: f.book.ID, Change: domain.ChangeSave},
		domain.BooksChangedEvent{ProductID: f.pen.ID, Change: domain.ChangeSave},
	}, f.events.all())
}

func TestApproveCancelsOnInsufficientStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, 1, 3)
	f.events.reset()

	decided, err := f.uc.Approve(ctx, p.ID, f.approver, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.PurchaseCancelled, decided.Status)
	require.NotNil(t, decided.DecisionReason)
	assert.Equal(t, "Insufficient stock: Pen: needs 3, has 2", *decided.DecisionReason)
	assert.NotNil(t, decided.DecidedAt)
	assert.Equal(t, 5, f.stock(t, f.book.ID))
	assert.Equal(t, 2, f.stock(t, f.pen.ID))
	assert.Equal(t, []domain.Event{
		domain.PurchaseStatusChangedEvent{PurchaseID: p.ID, Status: domain.PurchaseCancelled},
	}, f.events.all())
}

func TestApproveGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, 1, 0)

	_, err := f.uc.Approve(ctx, p.ID, f.other, nil)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeForbidden))

	_, err = f.uc.Approve(ctx, 9999, f.approver, nil)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeNotFound))

	stored, err := f.uc.FetchPurchase(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PurchasePending, stored.Status)
	assert.Equal(t, 5, f.stock(t, f.book.ID))

	_, err = f.uc.Approve(ctx, p.ID, f.approver, nil)
	require.NoError(t, err)
	_, err = f.uc.Approve(ctx, p.ID, f.approver, nil)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
	assert.Equal(t, 4, f.stock(t, f.book.ID))
}

func TestApproveWithoutAssignedApproverIsForbidden(t *testing.T) {
	f := newFixture(t)
	p, err := f.uc.CreatePendingPurchase(context.Background(), f.cart(t, 1, 0), f.address, f.other, nil)
	require.NoError(t, err)

	_, err = f.uc.Approve(context.Background(), p.ID, f.approver, nil)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeForbidden))
}

func TestReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, 1, 1)
	f.events.reset()

	_, err := f.uc.Reject(ctx, p.ID, f.approver, "  ")
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))

	rejected, err := f.uc.Reject(ctx, p.ID, f.approver, "over budget")
	require.NoError(t, err)
	assert.Equal(t, domain.PurchaseRejected, rejected.Status)
	assert.Equal(t, "over budget", *rejected.DecisionReason)
	assert.Equal(t, now, *rejected.DecidedAt)
	assert.Equal(t, 5, f.stock(t, f.book.ID))

	_, err = f.uc.Reject(ctx, p.ID, f.approver, "again")
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))

	_, err = f.uc.Reject(ctx, 9999, f.approver, "x")
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeNotFound))

	assert.Equal(t, []domain.Event{
		domain.PurchaseStatusChangedEvent{PurchaseID: p.ID, Status: domain.PurchaseRejected},
	}, f.events.all())
}
