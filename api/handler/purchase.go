package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/storefront/api/transport"
	"github.com/fastygo/storefront/domain"
	"github.com/fastygo/storefront/pkg/httpcontext"
	purchaseUC "github.com/fastygo/storefront/usecase/purchase"
)

const (
	defaultPageSize = 20
	defaultStatSize = 10
	defaultMonths   = 12
)

type PurchaseHandler struct {
	baseHandler
	uc    *purchaseUC.UseCase
	users UserLoader
}

func NewPurchaseHandler(uc *purchaseUC.UseCase, users UserLoader, adapter *httpcontext.Adapter, logger *zap.Logger) *PurchaseHandler {
	return &PurchaseHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
		users:       users,
	}
}

// currentUser loads the session's user or writes the error response.
func (h *PurchaseHandler) currentUser(ctx *fasthttp.RequestCtx, stdCtx context.Context) (*domain.User, bool) {
	session, ok := h.session(ctx)
	if !ok {
		return nil, false
	}
	user, err := h.users.GetUser(stdCtx, session.UserID)
	if err != nil {
		h.respondError(ctx, err)
		return nil, false
	}
	return user, true
}

// @Summary Submit the cart as a pending purchase
// @Tags purchases
// @Router /api/v1/purchases [post]
func (h *PurchaseHandler) Create(ctx *fasthttp.RequestCtx) {
	var req transport.CreatePurchaseRequest
	if !h.decode(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	requester, ok := h.currentUser(ctx, stdCtx)
	if !ok {
		return
	}

	cart := domain.NewCart()
	for _, line := range req.Lines {
		if err := cart.Add(domain.Product{ID: line.ProductID}, line.Quantity); err != nil {
			h.respondError(ctx, err)
			return
		}
	}

	var approver *domain.User
	if req.ApproverID != nil {
		loaded, err := h.users.GetUser(stdCtx, *req.ApproverID)
		if err != nil {
			h.respondError(ctx, err)
			return
		}
		approver = loaded
	}

	purchase, err := h.uc.CreatePendingPurchase(stdCtx, cart, req.Address.ToDomain(), requester, approver)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, transport.NewPurchaseResponse(purchase))
}

// @Summary Page through purchase history
// @Tags purchases
// @Param mode query string false "MY_PURCHASES, ALL or PENDING_APPROVALS"
// @Router /api/v1/purchases [get]
func (h *PurchaseHandler) List(ctx *fasthttp.RequestCtx) {
	mode := domain.PurchaseHistoryMode(ctx.QueryArgs().Peek("mode"))
	if mode == "" {
		mode = domain.HistoryMyPurchases
	}
	offset := queryInt(ctx, "offset", 0)
	limit := queryInt(ctx, "limit", defaultPageSize)
	if offset < 0 || limit <= 0 {
		h.respondInvalid(ctx, "offset and limit must be non-negative")
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	user, ok := h.currentUser(ctx, stdCtx)
	if !ok {
		return
	}
	if mode == domain.HistoryAll && user.Role != domain.RoleAdmin {
		h.respondError(ctx, domain.ErrForbidden)
		return
	}

	purchases, err := h.uc.FetchPurchases(stdCtx, mode, offset, limit, user)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	total, err := h.uc.CountPurchases(stdCtx, mode, user)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondPage(ctx, transport.NewPurchaseResponses(purchases), transport.PageMeta{
		Offset: offset,
		Limit:  limit,
		Total:  total,
	})
}

// @Summary Fetch one purchase with its lines
// @Tags purchases
// @Router /api/v1/purchases/{id} [get]
func (h *PurchaseHandler) Get(ctx *fasthttp.RequestCtx) {
	id, ok := h.pathID(ctx, "id")
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	user, ok := h.currentUser(ctx, stdCtx)
	if !ok {
		return
	}

	purchase, err := h.uc.FetchPurchase(stdCtx, id)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	if user.Role != domain.RoleAdmin && purchase.Requester.ID != user.ID && !purchase.AssignedTo(user.ID) {
		h.respondError(ctx, domain.ErrForbidden)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, transport.NewPurchaseResponse(purchase))
}

// @Summary Approve a pending purchase
// @Tags purchases
// @Router /api/v1/purchases/{id}/approve [post]
func (h *PurchaseHandler) Approve(ctx *fasthttp.RequestCtx) {
	id, ok := h.pathID(ctx, "id")
	if !ok {
		return
	}
	var req transport.ApproveRequest
	if len(ctx.PostBody()) > 0 && !h.decode(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	actor, ok := h.currentUser(ctx, stdCtx)
	if !ok {
		return
	}

	purchase, err := h.uc.Approve(stdCtx, id, actor, req.Comment)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, transport.NewPurchaseResponse(purchase))
}

// @Summary Reject a pending purchase with a reason
// @Tags purchases
// @Router /api/v1/purchases/{id}/reject [post]
func (h *PurchaseHandler) Reject(ctx *fasthttp.RequestCtx) {
	id, ok := h.pathID(ctx, "id")
	if !ok {
		return
	}
	var req transport.RejectRequest
	if !h.decode(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	actor, ok := h.currentUser(ctx, stdCtx)
	if !ok {
		return
	}

	purchase, err := h.uc.Reject(stdCtx, id, actor, req.Reason)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, transport.NewPurchaseResponse(purchase))
}

// @Summary List the caller's purchases decided since a point in time
// @Tags purchases
// @Param since query string true "RFC3339 timestamp"
// @Router /api/v1/purchases/decided [get]
func (h *PurchaseHandler) RecentlyDecided(ctx *fasthttp.RequestCtx) {
	since, err := time.Parse(time.RFC3339, string(ctx.QueryArgs().Peek("since")))
	if err != nil {
		h.respondInvalid(ctx, "since must be an RFC3339 timestamp")
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	requester, ok := h.currentUser(ctx, stdCtx)
	if !ok {
		return
	}

	purchases, err := h.uc.FindRecentlyDecidedPurchases(stdCtx, requester, since)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, transport.NewPurchaseResponses(purchases))
}

// @Summary Products ranked by completed quantity
// @Tags purchases
// @Param order query string false "top or least"
// @Router /api/v1/purchases/stats/products [get]
func (h *PurchaseHandler) ProductStats(ctx *fasthttp.RequestCtx) {
	limit := queryInt(ctx, "limit", defaultStatSize)
	if limit <= 0 {
		h.respondInvalid(ctx, "limit must be positive")
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	var (
		stats []domain.ProductPurchaseStat
		err   error
	)
	switch order := string(ctx.QueryArgs().Peek("order")); order {
	case "", "top":
		stats, err = h.uc.TopProductsByQuantity(stdCtx, limit)
	case "least":
		stats, err = h.uc.LeastProductsByQuantity(stdCtx, limit)
	default:
		h.respondInvalid(ctx, "order must be top or least")
		return
	}
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, stats)
}

// @Summary Completed purchase totals per month
// @Tags purchases
// @Router /api/v1/purchases/stats/monthly [get]
func (h *PurchaseHandler) MonthlyStats(ctx *fasthttp.RequestCtx) {
	months := queryInt(ctx, "months", defaultMonths)

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	stats, err := h.uc.MonthlyTotals(stdCtx, months)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, stats)
}
