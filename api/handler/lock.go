package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/storefront/api/transport"
	"github.com/fastygo/storefront/domain"
	"github.com/fastygo/storefront/internal/locking"
	"github.com/fastygo/storefront/pkg/httpcontext"
)

// LockHandler exposes the edit-lock ledger. Locks taken here belong to the
// caller's session and are released when that session closes.
type LockHandler struct {
	baseHandler
	ledger *locking.Ledger
}

func NewLockHandler(ledger *locking.Ledger, adapter *httpcontext.Adapter, logger *zap.Logger) *LockHandler {
	return &LockHandler{
		baseHandler: newBaseHandler(adapter, logger),
		ledger:      ledger,
	}
}

// @Summary List held edit locks
// @Tags locks
// @Router /api/v1/locks [get]
func (h *LockHandler) List(ctx *fasthttp.RequestCtx) {
	entries := h.ledger.Locks()
	out := make([]transport.LockResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, transport.LockResponse{
			Type:     e.Type,
			ID:       e.ID,
			UserID:   e.Holder.ID,
			UserName: e.Holder.Name,
			LockedAt: e.LockedAt,
		})
	}
	h.respondSuccess(ctx, http.StatusOK, out)
}

// @Summary Lock an entity for editing
// @Tags locks
// @Router /api/v1/locks/{type}/{id} [post]
func (h *LockHandler) Lock(ctx *fasthttp.RequestCtx) {
	session, typ, id, ok := h.target(ctx)
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	holder := domain.UserRef{ID: session.UserID, Name: session.UserName}
	if err := h.ledger.Scope(session.ID).Lock(stdCtx, typ, id, holder); err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, transport.LockResponse{
		Type:     typ,
		ID:       id,
		UserID:   holder.ID,
		UserName: holder.Name,
	})
}

// @Summary Release an edit lock held by the caller
// @Tags locks
// @Router /api/v1/locks/{type}/{id} [delete]
func (h *LockHandler) Unlock(ctx *fasthttp.RequestCtx) {
	session, typ, id, ok := h.target(ctx)
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	err := h.ledger.UnlockIf(stdCtx, typ, id, func(holder domain.UserRef) bool {
		return holder.ID == session.UserID || session.Role == domain.RoleAdmin
	})
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, nil)
}

func (h *LockHandler) target(ctx *fasthttp.RequestCtx) (*domain.Session, string, int64, bool) {
	session, ok := h.session(ctx)
	if !ok {
		return nil, "", 0, false
	}
	typ, _ := ctx.UserValue("type").(string)
	if !locking.KnownType(typ) {
		h.respondInvalid(ctx, "unknown lock type "+typ)
		return nil, "", 0, false
	}
	id, ok := h.pathID(ctx, "id")
	if !ok {
		return nil, "", 0, false
	}
	return session, typ, id, true
}
