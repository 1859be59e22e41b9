package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/storefront/domain"
	"github.com/fastygo/storefront/internal/infrastructure/deadletter"
	"github.com/fastygo/storefront/pkg/httpcontext"
)

// DeadLetterStore is the read side of the dead-letter store.
type DeadLetterStore interface {
	List(limit int) ([]deadletter.Letter, error)
	Remove(id string) (bool, error)
}

type DeadLetterHandler struct {
	baseHandler
	store DeadLetterStore
}

func NewDeadLetterHandler(store DeadLetterStore, adapter *httpcontext.Adapter, logger *zap.Logger) *DeadLetterHandler {
	return &DeadLetterHandler{
		baseHandler: newBaseHandler(adapter, logger),
		store:       store,
	}
}

// @Summary List envelopes that could not be decoded
// @Tags admin
// @Router /api/v1/admin/deadletters [get]
func (h *DeadLetterHandler) List(ctx *fasthttp.RequestCtx) {
	letters, err := h.store.List(queryInt(ctx, "limit", 50))
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, letters)
}

// @Summary Discard a dead letter
// @Tags admin
// @Router /api/v1/admin/deadletters/{id} [delete]
func (h *DeadLetterHandler) Remove(ctx *fasthttp.RequestCtx) {
	id, _ := ctx.UserValue("id").(string)
	removed, err := h.store.Remove(id)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	if !removed {
		h.respondError(ctx, domain.NewError(domain.ErrCodeNotFound, "dead letter not found"))
		return
	}
	h.respondSuccess(ctx, http.StatusOK, nil)
}
