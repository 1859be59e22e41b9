package handler

import (
	"net/http"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/storefront/api/transport"
	"github.com/fastygo/storefront/domain"
	"github.com/fastygo/storefront/pkg/clock"
	"github.com/fastygo/storefront/pkg/httpcontext"
)

// MessageHandler broadcasts admin messages to every session on every node.
type MessageHandler struct {
	baseHandler
	events domain.EventPoster
	clock  clock.Clock
}

func NewMessageHandler(events domain.EventPoster, clk clock.Clock, adapter *httpcontext.Adapter, logger *zap.Logger) *MessageHandler {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &MessageHandler{
		baseHandler: newBaseHandler(adapter, logger),
		events:      events,
		clock:       clk,
	}
}

// @Summary Broadcast a message
// @Tags messages
// @Router /api/v1/messages [post]
func (h *MessageHandler) Broadcast(ctx *fasthttp.RequestCtx) {
	var req transport.MessageRequest
	if !h.decode(ctx, &req) {
		return
	}
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		h.respondInvalid(ctx, "message is required")
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	event := domain.MessageEvent{Message: msg, TimeStamp: h.clock.Now()}
	h.events.Post(stdCtx, event)
	h.respondSuccess(ctx, http.StatusAccepted, event)
}
