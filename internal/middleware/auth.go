package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/storefront/api/transport"
	"github.com/fastygo/storefront/domain"
	"github.com/fastygo/storefront/pkg/httpcontext"
)

// Authenticator resolves a bearer token to a live session.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.Session, error)
}

// Middleware wraps a handler.
type Middleware func(fasthttp.RequestHandler) fasthttp.RequestHandler

// JWTAuth rejects requests without a valid bearer token and stores the
// resolved session on the request for downstream handlers.
func JWTAuth(auth Authenticator, timeout time.Duration, logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			tokenString := extractToken(ctx)
			if tokenString == "" {
				reject(ctx, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "missing bearer token")
				return
			}

			stdCtx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			session, err := auth.Authenticate(stdCtx, tokenString)
			if err != nil {
				if domain.IsDomainError(err, domain.ErrCodeUnauthorized) {
					logger.Warn("invalid jwt token", zap.Error(err))
					reject(ctx, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "invalid token")
					return
				}
				logger.Error("session lookup failed", zap.Error(err))
				reject(ctx, http.StatusInternalServerError, domain.ErrCodeInternal, "session lookup failed")
				return
			}

			httpcontext.SetSession(ctx, session)
			next(ctx)
		}
	}
}

// RequireRole lets the request through only when the session holds one of roles.
// It must run after JWTAuth.
func RequireRole(roles ...domain.Role) Middleware {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			session := httpcontext.SessionFromRequest(ctx)
			if session == nil {
				reject(ctx, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "not authenticated")
				return
			}
			for _, role := range roles {
				if session.Role == role {
					next(ctx)
					return
				}
			}
			reject(ctx, http.StatusForbidden, domain.ErrCodeForbidden, "insufficient role")
		}
	}
}

// Chain applies middlewares so the first one listed runs first.
func Chain(h fasthttp.RequestHandler, mws ...Middleware) fasthttp.RequestHandler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func extractToken(ctx *fasthttp.RequestCtx) string {
	header := string(ctx.Request.Header.Peek("Authorization"))
	if header == "" {
		return ""
	}
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return header
}

func reject(ctx *fasthttp.RequestCtx, status int, code domain.ErrorCode, msg string) {
	body, _ := json.Marshal(transport.NewError(string(code), msg, nil))
	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(status)
	ctx.SetBody(body)
}
