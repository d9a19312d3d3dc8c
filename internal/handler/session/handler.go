// Package session serves token lifecycle endpoints.
package session

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/serene/backend/internal/auth"
	"github.com/zhouzirui/serene/backend/pkg/utils"
)

// TokenRevoker blacklists a bearer token for the rest of its lifetime.
type TokenRevoker interface {
	Revoke(ctx context.Context, token string) error
}

// Handler 登出处理器
type Handler struct {
	verifier auth.Verifier
	revoker  TokenRevoker
}

// New 创建登出处理器
func New(verifier auth.Verifier, revoker TokenRevoker) *Handler {
	return &Handler{verifier: verifier, revoker: revoker}
}

// RegisterRoutes 注册 /auth 路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(auth.RequireBearer(h.verifier)).Post("/auth/logout", h.handleLogout)
}

// handleLogout 吊销当前 token，之后的 REST 请求和 WebSocket 握手都会被拒绝
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, _ := auth.BearerToken(r)

	err := h.revoker.Revoke(r.Context(), token)
	switch {
	case err == nil:
		userID, _ := auth.UserIDFromContext(r.Context())
		log.Printf("[session] user=%s logged out", userID)
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, auth.ErrRevocationDisabled):
		utils.RespondError(w, http.StatusServiceUnavailable, "Logout is unavailable")
	case errors.Is(err, auth.ErrInvalidToken):
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized - Invalid token")
	default:
		utils.RespondInternalError(w, "session", err)
	}
}
