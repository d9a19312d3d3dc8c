package chat

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/serene/backend/internal/auth"
	chatService "github.com/zhouzirui/serene/backend/internal/service/chat"
	"github.com/zhouzirui/serene/backend/internal/service/hub"
	"github.com/zhouzirui/serene/backend/pkg/utils"
)

// Handler 聊天服务的HTTP处理器，包含实时连接与历史记录接口
type Handler struct {
	chatSvc  *chatService.Service
	hub      *hub.Hub
	verifier auth.Verifier
	upgrader websocket.Upgrader
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service, chatHub *hub.Hub, verifier auth.Verifier) *Handler {
	return &Handler{
		chatSvc:  chatSvc,
		hub:      chatHub,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chat/ws", h.handleWebSocket)
	r.With(auth.RequireBearer(h.verifier)).Get("/chat/history", h.handleHistory)
}

// handleHistory 分页返回与 receiverId 的历史消息，按时间升序
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized - Invalid token")
		return
	}

	query := r.URL.Query()
	receiverID := strings.TrimSpace(query.Get("receiverId"))
	if receiverID == "" {
		utils.RespondError(w, http.StatusBadRequest, "Receiver ID is required")
		return
	}

	limit := 0
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			utils.RespondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	var before *time.Time
	if raw := strings.TrimSpace(query.Get("before")); raw != "" {
		parsed, err := ParseBefore(raw)
		if err != nil {
			utils.RespondError(w, http.StatusBadRequest, "before must be an RFC 3339 timestamp or unix milliseconds")
			return
		}
		before = &parsed
	}

	messages, err := h.chatSvc.LoadHistory(r.Context(), userID, receiverID, limit, before)
	if err != nil {
		if errors.Is(err, chatService.ErrReceiverRequired) {
			utils.RespondError(w, http.StatusBadRequest, "Receiver ID is required")
			return
		}
		utils.RespondInternalError(w, "history", err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, messages)
}

// ParseBefore accepts an RFC 3339 timestamp or unix milliseconds.
func ParseBefore(raw string) (time.Time, error) {
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
