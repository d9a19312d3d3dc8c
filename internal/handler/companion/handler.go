package companion

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/serene/backend/internal/model/companion"
	"github.com/zhouzirui/serene/backend/pkg/utils"
)

// Handler AI 陪伴角色的HTTP处理器
type Handler struct {
	companions companion.Store
}

// New 创建companion处理器
func New(companions companion.Store) *Handler {
	return &Handler{
		companions: companions,
	}
}

// RegisterRoutes 注册companion相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/companions", h.handleList)
	r.Get("/companions/{companionID}", h.handleGet)
}

// handleList 列出所有可对话的 AI 角色
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.companions.List())
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.companions.FindByID(chi.URLParam(r, "companionID"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "companion not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, profile)
}
