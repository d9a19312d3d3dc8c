package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/serene/backend/internal/auth"
	"github.com/zhouzirui/serene/backend/internal/handler/chat"
	companionHandler "github.com/zhouzirui/serene/backend/internal/handler/companion"
	sessionHandler "github.com/zhouzirui/serene/backend/internal/handler/session"
	middlewarePkg "github.com/zhouzirui/serene/backend/internal/middleware"
	"github.com/zhouzirui/serene/backend/internal/model/companion"
	chatService "github.com/zhouzirui/serene/backend/internal/service/chat"
	"github.com/zhouzirui/serene/backend/internal/service/hub"
	"github.com/zhouzirui/serene/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(companions companion.Store, chatSvc *chatService.Service, chatHub *hub.Hub, verifier auth.Verifier, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(allowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"online": chatHub.Registry().Len(),
		})
	})

	chatHandler := chat.New(chatSvc, chatHub, verifier)

	r.Route("/api", func(api chi.Router) {
		// Companion profiles are public so clients can render the picker before login
		if companions != nil {
			companionHandler.New(companions).RegisterRoutes(api)
		}

		chatHandler.RegisterRoutes(api)

		if revoker, ok := verifier.(sessionHandler.TokenRevoker); ok {
			sessionHandler.New(verifier, revoker).RegisterRoutes(api)
		}
	})

	return r
}
