package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zhouzirui/serene/backend/internal/auth"
	"github.com/zhouzirui/serene/backend/internal/model/companion"
	chatService "github.com/zhouzirui/serene/backend/internal/service/chat"
	"github.com/zhouzirui/serene/backend/internal/service/hub"
)

func newTestRouter() http.Handler {
	chatSvc := chatService.NewService(chatService.NewMemoryStore(), chatService.Options{})
	chatHub := hub.New(hub.NewRegistry(), chatSvc)
	return NewRouter(companion.NewMemoryStore(companion.Seed()), chatSvc, chatHub, auth.NewJWTVerifier("secret"), nil)
}

func TestHealthz(t *testing.T) {
	r := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestRoutesMountedUnderAPI(t *testing.T) {
	r := newTestRouter()

	cases := map[string]int{
		"/api/companions":                 http.StatusOK,
		"/api/chat/history?receiverId=u2": http.StatusUnauthorized,
		"/chat/history?receiverId=u2":     http.StatusNotFound,
	}
	for path, want := range cases {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		if resp.Code != want {
			t.Fatalf("%s: expected %d, got %d", path, want, resp.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("logout without token: expected 401, got %d", resp.Code)
	}
}

func TestCompanionsHiddenWithoutStore(t *testing.T) {
	chatSvc := chatService.NewService(chatService.NewMemoryStore(), chatService.Options{})
	chatHub := hub.New(hub.NewRegistry(), chatSvc)
	r := NewRouter(nil, chatSvc, chatHub, auth.NewJWTVerifier("secret"), nil)

	for _, path := range []string{"/api/companions", "/api/companions/ai-companion"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		if resp.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404 without companions, got %d", path, resp.Code)
		}
	}
}
