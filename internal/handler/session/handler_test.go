package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/serene/backend/internal/auth"
)

func setupRouter(t *testing.T, opts ...auth.Option) (http.Handler, *auth.JWTVerifier) {
	t.Helper()
	verifier := auth.NewJWTVerifier("secret", opts...)
	r := chi.NewRouter()
	New(verifier, verifier).RegisterRoutes(r)
	return r, verifier
}

func redisOption(t *testing.T) auth.Option {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := auth.DialRedis(context.Background(), mr.Addr(), "", 0)
	if err != nil {
		t.Fatalf("DialRedis err: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })
	return auth.WithRevocations(auth.NewRedisRevocations(rdb))
}

func logout(r http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestLogoutRevokesToken(t *testing.T) {
	r, verifier := setupRouter(t, redisOption(t))
	token, _ := verifier.Issue("u1", time.Hour)

	if resp := logout(r, token); resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", resp.Code, resp.Body.String())
	}
	if _, err := verifier.Verify(context.Background(), token); !errors.Is(err, auth.ErrRevokedToken) {
		t.Fatalf("expected revoked token, got %v", err)
	}
	if resp := logout(r, token); resp.Code != http.StatusUnauthorized {
		t.Fatalf("a revoked token cannot log out again, got %d", resp.Code)
	}
}

func TestLogoutRequiresToken(t *testing.T) {
	r, _ := setupRouter(t, redisOption(t))
	if resp := logout(r, ""); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestLogoutWithoutRevocationStore(t *testing.T) {
	r, verifier := setupRouter(t)
	token, _ := verifier.Issue("u1", time.Hour)

	if resp := logout(r, token); resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}
