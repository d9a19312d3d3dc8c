package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/joho/godotenv"

	"github.com/zhouzirui/serene/backend/internal/auth"
	"github.com/zhouzirui/serene/backend/internal/config"
	"github.com/zhouzirui/serene/backend/internal/database"
	"github.com/zhouzirui/serene/backend/internal/handler"
	"github.com/zhouzirui/serene/backend/internal/model/companion"
	"github.com/zhouzirui/serene/backend/internal/service/ai"
	"github.com/zhouzirui/serene/backend/internal/service/chat"
	"github.com/zhouzirui/serene/backend/internal/service/hub"
	moodservice "github.com/zhouzirui/serene/backend/internal/service/mood"
	"github.com/zhouzirui/serene/backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Message storage
	db, err := database.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	messageStore := store.New(db)
	if err := messageStore.Migrate(); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}
	log.Printf("message store ready (driver=%s)", cfg.Database.Driver)

	chatService := chat.NewService(messageStore, chat.Options{
		DefaultLimit:     cfg.Chat.HistoryDefaultLimit,
		MaxLimit:         cfg.Chat.HistoryMaxLimit,
		MaxContentLength: cfg.Chat.MaxContentLength,
	})

	verifier := newVerifier(ctx, cfg)

	// Companions are listed only when a model can answer for them; without one the hub
	// still recognises their ids and reports them unavailable
	companionStore := companion.NewMemoryStore(companion.Seed())
	responder := newResponder(ctx, cfg.AI)
	var listedCompanions companion.Store
	if responder != nil {
		listedCompanions = companionStore
	}

	chatHub := hub.New(hub.NewRegistry(), chatService, hub.WithCompanions(companionStore, responder))

	router := handler.NewRouter(listedCompanions, chatService, chatHub, verifier, cfg.Server.AllowedOrigins)

	startServer(ctx, cfg.Server, router)

	// Shutdown 不会关闭已劫持的 WebSocket 连接，这里统一关闭
	chatHub.Registry().CloseAll()
	chatHub.Wait()
	log.Println("chat hub drained, bye")
}

func newVerifier(ctx context.Context, cfg *config.Config) *auth.JWTVerifier {
	opts := []auth.Option{
		auth.WithIssuer(cfg.Auth.Issuer),
		auth.WithAudience(cfg.Auth.Audience),
	}

	if cfg.Redis.Enabled() {
		rdb, err := auth.DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Printf("warning: redis unavailable, token revocation disabled: %v", err)
		} else {
			opts = append(opts, auth.WithRevocations(auth.NewRedisRevocations(rdb)))
			log.Println("token revocation list enabled")
		}
	}

	return auth.NewJWTVerifier(cfg.Auth.Secret, opts...)
}

func newResponder(ctx context.Context, aiCfg config.AIConfig) hub.Responder {
	if !aiCfg.Enabled() {
		log.Println("Ark 凭证未配置，AI 陪伴回复已关闭")
		return nil
	}

	aiService, err := ai.NewService(ctx, aiCfg)
	if err != nil {
		log.Printf("warning: failed to initialize AI service: %v", err)
		return nil
	}
	log.Println("AI service initialized successfully")

	// 情绪分析复用同一个模型
	aiService.AttachMood(newMoodService(ctx, aiService.ChatModel(), aiCfg))
	return aiService
}

func newMoodService(ctx context.Context, chatModel model.ChatModel, aiCfg config.AIConfig) *moodservice.Service {
	moodCfg := moodservice.Config{
		Enabled:      aiCfg.MoodLLMEnabled,
		HistoryLimit: aiCfg.MoodHistoryLimit,
	}

	moodSvc, err := moodservice.NewService(ctx, chatModel, moodCfg)
	if err != nil {
		log.Printf("warning: failed to initialize mood classifier, using heuristics: %v", err)
		moodSvc, _ = moodservice.NewService(ctx, nil, moodservice.Config{HistoryLimit: aiCfg.MoodHistoryLimit})
		return moodSvc
	}

	if moodSvc.Enabled() {
		log.Println("mood classifier service enabled")
	} else {
		log.Println("mood classifier disabled by configuration, using heuristics")
	}
	return moodSvc
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Serene chat backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
