package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/reservo/chat-service/internal/cache"
	"github.com/reservo/chat-service/internal/config"
	"github.com/reservo/chat-service/internal/domain"
	"github.com/reservo/chat-service/internal/handler"
	"github.com/reservo/chat-service/internal/hub"
	"github.com/reservo/chat-service/internal/middleware"
	"github.com/reservo/chat-service/internal/repository"
	"github.com/reservo/chat-service/internal/service"
	"github.com/reservo/chat-service/pkg/database"
	pkgjwt "github.com/reservo/chat-service/pkg/jwt"
	"github.com/reservo/chat-service/pkg/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log)
	l := log.L()
	l.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting chat service")

	db, err := database.New(&cfg.Database)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.AutoMigrate(db,
		&domain.UserModel{},
		&domain.ConversationModel{},
		&domain.MessageModel{},
	); err != nil {
		l.Fatal().Err(err).Msg("failed to migrate database")
	}

	repo := repository.NewGormChatRepository(db)

	var pageCache cache.MessagePageCache = cache.Noop{}
	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedisMessagePageCache(cfg.Redis)
		if err != nil {
			l.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisCache.Close()
		pageCache = redisCache
		l.Info().Str("address", cfg.Redis.Address).Msg("connected to redis")
	}

	secret := cfg.Auth.Secret
	if secret == "" {
		// Tokens issued elsewhere will not validate against an ephemeral
		// secret; fine for local runs, configure AUTH_SECRET in production.
		secret = uuid.New().String()
		l.Warn().Msg("auth secret not configured, using an ephemeral secret")
	}
	tokens, err := pkgjwt.NewManager(secret, cfg.Auth.TokenDuration, cfg.Auth.Issuer)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to create token manager")
	}

	wsHub := hub.NewHub(cfg.WebSocket)
	chatSvc := service.NewChatService(wsHub, repo, tokens, cfg.Auth, cfg.Typing)
	historySvc := service.NewHistoryService(repo, pageCache, cfg.Redis.CacheTTL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := chatSvc.Start(ctx); err != nil {
		l.Fatal().Err(err).Msg("failed to start chat service")
	}
	defer chatSvc.Stop()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger())

	wsHandler := handler.NewWSHandler(wsHub, chatSvc, cfg.WebSocket)
	wsHandler.RegisterRoutes(router)

	httpHandler := handler.NewHTTPHandler(historySvc, middleware.NewAuthMiddleware(tokens))
	httpHandler.RegisterRoutes(router)

	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		l.Info().Str("addr", server.Addr).Msg("chat service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info().Msg("shutting down chat service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		l.Warn().Err(err).Msg("server forced to shutdown")
	}

	l.Info().Msg("chat service stopped")
}
