package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fred1433/CounselAI/config"
	"github.com/fred1433/CounselAI/handler"
	"github.com/fred1433/CounselAI/middleware"
	"github.com/fred1433/CounselAI/pkg/logger"
	"github.com/fred1433/CounselAI/relay"
	"github.com/fred1433/CounselAI/service"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "path", configPath, "error", err)
		os.Exit(1)
	}

	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	slog.Info("configuration loaded", "model", cfg.LLM.Model, "auth", cfg.Auth.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("server exited gracefully")
}

func run(ctx context.Context, cfg *config.Config) error {
	llm, err := service.NewOpenAIClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, &http.Client{Timeout: cfg.LLM.Timeout + 10*time.Second})
	if err != nil {
		return fmt.Errorf("creating llm client: %w", err)
	}

	var bus relay.Bus
	if cfg.Relay.RedisAddr != "" {
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		redisBus, err := relay.DialRedisBus(dialCtx, cfg.Relay.RedisAddr, cfg.Relay.RedisPassword, cfg.Relay.RedisChannel)
		cancel()
		if err != nil {
			return err
		}
		defer redisBus.Close()
		bus = redisBus
		slog.Info("relay fan-out enabled", "redis", cfg.Relay.RedisAddr, "channel", cfg.Relay.RedisChannel)
	}

	hub := relay.NewHub(bus, cfg.Relay.SendBuffer)
	svc := service.NewGenerationService(llm, service.NewTextExtractor(), hub, service.Options{
		DefaultModel:  cfg.LLM.Model,
		AllowedModels: cfg.LLM.AllowedModels,
		Timeout:       cfg.LLM.Timeout,
	})

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           newRouter(cfg, svc, hub),
		ReadHeaderTimeout: 10 * time.Second,
		// Generation waits on the model, so writes get the LLM timeout plus slack.
		WriteTimeout: cfg.LLM.Timeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return hub.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newRouter(cfg *config.Config, svc *service.GenerationService, hub *relay.Hub) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(middleware.CacheControl())

	// HTTP requests and relay edits draw from the same per-IP budget.
	var limiter *middleware.RateLimiter
	relayOpts := relay.ClientOptions{
		MaxMessageBytes:  cfg.Relay.MaxMessageBytes,
		MaxEditsInFlight: cfg.Relay.MaxEditsInFlight,
	}
	if cfg.Server.RateLimit > 0 && cfg.Server.RateWindow > 0 {
		limiter = middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateWindow)
		relayOpts.Limiter = limiter
	}

	contractHandler := handler.NewContractHandler(svc, cfg.Upload.MaxBytes)
	relayHandler := handler.NewRelayHandler(hub, svc, cfg.Server.AllowedOrigins, relayOpts)

	router.GET("/health", handler.Health(hub))

	api := router.Group("/api/v1")
	api.Use(middleware.RateLimitWith(limiter))

	protected := api.Group("/")
	ws := router.Group("/")
	if cfg.Auth.Enabled {
		authHandler := handler.NewAuthHandler(cfg)
		api.POST("/auth/login", authHandler.Login)

		protected.Use(middleware.Auth(&cfg.Auth))
		protected.GET("/auth/me", authHandler.GetCurrentUser)
		ws.Use(middleware.Auth(&cfg.Auth))
	}
	protected.POST("/contracts/generate", contractHandler.Generate)
	protected.POST("/contracts/generate-description", contractHandler.GenerateDescription)
	ws.GET("/ws", relayHandler.ServeWS)

	if cfg.Server.StaticDir != "" {
		slog.Info("serving static files", "directory", cfg.Server.StaticDir)
		router.NoRoute(staticFallback(cfg.Server.StaticDir))
	}

	return router
}

// staticFallback serves files from dir and falls back to index.html so the
// single-page UI can handle its own routes.
func staticFallback(dir string) gin.HandlerFunc {
	root := http.Dir(dir)
	return func(c *gin.Context) {
		if (c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead) || strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
			return
		}

		name := path.Clean("/" + c.Request.URL.Path)
		if f, err := root.Open(name); err == nil {
			info, statErr := f.Stat()
			f.Close()
			if statErr == nil && !info.IsDir() {
				c.File(filepath.Join(dir, filepath.FromSlash(name)))
				return
			}
		}
		c.File(filepath.Join(dir, "index.html"))
	}
}
