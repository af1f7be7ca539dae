// Package main API 服务入口
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ai-story-writer-api/internal/application/story"
	"ai-story-writer-api/internal/config"
	"ai-story-writer-api/internal/domain/repository"
	"ai-story-writer-api/internal/infrastructure/llm"
	"ai-story-writer-api/internal/infrastructure/persistence/memory"
	redisinfra "ai-story-writer-api/internal/infrastructure/persistence/redis"
	"ai-story-writer-api/internal/interfaces/http/handler"
	"ai-story-writer-api/internal/interfaces/http/middleware"
	"ai-story-writer-api/internal/interfaces/http/router"
	"ai-story-writer-api/pkg/logger"
	"ai-story-writer-api/pkg/tracer"

	"github.com/joho/godotenv"
)

// Version 版本信息，构建时注入
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件（如果存在）
	_ = godotenv.Load()

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger.Init(
		cfg.Observability.Logging.Level,
		cfg.Observability.Logging.Format,
	)

	ctx := context.Background()
	log := logger.FromContext(ctx)
	log.Info("starting api-server",
		"version", Version,
		"build_time", BuildTime,
		"env", cfg.App.Env,
	)

	// 初始化追踪
	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: cfg.App.Name,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		log.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdown(ctx); err != nil {
			log.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// Ollama 客户端
	llmClient := llm.NewClient(&cfg.Ollama)
	if !llmClient.Ping(ctx) {
		log.Warn("ollama not reachable at startup", "base_url", cfg.Ollama.BaseURL)
	}

	// 工作流仓储：Redis 启用时持久化，否则内存
	var (
		repo        repository.WorkflowRepository
		redisClient *redisinfra.Client
		limiter     middleware.RateLimiter
	)
	if cfg.Cache.Redis.Enabled {
		redisClient, err = redisinfra.NewClient(&cfg.Cache.Redis)
		if err != nil {
			logger.Fatal(ctx, "failed to connect redis", err)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Error("failed to close redis", "error", err)
			}
		}()
		repo = redisinfra.NewWorkflowRepo(redisClient)
		limiter = redisinfra.NewRateLimiter(redisClient)
	} else {
		repo = memory.NewWorkflowRepo()
	}

	// 应用服务与处理器
	svc := story.NewService(repo, llmClient, &cfg.Story, cfg.Ollama.DefaultModel)
	handlers := router.Handlers{
		Workflow: handler.NewWorkflowHandler(svc),
		Story:    handler.NewStoryHandler(llmClient, &cfg.Story, &cfg.Ollama),
		Health:   handler.NewHealthHandler(llmClient, redisClient),
	}

	r := router.New(cfg, handlers, limiter)

	// 创建 HTTP 服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.HTTP.Host, cfg.Server.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:  cfg.Server.HTTP.IdleTimeout,
	}

	// 启动服务器
	go func() {
		log.Info("http server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// 优雅关闭
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("server exited")
}
