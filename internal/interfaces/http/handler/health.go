package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ai-story-writer-api/internal/application/story"
	"ai-story-writer-api/internal/infrastructure/persistence/redis"
	"ai-story-writer-api/internal/interfaces/http/dto"
)

// HealthHandler 健康检查处理器
type HealthHandler struct {
	generator story.TextGenerator
	redis     *redis.Client
}

// NewHealthHandler 创建健康检查处理器
// redisClient 可以为 nil，内存仓储模式下不参与检查。
func NewHealthHandler(generator story.TextGenerator, redisClient *redis.Client) *HealthHandler {
	return &HealthHandler{
		generator: generator,
		redis:     redisClient,
	}
}

// Health 健康检查接口
// @Summary 健康检查
// @Description 检查服务与 Ollama 的连接状态
// @Tags System
// @Produce json
// @Success 200 {object} dto.HealthResponse
// @Router /api/health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	ctx := c.Request.Context()

	connected := h.generator.Ping(ctx)
	modelCount := 0
	if connected {
		if models, err := h.generator.ListModels(ctx); err == nil {
			modelCount = len(models)
		}
	}

	status := "healthy"
	if !connected {
		status = "degraded"
	}

	c.JSON(http.StatusOK, dto.HealthResponse{
		Status:          status,
		OllamaConnected: connected,
		AvailableModels: modelCount,
	})
}

type readinessCheck struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
}

type readinessResponse struct {
	Status string                     `json:"status"`
	Checks map[string]*readinessCheck `json:"checks,omitempty"`
}

// Ready 就绪检查接口
// @Summary 就绪检查
// @Description 检查服务是否可以接收流量
// @Tags System
// @Produce json
// @Success 200 {object} readinessResponse
// @Router /ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]*readinessCheck{
		"ollama": {Status: "unknown"},
		"redis":  {Status: "disabled"},
	}
	ready := true

	// Ollama（必需）
	start := time.Now()
	if h.generator.Ping(ctx) {
		checks["ollama"].Status = "ok"
	} else {
		checks["ollama"].Status = "error"
		checks["ollama"].Error = "ollama unreachable"
		ready = false
	}
	checks["ollama"].LatencyMs = time.Since(start).Milliseconds()

	// Redis（可选，启用时必需）
	if h.redis != nil {
		checks["redis"] = &readinessCheck{Status: "unknown"}
		start = time.Now()
		err := h.redis.HealthCheck(ctx)
		checks["redis"].LatencyMs = time.Since(start).Milliseconds()
		if err != nil {
			checks["redis"].Status = "error"
			checks["redis"].Error = err.Error()
			ready = false
		} else {
			checks["redis"].Status = "ok"
		}
	}

	resp := readinessResponse{Status: "ok", Checks: checks}
	if !ready {
		resp.Status = "not_ready"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Live 存活检查接口
// @Summary 存活检查
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string
// @Router /live [get]
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
