package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (r *Router) setupRoutes(h Handlers) {
	if r.cfg.Observability.Metrics.Enabled {
		path := r.cfg.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.engine.GET(path, gin.WrapH(promhttp.Handler()))
	}

	r.engine.GET("/ready", h.Health.Ready)
	r.engine.GET("/live", h.Health.Live)

	api := r.engine.Group("/api")
	{
		api.GET("/health", h.Health.Health)
		api.GET("/models", h.Story.Models)
		api.GET("/prompts/suggestions", h.Story.PromptSuggestions)

		api.POST("/generate", h.Story.Generate)
		api.POST("/generate/stream", h.Story.GenerateStream)

		api.POST("/workflow/create", h.Workflow.Create)
		api.GET("/workflows", h.Workflow.List)

		workflow := api.Group("/workflow/:workflow_id")
		{
			workflow.GET("", h.Workflow.Get)
			workflow.DELETE("", h.Workflow.Delete)
			workflow.POST("/characters-settings", h.Workflow.GenerateCharactersSettings)
			workflow.POST("/outline", h.Workflow.GenerateOutline)
			workflow.POST("/chapter/:chapter_number", h.Workflow.GenerateChapter)
			workflow.POST("/chapter/:chapter_number/validate", h.Workflow.ValidateChapter)
			workflow.POST("/generate-all-chapters", h.Workflow.GenerateAllChapters)
		}
	}

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    http.StatusNotFound,
			"message": "route not found",
		})
	})
}
