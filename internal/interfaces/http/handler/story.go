package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"ai-story-writer-api/internal/application/story"
	"ai-story-writer-api/internal/config"
	"ai-story-writer-api/internal/interfaces/http/dto"
	"ai-story-writer-api/pkg/logger"
)

// StoryHandler 一次性故事生成处理器
type StoryHandler struct {
	generator story.TextGenerator
	storyCfg  *config.StoryConfig
	ollamaCfg *config.OllamaConfig
}

// NewStoryHandler 创建故事生成处理器
func NewStoryHandler(generator story.TextGenerator, storyCfg *config.StoryConfig, ollamaCfg *config.OllamaConfig) *StoryHandler {
	return &StoryHandler{
		generator: generator,
		storyCfg:  storyCfg,
		ollamaCfg: ollamaCfg,
	}
}

// buildGenerateRequest 组装生成请求，附加续写上下文与默认采样参数
func (h *StoryHandler) buildGenerateRequest(req dto.StoryGenerationRequest) story.GenerateRequest {
	temperature := h.storyCfg.DefaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	topP := h.storyCfg.DefaultTopP
	if req.TopP != nil {
		topP = *req.TopP
	}
	systemPrompt := req.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = story.SystemPromptStoryteller
	}

	return story.GenerateRequest{
		Prompt:       story.BuildContinuationPrompt(req.ContinueStory, req.Prompt),
		Model:        req.Model,
		Temperature:  temperature,
		TopP:         topP,
		SystemPrompt: systemPrompt,
	}
}

// Generate 一次性生成完整故事
// @Summary 生成完整故事
// @Description 非流式生成，返回完整故事文本与统计信息
// @Tags Stories
// @Accept json
// @Produce json
// @Param body body dto.StoryGenerationRequest true "生成参数"
// @Success 200 {object} dto.Response[dto.StoryResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 502 {object} dto.ErrorResponse
// @Router /api/generate [post]
func (h *StoryHandler) Generate(c *gin.Context) {
	var req dto.StoryGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	start := time.Now()
	content, err := h.generator.Complete(c.Request.Context(), h.buildGenerateRequest(req))
	if err != nil {
		respondError(c, err, "failed to generate story")
		return
	}

	modelUsed := req.Model
	if modelUsed == "" {
		modelUsed = h.ollamaCfg.DefaultModel
	}

	dto.Success(c, dto.StoryResponse{
		Content:        content,
		ModelUsed:      modelUsed,
		GenerationTime: time.Since(start).Seconds(),
		WordCount:      story.CountWords(content),
		CharacterCount: len(content),
	})
}

// GenerateStream 流式生成故事
// @Summary 流式生成故事
// @Description 以 data 帧流式推送生成片段，结束时推送完成标记
// @Tags Stories
// @Accept json
// @Produce text/plain
// @Param body body dto.StoryGenerationRequest true "生成参数"
// @Success 200 "event stream"
// @Failure 400 {object} dto.ErrorResponse
// @Router /api/generate/stream [post]
func (h *StoryHandler) GenerateStream(c *gin.Context) {
	var req dto.StoryGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	chunks, errs := h.generator.Stream(ctx, h.buildGenerateRequest(req))

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	writeChunk := func(w io.Writer, chunk dto.StoryChunk) {
		payload, err := json.Marshal(chunk)
		if err != nil {
			logger.Error(ctx, "failed to marshal story chunk", err)
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
	}

	c.Stream(func(w io.Writer) bool {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				// 片段通道关闭后错误通道必已就绪
				if err := <-errs; err != nil {
					writeChunk(w, dto.StoryChunk{Content: "Error: " + err.Error(), IsComplete: true})
					return false
				}
				writeChunk(w, dto.StoryChunk{Content: "", IsComplete: true})
				return false
			}
			if chunk.Content != "" {
				writeChunk(w, dto.StoryChunk{Content: chunk.Content})
			}
			return true

		case <-ctx.Done():
			return false
		}
	})
}

// Models 列出可用模型
// @Summary 列出可用模型
// @Tags Stories
// @Produce json
// @Success 200 {object} dto.Response[dto.ModelsResponse]
// @Failure 502 {object} dto.ErrorResponse
// @Router /api/models [get]
func (h *StoryHandler) Models(c *gin.Context) {
	names, err := h.generator.ListModels(c.Request.Context())
	if err != nil {
		respondError(c, err, "failed to get models")
		return
	}

	models := make([]dto.ModelInfo, 0, len(names))
	for _, name := range names {
		models = append(models, dto.ModelInfo{Name: name})
	}

	dto.Success(c, dto.ModelsResponse{
		Models:       models,
		DefaultModel: h.ollamaCfg.DefaultModel,
	})
}

// PromptSuggestions 返回写作灵感提示词
// @Summary 写作灵感
// @Tags Stories
// @Produce json
// @Success 200 {object} dto.Response[dto.SuggestionsResponse]
// @Router /api/prompts/suggestions [get]
func (h *StoryHandler) PromptSuggestions(c *gin.Context) {
	dto.Success(c, dto.SuggestionsResponse{
		Suggestions: story.PromptSuggestions,
	})
}
