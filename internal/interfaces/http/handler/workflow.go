package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/gin-gonic/gin"

	"ai-story-writer-api/internal/application/story"
	"ai-story-writer-api/internal/interfaces/http/dto"
	"ai-story-writer-api/pkg/logger"
)

// WorkflowHandler 故事工作流处理器
type WorkflowHandler struct {
	svc *story.Service
}

// NewWorkflowHandler 创建工作流处理器
func NewWorkflowHandler(svc *story.Service) *WorkflowHandler {
	return &WorkflowHandler{svc: svc}
}

// bindChapterNumber 解析路径中的章节号
func bindChapterNumber(c *gin.Context) (int, bool) {
	number, err := strconv.Atoi(c.Param("chapter_number"))
	if err != nil || number < 1 {
		dto.BadRequest(c, "invalid chapter number")
		return 0, false
	}
	return number, true
}

// Create 创建工作流
// @Summary 创建故事工作流
// @Description 以初始创意创建多阶段故事生成工作流
// @Tags Workflows
// @Accept json
// @Produce json
// @Param body body dto.CreateWorkflowRequest true "工作流参数"
// @Success 201 {object} dto.Response[dto.WorkflowResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /api/workflow/create [post]
func (h *WorkflowHandler) Create(c *gin.Context) {
	var req dto.CreateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	workflow, err := h.svc.CreateWorkflow(c.Request.Context(), story.CreateWorkflowInput{
		Prompt:      req.Prompt,
		Model:       req.Model,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	})
	if err != nil {
		respondError(c, err, "failed to create workflow")
		return
	}

	dto.Created(c, dto.WorkflowResponse{
		Workflow: workflow,
		Message:  "Workflow created successfully",
	})
}

// Get 获取工作流
// @Summary 获取工作流详情
// @Tags Workflows
// @Produce json
// @Param workflow_id path string true "工作流 ID"
// @Success 200 {object} dto.Response[dto.WorkflowResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/workflow/{workflow_id} [get]
func (h *WorkflowHandler) Get(c *gin.Context) {
	workflow, err := h.svc.GetWorkflow(c.Request.Context(), c.Param("workflow_id"))
	if err != nil {
		respondError(c, err, "failed to get workflow")
		return
	}

	dto.Success(c, dto.WorkflowResponse{
		Workflow: workflow,
		Message:  "Workflow retrieved successfully",
	})
}

// List 列出所有工作流
// @Summary 列出所有工作流
// @Tags Workflows
// @Produce json
// @Success 200 {object} dto.Response[dto.WorkflowListResponse]
// @Router /api/workflows [get]
func (h *WorkflowHandler) List(c *gin.Context) {
	workflows, err := h.svc.ListWorkflows(c.Request.Context())
	if err != nil {
		respondError(c, err, "failed to list workflows")
		return
	}

	dto.Success(c, dto.WorkflowListResponse{
		Workflows: workflows,
		Total:     len(workflows),
	})
}

// Delete 删除工作流
// @Summary 删除工作流
// @Tags Workflows
// @Produce json
// @Param workflow_id path string true "工作流 ID"
// @Success 200 {object} dto.Response[string]
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/workflow/{workflow_id} [delete]
func (h *WorkflowHandler) Delete(c *gin.Context) {
	id := c.Param("workflow_id")
	if err := h.svc.DeleteWorkflow(c.Request.Context(), id); err != nil {
		respondError(c, err, "failed to delete workflow")
		return
	}
	dto.Success(c, fmt.Sprintf("Workflow %s deleted successfully", id))
}

// GenerateCharactersSettings 第一阶段：生成人物与设定
// @Summary 生成人物与故事设定
// @Tags Workflows
// @Accept json
// @Produce json
// @Param workflow_id path string true "工作流 ID"
// @Param body body dto.GenerateCharactersSettingsRequest false "附加指令"
// @Success 200 {object} dto.Response[dto.WorkflowResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/workflow/{workflow_id}/characters-settings [post]
func (h *WorkflowHandler) GenerateCharactersSettings(c *gin.Context) {
	var req dto.GenerateCharactersSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	workflow, err := h.svc.GenerateCharactersSettings(c.Request.Context(), c.Param("workflow_id"), req.AdditionalInstructions)
	if err != nil {
		respondError(c, err, "failed to generate characters and settings")
		return
	}

	dto.Success(c, dto.WorkflowResponse{
		Workflow: workflow,
		Message:  "Characters and settings generated successfully",
	})
}

// GenerateOutline 第二阶段：生成故事大纲
// @Summary 生成故事大纲
// @Tags Workflows
// @Accept json
// @Produce json
// @Param workflow_id path string true "工作流 ID"
// @Param body body dto.GenerateOutlineRequest false "大纲参数"
// @Success 200 {object} dto.Response[dto.WorkflowResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/workflow/{workflow_id}/outline [post]
func (h *WorkflowHandler) GenerateOutline(c *gin.Context) {
	var req dto.GenerateOutlineRequest
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	workflow, err := h.svc.GenerateOutline(c.Request.Context(), c.Param("workflow_id"), req.TargetChapters, req.AdditionalInstructions)
	if err != nil {
		respondError(c, err, "failed to generate outline")
		return
	}

	dto.Success(c, dto.WorkflowResponse{
		Workflow: workflow,
		Message:  "Story outline generated successfully",
	})
}

// GenerateChapter 第三阶段：生成指定章节
// @Summary 生成指定章节
// @Tags Workflows
// @Accept json
// @Produce json
// @Param workflow_id path string true "工作流 ID"
// @Param chapter_number path int true "章节号"
// @Param body body dto.GenerateChapterRequest false "附加指令"
// @Success 200 {object} dto.Response[dto.WorkflowResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/workflow/{workflow_id}/chapter/{chapter_number} [post]
func (h *WorkflowHandler) GenerateChapter(c *gin.Context) {
	chapterNumber, ok := bindChapterNumber(c)
	if !ok {
		return
	}

	var req dto.GenerateChapterRequest
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	workflow, err := h.svc.GenerateChapter(c.Request.Context(), c.Param("workflow_id"), chapterNumber, req.AdditionalInstructions)
	if err != nil {
		respondError(c, err, "failed to generate chapter")
		return
	}

	dto.Success(c, dto.WorkflowResponse{
		Workflow: workflow,
		Message:  fmt.Sprintf("Chapter %d generated successfully", chapterNumber),
	})
}

// ValidateChapter 第四阶段：校验章节
// @Summary 按大纲校验章节
// @Tags Workflows
// @Produce json
// @Param workflow_id path string true "工作流 ID"
// @Param chapter_number path int true "章节号"
// @Success 200 {object} dto.Response[dto.WorkflowResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/workflow/{workflow_id}/chapter/{chapter_number}/validate [post]
func (h *WorkflowHandler) ValidateChapter(c *gin.Context) {
	chapterNumber, ok := bindChapterNumber(c)
	if !ok {
		return
	}

	workflow, err := h.svc.ValidateChapter(c.Request.Context(), c.Param("workflow_id"), chapterNumber)
	if err != nil {
		respondError(c, err, "failed to validate chapter")
		return
	}

	dto.Success(c, dto.WorkflowResponse{
		Workflow: workflow,
		Message:  fmt.Sprintf("Chapter %d validated successfully", chapterNumber),
	})
}

// GenerateAllChapters 批量生成剩余章节并流式推送进度
// @Summary 批量生成剩余章节
// @Description 按大纲顺序生成所有未生成章节，经校验门控与有界重生，进度以 data 帧流式推送
// @Tags Workflows
// @Accept json
// @Produce text/plain
// @Param workflow_id path string true "工作流 ID"
// @Param body body dto.GenerateAllChaptersRequest false "批量参数"
// @Success 200 "event stream"
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/workflow/{workflow_id}/generate-all-chapters [post]
func (h *WorkflowHandler) GenerateAllChapters(c *gin.Context) {
	var req dto.GenerateAllChaptersRequest
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	events, err := h.svc.GenerateAllChapters(ctx, c.Param("workflow_id"), req.AdditionalInstructions, req.ValidationThreshold)
	if err != nil {
		respondError(c, err, "failed to generate all chapters")
		return
	}

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				logger.Error(ctx, "failed to marshal progress event", err)
				return false
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			return true

		case <-ctx.Done():
			return false
		}
	})
}
