package dto

import (
	"ai-story-writer-api/internal/domain/entity"
)

// CreateWorkflowRequest 创建工作流请求
type CreateWorkflowRequest struct {
	Prompt      string   `json:"prompt" binding:"required"`
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature" binding:"omitempty,gte=0,lte=2"`
	TopP        *float64 `json:"top_p" binding:"omitempty,gte=0,lte=1"`
}

// GenerateCharactersSettingsRequest 人物与设定生成请求
type GenerateCharactersSettingsRequest struct {
	AdditionalInstructions string `json:"additional_instructions"`
}

// GenerateOutlineRequest 大纲生成请求
type GenerateOutlineRequest struct {
	TargetChapters         int    `json:"target_chapters" binding:"omitempty,gte=1"`
	AdditionalInstructions string `json:"additional_instructions"`
}

// GenerateChapterRequest 单章生成请求
type GenerateChapterRequest struct {
	AdditionalInstructions string `json:"additional_instructions"`
}

// GenerateAllChaptersRequest 批量生成请求
type GenerateAllChaptersRequest struct {
	AdditionalInstructions string `json:"additional_instructions"`
	// ValidationThreshold 低于该评分的章节会被重新生成
	ValidationThreshold *float64 `json:"validation_threshold" binding:"omitempty,gte=0.1,lte=1.0"`
}

// WorkflowResponse 工作流响应
type WorkflowResponse struct {
	Workflow *entity.Workflow `json:"workflow"`
	Message  string           `json:"message"`
}

// WorkflowListResponse 工作流列表响应
type WorkflowListResponse struct {
	Workflows []*entity.Workflow `json:"workflows"`
	Total     int                `json:"total"`
}
