// Package story 实现多阶段故事生成工作流引擎
package story

import (
	"context"
)

// GenerateRequest 单次文本生成请求
type GenerateRequest struct {
	Prompt       string
	Model        string
	Temperature  float64
	TopP         float64
	SystemPrompt string
}

// StreamChunk 流式生成的单个文本片段
type StreamChunk struct {
	Content string
	// Done 为 true 表示服务端发出了完成信号
	Done bool
}

// TextGenerator 外部文本生成服务端口
// 调用可能长达数分钟；实现必须尊重 ctx 取消并受超时约束。
type TextGenerator interface {
	// Complete 同步生成完整文本
	Complete(ctx context.Context, req GenerateRequest) (string, error)
	// Stream 增量生成文本片段；片段通道在完成信号或错误后关闭，
	// 错误通道最多投递一个错误。
	Stream(ctx context.Context, req GenerateRequest) (<-chan StreamChunk, <-chan error)
	// ListModels 列出可用模型
	ListModels(ctx context.Context) ([]string, error)
	// Ping 检查服务可达性
	Ping(ctx context.Context) bool
}
