// Package repository 定义领域仓储接口
package repository

import (
	"context"

	"ai-story-writer-api/internal/domain/entity"
)

// WorkflowRepository 工作流仓储
// 实现必须支持不同键之间的并发读写；同一工作流的阶段操作由调用方串行化。
type WorkflowRepository interface {
	// Create 存储新工作流
	Create(ctx context.Context, workflow *entity.Workflow) error
	// GetByID 按 ID 获取工作流，未找到时返回 ErrWorkflowNotFound
	GetByID(ctx context.Context, id string) (*entity.Workflow, error)
	// List 列出所有工作流，顺序不保证有意义
	List(ctx context.Context) ([]*entity.Workflow, error)
	// Save 回写工作流的最新状态
	Save(ctx context.Context, workflow *entity.Workflow) error
	// Delete 删除工作流，未找到时返回 ErrWorkflowNotFound
	Delete(ctx context.Context, id string) error
}
