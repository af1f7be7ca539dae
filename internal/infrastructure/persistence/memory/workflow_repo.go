// Package memory 提供进程内存级的工作流仓储实现
package memory

import (
	"context"
	"sort"
	"sync"

	"ai-story-writer-api/internal/domain/entity"
	"ai-story-writer-api/internal/domain/repository"
	apperrors "ai-story-writer-api/pkg/errors"
)

// WorkflowRepo 进程生命周期内的键值存储
// 跨键并发读写安全；任何具有相同键值语义的持久化存储都可以直接替换它。
// 存取均为深拷贝，调用方持有的对象与存储内的规范副本互不共享。
type WorkflowRepo struct {
	mu        sync.RWMutex
	workflows map[string]*entity.Workflow
}

var _ repository.WorkflowRepository = (*WorkflowRepo)(nil)

// NewWorkflowRepo 创建内存工作流仓储
func NewWorkflowRepo() *WorkflowRepo {
	return &WorkflowRepo{
		workflows: make(map[string]*entity.Workflow),
	}
}

// Create 存储新工作流
func (r *WorkflowRepo) Create(_ context.Context, workflow *entity.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workflows[workflow.ID]; exists {
		return apperrors.New(apperrors.CodeConflict, "workflow already exists").WithDetail(workflow.ID)
	}
	r.workflows[workflow.ID] = workflow.Clone()
	return nil
}

// GetByID 按 ID 获取工作流
func (r *WorkflowRepo) GetByID(_ context.Context, id string) (*entity.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	workflow, ok := r.workflows[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.CodeWorkflowNotFound, "workflow %s not found", id)
	}
	return workflow.Clone(), nil
}

// List 列出所有工作流，按创建时间排序
func (r *WorkflowRepo) List(_ context.Context) ([]*entity.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*entity.Workflow, 0, len(r.workflows))
	for _, workflow := range r.workflows {
		out = append(out, workflow.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Save 回写工作流
func (r *WorkflowRepo) Save(_ context.Context, workflow *entity.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.workflows[workflow.ID]; !ok {
		return apperrors.Newf(apperrors.CodeWorkflowNotFound, "workflow %s not found", workflow.ID)
	}
	r.workflows[workflow.ID] = workflow.Clone()
	return nil
}

// Delete 删除工作流
func (r *WorkflowRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.workflows[id]; !ok {
		return apperrors.Newf(apperrors.CodeWorkflowNotFound, "workflow %s not found", id)
	}
	delete(r.workflows, id)
	return nil
}
