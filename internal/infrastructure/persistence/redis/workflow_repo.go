// Package redis 提供 Redis 持久化与限流实现
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"ai-story-writer-api/internal/domain/entity"
	"ai-story-writer-api/internal/domain/repository"
	apperrors "ai-story-writer-api/pkg/errors"
)

const (
	workflowKeyPrefix = "workflow:"
	workflowIndexKey  = "workflows"
)

// WorkflowRepo Redis 实现的工作流仓储
// 与内存实现具有相同的键值语义，可作为持久化替代直接接入。
type WorkflowRepo struct {
	client *Client
	group  singleflight.Group
}

var _ repository.WorkflowRepository = (*WorkflowRepo)(nil)

// NewWorkflowRepo 创建 Redis 工作流仓储
func NewWorkflowRepo(client *Client) *WorkflowRepo {
	return &WorkflowRepo{client: client}
}

func workflowKey(id string) string {
	return workflowKeyPrefix + id
}

// Create 存储新工作流
func (r *WorkflowRepo) Create(ctx context.Context, workflow *entity.Workflow) error {
	ctx, span := tracer.Start(ctx, "workflow_repo.Create",
		trace.WithAttributes(attribute.String("workflow.id", workflow.ID)))
	defer span.End()

	payload, err := json.Marshal(workflow)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeCacheError, "failed to marshal workflow")
	}

	ok, err := r.client.rdb.SetNX(ctx, workflowKey(workflow.ID), payload, 0).Result()
	if err != nil {
		span.RecordError(err)
		return apperrors.Wrap(err, apperrors.CodeCacheError, "failed to store workflow")
	}
	if !ok {
		return apperrors.New(apperrors.CodeConflict, "workflow already exists").WithDetail(workflow.ID)
	}

	if err := r.client.rdb.SAdd(ctx, workflowIndexKey, workflow.ID).Err(); err != nil {
		span.RecordError(err)
		return apperrors.Wrap(err, apperrors.CodeCacheError, "failed to index workflow")
	}
	return nil
}

// GetByID 按 ID 获取工作流，并发读取通过 singleflight 合并
func (r *WorkflowRepo) GetByID(ctx context.Context, id string) (*entity.Workflow, error) {
	ctx, span := tracer.Start(ctx, "workflow_repo.GetByID",
		trace.WithAttributes(attribute.String("workflow.id", id)))
	defer span.End()

	v, err, _ := r.group.Do(id, func() (interface{}, error) {
		raw, err := r.client.rdb.Get(ctx, workflowKey(id)).Bytes()
		if err != nil {
			if IsNil(err) {
				return nil, apperrors.Newf(apperrors.CodeWorkflowNotFound, "workflow %s not found", id)
			}
			return nil, apperrors.Wrap(err, apperrors.CodeCacheError, "failed to load workflow")
		}

		var workflow entity.Workflow
		if err := json.Unmarshal(raw, &workflow); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeCacheError, "failed to unmarshal workflow")
		}
		return &workflow, nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return v.(*entity.Workflow), nil
}

// List 列出所有工作流
func (r *WorkflowRepo) List(ctx context.Context) ([]*entity.Workflow, error) {
	ctx, span := tracer.Start(ctx, "workflow_repo.List")
	defer span.End()

	ids, err := r.client.rdb.SMembers(ctx, workflowIndexKey).Result()
	if err != nil {
		span.RecordError(err)
		return nil, apperrors.Wrap(err, apperrors.CodeCacheError, "failed to list workflows")
	}
	if len(ids) == 0 {
		return []*entity.Workflow{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = workflowKey(id)
	}

	values, err := r.client.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		span.RecordError(err)
		return nil, apperrors.Wrap(err, apperrors.CodeCacheError, "failed to load workflows")
	}

	out := make([]*entity.Workflow, 0, len(values))
	for _, v := range values {
		// 索引中的条目可能在 MGET 之前被并发删除
		s, ok := v.(string)
		if !ok {
			continue
		}
		var workflow entity.Workflow
		if err := json.Unmarshal([]byte(s), &workflow); err != nil {
			continue
		}
		out = append(out, &workflow)
	}
	return out, nil
}

// Save 回写工作流的最新状态
func (r *WorkflowRepo) Save(ctx context.Context, workflow *entity.Workflow) error {
	ctx, span := tracer.Start(ctx, "workflow_repo.Save",
		trace.WithAttributes(attribute.String("workflow.id", workflow.ID)))
	defer span.End()

	exists, err := r.client.rdb.Exists(ctx, workflowKey(workflow.ID)).Result()
	if err != nil {
		span.RecordError(err)
		return apperrors.Wrap(err, apperrors.CodeCacheError, "failed to check workflow")
	}
	if exists == 0 {
		return apperrors.Newf(apperrors.CodeWorkflowNotFound, "workflow %s not found", workflow.ID)
	}

	payload, err := json.Marshal(workflow)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeCacheError, "failed to marshal workflow")
	}
	if err := r.client.rdb.Set(ctx, workflowKey(workflow.ID), payload, 0).Err(); err != nil {
		span.RecordError(err)
		return apperrors.Wrap(err, apperrors.CodeCacheError, "failed to save workflow")
	}
	return nil
}

// Delete 删除工作流
func (r *WorkflowRepo) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "workflow_repo.Delete",
		trace.WithAttributes(attribute.String("workflow.id", id)))
	defer span.End()

	pipe := r.client.rdb.TxPipeline()
	delCmd := pipe.Del(ctx, workflowKey(id))
	pipe.SRem(ctx, workflowIndexKey, id)
	if _, err := pipe.Exec(ctx); err != nil && !IsNil(err) {
		span.RecordError(err)
		return apperrors.Wrap(err, apperrors.CodeCacheError, "failed to delete workflow")
	}
	if delCmd.Val() == 0 {
		return apperrors.Newf(apperrors.CodeWorkflowNotFound, "workflow %s not found", id)
	}
	return nil
}

// BuildWorkflowKey 构建工作流存储键（导出供运维工具使用）
func BuildWorkflowKey(id string) string {
	return fmt.Sprintf("%s%s", workflowKeyPrefix, id)
}
