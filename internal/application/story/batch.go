package story

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ai-story-writer-api/internal/domain/entity"
	apperrors "ai-story-writer-api/pkg/errors"
	"ai-story-writer-api/pkg/logger"
	"ai-story-writer-api/pkg/metrics"
)

// GenerateAllChapters 批量生成大纲中尚未生成的全部章节
// 每章经过生成与校验，低于阈值时重新生成，最多重试 MaxRegenerationAttempts 次。
// 进度通过返回的事件通道推送，通道在批量结束或 ctx 取消后关闭。
// 前置条件不满足时同步返回错误，不产生事件通道。
func (s *Service) GenerateAllChapters(ctx context.Context, id, additionalInstructions string, validationThreshold *float64) (<-chan ProgressEvent, error) {
	workflow, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if workflow.Outline == nil {
		return nil, apperrors.New(apperrors.CodeStageNotReady, "story outline must be generated first")
	}

	threshold := s.storyCfg.ValidationThreshold
	if validationThreshold != nil {
		threshold = *validationThreshold
	}

	events := make(chan ProgressEvent)
	go s.runBatch(ctx, id, additionalInstructions, threshold, events)
	return events, nil
}

// emit 推送事件，消费方退出后通过 ctx 取消解除阻塞
func emit(ctx context.Context, events chan<- ProgressEvent, ev ProgressEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Service) runBatch(ctx context.Context, id, additionalInstructions string, threshold float64, events chan<- ProgressEvent) {
	defer close(events)

	ctx, span := tracer.Start(ctx, "story.GenerateAllChapters",
		trace.WithAttributes(attribute.String("workflow.id", id)))
	defer span.End()
	ctx = logger.WithContext(ctx, logger.WorkflowIDKey, id)

	metrics.BatchRunsActive.Inc()
	defer metrics.BatchRunsActive.Dec()

	workflow, err := s.repo.GetByID(ctx, id)
	if err != nil {
		emit(ctx, events, ProgressEvent{
			Type:    EventError,
			Status:  StatusFailed,
			Message: err.Error(),
		})
		return
	}

	totalChapters := len(workflow.Outline.Chapters)
	maxRegen := s.storyCfg.MaxRegenerationAttempts
	pending := workflow.PendingChapters()

	if len(pending) == 0 {
		emit(ctx, events, ProgressEvent{
			Type:     EventComplete,
			Message:  "All chapters have already been generated",
			Workflow: workflow,
		})
		return
	}

	for i, chapterOutline := range pending {
		chapterNumber := chapterOutline.ChapterNumber
		regenAttempts := 0
		chapterCompleted := false

		for !chapterCompleted && regenAttempts <= maxRegen {
			if ctx.Err() != nil {
				logger.Warn(ctx, "batch generation cancelled", "chapter", chapterNumber)
				return
			}

			attemptLabel := ""
			if regenAttempts > 0 {
				attemptLabel = fmt.Sprintf(" (attempt %d)", regenAttempts+1)
			}

			if !emit(ctx, events, ProgressEvent{
				Type:          EventProgress,
				ChapterNumber: chapterNumber,
				ChapterTitle:  chapterOutline.Title,
				Current:       i + 1,
				Total:         len(pending),
				Status:        StatusGenerating,
				Attempt:       regenAttempts + 1,
				Message:       fmt.Sprintf("Generating Chapter %d: %s%s", chapterNumber, chapterOutline.Title, attemptLabel),
			}) {
				return
			}

			workflow, err = s.generateAndValidate(ctx, id, chapterNumber, chapterOutline, additionalInstructions, i+1, len(pending), regenAttempts, events)
			if err != nil {
				regenAttempts++
				metrics.ChapterRegenerationsTotal.WithLabelValues("error").Inc()
				if regenAttempts <= maxRegen {
					if !emit(ctx, events, ProgressEvent{
						Type:          EventProgress,
						ChapterNumber: chapterNumber,
						ChapterTitle:  chapterOutline.Title,
						Current:       i + 1,
						Total:         len(pending),
						Status:        StatusRetrying,
						Attempt:       regenAttempts,
						Message:       fmt.Sprintf("Error generating Chapter %d, retrying... (%s)", chapterNumber, err.Error()),
					}) {
						return
					}
					continue
				}
				// 重试耗尽，批量终止
				emit(ctx, events, ProgressEvent{
					Type:          EventError,
					ChapterNumber: chapterNumber,
					ChapterTitle:  chapterOutline.Title,
					Current:       i + 1,
					Total:         len(pending),
					Status:        StatusFailed,
					Attempts:      regenAttempts,
					Message:       fmt.Sprintf("Failed to generate Chapter %d after %d attempts: %s", chapterNumber, maxRegen, err.Error()),
				})
				return
			}

			chapter := workflow.Chapter(chapterNumber)
			score := 0.0
			if chapter.ValidationScore != nil {
				score = *chapter.ValidationScore
			}

			if score >= threshold {
				if !emit(ctx, events, ProgressEvent{
					Type:                EventProgress,
					ChapterNumber:       chapterNumber,
					ChapterTitle:        chapterOutline.Title,
					Current:             i + 1,
					Total:               len(pending),
					Status:              StatusCompleted,
					ValidationScore:     floatPtr(score),
					ValidationThreshold: floatPtr(threshold),
					Attempts:            regenAttempts + 1,
					WordCount:           chapter.WordCount,
					Message:             fmt.Sprintf("Completed Chapter %d: %s (Score: %.2f)", chapterNumber, chapterOutline.Title, score),
				}) {
					return
				}
				chapterCompleted = true
				continue
			}

			regenAttempts++
			metrics.ChapterRegenerationsTotal.WithLabelValues("below_threshold").Inc()
			if regenAttempts <= maxRegen {
				if !emit(ctx, events, ProgressEvent{
					Type:                EventProgress,
					ChapterNumber:       chapterNumber,
					ChapterTitle:        chapterOutline.Title,
					Current:             i + 1,
					Total:               len(pending),
					Status:              StatusRegenerating,
					ValidationScore:     floatPtr(score),
					ValidationThreshold: floatPtr(threshold),
					Attempt:             regenAttempts,
					Message:             fmt.Sprintf("Chapter %d scored %.2f (below %.2f). Regenerating...", chapterNumber, score, threshold),
				}) {
					return
				}
				continue
			}

			// 重试耗尽，保留最后一次结果并告警
			if !emit(ctx, events, ProgressEvent{
				Type:                EventWarning,
				ChapterNumber:       chapterNumber,
				ChapterTitle:        chapterOutline.Title,
				Current:             i + 1,
				Total:               len(pending),
				Status:              StatusCompletedWithWarning,
				ValidationScore:     floatPtr(score),
				ValidationThreshold: floatPtr(threshold),
				Attempts:            regenAttempts,
				WordCount:           chapter.WordCount,
				Message:             fmt.Sprintf("Chapter %d completed with low score %.2f after %d attempts", chapterNumber, score, maxRegen),
			}) {
				return
			}
			chapterCompleted = true
		}
	}

	workflow = s.finishBatch(ctx, id, workflow)

	emit(ctx, events, ProgressEvent{
		Type:          EventComplete,
		Message:       fmt.Sprintf("Successfully generated all %d remaining chapters", len(pending)),
		TotalChapters: totalChapters,
		Workflow:      workflow,
	})
}

// generateAndValidate 执行单章的生成与校验两步，并推送校验进度事件
func (s *Service) generateAndValidate(ctx context.Context, id string, chapterNumber int, chapterOutline entity.ChapterOutline, additionalInstructions string, current, total, regenAttempts int, events chan<- ProgressEvent) (*entity.Workflow, error) {
	workflow, err := s.GenerateChapter(ctx, id, chapterNumber, additionalInstructions)
	if err != nil {
		return nil, err
	}

	if !emit(ctx, events, ProgressEvent{
		Type:          EventProgress,
		ChapterNumber: chapterNumber,
		ChapterTitle:  chapterOutline.Title,
		Current:       current,
		Total:         total,
		Status:        StatusValidating,
		Attempt:       regenAttempts + 1,
		Message:       fmt.Sprintf("Validating Chapter %d: %s", chapterNumber, chapterOutline.Title),
	}) {
		return nil, ctx.Err()
	}

	workflow, err = s.ValidateChapter(ctx, id, chapterNumber)
	if err != nil {
		return nil, err
	}
	return workflow, nil
}

// finishBatch 批量结束后，若规划章节已全部生成则推进到完成阶段
func (s *Service) finishBatch(ctx context.Context, id string, workflow *entity.Workflow) *entity.Workflow {
	unlock := s.lockWorkflow(id)
	defer unlock()

	latest, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return workflow
	}
	if len(latest.PendingChapters()) == 0 && latest.CurrentStep != entity.StepCompleted {
		latest.AdvanceTo(entity.StepCompleted)
		latest.Touch()
		if err := s.repo.Save(ctx, latest); err != nil {
			logger.Error(ctx, "failed to mark workflow completed", err)
			return workflow
		}
	}
	return latest
}
