package story

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ai-story-writer-api/internal/config"
	"ai-story-writer-api/internal/domain/entity"
	"ai-story-writer-api/internal/domain/repository"
	apperrors "ai-story-writer-api/pkg/errors"
	"ai-story-writer-api/pkg/logger"
	"ai-story-writer-api/pkg/metrics"
)

var tracer = otel.Tracer("story")

// Service 故事工作流应用服务
// 同一工作流上的阶段操作通过按 ID 的互斥锁串行执行，
// 不同工作流之间完全并行。
type Service struct {
	repo         repository.WorkflowRepository
	generator    TextGenerator
	storyCfg     *config.StoryConfig
	defaultModel string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService 创建工作流服务
func NewService(repo repository.WorkflowRepository, generator TextGenerator, storyCfg *config.StoryConfig, defaultModel string) *Service {
	return &Service{
		repo:         repo,
		generator:    generator,
		storyCfg:     storyCfg,
		defaultModel: defaultModel,
		locks:        make(map[string]*sync.Mutex),
	}
}

// lockWorkflow 获取工作流级互斥锁
func (s *Service) lockWorkflow(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// releaseLock 工作流删除后回收互斥锁
func (s *Service) releaseLock(id string) {
	s.mu.Lock()
	delete(s.locks, id)
	s.mu.Unlock()
}

// CreateWorkflowInput 创建工作流的参数
type CreateWorkflowInput struct {
	Prompt      string
	Model       string
	Temperature *float64
	TopP        *float64
}

// CreateWorkflow 创建新的故事工作流
func (s *Service) CreateWorkflow(ctx context.Context, input CreateWorkflowInput) (*entity.Workflow, error) {
	model := input.Model
	if model == "" {
		model = s.defaultModel
	}
	temperature := s.storyCfg.DefaultTemperature
	if input.Temperature != nil {
		temperature = *input.Temperature
	}
	topP := s.storyCfg.DefaultTopP
	if input.TopP != nil {
		topP = *input.TopP
	}

	workflow := entity.NewWorkflow(input.Prompt, model, temperature, topP)
	if err := s.repo.Create(ctx, workflow); err != nil {
		return nil, err
	}

	logger.Info(ctx, "created workflow", "workflow_id", workflow.ID, "model", model)
	return workflow, nil
}

// GetWorkflow 按 ID 获取工作流
func (s *Service) GetWorkflow(ctx context.Context, id string) (*entity.Workflow, error) {
	return s.repo.GetByID(ctx, id)
}

// ListWorkflows 列出所有工作流
func (s *Service) ListWorkflows(ctx context.Context) ([]*entity.Workflow, error) {
	return s.repo.List(ctx)
}

// DeleteWorkflow 删除工作流
func (s *Service) DeleteWorkflow(ctx context.Context, id string) error {
	unlock := s.lockWorkflow(id)
	defer unlock()

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.releaseLock(id)
	logger.Info(ctx, "deleted workflow", "workflow_id", id)
	return nil
}

// GenerateCharactersSettings 第一阶段：生成人物与故事设定
func (s *Service) GenerateCharactersSettings(ctx context.Context, id, additionalInstructions string) (*entity.Workflow, error) {
	unlock := s.lockWorkflow(id)
	defer unlock()

	ctx, span := tracer.Start(ctx, "story.GenerateCharactersSettings",
		trace.WithAttributes(attribute.String("workflow.id", id)))
	defer span.End()
	ctx = logger.WithContext(ctx, logger.WorkflowIDKey, id)

	workflow, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	prompt := buildCharactersSettingsPrompt(workflow.OriginalPrompt, additionalInstructions)
	response, err := s.generator.Complete(ctx, GenerateRequest{
		Prompt:       prompt,
		Model:        workflow.Model,
		Temperature:  workflow.Temperature,
		TopP:         workflow.TopP,
		SystemPrompt: SystemPromptStoryPlanner,
	})
	if err != nil {
		metrics.WorkflowStageTotal.WithLabelValues("characters_settings", "error").Inc()
		logger.Error(ctx, "failed to generate characters and settings", err)
		return nil, err
	}

	characters, settings, usedFallback := parseCharactersSettings(response)
	if usedFallback {
		logger.Warn(ctx, "failed to parse characters/settings response, using fallback")
	}

	workflow.Characters = characters
	workflow.Settings = settings
	workflow.AdvanceTo(entity.StepOutline)
	workflow.Touch()

	if err := s.repo.Save(ctx, workflow); err != nil {
		return nil, err
	}

	metrics.WorkflowStageTotal.WithLabelValues("characters_settings", "ok").Inc()
	logger.Info(ctx, "generated characters and settings", "characters", len(characters))
	return workflow, nil
}

// GenerateOutline 第二阶段：生成故事大纲
func (s *Service) GenerateOutline(ctx context.Context, id string, targetChapters int, additionalInstructions string) (*entity.Workflow, error) {
	unlock := s.lockWorkflow(id)
	defer unlock()

	ctx, span := tracer.Start(ctx, "story.GenerateOutline",
		trace.WithAttributes(attribute.String("workflow.id", id)))
	defer span.End()
	ctx = logger.WithContext(ctx, logger.WorkflowIDKey, id)

	workflow, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(workflow.Characters) == 0 || workflow.Settings == nil {
		return nil, apperrors.New(apperrors.CodeStageNotReady, "characters and settings must be generated first")
	}

	prompt := buildOutlinePrompt(workflow, targetChapters, additionalInstructions)
	response, err := s.generator.Complete(ctx, GenerateRequest{
		Prompt:       prompt,
		Model:        workflow.Model,
		Temperature:  workflow.Temperature,
		TopP:         workflow.TopP,
		SystemPrompt: SystemPromptStoryOutliner,
	})
	if err != nil {
		metrics.WorkflowStageTotal.WithLabelValues("outline", "error").Inc()
		logger.Error(ctx, "failed to generate outline", err)
		return nil, err
	}

	outline, usedFallback := parseOutline(response)
	if usedFallback {
		logger.Warn(ctx, "failed to parse outline response, using fallback")
	}

	workflow.Outline = outline
	workflow.TotalChaptersPlanned = len(outline.Chapters)
	workflow.AdvanceTo(entity.StepChapterGeneration)
	workflow.Touch()

	if err := s.repo.Save(ctx, workflow); err != nil {
		return nil, err
	}

	metrics.WorkflowStageTotal.WithLabelValues("outline", "ok").Inc()
	logger.Info(ctx, "generated outline", "chapters", len(outline.Chapters))
	return workflow, nil
}

// GenerateChapter 第三阶段：生成指定章节（细纲、对白、正文三道工序）
// 同号章节原地替换，不推进工作流阶段。
func (s *Service) GenerateChapter(ctx context.Context, id string, chapterNumber int, additionalInstructions string) (*entity.Workflow, error) {
	unlock := s.lockWorkflow(id)
	defer unlock()
	return s.generateChapterLocked(ctx, id, chapterNumber, additionalInstructions)
}

func (s *Service) generateChapterLocked(ctx context.Context, id string, chapterNumber int, additionalInstructions string) (*entity.Workflow, error) {
	ctx, span := tracer.Start(ctx, "story.GenerateChapter",
		trace.WithAttributes(
			attribute.String("workflow.id", id),
			attribute.Int("chapter.number", chapterNumber),
		))
	defer span.End()
	ctx = logger.WithContext(ctx, logger.WorkflowIDKey, id)
	ctx = logger.WithContext(ctx, logger.ChapterKey, chapterNumber)

	workflow, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if workflow.Outline == nil {
		return nil, apperrors.New(apperrors.CodeStageNotReady, "story outline must be generated first")
	}
	if chapterNumber < 1 || chapterNumber > len(workflow.Outline.Chapters) {
		return nil, apperrors.Newf(apperrors.CodeChapterNotFound, "chapter %d not found in outline", chapterNumber)
	}

	chapterOutline := workflow.Outline.Chapters[chapterNumber-1]

	start := time.Now()
	chapter, err := s.runChapterPipeline(ctx, workflow, chapterOutline, additionalInstructions)
	if err != nil {
		metrics.WorkflowStageTotal.WithLabelValues("chapter_generation", "error").Inc()
		logger.Error(ctx, "failed to generate chapter", err)
		return nil, err
	}
	metrics.ChapterGenerationDuration.WithLabelValues(workflow.Model).Observe(time.Since(start).Seconds())
	metrics.ChapterWordCount.Observe(float64(chapter.WordCount))

	workflow.UpsertChapter(chapter)
	workflow.Touch()

	if err := s.repo.Save(ctx, workflow); err != nil {
		return nil, err
	}

	metrics.WorkflowStageTotal.WithLabelValues("chapter_generation", "ok").Inc()
	logger.Info(ctx, "generated chapter", "word_count", chapter.WordCount)
	return workflow, nil
}

// ValidateChapter 第四阶段：按大纲校验章节
func (s *Service) ValidateChapter(ctx context.Context, id string, chapterNumber int) (*entity.Workflow, error) {
	unlock := s.lockWorkflow(id)
	defer unlock()
	return s.validateChapterLocked(ctx, id, chapterNumber)
}

func (s *Service) validateChapterLocked(ctx context.Context, id string, chapterNumber int) (*entity.Workflow, error) {
	ctx, span := tracer.Start(ctx, "story.ValidateChapter",
		trace.WithAttributes(
			attribute.String("workflow.id", id),
			attribute.Int("chapter.number", chapterNumber),
		))
	defer span.End()
	ctx = logger.WithContext(ctx, logger.WorkflowIDKey, id)
	ctx = logger.WithContext(ctx, logger.ChapterKey, chapterNumber)

	workflow, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	chapter := workflow.Chapter(chapterNumber)
	if chapter == nil {
		return nil, apperrors.Newf(apperrors.CodeChapterNotFound, "chapter %d not found", chapterNumber)
	}
	if workflow.Outline == nil || chapterNumber > len(workflow.Outline.Chapters) {
		return nil, apperrors.Newf(apperrors.CodeChapterNotFound, "chapter %d not found in outline", chapterNumber)
	}
	outlineChapter := workflow.Outline.Chapters[chapterNumber-1]

	prompt := buildValidationPrompt(outlineChapter, chapter)
	// 校验使用固定低温度，评分更稳定
	response, err := s.generator.Complete(ctx, GenerateRequest{
		Prompt:       prompt,
		Model:        workflow.Model,
		Temperature:  s.storyCfg.ValidationTemperature,
		TopP:         workflow.TopP,
		SystemPrompt: SystemPromptStoryEditor,
	})
	if err != nil {
		metrics.WorkflowStageTotal.WithLabelValues("validation", "error").Inc()
		logger.Error(ctx, "failed to validate chapter", err)
		return nil, err
	}

	score, feedback := parseValidation(response)
	chapter.ValidationScore = &score
	chapter.ValidationFeedback = feedback
	workflow.Touch()

	if err := s.repo.Save(ctx, workflow); err != nil {
		return nil, err
	}

	metrics.WorkflowStageTotal.WithLabelValues("validation", "ok").Inc()
	metrics.ValidationScore.Observe(score)
	logger.Info(ctx, "validated chapter", "score", score)
	return workflow, nil
}

// ValidationThreshold 返回配置的默认校验阈值
func (s *Service) ValidationThreshold() float64 {
	return s.storyCfg.ValidationThreshold
}
