package story

import (
	"context"

	"ai-story-writer-api/internal/domain/entity"
	"ai-story-writer-api/pkg/logger"
)

// runChapterPipeline 按三道工序生成章节：细纲、对白、正文
// 每道工序依赖上一道的输出，全部成功后才组装章节对象。
func (s *Service) runChapterPipeline(ctx context.Context, workflow *entity.Workflow, chapterOutline entity.ChapterOutline, additionalInstructions string) (*entity.GeneratedChapter, error) {
	ctx, span := tracer.Start(ctx, "story.runChapterPipeline")
	defer span.End()

	logger.Debug(ctx, "generating chapter outline")
	detailedOutline, err := s.generator.Complete(ctx, GenerateRequest{
		Prompt:       buildChapterOutlinePrompt(workflow, chapterOutline, additionalInstructions),
		Model:        workflow.Model,
		Temperature:  workflow.Temperature,
		TopP:         workflow.TopP,
		SystemPrompt: SystemPromptChapterOutliner,
	})
	if err != nil {
		return nil, err
	}

	logger.Debug(ctx, "generating chapter dialogue")
	dialogue, err := s.generator.Complete(ctx, GenerateRequest{
		Prompt:       buildDialoguePrompt(workflow, chapterOutline, detailedOutline),
		Model:        workflow.Model,
		Temperature:  workflow.Temperature,
		TopP:         workflow.TopP,
		SystemPrompt: SystemPromptDialogueWriter,
	})
	if err != nil {
		return nil, err
	}

	logger.Debug(ctx, "generating chapter content")
	content, err := s.generator.Complete(ctx, GenerateRequest{
		Prompt:       buildChapterContentPrompt(workflow, detailedOutline, dialogue),
		Model:        workflow.Model,
		Temperature:  workflow.Temperature,
		TopP:         workflow.TopP,
		SystemPrompt: SystemPromptNovelist,
	})
	if err != nil {
		return nil, err
	}

	return &entity.GeneratedChapter{
		ChapterNumber: chapterOutline.ChapterNumber,
		Title:         chapterOutline.Title,
		Outline:       detailedOutline,
		Dialogue:      dialogue,
		Content:       content,
		WordCount:     CountWords(content),
	}, nil
}
