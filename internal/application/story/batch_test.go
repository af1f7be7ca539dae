package story

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-story-writer-api/internal/domain/entity"
	apperrors "ai-story-writer-api/pkg/errors"
)

// batchScript 按章节号编排批量生成行为：
// scores 为每章依次返回的校验评分队列，failGeneration 标记的章节生成始终报错。
type batchScript struct {
	mu             sync.Mutex
	scores         map[int][]float64
	failGeneration map[int]bool
}

func (b *batchScript) generator() *fakeGenerator {
	return &fakeGenerator{completeFn: func(req GenerateRequest) (string, error) {
		b.mu.Lock()
		defer b.mu.Unlock()

		if req.SystemPrompt == SystemPromptStoryEditor {
			for number := range b.scores {
				if strings.Contains(req.Prompt, fmt.Sprintf("Title: Chapter %d\n", number)) {
					queue := b.scores[number]
					score := queue[0]
					if len(queue) > 1 {
						b.scores[number] = queue[1:]
					}
					return fmt.Sprintf("SCORE: %.2f\nFEEDBACK: scripted", score), nil
				}
			}
			return "SCORE: 0.99\nFEEDBACK: scripted", nil
		}

		if req.SystemPrompt == SystemPromptChapterOutliner {
			for number, fail := range b.failGeneration {
				if fail && strings.Contains(req.Prompt, fmt.Sprintf("Chapter %d: Chapter %d\n", number, number)) {
					return "", apperrors.New(apperrors.CodeLLMProviderError, "ollama unreachable")
				}
			}
		}
		return "chapter prose with enough words to count", nil
	}}
}

func collectEvents(t *testing.T, events <-chan ProgressEvent) []ProgressEvent {
	t.Helper()
	var out []ProgressEvent
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func statuses(events []ProgressEvent) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		if ev.Type == EventComplete {
			out = append(out, EventComplete)
			continue
		}
		out = append(out, ev.Status)
	}
	return out
}

func TestGenerateAllChaptersRequiresOutline(t *testing.T) {
	s := newTestService(&fakeGenerator{})
	created := newTestWorkflow(t, s, 0)

	_, err := s.GenerateAllChapters(t.Context(), created.ID, "", nil)
	require.Error(t, err)
	require.True(t, apperrors.IsAppError(err))
	appErr := apperrors.AsAppError(err)
	assert.Equal(t, apperrors.CodeStageNotReady, appErr.Code)
}

func TestGenerateAllChaptersNothingPending(t *testing.T) {
	gen := &fakeGenerator{}
	s := newTestService(gen)
	created := newTestWorkflow(t, s, 1)

	_, err := s.GenerateChapter(t.Context(), created.ID, 1, "")
	require.NoError(t, err)
	generateCalls := gen.callCount()

	events, err := s.GenerateAllChapters(t.Context(), created.ID, "", nil)
	require.NoError(t, err)
	got := collectEvents(t, events)

	require.Len(t, got, 1)
	assert.Equal(t, EventComplete, got[0].Type)
	assert.Equal(t, "All chapters have already been generated", got[0].Message)
	require.NotNil(t, got[0].Workflow)

	// 没有待生成章节时不触发任何生成调用
	assert.Equal(t, generateCalls, gen.callCount())
}

func TestGenerateAllChaptersHappyPathWithRegeneration(t *testing.T) {
	script := &batchScript{scores: map[int][]float64{
		1: {0.8},
		2: {0.5, 0.5, 0.9},
		3: {0.75},
	}}
	s := newTestService(script.generator())
	created := newTestWorkflow(t, s, 3)

	events, err := s.GenerateAllChapters(t.Context(), created.ID, "", nil)
	require.NoError(t, err)
	got := collectEvents(t, events)

	want := []string{
		StatusGenerating, StatusValidating, StatusCompleted,
		StatusGenerating, StatusValidating, StatusRegenerating,
		StatusGenerating, StatusValidating, StatusRegenerating,
		StatusGenerating, StatusValidating, StatusCompleted,
		StatusGenerating, StatusValidating, StatusCompleted,
		EventComplete,
	}
	assert.Equal(t, want, statuses(got))

	// 首章首次通过
	first := got[2]
	assert.Equal(t, EventProgress, first.Type)
	assert.Equal(t, 1, first.ChapterNumber)
	assert.Equal(t, 1, first.Attempts)
	require.NotNil(t, first.ValidationScore)
	assert.Equal(t, 0.8, *first.ValidationScore)
	require.NotNil(t, first.ValidationThreshold)
	assert.Equal(t, 0.7, *first.ValidationThreshold)
	assert.Equal(t, "Completed Chapter 1: Chapter 1 (Score: 0.80)", first.Message)

	// 次章两次重生后通过
	regen := got[5]
	assert.Equal(t, StatusRegenerating, regen.Status)
	assert.Equal(t, 1, regen.Attempt)
	assert.Equal(t, "Chapter 2 scored 0.50 (below 0.70). Regenerating...", regen.Message)

	retryGen := got[6]
	assert.Equal(t, 2, retryGen.Attempt)
	assert.Equal(t, "Generating Chapter 2: Chapter 2 (attempt 2)", retryGen.Message)

	secondDone := got[11]
	assert.Equal(t, 3, secondDone.Attempts)
	assert.Equal(t, "Completed Chapter 2: Chapter 2 (Score: 0.90)", secondDone.Message)

	// 完成事件携带快照与规划总数
	final := got[len(got)-1]
	assert.Equal(t, "Successfully generated all 3 remaining chapters", final.Message)
	assert.Equal(t, 3, final.TotalChapters)
	require.NotNil(t, final.Workflow)
	assert.Equal(t, entity.StepCompleted, final.Workflow.CurrentStep)
	assert.Equal(t, 3, final.Workflow.ChaptersCompleted)

	// 重生只替换同号章节
	workflow, err := s.GetWorkflow(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Len(t, workflow.Chapters, 3)
}

func TestGenerateAllChaptersTerminalError(t *testing.T) {
	script := &batchScript{
		scores:         map[int][]float64{1: {0.8}},
		failGeneration: map[int]bool{2: true},
	}
	s := newTestService(script.generator())
	created := newTestWorkflow(t, s, 3)

	events, err := s.GenerateAllChapters(t.Context(), created.ID, "", nil)
	require.NoError(t, err)
	got := collectEvents(t, events)

	want := []string{
		StatusGenerating, StatusValidating, StatusCompleted,
		StatusGenerating, StatusRetrying,
		StatusGenerating, StatusRetrying,
		StatusGenerating, StatusRetrying,
		StatusGenerating, StatusFailed,
	}
	assert.Equal(t, want, statuses(got))

	retry := got[4]
	assert.Equal(t, EventProgress, retry.Type)
	assert.Equal(t, 1, retry.Attempt)
	assert.Contains(t, retry.Message, "Error generating Chapter 2, retrying...")
	assert.Contains(t, retry.Message, "ollama unreachable")

	// 终态错误事件后批量终止，第三章不再生成
	final := got[len(got)-1]
	assert.Equal(t, EventError, final.Type)
	assert.Equal(t, 4, final.Attempts)
	assert.Contains(t, final.Message, "Failed to generate Chapter 2 after 3 attempts")

	workflow, err := s.GetWorkflow(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Nil(t, workflow.Chapter(3))
	assert.NotEqual(t, entity.StepCompleted, workflow.CurrentStep)
}

func TestGenerateAllChaptersCompletedWithWarning(t *testing.T) {
	script := &batchScript{scores: map[int][]float64{1: {0.5}}}
	s := newTestService(script.generator())
	created := newTestWorkflow(t, s, 1)

	events, err := s.GenerateAllChapters(t.Context(), created.ID, "", nil)
	require.NoError(t, err)
	got := collectEvents(t, events)

	want := []string{
		StatusGenerating, StatusValidating, StatusRegenerating,
		StatusGenerating, StatusValidating, StatusRegenerating,
		StatusGenerating, StatusValidating, StatusRegenerating,
		StatusGenerating, StatusValidating, StatusCompletedWithWarning,
		EventComplete,
	}
	assert.Equal(t, want, statuses(got))

	warning := got[11]
	assert.Equal(t, EventWarning, warning.Type)
	assert.Equal(t, 4, warning.Attempts)
	assert.Equal(t, "Chapter 1 completed with low score 0.50 after 3 attempts", warning.Message)
	assert.Positive(t, warning.WordCount)

	// 低分章节保留最后一次结果，批量仍然完成
	final := got[len(got)-1]
	assert.Equal(t, EventComplete, final.Type)
	require.NotNil(t, final.Workflow)
	assert.Equal(t, entity.StepCompleted, final.Workflow.CurrentStep)
}

func TestGenerateAllChaptersCustomThreshold(t *testing.T) {
	script := &batchScript{scores: map[int][]float64{1: {0.5}}}
	s := newTestService(script.generator())
	created := newTestWorkflow(t, s, 1)

	threshold := 0.4
	events, err := s.GenerateAllChapters(t.Context(), created.ID, "", &threshold)
	require.NoError(t, err)
	got := collectEvents(t, events)

	want := []string{StatusGenerating, StatusValidating, StatusCompleted, EventComplete}
	assert.Equal(t, want, statuses(got))

	done := got[2]
	require.NotNil(t, done.ValidationThreshold)
	assert.Equal(t, 0.4, *done.ValidationThreshold)
}

func TestGenerateAllChaptersCancelled(t *testing.T) {
	s := newTestService(&fakeGenerator{})
	created := newTestWorkflow(t, s, 2)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	events, err := s.GenerateAllChapters(ctx, created.ID, "", nil)
	require.NoError(t, err)
	got := collectEvents(t, events)

	for _, ev := range got {
		assert.NotEqual(t, EventComplete, ev.Type)
	}
}
