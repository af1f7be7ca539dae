package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorkflow(t *testing.T) {
	w := NewWorkflow("a story idea", "qwen3:8b", 0.7, 0.9)

	assert.NotEmpty(t, w.ID)
	assert.Equal(t, StepCharactersSettings, w.CurrentStep)
	assert.Equal(t, "a story idea", w.OriginalPrompt)
	assert.Empty(t, w.Chapters)
	assert.False(t, w.CreatedAt.IsZero())
	assert.Equal(t, w.CreatedAt, w.UpdatedAt)

	other := NewWorkflow("another", "qwen3:8b", 0.7, 0.9)
	assert.NotEqual(t, w.ID, other.ID)
}

func TestAdvanceTo(t *testing.T) {
	w := NewWorkflow("idea", "m", 0.7, 0.9)

	require.True(t, w.AdvanceTo(StepOutline))
	assert.Equal(t, StepOutline, w.CurrentStep)

	// 允许跳跃前进
	require.True(t, w.AdvanceTo(StepValidation))

	// 不允许回退
	assert.False(t, w.AdvanceTo(StepOutline))
	assert.Equal(t, StepValidation, w.CurrentStep)

	// 未知阶段被拒绝
	assert.False(t, w.AdvanceTo(WorkflowStep("midpoint")))
	assert.Equal(t, StepValidation, w.CurrentStep)

	// 同阶段重入是空操作
	require.True(t, w.AdvanceTo(StepValidation))
}

func TestUpsertChapter(t *testing.T) {
	w := NewWorkflow("idea", "m", 0.7, 0.9)

	w.UpsertChapter(&GeneratedChapter{ChapterNumber: 1, Content: "v1"})
	assert.Equal(t, 1, w.ChaptersCompleted)

	w.UpsertChapter(&GeneratedChapter{ChapterNumber: 2, Content: "v1"})
	assert.Equal(t, 2, w.ChaptersCompleted)

	// 同号章节原地替换，完成计数不变
	w.UpsertChapter(&GeneratedChapter{ChapterNumber: 1, Content: "v2"})
	assert.Equal(t, 2, w.ChaptersCompleted)
	require.Len(t, w.Chapters, 2)
	assert.Equal(t, "v2", w.Chapter(1).Content)
}

func TestChapterLookup(t *testing.T) {
	w := NewWorkflow("idea", "m", 0.7, 0.9)
	w.UpsertChapter(&GeneratedChapter{ChapterNumber: 3})

	assert.NotNil(t, w.Chapter(3))
	assert.Nil(t, w.Chapter(1))
}

func TestClone(t *testing.T) {
	score := 0.85
	w := NewWorkflow("idea", "m", 0.7, 0.9)
	w.Characters = []Character{{
		Name:          "Edda",
		Role:          "protagonist",
		Relationships: map[string]string{"Tomas": "brother"},
	}}
	w.Settings = &StorySettings{Genre: "Fiction", Themes: []string{"isolation"}}
	w.Outline = &StoryOutline{
		Title: "The Signal",
		Chapters: []ChapterOutline{
			{ChapterNumber: 1, Title: "Landfall", KeyEvents: []string{"arrival"}},
		},
	}
	w.UpsertChapter(&GeneratedChapter{ChapterNumber: 1, Content: "text", ValidationScore: &score})

	clone := w.Clone()
	require.Equal(t, w, clone)

	// 拷贝与原对象不共享任何可变结构
	clone.Characters[0].Relationships["Tomas"] = "stranger"
	clone.Settings.Themes[0] = "changed"
	clone.Outline.Chapters[0].KeyEvents[0] = "changed"
	clone.Chapters[0].Content = "changed"
	*clone.Chapters[0].ValidationScore = 0.1

	assert.Equal(t, "brother", w.Characters[0].Relationships["Tomas"])
	assert.Equal(t, "isolation", w.Settings.Themes[0])
	assert.Equal(t, "arrival", w.Outline.Chapters[0].KeyEvents[0])
	assert.Equal(t, "text", w.Chapters[0].Content)
	assert.Equal(t, 0.85, *w.Chapters[0].ValidationScore)
}

func TestPendingChapters(t *testing.T) {
	w := NewWorkflow("idea", "m", 0.7, 0.9)
	assert.Nil(t, w.PendingChapters())

	w.Outline = &StoryOutline{Chapters: []ChapterOutline{
		{ChapterNumber: 1, Title: "One"},
		{ChapterNumber: 2, Title: "Two"},
		{ChapterNumber: 3, Title: "Three"},
	}}

	pending := w.PendingChapters()
	require.Len(t, pending, 3)

	w.UpsertChapter(&GeneratedChapter{ChapterNumber: 2})
	pending = w.PendingChapters()
	require.Len(t, pending, 2)
	// 保持大纲顺序
	assert.Equal(t, 1, pending[0].ChapterNumber)
	assert.Equal(t, 3, pending[1].ChapterNumber)

	w.UpsertChapter(&GeneratedChapter{ChapterNumber: 1})
	w.UpsertChapter(&GeneratedChapter{ChapterNumber: 3})
	assert.Empty(t, w.PendingChapters())
}
