package memory

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-story-writer-api/internal/domain/entity"
	apperrors "ai-story-writer-api/pkg/errors"
)

func TestCreateAndGet(t *testing.T) {
	repo := NewWorkflowRepo()
	w := entity.NewWorkflow("idea", "m", 0.7, 0.9)

	require.NoError(t, repo.Create(t.Context(), w))

	got, err := repo.GetByID(t.Context(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, w.ID, got.ID)

	err = repo.Create(t.Context(), w)
	require.Error(t, err)
	require.True(t, apperrors.IsAppError(err))
	appErr := apperrors.AsAppError(err)
	assert.Equal(t, apperrors.CodeConflict, appErr.Code)
}

func TestGetMissing(t *testing.T) {
	repo := NewWorkflowRepo()

	_, err := repo.GetByID(t.Context(), "nope")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestList(t *testing.T) {
	repo := NewWorkflowRepo()

	got, err := repo.List(t.Context())
	require.NoError(t, err)
	assert.Empty(t, got)

	for range 3 {
		require.NoError(t, repo.Create(t.Context(), entity.NewWorkflow("idea", "m", 0.7, 0.9)))
	}

	got, err = repo.List(t.Context())
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestSave(t *testing.T) {
	repo := NewWorkflowRepo()
	w := entity.NewWorkflow("idea", "m", 0.7, 0.9)

	err := repo.Save(t.Context(), w)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))

	require.NoError(t, repo.Create(t.Context(), w))
	w.CurrentStep = entity.StepOutline
	require.NoError(t, repo.Save(t.Context(), w))

	got, err := repo.GetByID(t.Context(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StepOutline, got.CurrentStep)
}

func TestDelete(t *testing.T) {
	repo := NewWorkflowRepo()
	w := entity.NewWorkflow("idea", "m", 0.7, 0.9)
	require.NoError(t, repo.Create(t.Context(), w))

	require.NoError(t, repo.Delete(t.Context(), w.ID))

	err := repo.Delete(t.Context(), w.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestListSortedByCreatedAt(t *testing.T) {
	repo := NewWorkflowRepo()
	base := time.Now()

	for _, offset := range []time.Duration{2 * time.Second, 0, time.Second} {
		w := entity.NewWorkflow("idea", "m", 0.7, 0.9)
		w.CreatedAt = base.Add(offset)
		require.NoError(t, repo.Create(t.Context(), w))
	}

	got, err := repo.List(t.Context())
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, got[0].CreatedAt.Before(got[1].CreatedAt))
	assert.True(t, got[1].CreatedAt.Before(got[2].CreatedAt))
}

func TestCallerMutationDoesNotLeakIntoStore(t *testing.T) {
	repo := NewWorkflowRepo()
	w := entity.NewWorkflow("idea", "m", 0.7, 0.9)
	w.Outline = &entity.StoryOutline{
		Title:    "The Signal",
		Chapters: []entity.ChapterOutline{{ChapterNumber: 1, Title: "Landfall"}},
	}
	require.NoError(t, repo.Create(t.Context(), w))

	// 写入后继续改动调用方对象，不应影响存储内容
	w.CurrentStep = entity.StepCompleted
	w.Outline.Title = "changed"
	w.UpsertChapter(&entity.GeneratedChapter{ChapterNumber: 1, Content: "text"})

	got, err := repo.GetByID(t.Context(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StepCharactersSettings, got.CurrentStep)
	assert.Equal(t, "The Signal", got.Outline.Title)
	assert.Empty(t, got.Chapters)

	// 读取到的对象同样是独立副本
	got.Outline.Chapters[0].Title = "mutated"
	again, err := repo.GetByID(t.Context(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, "Landfall", again.Outline.Chapters[0].Title)
}

func TestConcurrentReadDuringSave(t *testing.T) {
	repo := NewWorkflowRepo()
	w := entity.NewWorkflow("idea", "m", 0.7, 0.9)
	w.Outline = &entity.StoryOutline{
		Title: "The Signal",
		Chapters: []entity.ChapterOutline{
			{ChapterNumber: 1, Title: "Landfall"},
			{ChapterNumber: 2, Title: "The Chart Room"},
		},
	}
	require.NoError(t, repo.Create(t.Context(), w))

	done := make(chan struct{})
	var wg sync.WaitGroup

	// 读取方持续获取并序列化，模拟批量生成期间的轮询客户端
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			got, err := repo.GetByID(t.Context(), w.ID)
			require.NoError(t, err)
			_, err = json.Marshal(got)
			require.NoError(t, err)
		}
	}()

	for i := 1; i <= 50; i++ {
		current, err := repo.GetByID(t.Context(), w.ID)
		require.NoError(t, err)
		current.UpsertChapter(&entity.GeneratedChapter{
			ChapterNumber: (i % 2) + 1,
			Content:       "chapter text",
			WordCount:     2,
		})
		current.Touch()
		require.NoError(t, repo.Save(t.Context(), current))
	}

	close(done)
	wg.Wait()
}

func TestConcurrentAccess(t *testing.T) {
	repo := NewWorkflowRepo()

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := entity.NewWorkflow("idea", "m", 0.7, 0.9)
			require.NoError(t, repo.Create(t.Context(), w))
			_, err := repo.GetByID(t.Context(), w.ID)
			require.NoError(t, err)
			_, err = repo.List(t.Context())
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := repo.List(t.Context())
	require.NoError(t, err)
	assert.Len(t, got, 16)
}
