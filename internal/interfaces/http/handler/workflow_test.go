package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-story-writer-api/internal/application/story"
	"ai-story-writer-api/internal/config"
	"ai-story-writer-api/internal/domain/entity"
	"ai-story-writer-api/internal/infrastructure/persistence/memory"
)

type stubGenerator struct {
	completeFn func(ctx context.Context, req story.GenerateRequest) (string, error)
}

func (g *stubGenerator) Complete(ctx context.Context, req story.GenerateRequest) (string, error) {
	if g.completeFn != nil {
		return g.completeFn(ctx, req)
	}
	return "stub reply", nil
}

func (g *stubGenerator) Stream(ctx context.Context, req story.GenerateRequest) (<-chan story.StreamChunk, <-chan error) {
	chunks := make(chan story.StreamChunk)
	errs := make(chan error, 1)
	close(chunks)
	close(errs)
	return chunks, errs
}

func (g *stubGenerator) ListModels(ctx context.Context) ([]string, error) {
	return []string{"qwen3:8b"}, nil
}

func (g *stubGenerator) Ping(ctx context.Context) bool { return true }

func newTestRouter(t *testing.T, gen *stubGenerator) (*gin.Engine, *story.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := story.NewService(memory.NewWorkflowRepo(), gen, &config.StoryConfig{
		DefaultTemperature:      0.7,
		DefaultTopP:             0.9,
		ValidationThreshold:     0.7,
		ValidationTemperature:   0.3,
		MaxRegenerationAttempts: 3,
	}, "qwen3:8b")

	h := NewWorkflowHandler(svc)

	engine := gin.New()
	api := engine.Group("/api")
	api.POST("/workflow/create", h.Create)
	api.GET("/workflows", h.List)
	api.GET("/workflow/:workflow_id", h.Get)
	api.DELETE("/workflow/:workflow_id", h.Delete)
	api.POST("/workflow/:workflow_id/characters-settings", h.GenerateCharactersSettings)
	api.POST("/workflow/:workflow_id/outline", h.GenerateOutline)
	api.POST("/workflow/:workflow_id/chapter/:chapter_number", h.GenerateChapter)

	return engine, svc
}

func doJSON(engine *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

type workflowEnvelope struct {
	Code int `json:"code"`
	Data struct {
		Workflow *entity.Workflow `json:"workflow"`
		Message  string           `json:"message"`
	} `json:"data"`
}

func TestWorkflowHandler_Create(t *testing.T) {
	engine, _ := newTestRouter(t, &stubGenerator{})

	w := doJSON(engine, http.MethodPost, "/api/workflow/create", `{"prompt":"A lighthouse keeper finds a message in a bottle"}`)

	require.Equal(t, http.StatusCreated, w.Code)

	var envelope workflowEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Data.Workflow)
	assert.NotEmpty(t, envelope.Data.Workflow.ID)
	assert.Equal(t, entity.StepCharactersSettings, envelope.Data.Workflow.CurrentStep)
	assert.Equal(t, "A lighthouse keeper finds a message in a bottle", envelope.Data.Workflow.OriginalPrompt)
}

func TestWorkflowHandler_CreateMissingPrompt(t *testing.T) {
	engine, _ := newTestRouter(t, &stubGenerator{})

	w := doJSON(engine, http.MethodPost, "/api/workflow/create", `{}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWorkflowHandler_GetNotFound(t *testing.T) {
	engine, _ := newTestRouter(t, &stubGenerator{})

	w := doJSON(engine, http.MethodGet, "/api/workflow/no-such-id", "")

	require.Equal(t, http.StatusNotFound, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["error_code"])
}

func TestWorkflowHandler_InvalidChapterNumber(t *testing.T) {
	engine, _ := newTestRouter(t, &stubGenerator{})

	w := doJSON(engine, http.MethodPost, "/api/workflow/some-id/chapter/abc", "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWorkflowHandler_CharactersSettingsEmptyBody(t *testing.T) {
	gen := &stubGenerator{
		completeFn: func(ctx context.Context, req story.GenerateRequest) (string, error) {
			return `{"characters":[{"name":"Edda","description":"keeper of the light","role":"protagonist"}],"settings":{"genre":"Fiction","setting":"A remote island","tone":"Reflective"}}`, nil
		},
	}
	engine, svc := newTestRouter(t, gen)

	created, err := svc.CreateWorkflow(context.Background(), story.CreateWorkflowInput{Prompt: "test"})
	require.NoError(t, err)

	// 无请求体的可选参数调用
	w := doJSON(engine, http.MethodPost, "/api/workflow/"+created.ID+"/characters-settings", "")

	require.Equal(t, http.StatusOK, w.Code)

	var envelope workflowEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Data.Workflow)
	require.Len(t, envelope.Data.Workflow.Characters, 1)
	assert.Equal(t, "Edda", envelope.Data.Workflow.Characters[0].Name)
	assert.Equal(t, entity.StepOutline, envelope.Data.Workflow.CurrentStep)
}

func TestWorkflowHandler_DeleteThenGet(t *testing.T) {
	engine, svc := newTestRouter(t, &stubGenerator{})

	created, err := svc.CreateWorkflow(context.Background(), story.CreateWorkflowInput{Prompt: "test"})
	require.NoError(t, err)

	w := doJSON(engine, http.MethodDelete, "/api/workflow/"+created.ID, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(engine, http.MethodGet, "/api/workflow/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWorkflowHandler_List(t *testing.T) {
	engine, svc := newTestRouter(t, &stubGenerator{})

	for range 3 {
		_, err := svc.CreateWorkflow(context.Background(), story.CreateWorkflowInput{Prompt: "test"})
		require.NoError(t, err)
	}

	w := doJSON(engine, http.MethodGet, "/api/workflows", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			Total int `json:"total"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Data.Total)
}
