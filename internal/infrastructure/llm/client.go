// Package llm 提供 Ollama 文本生成服务客户端
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ai-story-writer-api/internal/application/story"
	"ai-story-writer-api/internal/config"
	apperrors "ai-story-writer-api/pkg/errors"
	"ai-story-writer-api/pkg/logger"
	"ai-story-writer-api/pkg/metrics"
	"ai-story-writer-api/pkg/tracer"
)

// Client Ollama HTTP 客户端
type Client struct {
	baseURL      string
	defaultModel string
	httpClient   *http.Client
}

var _ story.TextGenerator = (*Client)(nil)

// NewClient 创建 Ollama 客户端
func NewClient(cfg *config.OllamaConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		baseURL:      cfg.BaseURL,
		defaultModel: cfg.DefaultModel,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// generatePayload /api/generate 请求体
type generatePayload struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options"`
}

// generateResponse /api/generate 响应体（流式时为逐行 JSON）
type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (c *Client) buildPayload(req story.GenerateRequest, stream bool) generatePayload {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}
	return generatePayload{
		Model:  model,
		Prompt: req.Prompt,
		System: req.SystemPrompt,
		Stream: stream,
		Options: map[string]any{
			"temperature": req.Temperature,
			"top_p":       req.TopP,
			// 生成到自然停止点
			"num_predict": -1,
		},
	}
}

// Complete 同步生成完整文本
func (c *Client) Complete(ctx context.Context, req story.GenerateRequest) (string, error) {
	payload := c.buildPayload(req, false)

	ctx, span := tracer.Start(ctx, "llm.Complete",
		trace.WithAttributes(attribute.String("llm.model", payload.Model)))
	defer span.End()

	start := time.Now()
	result, err := c.doComplete(ctx, payload)
	metrics.LLMCallDuration.WithLabelValues(payload.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		metrics.LLMCallTotal.WithLabelValues(payload.Model, "error").Inc()
		return "", err
	}
	metrics.LLMCallTotal.WithLabelValues(payload.Model, "ok").Inc()
	return result, nil
}

func (c *Client) doComplete(ctx context.Context, payload generatePayload) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeLLMCallFailed, "failed to encode generate request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeLLMCallFailed, "failed to build generate request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeLLMProviderError, "ollama unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errText, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", apperrors.Newf(apperrors.CodeLLMProviderError,
			"ollama api error: %d - %s", resp.StatusCode, string(errText))
	}

	var data generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeLLMProviderError, "failed to decode generate response")
	}
	return data.Response, nil
}

// Stream 增量生成文本片段
func (c *Client) Stream(ctx context.Context, req story.GenerateRequest) (<-chan story.StreamChunk, <-chan error) {
	chunks := make(chan story.StreamChunk)
	errs := make(chan error, 1)

	payload := c.buildPayload(req, true)

	go func() {
		defer close(chunks)
		defer close(errs)

		ctx, span := tracer.Start(ctx, "llm.Stream",
			trace.WithAttributes(attribute.String("llm.model", payload.Model)))
		defer span.End()

		start := time.Now()
		err := c.doStream(ctx, payload, chunks)
		metrics.LLMCallDuration.WithLabelValues(payload.Model).Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			metrics.LLMCallTotal.WithLabelValues(payload.Model, "error").Inc()
			errs <- err
			return
		}
		metrics.LLMCallTotal.WithLabelValues(payload.Model, "ok").Inc()
	}()

	return chunks, errs
}

func (c *Client) doStream(ctx context.Context, payload generatePayload, chunks chan<- story.StreamChunk) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeLLMCallFailed, "failed to encode generate request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeLLMCallFailed, "failed to build generate request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeLLMProviderError, "ollama unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errText, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return apperrors.Newf(apperrors.CodeLLMProviderError,
			"ollama api error: %d - %s", resp.StatusCode, string(errText))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var data generateResponse
		if err := json.Unmarshal(line, &data); err != nil {
			logger.Warn(ctx, "failed to parse stream line", "line", string(line))
			continue
		}

		select {
		case chunks <- story.StreamChunk{Content: data.Response, Done: data.Done}:
		case <-ctx.Done():
			return ctx.Err()
		}

		if data.Done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return apperrors.Wrap(err, apperrors.CodeLLMProviderError, "stream read failed")
	}
	// 流在完成信号之前结束
	return apperrors.New(apperrors.CodeLLMProviderError, "stream ended without done signal")
}

// tagsResponse /api/tags 响应体
type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels 列出可用模型
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeLLMCallFailed, "failed to build tags request")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeLLMProviderError, "ollama unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.Newf(apperrors.CodeLLMProviderError, "ollama api error: %d", resp.StatusCode)
	}

	var data tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeLLMProviderError, "failed to decode tags response")
	}

	names := make([]string, 0, len(data.Models))
	for _, m := range data.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// Ping 检查服务可达性
func (c *Client) Ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		logger.Warn(ctx, "ollama ping failed", "error", err.Error())
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// DefaultModel 返回配置的默认模型
func (c *Client) DefaultModel() string {
	return c.defaultModel
}
