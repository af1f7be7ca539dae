package dto

// StoryGenerationRequest 一次性故事生成请求
type StoryGenerationRequest struct {
	Prompt       string   `json:"prompt" binding:"required"`
	Model        string   `json:"model"`
	Temperature  *float64 `json:"temperature" binding:"omitempty,gte=0,lte=2"`
	TopP         *float64 `json:"top_p" binding:"omitempty,gte=0,lte=1"`
	SystemPrompt string   `json:"system_prompt"`
	// ContinueStory 非空时在提示词前拼接既有故事作为续写上下文
	ContinueStory string `json:"continue_story"`
}

// StoryResponse 一次性故事生成响应
type StoryResponse struct {
	Content        string  `json:"content"`
	ModelUsed      string  `json:"model_used"`
	GenerationTime float64 `json:"generation_time"`
	WordCount      int     `json:"word_count"`
	CharacterCount int     `json:"character_count"`
}

// StoryChunk 流式生成的单个片段
type StoryChunk struct {
	Content    string `json:"content"`
	IsComplete bool   `json:"is_complete"`
}

// ModelInfo 模型信息
type ModelInfo struct {
	Name string `json:"name"`
}

// ModelsResponse 可用模型响应
type ModelsResponse struct {
	Models       []ModelInfo `json:"models"`
	DefaultModel string      `json:"default_model"`
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status          string `json:"status"`
	OllamaConnected bool   `json:"ollama_connected"`
	AvailableModels int    `json:"available_models"`
}

// SuggestionsResponse 写作灵感响应
type SuggestionsResponse struct {
	Suggestions []string `json:"suggestions"`
}
