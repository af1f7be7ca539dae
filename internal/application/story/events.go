package story

import "ai-story-writer-api/internal/domain/entity"

// 进度事件类型
const (
	EventProgress = "progress"
	EventWarning  = "warning"
	EventError    = "error"
	EventComplete = "complete"
)

// 进度事件中的章节状态
const (
	StatusGenerating           = "generating"
	StatusValidating           = "validating"
	StatusCompleted            = "completed"
	StatusRegenerating         = "regenerating"
	StatusRetrying             = "retrying"
	StatusCompletedWithWarning = "completed_with_warning"
	StatusFailed               = "failed"
)

// ProgressEvent 批量生成过程中推送的进度事件
// 字段按事件类型选择性填充，未填充的字段不出现在序列化结果中。
type ProgressEvent struct {
	Type          string `json:"type"`
	ChapterNumber int    `json:"chapter_number,omitempty"`
	ChapterTitle  string `json:"chapter_title,omitempty"`
	// Current 与 Total 以本次待生成章节集合计数
	Current int    `json:"current,omitempty"`
	Total   int    `json:"total,omitempty"`
	Status  string `json:"status,omitempty"`
	// Attempt 为进行中的尝试序号，Attempts 为终态事件的总尝试数
	Attempt             int      `json:"attempt,omitempty"`
	Attempts            int      `json:"attempts,omitempty"`
	ValidationScore     *float64 `json:"validation_score,omitempty"`
	ValidationThreshold *float64 `json:"validation_threshold,omitempty"`
	WordCount           int      `json:"word_count,omitempty"`
	Message             string   `json:"message"`

	// 仅 complete 事件携带
	TotalChapters int              `json:"total_chapters,omitempty"`
	Workflow      *entity.Workflow `json:"workflow,omitempty"`
}

func floatPtr(v float64) *float64 {
	return &v
}
