// Package entity 定义领域实体
package entity

import (
	"time"

	"github.com/google/uuid"
)

// WorkflowStep 工作流阶段
type WorkflowStep string

const (
	StepCharactersSettings WorkflowStep = "characters_settings"
	StepOutline            WorkflowStep = "outline"
	StepChapterGeneration  WorkflowStep = "chapter_generation"
	StepValidation         WorkflowStep = "validation"
	StepCompleted          WorkflowStep = "completed"
)

// stepOrder 阶段的严格前进顺序
var stepOrder = map[WorkflowStep]int{
	StepCharactersSettings: 0,
	StepOutline:            1,
	StepChapterGeneration:  2,
	StepValidation:         3,
	StepCompleted:          4,
}

// Order 返回阶段在前进顺序中的位置
func (s WorkflowStep) Order() int {
	if o, ok := stepOrder[s]; ok {
		return o
	}
	return -1
}

// Character 故事角色
type Character struct {
	Name          string            `json:"name"`
	Description   string            `json:"description"`
	Role          string            `json:"role"`
	Background    string            `json:"background,omitempty"`
	Motivations   string            `json:"motivations,omitempty"`
	Relationships map[string]string `json:"relationships,omitempty"`
}

// StorySettings 故事设定
type StorySettings struct {
	Genre         string   `json:"genre"`
	Setting       string   `json:"setting"`
	Tone          string   `json:"tone"`
	Themes        []string `json:"themes,omitempty"`
	WorldBuilding string   `json:"world_building,omitempty"`
	TargetLength  string   `json:"target_length,omitempty"`
}

// ChapterOutline 大纲中的单章规划
type ChapterOutline struct {
	ChapterNumber      int      `json:"chapter_number"`
	Title              string   `json:"title"`
	Summary            string   `json:"summary"`
	KeyEvents          []string `json:"key_events,omitempty"`
	CharactersInvolved []string `json:"characters_involved,omitempty"`
	Purpose            string   `json:"purpose"`
}

// StoryOutline 故事大纲，一经生成在工作流生命周期内不可变
type StoryOutline struct {
	Title              string           `json:"title"`
	Premise            string           `json:"premise"`
	PlotStructure      string           `json:"plot_structure"`
	Chapters           []ChapterOutline `json:"chapters"`
	EstimatedWordCount int              `json:"estimated_word_count,omitempty"`
}

// GeneratedChapter 已生成的章节，按 ChapterNumber 唯一
type GeneratedChapter struct {
	ChapterNumber      int      `json:"chapter_number"`
	Title              string   `json:"title"`
	Outline            string   `json:"outline"`
	Dialogue           string   `json:"dialogue"`
	Content            string   `json:"content"`
	WordCount          int      `json:"word_count"`
	ValidationScore    *float64 `json:"validation_score,omitempty"`
	ValidationFeedback string   `json:"validation_feedback,omitempty"`
}

// Workflow 多阶段故事生成工作流
type Workflow struct {
	ID             string       `json:"id"`
	OriginalPrompt string       `json:"original_prompt"`
	CurrentStep    WorkflowStep `json:"current_step"`

	Characters []Character         `json:"characters"`
	Settings   *StorySettings      `json:"settings,omitempty"`
	Outline    *StoryOutline       `json:"outline,omitempty"`
	Chapters   []*GeneratedChapter `json:"chapters"`

	Model       string  `json:"model,omitempty"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`

	TotalChaptersPlanned int `json:"total_chapters_planned"`
	ChaptersCompleted    int `json:"chapters_completed"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewWorkflow 创建新工作流，初始阶段为角色与设定生成
func NewWorkflow(prompt, model string, temperature, topP float64) *Workflow {
	now := time.Now()
	return &Workflow{
		ID:             uuid.New().String(),
		OriginalPrompt: prompt,
		CurrentStep:    StepCharactersSettings,
		Chapters:       []*GeneratedChapter{},
		Characters:     []Character{},
		Model:          model,
		Temperature:    temperature,
		TopP:           topP,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// AdvanceTo 将阶段推进到 next；阶段只允许向前移动
func (w *Workflow) AdvanceTo(next WorkflowStep) bool {
	if next.Order() < 0 || next.Order() < w.CurrentStep.Order() {
		return false
	}
	w.CurrentStep = next
	return true
}

// Chapter 按章节号查找已生成的章节
func (w *Workflow) Chapter(number int) *GeneratedChapter {
	for _, ch := range w.Chapters {
		if ch.ChapterNumber == number {
			return ch
		}
	}
	return nil
}

// UpsertChapter 写入章节：同号章节原地替换，新章节追加并累加完成计数
func (w *Workflow) UpsertChapter(ch *GeneratedChapter) {
	for i, existing := range w.Chapters {
		if existing.ChapterNumber == ch.ChapterNumber {
			w.Chapters[i] = ch
			return
		}
	}
	w.Chapters = append(w.Chapters, ch)
	w.ChaptersCompleted++
}

// PendingChapters 返回大纲中尚未生成的章节，保持大纲顺序
func (w *Workflow) PendingChapters() []ChapterOutline {
	if w.Outline == nil {
		return nil
	}
	existing := make(map[int]struct{}, len(w.Chapters))
	for _, ch := range w.Chapters {
		existing[ch.ChapterNumber] = struct{}{}
	}
	var pending []ChapterOutline
	for _, co := range w.Outline.Chapters {
		if _, ok := existing[co.ChapterNumber]; !ok {
			pending = append(pending, co)
		}
	}
	return pending
}

// Touch 刷新更新时间
func (w *Workflow) Touch() {
	w.UpdatedAt = time.Now()
}

// Clone 返回工作流的深拷贝，与原对象不共享任何可变结构
func (w *Workflow) Clone() *Workflow {
	clone := *w

	if w.Characters != nil {
		clone.Characters = make([]Character, len(w.Characters))
		for i, c := range w.Characters {
			if c.Relationships != nil {
				rel := make(map[string]string, len(c.Relationships))
				for k, v := range c.Relationships {
					rel[k] = v
				}
				c.Relationships = rel
			}
			clone.Characters[i] = c
		}
	}

	if w.Settings != nil {
		s := *w.Settings
		s.Themes = append([]string(nil), w.Settings.Themes...)
		clone.Settings = &s
	}

	if w.Outline != nil {
		o := *w.Outline
		o.Chapters = make([]ChapterOutline, len(w.Outline.Chapters))
		for i, co := range w.Outline.Chapters {
			co.KeyEvents = append([]string(nil), co.KeyEvents...)
			co.CharactersInvolved = append([]string(nil), co.CharactersInvolved...)
			o.Chapters[i] = co
		}
		clone.Outline = &o
	}

	if w.Chapters != nil {
		clone.Chapters = make([]*GeneratedChapter, len(w.Chapters))
		for i, ch := range w.Chapters {
			c := *ch
			if ch.ValidationScore != nil {
				score := *ch.ValidationScore
				c.ValidationScore = &score
			}
			clone.Chapters[i] = &c
		}
	}

	return &clone
}
