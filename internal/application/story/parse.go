package story

import (
	"encoding/json"
	"strconv"
	"strings"

	"ai-story-writer-api/internal/domain/entity"
)

// extractJSON 从模型回复中截取首个 { 到末尾 } 之间的片段
// 模型常在 JSON 前后附带说明文字，截取后再解析。
func extractJSON(response string) (string, bool) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end < start {
		return "", false
	}
	return response[start : end+1], true
}

// charactersSettingsPayload 人物与设定回复的 JSON 结构
type charactersSettingsPayload struct {
	Characters []entity.Character   `json:"characters"`
	Settings   entity.StorySettings `json:"settings"`
}

// parseCharactersSettings 解析人物与设定回复
// 解析失败时退回一个最小可用的主角与设定，返回值 usedFallback 为 true。
func parseCharactersSettings(response string) (characters []entity.Character, settings *entity.StorySettings, usedFallback bool) {
	jsonStr, ok := extractJSON(response)
	if ok {
		var payload charactersSettingsPayload
		if err := json.Unmarshal([]byte(jsonStr), &payload); err == nil {
			s := payload.Settings
			return payload.Characters, &s, false
		}
	}

	return []entity.Character{
			{
				Name:        "Main Character",
				Description: "The protagonist of the story",
				Role:        "protagonist",
			},
		}, &entity.StorySettings{
			Genre:   "Fiction",
			Setting: "Contemporary",
			Tone:    "Engaging",
		}, true
}

// outlinePayload 大纲回复的 JSON 结构
type outlinePayload struct {
	Title              string                  `json:"title"`
	Premise            string                  `json:"premise"`
	PlotStructure      string                  `json:"plot_structure"`
	Chapters           []entity.ChapterOutline `json:"chapters"`
	EstimatedWordCount int                     `json:"estimated_word_count"`
}

// parseOutline 解析大纲回复
// 解析失败时退回单章的基础大纲，返回值 usedFallback 为 true。
func parseOutline(response string) (outline *entity.StoryOutline, usedFallback bool) {
	jsonStr, ok := extractJSON(response)
	if ok {
		var payload outlinePayload
		if err := json.Unmarshal([]byte(jsonStr), &payload); err == nil {
			title := payload.Title
			if title == "" {
				title = "Untitled Story"
			}
			return &entity.StoryOutline{
				Title:              title,
				Premise:            payload.Premise,
				PlotStructure:      payload.PlotStructure,
				Chapters:           payload.Chapters,
				EstimatedWordCount: payload.EstimatedWordCount,
			}, false
		}
	}

	return &entity.StoryOutline{
		Title:         "Untitled Story",
		Premise:       "A story premise",
		PlotStructure: "Basic three-act structure",
		Chapters: []entity.ChapterOutline{
			{
				ChapterNumber: 1,
				Title:         "Chapter 1",
				Summary:       "Opening chapter",
				Purpose:       "Introduce the story and characters",
			},
		},
	}, true
}

// parseValidation 解析校验回复中的评分与反馈
// 无 SCORE 行时评分默认 0.8，SCORE 值非法时评分退回 0.7，
// 两种情况下反馈均为完整回复原文。
func parseValidation(response string) (score float64, feedback string) {
	lines := strings.Split(strings.TrimSpace(response), "\n")
	score = 0.8
	feedback = response

	for i, line := range lines {
		if strings.HasPrefix(line, "SCORE:") {
			scoreStr := strings.TrimSpace(strings.TrimPrefix(line, "SCORE:"))
			parsed, err := strconv.ParseFloat(scoreStr, 64)
			if err != nil {
				return 0.7, response
			}
			score = parsed
		} else if strings.HasPrefix(line, "FEEDBACK:") {
			feedback = strings.TrimSpace(strings.TrimPrefix(line, "FEEDBACK:"))
			if rest := lines[i+1:]; len(rest) > 0 {
				feedback += "\n" + strings.Join(rest, "\n")
			}
			break
		}
	}
	return score, feedback
}

// CountWords 统计正文词数，按空白切分
func CountWords(content string) int {
	return len(strings.Fields(content))
}
