package story

import (
	"fmt"
	"strings"

	"ai-story-writer-api/internal/domain/entity"
)

// 各阶段的系统提示词
const (
	SystemPromptStoryteller     = "You are an expert storyteller. Write engaging, creative stories with vivid descriptions and compelling narratives. Output only the story content without any headers, titles, introductory text, or explanatory comments."
	SystemPromptStoryPlanner    = "You are an expert story planner. Generate detailed characters and settings in the specified JSON format."
	SystemPromptStoryOutliner   = "You are an expert story outliner. Create a detailed story outline in the specified JSON format."
	SystemPromptChapterOutliner = "You are an expert chapter outliner. Create detailed, scene-by-scene chapter outlines. Output only the outline content without any headers or explanatory text."
	SystemPromptDialogueWriter  = "You are an expert dialogue writer. Create realistic, engaging dialogue that advances character and plot. Output only the dialogue content without any headers or explanatory text."
	SystemPromptNovelist        = "You are an expert novelist. Write engaging, well-crafted chapters with rich description and compelling narrative. Output only the story content without any headers, titles, or explanatory text."
	SystemPromptStoryEditor     = "You are an expert story editor. Analyze how well the chapter matches the outline and provide constructive feedback."
)

// BuildContinuationPrompt 拼接续写上下文与新提示词
func BuildContinuationPrompt(continueStory, prompt string) string {
	if continueStory == "" {
		return prompt
	}
	return fmt.Sprintf("Continue this story:\n\n%s\n\n%s", continueStory, prompt)
}

// buildCharactersSettingsPrompt 构建人物与设定生成提示词
func buildCharactersSettingsPrompt(originalPrompt, additionalInstructions string) string {
	return fmt.Sprintf(`Based on this story idea: "%s"

Create detailed characters and story settings. Return your response as a JSON object with this structure:

{
  "characters": [
    {
      "name": "Character Name",
      "description": "Detailed character description and traits",
      "role": "protagonist/antagonist/supporting",
      "background": "Character's background and history",
      "motivations": "Character's goals and motivations",
      "relationships": {"other_character": "relationship description"}
    }
  ],
  "settings": {
    "genre": "Story genre",
    "setting": "Time and place description",
    "tone": "Overall tone and mood",
    "themes": ["theme1", "theme2"],
    "world_building": "Additional world details",
    "target_length": "short/medium/long"
  }
}

Focus on creating compelling, well-developed characters with clear motivations and relationships. The settings should support the story's themes and provide a rich backdrop for the narrative.

%s

Respond ONLY with valid JSON.`, originalPrompt, additionalInstructions)
}

// buildOutlinePrompt 构建故事大纲生成提示词
func buildOutlinePrompt(workflow *entity.Workflow, targetChapters int, additionalInstructions string) string {
	var charLines []string
	for _, ch := range workflow.Characters {
		charLines = append(charLines, fmt.Sprintf("- %s: %s (%s)", ch.Name, ch.Description, ch.Role))
	}

	settingsInfo := fmt.Sprintf("Genre: %s, Setting: %s, Tone: %s",
		workflow.Settings.Genre, workflow.Settings.Setting, workflow.Settings.Tone)

	target := "flexible"
	if targetChapters > 0 {
		target = fmt.Sprintf("%d", targetChapters)
	}

	return fmt.Sprintf(`Create a detailed story outline based on:

Original Idea: "%s"

Characters:
%s

Settings: %s
Themes: %s

Target Chapters: %s

Return your response as a JSON object with this structure:

{
  "title": "Story Title",
  "premise": "Core story premise",
  "plot_structure": "Overall plot structure and arc",
  "chapters": [
    {
      "chapter_number": 1,
      "title": "Chapter Title",
      "summary": "Brief chapter summary",
      "key_events": ["event1", "event2"],
      "characters_involved": ["character1", "character2"],
      "purpose": "Purpose of this chapter in the overall story"
    }
  ],
  "estimated_word_count": 50000
}

Create a compelling story arc with proper pacing, character development, and thematic exploration.

%s

Respond ONLY with valid JSON.`,
		workflow.OriginalPrompt,
		strings.Join(charLines, "\n"),
		settingsInfo,
		strings.Join(workflow.Settings.Themes, ", "),
		target,
		additionalInstructions)
}

// buildChapterOutlinePrompt 构建章节细纲提示词
func buildChapterOutlinePrompt(workflow *entity.Workflow, chapterOutline entity.ChapterOutline, additionalInstructions string) string {
	var charLines []string
	for _, ch := range workflow.Characters {
		charLines = append(charLines, fmt.Sprintf("- %s: %s", ch.Name, ch.Description))
	}

	return fmt.Sprintf(`Create a detailed outline for this chapter:

Chapter %d: %s
Summary: %s
Key Events: %s
Characters: %s
Purpose: %s

Story Context:
- Genre: %s
- Setting: %s
- Tone: %s

Available Characters:
%s

Create a detailed scene-by-scene outline for this chapter. Include:
- Opening scene setup
- Character interactions and development
- Plot progression
- Emotional beats
- Transition to next chapter

%s

Write a comprehensive outline that serves as a blueprint for the chapter.`,
		chapterOutline.ChapterNumber,
		chapterOutline.Title,
		chapterOutline.Summary,
		strings.Join(chapterOutline.KeyEvents, ", "),
		strings.Join(chapterOutline.CharactersInvolved, ", "),
		chapterOutline.Purpose,
		workflow.Settings.Genre,
		workflow.Settings.Setting,
		workflow.Settings.Tone,
		strings.Join(charLines, "\n"),
		additionalInstructions)
}

// buildDialoguePrompt 构建章节对白提示词
// 只引入细纲中登场的人物
func buildDialoguePrompt(workflow *entity.Workflow, chapterOutline entity.ChapterOutline, detailedOutline string) string {
	involved := make(map[string]bool, len(chapterOutline.CharactersInvolved))
	for _, name := range chapterOutline.CharactersInvolved {
		involved[name] = true
	}

	var charLines []string
	for _, ch := range workflow.Characters {
		if involved[ch.Name] {
			charLines = append(charLines, fmt.Sprintf("- %s: %s", ch.Name, ch.Description))
		}
	}

	return fmt.Sprintf(`Based on this chapter outline:

%s

Characters in this chapter:
%s

Create engaging dialogue for this chapter. Focus on:
- Character voice and personality
- Natural conversation flow
- Emotional subtext
- Plot advancement through dialogue
- Character relationships and dynamics

Present the dialogue in script format with character names and their lines.`,
		detailedOutline,
		strings.Join(charLines, "\n"))
}

// buildChapterContentPrompt 构建最终章节正文提示词
func buildChapterContentPrompt(workflow *entity.Workflow, detailedOutline, dialogue string) string {
	return fmt.Sprintf(`Write the complete chapter based on:

Chapter Outline:
%s

Key Dialogue:
%s

Story Details:
- Genre: %s
- Setting: %s
- Tone: %s

Write a complete, polished chapter that:
- Incorporates the outlined scenes and events
- Uses the dialogue naturally within narrative
- Maintains consistent tone and style
- Develops characters and advances plot
- Engages the reader with vivid descriptions
- Flows smoothly from previous chapters

Aim for approximately 2000-4000 words.

IMPORTANT: Output ONLY the story content. Do not include:
- Chapter titles or headers
- Introductory text like "Here is the chapter:" or "Chapter X:"
- Explanatory notes or comments
- Outro text or summaries
- Any text that is not part of the actual story narrative

Start immediately with the story content and end when the chapter naturally concludes.`,
		detailedOutline,
		dialogue,
		workflow.Settings.Genre,
		workflow.Settings.Setting,
		workflow.Settings.Tone)
}

// buildValidationPrompt 构建章节校验提示词
func buildValidationPrompt(outlineChapter entity.ChapterOutline, chapter *entity.GeneratedChapter) string {
	return fmt.Sprintf(`Analyze how well this generated chapter matches its intended outline:

INTENDED OUTLINE:
Title: %s
Summary: %s
Key Events: %s
Characters: %s
Purpose: %s

GENERATED CHAPTER:
%s

Evaluate the chapter on:
1. How well it follows the outlined plot points
2. Character consistency and development
3. Achievement of the chapter's purpose
4. Overall quality and engagement

Provide a score from 0.0 to 1.0 and detailed feedback.

Format your response as:
SCORE: [0.0-1.0]
FEEDBACK: [Detailed analysis and suggestions for improvement]`,
		outlineChapter.Title,
		outlineChapter.Summary,
		strings.Join(outlineChapter.KeyEvents, ", "),
		strings.Join(outlineChapter.CharactersInvolved, ", "),
		outlineChapter.Purpose,
		chapter.Content)
}

// PromptSuggestions 内置的写作灵感提示词
var PromptSuggestions = []string{
	"Write a story about a character who discovers they can see 24 hours into the future",
	"Tell the tale of a librarian who finds a book that writes itself",
	"Create a story set in a world where memories can be traded like currency",
	"Write about a person who wakes up in a different timeline every day",
	"Tell a story about the last bookstore in a digital world",
	"Write about a character who can enter and explore paintings",
	"Create a tale about a detective who solves crimes using dreams",
	"Tell the story of a chef whose food can alter emotions",
	"Write about a world where colors have been outlawed",
	"Create a story about a person who collects lost sounds",
}
