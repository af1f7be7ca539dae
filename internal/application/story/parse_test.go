package story

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
		ok       bool
	}{
		{
			name:     "bare json",
			response: `{"a":1}`,
			want:     `{"a":1}`,
			ok:       true,
		},
		{
			name:     "json wrapped in prose",
			response: "Here is the result:\n{\"a\":1}\nHope that helps!",
			want:     `{"a":1}`,
			ok:       true,
		},
		{
			name:     "nested braces use outermost pair",
			response: `intro {"a":{"b":2}} outro`,
			want:     `{"a":{"b":2}}`,
			ok:       true,
		},
		{
			name:     "no json at all",
			response: "sorry, I cannot do that",
			ok:       false,
		},
		{
			name:     "closing brace before opening",
			response: "} {",
			ok:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractJSON(tt.response)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParseCharactersSettings(t *testing.T) {
	response := `Sure! {"characters":[{"name":"Mira","description":"A wandering cartographer","role":"protagonist"}],"settings":{"genre":"Fantasy","setting":"Island archipelago","tone":"Wistful","themes":["memory","belonging"]}}`

	characters, settings, usedFallback := parseCharactersSettings(response)
	require.False(t, usedFallback)
	require.Len(t, characters, 1)
	assert.Equal(t, "Mira", characters[0].Name)
	assert.Equal(t, "protagonist", characters[0].Role)
	assert.Equal(t, "Fantasy", settings.Genre)
	assert.Equal(t, []string{"memory", "belonging"}, settings.Themes)
}

func TestParseCharactersSettingsFallback(t *testing.T) {
	for _, response := range []string{
		"no json here",
		`{"characters": [unterminated`,
	} {
		characters, settings, usedFallback := parseCharactersSettings(response)
		require.True(t, usedFallback, "response: %s", response)
		require.Len(t, characters, 1)
		assert.Equal(t, "Main Character", characters[0].Name)
		assert.Equal(t, "The protagonist of the story", characters[0].Description)
		assert.Equal(t, "protagonist", characters[0].Role)
		assert.Equal(t, "Fiction", settings.Genre)
		assert.Equal(t, "Contemporary", settings.Setting)
		assert.Equal(t, "Engaging", settings.Tone)
	}
}

func TestParseOutline(t *testing.T) {
	response := `{"title":"The Tide Atlas","premise":"Maps that redraw themselves","plot_structure":"Three acts","chapters":[{"chapter_number":1,"title":"Landfall","summary":"Mira arrives","key_events":["storm"],"characters_involved":["Mira"],"purpose":"Setup"},{"chapter_number":2,"title":"The Chart Room","summary":"A discovery","purpose":"Rising action"}],"estimated_word_count":40000}`

	outline, usedFallback := parseOutline(response)
	require.False(t, usedFallback)
	assert.Equal(t, "The Tide Atlas", outline.Title)
	require.Len(t, outline.Chapters, 2)
	assert.Equal(t, 2, outline.Chapters[1].ChapterNumber)
	assert.Equal(t, 40000, outline.EstimatedWordCount)
}

func TestParseOutlineFallback(t *testing.T) {
	outline, usedFallback := parseOutline("the model rambled instead of answering")
	require.True(t, usedFallback)
	assert.Equal(t, "Untitled Story", outline.Title)
	assert.Equal(t, "A story premise", outline.Premise)
	assert.Equal(t, "Basic three-act structure", outline.PlotStructure)
	require.Len(t, outline.Chapters, 1)
	assert.Equal(t, 1, outline.Chapters[0].ChapterNumber)
	assert.Equal(t, "Chapter 1", outline.Chapters[0].Title)
	assert.Equal(t, "Introduce the story and characters", outline.Chapters[0].Purpose)
}

func TestParseOutlineDefaultsTitle(t *testing.T) {
	outline, usedFallback := parseOutline(`{"chapters":[]}`)
	require.False(t, usedFallback)
	assert.Equal(t, "Untitled Story", outline.Title)
}

func TestParseValidation(t *testing.T) {
	t.Run("score and feedback lines", func(t *testing.T) {
		score, feedback := parseValidation("SCORE: 0.85\nFEEDBACK: Strong pacing.\nDialogue could be tighter.")
		assert.Equal(t, 0.85, score)
		assert.Equal(t, "Strong pacing.\nDialogue could be tighter.", feedback)
	})

	t.Run("missing score line defaults to 0.8 with full reply", func(t *testing.T) {
		response := "The chapter follows the outline closely."
		score, feedback := parseValidation(response)
		assert.Equal(t, 0.8, score)
		assert.Equal(t, response, feedback)
	})

	t.Run("malformed score falls back to 0.7 with full reply", func(t *testing.T) {
		response := "SCORE: excellent\nFEEDBACK: great work"
		score, feedback := parseValidation(response)
		assert.Equal(t, 0.7, score)
		assert.Equal(t, response, feedback)
	})

	t.Run("score without feedback keeps full reply as feedback", func(t *testing.T) {
		response := "SCORE: 0.6\nIt drifts from the outline midway."
		score, feedback := parseValidation(response)
		assert.Equal(t, 0.6, score)
		assert.Equal(t, response, feedback)
	})
}

func TestCountWords(t *testing.T) {
	assert.Equal(t, 0, CountWords(""))
	assert.Equal(t, 0, CountWords("   \n\t"))
	assert.Equal(t, 4, CountWords("the tide came in"))
	assert.Equal(t, 3, CountWords("  spaced   out\nwords  "))
}
