package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mfranzen/storyforge/internal/model"
)

// Prompt builders are pure functions from structured parameters to the
// instruction strings sent to the model. All of them demand a strict JSON
// reply; replies are still extracted defensively.

const strictJSONSystem = "Return STRICT JSON only."

// DefaultSeed is the topic used when a generate request carries none.
func DefaultSeed(storyType model.StoryType) string {
	return fmt.Sprintf("An original %s tale", storyType.Label())
}

func premisePrompt(topic string, targetMinutes int, preset Preset) string {
	var tone string
	if preset.Tone != "" {
		tone = fmt.Sprintf("\nTONE: %s.", preset.Tone)
	}
	return fmt.Sprintf(`You are a master storyteller creating deep, emotional narratives where extraordinary events catalyze character transformation.

Interpret the SEED IDEA and escalate it into a profound, life-changing encounter. If passive, make it direct and dramatic.%s

SEED IDEA: %q
TARGET LENGTH: about %d minutes of narration.

Create a full story premise with clear protagonist, deep motivation, dramatic central event, and emotional arc.

Return STRICT JSON:
{
  "story_premise": {
    "hook": "Short, punchy, first-person ALL CAPS quote. e.g., 'IT SAVED ME'",
    "protagonist": "Detailed character with emotional state",
    "protagonist_motivation": "Deep internal reason for being there",
    "action": "Core dramatic event challenging beliefs",
    "narrative_arc": "Emotional transformation from beginning to end"
  },
  "description": "2-3 engaging paragraphs for the listing page. Focus on the emotional journey. No spoilers.",
  "hashtags": ["#story", "#mystery"],
  "thumbnail_prompt": "Cinematic, photorealistic one-frame poster. Focus on emotion. High contrast. No text.",
  "hero_video_prompt": "5-8s video prompt. Establish mood and setting."
}`, tone, topic, targetMinutes)
}

func titleVariantsPrompt(premise model.Premise, count, maxLen int, preset Preset) string {
	var suffixRule string
	if preset.TitleSuffix != "" {
		suffixRule = fmt.Sprintf("\n4. Prefer the keyword suffix %q", preset.TitleSuffix)
	}
	return fmt.Sprintf(`You are a viral video title expert.
Create %d title variants based on the ESCALATED ACTION.

STORY PREMISE:
- Hook: %q
- Protagonist: %q
- Action: %q

Format: 'HOOK IN ALL CAPS' - Descriptive Sentence - Keyword Suffix

Rules:
1. Hook in single quotes, ALL CAPS
2. Descriptive sentence summarizes the escalated action
3. Keyword suffix names the subject, e.g. "Bigfoot Story", "UFO Encounter"%s
5. Under %d characters

Return STRICT JSON: { "titles": ["...", "..."] }`,
		count, premise.Hook, premise.Protagonist, premise.Action, suffixRule, maxLen)
}

func titleRankerPrompt(topic string, maxLen int) string {
	return fmt.Sprintf(`Rank these titles from best to worst for click-through rate for: %s
Criteria: Format(50), Curiosity(30), Impact(20). Titles over %d characters rank last.
Return STRICT JSON: { "ranked": [{"title":"...","score":0,"why":"short reason"}] }`, topic, maxLen)
}

func outlinePrompt(premise model.Premise, totalWords int, storyType model.StoryType) string {
	instruction := "Follow classic 3-act structure (Setup, Confrontation, Resolution)."
	switch {
	case storyType == "history_learning":
		instruction = "Write a documentary outline with a clear golden thread. Each chapter flows like a narrated segment with momentum."
	case storyType == "paranormal" || storyType == "horror" || storyType == "survival":
		instruction = fmt.Sprintf(
			"Build around the character journey. Setup establishes motivation: %q. Confrontation challenges the protagonist. Resolution shows transformation: %q.",
			premise.ProtagonistMotivation, premise.NarrativeArc)
	}

	premiseJSON, _ := json.MarshalIndent(premise, "", "  ")
	return fmt.Sprintf(`You are a master showrunner. Create a detailed chapter outline for ~%d words.
STORY PREMISE: %s

INSTRUCTIONS:
1. Divide into 5-15 chapters
2. Each chapter: "title", flowing narrative "summary"
3. Assign "estimated_words" per chapter (sum = %d)
4. %s

Return STRICT JSON: { "outline": [ { "chapter": 1, "title": "...", "summary": "...", "estimated_words": 1500 } ] }`,
		totalWords, premiseJSON, totalWords, instruction)
}

// chapterContextChars bounds the trailing window of prior prose included in
// each chapter prompt. The full accumulated script is never sent.
const chapterContextChars = 1000

func chapterPrompt(premise model.Premise, outline []model.Chapter, index int, previousScript string, mode model.NarrationMode) string {
	chapter := outline[index]
	first := index == 0

	var opening, style string
	switch mode {
	case model.NarrationFirstPerson:
		opening = "Continue the first-person narrative."
		if first {
			opening = "Begin with a vivid first-person hook."
		}
		style = "Write in gripping first-person ('I saw', 'I felt'), emphasizing sensory details and tension."
	case model.NarrationInvestigative:
		opening = "Continue the objective analytical tone."
		if first {
			opening = "Open with a crisp factual hook."
		}
		style = "Write in a detailed investigative tone, like a case study."
	default:
		opening = "Continue the objective narrative."
		if first {
			opening = "Begin with a clean, direct hook."
		}
		style = "Maintain a consistent objective documentary tone."
	}

	tail := previousScript
	if len(tail) > chapterContextChars {
		tail = tail[runeStart(tail, len(tail)-chapterContextChars):]
	}
	premiseJSON, _ := json.MarshalIndent(premise, "", "  ")
	outlineJSON, _ := json.MarshalIndent(outline, "", "  ")

	return fmt.Sprintf(`You are a master novelist. Write Chapter %d: %q.

STORY PREMISE: %s
OUTLINE: %s
PREVIOUS SCRIPT (context):
---
%s
---

CHAPTER TASK:
- Summary: %q
- Target: ~%d words
- Reinforce protagonist motivation and emotional arc
- %s
- %s

RULES:
- Concrete nouns, powerful verbs
- Fluid uninterrupted prose
- No meta commentary, timestamps, bullets, academic labels
- No "Chapter X" in prose
- No special markers like [[BEAT]]

Return STRICT JSON: { "script_chapter": "<full chapter prose>" }`,
		chapter.Chapter, chapter.Title, premiseJSON, outlineJSON, tail,
		chapter.Summary, chapter.EstimatedWords, opening, style)
}

func scenePrompt(stamps []string, script string) string {
	stampsJSON, _ := json.Marshal(stamps)
	return fmt.Sprintf(`You are a cinematographer for a diffusion image model. Convert narration into ultra-photorealistic cinematic prompts.

TIMESTAMPS: %s
SCRIPT:
---
%s
---

INSTRUCTIONS:
1. One prompt per timestamp: highly specific, photorealistic, matching the exact action/emotion/setting at that moment
2. Focus on stable compositions, light, shadow, texture
3. Contemporary photorealism
4. Optional negative_prompt: "blurry, extra fingers, deformed, text, low contrast, cartoon, painting"
5. Include "camera", "lighting", "ar":"16:9"
6. For recurring characters: "character_tags": ["hiker:green parka"]
7. No timestamp in the prompt text; use the "t" field

Return STRICT JSON: { "scene_prompts_full": [ { "t":"MM:SS", "prompt":"...", "negative_prompt":"...", "camera":"...", "lighting":"...", "ar":"16:9", "seed":12345, "character_tags":["..."] } ] }`,
		stampsJSON, script)
}

func ingestMetadataPrompt(approxMinutes, totalWords int, excerpt string) string {
	return fmt.Sprintf(`You are an SEO and packaging expert for long-form narrated video.
A complete script has been provided (excerpted). Create accurate packaging from the script content.

FACTS:
- Duration: ~%d min
- Words: %d

EXCERPTS:
---
%s
---

Return STRICT JSON:
{
  "title": "Viral but honest title (48-62 chars).",
  "expanded_title": "Longer companion title.",
  "description": "2-3 engaging paragraphs.",
  "hashtags": ["#story", "#mystery"],
  "thumbnail_prompt": "One-frame poster faithful to the script. No text.",
  "hero_video_prompt": "5-8s video prompt for the opening mood."
}`, approxMinutes, totalWords, excerpt)
}

// runeStart backs a byte index up to the nearest UTF-8 rune boundary so
// script slicing never splits a multibyte character.
func runeStart(s string, i int) int {
	if i <= 0 {
		return 0
	}
	if i >= len(s) {
		return len(s)
	}
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// SqueezeExcerpt reduces a long script to a bounded excerpt built from its
// head, middle and tail thirds, so packaging prompts keep beginning, middle
// and ending signal instead of seeing only a truncated head.
func SqueezeExcerpt(script string, maxChars int) string {
	if maxChars <= 0 || len(script) <= maxChars {
		return script
	}
	third := maxChars / 3
	head := script[:runeStart(script, third)]
	midStart := runeStart(script, len(script)/2-third/2)
	mid := script[midStart:runeStart(script, midStart+third)]
	tail := script[runeStart(script, len(script)-third):]
	var b strings.Builder
	b.WriteString("HEAD:\n")
	b.WriteString(head)
	b.WriteString("\n\nMIDDLE:\n")
	b.WriteString(mid)
	b.WriteString("\n\nTAIL:\n")
	b.WriteString(tail)
	return b.String()
}
