package model

import (
	"errors"
	"fmt"
	"strings"
)

// Premise is the dramatized core of a generated story.
type Premise struct {
	Hook                  string `json:"hook"`
	Protagonist           string `json:"protagonist"`
	ProtagonistMotivation string `json:"protagonist_motivation,omitempty"`
	Action                string `json:"action"`
	NarrativeArc          string `json:"narrative_arc,omitempty"`
}

// FullTopic condenses the premise into a one-line topic used for ranking
// and packaging prompts.
func (p Premise) FullTopic() string {
	return fmt.Sprintf("%s - %s %s", p.Hook, p.Protagonist, p.Action)
}

// Chapter is one entry of the generated outline.
type Chapter struct {
	Chapter        int    `json:"chapter"`
	Title          string `json:"title"`
	Summary        string `json:"summary"`
	EstimatedWords int    `json:"estimated_words"`
}

// SceneItem is one visual prompt aligned to a timestamp of the ladder.
type SceneItem struct {
	T              string   `json:"t,omitempty"`
	Prompt         string   `json:"prompt"`
	NegativePrompt string   `json:"negative_prompt,omitempty"`
	Camera         string   `json:"camera,omitempty"`
	Lighting       string   `json:"lighting,omitempty"`
	AR             string   `json:"ar,omitempty"`
	Seed           int64    `json:"seed,omitempty"`
	CharacterTags  []string `json:"character_tags,omitempty"`
}

// ArtifactMeta is the metadata record persisted with every artifact.
type ArtifactMeta struct {
	TargetMinutes      int      `json:"target_minutes"`
	ReadingRateWPM     int      `json:"reading_rate_wpm"`
	EstimatedWordCount int      `json:"estimated_word_count"`
	NarrationMode      string   `json:"narration_mode,omitempty"`
	PackagingStyle     string   `json:"packaging_style,omitempty"`
	SeedTopic          string   `json:"seed_topic,omitempty"`
	Ingest             bool     `json:"ingest,omitempty"`
	StoryPremise       *Premise `json:"story_premise,omitempty"`
}

// Artifact is the final story package persisted for a successful job. It is
// accumulated stage by stage; Finalize gates persistence on the required
// fields being present.
type Artifact struct {
	Title           string       `json:"title"`
	AltTitles       []string     `json:"alt_titles,omitempty"`
	ExpandedTitle   string       `json:"expanded_title,omitempty"`
	Description     string       `json:"description"`
	Hashtags        []string     `json:"hashtags"`
	ThumbnailPrompt string       `json:"thumbnail_prompt"`
	HeroVideoPrompt string       `json:"hero_video_prompt"`
	ScenePrompts    []SceneItem  `json:"scene_prompts"`
	Script          string       `json:"script"`
	Meta            ArtifactMeta `json:"meta"`
}

// AppendHashtags folds the hashtag list into the description, prefixing each
// tag with '#' when missing.
func (a *Artifact) AppendHashtags() {
	if len(a.Hashtags) == 0 {
		a.Description = strings.TrimSpace(a.Description)
		return
	}
	tags := make([]string, 0, len(a.Hashtags))
	for _, h := range a.Hashtags {
		if !strings.HasPrefix(h, "#") {
			h = "#" + h
		}
		tags = append(tags, h)
	}
	a.Description = strings.TrimSpace(a.Description) + "\n\n" + strings.Join(tags, " ")
}

// Finalize rejects an artifact that is still missing required fields. A
// pipeline must never persist an incomplete package.
func (a *Artifact) Finalize() error {
	var missing []string
	if strings.TrimSpace(a.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(a.Description) == "" {
		missing = append(missing, "description")
	}
	if strings.TrimSpace(a.Script) == "" {
		missing = append(missing, "script")
	}
	if strings.TrimSpace(a.ThumbnailPrompt) == "" {
		missing = append(missing, "thumbnail_prompt")
	}
	if len(missing) > 0 {
		return errors.New("incomplete artifact: missing " + strings.Join(missing, ", "))
	}
	if a.ScenePrompts == nil {
		a.ScenePrompts = []SceneItem{}
	}
	return nil
}

// StepLog records one pipeline stage for the sidecar run log.
type StepLog struct {
	Name       string `json:"name"`
	DurationMS int64  `json:"ms"`
	Usage      any    `json:"usage,omitempty"`
}

// RunLog is the per-job execution log persisted next to the artifact.
type RunLog struct {
	ID            string    `json:"id"`
	StoryType     StoryType `json:"story_type"`
	TargetMinutes int       `json:"target_minutes,omitempty"`
	Ingest        bool      `json:"ingest,omitempty"`
	Steps         []StepLog `json:"steps"`
	TotalMS       int64     `json:"total_ms"`
	FinalWords    int       `json:"final_words,omitempty"`
	SavedPath     string    `json:"saved,omitempty"`
}

// AddStep appends a step entry.
func (l *RunLog) AddStep(name string, durationMS int64, usage any) {
	l.Steps = append(l.Steps, StepLog{Name: name, DurationMS: durationMS, Usage: usage})
}
