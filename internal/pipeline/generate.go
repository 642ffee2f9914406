package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mfranzen/storyforge/internal/llm"
	"github.com/mfranzen/storyforge/internal/model"
	"github.com/mfranzen/storyforge/internal/timeline"
)

// outlineWordFloor is the minimum word allocation any chapter keeps after
// reconciliation.
const outlineWordFloor = 50

// reconcileOutline forces the per-chapter word allocations to sum to
// required by folding the whole delta into the last chapter, floored so the
// allocation never goes below outlineWordFloor. All other chapters are left
// untouched.
func reconcileOutline(outline []model.Chapter, required int) []model.Chapter {
	if len(outline) == 0 {
		return outline
	}
	sum := 0
	for _, ch := range outline {
		sum += ch.EstimatedWords
	}
	if delta := required - sum; delta != 0 {
		last := &outline[len(outline)-1]
		last.EstimatedWords += delta
		if last.EstimatedWords < outlineWordFloor {
			last.EstimatedWords = outlineWordFloor
		}
	}
	return outline
}

func (r *Runner) runGenerate(ctx context.Context, jobID string, req *model.GenerateRequest) error {
	startedAt := time.Now()
	runLog := &model.RunLog{
		ID:            jobID,
		StoryType:     req.StoryType,
		TargetMinutes: req.TargetMinutes,
	}
	preset := r.presets.Get(req.StoryType)

	seed := strings.TrimSpace(req.SeedTopic)
	if seed == "" {
		seed = DefaultSeed(req.StoryType)
	}

	// Stage 1: premise. The first call also drafts the packaging fields
	// (description, hashtags, visual prompts) so later stages only refine.
	r.jobs.MarkRunning(jobID, 5, "Step 1/5: Developing premise...")
	var premiseReply struct {
		StoryPremise    model.Premise `json:"story_premise"`
		Description     string        `json:"description"`
		Hashtags        []string      `json:"hashtags"`
		ThumbnailPrompt string        `json:"thumbnail_prompt"`
		HeroVideoPrompt string        `json:"hero_video_prompt"`
	}
	if err := r.completeJSON(ctx, runLog, "generate", "story_premise",
		premisePrompt(seed, req.TargetMinutes, preset), &premiseReply); err != nil {
		return err
	}
	premise := premiseReply.StoryPremise
	if strings.TrimSpace(premise.Hook) == "" {
		return errors.New("story_premise: reply carried no hook")
	}
	art := &model.Artifact{
		Description:     premiseReply.Description,
		Hashtags:        premiseReply.Hashtags,
		ThumbnailPrompt: premiseReply.ThumbnailPrompt,
		HeroVideoPrompt: premiseReply.HeroVideoPrompt,
	}
	if err := r.checkpoint(ctx, jobID); err != nil {
		return err
	}

	// Stage 2: title candidates, then a ranking pass. An unusable ranking
	// falls back to the unranked candidates unmodified.
	r.jobs.Progress(jobID, 15, "Step 2/5: Generating titles...")
	var titlesReply struct {
		Titles []string `json:"titles"`
	}
	if err := r.completeJSON(ctx, runLog, "generate", "title_variants",
		titleVariantsPrompt(premise, r.settings.TitleVariantCount, r.settings.PackagingTitleMaxLen, preset),
		&titlesReply); err != nil {
		return err
	}
	if len(titlesReply.Titles) == 0 {
		return errors.New("title_variants: reply carried no titles")
	}

	titles := r.rankTitles(ctx, runLog, jobID, premise.FullTopic(), titlesReply.Titles)
	art.Title = titles[0]
	art.AltTitles = titles

	if err := r.checkpoint(ctx, jobID); err != nil {
		return err
	}

	// Stage 3: outline covering the full target word count.
	r.jobs.Progress(jobID, 25, "Step 3/5: Building outline...")
	requiredWords := req.TargetMinutes * r.settings.ReadingRateWPM
	var outlineReply struct {
		Outline []model.Chapter `json:"outline"`
	}
	if err := r.completeJSON(ctx, runLog, "generate", "outline",
		outlinePrompt(premise, requiredWords, req.StoryType), &outlineReply); err != nil {
		return err
	}
	if len(outlineReply.Outline) == 0 {
		return errors.New("outline: reply carried no chapters")
	}
	outline := reconcileOutline(outlineReply.Outline, requiredWords)
	if err := r.checkpoint(ctx, jobID); err != nil {
		return err
	}

	// Stage 4: chapters, sequentially, each prompt seeing only a bounded
	// trailing window of the prose written so far.
	var script strings.Builder
	for i := range outline {
		progress := 35 + (i*40)/len(outline)
		r.jobs.Progress(jobID, progress, fmt.Sprintf("Step 4/5: Writing chapter %d/%d...", i+1, len(outline)))

		var chapterReply struct {
			ScriptChapter string `json:"script_chapter"`
		}
		step := fmt.Sprintf("chapter_%d", i+1)
		if err := r.completeJSON(ctx, runLog, "generate", step,
			chapterPrompt(premise, outline, i, script.String(), req.NarrationMode), &chapterReply); err != nil {
			return err
		}
		if strings.TrimSpace(chapterReply.ScriptChapter) == "" {
			return fmt.Errorf("chapter %d: reply carried no prose", i+1)
		}
		script.WriteString(chapterReply.ScriptChapter)
		script.WriteString("\n\n")

		if err := r.checkpoint(ctx, jobID); err != nil {
			return err
		}
	}
	art.Script = strings.TrimSpace(script.String())

	// Stage 5: scene prompts over the full ladder. Best effort: a reply
	// whose count does not match the ladder is discarded rather than padded
	// or truncated, so the artifact can ship with zero scene prompts.
	r.jobs.Progress(jobID, 80, "Step 5/5: Generating visuals...")
	ladder := timeline.BuildLadder(req.TargetMinutes, r.settings.SceneStepSeconds)
	art.ScenePrompts = r.generateScenes(ctx, runLog, jobID, ladder, art.Script)
	if err := r.checkpoint(ctx, jobID); err != nil {
		return err
	}

	art.AppendHashtags()
	art.Meta = model.ArtifactMeta{
		TargetMinutes:      req.TargetMinutes,
		ReadingRateWPM:     r.settings.ReadingRateWPM,
		EstimatedWordCount: timeline.WordCount(art.Script),
		NarrationMode:      string(req.NarrationMode),
		PackagingStyle:     req.PackagingStyle,
		SeedTopic:          req.SeedTopic,
		StoryPremise:       &premise,
	}

	return r.persist(jobID, req.StoryType, "story-"+jobID, art, runLog, startedAt)
}

// rankTitles asks the model to order the candidates by expected
// click-through. Any failure falls back to the unranked list.
func (r *Runner) rankTitles(ctx context.Context, runLog *model.RunLog, jobID, topic string, candidates []string) []string {
	payload, err := json.Marshal(map[string][]string{"titles": candidates})
	if err != nil {
		return candidates
	}

	start := time.Now()
	resp, err := r.client.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: strictJSONSystem},
			{Role: "user", Content: titleRankerPrompt(topic, r.settings.PackagingTitleMaxLen)},
			{Role: "user", Content: string(payload)},
		},
		JSONMode: true,
	})
	elapsed := time.Since(start)
	r.metrics.StageDuration.WithLabelValues("generate", "title_rank").Observe(elapsed.Seconds())
	if err != nil {
		r.metrics.ModelCalls.WithLabelValues("error").Inc()
		r.logger.Warn("title ranking failed, keeping unranked candidates", "job_id", jobID, "error", err)
		return candidates
	}

	var rankReply struct {
		Ranked []struct {
			Title string `json:"title"`
			Score int    `json:"score"`
			Why   string `json:"why"`
		} `json:"ranked"`
	}
	if err := llm.DecodeLast(resp.Content, &rankReply); err != nil || len(rankReply.Ranked) == 0 {
		r.metrics.ModelCalls.WithLabelValues("malformed").Inc()
		r.logger.Warn("title ranking unusable, keeping unranked candidates", "job_id", jobID, "error", err)
		return candidates
	}
	r.metrics.ModelCalls.WithLabelValues("ok").Inc()
	runLog.AddStep("title_rank", elapsed.Milliseconds(), resp.Usage)

	ranked := make([]string, 0, len(rankReply.Ranked))
	for _, entry := range rankReply.Ranked {
		if entry.Title != "" {
			ranked = append(ranked, entry.Title)
		}
	}
	if len(ranked) == 0 {
		return candidates
	}
	return ranked
}

// generateScenes requests one prompt per ladder stamp in a single call.
// Returns nil when the reply is malformed or the count mismatches.
func (r *Runner) generateScenes(ctx context.Context, runLog *model.RunLog, jobID string, ladder []string, script string) []model.SceneItem {
	var sceneReply struct {
		ScenePromptsFull []model.SceneItem `json:"scene_prompts_full"`
	}
	if err := r.completeJSON(ctx, runLog, "generate", "scene_prompts",
		scenePrompt(ladder, script), &sceneReply); err != nil {
		r.logger.Warn("scene prompt generation failed, continuing without scenes",
			"job_id", jobID, "error", err)
		return nil
	}
	if len(sceneReply.ScenePromptsFull) != len(ladder) {
		r.logger.Warn("scene prompt count mismatch, discarding batch",
			"job_id", jobID,
			"want", len(ladder),
			"got", len(sceneReply.ScenePromptsFull),
		)
		return nil
	}
	return sceneReply.ScenePromptsFull
}
