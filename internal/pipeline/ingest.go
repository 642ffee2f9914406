package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mfranzen/storyforge/internal/model"
	"github.com/mfranzen/storyforge/internal/timeline"
)

// effectiveMinutes derives the nominal duration of an ingested script: the
// caller-supplied value when present, otherwise the reading time at the
// configured rate, clamped to the admissible range.
func effectiveMinutes(requested *int, totalWords, readingRateWPM int) int {
	if requested != nil {
		return *requested
	}
	minutes := int(math.Round(float64(totalWords) / float64(readingRateWPM)))
	if minutes < model.MinTargetMinutes {
		minutes = model.MinTargetMinutes
	}
	if minutes > model.MaxTargetMinutes {
		minutes = model.MaxTargetMinutes
	}
	return minutes
}

func (r *Runner) runIngest(ctx context.Context, jobID string, req *model.IngestRequest) error {
	startedAt := time.Now()
	runLog := &model.RunLog{
		ID:        jobID,
		StoryType: req.StoryType,
		Ingest:    true,
	}

	// Stage 1: measure the script and package it from a bounded excerpt.
	r.jobs.MarkRunning(jobID, 5, "Step 1/4: Reading script...")
	script := strings.TrimSpace(req.Script)
	totalWords := timeline.WordCount(script)
	minutes := effectiveMinutes(req.TargetMinutes, totalWords, r.settings.ReadingRateWPM)
	runLog.TargetMinutes = minutes

	excerpt := SqueezeExcerpt(script, r.settings.MetadataExcerptMaxChars)
	var metaReply struct {
		Title           string   `json:"title"`
		ExpandedTitle   string   `json:"expanded_title"`
		Description     string   `json:"description"`
		Hashtags        []string `json:"hashtags"`
		ThumbnailPrompt string   `json:"thumbnail_prompt"`
		HeroVideoPrompt string   `json:"hero_video_prompt"`
	}
	if err := r.completeJSON(ctx, runLog, "ingest", "ingest_metadata",
		ingestMetadataPrompt(minutes, totalWords, excerpt), &metaReply); err != nil {
		return err
	}
	if strings.TrimSpace(metaReply.Title) == "" {
		return errors.New("ingest_metadata: reply carried no title")
	}
	art := &model.Artifact{
		Title:           metaReply.Title,
		ExpandedTitle:   metaReply.ExpandedTitle,
		Description:     metaReply.Description,
		Hashtags:        metaReply.Hashtags,
		ThumbnailPrompt: metaReply.ThumbnailPrompt,
		HeroVideoPrompt: metaReply.HeroVideoPrompt,
		Script:          script,
	}
	if err := r.checkpoint(ctx, jobID); err != nil {
		return err
	}

	// Stage 2: lay out the timestamp ladder. The ladder never extends past
	// the nominal duration, so the proportional script slicing below maps
	// the whole ladder across the whole script.
	r.jobs.Progress(jobID, 25, "Step 2/4: Laying out timestamps...")
	ladder := timeline.BuildLadder(minutes, r.settings.SceneStepSeconds)
	coreCount := len(ladder)
	if coreCount < 1 {
		coreCount = 1
	}

	// Stage 3: scene prompts in bounded chunks so per-call prompt size
	// stays flat for arbitrarily long scripts.
	r.jobs.Progress(jobID, 40, "Step 3/4: Generating visuals...")
	chunkSize := r.settings.MaxSceneStampsPerPass
	if chunkSize < 1 {
		chunkSize = 1
	}
	overlap := r.settings.SceneScriptOverlapChars
	scriptLen := len(script)

	var merged []model.SceneItem
	for start := 0; start < len(ladder); start += chunkSize {
		end := start + chunkSize
		if end > len(ladder) {
			end = len(ladder)
		}
		chunk := ladder[start:end]

		charStart := int(float64(start)/float64(coreCount)*float64(scriptLen)) - overlap
		if charStart < 0 {
			charStart = 0
		}
		charEnd := int(math.Ceil(float64(end)/float64(coreCount)*float64(scriptLen))) + overlap
		if charEnd > scriptLen {
			charEnd = scriptLen
		}
		slice := script[runeStart(script, charStart):runeStart(script, charEnd)]

		var sceneReply struct {
			ScenePromptsFull []model.SceneItem `json:"scene_prompts_full"`
		}
		step := fmt.Sprintf("scene_chunk_%d", start/chunkSize+1)
		if err := r.completeJSON(ctx, runLog, "ingest", step, scenePrompt(chunk, slice), &sceneReply); err != nil {
			// Scene prompts are best effort; an unusable chunk leaves its
			// stamps uncovered instead of failing the ingest.
			r.logger.Warn("scene chunk unusable, skipping",
				"job_id", jobID, "step", step, "error", err)
		} else {
			merged = append(merged, sceneReply.ScenePromptsFull...)
		}

		if err := r.checkpoint(ctx, jobID); err != nil {
			return err
		}
		pct := 40 + (end*50)/len(ladder)
		if pct > 90 {
			pct = 90
		}
		r.jobs.Progress(jobID, pct, fmt.Sprintf("Step 3/4: Visuals %d/%d...", end, len(ladder)))
	}
	art.ScenePrompts = merged

	// Stage 4: finalize exactly like the generate pipeline.
	art.AppendHashtags()
	art.Meta = model.ArtifactMeta{
		TargetMinutes:      minutes,
		ReadingRateWPM:     r.settings.ReadingRateWPM,
		EstimatedWordCount: totalWords,
		NarrationMode:      string(req.NarrationMode),
		PackagingStyle:     req.PackagingStyle,
		SeedTopic:          req.SeedTopic,
		Ingest:             true,
	}

	return r.persist(jobID, req.StoryType, "ingested-"+jobID, art, runLog, startedAt)
}
