// Package pipeline drives the staged model-call sequences that turn a job
// payload into a persisted story package. Each stage starts with a
// cancellation checkpoint, calls the model, folds the parsed reply into the
// accumulating artifact, and advances the job's progress.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mfranzen/storyforge/internal/llm"
	"github.com/mfranzen/storyforge/internal/metrics"
	"github.com/mfranzen/storyforge/internal/model"
	"github.com/mfranzen/storyforge/internal/storage"
	"github.com/mfranzen/storyforge/internal/timeline"
)

// Tracker is the slice of the job registry a runner needs: progress
// mutators plus the cancellation flag.
type Tracker interface {
	MarkRunning(id string, progress int, message string)
	Progress(id string, progress int, message string)
	MarkSaving(id string, progress int, message string)
	Finish(id, resultPath string)
	IsCanceled(id string) bool
}

// Settings are the tuning knobs shared by both pipelines.
type Settings struct {
	ReadingRateWPM          int
	SceneStepSeconds        int
	MaxSceneStampsPerPass   int
	SceneScriptOverlapChars int
	TitleVariantCount       int
	PackagingTitleMaxLen    int
	MetadataExcerptMaxChars int
}

// Runner executes generate and ingest jobs. Implements the registry's
// dispatch interface.
type Runner struct {
	jobs     Tracker
	client   llm.Client
	store    *storage.Store
	presets  Presets
	settings Settings
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewRunner wires a runner from its collaborators.
func NewRunner(jobs Tracker, client llm.Client, store *storage.Store, presets Presets, settings Settings, m *metrics.Metrics) *Runner {
	return &Runner{
		jobs:     jobs,
		client:   client,
		store:    store,
		presets:  presets,
		settings: settings,
		metrics:  m,
		logger:   slog.Default(),
	}
}

// Run dispatches a job to the pipeline matching its payload kind. A nil
// return means the job was settled as done; model.ErrCanceled means it
// stopped at a cancellation checkpoint.
func (r *Runner) Run(ctx context.Context, jobID string, payload model.Payload) error {
	switch payload.Kind {
	case model.PayloadGenerate:
		return r.runGenerate(ctx, jobID, payload.Generate)
	case model.PayloadIngest:
		return r.runIngest(ctx, jobID, payload.Ingest)
	default:
		return fmt.Errorf("unknown payload kind %q", payload.Kind)
	}
}

// checkpoint is consulted at the start of every stage and between chapters
// and scene chunks. Cancellation is cooperative: the in-flight model call is
// never aborted, the job stops here at the next opportunity.
func (r *Runner) checkpoint(ctx context.Context, jobID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.jobs.IsCanceled(jobID) {
		return model.ErrCanceled
	}
	return nil
}

// completeJSON performs one model call in JSON mode, records its duration
// and token usage in the run log, and decodes the last JSON object of the
// reply into out.
func (r *Runner) completeJSON(ctx context.Context, runLog *model.RunLog, pipelineName, step, user string, out any) error {
	start := time.Now()
	resp, err := r.client.Complete(ctx, llm.Request{
		Messages: llm.SystemUser(strictJSONSystem, user),
		JSONMode: true,
	})
	elapsed := time.Since(start)
	r.metrics.StageDuration.WithLabelValues(pipelineName, step).Observe(elapsed.Seconds())
	if err != nil {
		r.metrics.ModelCalls.WithLabelValues("error").Inc()
		return fmt.Errorf("%s: %w", step, err)
	}
	if err := llm.DecodeLast(resp.Content, out); err != nil {
		r.metrics.ModelCalls.WithLabelValues("malformed").Inc()
		return fmt.Errorf("%s: %w", step, err)
	}
	r.metrics.ModelCalls.WithLabelValues("ok").Inc()
	runLog.AddStep(step, elapsed.Milliseconds(), resp.Usage)
	return nil
}

// persist finalizes the artifact, writes it plus the sidecar run log, and
// settles the job as done. fallbackStem names the file when the title
// produces an empty slug.
func (r *Runner) persist(jobID string, storyType model.StoryType, fallbackStem string, art *model.Artifact, runLog *model.RunLog, startedAt time.Time) error {
	if err := art.Finalize(); err != nil {
		return err
	}

	r.jobs.MarkSaving(jobID, 95, "Saving story package...")

	base := storage.Slugify(art.Title)
	if base == "" {
		base = fallbackStem
	}
	path, base, err := r.store.WriteArtifact(string(storyType), base, jobID, art)
	if err != nil {
		return fmt.Errorf("persist artifact: %w", err)
	}

	runLog.TotalMS = time.Since(startedAt).Milliseconds()
	runLog.FinalWords = timeline.WordCount(art.Script)
	runLog.SavedPath = path
	if _, err := r.store.WriteRunLog(string(storyType), base, runLog); err != nil {
		// The artifact is already saved; a lost sidecar log costs
		// observability, not the job.
		r.logger.Warn("failed to write run log",
			"job_id", jobID,
			"category", storyType,
			"error", err,
		)
	}

	r.jobs.Finish(jobID, path)
	return nil
}
