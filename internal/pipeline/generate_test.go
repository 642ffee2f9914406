package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfranzen/storyforge/internal/llm"
	"github.com/mfranzen/storyforge/internal/llm/llmtest"
	"github.com/mfranzen/storyforge/internal/metrics"
	"github.com/mfranzen/storyforge/internal/model"
	"github.com/mfranzen/storyforge/internal/storage"
	"github.com/mfranzen/storyforge/internal/timeline"
)

// fakeTracker records job mutations the way the registry would apply them.
type fakeTracker struct {
	mu         sync.Mutex
	progress   []int
	messages   []string
	saving     bool
	finished   bool
	resultPath string
	canceled   bool
}

func (f *fakeTracker) MarkRunning(id string, progress int, message string) {
	f.record(progress, message)
}

func (f *fakeTracker) Progress(id string, progress int, message string) {
	f.record(progress, message)
}

func (f *fakeTracker) MarkSaving(id string, progress int, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saving = true
	f.progress = append(f.progress, progress)
	f.messages = append(f.messages, message)
}

func (f *fakeTracker) Finish(id, resultPath string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = true
	f.resultPath = resultPath
}

func (f *fakeTracker) IsCanceled(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.canceled
}

func (f *fakeTracker) record(progress int, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, progress)
	f.messages = append(f.messages, message)
}

func testSettings() Settings {
	return Settings{
		ReadingRateWPM:          150,
		SceneStepSeconds:        30,
		MaxSceneStampsPerPass:   120,
		SceneScriptOverlapChars: 1200,
		TitleVariantCount:       8,
		PackagingTitleMaxLen:    70,
		MetadataExcerptMaxChars: 8000,
	}
}

func storageForTest(t *testing.T) *storage.Store {
	t.Helper()
	return storage.NewStore(t.TempDir())
}

func newRunnerWith(t *testing.T, tracker *fakeTracker, client llm.Client, store *storage.Store, settings Settings) *Runner {
	t.Helper()
	return NewRunner(tracker, client, store, DefaultPresets(), settings, metrics.New(prometheus.NewRegistry()))
}

func newTestRunner(t *testing.T, tracker *fakeTracker, client llm.Client) (*Runner, *storage.Store) {
	t.Helper()
	store := storageForTest(t)
	return newRunnerWith(t, tracker, client, store, testSettings()), store
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

// generateResponder answers every generate-pipeline prompt with a minimal
// well-formed reply. Chapters are sized so the final script clears the
// required word floor.
func generateResponder(t *testing.T, chapterWords int, sceneCount int) func(llm.Request) (*llm.Response, error) {
	return func(req llm.Request) (*llm.Response, error) {
		prompt := req.Messages[len(req.Messages)-1].Content
		if len(req.Messages) >= 2 {
			prompt = req.Messages[1].Content
		}
		var content string
		switch {
		case strings.Contains(prompt, "master storyteller"):
			content = mustJSON(t, map[string]any{
				"story_premise": map[string]string{
					"hook":                   "IT SAVED ME",
					"protagonist":            "A retired ranger",
					"protagonist_motivation": "Searching for his lost dog",
					"action":                 "Guided out of a blizzard by something enormous",
					"narrative_arc":          "From skeptic to quiet believer",
				},
				"description":       "A ranger walks into the storm.",
				"hashtags":          []string{"story", "#mystery"},
				"thumbnail_prompt":  "A snowbound ridge at dusk",
				"hero_video_prompt": "Slow push through falling snow",
			})
		case strings.Contains(prompt, "title variants"):
			content = mustJSON(t, map[string]any{
				"titles": []string{"'IT SAVED ME' - Ranger Guided Through Blizzard - Survival Story", "'IN THE STORM' - A Ranger's Account - Survival Story"},
			})
		case strings.Contains(prompt, "Rank these titles"):
			content = mustJSON(t, map[string]any{
				"ranked": []map[string]any{
					{"title": "'IN THE STORM' - A Ranger's Account - Survival Story", "score": 91, "why": "stronger hook"},
					{"title": "'IT SAVED ME' - Ranger Guided Through Blizzard - Survival Story", "score": 80, "why": "solid"},
				},
			})
		case strings.Contains(prompt, "master showrunner"):
			content = mustJSON(t, map[string]any{
				"outline": []map[string]any{
					{"chapter": 1, "title": "The Storm", "summary": "It begins", "estimated_words": 400},
					{"chapter": 2, "title": "The Shape", "summary": "It appears", "estimated_words": 300},
				},
			})
		case strings.Contains(prompt, "master novelist"):
			content = mustJSON(t, map[string]string{
				"script_chapter": strings.TrimSpace(strings.Repeat("snow fell hard ", chapterWords/3)),
			})
		case strings.Contains(prompt, "cinematographer"):
			scenes := make([]map[string]string, sceneCount)
			for i := range scenes {
				scenes[i] = map[string]string{
					"t":      fmt.Sprintf("%02d:%02d", (i+1)/2, ((i+1)%2)*30),
					"prompt": "a ridge in snow",
				}
			}
			content = mustJSON(t, map[string]any{"scene_prompts_full": scenes})
		default:
			t.Fatalf("unexpected prompt: %.80s", prompt)
		}
		return &llm.Response{Content: content, Model: "test-model", Usage: llm.TokenUsage{TotalTokens: 10}}, nil
	}
}

func TestReconcileOutline(t *testing.T) {
	t.Run("positive delta folds into last chapter", func(t *testing.T) {
		outline := []model.Chapter{
			{Chapter: 1, EstimatedWords: 300},
			{Chapter: 2, EstimatedWords: 200},
		}
		got := reconcileOutline(outline, 750)
		assert.Equal(t, 300, got[0].EstimatedWords)
		assert.Equal(t, 450, got[1].EstimatedWords)
	})

	t.Run("negative delta shrinks last chapter", func(t *testing.T) {
		outline := []model.Chapter{
			{Chapter: 1, EstimatedWords: 500},
			{Chapter: 2, EstimatedWords: 400},
		}
		got := reconcileOutline(outline, 750)
		assert.Equal(t, 500, got[0].EstimatedWords)
		assert.Equal(t, 250, got[1].EstimatedWords)
	})

	t.Run("floor applies when delta would go negative", func(t *testing.T) {
		outline := []model.Chapter{
			{Chapter: 1, EstimatedWords: 700},
			{Chapter: 2, EstimatedWords: 600},
		}
		got := reconcileOutline(outline, 750)
		assert.Equal(t, 700, got[0].EstimatedWords)
		assert.Equal(t, outlineWordFloor, got[1].EstimatedWords)
	})

	t.Run("exact sum unchanged", func(t *testing.T) {
		outline := []model.Chapter{
			{Chapter: 1, EstimatedWords: 400},
			{Chapter: 2, EstimatedWords: 350},
		}
		got := reconcileOutline(outline, 750)
		assert.Equal(t, 400, got[0].EstimatedWords)
		assert.Equal(t, 350, got[1].EstimatedWords)
	})

	t.Run("empty outline untouched", func(t *testing.T) {
		assert.Empty(t, reconcileOutline(nil, 750))
	})
}

func TestGenerateEndToEnd(t *testing.T) {
	tracker := &fakeTracker{}
	// 5 min at step 30 yields 10 ladder stamps; chapters large enough to
	// clear the 5*150 word requirement.
	mock := &llmtest.MockClient{Respond: generateResponder(t, 600, 10)}
	runner, _ := newTestRunner(t, tracker, mock)

	err := runner.Run(context.Background(), "job-1", model.NewGeneratePayload(&model.GenerateRequest{
		StoryType:     "paranormal",
		TargetMinutes: 5,
		SeedTopic:     "a ranger in a blizzard",
		NarrationMode: model.NarrationDocumentary,
	}))
	require.NoError(t, err)

	require.True(t, tracker.finished)
	require.NotEmpty(t, tracker.resultPath)
	assert.True(t, tracker.saving)

	raw, err := os.ReadFile(tracker.resultPath)
	require.NoError(t, err)
	var art model.Artifact
	require.NoError(t, json.Unmarshal(raw, &art))

	// Top-ranked title wins; alternates retained.
	assert.Equal(t, "'IN THE STORM' - A Ranger's Account - Survival Story", art.Title)
	assert.Len(t, art.AltTitles, 2)

	assert.GreaterOrEqual(t, timeline.WordCount(art.Script), 5*150)
	assert.Len(t, art.ScenePrompts, 10)
	assert.Contains(t, art.Description, "#story")
	assert.Contains(t, art.Description, "#mystery")
	assert.Equal(t, 5, art.Meta.TargetMinutes)
	require.NotNil(t, art.Meta.StoryPremise)
	assert.Equal(t, "IT SAVED ME", art.Meta.StoryPremise.Hook)

	// Sidecar run log written next to the artifact.
	logPath := strings.TrimSuffix(tracker.resultPath, ".json") + ".log.json"
	logRaw, err := os.ReadFile(logPath)
	require.NoError(t, err)
	var runLog model.RunLog
	require.NoError(t, json.Unmarshal(logRaw, &runLog))
	assert.Equal(t, "job-1", runLog.ID)
	assert.NotEmpty(t, runLog.Steps)
}

func TestGenerateSceneCountMismatchIsNonFatal(t *testing.T) {
	tracker := &fakeTracker{}
	// Ladder wants 10 prompts, responder returns 3: the batch is dropped.
	mock := &llmtest.MockClient{Respond: generateResponder(t, 600, 3)}
	runner, _ := newTestRunner(t, tracker, mock)

	err := runner.Run(context.Background(), "job-2", model.NewGeneratePayload(&model.GenerateRequest{
		StoryType:     "paranormal",
		TargetMinutes: 5,
	}))
	require.NoError(t, err)
	require.True(t, tracker.finished)

	raw, err := os.ReadFile(tracker.resultPath)
	require.NoError(t, err)
	var art model.Artifact
	require.NoError(t, json.Unmarshal(raw, &art))
	assert.Empty(t, art.ScenePrompts)
}

func TestGenerateMissingPremiseHookFails(t *testing.T) {
	tracker := &fakeTracker{}
	mock := &llmtest.MockClient{Responses: []*llm.Response{
		{Content: `{"story_premise":{"hook":""},"description":"x"}`, Model: "test-model"},
	}}
	runner, _ := newTestRunner(t, tracker, mock)

	err := runner.Run(context.Background(), "job-3", model.NewGeneratePayload(&model.GenerateRequest{
		StoryType:     "paranormal",
		TargetMinutes: 5,
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hook")
	assert.False(t, tracker.finished)
}

func TestGenerateStopsAtCancellationCheckpoint(t *testing.T) {
	tracker := &fakeTracker{}
	mock := &llmtest.MockClient{Respond: func(req llm.Request) (*llm.Response, error) {
		// Cancellation lands while the first call is in flight.
		tracker.mu.Lock()
		tracker.canceled = true
		tracker.mu.Unlock()
		return generateResponder(t, 600, 10)(req)
	}}
	runner, _ := newTestRunner(t, tracker, mock)

	err := runner.Run(context.Background(), "job-4", model.NewGeneratePayload(&model.GenerateRequest{
		StoryType:     "paranormal",
		TargetMinutes: 5,
	}))
	require.ErrorIs(t, err, model.ErrCanceled)
	assert.False(t, tracker.finished)
	// Only the in-flight premise call completed.
	assert.Equal(t, 1, mock.Calls())
}

func TestRankTitlesFallsBackWhenUnusable(t *testing.T) {
	tracker := &fakeTracker{}
	mock := &llmtest.MockClient{Respond: func(req llm.Request) (*llm.Response, error) {
		prompt := req.Messages[1].Content
		if strings.Contains(prompt, "Rank these titles") {
			return &llm.Response{Content: "not json at all", Model: "test-model"}, nil
		}
		return generateResponder(t, 600, 10)(req)
	}}
	runner, _ := newTestRunner(t, tracker, mock)

	err := runner.Run(context.Background(), "job-5", model.NewGeneratePayload(&model.GenerateRequest{
		StoryType:     "paranormal",
		TargetMinutes: 5,
	}))
	require.NoError(t, err)

	raw, err := os.ReadFile(tracker.resultPath)
	require.NoError(t, err)
	var art model.Artifact
	require.NoError(t, json.Unmarshal(raw, &art))
	// Unranked candidate order preserved.
	assert.Equal(t, "'IT SAVED ME' - Ranger Guided Through Blizzard - Survival Story", art.Title)
}
