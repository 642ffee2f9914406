package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfranzen/storyforge/internal/model"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialDelayMs: 1, MaxDelayMs: 5, Multiplier: 1.0}
}

func settledJob() (model.Job, model.Payload) {
	job := model.Job{
		ID:         "job-1",
		Status:     model.JobStatusDone,
		Progress:   100,
		Message:    "Story package saved",
		ResultPath: "projects/paranormal/night-watch.json",
		CreatedAt:  1000,
		UpdatedAt:  61000,
	}
	payload := model.NewGeneratePayload(&model.GenerateRequest{
		StoryType:     "paranormal",
		TargetMinutes: 30,
	})
	return job, payload
}

func TestJobSettledDeliversPayload(t *testing.T) {
	var mu sync.Mutex
	var received []SettlementPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p SettlementPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		mu.Lock()
		received = append(received, p)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewNotifier(server.URL, 5*time.Second, fastRetry())
	job, payload := settledJob()
	notifier.JobSettled(job, payload)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, "job-1", received[0].ID)
	assert.Equal(t, model.JobStatusDone, received[0].Status)
	assert.Equal(t, "projects/paranormal/night-watch.json", received[0].ResultPath)
	assert.Equal(t, model.StoryType("paranormal"), received[0].StoryType)
	assert.Equal(t, int64(60000), received[0].DurationMS)
}

func TestJobSettledRetriesServerErrors(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewNotifier(server.URL, 5*time.Second, fastRetry())
	job, payload := settledJob()
	notifier.JobSettled(job, payload)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, attempts)
}

func TestJobSettledDoesNotRetryClientErrors(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	notifier := NewNotifier(server.URL, 5*time.Second, fastRetry())
	job, payload := settledJob()
	notifier.JobSettled(job, payload)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, attempts)
}

func TestRetryConfigDelay(t *testing.T) {
	c := RetryConfig{InitialDelayMs: 1000, MaxDelayMs: 30000, Multiplier: 2.0, MaxAttempts: 10}
	assert.Equal(t, 1000*time.Millisecond, c.delay(1))
	assert.Equal(t, 2000*time.Millisecond, c.delay(2))
	assert.Equal(t, 4000*time.Millisecond, c.delay(3))
	assert.Equal(t, 30000*time.Millisecond, c.delay(10))
}

func TestShouldRetryClassification(t *testing.T) {
	c := RetryConfig{MaxAttempts: 3}
	assert.True(t, c.shouldRetry(1, 0, assert.AnError))
	assert.True(t, c.shouldRetry(1, 429, nil))
	assert.True(t, c.shouldRetry(1, 503, nil))
	assert.False(t, c.shouldRetry(1, 404, nil))
	assert.False(t, c.shouldRetry(3, 500, nil), "attempts exhausted")
}
