package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfranzen/storyforge/internal/metrics"
	"github.com/mfranzen/storyforge/internal/model"
)

type stubRunner struct {
	fn func(ctx context.Context, jobID string, payload model.Payload) error
}

func (s *stubRunner) Run(ctx context.Context, jobID string, payload model.Payload) error {
	return s.fn(ctx, jobID, payload)
}

func newTestRegistry(t *testing.T, maxConcurrency int) *Registry {
	t.Helper()
	return New(context.Background(), maxConcurrency, metrics.New(prometheus.NewRegistry()))
}

func generatePayload(minutes int) model.Payload {
	return model.NewGeneratePayload(&model.GenerateRequest{
		StoryType:     "paranormal",
		TargetMinutes: minutes,
	})
}

func waitForStatus(t *testing.T, r *Registry, id string, want model.JobStatus) model.Job {
	t.Helper()
	var job model.Job
	require.Eventually(t, func() bool {
		var ok bool
		job, ok = r.Get(id)
		return ok && job.Status == want
	}, 2*time.Second, 5*time.Millisecond, "job %s never reached %s", id, want)
	return job
}

func TestEnqueueRespectsConcurrencyCap(t *testing.T) {
	const maxConcurrency = 3
	r := newTestRegistry(t, maxConcurrency)

	release := make(chan struct{})
	started := make(chan string, maxConcurrency+2)
	r.SetRunner(&stubRunner{fn: func(ctx context.Context, jobID string, _ model.Payload) error {
		started <- jobID
		<-release
		r.MarkRunning(jobID, 10, "working")
		r.Finish(jobID, "/tmp/out.json")
		return nil
	}})

	ids := make([]string, 0, maxConcurrency+2)
	for i := 0; i < maxConcurrency+2; i++ {
		ids = append(ids, r.Enqueue(generatePayload(5)))
	}

	// Exactly maxConcurrency runners start; the rest stay queued.
	for i := 0; i < maxConcurrency; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatal("runner did not start")
		}
	}
	stats := r.Stats()
	assert.Equal(t, maxConcurrency, stats.Running)
	assert.Equal(t, 2, stats.Queued)

	views, _ := r.List()
	require.Len(t, views, maxConcurrency+2)
	queueIndexByID := map[string]int{}
	for _, v := range views {
		if v.QueueIndex != nil {
			queueIndexByID[v.ID] = *v.QueueIndex
		}
	}
	assert.Equal(t, map[string]int{ids[3]: 0, ids[4]: 1}, queueIndexByID)

	close(release)
	for _, id := range ids {
		job := waitForStatus(t, r, id, model.JobStatusDone)
		assert.Equal(t, 100, job.Progress)
		assert.Equal(t, "/tmp/out.json", job.ResultPath)
	}
	stats = r.Stats()
	assert.Zero(t, stats.Running)
	assert.Zero(t, stats.Queued)
}

func TestFIFOOrder(t *testing.T) {
	r := newTestRegistry(t, 1)

	var order []string
	release := make(chan struct{}, 10)
	r.SetRunner(&stubRunner{fn: func(ctx context.Context, jobID string, _ model.Payload) error {
		order = append(order, jobID)
		<-release
		r.Finish(jobID, "p")
		return nil
	}})

	var ids []string
	for i := 0; i < 4; i++ {
		ids = append(ids, r.Enqueue(generatePayload(5)))
	}
	for range ids {
		release <- struct{}{}
	}
	for _, id := range ids {
		waitForStatus(t, r, id, model.JobStatusDone)
	}
	assert.Equal(t, ids, order)
}

func TestCancelQueuedIsSynchronous(t *testing.T) {
	r := newTestRegistry(t, 1)

	blockFirst := make(chan struct{})
	r.SetRunner(&stubRunner{fn: func(ctx context.Context, jobID string, _ model.Payload) error {
		<-blockFirst
		r.Finish(jobID, "p")
		return nil
	}})

	first := r.Enqueue(generatePayload(5))
	second := r.Enqueue(generatePayload(5))
	third := r.Enqueue(generatePayload(5))

	require.True(t, r.Cancel(second))

	// Canceled synchronously, terminal, removed from the queue.
	job, ok := r.Get(second)
	require.True(t, ok)
	assert.Equal(t, model.JobStatusCanceled, job.Status)
	assert.Equal(t, 100, job.Progress)

	views, stats := r.List()
	assert.Equal(t, 1, stats.Queued)
	for _, v := range views {
		if v.ID == third {
			require.NotNil(t, v.QueueIndex)
			assert.Equal(t, 0, *v.QueueIndex)
		}
	}

	close(blockFirst)
	waitForStatus(t, r, first, model.JobStatusDone)
	waitForStatus(t, r, third, model.JobStatusDone)
}

func TestCancelRunningWaitsForCheckpoint(t *testing.T) {
	r := newTestRegistry(t, 1)

	started := make(chan struct{})
	release := make(chan struct{})
	r.SetRunner(&stubRunner{fn: func(ctx context.Context, jobID string, _ model.Payload) error {
		r.MarkRunning(jobID, 5, "working")
		close(started)
		<-release
		if r.IsCanceled(jobID) {
			return model.ErrCanceled
		}
		r.Finish(jobID, "p")
		return nil
	}})

	id := r.Enqueue(generatePayload(5))
	<-started

	require.True(t, r.Cancel(id))

	// Status unchanged until the runner reaches its checkpoint.
	job, _ := r.Get(id)
	assert.Equal(t, model.JobStatusRunning, job.Status)
	assert.True(t, r.IsCanceled(id))

	close(release)
	job = waitForStatus(t, r, id, model.JobStatusCanceled)
	assert.Equal(t, 100, job.Progress)
	assert.Empty(t, job.Error)
}

func TestCancelWinsOverRunnerFailure(t *testing.T) {
	r := newTestRegistry(t, 1)

	started := make(chan struct{})
	release := make(chan struct{})
	r.SetRunner(&stubRunner{fn: func(ctx context.Context, jobID string, _ model.Payload) error {
		r.MarkRunning(jobID, 5, "working")
		close(started)
		<-release
		// The interrupted call surfaces as an ordinary failure, not the
		// cancellation sentinel.
		return errors.New("model completion failed: connection reset")
	}})

	id := r.Enqueue(generatePayload(5))
	<-started

	require.True(t, r.Cancel(id))
	close(release)

	job := waitForStatus(t, r, id, model.JobStatusCanceled)
	assert.Equal(t, 100, job.Progress)
	assert.Empty(t, job.Error)
}

func TestCancelUnknownJob(t *testing.T) {
	r := newTestRegistry(t, 1)
	assert.False(t, r.Cancel("nope"))
}

func TestRunnerErrorSettlesAsError(t *testing.T) {
	r := newTestRegistry(t, 1)
	r.SetRunner(&stubRunner{fn: func(ctx context.Context, jobID string, _ model.Payload) error {
		r.MarkRunning(jobID, 5, "working")
		return errors.New("outline: reply carried no chapters")
	}})

	id := r.Enqueue(generatePayload(5))
	job := waitForStatus(t, r, id, model.JobStatusError)
	assert.Equal(t, 100, job.Progress)
	assert.Contains(t, job.Error, "no chapters")
}

func TestRunnerPanicSettlesAsErrorAndFreesSlot(t *testing.T) {
	r := newTestRegistry(t, 1)
	calls := 0
	r.SetRunner(&stubRunner{fn: func(ctx context.Context, jobID string, _ model.Payload) error {
		calls++
		if calls == 1 {
			panic("boom")
		}
		r.Finish(jobID, "p")
		return nil
	}})

	first := r.Enqueue(generatePayload(5))
	second := r.Enqueue(generatePayload(5))

	job := waitForStatus(t, r, first, model.JobStatusError)
	assert.Contains(t, job.Error, "panic")

	// The slot was released and the next job still ran.
	waitForStatus(t, r, second, model.JobStatusDone)
}

func TestTerminalStateIsAbsorbing(t *testing.T) {
	r := newTestRegistry(t, 1)
	done := make(chan struct{})
	r.SetRunner(&stubRunner{fn: func(ctx context.Context, jobID string, _ model.Payload) error {
		r.Finish(jobID, "final")
		close(done)
		return nil
	}})

	id := r.Enqueue(generatePayload(5))
	<-done
	job := waitForStatus(t, r, id, model.JobStatusDone)

	r.Progress(id, 10, "should not apply")
	r.MarkSaving(id, 50, "nor this")
	after, _ := r.Get(id)
	assert.Equal(t, job.Status, after.Status)
	assert.Equal(t, 100, after.Progress)
	assert.Equal(t, "Completed", after.Message)
}

func TestOnSettledCallback(t *testing.T) {
	r := newTestRegistry(t, 1)
	settled := make(chan model.Job, 1)
	r.SetOnSettled(func(job model.Job, payload model.Payload) {
		settled <- job
	})
	r.SetRunner(&stubRunner{fn: func(ctx context.Context, jobID string, _ model.Payload) error {
		r.Finish(jobID, "saved/path.json")
		return nil
	}})

	r.Enqueue(generatePayload(5))
	select {
	case job := <-settled:
		assert.Equal(t, model.JobStatusDone, job.Status)
		assert.Equal(t, "saved/path.json", job.ResultPath)
	case <-time.After(2 * time.Second):
		t.Fatal("settlement callback never fired")
	}
}

func TestOnSettledCallbackCarriesPayloadOnError(t *testing.T) {
	r := newTestRegistry(t, 1)
	type settlement struct {
		job     model.Job
		payload model.Payload
	}
	settled := make(chan settlement, 1)
	r.SetOnSettled(func(job model.Job, payload model.Payload) {
		settled <- settlement{job, payload}
	})
	r.SetRunner(&stubRunner{fn: func(ctx context.Context, jobID string, _ model.Payload) error {
		r.MarkRunning(jobID, 5, "working")
		return errors.New("premise: reply carried no hook")
	}})

	r.Enqueue(generatePayload(5))
	select {
	case s := <-settled:
		assert.Equal(t, model.JobStatusError, s.job.Status)
		assert.Equal(t, model.StoryType("paranormal"), s.payload.StoryType())
	case <-time.After(2 * time.Second):
		t.Fatal("settlement callback never fired")
	}
}

func TestListAnnotatesPayloadFields(t *testing.T) {
	r := newTestRegistry(t, 1)
	block := make(chan struct{})
	defer close(block)
	r.SetRunner(&stubRunner{fn: func(ctx context.Context, jobID string, _ model.Payload) error {
		<-block
		r.Finish(jobID, "p")
		return nil
	}})

	minutes := 45
	r.Enqueue(model.NewGeneratePayload(&model.GenerateRequest{
		StoryType:     "horror",
		TargetMinutes: minutes,
		SeedTopic:     "abandoned lighthouse",
	}))

	views, _ := r.List()
	require.Len(t, views, 1)
	assert.Equal(t, model.StoryType("horror"), views[0].StoryType)
	require.NotNil(t, views[0].TargetMinutes)
	assert.Equal(t, minutes, *views[0].TargetMinutes)
	assert.Equal(t, "abandoned lighthouse", views[0].SeedTopic)
}
