// Package registry owns the job lifecycle: admission queue, concurrency
// accounting, cancellation flags and every job state mutation. All shared
// state lives behind one mutex; pipeline runners only touch jobs through
// the mutators here.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/mfranzen/storyforge/internal/metrics"
	"github.com/mfranzen/storyforge/internal/model"
)

// Runner executes one job to completion. A nil return means the runner
// settled the job itself (done); model.ErrCanceled maps to canceled; any
// other error maps to error status. The registry releases the concurrency
// slot in every case.
type Runner interface {
	Run(ctx context.Context, jobID string, payload model.Payload) error
}

// SettledFunc observes a job reaching a terminal status. Called on its own
// goroutine with copies; must not call back into the registry's mutators.
type SettledFunc func(job model.Job, payload model.Payload)

// Registry is the single owner of all job state. Constructed once at
// process start and passed by handle to the HTTP layer and runners.
type Registry struct {
	mu             sync.Mutex
	maxConcurrency int
	jobs           map[string]*model.Job
	payloads       map[string]model.Payload
	queue          []string
	canceled       map[string]struct{}
	running        int

	runner    Runner
	onSettled SettledFunc
	baseCtx   context.Context
	metrics   *metrics.Metrics
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// New creates an empty registry. ctx is the base context handed to runners;
// canceling it aborts in-flight model calls during shutdown.
func New(ctx context.Context, maxConcurrency int, m *metrics.Metrics) *Registry {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Registry{
		maxConcurrency: maxConcurrency,
		jobs:           make(map[string]*model.Job),
		payloads:       make(map[string]model.Payload),
		canceled:       make(map[string]struct{}),
		baseCtx:        ctx,
		metrics:        m,
		logger:         slog.Default(),
	}
}

// SetRunner wires the pipeline dispatcher. Must be called before Enqueue.
func (r *Registry) SetRunner(runner Runner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runner = runner
}

// SetOnSettled installs an optional terminal-state observer.
func (r *Registry) SetOnSettled(fn SettledFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onSettled = fn
}

// Enqueue admits a payload as a new queued job and returns its id. Never
// blocks: the id is handed back before any model call starts; dispatching
// happens on separate goroutines.
func (r *Registry) Enqueue(payload model.Payload) string {
	now := model.NowMillis()
	job := &model.Job{
		ID:        uuid.NewString(),
		Status:    model.JobStatusQueued,
		Progress:  0,
		Message:   "Queued",
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.jobs[job.ID] = job
	r.payloads[job.ID] = payload
	r.queue = append(r.queue, job.ID)
	r.metrics.JobsEnqueued.Inc()

	r.logger.Info("job enqueued",
		"job_id", job.ID,
		"kind", payload.Kind,
		"story_type", payload.StoryType(),
	)

	r.scheduleLocked()
	return job.ID
}

// Get returns a snapshot of one job.
func (r *Registry) Get(id string) (model.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return model.Job{}, false
	}
	return *job, true
}

// List returns all jobs annotated with payload-derived fields, oldest
// first, plus scheduler occupancy.
func (r *Registry) List() ([]model.JobView, model.QueueStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	views := make([]model.JobView, 0, len(r.jobs))
	for id, job := range r.jobs {
		view := model.JobView{Job: *job}
		if payload, ok := r.payloads[id]; ok {
			view.StoryType = payload.StoryType()
			view.TargetMinutes = payload.TargetMinutes()
			view.SeedTopic = payload.SeedTopic()
		}
		if job.Status == model.JobStatusQueued {
			if idx := slices.Index(r.queue, id); idx >= 0 {
				view.QueueIndex = &idx
			}
		}
		views = append(views, view)
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].CreatedAt != views[j].CreatedAt {
			return views[i].CreatedAt < views[j].CreatedAt
		}
		return views[i].ID < views[j].ID
	})

	return views, model.QueueStats{
		Running:        r.running,
		Queued:         len(r.queue),
		MaxConcurrency: r.maxConcurrency,
	}
}

// Stats returns current scheduler occupancy.
func (r *Registry) Stats() model.QueueStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return model.QueueStats{
		Running:        r.running,
		Queued:         len(r.queue),
		MaxConcurrency: r.maxConcurrency,
	}
}

// Cancel requests cancellation of a job. Returns false only when the id is
// unknown. A still-queued job transitions to canceled synchronously; a
// running job is flagged and settles at the runner's next checkpoint.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return false
	}
	r.canceled[id] = struct{}{}

	if idx := slices.Index(r.queue, id); idx >= 0 {
		r.queue = slices.Delete(r.queue, idx, idx+1)
		r.settleLocked(id, model.JobStatusCanceled, "Canceled by user", "", "")
		delete(r.payloads, id)
		r.metrics.QueueDepth.Set(float64(len(r.queue)))
		return true
	}

	if !job.Status.Terminal() {
		r.logger.Info("cancellation flagged for running job", "job_id", id)
	}
	return true
}

// IsCanceled reports whether cancellation has been requested for the job.
// Once set, the flag is never cleared.
func (r *Registry) IsCanceled(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.canceled[id]
	return ok
}

// MarkRunning moves a job out of queued with an initial progress message.
func (r *Registry) MarkRunning(id string, progress int, message string) {
	r.apply(id, func(j *model.Job) {
		j.Status = model.JobStatusRunning
		j.Progress = progress
		j.Message = message
	})
}

// Progress updates the progress percentage and step message.
func (r *Registry) Progress(id string, progress int, message string) {
	r.apply(id, func(j *model.Job) {
		j.Progress = progress
		j.Message = message
	})
}

// MarkSaving flags that the job's artifact persistence has begun.
func (r *Registry) MarkSaving(id string, progress int, message string) {
	r.apply(id, func(j *model.Job) {
		j.Status = model.JobStatusSaving
		j.Progress = progress
		j.Message = message
	})
}

// Finish settles a job as done with the persisted artifact path.
func (r *Registry) Finish(id, resultPath string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settleLocked(id, model.JobStatusDone, "Completed", "", resultPath)
}

// apply mutates a non-terminal job under the lock, stamping UpdatedAt.
func (r *Registry) apply(id string, fn func(*model.Job)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || job.Status.Terminal() {
		return
	}
	fn(job)
	job.UpdatedAt = model.NowMillis()
}

// settleLocked applies the exactly-once terminal transition. Progress is
// forced to 100 regardless of which terminal state is entered. Caller holds
// the mutex.
func (r *Registry) settleLocked(id string, status model.JobStatus, message, errMsg, resultPath string) {
	job, ok := r.jobs[id]
	if !ok || job.Status.Terminal() {
		return
	}
	job.Status = status
	job.Progress = 100
	job.Message = message
	job.Error = errMsg
	if resultPath != "" {
		job.ResultPath = resultPath
	}
	job.UpdatedAt = model.NowMillis()
	r.metrics.JobsSettled.WithLabelValues(string(status)).Inc()

	r.logger.Info("job settled",
		"job_id", id,
		"status", status,
		"result_path", resultPath,
		"error", errMsg,
	)

	if r.onSettled != nil {
		jobCopy := *job
		payload := r.payloads[id]
		go r.onSettled(jobCopy, payload)
	}
}

// scheduleLocked drains the queue into free concurrency slots. Caller holds
// the mutex. Jobs canceled while queued are settled and skipped without
// consuming a slot.
func (r *Registry) scheduleLocked() {
	for r.running < r.maxConcurrency && len(r.queue) > 0 {
		id := r.queue[0]
		r.queue = r.queue[1:]

		job, ok := r.jobs[id]
		payload, havePayload := r.payloads[id]
		if !ok || !havePayload {
			continue
		}
		if _, isCanceled := r.canceled[id]; isCanceled {
			if !job.Status.Terminal() {
				r.settleLocked(id, model.JobStatusCanceled, "Canceled before start", "", "")
			}
			delete(r.payloads, id)
			continue
		}

		r.running++
		r.metrics.JobsRunning.Set(float64(r.running))
		r.wg.Add(1)
		go r.dispatch(id, payload)
	}
	r.metrics.QueueDepth.Set(float64(len(r.queue)))
}

// dispatch runs one job and settles whatever state the runner left behind.
// The slot is released and scheduling resumes no matter how the runner
// exits, so one defective run can never stall admission.
func (r *Registry) dispatch(id string, payload model.Payload) {
	defer r.wg.Done()

	err := r.runSafely(id, payload)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.running--
	if r.running < 0 {
		r.running = 0
	}

	if job, ok := r.jobs[id]; ok && !job.Status.Terminal() {
		_, wasCanceled := r.canceled[id]
		switch {
		case wasCanceled || errors.Is(err, model.ErrCanceled):
			// Cancellation wins over any failure the interrupted run
			// surfaced on its way out.
			r.settleLocked(id, model.JobStatusCanceled, "Canceled by user", "", "")
		case err != nil:
			r.settleLocked(id, model.JobStatusError, "Failed", err.Error(), "")
		default:
			// Runner returned nil without finishing the job; treat as a
			// defect rather than leaving the job stuck non-terminal.
			r.settleLocked(id, model.JobStatusError, "Failed", "runner exited without completing the job", "")
		}
	}

	// Payload outlives the settlement so the terminal-state observer still
	// sees story type and friends.
	delete(r.payloads, id)

	r.metrics.JobsRunning.Set(float64(r.running))
	r.scheduleLocked()
}

// runSafely invokes the runner, converting panics into errors so the
// dispatch loop survives them.
func (r *Registry) runSafely(id string, payload model.Payload) (err error) {
	defer func() {
		if v := recover(); v != nil {
			r.logger.Error("runner panic recovered",
				"job_id", id,
				"panic", v,
				"stack_trace", string(debug.Stack()),
			)
			err = fmt.Errorf("runner panic: %v", v)
		}
	}()

	if r.runner == nil {
		return errors.New("no runner configured")
	}
	return r.runner.Run(r.baseCtx, id, payload)
}

// Drain waits for in-flight runners to settle or the context to expire.
// Used during graceful shutdown.
func (r *Registry) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
