package model

import (
	"errors"
	"time"
)

// ErrCanceled is the sentinel returned by a pipeline runner when it stops at
// a cancellation checkpoint. The registry maps it to the canceled status
// instead of error.
var ErrCanceled = errors.New("canceled by user")

// JobStatus represents the lifecycle state of a job.
type JobStatus string

const (
	JobStatusQueued   JobStatus = "queued"
	JobStatusRunning  JobStatus = "running"
	JobStatusSaving   JobStatus = "saving"
	JobStatusDone     JobStatus = "done"
	JobStatusError    JobStatus = "error"
	JobStatusCanceled JobStatus = "canceled"
)

// Terminal reports whether the status is absorbing. No transition may leave
// a terminal status, and progress must be 100 when one is entered.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusDone, JobStatusError, JobStatusCanceled:
		return true
	default:
		return false
	}
}

// Job is one admitted generation request tracked from queued to a terminal
// status. Timestamps are Unix milliseconds for direct consumption by the UI.
type Job struct {
	ID         string    `json:"id"`
	Status     JobStatus `json:"status"`
	Progress   int       `json:"progress"`
	Message    string    `json:"message"`
	ResultPath string    `json:"resultPath,omitempty"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  int64     `json:"createdAt"`
	UpdatedAt  int64     `json:"updatedAt"`
}

// NowMillis returns the current wall clock as Unix milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// JobView is a Job annotated with payload-derived display fields. QueueIndex
// is the 0-based position among queued jobs and only present while queued.
type JobView struct {
	Job
	StoryType     StoryType `json:"story_type,omitempty"`
	TargetMinutes *int      `json:"target_minutes,omitempty"`
	SeedTopic     string    `json:"seed_topic,omitempty"`
	QueueIndex    *int      `json:"queue_index,omitempty"`
}

// QueueStats summarizes scheduler occupancy.
type QueueStats struct {
	Running        int `json:"running"`
	Queued         int `json:"queued"`
	MaxConcurrency int `json:"maxConcurrency"`
}
