// internal/process/adapter.go
package process

import "time"

// JobStatus represents the lifecycle state of a document job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusTimedOut  JobStatus = "timed_out"
)

// Job captures the metadata the worker tracks for one call.
type Job struct {
	ID         string
	Kind       string
	Status     JobStatus
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

func NewJob(kind, id string) *Job {
	return &Job{
		ID:     id,
		Kind:   kind,
		Status: JobStatusPending,
	}
}

func MarkRunning(j *Job) {
	j.Status = JobStatusRunning
	j.StartedAt = time.Now()
}

func MarkSucceeded(j *Job) { finish(j, JobStatusSucceeded) }

func MarkTimedOut(j *Job) { finish(j, JobStatusTimedOut) }

func MarkFailed(j *Job, err error) {
	finish(j, JobStatusFailed)
	if err != nil {
		j.Error = err.Error()
	}
}

func finish(j *Job, status JobStatus) {
	j.Status = status
	j.FinishedAt = time.Now()
}

// Duration is the running time, or zero if the job never started.
func (j *Job) Duration() time.Duration {
	if j.StartedAt.IsZero() {
		return 0
	}
	end := j.FinishedAt
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(j.StartedAt)
}
