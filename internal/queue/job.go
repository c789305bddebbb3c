package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusRetrying   JobStatus = "retrying"
	StatusDead       JobStatus = "dead"
)

// Job is one provider event waiting to be dispatched for one tenant.
type Job struct {
	ID          string          `json:"id"`
	TenantID    uuid.UUID       `json:"tenant_id"`
	EventID     string          `json:"event_id"`
	EventType   string          `json:"event_type"`
	Payload     json.RawMessage `json:"payload"`
	Status      JobStatus       `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	LastError   string          `json:"last_error,omitempty"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	NextAttempt *time.Time      `json:"next_attempt,omitempty"`
}

// lastTouched is when a worker last did anything with the job.
func (j *Job) lastTouched() time.Time {
	if j.StartedAt != nil && j.StartedAt.After(j.UpdatedAt) {
		return *j.StartedAt
	}
	if !j.UpdatedAt.IsZero() {
		return j.UpdatedAt
	}
	return j.EnqueuedAt
}

// Backoff returns the delay before retry number attempt (1-based): base,
// then doubling, never more than max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempt; i++ {
		if max > 0 && delay >= max/2 {
			return max
		}
		delay *= 2
	}
	if max > 0 && delay > max {
		return max
	}
	return delay
}
