package domain

import (
	"time"

	"github.com/google/uuid"
)

type JobEventType string

const (
	JobEventSubmitted JobEventType = "job.submitted"
	JobEventClaimed   JobEventType = "job.claimed"
	JobEventCompleted JobEventType = "job.completed"
	JobEventFailed    JobEventType = "job.failed"
)

// JobEvent is a lifecycle notification emitted after a job changes.
type JobEvent struct {
	ID         string       `json:"id"`
	Type       JobEventType `json:"type"`
	JobID      string       `json:"job_id"`
	ServiceID  string       `json:"service_id"`
	JobSetID   *string      `json:"job_set_id,omitempty"`
	Status     JobStatus    `json:"status"`
	OccurredAt time.Time    `json:"occurred_at"`
}

func NewJobEvent(eventType JobEventType, job *Job, at time.Time) JobEvent {
	return JobEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		JobID:      job.ID,
		ServiceID:  job.ServiceID,
		JobSetID:   job.JobSetID,
		Status:     job.Status,
		OccurredAt: at,
	}
}

// EventTypeFor maps the status a job just entered to its event type.
func EventTypeFor(status JobStatus) JobEventType {
	switch status {
	case JobStatusWorking:
		return JobEventClaimed
	case JobStatusCompleted:
		return JobEventCompleted
	case JobStatusError:
		return JobEventFailed
	default:
		return JobEventSubmitted
	}
}
