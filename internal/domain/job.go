package domain

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Job struct {
	ID          string
	ServiceID   string
	Status      JobStatus
	Parameters  json.RawMessage
	Results     json.RawMessage
	SubmittedAt time.Time
	UpdatedAt   time.Time
	JobSetID    *string
}

// JobSet groups jobs into an ordering scope narrower than their service.
type JobSet struct {
	ID          string
	Description string
	CreatedAt   time.Time
}

// MaxJobSetDescription is the longest description a job set may carry.
const MaxJobSetDescription = 140

func NewJob(serviceID string, parameters json.RawMessage, submittedAt time.Time) *Job {
	return &Job{
		ID:          uuid.NewString(),
		ServiceID:   serviceID,
		Status:      JobStatusRegistered,
		Parameters:  parameters,
		SubmittedAt: submittedAt,
		UpdatedAt:   submittedAt,
	}
}

func NewJobSet(description string, createdAt time.Time) *JobSet {
	return &JobSet{
		ID:          uuid.NewString(),
		Description: description,
		CreatedAt:   createdAt,
	}
}

// Key returns the job's position in its scope's total order.
func (j *Job) Key() JobKey {
	return JobKey{SubmittedAt: j.SubmittedAt, ID: j.ID}
}

// Scope returns the ordering scope the job belongs to.
func (j *Job) Scope() Scope {
	if j.JobSetID != nil {
		return Scope{Kind: ScopeJobSet, ID: *j.JobSetID}
	}
	return Scope{Kind: ScopeService, ID: j.ServiceID}
}

// InScope reports whether the job belongs to scope s.
func (j *Job) InScope(s Scope) bool {
	return j.Scope() == s
}

func (j *Job) Clone() *Job {
	cp := *j
	cp.Parameters = cloneRaw(j.Parameters)
	cp.Results = cloneRaw(j.Results)
	if j.JobSetID != nil {
		id := *j.JobSetID
		cp.JobSetID = &id
	}
	return &cp
}

// JobKey orders jobs by submission time, breaking ties by ID.
type JobKey struct {
	SubmittedAt time.Time
	ID          string
}

func (k JobKey) Less(other JobKey) bool {
	if !k.SubmittedAt.Equal(other.SubmittedAt) {
		return k.SubmittedAt.Before(other.SubmittedAt)
	}
	return k.ID < other.ID
}

type ScopeKind string

const (
	ScopeService ScopeKind = "service"
	ScopeJobSet  ScopeKind = "job_set"
)

type Scope struct {
	Kind ScopeKind
	ID   string
}

func (s Scope) String() string {
	return string(s.Kind) + ":" + s.ID
}

// JobFilter selects a page of a service's history.
type JobFilter struct {
	ServiceID string
	After     *JobKey
	Limit     int
}

// IsAbsent reports whether a JSON payload carries no value at all.
func IsAbsent(payload json.RawMessage) bool {
	trimmed := bytes.TrimSpace(payload)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	cp := make(json.RawMessage, len(raw))
	copy(cp, raw)
	return cp
}
