package http

import (
	"encoding/json"
	"time"

	"foreman/internal/domain"
)

type RegisterServiceRequest struct {
	ID                      string          `json:"id"`
	Name                    string          `json:"name"`
	Description             string          `json:"description"`
	JobRegistrationSchema   json.RawMessage `json:"job_registration_schema"`
	JobResultSchema         json.RawMessage `json:"job_result_schema"`
	HeartbeatTimeoutSeconds int             `json:"heartbeat_timeout_seconds" binding:"gte=0"`
}

func (r RegisterServiceRequest) ToDomain() domain.ServiceSpec {
	return domain.ServiceSpec{
		ID:                 r.ID,
		Name:               r.Name,
		Description:        r.Description,
		RegistrationSchema: r.JobRegistrationSchema,
		ResultSchema:       r.JobResultSchema,
		HeartbeatTimeout:   time.Duration(r.HeartbeatTimeoutSeconds) * time.Second,
	}
}

type SubmitJobRequest struct {
	Parameters json.RawMessage `json:"parameters"`
	JobSetID   *string         `json:"job_set_id"`
}

type UpdateJobRequest struct {
	Status  string          `json:"status" binding:"required"`
	Results json.RawMessage `json:"results"`
}

type CreateJobSetRequest struct {
	Description string `json:"description"`
}

type listJobsQuery struct {
	Limit int `form:"limit" binding:"gte=0"`
}

type ServiceResponse struct {
	ID                      string          `json:"service_id"`
	Name                    string          `json:"name"`
	Description             string          `json:"description"`
	JobRegistrationSchema   json.RawMessage `json:"job_registration_schema"`
	JobResultSchema         json.RawMessage `json:"job_result_schema"`
	RegisteredAt            time.Time       `json:"registered_at"`
	LastCheckedIn           time.Time       `json:"last_checked_in"`
	HeartbeatTimeoutSeconds int             `json:"heartbeat_timeout_seconds"`
	IsAvailable             bool            `json:"is_available"`
}

func NewServiceResponse(s *domain.Service, now time.Time) ServiceResponse {
	return ServiceResponse{
		ID:                      s.ID,
		Name:                    s.Name,
		Description:             s.Description,
		JobRegistrationSchema:   s.RegistrationSchema,
		JobResultSchema:         s.ResultSchema,
		RegisteredAt:            s.RegisteredAt,
		LastCheckedIn:           s.LastHeartbeat,
		HeartbeatTimeoutSeconds: int(s.HeartbeatTimeout / time.Second),
		IsAvailable:             s.IsAvailable(now),
	}
}

type AvailabilityResponse struct {
	ServiceID     string    `json:"service_id"`
	IsAvailable   bool      `json:"is_available"`
	LastCheckedIn time.Time `json:"last_checked_in"`
	ExpiresAt     time.Time `json:"expires_at"`
}

func NewAvailabilityResponse(a *domain.Availability) AvailabilityResponse {
	return AvailabilityResponse{
		ServiceID:     a.ServiceID,
		IsAvailable:   a.Available,
		LastCheckedIn: a.LastHeartbeat,
		ExpiresAt:     a.ExpiresAt,
	}
}

type JobResponse struct {
	ID            string           `json:"job_id"`
	ServiceID     string           `json:"service_id"`
	Status        domain.JobStatus `json:"status"`
	Parameters    json.RawMessage  `json:"parameters"`
	Results       json.RawMessage  `json:"results"`
	DateSubmitted time.Time        `json:"date_submitted"`
	UpdatedAt     time.Time        `json:"updated_at"`
	JobSetID      *string          `json:"job_set_id"`
}

func NewJobResponse(j *domain.Job) JobResponse {
	results := j.Results
	if results == nil {
		results = json.RawMessage("null")
	}
	return JobResponse{
		ID:            j.ID,
		ServiceID:     j.ServiceID,
		Status:        j.Status,
		Parameters:    j.Parameters,
		Results:       results,
		DateSubmitted: j.SubmittedAt,
		UpdatedAt:     j.UpdatedAt,
		JobSetID:      j.JobSetID,
	}
}

func NewJobResponses(jobs []*domain.Job) []JobResponse {
	out := make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, NewJobResponse(j))
	}
	return out
}

type JobSetResponse struct {
	ID          string    `json:"job_set_id"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

func NewJobSetResponse(s *domain.JobSet) JobSetResponse {
	return JobSetResponse{ID: s.ID, Description: s.Description, CreatedAt: s.CreatedAt}
}

type Links struct {
	Self string `json:"self"`
}

// JobListMeta describes how to submit a job to the listed service.
type JobListMeta struct {
	NewJobSchema map[string]any `json:"new_job_schema"`
}

// NewJobSchema wraps a registration schema into the schema a submit request
// body must satisfy.
func NewJobSchema(registration json.RawMessage) map[string]any {
	return map[string]any{
		"$schema":     "http://json-schema.org/draft-04/schema#",
		"title":       "New Job Schema",
		"description": "The schema that a POST request must satisfy in order to create a new job",
		"type":        "object",
		"properties": map[string]any{
			"parameters": registration,
		},
		"required": []string{"parameters"},
	}
}

// Metadata is served from the API root.
type Metadata struct {
	Name             string `json:"name"`
	Version          string `json:"version"`
	SourceRepository string `json:"source_repository,omitempty"`
}

type ErrorResponse struct {
	Error      string             `json:"error"`
	Violations []domain.Violation `json:"violations,omitempty"`
}
