// Package client talks to the dispatch API over HTTP. Workers use it to
// heartbeat, claim jobs and report their outcome.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	httpapi "foreman/internal/adapters/http"
	"foreman/internal/domain"
	"foreman/internal/ports"
)

const apiPrefix = "/api/v1"

var _ ports.DispatchClient = (*Client)(nil)

// APIError is a non-2xx answer from the dispatch API. It matches the
// domain sentinel errors that produce the same status code.
type APIError struct {
	StatusCode int
	Message    string
	Violations []domain.Violation
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dispatch api error (status %d): %s", e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch e.StatusCode {
	case http.StatusNotFound:
		return target == domain.ErrNotFound
	case http.StatusConflict:
		return target == domain.ErrInvalidTransition
	case http.StatusBadRequest:
		return target == domain.ErrValidation
	}
	return false
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New returns a client for the API served at baseURL. Redirects are not
// followed; Next reads the Location header itself.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (c *Client) RegisterService(ctx context.Context, req httpapi.RegisterServiceRequest) (*domain.Service, error) {
	var out httpapi.ServiceResponse
	if _, err := c.do(ctx, http.MethodPost, apiPrefix+"/services", req, &out); err != nil {
		return nil, err
	}
	return toService(out), nil
}

func (c *Client) GetService(ctx context.Context, serviceID string) (*domain.Service, error) {
	var out httpapi.ServiceResponse
	if _, err := c.do(ctx, http.MethodGet, servicePath(serviceID), nil, &out); err != nil {
		return nil, err
	}
	return toService(out), nil
}

func (c *Client) Heartbeat(ctx context.Context, serviceID string) (*domain.Availability, error) {
	var out httpapi.AvailabilityResponse
	if _, err := c.do(ctx, http.MethodPatch, servicePath(serviceID), nil, &out); err != nil {
		return nil, err
	}
	return &domain.Availability{
		ServiceID:     out.ServiceID,
		Available:     out.IsAvailable,
		LastHeartbeat: out.LastCheckedIn,
		ExpiresAt:     out.ExpiresAt,
	}, nil
}

func (c *Client) SubmitJob(ctx context.Context, serviceID string, parameters json.RawMessage, jobSetID *string) (*domain.Job, error) {
	req := httpapi.SubmitJobRequest{Parameters: parameters, JobSetID: jobSetID}
	var out httpapi.JobResponse
	if _, err := c.do(ctx, http.MethodPost, servicePath(serviceID)+"/jobs", req, &out); err != nil {
		return nil, err
	}
	return toJob(out), nil
}

// ClaimNext returns nil without error when the service's queue is empty.
func (c *Client) ClaimNext(ctx context.Context, serviceID string) (*domain.Job, error) {
	var out httpapi.JobResponse
	resp, err := c.do(ctx, http.MethodPost, servicePath(serviceID)+"/queue", nil, &out)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	return toJob(out), nil
}

func (c *Client) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	var out httpapi.JobResponse
	if _, err := c.do(ctx, http.MethodGet, jobPath(jobID), nil, &out); err != nil {
		return nil, err
	}
	return toJob(out), nil
}

func (c *Client) UpdateJob(ctx context.Context, jobID string, status domain.JobStatus, results json.RawMessage) (*domain.Job, error) {
	req := httpapi.UpdateJobRequest{Status: string(status), Results: results}
	var out httpapi.JobResponse
	if _, err := c.do(ctx, http.MethodPatch, jobPath(jobID), req, &out); err != nil {
		return nil, err
	}
	return toJob(out), nil
}

// Next fetches the job submitted right after jobID in its scope, or nil
// when jobID is the last one.
func (c *Client) Next(ctx context.Context, jobID string) (*domain.Job, error) {
	resp, err := c.do(ctx, http.MethodGet, jobPath(jobID)+"/next", nil, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil || loc.Path == "" {
		return nil, fmt.Errorf("dispatch api: bad redirect location %q", resp.Header.Get("Location"))
	}
	return c.GetJob(ctx, path.Base(loc.Path))
}

func (c *Client) CreateJobSet(ctx context.Context, description string) (*domain.JobSet, error) {
	var out httpapi.JobSetResponse
	req := httpapi.CreateJobSetRequest{Description: description}
	if _, err := c.do(ctx, http.MethodPost, apiPrefix+"/job_sets", req, &out); err != nil {
		return nil, err
	}
	return &domain.JobSet{ID: out.ID, Description: out.Description, CreatedAt: out.CreatedAt}, nil
}

// do sends body as JSON and decodes the enveloped answer into out. The
// response body is already closed when do returns.
func (c *Client) do(ctx context.Context, method, p string, body, out any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("dispatch api: encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+p, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent, resp.StatusCode == http.StatusFound:
		return resp, nil
	case resp.StatusCode >= 400:
		return nil, decodeError(resp)
	}

	if out != nil {
		env := struct {
			Data any `json:"data"`
		}{Data: out}
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			return nil, fmt.Errorf("dispatch api: decode response: %w", err)
		}
	}
	return resp, nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(resp.Body)
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body httpapi.ErrorResponse
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
		apiErr.Violations = body.Violations
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}

// IsAPIStatus reports whether err is an APIError carrying code.
func IsAPIStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

func servicePath(id string) string { return apiPrefix + "/services/" + url.PathEscape(id) }

func jobPath(id string) string { return apiPrefix + "/jobs/" + url.PathEscape(id) }

func toService(r httpapi.ServiceResponse) *domain.Service {
	return &domain.Service{
		ID:                 r.ID,
		Name:               r.Name,
		Description:        r.Description,
		RegistrationSchema: r.JobRegistrationSchema,
		ResultSchema:       r.JobResultSchema,
		RegisteredAt:       r.RegisteredAt,
		LastHeartbeat:      r.LastCheckedIn,
		HeartbeatTimeout:   time.Duration(r.HeartbeatTimeoutSeconds) * time.Second,
	}
}

func toJob(r httpapi.JobResponse) *domain.Job {
	results := r.Results
	if string(results) == "null" {
		results = nil
	}
	return &domain.Job{
		ID:          r.ID,
		ServiceID:   r.ServiceID,
		Status:      r.Status,
		Parameters:  r.Parameters,
		Results:     results,
		SubmittedAt: r.DateSubmitted,
		UpdatedAt:   r.UpdatedAt,
		JobSetID:    r.JobSetID,
	}
}
