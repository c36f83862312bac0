package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"foreman/internal/adapters/memory"
	"foreman/internal/adapters/schema"
	"foreman/internal/domain"
)

// MockEventPublisher is a mock implementation of ports.EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, event domain.JobEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEventPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

type DispatchServiceTestSuite struct {
	suite.Suite
	ctx       context.Context
	clock     *fakeClock
	publisher *MockEventPublisher
	dispatch  DispatchService
	service   *domain.Service
}

func (s *DispatchServiceTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = newFakeClock()
	s.publisher = &MockEventPublisher{}
	s.dispatch = NewDispatchService(memory.NewStore(), schema.NewValidator(),
		WithClock(s.clock.Now),
		WithEventPublisher(s.publisher),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	var err error
	s.service, err = s.dispatch.RegisterService(s.ctx, domain.ServiceSpec{
		Name:               "adder",
		RegistrationSchema: registrationSchema,
		ResultSchema:       resultSchema,
	})
	s.Require().NoError(err)
}

func (s *DispatchServiceTestSuite) expectEvent(eventType domain.JobEventType) {
	s.publisher.On("Publish", mock.Anything, mock.MatchedBy(func(e domain.JobEvent) bool {
		return e.Type == eventType
	})).Return(nil).Once()
}

func (s *DispatchServiceTestSuite) submit() *domain.Job {
	s.expectEvent(domain.JobEventSubmitted)
	job, err := s.dispatch.SubmitJob(s.ctx, s.service.ID, json.RawMessage(`{"value": 1}`), nil)
	s.Require().NoError(err)
	s.clock.Advance(time.Millisecond)
	return job
}

func (s *DispatchServiceTestSuite) TestJobLifecycle() {
	job := s.submit()

	head, err := s.dispatch.QueueHead(s.ctx, s.service.ID)
	s.Require().NoError(err)
	s.Equal(job.ID, head.ID)

	s.expectEvent(domain.JobEventClaimed)
	claimed, err := s.dispatch.ClaimNext(s.ctx, s.service.ID)
	s.Require().NoError(err)
	s.Equal(job.ID, claimed.ID)

	head, err = s.dispatch.QueueHead(s.ctx, s.service.ID)
	s.Require().NoError(err)
	s.Nil(head)

	s.expectEvent(domain.JobEventCompleted)
	done, err := s.dispatch.UpdateJob(s.ctx, job.ID, "completed", json.RawMessage(`{"result": 2}`))
	s.Require().NoError(err)
	s.Equal(domain.JobStatusCompleted, done.Status)

	got, err := s.dispatch.GetJob(s.ctx, strings.ToUpper(job.ID))
	s.Require().NoError(err)
	s.Equal(done, got)

	s.publisher.AssertExpectations(s.T())
}

func (s *DispatchServiceTestSuite) TestUpdateJobToWorkingClaims() {
	job := s.submit()

	s.expectEvent(domain.JobEventClaimed)
	working, err := s.dispatch.UpdateJob(s.ctx, job.ID, "WORKING", json.RawMessage(`{"ignored": true}`))
	s.Require().NoError(err)
	s.Equal(domain.JobStatusWorking, working.Status)
	s.Nil(working.Results)

	s.expectEvent(domain.JobEventFailed)
	failed, err := s.dispatch.UpdateJob(s.ctx, job.ID, "ERROR", json.RawMessage(`{"error": "boom"}`))
	s.Require().NoError(err)
	s.Equal(domain.JobStatusError, failed.Status)

	s.publisher.AssertExpectations(s.T())
}

func (s *DispatchServiceTestSuite) TestUpdateJobRejections() {
	job := s.submit()

	_, err := s.dispatch.UpdateJob(s.ctx, job.ID, "PAUSED", nil)
	var verr *domain.ValidationError
	s.Require().ErrorAs(err, &verr)
	s.Equal("status", verr.Violations[0].Field)

	_, err = s.dispatch.UpdateJob(s.ctx, job.ID, "COMPLETED", json.RawMessage(`{"result": 1}`))
	s.ErrorIs(err, domain.ErrInvalidTransition)

	_, err = s.dispatch.UpdateJob(s.ctx, uuid.NewString(), "WORKING", nil)
	s.ErrorIs(err, domain.ErrNotFound)

	// Only the submission was published.
	s.publisher.AssertNumberOfCalls(s.T(), "Publish", 1)
}

func (s *DispatchServiceTestSuite) TestPublishFailureDoesNotFailRequest() {
	s.publisher.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()

	job, err := s.dispatch.SubmitJob(s.ctx, s.service.ID, json.RawMessage(`{"value": 1}`), nil)
	s.Require().NoError(err)
	s.NotEmpty(job.ID)
}

func (s *DispatchServiceTestSuite) TestSubmitJobRejectsInvalidParameters() {
	_, err := s.dispatch.SubmitJob(s.ctx, s.service.ID, json.RawMessage(`{"value": "x"}`), nil)
	s.ErrorIs(err, domain.ErrValidation)

	jobs, err := s.dispatch.ListJobs(s.ctx, s.service.ID, 0)
	s.Require().NoError(err)
	s.Empty(jobs)
	s.publisher.AssertNotCalled(s.T(), "Publish", mock.Anything, mock.Anything)
}

func (s *DispatchServiceTestSuite) TestSubmitJobUnknownService() {
	for _, id := range []string{uuid.NewString(), "foo"} {
		_, err := s.dispatch.SubmitJob(s.ctx, id, json.RawMessage(`{"value": 1}`), nil)
		s.ErrorIs(err, domain.ErrNotFound)
	}
}

func (s *DispatchServiceTestSuite) TestNextInSequence() {
	first := s.submit()
	second := s.submit()

	next, err := s.dispatch.NextInSequence(s.ctx, first.ID)
	s.Require().NoError(err)
	s.Equal(second.ID, next.ID)

	next, err = s.dispatch.NextInSequence(s.ctx, second.ID)
	s.Require().NoError(err)
	s.Nil(next)

	_, err = s.dispatch.NextInSequence(s.ctx, "foo")
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *DispatchServiceTestSuite) TestJobSets() {
	set, err := s.dispatch.CreateJobSet(s.ctx, "  nightly batch  ")
	s.Require().NoError(err)
	s.Equal("nightly batch", set.Description)

	got, err := s.dispatch.GetJobSet(s.ctx, set.ID)
	s.Require().NoError(err)
	s.Equal(set.ID, got.ID)

	_, err = s.dispatch.CreateJobSet(s.ctx, strings.Repeat("d", domain.MaxJobSetDescription+1))
	s.ErrorIs(err, domain.ErrValidation)

	s.expectEvent(domain.JobEventSubmitted)
	job, err := s.dispatch.SubmitJob(s.ctx, s.service.ID, json.RawMessage(`{"value": 1}`), &set.ID)
	s.Require().NoError(err)
	s.Require().NotNil(job.JobSetID)
	s.Equal(set.ID, *job.JobSetID)

	missing := uuid.NewString()
	_, err = s.dispatch.SubmitJob(s.ctx, s.service.ID, json.RawMessage(`{"value": 1}`), &missing)
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *DispatchServiceTestSuite) TestListJobsLimit() {
	for i := 0; i < 5; i++ {
		s.submit()
	}

	jobs, err := s.dispatch.ListJobs(s.ctx, s.service.ID, 3)
	s.Require().NoError(err)
	s.Len(jobs, 3)

	jobs, err = s.dispatch.ListJobs(s.ctx, s.service.ID, 0)
	s.Require().NoError(err)
	s.Len(jobs, 5)

	_, err = s.dispatch.ListJobs(s.ctx, s.service.ID, -1)
	s.ErrorIs(err, domain.ErrValidation)
}

func (s *DispatchServiceTestSuite) TestDeleteService() {
	job := s.submit()

	s.Require().NoError(s.dispatch.DeleteService(s.ctx, s.service.ID))

	_, err := s.dispatch.GetJob(s.ctx, job.ID)
	s.ErrorIs(err, domain.ErrNotFound)
	services, err := s.dispatch.ListServices(s.ctx)
	s.Require().NoError(err)
	s.Empty(services)
}

func TestDispatchServiceTestSuite(t *testing.T) {
	suite.Run(t, new(DispatchServiceTestSuite))
}

func TestNewDispatchService_WithoutPublisher(t *testing.T) {
	dispatch := NewDispatchService(memory.NewStore(), schema.NewValidator())
	service, err := dispatch.RegisterService(context.Background(), domain.ServiceSpec{
		Name:               "adder",
		RegistrationSchema: registrationSchema,
		ResultSchema:       resultSchema,
	})
	require.NoError(t, err)

	job, err := dispatch.SubmitJob(context.Background(), service.ID, json.RawMessage(`{"value": 1}`), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusRegistered, job.Status)
}
