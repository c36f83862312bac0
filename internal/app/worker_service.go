package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"foreman/internal/domain"
	"foreman/internal/ports"
)

const reportTimeout = 10 * time.Second

// WorkerService claims jobs for the services it has handlers for, runs them
// and reports the outcome back through the dispatch API.
type WorkerService struct {
	client     ports.DispatchClient
	limiter    *rate.Limiter
	logger     *slog.Logger
	jobTimeout time.Duration

	mu       sync.RWMutex
	handlers map[string]domain.JobHandler

	ctx    context.Context
	cancel context.CancelFunc
}

func NewWorkerService(parent context.Context, client ports.DispatchClient, opts ...Option) *WorkerService {
	o := buildOptions(opts)
	ctx, cancel := context.WithCancel(parent)
	return &WorkerService{
		client:     client,
		limiter:    rate.NewLimiter(rate.Every(o.pollInterval), 1),
		logger:     o.logger,
		jobTimeout: o.jobTimeout,
		handlers:   make(map[string]domain.JobHandler),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (s *WorkerService) RegisterHandler(serviceID string, handler domain.JobHandler) error {
	if serviceID == "" {
		return errors.New("service id cannot be empty")
	}
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	s.mu.Lock()
	s.handlers[canonicalServiceID(serviceID)] = handler
	s.mu.Unlock()
	return nil
}

// ProcessJobs polls the given services round-robin until the worker is
// stopped. Every poll round is rate limited.
func (s *WorkerService) ProcessJobs(serviceIDs []string) error {
	if len(serviceIDs) == 0 {
		return errors.New("no services specified for processing")
	}
	for _, id := range serviceIDs {
		if s.handler(id) == nil {
			return fmt.Errorf("no handler registered for service %q", id)
		}
	}

	for {
		if err := s.limiter.Wait(s.ctx); err != nil {
			<-s.ctx.Done()
			return s.ctx.Err()
		}
		for _, id := range serviceIDs {
			if s.ctx.Err() != nil {
				return s.ctx.Err()
			}
			s.poll(id)
		}
	}
}

func (s *WorkerService) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

func (s *WorkerService) handler(serviceID string) domain.JobHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handlers[canonicalServiceID(serviceID)]
}

// canonicalServiceID folds every textual form of a UUID onto the lowercase
// form the API returns. Other IDs are kept as given.
func canonicalServiceID(id string) string {
	id = strings.TrimSpace(id)
	if parsed, err := uuid.Parse(id); err == nil {
		return parsed.String()
	}
	return id
}

func (s *WorkerService) poll(serviceID string) {
	job, err := s.client.ClaimNext(s.ctx, serviceID)
	if err != nil {
		if s.ctx.Err() == nil {
			s.logger.Error("claim next job", slog.String("service_id", serviceID), slog.Any("error", err))
		}
		return
	}
	if job == nil {
		return
	}

	results, err := s.run(s.handler(serviceID), job)
	if err != nil {
		s.fail(job, err)
		return
	}
	if _, err := s.report(job.ID, domain.JobStatusCompleted, results); err != nil {
		s.logger.Error("report results", slog.String("job_id", job.ID), slog.Any("error", err))
		// Rejected results leave the job WORKING; record the rejection instead.
		s.fail(job, fmt.Errorf("results rejected: %w", err))
		return
	}
	s.logger.Info("job completed", slog.String("job_id", job.ID), slog.String("service_id", serviceID))
}

func (s *WorkerService) run(handler domain.JobHandler, job *domain.Job) (results json.RawMessage, err error) {
	jobCtx, cancel := context.WithTimeout(s.ctx, s.jobTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler(jobCtx, job)
}

func (s *WorkerService) fail(job *domain.Job, cause error) {
	payload, err := json.Marshal(map[string]string{"error": cause.Error()})
	if err != nil {
		s.logger.Error("encode job error", slog.String("job_id", job.ID), slog.Any("error", err))
		return
	}
	if _, err := s.report(job.ID, domain.JobStatusError, payload); err != nil {
		s.logger.Error("report job error", slog.String("job_id", job.ID), slog.Any("error", err))
		return
	}
	s.logger.Warn("job failed", slog.String("job_id", job.ID), slog.String("cause", cause.Error()))
}

// report outlives Stop so a claimed job is never left WORKING on shutdown.
func (s *WorkerService) report(jobID string, status domain.JobStatus, results json.RawMessage) (*domain.Job, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), reportTimeout)
	defer cancel()
	return s.client.UpdateJob(ctx, jobID, status, results)
}
