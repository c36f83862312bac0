package app

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"foreman/internal/domain"
	"foreman/internal/ports"
)

// ServiceRegistry owns services and the heartbeat availability rule.
type ServiceRegistry struct {
	repo           ports.ServiceRepository
	validator      ports.SchemaValidator
	now            Clock
	logger         *slog.Logger
	defaultTimeout time.Duration
}

func NewServiceRegistry(repo ports.ServiceRepository, validator ports.SchemaValidator, opts ...Option) *ServiceRegistry {
	o := buildOptions(opts)
	return &ServiceRegistry{
		repo:           repo,
		validator:      validator,
		now:            o.clock,
		logger:         o.logger,
		defaultTimeout: o.heartbeatTimeout,
	}
}

// Register validates both schemas structurally and stores a new service,
// which stays unavailable until its first heartbeat.
func (r *ServiceRegistry) Register(ctx context.Context, spec domain.ServiceSpec) (*domain.Service, error) {
	spec.Name = strings.TrimSpace(spec.Name)
	if err := validateSpec(&spec); err != nil {
		return nil, err
	}

	schemas := []struct {
		name string
		doc  []byte
	}{
		{"job_registration_schema", spec.RegistrationSchema},
		{"job_result_schema", spec.ResultSchema},
	}
	for _, s := range schemas {
		violations, err := r.validator.CheckSchema(s.doc)
		if err != nil {
			return nil, err
		}
		if len(violations) > 0 {
			return nil, &domain.SchemaError{Schema: s.name, Violations: violations}
		}
	}

	if spec.HeartbeatTimeout <= 0 {
		spec.HeartbeatTimeout = r.defaultTimeout
	}

	service := domain.NewService(spec, r.now())
	if err := r.repo.CreateService(ctx, service); err != nil {
		return nil, err
	}

	r.logger.Info("service registered",
		slog.String("service_id", service.ID),
		slog.String("name", service.Name),
		slog.Duration("heartbeat_timeout", service.HeartbeatTimeout),
	)
	return service, nil
}

// Heartbeat records that the service is alive now.
func (r *ServiceRegistry) Heartbeat(ctx context.Context, serviceID string) (*domain.Availability, error) {
	id, err := normalizeID(domain.ResourceService, serviceID)
	if err != nil {
		return nil, err
	}
	service, err := r.repo.GetService(ctx, id)
	if err != nil {
		return nil, err
	}

	now := r.now()
	service, err = r.repo.TouchHeartbeat(ctx, id, service.HeartbeatAt(now))
	if err != nil {
		return nil, err
	}
	availability := service.Availability(now)
	return &availability, nil
}

// IsAvailable has no side effects; it only reads the clock.
func (r *ServiceRegistry) IsAvailable(service *domain.Service) bool {
	return service.IsAvailable(r.now())
}

func (r *ServiceRegistry) Get(ctx context.Context, serviceID string) (*domain.Service, error) {
	id, err := normalizeID(domain.ResourceService, serviceID)
	if err != nil {
		return nil, err
	}
	return r.repo.GetService(ctx, id)
}

func (r *ServiceRegistry) List(ctx context.Context) ([]*domain.Service, error) {
	return r.repo.ListServices(ctx)
}

// Delete removes the service and, through the store, all of its jobs.
func (r *ServiceRegistry) Delete(ctx context.Context, serviceID string) error {
	id, err := normalizeID(domain.ResourceService, serviceID)
	if err != nil {
		return err
	}
	if err := r.repo.DeleteService(ctx, id); err != nil {
		return err
	}
	r.logger.Info("service deleted", slog.String("service_id", id))
	return nil
}

func validateSpec(spec *domain.ServiceSpec) error {
	var violations []domain.Violation
	switch {
	case spec.Name == "":
		violations = append(violations, domain.Violation{Field: "name", Message: "is required"})
	case utf8.RuneCountInString(spec.Name) > domain.MaxServiceName:
		violations = append(violations, domain.Violation{Field: "name", Message: "must be at most 30 characters"})
	}
	if spec.ID != "" {
		parsed, err := uuid.Parse(spec.ID)
		if err != nil {
			violations = append(violations, domain.Violation{Field: "id", Message: "must be a UUID"})
		} else {
			spec.ID = parsed.String()
		}
	}
	if domain.IsAbsent(spec.RegistrationSchema) {
		violations = append(violations, domain.Violation{Field: "job_registration_schema", Message: "is required"})
	}
	if domain.IsAbsent(spec.ResultSchema) {
		violations = append(violations, domain.Violation{Field: "job_result_schema", Message: "is required"})
	}
	if len(violations) > 0 {
		return &domain.ValidationError{Violations: violations}
	}
	return nil
}

// normalizeID canonicalises a UUID; anything unparsable cannot name a stored
// resource and is reported as not found.
func normalizeID(resource, id string) (string, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", domain.NewNotFound(resource, id)
	}
	return parsed.String(), nil
}
