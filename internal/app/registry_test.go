package app

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foreman/internal/domain"
)

func TestServiceRegistry_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("new service is unavailable until it heartbeats", func(t *testing.T) {
		h := newHarness(t)
		service := h.service(t, "adder")

		assert.NotEmpty(t, service.ID)
		assert.Equal(t, h.clock.Now(), service.LastHeartbeat)
		assert.Equal(t, domain.DefaultHeartbeatTimeout, service.HeartbeatTimeout)
		assert.False(t, h.registry.IsAvailable(service))
	})

	t.Run("honours a caller supplied id", func(t *testing.T) {
		h := newHarness(t)
		id := uuid.NewString()
		service, err := h.registry.Register(ctx, domain.ServiceSpec{
			ID:                 strings.ToUpper(id),
			Name:               "adder",
			RegistrationSchema: registrationSchema,
			ResultSchema:       resultSchema,
		})
		require.NoError(t, err)
		assert.Equal(t, id, service.ID)

		_, err = h.registry.Register(ctx, domain.ServiceSpec{
			ID:                 id,
			Name:               "again",
			RegistrationSchema: registrationSchema,
			ResultSchema:       resultSchema,
		})
		assert.ErrorIs(t, err, domain.ErrDuplicateIdentifier)
	})

	t.Run("rejects a structurally invalid schema", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.registry.Register(ctx, domain.ServiceSpec{
			Name:               "broken",
			RegistrationSchema: registrationSchema,
			ResultSchema:       json.RawMessage(`{"type": 12}`),
		})

		var schemaErr *domain.SchemaError
		require.ErrorAs(t, err, &schemaErr)
		assert.ErrorIs(t, err, domain.ErrInvalidSchema)
		assert.Equal(t, "job_result_schema", schemaErr.Schema)
		assert.NotEmpty(t, schemaErr.Violations)

		services, err := h.registry.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, services)
	})

	t.Run("rejects a schema that is not JSON", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.registry.Register(ctx, domain.ServiceSpec{
			Name:               "broken",
			RegistrationSchema: json.RawMessage(`{not json`),
			ResultSchema:       resultSchema,
		})

		var schemaErr *domain.SchemaError
		require.ErrorAs(t, err, &schemaErr)
		assert.Equal(t, "job_registration_schema", schemaErr.Schema)
	})

	t.Run("validates the name", func(t *testing.T) {
		h := newHarness(t)
		for _, name := range []string{"", "   ", strings.Repeat("n", domain.MaxServiceName+1)} {
			_, err := h.registry.Register(ctx, domain.ServiceSpec{
				Name:               name,
				RegistrationSchema: registrationSchema,
				ResultSchema:       resultSchema,
			})
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr, "name %q", name)
			assert.Equal(t, "name", verr.Violations[0].Field)
		}
	})

	t.Run("requires both schemas", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.registry.Register(ctx, domain.ServiceSpec{Name: "adder"})

		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Len(t, verr.Violations, 2)
	})
}

func TestServiceRegistry_Heartbeat(t *testing.T) {
	ctx := context.Background()

	t.Run("makes the service available until the timeout elapses", func(t *testing.T) {
		h := newHarness(t)
		service := h.service(t, "adder")

		availability, err := h.registry.Heartbeat(ctx, service.ID)
		require.NoError(t, err)
		assert.True(t, availability.Available)

		h.clock.Advance(domain.DefaultHeartbeatTimeout - time.Second)
		service, err = h.registry.Get(ctx, service.ID)
		require.NoError(t, err)
		assert.True(t, h.registry.IsAvailable(service))

		h.clock.Advance(2 * time.Second)
		assert.False(t, h.registry.IsAvailable(service))

		availability, err = h.registry.Heartbeat(ctx, service.ID)
		require.NoError(t, err)
		assert.True(t, availability.Available)
		assert.Equal(t, h.clock.Now(), availability.LastHeartbeat)
	})

	t.Run("is idempotent", func(t *testing.T) {
		h := newHarness(t)
		service := h.service(t, "adder")
		h.clock.Advance(time.Second)

		first, err := h.registry.Heartbeat(ctx, service.ID)
		require.NoError(t, err)
		second, err := h.registry.Heartbeat(ctx, service.ID)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("unknown and malformed ids are not found", func(t *testing.T) {
		h := newHarness(t)
		for _, id := range []string{uuid.NewString(), "foo"} {
			_, err := h.registry.Heartbeat(ctx, id)
			assert.ErrorIs(t, err, domain.ErrNotFound)
		}
	})
}

func TestServiceRegistry_Delete(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	service := h.service(t, "adder")
	job := h.submit(t, service, nil)

	require.NoError(t, h.registry.Delete(ctx, service.ID))

	_, err := h.registry.Get(ctx, service.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = h.store.GetJob(ctx, job.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = h.registry.Delete(ctx, service.ID)
	var notFound *domain.NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, domain.ResourceService, notFound.Resource)
}
