package app

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"foreman/internal/adapters/memory"
	"foreman/internal/adapters/schema"
	"foreman/internal/domain"
)

var (
	registrationSchema = json.RawMessage(`{
		"type": "object",
		"properties": {"value": {"type": "integer"}},
		"required": ["value"],
		"additionalProperties": false
	}`)
	resultSchema = json.RawMessage(`{
		"type": "object",
		"properties": {"result": {"type": "integer"}},
		"required": ["result"]
	}`)
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	store    *memory.Store
	clock    *fakeClock
	registry *ServiceRegistry
	queue    *JobQueue
	machine  *JobStateMachine
	seq      *JobSequencer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.NewStore()
	validator := schema.NewValidator()
	clock := newFakeClock()
	opt := WithClock(clock.Now)
	return &harness{
		store:    store,
		clock:    clock,
		registry: NewServiceRegistry(store, validator, opt),
		queue:    NewJobQueue(store, validator, opt),
		machine:  NewJobStateMachine(store, store, validator, opt),
		seq:      NewJobSequencer(store),
	}
}

func (h *harness) service(t *testing.T, name string) *domain.Service {
	t.Helper()
	service, err := h.registry.Register(context.Background(), domain.ServiceSpec{
		Name:               name,
		RegistrationSchema: registrationSchema,
		ResultSchema:       resultSchema,
	})
	require.NoError(t, err)
	return service
}

// submit enqueues a job and advances the clock so submissions are spaced.
func (h *harness) submit(t *testing.T, service *domain.Service, jobSetID *string) *domain.Job {
	t.Helper()
	job, err := h.queue.Enqueue(context.Background(), service, json.RawMessage(`{"value": 1}`), jobSetID)
	require.NoError(t, err)
	h.clock.Advance(time.Millisecond)
	return job
}
