package app

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foreman/internal/domain"
)

func TestJobStateMachine_Transition(t *testing.T) {
	ctx := context.Background()

	claimed := func(t *testing.T, h *harness) *domain.Job {
		t.Helper()
		service := h.service(t, "adder")
		h.submit(t, service, nil)
		job, err := h.queue.ClaimNext(ctx, service)
		require.NoError(t, err)
		require.NotNil(t, job)
		return job
	}

	t.Run("completes with valid results", func(t *testing.T) {
		h := newHarness(t)
		job := claimed(t, h)

		done, err := h.machine.Transition(ctx, job, domain.JobStatusCompleted, json.RawMessage(`{"result": 2}`))
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusCompleted, done.Status)
		assert.JSONEq(t, `{"result": 2}`, string(done.Results))
	})

	t.Run("rejected results leave the job working", func(t *testing.T) {
		h := newHarness(t)
		job := claimed(t, h)

		_, err := h.machine.Transition(ctx, job, domain.JobStatusCompleted, json.RawMessage(`{"result": "two"}`))
		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "result", verr.Violations[0].Field)

		stored, err := h.store.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusWorking, stored.Status)
		assert.Nil(t, stored.Results)
	})

	t.Run("terminal states require a payload", func(t *testing.T) {
		h := newHarness(t)
		job := claimed(t, h)

		for _, to := range []domain.JobStatus{domain.JobStatusCompleted, domain.JobStatusError} {
			for _, payload := range []json.RawMessage{nil, json.RawMessage(`null`)} {
				_, err := h.machine.Transition(ctx, job, to, payload)
				assert.ErrorIs(t, err, domain.ErrValidation, "%s with %q", to, payload)
			}
		}
	})

	t.Run("error accepts any description", func(t *testing.T) {
		h := newHarness(t)
		job := claimed(t, h)

		failed, err := h.machine.Transition(ctx, job, domain.JobStatusError, json.RawMessage(`"boom"`))
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusError, failed.Status)
		assert.JSONEq(t, `"boom"`, string(failed.Results))
	})

	t.Run("illegal transitions are rejected", func(t *testing.T) {
		h := newHarness(t)
		service := h.service(t, "adder")
		registered := h.submit(t, service, nil)

		_, err := h.machine.Transition(ctx, registered, domain.JobStatusCompleted, json.RawMessage(`{"result": 1}`))
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)

		job, err := h.queue.ClaimNext(ctx, service)
		require.NoError(t, err)
		done, err := h.machine.Transition(ctx, job, domain.JobStatusCompleted, json.RawMessage(`{"result": 1}`))
		require.NoError(t, err)

		for _, to := range []domain.JobStatus{domain.JobStatusRegistered, domain.JobStatusWorking, domain.JobStatusError, domain.JobStatusCompleted} {
			_, err := h.machine.Transition(ctx, done, to, json.RawMessage(`{"result": 1}`))
			assert.ErrorIs(t, err, domain.ErrInvalidTransition, "COMPLETED -> %s", to)
		}
	})

	t.Run("a stale view loses to the stored status", func(t *testing.T) {
		h := newHarness(t)
		job := claimed(t, h)

		_, err := h.machine.Transition(ctx, job, domain.JobStatusError, json.RawMessage(`{"error": "x"}`))
		require.NoError(t, err)

		_, err = h.machine.Transition(ctx, job, domain.JobStatusCompleted, json.RawMessage(`{"result": 1}`))
		var terr *domain.InvalidTransitionError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, domain.JobStatusError, terr.From)
	})

	t.Run("racing transitions have one winner", func(t *testing.T) {
		h := newHarness(t)
		job := claimed(t, h)

		const racers = 10
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				to, payload := domain.JobStatusCompleted, json.RawMessage(`{"result": 1}`)
				if i%2 == 1 {
					to, payload = domain.JobStatusError, json.RawMessage(`{"error": "x"}`)
				}
				_, err := h.machine.Transition(ctx, job, to, payload)
				if err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
					return
				}
				assert.ErrorIs(t, err, domain.ErrInvalidTransition)
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})
}
