package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foreman/internal/domain"
)

func TestJobSequencer_SuccessorOf(t *testing.T) {
	ctx := context.Background()

	walk := func(t *testing.T, h *harness, start *domain.Job) []string {
		t.Helper()
		seen := map[string]bool{start.ID: true}
		chain := []string{start.ID}
		for cur := start; ; {
			next, err := h.seq.SuccessorOf(ctx, cur)
			require.NoError(t, err)
			if next == nil {
				return chain
			}
			require.False(t, seen[next.ID], "cycle at %s", next.ID)
			require.True(t, cur.Key().Less(next.Key()))
			seen[next.ID] = true
			chain = append(chain, next.ID)
			cur = next
		}
	}

	t.Run("follows submission order within a service", func(t *testing.T) {
		h := newHarness(t)
		service := h.service(t, "adder")
		other := h.service(t, "other")

		var want []string
		for i := 0; i < 5; i++ {
			want = append(want, h.submit(t, service, nil).ID)
			h.submit(t, other, nil)
		}
		first, err := h.store.GetJob(ctx, want[0])
		require.NoError(t, err)

		assert.Equal(t, want, walk(t, h, first))
	})

	t.Run("last job has no successor", func(t *testing.T) {
		h := newHarness(t)
		service := h.service(t, "adder")
		job := h.submit(t, service, nil)

		next, err := h.seq.SuccessorOf(ctx, job)
		require.NoError(t, err)
		assert.Nil(t, next)
	})

	t.Run("job sets form their own scope", func(t *testing.T) {
		h := newHarness(t)
		service := h.service(t, "adder")
		set := domain.NewJobSet("batch", h.clock.Now())
		require.NoError(t, h.store.CreateJobSet(ctx, set))

		loose1 := h.submit(t, service, nil)
		inSet1 := h.submit(t, service, &set.ID)
		loose2 := h.submit(t, service, nil)
		inSet2 := h.submit(t, service, &set.ID)

		assert.Equal(t, []string{loose1.ID, loose2.ID}, walk(t, h, loose1))
		assert.Equal(t, []string{inSet1.ID, inSet2.ID}, walk(t, h, inSet1))
	})

	t.Run("ties on submission time break by id", func(t *testing.T) {
		h := newHarness(t)
		service := h.service(t, "adder")
		a, err := h.queue.Enqueue(ctx, service, []byte(`{"value": 1}`), nil)
		require.NoError(t, err)
		b, err := h.queue.Enqueue(ctx, service, []byte(`{"value": 2}`), nil)
		require.NoError(t, err)
		require.Equal(t, a.SubmittedAt, b.SubmittedAt)

		lo, hi := a, b
		if hi.ID < lo.ID {
			lo, hi = hi, lo
		}
		next, err := h.seq.SuccessorOf(ctx, lo)
		require.NoError(t, err)
		assert.Equal(t, hi.ID, next.ID)

		next, err = h.seq.SuccessorOf(ctx, hi)
		require.NoError(t, err)
		assert.Nil(t, next)
	})
}
