package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"foreman/internal/domain"
)

func TestHeartbeatRunner_Start(t *testing.T) {
	t.Run("beats every service until cancelled", func(t *testing.T) {
		client := &MockDispatchClient{}
		for _, id := range []string{"svc-1", "svc-2"} {
			client.On("Heartbeat", mock.Anything, id).
				Return(&domain.Availability{ServiceID: id, Available: true}, nil)
		}
		runner := NewHeartbeatRunner(client, []string{"svc-1", "svc-2"}, 5*time.Millisecond, WithLogger(quietLogger()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		assert.NoError(t, runner.Start(ctx))
		for _, id := range []string{"svc-1", "svc-2"} {
			client.AssertCalled(t, "Heartbeat", mock.Anything, id)
		}
		assert.GreaterOrEqual(t, len(client.Calls), 4)
	})

	t.Run("keeps going after a failed heartbeat", func(t *testing.T) {
		client := &MockDispatchClient{}
		client.On("Heartbeat", mock.Anything, "svc-1").Return(nil, errors.New("unreachable")).Once()
		client.On("Heartbeat", mock.Anything, "svc-1").
			Return(&domain.Availability{ServiceID: "svc-1", Available: true}, nil)
		runner := NewHeartbeatRunner(client, []string{"svc-1"}, 5*time.Millisecond, WithLogger(quietLogger()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		assert.NoError(t, runner.Start(ctx))
		assert.GreaterOrEqual(t, len(client.Calls), 2)
	})
}
