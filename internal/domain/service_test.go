package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewServiceDefaults(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewService(ServiceSpec{Name: "adder"}, now)

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, DefaultHeartbeatTimeout, s.HeartbeatTimeout)
	assert.Equal(t, now, s.RegisteredAt)
	assert.Equal(t, now, s.LastHeartbeat)

	named := NewService(ServiceSpec{ID: "fixed", HeartbeatTimeout: time.Minute}, now)
	assert.Equal(t, "fixed", named.ID)
	assert.Equal(t, time.Minute, named.HeartbeatTimeout)
}

func TestAvailability(t *testing.T) {
	registered := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewService(ServiceSpec{HeartbeatTimeout: 10 * time.Second}, registered)

	assert.False(t, s.IsAvailable(registered), "never heartbeated")

	s.LastHeartbeat = s.HeartbeatAt(registered)
	assert.True(t, s.LastHeartbeat.After(registered))
	assert.True(t, s.IsAvailable(registered))

	s.LastHeartbeat = s.HeartbeatAt(registered.Add(time.Second))
	assert.True(t, s.IsAvailable(registered.Add(10*time.Second)))
	assert.False(t, s.IsAvailable(registered.Add(11*time.Second)))

	a := s.Availability(registered.Add(2 * time.Second))
	assert.True(t, a.Available)
	assert.Equal(t, registered.Add(11*time.Second), a.ExpiresAt)
}
