package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStateLifecycle(t *testing.T) {
	var s sessionState
	assert.False(t, s.Connected())

	require.NoError(t, s.begin())
	assert.ErrorIs(t, s.begin(), ErrAlreadyConnected)
	s.fail()
	require.NoError(t, s.begin())

	gen, stop := s.established()
	require.NotNil(t, stop)
	assert.True(t, s.Connected())
	assert.ErrorIs(t, s.begin(), ErrAlreadyConnected)
	assert.True(t, s.sendable(gen))

	got, ok := s.disconnect()
	assert.True(t, ok)
	assert.Equal(t, stop, got)
	assert.False(t, s.Connected())
	assert.False(t, s.sendable(gen))

	_, ok = s.disconnect()
	assert.False(t, ok)
}

func TestSessionStateStaleGeneration(t *testing.T) {
	var s sessionState
	require.NoError(t, s.begin())
	gen1, _ := s.established()
	s.disconnect()

	// A response computed during session 1 must not be sendable in
	// session 2.
	require.NoError(t, s.begin())
	gen2, _ := s.established()
	assert.False(t, s.sendable(gen1))
	assert.True(t, s.sendable(gen2))
}
