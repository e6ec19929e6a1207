package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from    InvitationStatus
		to      InvitationStatus
		allowed bool
	}{
		{InvitationPending, InvitationAccepted, true},
		{InvitationPending, InvitationCancelled, true},
		{InvitationAccepted, InvitationCancelled, false},
		{InvitationAccepted, InvitationPending, false},
		{InvitationCancelled, InvitationAccepted, false},
		{InvitationCancelled, InvitationPending, false},
		{InvitationPending, InvitationPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestStatusIsTerminal(t *testing.T) {
	assert.False(t, InvitationPending.IsTerminal())
	assert.True(t, InvitationAccepted.IsTerminal())
	assert.True(t, InvitationCancelled.IsTerminal())
}

func TestEffectiveStatus(t *testing.T) {
	now := time.Now()

	pending := &Invitation{Status: InvitationPending, ExpiresAt: now.Add(time.Hour)}
	assert.Equal(t, InvitationPending, pending.EffectiveStatus(now))
	assert.True(t, pending.CanBeAccepted(now))

	// Past expiry a pending invitation reads as expired without any stored
	// change
	expired := &Invitation{Status: InvitationPending, ExpiresAt: now.Add(-time.Minute)}
	assert.Equal(t, InvitationExpired, expired.EffectiveStatus(now))
	assert.False(t, expired.CanBeAccepted(now))
	assert.Equal(t, InvitationPending, expired.Status)

	// Terminal statuses never read as expired
	accepted := &Invitation{Status: InvitationAccepted, ExpiresAt: now.Add(-time.Minute)}
	assert.Equal(t, InvitationAccepted, accepted.EffectiveStatus(now))

	cancelled := &Invitation{Status: InvitationCancelled, ExpiresAt: now.Add(-time.Minute)}
	assert.Equal(t, InvitationCancelled, cancelled.EffectiveStatus(now))
}

func TestNewInvitationToken(t *testing.T) {
	token, err := NewInvitationToken(32)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.NotContains(t, token, "/")
	assert.NotContains(t, token, "+")
	assert.NotContains(t, token, "=")

	other, err := NewInvitationToken(32)
	require.NoError(t, err)
	assert.NotEqual(t, token, other)

	// Below the floor the generator still produces 16 bytes of entropy
	short, err := NewInvitationToken(4)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(short), 21)
}
