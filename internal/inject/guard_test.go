package inject

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardInFlight(t *testing.T) {
	g := NewGuard(time.Hour, time.Hour)

	require.NoError(t, g.Begin("payload"))
	assert.ErrorIs(t, g.Begin("other payload"), ErrInFlight)
}

func TestGuardReArmsAfterCoolDown(t *testing.T) {
	g := NewGuard(time.Hour, 5*time.Millisecond)

	require.NoError(t, g.Begin("first"))
	g.Finish(true)

	assert.Eventually(t, func() bool {
		return g.Begin("second") == nil
	}, time.Second, 2*time.Millisecond)
}

func TestGuardDuplicateWithinWindow(t *testing.T) {
	g := NewGuard(time.Hour, time.Millisecond)

	require.NoError(t, g.Begin("payload"))
	g.Finish(true)

	assert.Eventually(t, func() bool {
		err := g.Begin("payload")
		return err == ErrDuplicate
	}, time.Second, 2*time.Millisecond)
}

func TestGuardDuplicateAfterWindowRunsAgain(t *testing.T) {
	g := NewGuard(30*time.Millisecond, time.Millisecond)

	require.NoError(t, g.Begin("payload"))
	g.Finish(true)
	time.Sleep(50 * time.Millisecond)

	assert.NoError(t, g.Begin("payload"))
}

func TestGuardDistinctPayloadWithinWindow(t *testing.T) {
	g := NewGuard(time.Hour, time.Millisecond)

	require.NoError(t, g.Begin("payload A"))
	g.Finish(true)

	assert.Eventually(t, func() bool {
		return g.Begin("payload B") == nil
	}, time.Second, 2*time.Millisecond)
}

func TestGuardFailedAttemptDoesNotArmDedupe(t *testing.T) {
	g := NewGuard(time.Hour, time.Millisecond)

	require.NoError(t, g.Begin("payload"))
	g.Finish(false)

	// The same payload must run again: nothing was sent, so there is
	// nothing to deduplicate against.
	assert.Eventually(t, func() bool {
		return g.Begin("payload") == nil
	}, time.Second, 2*time.Millisecond)
}

func TestGuardFailureKeepsEarlierSendArmed(t *testing.T) {
	g := NewGuard(time.Hour, time.Millisecond)

	require.NoError(t, g.Begin("sent payload"))
	g.Finish(true)

	assert.Eventually(t, func() bool {
		return g.Begin("failed payload") == nil
	}, time.Second, 2*time.Millisecond)
	g.Finish(false)

	// The failed attempt must not overwrite the record of what was sent.
	assert.Eventually(t, func() bool {
		return g.Begin("sent payload") == ErrDuplicate
	}, time.Second, 2*time.Millisecond)
}
