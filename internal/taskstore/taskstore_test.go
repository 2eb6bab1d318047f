package taskstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutTakeRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	id, err := s.Put("claude", "T:\nhttps://example.com/a")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	task, err := s.Take(id)
	require.NoError(t, err)
	assert.Equal(t, "claude", task.DestinationID)
	assert.Equal(t, "T:\nhttps://example.com/a", task.FinalText)
}

func TestTakeIsSingleUse(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	id, err := s.Put("chatgpt", "payload")
	require.NoError(t, err)

	_, err = s.Take(id)
	require.NoError(t, err)

	_, err = s.Take(id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTakeUnknownID(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Take("01ARZ3NDEKTSV4RRFFQ69G5FAV")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExpiredTaskIsNotServed(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	id, err := s.Put("kimi", "old payload")
	require.NoError(t, err)

	// Backdate the entry past the expiry.
	_, err = s.db.Exec(`UPDATE tasks SET created_at = ? WHERE id = ?`,
		time.Now().Add(-Expiry-time.Minute).Unix(), id)
	require.NoError(t, err)

	_, err = s.Take(id)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, s.Close())

	// Reopening purges whatever expired entries remain.
	s2, err := Open(dir)
	require.NoError(t, err)
	defer s2.Close()
	var n int
	require.NoError(t, s2.db.QueryRow(`SELECT COUNT(*) FROM tasks`).Scan(&n))
	assert.Zero(t, n)
}
