package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nhle/eventcal/internal/store"
)

// NewTestSession opens a storage file in a fresh temporary directory with
// the schema and default tags applied. The session is closed when the test
// completes.
func NewTestSession(t *testing.T) *store.Session {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), store.FileName))
	require.NoError(t, err, "opening test session")

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test session: %v", err)
		}
	})
	return s
}

// NewTestRepositories returns both repositories on a fresh test session.
// Date-only range bounds resolve in store.DefaultRangeLocation.
func NewTestRepositories(t *testing.T) (*store.Session, *store.EventRepository, *store.TagRepository) {
	t.Helper()

	s := NewTestSession(t)
	tags := store.NewTagRepository(s)
	return s, store.NewEventRepository(s, tags, nil), tags
}

// MustTime parses an RFC 3339 timestamp or fails the test.
func MustTime(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return ts
}

// EqualInstant asserts that two times denote the same instant regardless
// of their locations.
func EqualInstant(t *testing.T, want, got time.Time) {
	t.Helper()
	require.Truef(t, want.Equal(got), "want %s, got %s", want.Format(time.RFC3339Nano), got.Format(time.RFC3339Nano))
}
