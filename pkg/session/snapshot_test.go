package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iganalyzer/pkg/logger"
	"iganalyzer/pkg/models"
)

func sampleSession(id string) *Session {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &Session{
		ID:           id,
		Username:     "alice",
		CreatedAt:    now,
		LastAccessed: now,
		ExpiresAt:    now.Add(DefaultTTL),
		Status:       StatusCompleted,
		DataLoaded:   true,
		Progress:     100,
		Profile:      &models.Profile{Username: "alice", Followers: 1000},
		Posts:        []models.Post{{Shortcode: "A", Likes: 10, Order: 1, MediaType: models.MediaImage}},
		Stories:      []models.Story{{Type: "image", Order: 1}},
		Analytics:    &models.Analytics{TotalPostsAnalyzed: 1},
		Version:      CurrentVersion,
	}
}

func backends(t *testing.T) map[string]SnapshotStore {
	t.Helper()
	files, err := NewFileSnapshots(t.TempDir())
	require.NoError(t, err)
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return map[string]SnapshotStore{"file": files, "sqlite": db}
}

func TestSnapshotBackends(t *testing.T) {
	ctx := context.Background()
	for name, snaps := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := snaps.Load(ctx, "a1b2c3d4e5f6")
			assert.True(t, errors.Is(err, ErrSnapshotNotFound))

			want := sampleSession("a1b2c3d4e5f6")
			require.NoError(t, snaps.Save(ctx, want))

			got, err := snaps.Load(ctx, want.ID)
			require.NoError(t, err)
			assert.Equal(t, want, got)

			want.Progress = 99
			require.NoError(t, snaps.Save(ctx, want))
			require.NoError(t, snaps.Save(ctx, sampleSession("0000aaaa1111")))

			entries, err := snaps.LoadAll(ctx)
			require.NoError(t, err)
			require.Len(t, entries, 2)
			assert.Equal(t, "0000aaaa1111", entries[0].ID)
			assert.Equal(t, 99, entries[1].Session.Progress)

			require.NoError(t, snaps.Delete(ctx, want.ID))
			require.NoError(t, snaps.Delete(ctx, want.ID))
			_, err = snaps.Load(ctx, want.ID)
			assert.True(t, errors.Is(err, ErrSnapshotNotFound))
		})
	}
}

func TestFileSnapshotMalformed(t *testing.T) {
	dir := t.TempDir()
	snaps, err := NewFileSnapshots(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad000000000.json"), []byte("[1,2"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "abcdef000000.json"), []byte(`{"session_id":"other","username":"x"}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	entries, err := snaps.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.True(t, errors.Is(e.Err, ErrMalformed), e.ID)
		assert.Nil(t, e.Session)
	}
}

func TestStoreOnSQLite(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	defer db.Close()

	clock := newFakeClock()
	store := NewStore(db, nil, DefaultTTL, WithClock(clock.Now), WithLogger(logger.NewNopLogger()))
	id := store.CreateOrGet("alice", "")
	require.True(t, store.Update(id, func(s *Session) {
		s.Status = StatusProcessing
		s.Progress = 25
	}))

	restarted := NewStore(db, nil, DefaultTTL, WithClock(clock.Now), WithLogger(logger.NewNopLogger()))
	stats, err := restarted.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Loaded)

	sess, ok := restarted.Get(id, Peek)
	require.True(t, ok)
	assert.Equal(t, 25, sess.Progress)

	clock.Advance(time.Hour)
	assert.Equal(t, 1, restarted.Sweep())
	entries, err := db.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusCreated.CanTransition(StatusCreated))
	assert.True(t, StatusCreated.CanTransition(StatusProcessing))
	assert.True(t, StatusProcessing.CanTransition(StatusProcessing))
	assert.False(t, StatusCompleted.CanTransition(StatusCompleted))
	assert.False(t, StatusFailed.CanTransition(StatusCompleted))
	assert.False(t, StatusProcessing.CanTransition(StatusCreated))
}

func TestNewIDAndValidID(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewID()
		assert.Len(t, id, IDLength)
		assert.Regexp(t, `^[0-9a-f]{12}$`, id)
		assert.True(t, ValidID(id))
		assert.False(t, seen[id])
		seen[id] = true
	}
	assert.False(t, ValidID(""))
	assert.False(t, ValidID("../x"))
	assert.False(t, ValidID("a/b"))
	assert.False(t, ValidID("ABCDEF012345"))
	assert.False(t, ValidID("abcdef012345_01"))
	assert.False(t, ValidID("abcdef01234"))
}

func TestMinutesLeft(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := &Session{ExpiresAt: now.Add(90 * time.Second)}
	assert.Equal(t, 1.5, s.MinutesLeft(now))
	assert.Equal(t, 0.0, s.MinutesLeft(now.Add(time.Hour)))
}
