package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"iganalyzer/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "media"), logger.NewNopLogger())
	require.NoError(t, err)
	return m
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "abc123def456_01_image.jpg", FileName("abc123def456", PostTag(1), KindImage, ".jpg"))
	assert.Equal(t, "abc123def456_12_video.mp4", FileName("abc123def456", PostTag(12), KindVideo, "mp4"))
	assert.Equal(t, "abc123def456_story_0_image.jpg", FileName("abc123def456", StoryTag(0), KindImage, ".jpg"))
	assert.Equal(t, "abc123def456_profile_image.jpg", FileName("abc123def456", ProfileTag, KindImage, ".jpg"))
	assert.Equal(t, "abc123def456_profile_pic.jpg", FileName("abc123def456", ProfileTag, KindPic, "jpg"))
}

func TestSaveAndExists(t *testing.T) {
	m := newTestManager(t)

	name, err := m.SaveBytes("sess1", PostTag(1), KindImage, []byte("first"), ".jpg")
	require.NoError(t, err)
	assert.Equal(t, "sess1_01_image.jpg", name)
	assert.True(t, m.Exists(name))
	assert.Equal(t, "/media/sess1_01_image.jpg", m.URLFor(name))
	assert.Equal(t, filepath.Join(m.Dir(), name), m.PathFor(name))

	// same name overwrites
	_, err = m.SaveBytes("sess1", PostTag(1), KindImage, []byte("second"), ".jpg")
	require.NoError(t, err)
	content, err := os.ReadFile(m.PathFor(name))
	require.NoError(t, err)
	assert.Equal(t, "second", string(content))

	entries, err := os.ReadDir(m.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files should remain")
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("stream broken") }

func TestSaveFailureLeavesNothing(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Save("sess1", PostTag(1), KindVideo, failingReader{}, ".mp4")
	require.Error(t, err)

	entries, err := os.ReadDir(m.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestValidName(t *testing.T) {
	assert.True(t, ValidName("sess_01_image.jpg"))
	for _, bad := range []string{"", ".", "..", "../etc/passwd", "a/b.jpg", `a\b.jpg`, ".tmp-123", "x..y"} {
		assert.False(t, ValidName(bad), bad)
	}

	m := newTestManager(t)
	assert.False(t, m.Exists("../media"))
	assert.False(t, m.Exists("missing.jpg"))
}

func TestPurgeSession(t *testing.T) {
	m := newTestManager(t)

	for _, tag := range []string{PostTag(1), PostTag(2), ProfileTag, StoryTag(0)} {
		_, err := m.SaveBytes("aaa", tag, KindImage, []byte("x"), ".jpg")
		require.NoError(t, err)
	}
	keep, err := m.SaveBytes("aaab", PostTag(1), KindImage, []byte("x"), ".jpg")
	require.NoError(t, err)

	assert.Equal(t, 4, m.PurgeSession("aaa"))
	assert.True(t, m.Exists(keep), "a session id that merely shares a prefix must survive")
	assert.Equal(t, 0, m.PurgeSession("aaa"), "purge is idempotent")
	assert.Equal(t, 0, m.PurgeSession(""))

	assert.Equal(t, 0, m.PurgeSession("aaab_01"))
	assert.Equal(t, 0, m.PurgeSession("../aaab"))
	assert.True(t, m.Exists(keep))
}

func TestSweepOlderThan(t *testing.T) {
	m := newTestManager(t)

	old, err := m.SaveBytes("s1", PostTag(1), KindImage, []byte("old"), ".jpg")
	require.NoError(t, err)
	fresh, err := m.SaveBytes("s2", PostTag(1), KindImage, []byte("new"), ".jpg")
	require.NoError(t, err)

	past := time.Now().Add(-25 * time.Hour)
	require.NoError(t, os.Chtimes(m.PathFor(old), past, past))

	assert.Equal(t, 1, m.SweepOlderThan(24*time.Hour))
	assert.False(t, m.Exists(old))
	assert.True(t, m.Exists(fresh))
}

func TestRunSweeperStopsOnCancel(t *testing.T) {
	m := newTestManager(t)
	old, err := m.SaveBytes("s1", PostTag(1), KindImage, []byte("old"), ".jpg")
	require.NoError(t, err)
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(m.PathFor(old), past, past))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.RunSweeper(ctx, 10*time.Millisecond, time.Hour) }()

	assert.Eventually(t, func() bool { return !m.Exists(old) }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestImageExt(t *testing.T) {
	assert.Equal(t, ".png", ImageExt("https://cdn.example.com/a/b.PNG?sig=1"))
	assert.Equal(t, ".webp", ImageExt("https://cdn.example.com/a/b.webp"))
	assert.Equal(t, ".jpg", ImageExt("https://cdn.example.com/a/b.heic"))
	assert.Equal(t, ".jpg", ImageExt("::not a url"))
}

func TestSaveFromBuffer(t *testing.T) {
	m := newTestManager(t)
	name, err := m.Save("s", StoryTag(2), KindVideo, bytes.NewBufferString("mp4"), ".mp4")
	require.NoError(t, err)
	assert.Equal(t, "s_story_2_video.mp4", name)
}
