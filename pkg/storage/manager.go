package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"iganalyzer/pkg/logger"
)

// Media kinds used in stored filenames
const (
	KindImage = "image"
	KindVideo = "video"
	KindPic   = "pic"
)

// URLPrefix is the HTTP path under which stored media is served
const URLPrefix = "/media/"

// Manager owns the flat media directory. Filenames are derived from the
// session id, an ordinal or tag, and the media kind, so concurrent jobs for
// different sessions never write the same file.
type Manager struct {
	dir    string
	logger logger.Logger
	now    func() time.Time
}

// NewManager creates the media directory if needed
func NewManager(dir string, log logger.Logger) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Manager{dir: dir, logger: log, now: time.Now}, nil
}

// PostTag is the ordinal tag for the i-th post (1-based)
func PostTag(i int) string {
	return fmt.Sprintf("%02d", i)
}

// StoryTag is the tag for the i-th story frame (0-based)
func StoryTag(i int) string {
	return fmt.Sprintf("story_%d", i)
}

// ProfileTag tags the profile picture
const ProfileTag = "profile"

// FileName builds `{session}_{tag}_{kind}{ext}`
func FileName(sessionID, tag, kind, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return fmt.Sprintf("%s_%s_%s%s", sessionID, tag, kind, ext)
}

// Save writes r under a deterministic name and returns that name. An
// existing file with the same name is replaced.
func (m *Manager) Save(sessionID, tag, kind string, r io.Reader, ext string) (string, error) {
	filename := FileName(sessionID, tag, kind, ext)
	target := filepath.Join(m.dir, filename)

	tmp, err := os.CreateTemp(m.dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()

	n, err := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write media data: %w", err)
	}
	if closeErr != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to rename temporary file: %w", err)
	}

	m.logger.DebugWithFields("saved media", map[string]interface{}{
		"filename": filename,
		"size_kb":  n / 1024,
	})
	return filename, nil
}

// SaveBytes is Save for an in-memory payload
func (m *Manager) SaveBytes(sessionID, tag, kind string, data []byte, ext string) (string, error) {
	return m.Save(sessionID, tag, kind, bytes.NewReader(data), ext)
}

// URLFor returns the public URL of a stored file
func (m *Manager) URLFor(filename string) string {
	return URLPrefix + filename
}

// PathFor returns the on-disk path of a stored file
func (m *Manager) PathFor(filename string) string {
	return filepath.Join(m.dir, filename)
}

// Dir returns the media directory
func (m *Manager) Dir() string {
	return m.dir
}

// ValidName rejects names that could escape the media directory or refer
// to in-flight temporary files.
func ValidName(filename string) bool {
	if filename == "" || filename == "." || filename == ".." {
		return false
	}
	if strings.HasPrefix(filename, ".") {
		return false
	}
	return !strings.ContainsAny(filename, `/\`) && !strings.Contains(filename, "..")
}

// Exists reports whether a regular file with that name is stored
func (m *Manager) Exists(filename string) bool {
	if !ValidName(filename) {
		return false
	}
	info, err := os.Stat(m.PathFor(filename))
	return err == nil && info.Mode().IsRegular()
}

// PurgeSession deletes every file that belongs to sessionID and returns the
// number removed. Individual failures are logged and skipped. Ids
// containing the name separator are refused so one session cannot match
// another session's files.
func (m *Manager) PurgeSession(sessionID string) int {
	if sessionID == "" || strings.ContainsAny(sessionID, "_/\\.") {
		return 0
	}
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		m.logger.WithError(err).WithField("session_id", sessionID).Error("failed to list media directory")
		return 0
	}

	prefix := sessionID + "_"
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		if err := os.Remove(filepath.Join(m.dir, entry.Name())); err != nil && !os.IsNotExist(err) {
			m.logger.WithError(err).WithField("filename", entry.Name()).Warn("failed to remove media file")
			continue
		}
		removed++
	}

	if removed > 0 {
		m.logger.DebugWithFields("purged session media", map[string]interface{}{
			"session_id": sessionID,
			"removed":    removed,
		})
	}
	return removed
}

// SweepOlderThan deletes every file last modified more than age ago,
// regardless of which session owns it.
func (m *Manager) SweepOlderThan(age time.Duration) int {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		m.logger.WithError(err).Error("failed to list media directory")
		return 0
	}

	cutoff := m.now().Add(-age)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(m.dir, entry.Name())); err != nil && !os.IsNotExist(err) {
			m.logger.WithError(err).WithField("filename", entry.Name()).Warn("failed to remove stale media file")
			continue
		}
		removed++
	}
	return removed
}

// RunSweeper removes files older than retention every interval until ctx
// is cancelled.
func (m *Manager) RunSweeper(ctx context.Context, interval, retention time.Duration) error {
	logger.LogComponentStart(m.logger, "media-sweeper", map[string]interface{}{
		"interval":  interval.String(),
		"retention": retention.String(),
	})

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.LogComponentStop(m.logger, "media-sweeper", ctx.Err().Error())
			return nil
		case <-ticker.C:
			if n := m.SweepOlderThan(retention); n > 0 {
				m.logger.InfoWithFields("removed stale media", map[string]interface{}{
					"removed": n,
				})
			}
		}
	}
}
