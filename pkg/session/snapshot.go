package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	// ErrSnapshotNotFound is returned by SnapshotStore.Load for unknown ids
	ErrSnapshotNotFound = errors.New("session snapshot not found")
	// ErrMalformed marks a snapshot that exists but cannot be decoded
	ErrMalformed = errors.New("malformed session snapshot")
)

// Entry is one snapshot read by LoadAll. Err is set when the stored data
// could not be decoded; Session is nil in that case.
type Entry struct {
	ID      string
	Session *Session
	Err     error
}

// SnapshotStore is the durable side of the session store. Implementations
// must make Save atomic per id.
type SnapshotStore interface {
	Save(ctx context.Context, s *Session) error
	Load(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	LoadAll(ctx context.Context) ([]Entry, error)
	Close() error
}

func encode(s *Session) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}
	return data, nil
}

func decode(id string, data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if s.ID == "" || s.ID != id {
		return nil, fmt.Errorf("%w: id %q does not match key %q", ErrMalformed, s.ID, id)
	}
	if s.Username == "" {
		return nil, fmt.Errorf("%w: missing username", ErrMalformed)
	}
	return &s, nil
}

const snapshotExt = ".json"

// FileSnapshots keeps one <id>.json file per session in a directory
type FileSnapshots struct {
	dir string
}

// NewFileSnapshots creates the snapshot directory if needed
func NewFileSnapshots(dir string) (*FileSnapshots, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	return &FileSnapshots{dir: dir}, nil
}

func (f *FileSnapshots) path(id string) string {
	return filepath.Join(f.dir, id+snapshotExt)
}

// Save writes the snapshot atomically: temp file, fsync, rename
func (f *FileSnapshots) Save(ctx context.Context, s *Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encode(s)
	if err != nil {
		return err
	}

	file, err := os.CreateTemp(f.dir, ".tmp-"+s.ID+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary snapshot file: %w", err)
	}
	tempPath := file.Name()

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync snapshot file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close snapshot file: %w", err)
	}
	if err := os.Rename(tempPath, f.path(s.ID)); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace snapshot file: %w", err)
	}
	return nil
}

func (f *FileSnapshots) Load(ctx context.Context, id string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return decode(id, data)
}

func (f *FileSnapshots) Delete(ctx context.Context, id string) error {
	if err := os.Remove(f.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// LoadAll reads every snapshot in the directory. Leftover temp files from
// an interrupted write are removed.
func (f *FileSnapshots) LoadAll(ctx context.Context) ([]Entry, error) {
	dirEntries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read session directory: %w", err)
	}

	var entries []Entry
	for _, de := range dirEntries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := de.Name()
		if de.IsDir() {
			continue
		}
		if strings.HasPrefix(name, ".tmp-") {
			os.Remove(filepath.Join(f.dir, name))
			continue
		}
		if !strings.HasSuffix(name, snapshotExt) {
			continue
		}
		id := strings.TrimSuffix(name, snapshotExt)
		if !ValidID(id) {
			continue
		}
		s, err := f.Load(ctx, id)
		entries = append(entries, Entry{ID: id, Session: s, Err: err})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}

func (f *FileSnapshots) Close() error { return nil }
