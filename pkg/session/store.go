package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"iganalyzer/pkg/logger"
	"iganalyzer/pkg/models"
)

// DefaultTTL is the sliding lifetime of a session
const DefaultTTL = 30 * time.Minute

// DefaultSweepInterval is how often RunSweeper reclaims expired sessions
const DefaultSweepInterval = time.Minute

// ReadMode selects whether Get extends the session lifetime
type ReadMode int

const (
	// Renew slides last_accessed and expires_at forward
	Renew ReadMode = iota
	// Peek reads without side effects
	Peek
)

// MediaPurger removes every media file owned by a session
type MediaPurger interface {
	PurgeSession(sessionID string) int
}

// LoadStats summarizes a startup Load
type LoadStats struct {
	Loaded    int
	Expired   int
	Malformed int
	Upgraded  int
}

// Store is the in-memory session cache backed by a SnapshotStore.
//
// mu guards the sessions and locks maps only. Every read or write of a
// record's contents happens under that record's own mutex, so work on
// different sessions never contends beyond the brief map access.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	locks    map[string]*sync.Mutex

	snapshots SnapshotStore
	media     MediaPurger
	ttl       time.Duration
	now       func() time.Time
	newID     func() string
	logger    logger.Logger
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides session id allocation
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// WithLogger sets the store logger
func WithLogger(l logger.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a store. media may be nil when no media cleanup is wanted.
func NewStore(snapshots SnapshotStore, media MediaPurger, ttl time.Duration, opts ...Option) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{
		sessions:  make(map[string]*Session),
		locks:     make(map[string]*sync.Mutex),
		snapshots: snapshots,
		media:     media,
		ttl:       ttl,
		now:       time.Now,
		newID:     NewID,
		logger:    logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the sliding lifetime
func (s *Store) TTL() time.Duration { return s.ttl }

func (s *Store) clock() time.Time { return s.now().UTC() }

func (s *Store) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// releaseIfAbsent drops a lock created for an id that turned out not to
// exist. Caller holds the per-id lock.
func (s *Store) releaseIfAbsent(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		delete(s.locks, id)
	}
}

// lookup returns the cached record, rehydrating from snapshots on a miss.
// Caller holds the per-id lock.
func (s *Store) lookup(id string) *Session {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return sess
	}
	if s.snapshots == nil {
		return nil
	}

	loaded, err := s.snapshots.Load(context.Background(), id)
	switch {
	case err == nil:
	case errors.Is(err, ErrSnapshotNotFound):
		return nil
	case errors.Is(err, ErrMalformed):
		s.logger.WarnWithFields("Deleting malformed session snapshot", map[string]interface{}{
			"session_id": id,
			"error":      err.Error(),
		})
		s.deleteSnapshot(id)
		return nil
	default:
		s.logger.WithError(err).WarnWithFields("Failed to load session snapshot", map[string]interface{}{
			"session_id": id,
		})
		return nil
	}

	if upgrade(loaded, s.ttl) {
		s.persist(loaded)
	}
	s.mu.Lock()
	s.sessions[id] = loaded
	s.mu.Unlock()
	return loaded
}

func (s *Store) persist(sess *Session) {
	if s.snapshots == nil {
		return
	}
	if err := s.snapshots.Save(context.Background(), sess); err != nil {
		s.logger.WithError(err).ErrorWithFields("Failed to persist session", map[string]interface{}{
			"session_id": sess.ID,
		})
	}
}

func (s *Store) deleteSnapshot(id string) bool {
	if s.snapshots == nil {
		return true
	}
	if err := s.snapshots.Delete(context.Background(), id); err != nil {
		s.logger.WithError(err).ErrorWithFields("Failed to delete session snapshot", map[string]interface{}{
			"session_id": id,
		})
		return false
	}
	return true
}

// touch slides the expiry window. Expiry never moves backwards.
func (s *Store) touch(sess *Session) {
	now := s.clock()
	sess.LastAccessed = now
	if exp := now.Add(s.ttl); exp.After(sess.ExpiresAt) {
		sess.ExpiresAt = exp
	}
}

// CreateOrGet returns existingID when it names a live session owned by
// username (renewing it), otherwise a freshly created session id.
func (s *Store) CreateOrGet(username, existingID string) string {
	username = strings.ToLower(strings.TrimSpace(username))

	if existingID != "" && ValidID(existingID) {
		lock := s.lockFor(existingID)
		lock.Lock()
		sess := s.lookup(existingID)
		switch {
		case sess == nil:
			s.releaseIfAbsent(existingID)
		case sess.Expired(s.clock()):
			s.cleanupLocked(existingID)
		case sess.Username == username:
			renewed := sess.Clone()
			s.touch(renewed)
			s.store(renewed)
			lock.Unlock()
			return existingID
		}
		lock.Unlock()
	}

	id := s.allocateID()
	now := s.clock()
	sess := &Session{
		ID:           id,
		Username:     username,
		CreatedAt:    now,
		LastAccessed: now,
		ExpiresAt:    now.Add(s.ttl),
		Status:       StatusCreated,
		Posts:        []models.Post{},
		Stories:      []models.Story{},
		Version:      CurrentVersion,
	}

	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	s.store(sess)

	s.logger.InfoWithFields("Session created", map[string]interface{}{
		"session_id": id,
		"username":   username,
	})
	return id
}

func (s *Store) allocateID() string {
	for {
		id := s.newID()
		s.mu.RLock()
		_, taken := s.sessions[id]
		s.mu.RUnlock()
		if !taken {
			return id
		}
	}
}

// store swaps in a new version of a record and persists it. Caller holds
// the per-id lock.
func (s *Store) store(sess *Session) {
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	s.persist(sess)
}

// Get returns a copy of the session. Expired sessions are cleaned up and
// reported absent.
func (s *Store) Get(id string, mode ReadMode) (*Session, bool) {
	if !ValidID(id) {
		return nil, false
	}
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	sess := s.lookup(id)
	if sess == nil {
		s.releaseIfAbsent(id)
		return nil, false
	}
	if sess.Expired(s.clock()) {
		s.cleanupLocked(id)
		return nil, false
	}
	if mode == Renew {
		renewed := sess.Clone()
		s.touch(renewed)
		s.store(renewed)
		sess = renewed
	}
	return sess.Clone(), true
}

// ErrRejected is logged when an update would break a session invariant
var ErrRejected = errors.New("session update rejected")

// Update applies fn to a copy of the session and stores the result when it
// keeps the lifecycle rules: status only moves forward, terminal records
// are frozen, and progress never decreases while processing. Identity
// fields cannot be changed. Returns false for unknown, expired, or
// rejected updates.
func (s *Store) Update(id string, fn func(*Session)) bool {
	if !ValidID(id) {
		return false
	}
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	current := s.lookup(id)
	if current == nil {
		s.releaseIfAbsent(id)
		return false
	}
	if current.Expired(s.clock()) {
		s.cleanupLocked(id)
		return false
	}

	draft := current.Clone()
	fn(draft)
	if err := validate(current, draft); err != nil {
		s.logger.WarnWithFields("Rejected session update", map[string]interface{}{
			"session_id": id,
			"status":     string(current.Status),
			"error":      err.Error(),
		})
		return false
	}

	s.touch(draft)
	s.store(draft)
	return true
}

// validate checks draft against current and normalizes fields that
// callers may not change.
func validate(current, draft *Session) error {
	draft.ID = current.ID
	draft.Username = current.Username
	draft.CreatedAt = current.CreatedAt
	draft.Version = CurrentVersion

	if current.Status.Terminal() {
		return fmt.Errorf("%w: session is %s", ErrRejected, current.Status)
	}
	if !current.Status.CanTransition(draft.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrRejected, current.Status, draft.Status)
	}

	if draft.Progress < 0 {
		draft.Progress = 0
	}
	if draft.Progress > 100 {
		draft.Progress = 100
	}
	if current.Status == StatusProcessing && draft.Progress < current.Progress {
		draft.Progress = current.Progress
	}
	if draft.Posts == nil {
		draft.Posts = []models.Post{}
	}
	if draft.Stories == nil {
		draft.Stories = []models.Story{}
	}
	return nil
}

// Cleanup removes the session, its snapshot and its media. Safe to call
// for ids that are already gone. Returns false only when the snapshot
// could not be deleted.
func (s *Store) Cleanup(id string) bool {
	if !ValidID(id) {
		return true
	}
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	return s.cleanupLocked(id)
}

// cleanupLocked does the removal. Caller holds the per-id lock, which is
// dropped from the lock map here and released by the caller.
func (s *Store) cleanupLocked(id string) bool {
	s.mu.Lock()
	_, existed := s.sessions[id]
	delete(s.sessions, id)
	delete(s.locks, id)
	s.mu.Unlock()

	ok := s.deleteSnapshot(id)
	removed := 0
	if s.media != nil {
		removed = s.media.PurgeSession(id)
	}

	s.logger.InfoWithFields("Session cleaned up", map[string]interface{}{
		"session_id":    id,
		"was_cached":    existed,
		"media_removed": removed,
	})
	return ok
}

func (s *Store) ids() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Sweep cleans up every cached session past its expiry and returns how
// many were removed.
func (s *Store) Sweep() int {
	removed := 0
	for _, id := range s.ids() {
		lock := s.lockFor(id)
		lock.Lock()
		s.mu.RLock()
		sess, ok := s.sessions[id]
		s.mu.RUnlock()
		if !ok {
			s.releaseIfAbsent(id)
		} else if sess.Expired(s.clock()) {
			s.cleanupLocked(id)
			removed++
		}
		lock.Unlock()
	}
	if removed > 0 {
		s.logger.InfoWithFields("Expired sessions swept", map[string]interface{}{
			"removed": removed,
		})
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.LogComponentStart(s.logger, "session-sweeper", map[string]interface{}{
		"interval": interval.String(),
		"ttl":      s.ttl.String(),
	})
	for {
		select {
		case <-ctx.Done():
			logger.LogComponentStop(s.logger, "session-sweeper", ctx.Err().Error())
			return nil
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Load reads every snapshot into memory. Expired snapshots are cleaned
// up, malformed ones deleted, and older schema versions upgraded and
// re-persisted.
func (s *Store) Load(ctx context.Context) (LoadStats, error) {
	var stats LoadStats
	if s.snapshots == nil {
		return stats, nil
	}
	entries, err := s.snapshots.LoadAll(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to load session snapshots: %w", err)
	}

	now := s.clock()
	for _, e := range entries {
		if e.Err != nil {
			s.logger.WarnWithFields("Deleting malformed session snapshot", map[string]interface{}{
				"session_id": e.ID,
				"error":      e.Err.Error(),
			})
			s.deleteSnapshot(e.ID)
			stats.Malformed++
			continue
		}

		sess := e.Session
		upgraded := upgrade(sess, s.ttl)
		if upgraded {
			stats.Upgraded++
		}
		if sess.Expired(now) {
			lock := s.lockFor(e.ID)
			lock.Lock()
			s.cleanupLocked(e.ID)
			lock.Unlock()
			stats.Expired++
			continue
		}

		lock := s.lockFor(e.ID)
		lock.Lock()
		if upgraded {
			s.persist(sess)
		}
		s.mu.Lock()
		s.sessions[e.ID] = sess
		s.mu.Unlock()
		lock.Unlock()
		stats.Loaded++
	}

	s.logger.InfoWithFields("Sessions loaded", map[string]interface{}{
		"loaded":    stats.Loaded,
		"expired":   stats.Expired,
		"malformed": stats.Malformed,
		"upgraded":  stats.Upgraded,
	})
	return stats, nil
}

// List returns copies of all live sessions, newest first, without
// renewing them.
func (s *Store) List() []*Session {
	var out []*Session
	for _, id := range s.ids() {
		if sess, ok := s.Get(id, Peek); ok {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Count is the number of cached sessions, including not yet swept ones
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
