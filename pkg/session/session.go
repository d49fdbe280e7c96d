package session

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"iganalyzer/pkg/models"
)

// Status is the lifecycle state of an analysis session
type Status string

const (
	StatusCreated    Status = "created"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// CurrentVersion is the snapshot schema version written by this build.
// Version 1 snapshots predate stories and the version field itself.
const CurrentVersion = 2

// IDLength is the number of hex characters in a session id
const IDLength = 12

var idPattern = regexp.MustCompile(`^[0-9a-f]{12}$`)

// Terminal reports whether no further status change is allowed
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) rank() int {
	switch s {
	case StatusCreated:
		return 0
	case StatusProcessing:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	}
	return -1
}

// CanTransition reports whether a record in status s may move to next
func (s Status) CanTransition(next Status) bool {
	if next.rank() < 0 {
		return false
	}
	if s == next {
		return !s.Terminal()
	}
	if s.Terminal() {
		return false
	}
	return next.rank() > s.rank()
}

// Session is one analysis of one profile. All times are UTC.
type Session struct {
	ID              string            `json:"session_id"`
	Username        string            `json:"username"`
	CreatedAt       time.Time         `json:"created_at"`
	LastAccessed    time.Time         `json:"last_accessed"`
	ExpiresAt       time.Time         `json:"expires_at"`
	Status          Status            `json:"status"`
	DataLoaded      bool              `json:"data_loaded"`
	Progress        int               `json:"progress"`
	TotalPosts      int               `json:"total_posts"`
	DownloadedPosts int               `json:"downloaded_posts"`
	PostsAnalyzed   int               `json:"posts_analyzed"`
	PostsDownloaded int               `json:"posts_downloaded"`
	StoriesCount    int               `json:"stories_count"`
	Profile         *models.Profile   `json:"profile"`
	Posts           []models.Post     `json:"posts"`
	Stories         []models.Story    `json:"stories"`
	Analytics       *models.Analytics `json:"analytics"`
	Error           string            `json:"error,omitempty"`
	Version         int               `json:"version"`
}

// Clone returns a deep copy safe to hand out of the store
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.Profile != nil {
		p := *s.Profile
		c.Profile = &p
	}
	if s.Analytics != nil {
		a := *s.Analytics
		c.Analytics = &a
	}
	if s.Posts != nil {
		c.Posts = append(make([]models.Post, 0, len(s.Posts)), s.Posts...)
	}
	if s.Stories != nil {
		c.Stories = append(make([]models.Story, 0, len(s.Stories)), s.Stories...)
	}
	return &c
}

// Expired reports whether the record is past its expiry at now
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// MinutesLeft is the remaining lifetime rounded to one decimal, floored at zero
func (s *Session) MinutesLeft(now time.Time) float64 {
	left := s.ExpiresAt.Sub(now).Minutes()
	if left < 0 {
		return 0
	}
	return math.Round(left*10) / 10
}

// NewID returns a fresh 12-character hex id
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:IDLength]
}

// ValidID rejects ids that could not have been issued by this store.
// Ids reach the store from URLs and name snapshot files.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// upgrade fills defaults for snapshots written by older versions. It
// returns true when the record changed and should be re-persisted.
func upgrade(s *Session, ttl time.Duration) bool {
	if s.Version >= CurrentVersion {
		return false
	}
	if s.Status == "" {
		if s.DataLoaded {
			s.Status = StatusCompleted
		} else {
			s.Status = StatusCreated
		}
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = s.LastAccessed
	}
	if s.LastAccessed.IsZero() {
		s.LastAccessed = s.CreatedAt
	}
	if s.ExpiresAt.Before(s.CreatedAt) {
		s.ExpiresAt = s.LastAccessed.Add(ttl)
	}
	if s.Posts == nil {
		s.Posts = []models.Post{}
	}
	if s.Stories == nil {
		s.Stories = []models.Story{}
	}
	if s.StoriesCount == 0 {
		s.StoriesCount = len(s.Stories)
	}
	s.Username = strings.ToLower(s.Username)
	s.Version = CurrentVersion
	return true
}
