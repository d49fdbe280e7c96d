package analyzer

import (
	"context"

	"iganalyzer/internal/worker"
	"iganalyzer/pkg/instagram"
)

// Upstream defines the Instagram operations a job needs
type Upstream interface {
	FetchProfile(ctx context.Context, username string) (*instagram.User, error)
	FetchPosts(ctx context.Context, userID string, first int, after string) (*instagram.EdgeOwnerToTimelineMedia, error)
	FetchStories(ctx context.Context, userID string) ([]instagram.StoryItem, error)
	Download(ctx context.Context, mediaURL string, maxBytes int64) ([]byte, error)
}

// MediaStore persists downloaded media
type MediaStore interface {
	SaveBytes(sessionID, tag, kind string, data []byte, ext string) (string, error)
	URLFor(filename string) string
}

// Pacer spaces out consecutive post downloads
type Pacer interface {
	Wait(ctx context.Context) error
}

// Submitter queues background work
type Submitter interface {
	Submit(task worker.Task) error
}
