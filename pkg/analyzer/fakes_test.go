package analyzer

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	errs "iganalyzer/pkg/errors"
	"iganalyzer/pkg/instagram"
	"iganalyzer/pkg/logger"
	"iganalyzer/pkg/retry"
	"iganalyzer/pkg/session"
	"iganalyzer/pkg/storage"
)

// fakeUpstream serves canned profiles, pages and media
type fakeUpstream struct {
	mu sync.Mutex

	user       *instagram.User
	profileErr error
	// gate, when set, blocks FetchProfile until closed
	gate chan struct{}

	pages      map[string]*instagram.EdgeOwnerToTimelineMedia
	stories    []instagram.StoryItem
	storiesErr error
	media      map[string][]byte
	mediaErr   map[string]error
	panicOn    string

	profileCalls int
	downloads    map[string]int
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		pages:     map[string]*instagram.EdgeOwnerToTimelineMedia{},
		media:     map[string][]byte{},
		mediaErr:  map[string]error{},
		downloads: map[string]int{},
	}
}

func (f *fakeUpstream) FetchProfile(ctx context.Context, username string) (*instagram.User, error) {
	f.mu.Lock()
	f.profileCalls++
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	if f.user == nil {
		return nil, errs.New(errs.ErrorTypeNotFound, 404, "Profile '"+username+"' does not exist")
	}
	u := *f.user
	return &u, nil
}

func (f *fakeUpstream) FetchPosts(ctx context.Context, userID string, first int, after string) (*instagram.EdgeOwnerToTimelineMedia, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	page, ok := f.pages[after]
	if !ok {
		return nil, errs.New(errs.ErrorTypeNotFound, 404, "no such page")
	}
	return page, nil
}

func (f *fakeUpstream) FetchStories(ctx context.Context, userID string) ([]instagram.StoryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stories, f.storiesErr
}

func (f *fakeUpstream) Download(ctx context.Context, mediaURL string, maxBytes int64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads[mediaURL]++
	if mediaURL == f.panicOn {
		panic("upstream exploded")
	}
	if err, ok := f.mediaErr[mediaURL]; ok {
		return nil, err
	}
	return f.media[mediaURL], nil
}

func (f *fakeUpstream) ProfileCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profileCalls
}

func (f *fakeUpstream) Downloads(mediaURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloads[mediaURL]
}

// recordingPacer counts waits and runs an optional hook on each
type recordingPacer struct {
	mu    sync.Mutex
	waits int
	hook  func(n int)
}

func (p *recordingPacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	p.waits++
	n := p.waits
	hook := p.hook
	p.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return ctx.Err()
}

func (p *recordingPacer) Waits() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waits
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 50, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func imageNode(shortcode string, likes, comments int) instagram.Node {
	n := instagram.Node{
		ID:               "id-" + shortcode,
		Shortcode:        shortcode,
		DisplayURL:       "https://cdn.example.com/" + shortcode + ".png",
		TakenAtTimestamp: 1714564800,
	}
	n.EdgeLikedBy.Count = likes
	n.EdgeMediaToComment.Count = comments
	return n
}

func videoNode(shortcode string, likes, comments, views int) instagram.Node {
	n := imageNode(shortcode, likes, comments)
	n.IsVideo = true
	n.VideoURL = "https://cdn.example.com/" + shortcode + ".mp4"
	n.VideoViewCount = views
	return n
}

func edges(nodes ...instagram.Node) []instagram.Edge {
	out := make([]instagram.Edge, len(nodes))
	for i, n := range nodes {
		out[i] = instagram.Edge{Node: n}
	}
	return out
}

// aliceUpstream has 1000 followers, three image posts and two stories
func aliceUpstream(t *testing.T) *fakeUpstream {
	f := newFakeUpstream()
	f.user = &instagram.User{
		ID:            "42",
		Username:      "alice",
		FullName:      "Alice Example",
		ProfilePicURL: "https://cdn.example.com/alice.jpg",
	}
	f.user.EdgeFollowedBy.Count = 1000
	f.user.EdgeFollow.Count = 10
	f.user.EdgeOwnerToTimelineMedia = instagram.EdgeOwnerToTimelineMedia{
		Count: 3,
		Edges: edges(imageNode("A", 10, 1), imageNode("B", 20, 2), imageNode("C", 30, 3)),
	}

	pic := pngBytes(t)
	f.media["https://cdn.example.com/alice.jpg"] = pic
	for _, sc := range []string{"A", "B", "C"} {
		f.media["https://cdn.example.com/"+sc+".png"] = pic
	}

	story := instagram.StoryItem{ID: "s1", TakenAt: 1714564800, MediaType: instagram.StoryMediaImage}
	story.ImageVersions2.Candidates = []instagram.MediaCandidate{{URL: "https://cdn.example.com/s1.jpg"}}
	views := 7
	video := instagram.StoryItem{ID: "s2", TakenAt: 1714564900, MediaType: instagram.StoryMediaVideo, ViewCount: &views}
	video.VideoVersions = []instagram.MediaCandidate{{URL: "https://cdn.example.com/s2.mp4"}}
	f.stories = []instagram.StoryItem{story, video}
	f.media["https://cdn.example.com/s1.jpg"] = pic
	f.media["https://cdn.example.com/s2.mp4"] = []byte("mp4 bytes")
	return f
}

type harness struct {
	store    *session.Store
	media    *storage.Manager
	upstream *fakeUpstream
	pacer    *recordingPacer
	runner   *Runner
	log      *logger.TestLogger
}

func newHarness(t *testing.T, upstream *fakeUpstream) *harness {
	t.Helper()
	log := logger.NewTestLogger()
	media, err := storage.NewManager(t.TempDir(), log)
	require.NoError(t, err)
	snaps, err := session.NewFileSnapshots(t.TempDir())
	require.NoError(t, err)
	store := session.NewStore(snaps, media, session.DefaultTTL, session.WithLogger(log))

	pacer := &recordingPacer{}
	runner := NewRunner(store, upstream, media, Options{
		PostLimit: 12,
		Retry: &retry.Config{
			MaxAttempts: 3,
			Backoff:     &retry.ConstantBackoff{Delay: time.Millisecond},
			Logger:      log,
		},
		Pacer: pacer,
	}, log)

	return &harness{store: store, media: media, upstream: upstream, pacer: pacer, runner: runner, log: log}
}
