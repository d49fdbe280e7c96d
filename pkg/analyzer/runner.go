package analyzer

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"iganalyzer/pkg/analytics"
	errs "iganalyzer/pkg/errors"
	"iganalyzer/pkg/instagram"
	"iganalyzer/pkg/logger"
	"iganalyzer/pkg/models"
	"iganalyzer/pkg/retry"
	"iganalyzer/pkg/session"
	"iganalyzer/pkg/storage"
)

// Defaults for a single analysis job
const (
	DefaultPostLimit        = 12
	DefaultStoryLimit       = 3
	DefaultMaxDownloadBytes = 50 << 20
)

var errSessionGone = errors.New("session no longer exists")

// Options tune a Runner
type Options struct {
	PostLimit        int
	StoryLimit       int
	MaxDownloadBytes int64
	// DownloadTimeout bounds each media download attempt. Zero means no
	// per-attempt limit beyond the client's own timeout.
	DownloadTimeout time.Duration
	// Retry is applied to every upstream call made by a job
	Retry *retry.Config
	// Pacer is waited on before every post after the first. Nil disables pacing.
	Pacer Pacer
}

func (o *Options) setDefaults() {
	if o.PostLimit <= 0 {
		o.PostLimit = DefaultPostLimit
	}
	if o.StoryLimit <= 0 {
		o.StoryLimit = DefaultStoryLimit
	}
	if o.MaxDownloadBytes <= 0 {
		o.MaxDownloadBytes = DefaultMaxDownloadBytes
	}
	if o.Retry == nil {
		o.Retry = retry.DefaultConfig()
	}
}

// Runner executes the analysis workflow for one session and publishes its
// progress through the session store.
type Runner struct {
	sessions *session.Store
	upstream Upstream
	media    MediaStore
	opts     Options
	logger   logger.Logger
}

// NewRunner creates a Runner
func NewRunner(sessions *session.Store, upstream Upstream, media MediaStore, opts Options, log logger.Logger) *Runner {
	opts.setDefaults()
	if log == nil {
		log = logger.GetLogger()
	}
	return &Runner{
		sessions: sessions,
		upstream: upstream,
		media:    media,
		opts:     opts,
		logger:   log,
	}
}

// PostLimit returns the default number of posts analyzed per job
func (r *Runner) PostLimit() int { return r.opts.PostLimit }

// Run fetches the profile, its posts and stories, and leaves the session
// either completed or failed. It never panics and never returns an error;
// the outcome is recorded on the session. Writes to a session that was
// cleaned up meanwhile are dropped.
func (r *Runner) Run(ctx context.Context, sessionID, username string, limit int) {
	if limit <= 0 {
		limit = r.opts.PostLimit
	}
	log := r.logger.WithFields(map[string]interface{}{
		"session_id": sessionID,
		"username":   username,
	})

	defer func() {
		if rec := recover(); rec != nil {
			log.ErrorWithFields("Analysis job panicked", map[string]interface{}{
				"panic": fmt.Sprint(rec),
				"stack": string(debug.Stack()),
			})
			r.fail(sessionID, fmt.Sprintf("Failed to analyze profile: %v", rec))
		}
	}()

	started := r.sessions.Update(sessionID, func(s *session.Session) {
		s.Status = session.StatusProcessing
		s.DataLoaded = false
		s.Progress = 0
		s.TotalPosts = limit
		s.DownloadedPosts = 0
		s.PostsAnalyzed = 0
		s.PostsDownloaded = 0
		s.StoriesCount = 0
		s.Profile = nil
		s.Posts = []models.Post{}
		s.Stories = []models.Story{}
		s.Analytics = nil
		s.Error = ""
	})
	if !started {
		log.Warn("Session is gone or finished, skipping analysis")
		return
	}
	log.InfoWithFields("Starting profile analysis", map[string]interface{}{
		"limit": limit,
	})

	user, err := retry.DoWithResult(ctx, func(ctx context.Context) (*instagram.User, error) {
		return r.upstream.FetchProfile(ctx, username)
	}, r.opts.Retry)
	if err != nil {
		log.WithError(err).Error("Failed to fetch profile")
		r.fail(sessionID, errs.UserMessage(err))
		return
	}
	if user.IsPrivate {
		denied := errs.New(errs.ErrorTypeAccessDenied, 403, fmt.Sprintf("Profile '%s' is private", username))
		log.Warn("Profile is private")
		r.fail(sessionID, errs.UserMessage(denied))
		return
	}

	profile := r.buildProfile(ctx, sessionID, user)
	r.sessions.Update(sessionID, func(s *session.Session) {
		s.Profile = profile
	})

	// the story sub-task is always joined before Run returns, panics included
	storiesCh := make(chan []models.Story, 1)
	var stories []models.Story
	joined := false
	joinStories := func() {
		if !joined {
			stories = <-storiesCh
			joined = true
		}
	}
	defer joinStories()
	go func() {
		collected := []models.Story{}
		defer func() {
			if rec := recover(); rec != nil {
				log.ErrorWithFields("Story download panicked", map[string]interface{}{
					"panic": fmt.Sprint(rec),
				})
			}
			storiesCh <- collected
		}()
		collected = r.collectStories(ctx, sessionID, user.ID)
	}()

	posts, postsErr := r.collectPosts(ctx, sessionID, user, profile.Followers, limit)
	joinStories()

	if errors.Is(postsErr, errSessionGone) {
		log.Warn("Session removed before analysis completed")
		return
	}
	if ctx.Err() != nil {
		log.Warn("Analysis interrupted by shutdown")
		r.fail(sessionID, "Analysis interrupted by server shutdown")
		return
	}
	if postsErr != nil && len(posts) == 0 {
		log.WithError(postsErr).Error("Failed to fetch posts")
		r.fail(sessionID, errs.UserMessage(postsErr))
		return
	}
	if postsErr != nil {
		log.WithError(postsErr).WarnWithFields("Post feed interrupted, completing with collected posts", map[string]interface{}{
			"collected": len(posts),
		})
	}

	summary := analytics.Compute(profile, posts)
	completed := r.sessions.Update(sessionID, func(s *session.Session) {
		s.Status = session.StatusCompleted
		s.DataLoaded = true
		s.Progress = 100
		s.Profile = profile
		s.Posts = posts
		s.Stories = stories
		s.StoriesCount = len(stories)
		s.Analytics = &summary
		s.TotalPosts = len(posts)
		s.DownloadedPosts = len(posts)
		s.PostsAnalyzed = len(posts)
		s.PostsDownloaded = len(posts)
	})
	if !completed {
		log.Warn("Session removed before analysis completed")
		return
	}
	log.InfoWithFields("Profile analysis completed", map[string]interface{}{
		"posts":   len(posts),
		"stories": len(stories),
	})
}

func (r *Runner) fail(sessionID, message string) {
	r.sessions.Update(sessionID, func(s *session.Session) {
		s.Status = session.StatusFailed
		s.Error = message
	})
}

func (r *Runner) download(ctx context.Context, mediaURL string) ([]byte, error) {
	return retry.DoWithResult(ctx, func(ctx context.Context) ([]byte, error) {
		if r.opts.DownloadTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.opts.DownloadTimeout)
			defer cancel()
		}
		return r.upstream.Download(ctx, mediaURL, r.opts.MaxDownloadBytes)
	}, r.opts.Retry)
}

func (r *Runner) buildProfile(ctx context.Context, sessionID string, user *instagram.User) *models.Profile {
	profile := &models.Profile{
		Username:    user.Username,
		FullName:    user.FullName,
		Biography:   user.Biography,
		Followers:   user.EdgeFollowedBy.Count,
		Followees:   user.EdgeFollow.Count,
		PostsCount:  user.EdgeOwnerToTimelineMedia.Count,
		IsPrivate:   user.IsPrivate,
		IsVerified:  user.IsVerified,
		ExternalURL: user.ExternalURL,
	}
	if profile.FullName == "" {
		profile.FullName = profile.Username
	}
	if profile.Biography == "" {
		profile.Biography = "No biography"
	}

	remote := user.BestProfilePicURL()
	profile.ProfilePicURL = remote
	if remote == "" {
		profile.ProfilePicURL = models.DefaultProfilePic
		return profile
	}

	data, err := r.download(ctx, remote)
	if err == nil && len(data) == 0 {
		err = fmt.Errorf("empty response body")
	}
	var filename string
	if err == nil {
		filename, err = r.media.SaveBytes(sessionID, storage.ProfileTag, storage.KindPic, data, storage.ImageExt(remote))
	}
	logger.LogDownload(r.logger, sessionID, filename, storage.KindPic, err)
	if err == nil {
		profile.ProfilePicURL = r.media.URLFor(filename)
		profile.ProfilePicDownloaded = true
	}
	return profile
}

// collectStories downloads up to StoryLimit story frames. Failures only
// shrink the list.
func (r *Runner) collectStories(ctx context.Context, sessionID, userID string) []models.Story {
	stories := []models.Story{}

	items, err := retry.DoWithResult(ctx, func(ctx context.Context) ([]instagram.StoryItem, error) {
		return r.upstream.FetchStories(ctx, userID)
	}, r.opts.Retry)
	if err != nil {
		r.logger.WithError(err).WarnWithFields("Failed to fetch stories", map[string]interface{}{
			"session_id": sessionID,
		})
		return stories
	}

	for _, item := range items {
		if len(stories) >= r.opts.StoryLimit {
			break
		}
		mediaURL := item.MediaURL()
		if mediaURL == "" {
			continue
		}

		idx := len(stories)
		story := models.Story{
			Type:      models.MediaImage,
			Timestamp: item.Time(),
			Order:     idx + 1,
		}
		if item.ViewCount != nil {
			story.ViewCount = *item.ViewCount
		}

		kind, ext := storage.KindImage, storage.ImageExt(mediaURL)
		if item.IsVideo() {
			story.Type = models.MediaVideo
			kind, ext = storage.KindVideo, ".mp4"
		}

		data, err := r.download(ctx, mediaURL)
		if err == nil && len(data) == 0 {
			err = fmt.Errorf("empty response body")
		}
		var filename string
		if err == nil {
			filename, err = r.media.SaveBytes(sessionID, storage.StoryTag(idx), kind, data, ext)
		}
		logger.LogDownload(r.logger, sessionID, filename, kind, err)
		if err != nil {
			continue
		}

		story.MediaURL = r.media.URLFor(filename)
		story.Thumbnail = thumbnailFor(story.Type == models.MediaVideo, data)
		stories = append(stories, story)
	}

	r.sessions.Update(sessionID, func(s *session.Session) {
		s.Stories = stories
		s.StoriesCount = len(stories)
	})
	return stories
}

// collectPosts walks the timeline, starting from the page embedded in the
// profile response, until limit posts were processed or the feed ends.
func (r *Runner) collectPosts(ctx context.Context, sessionID string, user *instagram.User, followers, limit int) ([]models.Post, error) {
	posts := []models.Post{}
	page := &user.EdgeOwnerToTimelineMedia

	for {
		for _, edge := range page.Edges {
			if len(posts) >= limit {
				return posts, nil
			}
			if len(posts) > 0 && r.opts.Pacer != nil {
				if err := r.opts.Pacer.Wait(ctx); err != nil {
					return posts, err
				}
			}
			if _, ok := r.sessions.Get(sessionID, session.Peek); !ok {
				return posts, errSessionGone
			}

			order := len(posts) + 1
			posts = append(posts, r.processPost(ctx, sessionID, edge.Node, order, followers))

			published := r.sessions.Update(sessionID, func(s *session.Session) {
				s.Progress = order * 100 / limit
				s.DownloadedPosts = order
				s.PostsAnalyzed = order
			})
			if !published {
				return posts, errSessionGone
			}
			logger.LogJobProgress(r.logger, sessionID, order, limit)
		}

		if len(posts) >= limit || !page.PageInfo.HasNextPage || page.PageInfo.EndCursor == "" {
			return posts, nil
		}

		first := limit - len(posts)
		if first > instagram.MaxMediaLimit {
			first = instagram.MaxMediaLimit
		}
		cursor := page.PageInfo.EndCursor
		next, err := retry.DoWithResult(ctx, func(ctx context.Context) (*instagram.EdgeOwnerToTimelineMedia, error) {
			return r.upstream.FetchPosts(ctx, user.ID, first, cursor)
		}, r.opts.Retry)
		if err != nil {
			return posts, err
		}
		if len(next.Edges) == 0 {
			return posts, nil
		}
		page = next
	}
}

// processPost downloads one post's media and builds its record. Download
// failures are recorded on the returned post rather than returned.
func (r *Runner) processPost(ctx context.Context, sessionID string, node instagram.Node, order, followers int) models.Post {
	post := models.Post{
		Shortcode:      node.Shortcode,
		InstagramURL:   instagram.GetPostURL(node.Shortcode),
		Caption:        models.TruncateCaption(node.Caption()),
		Likes:          node.Likes(),
		Comments:       node.Comments(),
		Timestamp:      node.TakenAt(),
		IsVideo:        node.IsVideo,
		EngagementRate: analytics.Round(analytics.EngagementRate(node.Likes(), node.Comments(), followers), 2),
		Order:          order,
	}

	mediaURL, kind, ext := node.DisplayURL, storage.KindImage, storage.ImageExt(node.DisplayURL)
	if node.IsVideo {
		post.VideoViewCount = node.VideoViewCount
		mediaURL, kind, ext = node.VideoURL, storage.KindVideo, ".mp4"
	}
	if mediaURL == "" {
		post.MediaType = models.MediaNone
		post.Thumbnail = storage.Placeholder(storage.ColorNone, "No Media")
		return post
	}

	data, err := r.download(ctx, mediaURL)
	if err != nil {
		logger.LogDownload(r.logger, sessionID, "", kind, err)
		return errorPost(post, err)
	}
	if len(data) == 0 {
		if node.IsVideo {
			post.MediaType = models.MediaVideoError
			post.Thumbnail = storage.Placeholder(storage.ColorVideo, "Video Error")
		} else {
			post.MediaType = models.MediaImageError
			post.Thumbnail = storage.Placeholder(storage.ColorImage, "Image Error")
		}
		return post
	}

	filename, err := r.media.SaveBytes(sessionID, storage.PostTag(order), kind, data, ext)
	logger.LogDownload(r.logger, sessionID, filename, kind, err)
	if err != nil {
		return errorPost(post, err)
	}

	post.MediaFilename = filename
	post.MediaURL = r.media.URLFor(filename)
	post.DownloadURL = post.MediaURL
	post.MediaType = kind
	post.Thumbnail = thumbnailFor(node.IsVideo, data)
	return post
}

func errorPost(post models.Post, err error) models.Post {
	post.MediaType = models.MediaError
	post.Thumbnail = storage.Placeholder(storage.ColorError, "Error")
	post.Error = errs.UserMessage(err)
	return post
}

func thumbnailFor(isVideo bool, data []byte) string {
	if isVideo {
		return storage.Placeholder(storage.ColorVideo, "Video")
	}
	thumb, err := storage.Thumbnail(data)
	if err != nil {
		return storage.Placeholder(storage.ColorImage, "Image")
	}
	return thumb
}
