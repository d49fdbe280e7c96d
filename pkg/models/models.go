package models

import "time"

// Media types recorded on a post. The *_error values mean the upstream
// returned an empty body for that item; MediaError means the download
// failed after retries.
const (
	MediaImage      = "image"
	MediaVideo      = "video"
	MediaImageError = "image_error"
	MediaVideoError = "video_error"
	MediaNone       = "no_media"
	MediaError      = "error"
)

// MaxCaptionRunes caps stored captions
const MaxCaptionRunes = 200

// DefaultProfilePic is shown when neither a local nor a remote picture exists
const DefaultProfilePic = "https://via.placeholder.com/150/667eea/ffffff?text=IG"

// Profile is the public account data shown for an analyzed user
type Profile struct {
	Username             string `json:"username"`
	FullName             string `json:"full_name"`
	Biography            string `json:"biography"`
	Followers            int    `json:"followers"`
	Followees            int    `json:"followees"`
	PostsCount           int    `json:"posts_count"`
	IsPrivate            bool   `json:"is_private"`
	IsVerified           bool   `json:"is_verified"`
	ProfilePicURL        string `json:"profile_pic_url"`
	ExternalURL          string `json:"external_url,omitempty"`
	ProfilePicDownloaded bool   `json:"profile_pic_downloaded"`
}

// Post is one timeline item with its engagement and stored media
type Post struct {
	Shortcode      string    `json:"shortcode"`
	InstagramURL   string    `json:"instagram_url"`
	Caption        string    `json:"caption"`
	Likes          int       `json:"likes"`
	Comments       int       `json:"comments"`
	Timestamp      time.Time `json:"timestamp"`
	IsVideo        bool      `json:"is_video"`
	VideoViewCount int       `json:"video_view_count"`
	EngagementRate float64   `json:"engagement_rate"`
	Order          int       `json:"order"`
	Thumbnail      string    `json:"thumbnail"`
	DownloadURL    string    `json:"download_url"`
	MediaURL       string    `json:"media_url"`
	MediaFilename  string    `json:"media_filename"`
	MediaType      string    `json:"media_type"`
	Error          string    `json:"error,omitempty"`
}

// Analyzable reports whether the post carries real engagement data
func (p Post) Analyzable() bool {
	return p.MediaType != MediaError && p.MediaType != MediaNone
}

// Story is one frame from the user's current stories
type Story struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	ViewCount int       `json:"view_count"`
	Order     int       `json:"order"`
	MediaURL  string    `json:"media_url"`
	Thumbnail string    `json:"thumbnail"`
	Error     string    `json:"error,omitempty"`
}

// Analytics summarizes engagement across the analyzed posts
type Analytics struct {
	TotalPostsAnalyzed    int     `json:"total_posts_analyzed"`
	AverageLikes          float64 `json:"average_likes_per_post"`
	AverageComments       float64 `json:"average_comments_per_post"`
	AverageEngagementRate float64 `json:"average_engagement_rate"`
	TotalEngagement       int     `json:"total_engagement"`
	VideoPosts            int     `json:"video_posts_count"`
	ImagePosts            int     `json:"image_posts_count"`
	EngagementPerFollower float64 `json:"engagement_per_follower"`
}

// TruncateCaption cuts s to MaxCaptionRunes runes
func TruncateCaption(s string) string {
	r := []rune(s)
	if len(r) <= MaxCaptionRunes {
		return s
	}
	return string(r[:MaxCaptionRunes])
}
