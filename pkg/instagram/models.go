package instagram

import "time"

// InstagramResponse is the envelope shared by the profile and media endpoints
type InstagramResponse struct {
	RequiresToLogin bool   `json:"requires_to_login"`
	Data            Data   `json:"data"`
	Status          string `json:"status"`
}

// Data wraps the user information in the response
type Data struct {
	User *User `json:"user"`
}

// Count is the `{"count": n}` shape Instagram uses for edge totals
type Count struct {
	Count int `json:"count"`
}

// User represents an Instagram user profile
type User struct {
	ID                       string                   `json:"id"`
	Username                 string                   `json:"username"`
	FullName                 string                   `json:"full_name"`
	Biography                string                   `json:"biography"`
	ExternalURL              string                   `json:"external_url"`
	IsPrivate                bool                     `json:"is_private"`
	IsVerified               bool                     `json:"is_verified"`
	ProfilePicURL            string                   `json:"profile_pic_url"`
	ProfilePicURLHD          string                   `json:"profile_pic_url_hd"`
	EdgeFollowedBy           Count                    `json:"edge_followed_by"`
	EdgeFollow               Count                    `json:"edge_follow"`
	EdgeOwnerToTimelineMedia EdgeOwnerToTimelineMedia `json:"edge_owner_to_timeline_media"`
}

// BestProfilePicURL prefers the HD variant when present
func (u *User) BestProfilePicURL() string {
	if u.ProfilePicURLHD != "" {
		return u.ProfilePicURLHD
	}
	return u.ProfilePicURL
}

// EdgeOwnerToTimelineMedia is one page of the user's timeline
type EdgeOwnerToTimelineMedia struct {
	Count    int      `json:"count"`
	PageInfo PageInfo `json:"page_info"`
	Edges    []Edge   `json:"edges"`
}

// PageInfo contains pagination information
type PageInfo struct {
	HasNextPage bool   `json:"has_next_page"`
	EndCursor   string `json:"end_cursor"`
}

// Edge wraps a single media node
type Edge struct {
	Node Node `json:"node"`
}

// Node represents a single timeline post (photo or video)
type Node struct {
	ID                   string       `json:"id"`
	Shortcode            string       `json:"shortcode"`
	DisplayURL           string       `json:"display_url"`
	VideoURL             string       `json:"video_url"`
	IsVideo              bool         `json:"is_video"`
	VideoViewCount       int          `json:"video_view_count"`
	TakenAtTimestamp     int64        `json:"taken_at_timestamp"`
	EdgeMediaToCaption   CaptionEdges `json:"edge_media_to_caption"`
	EdgeLikedBy          Count        `json:"edge_liked_by"`
	EdgeMediaPreviewLike Count        `json:"edge_media_preview_like"`
	EdgeMediaToComment   Count        `json:"edge_media_to_comment"`
}

// CaptionEdges holds the caption text nodes of a post
type CaptionEdges struct {
	Edges []struct {
		Node struct {
			Text string `json:"text"`
		} `json:"node"`
	} `json:"edges"`
}

// Caption returns the first caption text, if any
func (n *Node) Caption() string {
	if len(n.EdgeMediaToCaption.Edges) == 0 {
		return ""
	}
	return n.EdgeMediaToCaption.Edges[0].Node.Text
}

// Likes returns the like count from whichever edge the response populated
func (n *Node) Likes() int {
	if n.EdgeLikedBy.Count > 0 {
		return n.EdgeLikedBy.Count
	}
	return n.EdgeMediaPreviewLike.Count
}

// Comments returns the comment count
func (n *Node) Comments() int {
	return n.EdgeMediaToComment.Count
}

// MediaURL returns the URL of the full-size media for this post. Videos
// fall back to the display image URL when no video URL was included.
func (n *Node) MediaURL() string {
	if n.IsVideo && n.VideoURL != "" {
		return n.VideoURL
	}
	return n.DisplayURL
}

// TakenAt returns the capture time in UTC
func (n *Node) TakenAt() time.Time {
	return time.Unix(n.TakenAtTimestamp, 0).UTC()
}

// ReelsMediaResponse is returned by the stories endpoint
type ReelsMediaResponse struct {
	ReelsMedia []Reel `json:"reels_media"`
	Status     string `json:"status"`
}

// Reel is one user's active story tray
type Reel struct {
	ID    string      `json:"id"`
	Items []StoryItem `json:"items"`
}

// Story media types as reported by the API
const (
	StoryMediaImage = 1
	StoryMediaVideo = 2
)

// StoryItem is a single story frame
type StoryItem struct {
	ID             string `json:"id"`
	TakenAt        int64  `json:"taken_at"`
	MediaType      int    `json:"media_type"`
	ViewCount      *int   `json:"view_count,omitempty"`
	ImageVersions2 struct {
		Candidates []MediaCandidate `json:"candidates"`
	} `json:"image_versions2"`
	VideoVersions []MediaCandidate `json:"video_versions"`
}

// MediaCandidate is one rendition of a story frame
type MediaCandidate struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// IsVideo reports whether the frame is a video
func (s *StoryItem) IsVideo() bool {
	return s.MediaType == StoryMediaVideo
}

// MediaURL returns the first (largest) rendition for the frame's kind
func (s *StoryItem) MediaURL() string {
	if s.IsVideo() && len(s.VideoVersions) > 0 {
		return s.VideoVersions[0].URL
	}
	if len(s.ImageVersions2.Candidates) > 0 {
		return s.ImageVersions2.Candidates[0].URL
	}
	return ""
}

// Time returns the capture time in UTC
func (s *StoryItem) Time() time.Time {
	return time.Unix(s.TakenAt, 0).UTC()
}
