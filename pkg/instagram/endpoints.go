package instagram

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const (
	// BaseURL is the base URL for Instagram
	BaseURL = "https://www.instagram.com"

	// ProfileEndpoint returns profile metadata plus the first timeline page
	ProfileEndpoint = "/api/v1/users/web_profile_info/"

	// MediaEndpoint serves paged timeline media
	MediaEndpoint = "/graphql/query/"

	// StoriesEndpoint serves active story trays by user id
	StoriesEndpoint = "/api/v1/feed/reels_media/"

	// MediaQueryHash is the query hash for fetching user media
	MediaQueryHash = "e769aa130647d2354c40ea6a439bfc08"

	// DefaultMediaLimit is the default number of media items to fetch per request
	DefaultMediaLimit = 12

	// MaxMediaLimit is the maximum number of media items per request
	MaxMediaLimit = 50
)

func profileURL(base, username string) string {
	params := url.Values{}
	params.Set("username", username)
	return fmt.Sprintf("%s%s?%s", base, ProfileEndpoint, params.Encode())
}

func mediaURL(base, userID string, first int, after string) string {
	if first <= 0 {
		first = DefaultMediaLimit
	} else if first > MaxMediaLimit {
		first = MaxMediaLimit
	}

	variables := map[string]interface{}{
		"id":    userID,
		"first": first,
	}
	if after != "" {
		variables["after"] = after
	}
	encoded, _ := json.Marshal(variables)

	params := url.Values{}
	params.Set("query_hash", MediaQueryHash)
	params.Set("variables", string(encoded))
	return fmt.Sprintf("%s%s?%s", base, MediaEndpoint, params.Encode())
}

func storiesURL(base, userID string) string {
	params := url.Values{}
	params.Set("reel_ids", userID)
	return fmt.Sprintf("%s%s?%s", base, StoriesEndpoint, params.Encode())
}

// GetPostURL constructs the public URL for a specific post
func GetPostURL(shortcode string) string {
	if shortcode == "" {
		return ""
	}
	return fmt.Sprintf("https://instagram.com/p/%s/", shortcode)
}

// IsValidUsername checks if a username is valid according to Instagram rules
func IsValidUsername(username string) bool {
	if username == "" || len(username) > 30 {
		return false
	}

	for _, char := range username {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '.' || char == '_') {
			return false
		}
	}
	return true
}

// reservedPaths are first path segments that never name a profile
var reservedPaths = map[string]bool{
	"p": true, "reel": true, "reels": true, "tv": true, "explore": true,
	"stories": true, "accounts": true, "direct": true, "about": true,
}

var profilePattern = regexp.MustCompile(`(?i)instagram\.com/([A-Za-z0-9_.]+)(?:[/?#]|$)`)

// ExtractUsername pulls the profile name out of an Instagram profile URL.
// Paths such as /user/reels or /user/?hl=en resolve to "user". A bare
// username (optionally prefixed with @) is accepted as well. The result is
// lowercased; ok is false when no profile could be identified.
func ExtractUsername(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	if !strings.Contains(strings.ToLower(raw), "instagram.com") {
		name := strings.TrimPrefix(raw, "@")
		if IsValidUsername(name) {
			return strings.ToLower(name), true
		}
		return "", false
	}

	m := profilePattern.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	name := strings.ToLower(m[1])
	if reservedPaths[name] || !IsValidUsername(name) {
		return "", false
	}
	return name, true
}
