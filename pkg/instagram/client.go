package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	errs "iganalyzer/pkg/errors"
	"iganalyzer/pkg/logger"
	"iganalyzer/pkg/ratelimit"
)

// Client talks to Instagram's web endpoints
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	baseURL    string
	limiter    ratelimit.Limiter
	logger     logger.Logger
}

// NewClient creates a new Instagram API client
func NewClient(timeout time.Duration, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		headers: map[string]string{
			"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Accept":          "*/*",
			"Accept-Language": "en-US,en;q=0.9",
			"X-IG-App-ID":     "936619743392459",
			"Referer":         "https://www.instagram.com/",
			"Origin":          "https://www.instagram.com",
		},
		baseURL: BaseURL,
		logger:  log,
	}
}

// SetHeader sets a custom header for the client
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// SetBaseURL points the client at a different host
func (c *Client) SetBaseURL(base string) {
	c.baseURL = strings.TrimRight(base, "/")
}

// SetLimiter installs a limiter consulted before every request
func (c *Client) SetLimiter(l ratelimit.Limiter) {
	c.limiter = l
}

// SetSession attaches logged-in cookies. Empty values are ignored.
func (c *Client) SetSession(sessionID, csrfToken string) {
	if sessionID == "" {
		return
	}
	cookie := "sessionid=" + sessionID
	if csrfToken != "" {
		cookie += "; csrftoken=" + csrfToken
		c.headers["X-CSRFToken"] = csrfToken
	}
	c.headers["Cookie"] = cookie
}

func (c *Client) doRequest(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, err, fmt.Sprintf("failed to create request: %v", err))
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.WarnWithFields("HTTP request failed", map[string]interface{}{
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, err.Error())
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"url":      req.URL.String(),
		"status":   resp.StatusCode,
		"duration": duration,
	})
	return resp, nil
}

// getJSON performs a GET request and decodes the JSON response
func (c *Client) getJSON(ctx context.Context, rawURL string, target interface{}) error {
	resp, err := c.doRequest(ctx, rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeNetwork, err, fmt.Sprintf("failed to read response body: %v", err))
	}

	if err := json.Unmarshal(body, target); err != nil {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          rawURL,
			"error":        err.Error(),
			"body_preview": preview,
		})
		return &errs.Error{
			Type:    errs.ErrorTypeParsing,
			Message: fmt.Sprintf("failed to parse JSON: %v", err),
			Code:    resp.StatusCode,
			Err:     err,
		}
	}
	return nil
}

// checkResponseStatus maps HTTP status codes onto typed errors
func (c *Client) checkResponseStatus(resp *http.Response) error {
	code := resp.StatusCode
	if code < 400 {
		return nil
	}

	fields := map[string]interface{}{
		"status": code,
		"url":    resp.Request.URL.String(),
	}

	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		c.logger.WarnWithFields("authentication error", fields)
		return errs.New(errs.ErrorTypeAuth, code, "authentication required")
	case code == http.StatusNotFound:
		c.logger.DebugWithFields("resource not found", fields)
		return errs.New(errs.ErrorTypeNotFound, code, "resource not found")
	case code == http.StatusTooManyRequests:
		c.logger.WarnWithFields("rate limit exceeded", fields)
		return errs.New(errs.ErrorTypeRateLimit, code, "rate limit exceeded")
	case code >= 500:
		c.logger.WarnWithFields("server error", fields)
		return errs.New(errs.ErrorTypeServerError, code, fmt.Sprintf("server returned status %d", code))
	default:
		c.logger.ErrorWithFields("unexpected API error", fields)
		return errs.New(errs.ErrorTypeUnknown, code, fmt.Sprintf("unexpected status code: %d", code))
	}
}

// FetchProfile fetches profile metadata together with the first page of
// the user's timeline.
func (c *Client) FetchProfile(ctx context.Context, username string) (*User, error) {
	var response InstagramResponse
	if err := c.getJSON(ctx, profileURL(c.baseURL, username), &response); err != nil {
		if errs.Is(err, errs.ErrorTypeNotFound) {
			return nil, errs.New(errs.ErrorTypeNotFound, 404, fmt.Sprintf("Profile '%s' does not exist", username))
		}
		return nil, err
	}

	if response.RequiresToLogin {
		return nil, errs.New(errs.ErrorTypeAuth, http.StatusUnauthorized, "Instagram requires authentication to view this profile")
	}
	if response.Data.User == nil || response.Data.User.ID == "" {
		return nil, errs.New(errs.ErrorTypeNotFound, 404, fmt.Sprintf("Profile '%s' does not exist", username))
	}

	c.logger.DebugWithFields("fetched user profile", map[string]interface{}{
		"username": username,
		"user_id":  response.Data.User.ID,
	})
	return response.Data.User, nil
}

// FetchPosts fetches one page of the user's timeline after the given cursor
func (c *Client) FetchPosts(ctx context.Context, userID string, first int, after string) (*EdgeOwnerToTimelineMedia, error) {
	var response InstagramResponse
	if err := c.getJSON(ctx, mediaURL(c.baseURL, userID, first, after), &response); err != nil {
		return nil, err
	}
	if response.Data.User == nil {
		return &EdgeOwnerToTimelineMedia{}, nil
	}
	return &response.Data.User.EdgeOwnerToTimelineMedia, nil
}

// FetchStories returns the user's currently active story frames
func (c *Client) FetchStories(ctx context.Context, userID string) ([]StoryItem, error) {
	var response ReelsMediaResponse
	if err := c.getJSON(ctx, storiesURL(c.baseURL, userID), &response); err != nil {
		return nil, err
	}

	var items []StoryItem
	for _, reel := range response.ReelsMedia {
		items = append(items, reel.Items...)
	}
	return items, nil
}

// Download fetches raw media bytes. Bodies larger than maxBytes are cut
// off at maxBytes and a warning is logged.
func (c *Client) Download(ctx context.Context, mediaURL string, maxBytes int64) ([]byte, error) {
	resp, err := c.doRequest(ctx, mediaURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp); err != nil {
		return nil, err
	}

	reader := io.Reader(resp.Body)
	if maxBytes > 0 {
		reader = io.LimitReader(resp.Body, maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, fmt.Sprintf("failed to read media: %v", err))
	}

	if maxBytes > 0 && int64(len(data)) > maxBytes {
		c.logger.WarnWithFields("media exceeds size cap, truncating", map[string]interface{}{
			"url":       mediaURL,
			"max_bytes": maxBytes,
		})
		data = data[:maxBytes]
	}
	return data, nil
}
