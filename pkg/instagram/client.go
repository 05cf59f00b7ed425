package instagram

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	errs "igarchive/pkg/errors"
	"igarchive/pkg/logger"
	"igarchive/pkg/ratelimit"
	"igarchive/pkg/session"
)

const (
	// rateLimitBackoff is the fixed wait after a 429 before retrying
	rateLimitBackoff = 30 * time.Second
	// expiredMarker is the story API's in-body signal that the session
	// tokens are stale
	expiredMarker = "EXPIRED"
)

// Client is the upstream fetch layer: JSON calls with transparent
// token refresh and rate-limit backoff, page fetches, and media
// downloads with extension resolution.
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	endpoints  Endpoints
	session    *session.Context
	limiter    ratelimit.Limiter
	maxRetries int
	logger     logger.Logger
}

// NewClient creates a new upstream client
func NewClient(endpoints Endpoints, sess *session.Context, limiter ratelimit.Limiter,
	timeout time.Duration, maxRetries int, userAgent string, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	if limiter == nil {
		limiter = ratelimit.NewTokenBucket(60, time.Minute)
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		headers: map[string]string{
			"User-Agent":      userAgent,
			"Accept":          "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.9",
		},
		endpoints:  endpoints,
		session:    sess,
		limiter:    limiter,
		maxRetries: maxRetries,
		logger:     log,
	}
}

// SetHeader sets a custom header for the client
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// send performs one HTTP exchange, handling rate-limit backoff and
// session expiry across up to maxRetries attempts. The returned body
// is fully read.
func (c *Client) send(method, rawURL string, payload []byte, withSession bool) ([]byte, http.Header, error) {
	var lastErr error
	refreshed := false

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		c.limiter.Wait()

		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}
		req, err := http.NewRequest(method, rawURL, bodyReader)
		if err != nil {
			return nil, nil, errs.New(errs.ErrorTypeUnknown, "failed to create request: %v", err)
		}
		for key, value := range c.headers {
			req.Header.Set(key, value)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if withSession && c.session != nil {
			req.Header.Set("Cookie", c.session.CookieHeader())
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = errs.New(errs.ErrorTypeTransport, "network error: %v", err)
			c.logger.WarnWithFields("HTTP request failed", map[string]interface{}{
				"method": method, "url": rawURL, "attempt": attempt, "error": err.Error(),
			})
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
			"method": method, "url": rawURL, "status": resp.StatusCode,
			"duration": time.Since(start),
		})
		if readErr != nil {
			lastErr = errs.NewWithCode(errs.ErrorTypeTransport, resp.StatusCode,
				"failed to read response body: %v", readErr)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			if withSession && c.session != nil {
				c.session.UpdateFromSetCookie(resp.Header.Values("Set-Cookie"))
			}
			return body, resp.Header, nil

		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = errs.NewWithCode(errs.ErrorTypeRateLimit, resp.StatusCode, "rate limit exceeded")
			c.logger.WarnWithFields("rate limited, backing off", map[string]interface{}{
				"url": rawURL, "attempt": attempt,
			})
			time.Sleep(rateLimitBackoff)

		case resp.StatusCode == http.StatusInternalServerError &&
			withSession && strings.Contains(string(body), expiredMarker):
			lastErr = errs.NewWithCode(errs.ErrorTypeAuthExpired, resp.StatusCode, "session tokens expired")
			if refreshed || c.session == nil {
				return nil, nil, lastErr
			}
			refreshed = true
			if err := c.session.Refresh(); err != nil {
				return nil, nil, errs.NewWithCode(errs.ErrorTypeAuthExpired, resp.StatusCode,
					"token refresh failed: %v", err)
			}

		case resp.StatusCode == http.StatusNotFound:
			return nil, nil, errs.NewWithCode(errs.ErrorTypeNotFound, resp.StatusCode, "resource not found")

		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, nil, errs.NewWithCode(errs.ErrorTypeAuthExpired, resp.StatusCode, "authentication rejected")

		default:
			lastErr = errs.NewWithCode(errs.ErrorTypeTransport, resp.StatusCode,
				"unexpected status %d", resp.StatusCode)
			if resp.StatusCode < 500 {
				return nil, nil, lastErr
			}
		}
	}

	c.logger.ErrorWithFields("max retries exceeded", map[string]interface{}{
		"method": method, "url": rawURL, "max_retries": c.maxRetries, "last_error": lastErr.Error(),
	})
	return nil, nil, lastErr
}

// FetchProfile fetches and parses the profile snapshot for a username
func (c *Client) FetchProfile(username string) (*ProfileData, error) {
	body, _, err := c.send(http.MethodGet, c.endpoints.ProfileURL(username), nil, false)
	if err != nil {
		return nil, err
	}

	var envelope profileEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, errs.New(errs.ErrorTypeMalformed, "failed to parse profile response: %v", err)
	}
	if len(envelope.Result) == 0 {
		return nil, errs.New(errs.ErrorTypeNotFound, "profile %q not in response", username)
	}

	user := envelope.Result[0].User
	pk, err := strconv.ParseInt(user.PK, 10, 64)
	if err != nil {
		return nil, errs.New(errs.ErrorTypeMalformed, "invalid profile pk %q", user.PK)
	}

	// profile_pic_id carries the asset id as a numeric prefix; its
	// absence means the default avatar, flagged by profile_id == pk.
	profileID := pk
	if user.ProfilePicID != "" {
		if id, ok := parseItemPK(user.ProfilePicID); ok {
			profileID = id
		}
	}

	return &ProfileData{
		PK:             pk,
		Username:       user.Username,
		FullName:       user.FullName,
		PageName:       user.PageName,
		Biography:      user.Biography,
		IsPrivate:      user.IsPrivate,
		PublicEmail:    user.PublicEmail,
		MediaCount:     user.MediaCount,
		FollowerCount:  user.FollowerCount,
		FollowingCount: user.FollowingCount,
		ProfileID:      profileID,
		AvatarURL:      user.HDProfilePic.URL,
	}, nil
}

// storyPayload shapes the story API request body
type storyPayload struct {
	Body map[string]interface{} `json:"body"`
	URL  string                 `json:"url"`
}

// FetchHighlights fetches the highlight tray for a profile
func (c *Client) FetchHighlights(pk int64) ([]HighlightNode, error) {
	payload, _ := json.Marshal(storyPayload{
		Body: map[string]interface{}{"id": strconv.FormatInt(pk, 10)},
		URL:  "user/get_highlights",
	})
	body, _, err := c.send(http.MethodPost, c.endpoints.StoryDataURL(), payload, true)
	if err != nil {
		return nil, err
	}

	var envelope highlightEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, errs.New(errs.ErrorTypeMalformed, "failed to parse highlight tray: %v", err)
	}

	var nodes []HighlightNode
	for _, edge := range envelope.Response.Body.Data.User.EdgeHighlightReels.Edges {
		id, err := strconv.ParseInt(edge.Node.ID, 10, 64)
		if err != nil {
			continue
		}
		nodes = append(nodes, HighlightNode{
			ID:       id,
			Title:    edge.Node.Title,
			CoverURL: edge.Node.Cover.URL,
		})
	}
	return nodes, nil
}

// FetchStories fetches the items of one reel: the live feed when
// highlightID equals pk, a highlight otherwise.
func (c *Client) FetchStories(pk, highlightID int64) ([]StoryItem, error) {
	var payload []byte
	label := strconv.FormatInt(highlightID, 10)
	if highlightID != pk {
		payload, _ = json.Marshal(storyPayload{
			Body: map[string]interface{}{"ids": []string{label}},
			URL:  "highlight/get_stories",
		})
		label = "highlight:" + label
	} else {
		payload, _ = json.Marshal(storyPayload{
			Body: map[string]interface{}{"ids": []int64{highlightID}},
			URL:  "user/get_stories",
		})
	}

	body, _, err := c.send(http.MethodPost, c.endpoints.StoryDataURL(), payload, true)
	if err != nil {
		return nil, err
	}

	var envelope reelsEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, errs.New(errs.ErrorTypeMalformed, "failed to parse stories: %v", err)
	}

	// A missing reel label means no current stories, not an error.
	reel, ok := envelope.Response.Body.Reels[label]
	if !ok {
		return []StoryItem{}, nil
	}

	items := make([]StoryItem, 0, len(reel.Items))
	for _, raw := range reel.Items {
		if item, ok := raw.toStoryItem(); ok {
			items = append(items, item)
		}
	}
	return items, nil
}

// FetchPostsFirstPage fetches and parses the un-paginated first page
func (c *Client) FetchPostsFirstPage(username string, isTag bool) (*PostPage, error) {
	body, _, err := c.send(http.MethodGet, c.endpoints.PostsPageURL(username, isTag), nil, false)
	if err != nil {
		return nil, err
	}
	page, err := ParsePostGrid(bytes.NewReader(body))
	if err != nil {
		return nil, errs.New(errs.ErrorTypeMalformed, "failed to parse posts page: %v", err)
	}
	return page, nil
}

// FetchPostsFeed fetches one cursor page of post codes
func (c *Client) FetchPostsFeed(pk int64, isTag bool, cursor string) (*PostPage, error) {
	body, _, err := c.send(http.MethodGet, c.endpoints.PostsFeedURL(pk, isTag, cursor), nil, false)
	if err != nil {
		return nil, err
	}

	var envelope postFeedEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, errs.New(errs.ErrorTypeMalformed, "failed to parse posts feed: %v", err)
	}
	if !isTag && envelope.Code != 200 {
		return nil, errs.New(errs.ErrorTypeMalformed, "posts feed error code %d", envelope.Code)
	}
	if isTag && len(envelope.Items) == 0 && !envelope.HasNext {
		return &PostPage{}, nil
	}

	page := &PostPage{Cursor: envelope.Cursor, HasNext: envelope.HasNext}
	for _, item := range envelope.Items {
		if item.Code != "" {
			page.Codes = append(page.Codes, item.Code)
		}
	}
	return page, nil
}

// FetchPostDetail fetches and parses one post page
func (c *Client) FetchPostDetail(postCode string) (*PostDetail, error) {
	body, _, err := c.send(http.MethodGet, c.endpoints.PostPageURL(postCode), nil, false)
	if err != nil {
		return nil, err
	}
	detail, err := ParsePostPage(bytes.NewReader(body))
	if err != nil {
		return nil, errs.New(errs.ErrorTypeMalformed, "failed to parse post page: %v", err)
	}
	return detail, nil
}

// DownloadTo fetches a media URL and saves it to destNoExt plus the
// resolved extension, returning the final path. Text and HTML payloads
// are rejected as probable error pages.
func (c *Client) DownloadTo(mediaURL, destNoExt string) (string, error) {
	c.limiter.Wait()

	req, err := http.NewRequest(http.MethodGet, mediaURL, nil)
	if err != nil {
		return "", errs.New(errs.ErrorTypeUnknown, "failed to create request: %v", err)
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errs.New(errs.ErrorTypeTransport, "download failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errs.NewWithCode(errs.ErrorTypeTransport, resp.StatusCode,
			"download returned status %d", resp.StatusCode)
	}

	ext := resolveExtension(resp.Header.Get("Content-Type"), mediaURL)
	if ext == "" {
		return "", errs.New(errs.ErrorTypeMalformed, "no usable media extension for %s", mediaURL)
	}

	dest := destNoExt + ext
	out, err := os.Create(dest)
	if err != nil {
		return "", errs.New(errs.ErrorTypeFilesystem, "failed to create media file: %v", err)
	}

	_, copyErr := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(dest)
		return "", errs.New(errs.ErrorTypeTransport, "failed to save media file")
	}
	return dest, nil
}

// DownloadBytes fetches a small asset fully into memory. Used for the
// byte-level cover comparison.
func (c *Client) DownloadBytes(assetURL string) ([]byte, error) {
	body, _, err := c.send(http.MethodGet, assetURL, nil, false)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// preferred extensions for the media types the archive handles;
// mime.ExtensionsByType is unordered and OS dependent
var preferredExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/heic": ".heic",
	"video/mp4":  ".mp4",
	"video/webm": ".webm",
}

// resolveExtension resolves the file extension from the Content-Type
// header, falling back to the URL path. Empty, text and HTML results
// are rejected.
func resolveExtension(contentType, mediaURL string) string {
	mediaType := contentType
	if i := strings.Index(mediaType, ";"); i >= 0 {
		mediaType = mediaType[:i]
	}
	mediaType = strings.TrimSpace(mediaType)
	if strings.HasPrefix(mediaType, "text/") {
		// an error page where media should be
		return ""
	}

	ext := preferredExtensions[mediaType]
	if ext == "" && mediaType != "" {
		if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
			ext = exts[0]
		}
	}
	if ext == "" {
		if parsed, err := url.Parse(mediaURL); err == nil {
			ext = filepath.Ext(parsed.Path)
		}
	}

	switch ext {
	case "", ".", ".txt", ".html", ".htm":
		return ""
	}
	return ext
}
