package instagram

import (
	"fmt"
	"net/url"
	"strconv"
)

// Endpoints builds upstream URLs from the configured base addresses
type Endpoints struct {
	// StoryAPI serves stories and the highlight tray (token protected)
	StoryAPI string
	// PostMirror serves post pages and cursor feeds
	PostMirror string
	// ProfileAPI serves profile metadata
	ProfileAPI string
}

// ProfileURL returns the profile metadata endpoint for a username
func (e Endpoints) ProfileURL(username string) string {
	params := url.Values{}
	params.Set("username", username)
	return fmt.Sprintf("%s/api/v1/userInfo/?%s", e.ProfileAPI, params.Encode())
}

// StoryDataURL returns the single POST endpoint behind which the story
// API multiplexes its operations (the request payload selects one).
func (e Endpoints) StoryDataURL() string {
	return e.StoryAPI + "/api/apiData"
}

// PostsPageURL returns the un-paginated first posts page for a profile
func (e Endpoints) PostsPageURL(username string, isTag bool) string {
	if isTag {
		return fmt.Sprintf("%s/tagged/%s", e.PostMirror, username)
	}
	return fmt.Sprintf("%s/%s", e.PostMirror, username)
}

// PostsFeedURL returns the cursor feed endpoint for subsequent pages
func (e Endpoints) PostsFeedURL(pk int64, isTag bool, cursor string) string {
	params := url.Values{}
	params.Set("id", strconv.FormatInt(pk, 10))
	params.Set("cursor", cursor)
	if isTag {
		return fmt.Sprintf("%s/api/tagged?%s", e.PostMirror, params.Encode())
	}
	return fmt.Sprintf("%s/api/posts/?%s", e.PostMirror, params.Encode())
}

// PostPageURL returns the detail page for one post
func (e Endpoints) PostPageURL(postCode string) string {
	return fmt.Sprintf("%s/p/%s", e.PostMirror, postCode)
}
