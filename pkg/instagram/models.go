package instagram

import (
	"strconv"
	"strings"
)

// ProfileData is the parsed upstream profile snapshot
type ProfileData struct {
	PK             int64
	Username       string
	FullName       string
	PageName       string
	Biography      string
	IsPrivate      bool
	PublicEmail    string
	MediaCount     int64
	FollowerCount  int64
	FollowingCount int64
	// ProfileID identifies the active avatar asset. Equal to PK when
	// the profile never customized its avatar.
	ProfileID int64
	AvatarURL string
}

// profileEnvelope is the raw profile API response
type profileEnvelope struct {
	Result []struct {
		User profileUser `json:"user"`
	} `json:"result"`
}

type profileUser struct {
	PK             string `json:"pk"`
	Username       string `json:"username"`
	FullName       string `json:"full_name"`
	PageName       string `json:"page_name"`
	Biography      string `json:"biography"`
	IsPrivate      bool   `json:"is_private"`
	PublicEmail    string `json:"public_email"`
	MediaCount     int64  `json:"media_count"`
	FollowerCount  int64  `json:"follower_count"`
	FollowingCount int64  `json:"following_count"`
	ProfilePicID   string `json:"profile_pic_id"`
	HDProfilePic   struct {
		URL string `json:"url"`
	} `json:"hd_profile_pic_url_info"`
}

// HighlightNode is one entry of the upstream highlight tray
type HighlightNode struct {
	ID       int64
	Title    string
	CoverURL string
}

// highlightEnvelope is the raw highlight tray response
type highlightEnvelope struct {
	Response struct {
		Body struct {
			Data struct {
				User struct {
					EdgeHighlightReels struct {
						Edges []struct {
							Node struct {
								ID    string `json:"id"`
								Title string `json:"title"`
								Cover struct {
									URL string `json:"url"`
								} `json:"cover_media_cropped_thumbnail"`
							} `json:"node"`
						} `json:"edges"`
					} `json:"edge_highlight_reels"`
				} `json:"user"`
			} `json:"data"`
		} `json:"body"`
	} `json:"response"`
}

// StoryItem is one story of a reel (live feed or highlight)
type StoryItem struct {
	// StoryPK is the numeric prefix of the upstream item id
	StoryPK  int64
	TakenAt  int64
	MediaURL string
	IsVideo  bool
}

// reelsEnvelope is the raw stories response. Reels are keyed by the
// reel label: the plain id for the live feed, "highlight:{id}" for a
// highlight.
type reelsEnvelope struct {
	Response struct {
		Body struct {
			Reels map[string]struct {
				Items []reelItem `json:"items"`
			} `json:"reels"`
		} `json:"body"`
	} `json:"response"`
}

type reelItem struct {
	ID            string `json:"id"`
	TakenAt       int64  `json:"taken_at"`
	VideoVersions []struct {
		URL string `json:"url"`
	} `json:"video_versions"`
	ImageVersions struct {
		Candidates []struct {
			URL string `json:"url"`
		} `json:"candidates"`
	} `json:"image_versions2"`
}

// toStoryItem picks the media variant: the video when present, else
// the first (highest quality) image candidate.
func (r *reelItem) toStoryItem() (StoryItem, bool) {
	pk, ok := parseItemPK(r.ID)
	if !ok {
		return StoryItem{}, false
	}

	item := StoryItem{StoryPK: pk, TakenAt: r.TakenAt}
	if len(r.VideoVersions) > 0 && r.VideoVersions[0].URL != "" {
		item.MediaURL = r.VideoVersions[0].URL
		item.IsVideo = true
	} else if len(r.ImageVersions.Candidates) > 0 {
		item.MediaURL = r.ImageVersions.Candidates[0].URL
	}
	if item.MediaURL == "" {
		return StoryItem{}, false
	}
	return item, true
}

// parseItemPK extracts the numeric item pk from the "{pk}_{owner}" id
// form; plain numeric ids pass through.
func parseItemPK(id string) (int64, bool) {
	if i := strings.Index(id, "_"); i >= 0 {
		id = id[:i]
	}
	pk, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, false
	}
	return pk, true
}

// PostPage is one page of discovered post codes
type PostPage struct {
	Codes   []string
	Cursor  string
	HasNext bool
}

// postFeedEnvelope is the raw cursor feed response
type postFeedEnvelope struct {
	Code    int    `json:"code"`
	HasNext bool   `json:"hasNext"`
	Cursor  string `json:"cursor"`
	Items   []struct {
		Code string `json:"code"`
	} `json:"items"`
}

// PostMedia is one media item of a post
type PostMedia struct {
	URL     string
	IsVideo bool
}

// PostDetail is the parsed post page
type PostDetail struct {
	Caption   string
	Timestamp int64
	Media     []PostMedia
}
