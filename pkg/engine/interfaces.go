package engine

import (
	"igarchive/pkg/catalog"
	"igarchive/pkg/instagram"
	"igarchive/pkg/media"
)

// Fetcher is the upstream access the engine depends on. Implemented by
// instagram.Client; tests substitute a fake.
type Fetcher interface {
	FetchProfile(username string) (*instagram.ProfileData, error)
	FetchHighlights(pk int64) ([]instagram.HighlightNode, error)
	FetchStories(pk, highlightID int64) ([]instagram.StoryItem, error)
	FetchPostsFirstPage(username string, isTag bool) (*instagram.PostPage, error)
	FetchPostsFeed(pk int64, isTag bool, cursor string) (*instagram.PostPage, error)
	FetchPostDetail(postCode string) (*instagram.PostDetail, error)
	// DownloadTo saves a media URL to destNoExt plus the resolved
	// extension and returns the final path
	DownloadTo(mediaURL, destNoExt string) (string, error)
	DownloadBytes(assetURL string) ([]byte, error)
}

// Thumbnailer renders thumbnails for downloaded media
type Thumbnailer interface {
	Generate(mediaPath, destPath string, size int, shape media.Shape) error
}

// SyncStatus is the outcome of a profile metadata sync
type SyncStatus string

const (
	StatusCreated   SyncStatus = "created"
	StatusUpdated   SyncStatus = "updated"
	StatusUnchanged SyncStatus = "unchanged"
)

// ProfileSync reports one profile metadata sync
type ProfileSync struct {
	Profile *catalog.ProfileRecord
	Status  SyncStatus
	// Dir is the profile's directory after any rename
	Dir string
}

// ReelReport reports one reel (live feed or highlight) download
type ReelReport struct {
	HighlightID int64
	Title       string
	// Seen is how many items the upstream reel currently holds
	Seen int
	// Downloaded is how many were fetched fresh this run
	Downloaded int
	// Copied is how many were deduplicated from an earlier placement
	Copied int
	Failed int
}

// PostCrawl reports one post discovery and completion pass
type PostCrawl struct {
	Discovered int
	Completed  int
	Failed     int
}

// UpdateReport aggregates a full profile update
type UpdateReport struct {
	Profile *ProfileSync
	// SkippedPrivate is set when the profile is private and the media
	// stages could not run
	SkippedPrivate bool
	LiveFeed       *ReelReport
	Highlights     []ReelReport
	Posts          *PostCrawl
	Tagged         *PostCrawl
}
