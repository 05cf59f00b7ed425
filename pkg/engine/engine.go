package engine

import (
	"fmt"
	"path/filepath"
	"strings"

	"igarchive/pkg/archive"
	"igarchive/pkg/catalog"
	"igarchive/pkg/config"
	errs "igarchive/pkg/errors"
	"igarchive/pkg/logger"
	"igarchive/pkg/media"
	"igarchive/pkg/retry"
)

// Engine drives archive synchronization: profile metadata, stories and
// highlights, posts and tagged posts. Every operation is incremental
// and safe to repeat; the catalog is the source of truth and the tree
// only receives media after the corresponding row is committed.
type Engine struct {
	catalog *catalog.Catalog
	tree    *archive.Tree
	fetcher Fetcher
	thumbs  Thumbnailer
	sizes   config.ThumbnailConfig
	retrier *retry.Retrier
	logger  logger.Logger
}

// New creates an engine over an open catalog and archive tree
func New(cat *catalog.Catalog, tree *archive.Tree, fetcher Fetcher, thumbs Thumbnailer,
	cfg *config.Config, log logger.Logger) *Engine {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Engine{
		catalog: cat,
		tree:    tree,
		fetcher: fetcher,
		thumbs:  thumbs,
		sizes:   cfg.Thumbnails,
		retrier: retry.NewDownloadRetrier(cfg.Download.RetryAttempts, cfg.RateLimit.RetryDelay, log),
		logger:  log,
	}
}

// AddProfile archives a profile's metadata and avatar, and lays out
// the highlight folders of public profiles without fetching any story
// media yet. Adding an already archived profile refreshes it instead
// of failing.
func (e *Engine) AddProfile(username string) (*ProfileSync, error) {
	sync, err := e.SyncProfile(username)
	if err != nil {
		return nil, err
	}
	if !sync.Profile.IsPrivate {
		if err := e.reconcileHighlightSet(sync.Profile, sync.Dir); err != nil {
			e.logger.WithError(err).WarnWithFields("highlight reconciliation failed", map[string]interface{}{
				"username": sync.Profile.Username,
			})
		}
	}
	return sync, nil
}

// UpdateProfile runs the full pipeline for one profile: metadata, live
// stories, every highlight, posts and tagged posts. Private profiles
// stop after the metadata stage.
func (e *Engine) UpdateProfile(username string) (*UpdateReport, error) {
	sync, err := e.SyncProfile(username)
	if err != nil {
		return nil, err
	}
	report := &UpdateReport{Profile: sync}

	if sync.Profile.IsPrivate {
		report.SkippedPrivate = true
		e.logger.InfoWithFields("profile is private, skipping media stages", map[string]interface{}{
			"username": sync.Profile.Username,
		})
		return report, nil
	}

	live, err := e.downloadLiveFeed(sync.Profile, sync.Dir)
	if err != nil {
		return report, err
	}
	report.LiveFeed = live

	highlights, err := e.downloadHighlights(sync.Profile, sync.Dir, 0)
	if err != nil {
		return report, err
	}
	report.Highlights = highlights

	posts, err := e.crawlPosts(sync.Profile, sync.Dir, false)
	if err != nil {
		return report, err
	}
	report.Posts = posts

	tagged, err := e.crawlPosts(sync.Profile, sync.Dir, true)
	if err != nil {
		return report, err
	}
	report.Tagged = tagged

	return report, nil
}

// DownloadLiveStories refreshes the profile and archives its current
// live story feed.
func (e *Engine) DownloadLiveStories(username string) (*ReelReport, error) {
	sync, err := e.requirePublic(username)
	if err != nil {
		return nil, err
	}
	return e.downloadLiveFeed(sync.Profile, sync.Dir)
}

// DownloadHighlight archives one highlight by id
func (e *Engine) DownloadHighlight(username string, highlightID int64) (*ReelReport, error) {
	sync, err := e.requirePublic(username)
	if err != nil {
		return nil, err
	}
	reports, err := e.downloadHighlights(sync.Profile, sync.Dir, highlightID)
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, errs.New(errs.ErrorTypeNotFound, "highlight %d not in the profile's tray", highlightID)
	}
	return &reports[0], nil
}

// DownloadAllHighlights archives every highlight of a profile
func (e *Engine) DownloadAllHighlights(username string) ([]ReelReport, error) {
	sync, err := e.requirePublic(username)
	if err != nil {
		return nil, err
	}
	return e.downloadHighlights(sync.Profile, sync.Dir, 0)
}

// CrawlProfilePosts discovers and archives posts (or tagged posts)
func (e *Engine) CrawlProfilePosts(username string, isTag bool) (*PostCrawl, error) {
	sync, err := e.requirePublic(username)
	if err != nil {
		return nil, err
	}
	return e.crawlPosts(sync.Profile, sync.Dir, isTag)
}

// ListProfiles returns all archived profiles
func (e *Engine) ListProfiles() ([]catalog.ProfileRecord, error) {
	return e.catalog.ListProfiles()
}

// SweepStaging clears partial downloads left by crashed runs
func (e *Engine) SweepStaging() error {
	return e.tree.SweepStaging()
}

// requirePublic refreshes a profile and fails when it is private,
// since the media endpoints only serve public profiles.
func (e *Engine) requirePublic(username string) (*ProfileSync, error) {
	sync, err := e.SyncProfile(username)
	if err != nil {
		return nil, err
	}
	if sync.Profile.IsPrivate {
		return nil, errs.New(errs.ErrorTypeNotFound, "profile %q is private", sync.Profile.Username)
	}
	return sync, nil
}

// stagedPair is a downloaded media file and its thumbnail, both still
// in the staging directory.
type stagedPair struct {
	media string
	thumb string
	ext   string
}

// stageMedia downloads a media URL into staging and renders its
// thumbnail there. Nothing is visible in the archive tree yet.
func (e *Engine) stageMedia(mediaURL string, size int, shape media.Shape) (*stagedPair, error) {
	base := e.tree.StagePath("")

	var mediaPath string
	err := e.retrier.Do(func() error {
		var err error
		mediaPath, err = e.fetcher.DownloadTo(mediaURL, base)
		return err
	})
	if err != nil {
		return nil, err
	}

	thumbPath := base + "_thumbnail.png"
	if err := e.thumbs.Generate(mediaPath, thumbPath, size, shape); err != nil {
		e.tree.Discard(mediaPath)
		return nil, fmt.Errorf("thumbnail generation failed: %w", err)
	}
	return &stagedPair{
		media: mediaPath,
		thumb: thumbPath,
		ext:   filepath.Ext(mediaPath),
	}, nil
}

// promote renames a staged pair into dir under the given base name
func (e *Engine) promote(pair *stagedPair, dir, baseName string) error {
	if err := e.tree.Promote(pair.media, filepath.Join(dir, baseName+pair.ext)); err != nil {
		e.discard(pair)
		return err
	}
	if err := e.tree.Promote(pair.thumb, filepath.Join(dir, archive.ThumbnailName(baseName))); err != nil {
		e.tree.Discard(pair.thumb)
		return err
	}
	return nil
}

// discard drops both halves of a staged pair
func (e *Engine) discard(pair *stagedPair) {
	if pair == nil {
		return
	}
	e.tree.Discard(pair.media)
	e.tree.Discard(pair.thumb)
}

// extFromURL guesses a file extension from a URL path, for assets kept
// in memory rather than streamed through DownloadTo.
func extFromURL(assetURL string) string {
	path := assetURL
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	ext := filepath.Ext(path)
	switch ext {
	case "", ".", ".txt", ".html", ".htm":
		return ".jpg"
	}
	return ext
}
