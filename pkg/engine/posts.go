package engine

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"igarchive/pkg/archive"
	"igarchive/pkg/catalog"
	errs "igarchive/pkg/errors"
	"igarchive/pkg/media"
)

// pinnedSlots is how many leading grid cells can be pinned posts,
// which sit out of chronological order. The watermark is only trusted
// past them.
const pinnedSlots = 3

// crawlPosts runs one discovery-then-completion pass over a profile's
// posts or tagged posts.
//
// Discovery walks the grid newest first, recording every code as a
// placeholder row, and stops once the stored watermark code itself has
// been recorded. The watermark only advances after discovery finishes
// cleanly, so an interrupted walk re-covers the same ground next run.
//
// Completion then works off the catalog alone: every placeholder row,
// whether from this run or an earlier failed one, gets its page
// fetched, its media downloaded and its row filled in.
func (e *Engine) crawlPosts(p *catalog.ProfileRecord, dir string, isTag bool) (*PostCrawl, error) {
	crawl := &PostCrawl{}

	candidate, discovered, err := e.discoverPosts(p, isTag)
	if err != nil {
		return crawl, err
	}
	crawl.Discovered = discovered

	if err := e.completePosts(p, dir, isTag, crawl); err != nil {
		return crawl, err
	}

	watermark := watermarkOf(p, isTag)
	if candidate != "" && candidate != watermark {
		if err := e.catalog.UpdateWatermark(p.PK, isTag, candidate); err != nil {
			return crawl, err
		}
	}
	return crawl, nil
}

// discoverPosts pages through the upstream grid until the watermark,
// inserting placeholder rows. Returns the next watermark candidate and
// the number of codes recorded.
func (e *Engine) discoverPosts(p *catalog.ProfileRecord, isTag bool) (string, int, error) {
	watermark := watermarkOf(p, isTag)

	page, err := e.fetcher.FetchPostsFirstPage(p.Username, isTag)
	if err != nil {
		return "", 0, err
	}

	var candidate, firstCode string
	discovered := 0
	position := 0

	for {
		for _, code := range page.Codes {
			if firstCode == "" {
				firstCode = code
			}

			// the row goes in before the watermark test, so the
			// watermark code itself is always recorded; a failed insert
			// moves the candidate here and discovery keeps walking, so
			// the next run re-covers down to this code
			if err := e.catalog.InsertPostPlaceholder(p.PK, code, isTag); err != nil {
				e.logger.WithError(err).WarnWithFields("placeholder insert failed", map[string]interface{}{
					"post_code": code,
				})
				candidate = code
			} else {
				discovered++
			}

			if (!isTag && position == pinnedSlots) || (isTag && position == 0) {
				candidate = code
			}
			// pinned posts can float an old code to the top, so a
			// watermark hit inside the pinned slots is ignored
			if watermark != "" && code == watermark && (isTag || position >= pinnedSlots) {
				return pickCandidate(isTag, candidate, firstCode), discovered, nil
			}
			position++
		}

		if !page.HasNext {
			return pickCandidate(isTag, candidate, firstCode), discovered, nil
		}
		page, err = e.fetcher.FetchPostsFeed(p.PK, isTag, page.Cursor)
		if err != nil {
			return "", discovered, err
		}
	}
}

// pickCandidate falls back to the newest code when the grid was too
// small to reach past the pinned slots.
func pickCandidate(isTag bool, candidate, firstCode string) string {
	if candidate != "" {
		return candidate
	}
	if isTag {
		return ""
	}
	return firstCode
}

// completePosts downloads the media of every placeholder row
func (e *Engine) completePosts(p *catalog.ProfileRecord, dir string, isTag bool, crawl *PostCrawl) error {
	codes, err := e.catalog.ListPendingPosts(p.PK, isTag)
	if err != nil {
		return err
	}
	if len(codes) == 0 {
		return nil
	}

	folder := filepath.Join(dir, archive.PostsFolder)
	if isTag {
		folder = filepath.Join(dir, archive.TaggedFolder)
	}
	if err := archive.EnsureDir(folder); err != nil {
		return err
	}

	for _, code := range codes {
		if err := e.completePost(p, folder, code, isTag); err != nil {
			crawl.Failed++
			e.logger.WithError(err).WarnWithFields("post completion failed", map[string]interface{}{
				"post_code": code, "is_tag": isTag,
			})
			continue
		}
		crawl.Completed++
	}
	return nil
}

// completePost fetches one post page, downloads its media and fills in
// the placeholder row. A post deleted upstream is closed with zero
// items so it stops being retried.
func (e *Engine) completePost(p *catalog.ProfileRecord, folder, code string, isTag bool) error {
	detail, err := e.fetcher.FetchPostDetail(code)
	if err != nil {
		var classified *errs.Error
		if errors.As(err, &classified) && classified.Type == errs.ErrorTypeNotFound {
			return e.catalog.CompletePost(p.PK, code, isTag, 0, sql.NullString{}, 0)
		}
		return err
	}
	if len(detail.Media) == 0 {
		return errs.New(errs.ErrorTypeMalformed, "post %s has no media", code)
	}

	for i, item := range detail.Media {
		base := postMediaBase(code, i, len(detail.Media))
		if len(archive.MediaPair(folder, base)) == 2 {
			continue
		}
		pair, err := e.stageMedia(item.URL, e.sizes.MediaSize, media.ShapeSquare)
		if err != nil {
			return err
		}
		if err := e.promote(pair, folder, base); err != nil {
			return err
		}
	}

	return e.catalog.CompletePost(p.PK, code, isTag, int64(len(detail.Media)),
		nullString(detail.Caption), detail.Timestamp)
}

// postMediaBase names a post's media files: the bare code for single
// media posts, code_1..code_n for carousels.
func postMediaBase(code string, index, total int) string {
	if total == 1 {
		return code
	}
	return fmt.Sprintf("%s_%d", code, index+1)
}

func watermarkOf(p *catalog.ProfileRecord, isTag bool) string {
	if isTag {
		return p.LastTaggedPostCode.String
	}
	return p.LastPostCode.String
}
