package engine

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"igarchive/pkg/archive"
	"igarchive/pkg/catalog"
	"igarchive/pkg/instagram"
	"igarchive/pkg/media"
)

// downloadLiveFeed archives the profile's current live stories into
// Stories/.
func (e *Engine) downloadLiveFeed(p *catalog.ProfileRecord, dir string) (*ReelReport, error) {
	folder := filepath.Join(dir, archive.StoriesFolder)
	if err := archive.EnsureDir(folder); err != nil {
		return nil, err
	}
	// items first seen in a highlight must still be found for dedup
	index, err := archive.BuildHighlightIndex(dir)
	if err != nil {
		return nil, err
	}
	return e.downloadReel(p, dir, index, p.PK, "Stories", folder)
}

// downloadHighlights reconciles the highlight tray and downloads the
// items of each highlight. When onlyID is non-zero, media is fetched
// for that highlight alone but the tray reconciliation still covers
// everything, so folder names and covers never go stale.
func (e *Engine) downloadHighlights(p *catalog.ProfileRecord, dir string, onlyID int64) ([]ReelReport, error) {
	nodes, err := e.fetcher.FetchHighlights(p.PK)
	if err != nil {
		return nil, err
	}

	index, err := archive.BuildHighlightIndex(dir)
	if err != nil {
		return nil, err
	}

	var reports []ReelReport
	for _, node := range nodes {
		folder, err := e.reconcileHighlight(p, dir, index, node)
		if err != nil {
			e.logger.WithError(err).WarnWithFields("highlight reconciliation failed", map[string]interface{}{
				"highlight_id": node.ID, "title": node.Title,
			})
			continue
		}
		if onlyID != 0 && node.ID != onlyID {
			continue
		}

		report, err := e.downloadReel(p, dir, index, node.ID, node.Title, folder)
		if err != nil {
			e.logger.WithError(err).WarnWithFields("highlight download failed", map[string]interface{}{
				"highlight_id": node.ID, "title": node.Title,
			})
			continue
		}
		reports = append(reports, *report)
	}
	return reports, nil
}

// reconcileHighlightSet brings every tray entry's row, folder and
// cover in line with upstream without downloading any stories.
func (e *Engine) reconcileHighlightSet(p *catalog.ProfileRecord, dir string) error {
	nodes, err := e.fetcher.FetchHighlights(p.PK)
	if err != nil {
		return err
	}
	index, err := archive.BuildHighlightIndex(dir)
	if err != nil {
		return err
	}
	for _, node := range nodes {
		if _, err := e.reconcileHighlight(p, dir, index, node); err != nil {
			e.logger.WithError(err).WarnWithFields("highlight reconciliation failed", map[string]interface{}{
				"highlight_id": node.ID, "title": node.Title,
			})
		}
	}
	return nil
}

// reconcileHighlight brings one highlight's catalog row, folder name
// and cover in line with the upstream tray entry, and returns the
// folder path.
func (e *Engine) reconcileHighlight(p *catalog.ProfileRecord, dir string,
	index archive.HighlightIndex, node instagram.HighlightNode) (string, error) {

	record, err := e.catalog.GetHighlight(node.ID)
	if errors.Is(err, catalog.ErrNotFound) {
		record = &catalog.HighlightRecord{HighlightID: node.ID, PK: p.PK, Title: node.Title}
		if err := e.catalog.InsertHighlight(record); err != nil {
			return "", err
		}
	} else if err != nil {
		return "", err
	} else if record.Title != node.Title {
		if err := e.catalog.UpdateHighlightTitle(node.ID, node.Title); err != nil {
			return "", err
		}
	}

	want := filepath.Join(dir, archive.HighlightsFolder, archive.HighlightFolderName(node.Title, node.ID))
	folder, ok := index[node.ID]
	switch {
	case !ok:
		if err := archive.EnsureDir(want); err != nil {
			return "", err
		}
		folder = want
	case folder != want:
		// title changed upstream; carry the folder along
		if err := os.Rename(folder, want); err != nil {
			return "", err
		}
		folder = want
	}
	index[node.ID] = folder

	if node.CoverURL != "" {
		if err := e.reconcileCover(folder, node); err != nil {
			e.logger.WithError(err).WarnWithFields("cover reconciliation failed", map[string]interface{}{
				"highlight_id": node.ID,
			})
		}
	}
	return folder, nil
}

// reconcileCover compares the upstream cover bytes against the stored
// Cover.* file. Cover URLs are unstable, so only content decides: an
// identical byte stream is a no-op, a different one retires the old
// cover into History/ under a timestamp name and takes its place.
func (e *Engine) reconcileCover(folder string, node instagram.HighlightNode) error {
	upstream, err := e.fetcher.DownloadBytes(node.CoverURL)
	if err != nil {
		return err
	}

	current := currentCoverPath(folder)
	if current != "" {
		stored, err := os.ReadFile(current)
		if err == nil && bytes.Equal(stored, upstream) {
			return nil
		}

		historyID := time.Now().Unix()
		historyDir := filepath.Join(folder, archive.HistoryFolder)
		if err := archive.EnsureDir(historyDir); err != nil {
			return err
		}
		for _, file := range archive.FindByPrefix(folder, "Cover") {
			name := filepath.Base(file)
			newName := strconv.FormatInt(historyID, 10) + strings.TrimPrefix(name, "Cover")
			if err := os.Rename(file, filepath.Join(historyDir, newName)); err != nil {
				return err
			}
		}
		if err := e.catalog.AddCoverHistory(node.ID, historyID); err != nil {
			return err
		}
	}

	coverPath := filepath.Join(folder, "Cover"+extFromURL(node.CoverURL))
	staged := e.tree.StagePath(filepath.Ext(coverPath))
	if err := os.WriteFile(staged, upstream, 0644); err != nil {
		return err
	}
	thumbStaged := strings.TrimSuffix(staged, filepath.Ext(staged)) + "_thumbnail.png"
	if err := e.thumbs.Generate(staged, thumbStaged, e.sizes.CoverSize, media.ShapeCircle); err != nil {
		e.tree.Discard(staged)
		return err
	}
	if err := e.tree.Promote(staged, coverPath); err != nil {
		e.tree.Discard(staged)
		e.tree.Discard(thumbStaged)
		return err
	}
	return e.tree.Promote(thumbStaged, filepath.Join(folder, archive.ThumbnailName("Cover")))
}

// currentCoverPath returns the stored cover media file, skipping its
// thumbnail, or "" when none exists.
func currentCoverPath(folder string) string {
	for _, file := range archive.FindByPrefix(folder, "Cover") {
		if filepath.Base(file) != archive.ThumbnailName("Cover") {
			return file
		}
	}
	return ""
}

// downloadReel archives the current items of one reel. Each item lands
// at most once in the whole archive: an item already placed in this
// reel is skipped, an item known from the live feed or another
// highlight is copied rather than refetched, and only genuinely new
// items are downloaded. Copies never move the source files; a story
// stays in every placement it was ever seen in. A copy that fails
// drops the item for the run rather than downloading a second copy.
func (e *Engine) downloadReel(p *catalog.ProfileRecord, dir string, index archive.HighlightIndex,
	highlightID int64, title, folder string) (*ReelReport, error) {

	items, err := e.fetcher.FetchStories(p.PK, highlightID)
	if err != nil {
		return nil, err
	}

	report := &ReelReport{HighlightID: highlightID, Title: title, Seen: len(items)}
	for _, item := range items {
		outcome, err := e.placeStory(p, dir, index, highlightID, folder, item)
		if err != nil {
			report.Failed++
			e.logger.WithError(err).WarnWithFields("story failed", map[string]interface{}{
				"story_pk": item.StoryPK, "highlight_id": highlightID,
			})
			continue
		}
		switch outcome {
		case storyDownloaded:
			report.Downloaded++
		case storyCopied:
			report.Copied++
		}
	}

	count, err := e.catalog.CountStories(p.PK, highlightID)
	if err != nil {
		return report, err
	}
	if int64(report.Seen) > count {
		count = int64(report.Seen)
	}
	if err := e.catalog.RaiseHighlightItemCount(highlightID, count); err != nil {
		return report, err
	}
	return report, nil
}

type storyOutcome int

const (
	storySkipped storyOutcome = iota
	storyCopied
	storyDownloaded
)

// placeStory gets one story item into one reel folder, deduplicating
// against every placement the archive already holds.
func (e *Engine) placeStory(p *catalog.ProfileRecord, dir string, index archive.HighlightIndex,
	highlightID int64, folder string, item instagram.StoryItem) (storyOutcome, error) {

	base := strconv.FormatInt(item.StoryPK, 10)

	// already placed here: complete means done, incomplete means a
	// crashed run left the row without both files
	if _, err := e.catalog.GetStory(p.PK, item.StoryPK, highlightID); err == nil {
		if storyComplete(folder, base) {
			return storySkipped, nil
		}
		copied, err := e.copyFromPriorPlacement(p, dir, index, highlightID, folder, base)
		if err != nil {
			return storySkipped, err
		}
		if copied {
			return storyCopied, nil
		}
		if err := e.fetchStory(item, folder, base); err != nil {
			return storySkipped, err
		}
		return storyDownloaded, nil
	} else if !errors.Is(err, catalog.ErrNotFound) {
		return storySkipped, err
	}

	// known from the live feed or another highlight: copy, record the
	// new placement, never refetch
	copied, err := e.copyFromPriorPlacement(p, dir, index, highlightID, folder, base)
	if err != nil {
		return storySkipped, err
	}
	if copied {
		if err := e.insertStory(p.PK, highlightID, item); err != nil {
			return storySkipped, err
		}
		return storyCopied, nil
	}

	pair, err := e.stageMedia(item.MediaURL, e.sizes.MediaSize, media.ShapeSquare)
	if err != nil {
		return storySkipped, err
	}
	if err := e.insertStory(p.PK, highlightID, item); err != nil {
		e.discard(pair)
		return storySkipped, err
	}
	if err := e.promote(pair, folder, base); err != nil {
		return storySkipped, err
	}
	return storyDownloaded, nil
}

func (e *Engine) insertStory(pk, highlightID int64, item instagram.StoryItem) error {
	return e.catalog.InsertStory(&catalog.StoryRecord{
		PK:          pk,
		StoryPK:     item.StoryPK,
		HighlightID: highlightID,
		Timestamp:   item.TakenAt,
	})
}

// fetchStory downloads one story item straight into its final folder
func (e *Engine) fetchStory(item instagram.StoryItem, folder, base string) error {
	pair, err := e.stageMedia(item.MediaURL, e.sizes.MediaSize, media.ShapeSquare)
	if err != nil {
		return err
	}
	return e.promote(pair, folder, base)
}

// copyFromPriorPlacement looks for a complete copy of the story in the
// live feed first, then in any other highlight, and copies it into
// folder. An attempted copy that fails is an error so the item is
// dropped for the run instead of being refetched into a second
// archived copy.
func (e *Engine) copyFromPriorPlacement(p *catalog.ProfileRecord, dir string,
	index archive.HighlightIndex, highlightID int64, folder, base string) (bool, error) {

	storyPK, err := strconv.ParseInt(base, 10, 64)
	if err != nil {
		return false, nil
	}

	rows, err := e.catalog.ListStories(p.PK)
	if err != nil {
		return false, err
	}

	// live feed first; its copy is the canonical one
	var sources []string
	for _, row := range rows {
		if row.StoryPK != storyPK || row.HighlightID == highlightID {
			continue
		}
		if row.HighlightID == p.PK {
			sources = append([]string{filepath.Join(dir, archive.StoriesFolder)}, sources...)
		} else if index != nil {
			if src, ok := index[row.HighlightID]; ok {
				sources = append(sources, src)
			}
		}
	}

	for _, src := range sources {
		if src == folder || !storyComplete(src, base) {
			continue
		}
		if err := copyStoryFiles(src, folder, base); err != nil {
			return false, fmt.Errorf("copy between placements failed: %w", err)
		}
		return true, nil
	}
	return false, nil
}

// storyComplete reports whether a placement holds both the media file
// and its thumbnail.
func storyComplete(folder, base string) bool {
	return len(archive.MediaPair(folder, base)) == 2
}

// copyStoryFiles copies a story's media and thumbnail between folders
func copyStoryFiles(src, dst, base string) error {
	for _, file := range archive.MediaPair(src, base) {
		if err := archive.CopyFile(file, filepath.Join(dst, filepath.Base(file))); err != nil {
			return err
		}
	}
	return nil
}
