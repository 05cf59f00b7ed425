package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igarchive/pkg/archive"
	"igarchive/pkg/catalog"
	"igarchive/pkg/config"
	errs "igarchive/pkg/errors"
	"igarchive/pkg/instagram"
	"igarchive/pkg/logger"
	"igarchive/pkg/media"
)

// fakeFetcher serves canned upstream data and counts media downloads,
// so tests can assert that nothing is ever fetched twice.
type fakeFetcher struct {
	profile    *instagram.ProfileData
	highlights []instagram.HighlightNode
	stories    map[int64][]instagram.StoryItem
	covers     map[string][]byte
	firstPages map[bool]*instagram.PostPage
	feedPages  map[string]*instagram.PostPage
	details    map[string]*instagram.PostDetail
	detailErrs map[string]error

	downloads map[string]int
	reelCalls int
	trayCalls int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		stories:    make(map[int64][]instagram.StoryItem),
		covers:     make(map[string][]byte),
		firstPages: make(map[bool]*instagram.PostPage),
		feedPages:  make(map[string]*instagram.PostPage),
		details:    make(map[string]*instagram.PostDetail),
		detailErrs: make(map[string]error),
		downloads:  make(map[string]int),
	}
}

func (f *fakeFetcher) FetchProfile(username string) (*instagram.ProfileData, error) {
	copied := *f.profile
	return &copied, nil
}

func (f *fakeFetcher) FetchHighlights(pk int64) ([]instagram.HighlightNode, error) {
	f.trayCalls++
	return f.highlights, nil
}

func (f *fakeFetcher) FetchStories(pk, highlightID int64) ([]instagram.StoryItem, error) {
	f.reelCalls++
	return f.stories[highlightID], nil
}

func (f *fakeFetcher) FetchPostsFirstPage(username string, isTag bool) (*instagram.PostPage, error) {
	if page, ok := f.firstPages[isTag]; ok {
		return page, nil
	}
	return &instagram.PostPage{}, nil
}

func (f *fakeFetcher) FetchPostsFeed(pk int64, isTag bool, cursor string) (*instagram.PostPage, error) {
	if page, ok := f.feedPages[cursor]; ok {
		return page, nil
	}
	return &instagram.PostPage{}, nil
}

func (f *fakeFetcher) FetchPostDetail(postCode string) (*instagram.PostDetail, error) {
	if err, ok := f.detailErrs[postCode]; ok {
		return nil, err
	}
	if detail, ok := f.details[postCode]; ok {
		return detail, nil
	}
	return nil, errs.New(errs.ErrorTypeNotFound, "no detail for %s", postCode)
}

func (f *fakeFetcher) DownloadTo(mediaURL, destNoExt string) (string, error) {
	f.downloads[mediaURL]++
	dest := destNoExt + ".jpg"
	return dest, os.WriteFile(dest, []byte("media from "+mediaURL), 0644)
}

func (f *fakeFetcher) DownloadBytes(assetURL string) ([]byte, error) {
	f.downloads[assetURL]++
	data, ok := f.covers[assetURL]
	if !ok {
		return nil, errs.New(errs.ErrorTypeNotFound, "no asset %s", assetURL)
	}
	return data, nil
}

// fakeThumbs writes a marker file instead of rendering pixels
type fakeThumbs struct {
	generated int
}

func (f *fakeThumbs) Generate(mediaPath, destPath string, size int, shape media.Shape) error {
	f.generated++
	return os.WriteFile(destPath, []byte("thumb"), 0644)
}

type testEnv struct {
	engine  *Engine
	catalog *catalog.Catalog
	tree    *archive.Tree
	fetcher *fakeFetcher
	thumbs  *fakeThumbs
	root    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cat, err := catalog.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })

	root := t.TempDir()
	tree, err := archive.NewTree(root)
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Archive.Root = root
	cfg.Download.RetryAttempts = 1
	cfg.RateLimit.RetryDelay = time.Millisecond

	fetcher := newFakeFetcher()
	fetcher.profile = &instagram.ProfileData{
		PK:             42,
		Username:       "alice",
		FullName:       "Alice A",
		Biography:      "hello",
		MediaCount:     10,
		FollowerCount:  500,
		FollowingCount: 100,
		ProfileID:      1001,
		AvatarURL:      "https://cdn.example.com/avatar1.jpg",
	}

	thumbs := &fakeThumbs{}
	return &testEnv{
		engine:  New(cat, tree, fetcher, thumbs, cfg, logger.NewNopLogger()),
		catalog: cat,
		tree:    tree,
		fetcher: fetcher,
		thumbs:  thumbs,
		root:    root,
	}
}

func (env *testEnv) profileDir(t *testing.T) string {
	t.Helper()
	dir := env.tree.FindProfileDir(42)
	require.NotEmpty(t, dir)
	return dir
}

func storyItem(pk int64, url string) instagram.StoryItem {
	return instagram.StoryItem{StoryPK: pk, TakenAt: 1700000000, MediaURL: url}
}

func TestAddProfileCreatesEverything(t *testing.T) {
	env := newTestEnv(t)

	sync, err := env.engine.AddProfile("alice")
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, sync.Status)

	dir := env.profileDir(t)
	assert.Equal(t, "alice@42", filepath.Base(dir))
	for _, sub := range []string{"Profiles", "Posts", "Tagged", "Stories", "Highlights"} {
		assert.DirExists(t, filepath.Join(dir, sub))
	}

	// custom avatar downloaded with its circular thumbnail
	assert.FileExists(t, filepath.Join(dir, "Profiles", "Profile.jpg"))
	assert.FileExists(t, filepath.Join(dir, "Profiles", "Profile_thumbnail.png"))

	record, err := env.catalog.GetProfile(42)
	require.NoError(t, err)
	assert.Equal(t, "alice", record.Username)
	assert.True(t, record.HasCustomAvatar())

	// the live feed highlight row exists right away
	h, err := env.catalog.GetHighlight(42)
	require.NoError(t, err)
	assert.True(t, h.IsLiveFeed())
}

func TestAddProfileDefaultAvatarSkipsDownload(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.profile.ProfileID = 42 // pk == profile_id sentinel

	sync, err := env.engine.AddProfile("alice")
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, sync.Status)

	assert.Zero(t, env.fetcher.downloads["https://cdn.example.com/avatar1.jpg"])
	assert.NoFileExists(t, filepath.Join(env.profileDir(t), "Profiles", "Profile.jpg"))
}

func TestAddProfileReconcilesHighlightsWithoutStories(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.highlights = []instagram.HighlightNode{{ID: 777, Title: "Travel"}}
	env.fetcher.stories[777] = []instagram.StoryItem{
		storyItem(900, "https://cdn.example.com/900.jpg"),
	}

	_, err := env.engine.AddProfile("alice")
	require.NoError(t, err)

	// the folder and row exist, but no story media was fetched yet
	dir := env.profileDir(t)
	assert.DirExists(t, filepath.Join(dir, "Highlights", "Travel_777"))
	_, err = env.catalog.GetHighlight(777)
	require.NoError(t, err)
	assert.Zero(t, env.fetcher.reelCalls)
	assert.NoFileExists(t, filepath.Join(dir, "Highlights", "Travel_777", "900.jpg"))
}

func TestSyncProfileIdempotent(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.AddProfile("alice")
	require.NoError(t, err)

	sync, err := env.engine.SyncProfile("alice")
	require.NoError(t, err)
	assert.Equal(t, StatusUnchanged, sync.Status)

	// the avatar was downloaded exactly once
	assert.Equal(t, 1, env.fetcher.downloads["https://cdn.example.com/avatar1.jpg"])
}

func TestSyncProfileRenamesDirectory(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.AddProfile("alice")
	require.NoError(t, err)
	oldDir := env.profileDir(t)

	env.fetcher.profile.Username = "alice_renamed"
	sync, err := env.engine.SyncProfile("alice_renamed")
	require.NoError(t, err)
	assert.Equal(t, StatusUpdated, sync.Status)

	assert.NoDirExists(t, oldDir)
	assert.Equal(t, "alice_renamed@42", filepath.Base(env.profileDir(t)))

	record, err := env.catalog.GetProfile(42)
	require.NoError(t, err)
	assert.Equal(t, "alice_renamed", record.Username)
}

func TestSyncProfileAvatarChange(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.AddProfile("alice")
	require.NoError(t, err)
	dir := env.profileDir(t)

	env.fetcher.profile.ProfileID = 1002
	env.fetcher.profile.AvatarURL = "https://cdn.example.com/avatar2.jpg"

	sync, err := env.engine.SyncProfile("alice")
	require.NoError(t, err)
	assert.Equal(t, StatusUpdated, sync.Status)

	// the old avatar is retired under its asset id, the new one takes
	// the Profile.* slot
	assert.FileExists(t, filepath.Join(dir, "Profiles", "History", "1001.jpg"))
	assert.FileExists(t, filepath.Join(dir, "Profiles", "History", "1001_thumbnail.png"))
	assert.FileExists(t, filepath.Join(dir, "Profiles", "Profile.jpg"))

	history, err := env.catalog.ListProfileHistory(42)
	require.NoError(t, err)
	assert.Equal(t, []int64{1001}, history)
}

func TestLiveStoriesIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.stories[42] = []instagram.StoryItem{
		storyItem(900, "https://cdn.example.com/900.jpg"),
		storyItem(901, "https://cdn.example.com/901.jpg"),
	}

	report, err := env.engine.DownloadLiveStories("alice")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Downloaded)

	dir := env.profileDir(t)
	assert.FileExists(t, filepath.Join(dir, "Stories", "900.jpg"))
	assert.FileExists(t, filepath.Join(dir, "Stories", "900_thumbnail.png"))
	assert.FileExists(t, filepath.Join(dir, "Stories", "901.jpg"))

	// second run downloads nothing new
	report, err = env.engine.DownloadLiveStories("alice")
	require.NoError(t, err)
	assert.Equal(t, 0, report.Downloaded)
	assert.Equal(t, 0, report.Copied)
	assert.Equal(t, 1, env.fetcher.downloads["https://cdn.example.com/900.jpg"])

	h, err := env.catalog.GetHighlight(42)
	require.NoError(t, err)
	assert.Equal(t, int64(2), h.NumberOfItems)
}

func TestHighlightCopiesFromLiveFeed(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.stories[42] = []instagram.StoryItem{
		storyItem(900, "https://cdn.example.com/900.jpg"),
	}

	_, err := env.engine.DownloadLiveStories("alice")
	require.NoError(t, err)

	// the story later lands in a highlight
	env.fetcher.highlights = []instagram.HighlightNode{{ID: 777, Title: "Travel"}}
	env.fetcher.stories[777] = []instagram.StoryItem{
		storyItem(900, "https://cdn.example.com/900-b.jpg"),
	}

	report, err := env.engine.DownloadHighlight("alice", 777)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Copied)
	assert.Equal(t, 0, report.Downloaded)

	dir := env.profileDir(t)
	// both placements hold the files; the live feed copy stayed put
	assert.FileExists(t, filepath.Join(dir, "Stories", "900.jpg"))
	assert.FileExists(t, filepath.Join(dir, "Highlights", "Travel_777", "900.jpg"))
	assert.FileExists(t, filepath.Join(dir, "Highlights", "Travel_777", "900_thumbnail.png"))

	// the item was never refetched
	assert.Zero(t, env.fetcher.downloads["https://cdn.example.com/900-b.jpg"])

	placements, err := env.catalog.ListStories(42)
	require.NoError(t, err)
	assert.Len(t, placements, 2)
}

func TestStoryCopiedBetweenHighlights(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.highlights = []instagram.HighlightNode{
		{ID: 777, Title: "Travel"},
		{ID: 888, Title: "Food"},
	}
	env.fetcher.stories[777] = []instagram.StoryItem{
		storyItem(900, "https://cdn.example.com/900.jpg"),
	}
	env.fetcher.stories[888] = []instagram.StoryItem{
		storyItem(900, "https://cdn.example.com/900-again.jpg"),
	}

	reports, err := env.engine.DownloadAllHighlights("alice")
	require.NoError(t, err)
	require.Len(t, reports, 2)

	assert.Equal(t, 1, reports[0].Downloaded)
	assert.Equal(t, 1, reports[1].Copied)
	assert.Equal(t, 1, env.fetcher.downloads["https://cdn.example.com/900.jpg"])
	assert.Zero(t, env.fetcher.downloads["https://cdn.example.com/900-again.jpg"])

	dir := env.profileDir(t)
	assert.FileExists(t, filepath.Join(dir, "Highlights", "Travel_777", "900.jpg"))
	assert.FileExists(t, filepath.Join(dir, "Highlights", "Food_888", "900.jpg"))
}

func TestFailedCopyDropsStoryForRun(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.stories[42] = []instagram.StoryItem{
		storyItem(900, "https://cdn.example.com/900.jpg"),
	}

	_, err := env.engine.DownloadLiveStories("alice")
	require.NoError(t, err)

	env.fetcher.highlights = []instagram.HighlightNode{{ID: 777, Title: "Travel"}}
	env.fetcher.stories[777] = []instagram.StoryItem{
		storyItem(900, "https://cdn.example.com/900-b.jpg"),
	}

	// squat the copy destination so the cross-placement copy fails
	folder := filepath.Join(env.profileDir(t), "Highlights", "Travel_777")
	require.NoError(t, os.MkdirAll(filepath.Join(folder, "900.jpg"), 0755))

	report, err := env.engine.DownloadHighlight("alice", 777)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 0, report.Copied)
	assert.Equal(t, 0, report.Downloaded)

	// a failed copy never turns into a fresh download or a placement row
	assert.Zero(t, env.fetcher.downloads["https://cdn.example.com/900-b.jpg"])
	_, err = env.catalog.GetStory(42, 900, 777)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestHighlightRenameKeepsFolder(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.highlights = []instagram.HighlightNode{{ID: 777, Title: "Old Title"}}
	env.fetcher.stories[777] = []instagram.StoryItem{
		storyItem(900, "https://cdn.example.com/900.jpg"),
	}

	_, err := env.engine.DownloadAllHighlights("alice")
	require.NoError(t, err)

	env.fetcher.highlights = []instagram.HighlightNode{{ID: 777, Title: "New Title"}}
	_, err = env.engine.DownloadAllHighlights("alice")
	require.NoError(t, err)

	dir := env.profileDir(t)
	assert.NoDirExists(t, filepath.Join(dir, "Highlights", "Old Title_777"))
	assert.FileExists(t, filepath.Join(dir, "Highlights", "New Title_777", "900.jpg"))

	h, err := env.catalog.GetHighlight(777)
	require.NoError(t, err)
	assert.Equal(t, "New Title", h.Title)
}

func TestHighlightCountMonotonic(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.highlights = []instagram.HighlightNode{{ID: 777, Title: "Travel"}}
	env.fetcher.stories[777] = []instagram.StoryItem{
		storyItem(900, "https://cdn.example.com/900.jpg"),
		storyItem(901, "https://cdn.example.com/901.jpg"),
	}

	_, err := env.engine.DownloadAllHighlights("alice")
	require.NoError(t, err)

	// one item expired upstream; the archived count must not drop
	env.fetcher.stories[777] = env.fetcher.stories[777][:1]
	_, err = env.engine.DownloadAllHighlights("alice")
	require.NoError(t, err)

	h, err := env.catalog.GetHighlight(777)
	require.NoError(t, err)
	assert.Equal(t, int64(2), h.NumberOfItems)
}

func TestCoverReconciliation(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.highlights = []instagram.HighlightNode{
		{ID: 777, Title: "Travel", CoverURL: "https://cdn.example.com/cover.jpg"},
	}
	env.fetcher.covers["https://cdn.example.com/cover.jpg"] = []byte("cover-v1")

	_, err := env.engine.DownloadAllHighlights("alice")
	require.NoError(t, err)

	folder := filepath.Join(env.profileDir(t), "Highlights", "Travel_777")
	coverPath := filepath.Join(folder, "Cover.jpg")
	assert.FileExists(t, coverPath)
	assert.FileExists(t, filepath.Join(folder, "Cover_thumbnail.png"))

	// identical bytes: nothing moves
	_, err = env.engine.DownloadAllHighlights("alice")
	require.NoError(t, err)
	assert.NoDirExists(t, filepath.Join(folder, "History"))

	// new cover content: the old one is retired into History
	env.fetcher.covers["https://cdn.example.com/cover.jpg"] = []byte("cover-v2")
	_, err = env.engine.DownloadAllHighlights("alice")
	require.NoError(t, err)

	data, err := os.ReadFile(coverPath)
	require.NoError(t, err)
	assert.Equal(t, "cover-v2", string(data))

	entries, err := os.ReadDir(filepath.Join(folder, "History"))
	require.NoError(t, err)
	assert.Len(t, entries, 2) // retired cover and its thumbnail
}

func postDetail(url string) *instagram.PostDetail {
	return &instagram.PostDetail{
		Caption:   "caption",
		Timestamp: 1700000000,
		Media:     []instagram.PostMedia{{URL: url}},
	}
}

func TestCrawlPostsFirstRun(t *testing.T) {
	env := newTestEnv(t)
	codes := []string{"Ca", "Cb", "Cc", "Cd", "Ce"}
	env.fetcher.firstPages[false] = &instagram.PostPage{Codes: codes}
	for _, code := range codes {
		env.fetcher.details[code] = postDetail("https://cdn.example.com/" + code + ".jpg")
	}

	crawl, err := env.engine.CrawlProfilePosts("alice", false)
	require.NoError(t, err)
	assert.Equal(t, 5, crawl.Discovered)
	assert.Equal(t, 5, crawl.Completed)
	assert.Equal(t, 0, crawl.Failed)

	dir := env.profileDir(t)
	assert.FileExists(t, filepath.Join(dir, "Posts", "Ca.jpg"))
	assert.FileExists(t, filepath.Join(dir, "Posts", "Ca_thumbnail.png"))

	// the watermark lands past the pinned slots
	record, err := env.catalog.GetProfile(42)
	require.NoError(t, err)
	assert.Equal(t, "Cd", record.LastPostCode.String)

	post, err := env.catalog.GetPost(42, "Cb", false)
	require.NoError(t, err)
	assert.False(t, post.Pending())
	assert.Equal(t, int64(1), post.NumberOfItems.Int64)
}

func TestCrawlPostsStopsAtWatermark(t *testing.T) {
	env := newTestEnv(t)
	codes := []string{"Ca", "Cb", "Cc", "Cd", "Ce"}
	env.fetcher.firstPages[false] = &instagram.PostPage{Codes: codes}
	for _, code := range append(codes, "Cnew") {
		env.fetcher.details[code] = postDetail("https://cdn.example.com/" + code + ".jpg")
	}

	_, err := env.engine.CrawlProfilePosts("alice", false)
	require.NoError(t, err)

	// one new post appears on top
	env.fetcher.firstPages[false] = &instagram.PostPage{
		Codes: []string{"Cnew", "Ca", "Cb", "Cc", "Cd", "Ce"},
	}

	crawl, err := env.engine.CrawlProfilePosts("alice", false)
	require.NoError(t, err)
	// discovery re-walks down to the watermark (Cd at position 4)
	assert.Equal(t, 1, crawl.Completed)
	assert.Equal(t, 1, env.fetcher.downloads["https://cdn.example.com/Cnew.jpg"])
	// already-complete posts are not refetched
	assert.Equal(t, 1, env.fetcher.downloads["https://cdn.example.com/Ca.jpg"])

	record, err := env.catalog.GetProfile(42)
	require.NoError(t, err)
	assert.Equal(t, "Cc", record.LastPostCode.String)
}

func TestCrawlPostsIgnoresWatermarkInPinnedSlots(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.firstPages[false] = &instagram.PostPage{Codes: []string{"Ca", "Cb", "Cc", "Cd"}}
	for _, code := range []string{"Ca", "Cb", "Cc", "Cd", "Cx", "Cy"} {
		env.fetcher.details[code] = postDetail("https://cdn.example.com/" + code + ".jpg")
	}

	_, err := env.engine.CrawlProfilePosts("alice", false)
	require.NoError(t, err)
	// watermark is now Cd

	// Cd got pinned to the top; hitting it at position 0 must not stop
	// discovery of the genuinely new Cx and Cy below
	env.fetcher.firstPages[false] = &instagram.PostPage{
		Codes: []string{"Cd", "Cx", "Cy", "Ca", "Cb", "Cc"},
	}

	crawl, err := env.engine.CrawlProfilePosts("alice", false)
	require.NoError(t, err)
	assert.Equal(t, 2, crawl.Completed)
	assert.Equal(t, 1, env.fetcher.downloads["https://cdn.example.com/Cx.jpg"])
	assert.Equal(t, 1, env.fetcher.downloads["https://cdn.example.com/Cy.jpg"])
}

func TestCrawlRecordsWatermarkCodeWithoutRow(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.AddProfile("alice")
	require.NoError(t, err)

	// an interrupted earlier run can leave the watermark pointing at a
	// code that never got its row; the code must be recorded on the
	// next walk, not skipped
	require.NoError(t, env.catalog.UpdateWatermark(42, false, "Cd"))

	codes := []string{"Ca", "Cb", "Cc", "Cd", "Ce"}
	env.fetcher.firstPages[false] = &instagram.PostPage{Codes: codes}
	for _, code := range codes {
		env.fetcher.details[code] = postDetail("https://cdn.example.com/" + code + ".jpg")
	}

	crawl, err := env.engine.CrawlProfilePosts("alice", false)
	require.NoError(t, err)
	assert.Equal(t, 4, crawl.Discovered)
	assert.Equal(t, 4, crawl.Completed)

	post, err := env.catalog.GetPost(42, "Cd", false)
	require.NoError(t, err)
	assert.False(t, post.Pending())

	pending, err := env.catalog.ListPendingPosts(42, false)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCrawlTaggedWatermarkIsNewestCode(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.firstPages[true] = &instagram.PostPage{Codes: []string{"Ta", "Tb"}}
	for _, code := range []string{"Ta", "Tb"} {
		env.fetcher.details[code] = postDetail("https://cdn.example.com/" + code + ".jpg")
	}

	crawl, err := env.engine.CrawlProfilePosts("alice", true)
	require.NoError(t, err)
	assert.Equal(t, 2, crawl.Completed)

	record, err := env.catalog.GetProfile(42)
	require.NoError(t, err)
	// tagged feeds have no pinning, so the newest code is the watermark
	assert.Equal(t, "Ta", record.LastTaggedPostCode.String)

	dir := env.profileDir(t)
	assert.FileExists(t, filepath.Join(dir, "Tagged", "Ta.jpg"))
}

func TestCrawlPostsPaginates(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.firstPages[false] = &instagram.PostPage{
		Codes: []string{"C1", "C2"}, Cursor: "PAGE2", HasNext: true,
	}
	env.fetcher.feedPages["PAGE2"] = &instagram.PostPage{Codes: []string{"C3", "C4"}}
	for _, code := range []string{"C1", "C2", "C3", "C4"} {
		env.fetcher.details[code] = postDetail("https://cdn.example.com/" + code + ".jpg")
	}

	crawl, err := env.engine.CrawlProfilePosts("alice", false)
	require.NoError(t, err)
	assert.Equal(t, 4, crawl.Discovered)
	assert.Equal(t, 4, crawl.Completed)

	record, err := env.catalog.GetProfile(42)
	require.NoError(t, err)
	assert.Equal(t, "C4", record.LastPostCode.String)
}

func TestCrawlCarouselNaming(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.firstPages[false] = &instagram.PostPage{Codes: []string{"Cmulti"}}
	env.fetcher.details["Cmulti"] = &instagram.PostDetail{
		Caption:   "three items",
		Timestamp: 1700000000,
		Media: []instagram.PostMedia{
			{URL: "https://cdn.example.com/m1.jpg"},
			{URL: "https://cdn.example.com/m2.jpg"},
			{URL: "https://cdn.example.com/m3.mp4", IsVideo: true},
		},
	}

	_, err := env.engine.CrawlProfilePosts("alice", false)
	require.NoError(t, err)

	dir := env.profileDir(t)
	for i := 1; i <= 3; i++ {
		assert.FileExists(t, filepath.Join(dir, "Posts", fmt.Sprintf("Cmulti_%d.jpg", i)))
		assert.FileExists(t, filepath.Join(dir, "Posts", fmt.Sprintf("Cmulti_%d_thumbnail.png", i)))
	}

	post, err := env.catalog.GetPost(42, "Cmulti", false)
	require.NoError(t, err)
	assert.Equal(t, int64(3), post.NumberOfItems.Int64)
}

func TestDeletedPostClosedWithoutMedia(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.firstPages[false] = &instagram.PostPage{Codes: []string{"Cgone"}}
	env.fetcher.detailErrs["Cgone"] = errs.NewWithCode(errs.ErrorTypeNotFound, 404, "deleted")

	crawl, err := env.engine.CrawlProfilePosts("alice", false)
	require.NoError(t, err)
	assert.Equal(t, 1, crawl.Completed)

	post, err := env.catalog.GetPost(42, "Cgone", false)
	require.NoError(t, err)
	assert.False(t, post.Pending())
	assert.Equal(t, int64(0), post.NumberOfItems.Int64)
}

func TestFailedPostStaysPending(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.firstPages[false] = &instagram.PostPage{Codes: []string{"Cbroken"}}
	env.fetcher.detailErrs["Cbroken"] = errs.New(errs.ErrorTypeTransport, "connection reset")

	crawl, err := env.engine.CrawlProfilePosts("alice", false)
	require.NoError(t, err)
	assert.Equal(t, 1, crawl.Failed)

	// the placeholder survives for the next run
	pending, err := env.catalog.ListPendingPosts(42, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"Cbroken"}, pending)

	// the post recovers once the upstream does
	env.fetcher.detailErrs = map[string]error{}
	env.fetcher.details["Cbroken"] = postDetail("https://cdn.example.com/Cbroken.jpg")

	crawl, err = env.engine.CrawlProfilePosts("alice", false)
	require.NoError(t, err)
	assert.Equal(t, 1, crawl.Completed)
}

func TestUpdateProfileSkipsPrivate(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.profile.IsPrivate = true
	env.fetcher.profile.ProfileID = 42

	report, err := env.engine.UpdateProfile("alice")
	require.NoError(t, err)

	assert.True(t, report.SkippedPrivate)
	assert.Nil(t, report.LiveFeed)
	assert.Zero(t, env.fetcher.reelCalls)
	assert.Zero(t, env.fetcher.trayCalls)
}

func TestUpdateProfileFullPipeline(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.stories[42] = []instagram.StoryItem{
		storyItem(900, "https://cdn.example.com/900.jpg"),
	}
	env.fetcher.highlights = []instagram.HighlightNode{{ID: 777, Title: "Travel"}}
	env.fetcher.stories[777] = []instagram.StoryItem{
		storyItem(901, "https://cdn.example.com/901.jpg"),
	}
	env.fetcher.firstPages[false] = &instagram.PostPage{Codes: []string{"Cp"}}
	env.fetcher.firstPages[true] = &instagram.PostPage{Codes: []string{"Ct"}}
	env.fetcher.details["Cp"] = postDetail("https://cdn.example.com/Cp.jpg")
	env.fetcher.details["Ct"] = postDetail("https://cdn.example.com/Ct.jpg")

	report, err := env.engine.UpdateProfile("alice")
	require.NoError(t, err)

	assert.Equal(t, StatusCreated, report.Profile.Status)
	require.NotNil(t, report.LiveFeed)
	assert.Equal(t, 1, report.LiveFeed.Downloaded)
	require.Len(t, report.Highlights, 1)
	assert.Equal(t, 1, report.Highlights[0].Downloaded)
	assert.Equal(t, 1, report.Posts.Completed)
	assert.Equal(t, 1, report.Tagged.Completed)
}

func TestIncompleteStoryRepaired(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.stories[42] = []instagram.StoryItem{
		storyItem(900, "https://cdn.example.com/900.jpg"),
	}

	_, err := env.engine.DownloadLiveStories("alice")
	require.NoError(t, err)

	// simulate a crash that lost the thumbnail
	dir := env.profileDir(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "Stories", "900_thumbnail.png")))

	report, err := env.engine.DownloadLiveStories("alice")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Downloaded)
	assert.FileExists(t, filepath.Join(dir, "Stories", "900_thumbnail.png"))
}
