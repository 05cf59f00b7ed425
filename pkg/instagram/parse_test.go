package instagram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gridHTML = `<!DOCTYPE html>
<html><body>
<div class="items">
  <div class="item"><div class="img"><a href="/p/Caaa111/"><img src="t1.jpg"></a></div></div>
  <div class="item"><div class="img"><a href="/p/Cbbb222/"><img src="t2.jpg"></a></div></div>
  <div class="item"><div class="img"><a href="/p/Cccc333/?img_index=1"><img src="t3.jpg"></a></div></div>
</div>
<button class="load-more" data-cursor="QVFEabc123">Load more</button>
</body></html>`

func TestParsePostGrid(t *testing.T) {
	page, err := ParsePostGrid(strings.NewReader(gridHTML))
	require.NoError(t, err)

	assert.Equal(t, []string{"Caaa111", "Cbbb222", "Cccc333"}, page.Codes)
	assert.Equal(t, "QVFEabc123", page.Cursor)
	assert.True(t, page.HasNext)
}

func TestParsePostGridLastPage(t *testing.T) {
	html := `<html><body>
<div class="item"><div class="img"><a href="/p/Conly/"><img></a></div></div>
</body></html>`

	page, err := ParsePostGrid(strings.NewReader(html))
	require.NoError(t, err)

	assert.Equal(t, []string{"Conly"}, page.Codes)
	assert.False(t, page.HasNext)
	assert.Empty(t, page.Cursor)
}

func TestParsePostGridEmpty(t *testing.T) {
	page, err := ParsePostGrid(strings.NewReader(`<html><body><p>No posts</p></body></html>`))
	require.NoError(t, err)
	assert.Empty(t, page.Codes)
	assert.False(t, page.HasNext)
}

const carouselHTML = `<!DOCTYPE html>
<html><body>
<div class="page-post" data-created="1700000000">
  <div class="desc">Sunset over the bay</div>
  <div class="swiper-wrapper">
    <div class="swiper-slide swiper-slide-duplicate"><img data-src="https://cdn.example.com/dup.jpg"></div>
    <div class="swiper-slide"><img data-src="https://cdn.example.com/one.jpg"></div>
    <div class="swiper-slide"><video src="https://cdn.example.com/two.mp4" poster="https://cdn.example.com/two.jpg"></video></div>
  </div>
</div>
</body></html>`

func TestParsePostPageCarousel(t *testing.T) {
	detail, err := ParsePostPage(strings.NewReader(carouselHTML))
	require.NoError(t, err)

	assert.Equal(t, "Sunset over the bay", detail.Caption)
	assert.Equal(t, int64(1700000000), detail.Timestamp)

	require.Len(t, detail.Media, 2)
	assert.Equal(t, "https://cdn.example.com/one.jpg", detail.Media[0].URL)
	assert.False(t, detail.Media[0].IsVideo)
	assert.Equal(t, "https://cdn.example.com/two.mp4", detail.Media[1].URL)
	assert.True(t, detail.Media[1].IsVideo)
}

func TestParsePostPageSingleMedia(t *testing.T) {
	html := `<html><body>
<div class="page-post" data-created="1699000000">
  <div class="desc">One photo</div>
  <div class="downloads"><a href="https://cdn.example.com/solo.jpg">Download</a></div>
</div>
</body></html>`

	detail, err := ParsePostPage(strings.NewReader(html))
	require.NoError(t, err)

	assert.Equal(t, "One photo", detail.Caption)
	require.Len(t, detail.Media, 1)
	assert.Equal(t, "https://cdn.example.com/solo.jpg", detail.Media[0].URL)
	assert.False(t, detail.Media[0].IsVideo)
}

func TestParsePostPageSingleVideo(t *testing.T) {
	html := `<html><body>
<div class="page-post" data-created="1699000000">
  <div class="downloads"><a href="https://cdn.example.com/clip.mp4?dl=1">Download</a></div>
</div>
</body></html>`

	detail, err := ParsePostPage(strings.NewReader(html))
	require.NoError(t, err)

	require.Len(t, detail.Media, 1)
	assert.True(t, detail.Media[0].IsVideo)
	assert.Empty(t, detail.Caption)
}

func TestParsePostPageVideoSourceChild(t *testing.T) {
	html := `<html><body>
<div class="page-post" data-created="1">
  <div class="swiper-slide"><video><source src="https://cdn.example.com/v.mp4"></video></div>
</div>
</body></html>`

	detail, err := ParsePostPage(strings.NewReader(html))
	require.NoError(t, err)

	require.Len(t, detail.Media, 1)
	assert.Equal(t, "https://cdn.example.com/v.mp4", detail.Media[0].URL)
	assert.True(t, detail.Media[0].IsVideo)
}

func TestParsePostPageUnrecognized(t *testing.T) {
	_, err := ParsePostPage(strings.NewReader(`<html><body><h1>404</h1></body></html>`))
	assert.Error(t, err)
}

func TestPostCodeFromHref(t *testing.T) {
	tests := []struct {
		href string
		want string
	}{
		{"/p/Cabc123/", "Cabc123"},
		{"/p/Cabc123/?img_index=2", "Cabc123"},
		{"https://mirror.example.com/p/Cxyz/", "Cxyz"},
		{"/tagged/someone", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, postCodeFromHref(tt.href), tt.href)
	}
}
