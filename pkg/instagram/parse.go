package instagram

import (
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	errs "igarchive/pkg/errors"
)

// ParsePostGrid extracts post codes and the pagination cursor from the
// first posts page. Each grid cell is a node with class "item" holding
// a link of the form /p/{code}/; the load-more button carries the
// cursor for the feed endpoint in data-cursor.
func ParsePostGrid(r io.Reader) (*PostPage, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	page := &PostPage{}
	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		if hasClass(n, "item") {
			walk(n, func(child *html.Node) {
				if child.Type == html.ElementNode && child.Data == "a" {
					if code := postCodeFromHref(attrValue(child, "href")); code != "" {
						page.Codes = append(page.Codes, code)
					}
				}
			})
			return
		}
		if cursor := attrValue(n, "data-cursor"); cursor != "" {
			page.Cursor = cursor
			page.HasNext = true
		}
	})
	return page, nil
}

// postCodeFromHref extracts the code from a /p/{code}/ link
func postCodeFromHref(href string) string {
	i := strings.Index(href, "/p/")
	if i < 0 {
		return ""
	}
	code := href[i+len("/p/"):]
	if j := strings.IndexAny(code, "/?"); j >= 0 {
		code = code[:j]
	}
	return code
}

// ParsePostPage extracts the caption, timestamp and media list from a
// post detail page. Carousels render one swiper-slide per media; single
// media posts carry a direct download link instead.
func ParsePostPage(r io.Reader) (*PostDetail, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	detail := &PostDetail{}
	var sawPost bool
	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		switch {
		case hasClass(n, "page-post"):
			sawPost = true
			if created := attrValue(n, "data-created"); created != "" {
				if ts, err := strconv.ParseInt(created, 10, 64); err == nil {
					detail.Timestamp = ts
				}
			}
		case hasClass(n, "desc"):
			if detail.Caption == "" {
				detail.Caption = strings.TrimSpace(textContent(n))
			}
		case hasClass(n, "swiper-slide") && !hasClass(n, "swiper-slide-duplicate"):
			if media, ok := slideMedia(n); ok {
				detail.Media = append(detail.Media, media)
			}
		case hasClass(n, "downloads"):
			if len(detail.Media) == 0 {
				if media, ok := downloadMedia(n); ok {
					detail.Media = append(detail.Media, media)
				}
			}
		}
	})

	if !sawPost {
		return nil, errs.New(errs.ErrorTypeMalformed, "post page markup not recognized")
	}
	return detail, nil
}

// slideMedia extracts one carousel slide: a video node when the slide
// is a video, else the lazily loaded image source.
func slideMedia(slide *html.Node) (PostMedia, bool) {
	var media PostMedia
	var found bool
	walk(slide, func(n *html.Node) {
		if found || n.Type != html.ElementNode {
			return
		}
		switch n.Data {
		case "video":
			if src := videoSource(n); src != "" {
				media = PostMedia{URL: src, IsVideo: true}
				found = true
			}
		case "img":
			if src := attrValue(n, "data-src"); src != "" {
				media = PostMedia{URL: src}
				found = true
			}
		}
	})
	return media, found
}

// downloadMedia extracts the media link of a single-media post
func downloadMedia(block *html.Node) (PostMedia, bool) {
	var media PostMedia
	var found bool
	walk(block, func(n *html.Node) {
		if found || n.Type != html.ElementNode || n.Data != "a" {
			return
		}
		href := attrValue(n, "href")
		if href == "" {
			return
		}
		media = PostMedia{URL: href, IsVideo: strings.Contains(href, ".mp4")}
		found = true
	})
	return media, found
}

// videoSource returns the src of a video node or its first source child
func videoSource(video *html.Node) string {
	if src := attrValue(video, "src"); src != "" {
		return src
	}
	for child := video.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.ElementNode && child.Data == "source" {
			if src := attrValue(child, "src"); src != "" {
				return src
			}
		}
	}
	return ""
}

// walk applies fn to n and every node below it
func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		walk(child, fn)
	}
}

// attrValue returns the value of an attribute, or ""
func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// hasClass reports whether the node's class list contains name
func hasClass(n *html.Node, name string) bool {
	for _, class := range strings.Fields(attrValue(n, "class")) {
		if class == name {
			return true
		}
	}
	return false
}

// textContent concatenates all text below a node
func textContent(n *html.Node) string {
	var b strings.Builder
	walk(n, func(child *html.Node) {
		if child.Type == html.TextNode {
			b.WriteString(child.Data)
		}
	})
	return b.String()
}
