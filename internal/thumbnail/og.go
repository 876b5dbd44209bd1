package thumbnail

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	fetchTimeout  = 5 * time.Second
	maxPageBytes  = 512 << 10
	maxImageBytes = 8 << 20
)

// linkFetcher resolves a page's og:image for link entry previews.
type linkFetcher struct {
	client *http.Client
}

func newLinkFetcher() *linkFetcher {
	return &linkFetcher{client: &http.Client{Timeout: fetchTimeout}}
}

// openGraphImage returns the raw bytes of the page's og:image, or nil.
func (f *linkFetcher) openGraphImage(pageURL string) []byte {
	imgURL := f.findImageURL(normalizeURL(pageURL))
	if imgURL == "" {
		return nil
	}
	return f.fetchImage(imgURL)
}

func (f *linkFetcher) findImageURL(pageURL string) string {
	resp, err := f.client.Get(pageURL)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}

	base := resp.Request.URL
	z := html.NewTokenizer(io.LimitReader(resp.Body, maxPageBytes))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""

		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "meta" || !hasAttr {
				continue
			}
			var prop, content string
			for {
				k, v, more := z.TagAttr()
				switch string(k) {
				case "property", "name":
					prop = string(v)
				case "content":
					content = string(v)
				}
				if !more {
					break
				}
			}
			if prop == "og:image" && content != "" {
				return resolveURL(base, content)
			}

		case html.EndTagToken:
			// og:image lives in head; no point scanning the body.
			if name, _ := z.TagName(); string(name) == "head" {
				return ""
			}
		}
	}
}

func (f *linkFetcher) fetchImage(imgURL string) []byte {
	resp, err := f.client.Get(imgURL)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil || len(data) == 0 || len(data) > maxImageBytes {
		return nil
	}
	return data
}

func resolveURL(base *url.URL, ref string) string {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	return u.String()
}

// normalizeURL gives scheme-less captures like www.example.com a scheme so
// the HTTP client can dial them.
func normalizeURL(s string) string {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "://") {
		return s
	}
	return "https://" + s
}
