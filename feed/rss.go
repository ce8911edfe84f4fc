package feed

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"github.com/IvanBrykalov/lazyfeed/loader"
)

// RSSSource pages the entries of an RSS/Atom/JSON feed. FirstPage
// re-downloads the feed; NextPage slices the last downloaded copy.
// Entries without any image are skipped.
type RSSSource struct {
	URL      string
	PageSize int          // <= 0 => 10
	Client   *http.Client // nil => http.DefaultClient

	mu      sync.Mutex
	entries []Template
}

// FirstPage implements PageSource.
func (s *RSSSource) FirstPage(ctx context.Context) ([]Item, error) {
	entries, err := s.download(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	return s.page(1), nil
}

// NextPage implements PageSource.
func (s *RSSSource) NextPage(ctx context.Context, page int) ([]Item, error) {
	s.mu.Lock()
	loaded := s.entries != nil
	s.mu.Unlock()
	if !loaded {
		if _, err := s.FirstPage(ctx); err != nil {
			return nil, err
		}
	}
	return s.page(page), nil
}

func (s *RSSSource) page(page int) []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	size := s.PageSize
	if size <= 0 {
		size = 10
	}
	lo := (page - 1) * size
	if page < 1 || lo >= len(s.entries) {
		return nil
	}
	hi := min(lo+size, len(s.entries))

	items := make([]Item, 0, hi-lo)
	for _, t := range s.entries[lo:hi] {
		items = append(items, Item{
			ID:       uuid.NewString(),
			Title:    t.Title,
			Category: t.Category,
			Images:   append([]loader.Key(nil), t.Images...),
		})
	}
	return items
}

func (s *RSSSource) download(ctx context.Context) ([]Template, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("feed %s: status %d", s.URL, resp.StatusCode)
	}

	parsed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", s.URL, err)
	}

	out := make([]Template, 0, len(parsed.Items))
	for _, it := range parsed.Items {
		imgs := itemImages(it)
		if len(imgs) == 0 {
			continue
		}
		cat := parsed.Title
		if len(it.Categories) > 0 {
			cat = it.Categories[0]
		}
		out = append(out, Template{Title: it.Title, Category: cat, Images: imgs})
	}
	return out, nil
}

// itemImages collects image URLs from the item image, image enclosures
// and Media RSS content/thumbnails, without duplicates.
func itemImages(it *gofeed.Item) []loader.Key {
	var out []loader.Key
	seen := make(map[string]bool)
	add := func(u string) {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		out = append(out, loader.Key(u))
	}

	if it.Image != nil {
		add(it.Image.URL)
	}
	for _, enc := range it.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") {
			add(enc.URL)
		}
	}
	for _, name := range []string{"content", "thumbnail"} {
		for _, e := range mediaExtensions(it.Extensions, name) {
			if medium := e.Attrs["medium"]; medium != "" && medium != "image" {
				continue
			}
			add(e.Attrs["url"])
		}
	}
	return out
}

func mediaExtensions(exts ext.Extensions, name string) []ext.Extension {
	if exts == nil {
		return nil
	}
	media, ok := exts["media"]
	if !ok {
		return nil
	}
	return media[name]
}

var _ PageSource = (*RSSSource)(nil)
