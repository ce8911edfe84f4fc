package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/IvanBrykalov/lazyfeed/loader"
)

// Template is the content of a demo item; StaticSource stamps a fresh ID
// on every occurrence.
type Template struct {
	Title    string
	Category string
	Images   []loader.Key
}

// StaticSource serves pages cut from a fixed catalog, wrapping around when
// the catalog runs out, after an artificial Latency.
type StaticSource struct {
	Catalog  []Template
	PageSize int           // <= 0 => 10
	Latency  time.Duration // per page request
	MaxPages int           // pages past MaxPages are empty; 0 => unlimited

	// NewID returns a unique item id; nil => uuid.NewString.
	NewID func() string
}

// FirstPage implements PageSource.
func (s *StaticSource) FirstPage(ctx context.Context) ([]Item, error) {
	return s.NextPage(ctx, 1)
}

// NextPage implements PageSource.
func (s *StaticSource) NextPage(ctx context.Context, page int) ([]Item, error) {
	if s.Latency > 0 {
		t := time.NewTimer(s.Latency)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if page < 1 {
		return nil, fmt.Errorf("invalid page %d", page)
	}
	if len(s.Catalog) == 0 || (s.MaxPages > 0 && page > s.MaxPages) {
		return nil, nil
	}

	size := s.PageSize
	if size <= 0 {
		size = 10
	}
	newID := s.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	items := make([]Item, 0, size)
	off := (page - 1) * size
	for i := 0; i < size; i++ {
		tpl := s.Catalog[(off+i)%len(s.Catalog)]
		items = append(items, Item{
			ID:       newID(),
			Title:    tpl.Title,
			Category: tpl.Category,
			Images:   append([]loader.Key(nil), tpl.Images...),
		})
	}
	return items, nil
}

// demoCategories are the categories used by DemoCatalog.
var demoCategories = []string{"Nature", "Architecture", "Travel", "Food", "Animals"}

// DemoCatalog builds n templates with imagesPer picsum.photos URLs each.
func DemoCatalog(n, imagesPer int) []Template {
	out := make([]Template, 0, n)
	for i := 0; i < n; i++ {
		cat := demoCategories[i%len(demoCategories)]
		imgs := make([]loader.Key, 0, imagesPer)
		for j := 0; j < imagesPer; j++ {
			imgs = append(imgs, loader.Key(fmt.Sprintf("https://picsum.photos/seed/%s-%d-%d/400/300", cat, i, j)))
		}
		out = append(out, Template{
			Title:    fmt.Sprintf("%s #%d", cat, i+1),
			Category: cat,
			Images:   imgs,
		})
	}
	return out
}

var _ PageSource = (*StaticSource)(nil)
