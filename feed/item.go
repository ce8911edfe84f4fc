package feed

import (
	"context"
	"fmt"
	"slices"

	"github.com/IvanBrykalov/lazyfeed/loader"
)

// Item is one feed entry: a titled carousel of images.
// ID is unique per occurrence, even when the same content repeats across
// pages.
type Item struct {
	ID       string
	Title    string
	Category string
	Images   []loader.Key
}

// PageSource yields batches of items. Pages are numbered from 1.
// An empty page means the source is exhausted.
type PageSource interface {
	FirstPage(ctx context.Context) ([]Item, error)
	NextPage(ctx context.Context, page int) ([]Item, error)
}

// State is a snapshot of a Controller. Items must be treated as read-only.
type State struct {
	Items      []Item
	Page       int  // last page appended; 1 after a refresh
	Loading    bool // a load-more is in flight
	Refreshing bool
	Exhausted  bool  // the last page request returned no items
	Err        error // last load-more or refresh failure, cleared on success
}

// PageError reports a failed page request. Loaded items are kept.
type PageError struct {
	Page int
	Err  error
}

func (e *PageError) Error() string { return fmt.Sprintf("feed: load page %d: %v", e.Page, e.Err) }
func (e *PageError) Unwrap() error { return e.Err }

// Keys returns the image keys of items in display order.
func Keys(items []Item) []loader.Key {
	var out []loader.Key
	for _, it := range items {
		out = append(out, it.Images...)
	}
	return out
}

func (s State) clone() State {
	s.Items = slices.Clip(s.Items)
	return s
}
