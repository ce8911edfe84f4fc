// Package feed implements the paginated feed behind a scrolling list.
//
// A Controller holds the ordered, append-only item sequence, the page
// counter and the single-flight "loading more" flag. The UI reports which
// index is appearing through MaybeLoadMore; when the index is close enough
// to the end the next page is requested from a PageSource and appended in
// the order received. At most one page load is in flight at any time.
//
// Refresh replaces the sequence with a fresh first page. Refresh and
// load-more share one mutation domain: a load-more is not started while a
// refresh runs, and a load-more that was already running when a refresh
// started has its page dropped instead of appended onto the new sequence.
//
// State changes are published to subscribers as State values; each
// subscriber sees the latest state and may miss intermediate ones.
package feed
