// Package loader implements get-or-fetch for URL-addressed image
// resources on top of a cache.Cache.
//
// A Loader consults the cache first. On a miss it joins the in-flight
// request for the key if one exists, or starts exactly one fetch through
// its Transport, decodes the bytes with its Decoder, inserts the decoded
// Resource into the cache and delivers the outcome to every waiter.
// Failures are delivered as *FetchError and never cached, so the next Get
// for the same key starts a fresh fetch.
//
// Fetches run detached from the callers that triggered them: a caller
// giving up (ctx cancelled) stops waiting but the fetch still completes
// and still populates the cache for later callers.
package loader
