// Package fetch downloads engine artifacts over HTTP.
//
// The client retries transport failures, 5xx responses and truncated bodies
// with exponential backoff and jitter. 4xx responses map to sentinel errors
// and fail immediately; retrying a 404 from an immutable CDN path cannot
// succeed. Fetch returns the whole artifact in memory together with the ETag
// and Last-Modified metadata the cache layer records, and Head revalidates a
// cached copy without downloading the body.
package fetch
