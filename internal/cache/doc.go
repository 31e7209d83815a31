// Package cache provides a bounded least-recently-used cache whose
// evicted values are handed to a callback instead of being dropped.
//
// GPU objects cannot be released the moment they fall out of a cache,
// because a submitted command buffer may still reference them. The
// eviction callback lets the owner route them into a deferred-destruction
// queue.
package cache
