// Package cache stores fetched books so reopening one does not touch the
// origin. A small in-memory LRU (L1) sits in front of a zstd-compressed disk
// cache (L2) with max-age expiry.
package cache
