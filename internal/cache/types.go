package cache

import (
	"errors"
	"time"
)

var (
	// ErrItemTooLarge is returned when an item exceeds the cache capacity.
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrCacheCorrupted is returned when cache data cannot be decoded.
	ErrCacheCorrupted = errors.New("cache data corrupted")
)

// Stats holds cache counters.
type Stats struct {
	Capacity  int64
	Size      int64
	ItemCount int64
	Hits      int64
	Misses    int64
	Evictions int64
	Expired   int64
	HitRate   float64
}

func (s *Stats) finish(size int64, items int) Stats {
	out := *s
	out.Size = size
	out.ItemCount = int64(items)
	if total := out.Hits + out.Misses; total > 0 {
		out.HitRate = float64(out.Hits) / float64(total)
	}
	return out
}

// Config holds configuration for the book cache.
type Config struct {
	Dir              string        // disk cache directory; empty keeps the cache in memory only
	MemoryCapacity   int64         // bytes
	DiskCapacity     int64         // bytes on disk, after compression
	CompressionLevel int           // zstd level, 1-22
	MaxAge           time.Duration // zero keeps entries until evicted
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		MemoryCapacity:   16 * 1024 * 1024,
		DiskCapacity:     256 * 1024 * 1024,
		CompressionLevel: 3,
		MaxAge:           7 * 24 * time.Hour,
	}
}

// Cache is a byte cache keyed by string.
type Cache interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
	Delete(key string) error
	Clear() error
	Stats() Stats
}
