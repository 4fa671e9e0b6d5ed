package cache

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"
)

const indexFile = "cache.index"

// DiskCache is a persistent zstd-compressed cache. Entries older than
// maxAge are treated as missing and removed on access.
type DiskCache struct {
	dir      string
	capacity int64
	maxAge   time.Duration
	size     int64

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	index map[string]*diskEntry
	now   func() time.Time

	mu    sync.Mutex
	stats Stats
}

// diskEntry is persisted in the gob index, so fields are exported.
type diskEntry struct {
	Key        string
	File       string
	Size       int64 // compressed
	Original   int64
	Stored     time.Time
	LastAccess time.Time
}

// NewDiskCache opens the cache in dir, loading any existing index.
func NewDiskCache(dir string, capacity int64, level int, maxAge time.Duration) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	if level <= 0 {
		level = DefaultConfig().CompressionLevel
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	dc := &DiskCache{
		dir:      dir,
		capacity: capacity,
		maxAge:   maxAge,
		encoder:  encoder,
		decoder:  decoder,
		index:    make(map[string]*diskEntry),
		now:      time.Now,
		stats:    Stats{Capacity: capacity},
	}
	if err := dc.loadIndex(); err != nil {
		log.Warn("cache: discarding unreadable index", "dir", dir, "err", err)
		dc.index = make(map[string]*diskEntry)
	}
	for _, e := range dc.index {
		dc.size += e.Size
	}
	return dc, nil
}

// Get retrieves and decompresses a value.
func (dc *DiskCache) Get(key string) ([]byte, bool) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	entry, ok := dc.index[key]
	if !ok {
		dc.stats.Misses++
		return nil, false
	}
	if dc.expired(entry) {
		dc.drop(entry)
		dc.stats.Expired++
		dc.stats.Misses++
		return nil, false
	}

	data, err := os.ReadFile(filepath.Join(dc.dir, entry.File))
	if err == nil {
		data, err = dc.decoder.DecodeAll(data, nil)
	}
	if err != nil {
		log.Debug("cache: dropping unreadable entry", "key", key, "err", err)
		dc.drop(entry)
		dc.stats.Misses++
		return nil, false
	}

	entry.LastAccess = dc.now()
	dc.stats.Hits++
	return data, true
}

// Put compresses and stores a value, evicting least recently used entries
// to stay within capacity.
func (dc *DiskCache) Put(key string, value []byte) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	data := dc.encoder.EncodeAll(value, nil)
	size := int64(len(data))
	if size > dc.capacity {
		return ErrItemTooLarge
	}
	if existing, ok := dc.index[key]; ok {
		dc.drop(existing)
	}
	for dc.size+size > dc.capacity && len(dc.index) > 0 {
		dc.drop(dc.oldest())
		dc.stats.Evictions++
	}

	file := fileName(key)
	if err := writeAtomic(filepath.Join(dc.dir, file), data); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	now := dc.now()
	dc.index[key] = &diskEntry{
		Key:        key,
		File:       file,
		Size:       size,
		Original:   int64(len(value)),
		Stored:     now,
		LastAccess: now,
	}
	dc.size += size
	return nil
}

// Delete removes an entry.
func (dc *DiskCache) Delete(key string) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	if entry, ok := dc.index[key]; ok {
		dc.drop(entry)
	}
	return nil
}

// Clear removes every entry and saves the empty index.
func (dc *DiskCache) Clear() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	for _, entry := range dc.index {
		dc.drop(entry)
	}
	return dc.saveIndex()
}

// Prune removes expired entries and returns how many were removed.
func (dc *DiskCache) Prune() int {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	removed := 0
	for _, entry := range dc.index {
		if dc.expired(entry) {
			dc.drop(entry)
			removed++
		}
	}
	dc.stats.Expired += int64(removed)
	return removed
}

// Keys returns the cached keys, least recently used first.
func (dc *DiskCache) Keys() []string {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	entries := dc.sorted()
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys
}

// Stats returns cache statistics.
func (dc *DiskCache) Stats() Stats {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.stats.finish(dc.size, len(dc.index))
}

// Close saves the index.
func (dc *DiskCache) Close() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.encoder.Close()
	dc.decoder.Close()
	return dc.saveIndex()
}

func (dc *DiskCache) expired(e *diskEntry) bool {
	return dc.maxAge > 0 && dc.now().Sub(e.Stored) > dc.maxAge
}

func (dc *DiskCache) drop(e *diskEntry) {
	if err := os.Remove(filepath.Join(dc.dir, e.File)); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Debug("cache: remove file", "file", e.File, "err", err)
	}
	delete(dc.index, e.Key)
	dc.size -= e.Size
}

func (dc *DiskCache) oldest() *diskEntry {
	var oldest *diskEntry
	for _, e := range dc.index {
		if oldest == nil || e.LastAccess.Before(oldest.LastAccess) {
			oldest = e
		}
	}
	return oldest
}

func (dc *DiskCache) sorted() []*diskEntry {
	entries := make([]*diskEntry, 0, len(dc.index))
	for _, e := range dc.index {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastAccess.Before(entries[j].LastAccess)
	})
	return entries
}

func fileName(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:16]) + ".zst"
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func (dc *DiskCache) loadIndex() error {
	f, err := os.Open(filepath.Join(dc.dir, indexFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewDecoder(f).Decode(&dc.index)
}

func (dc *DiskCache) saveIndex() error {
	path := filepath.Join(dc.dir, indexFile)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	err = gob.NewEncoder(f).Encode(dc.index)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
