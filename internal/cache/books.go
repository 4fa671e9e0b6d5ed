package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/pagecast/pagecast/internal/origin"
)

// BookCache caches origin books by id.
type BookCache struct {
	memory *MemoryCache
	disk   *DiskCache // nil without a directory
}

// NewBookCache creates a book cache. Without cfg.Dir only the memory tier
// is used.
func NewBookCache(cfg Config) (*BookCache, error) {
	if cfg.MemoryCapacity <= 0 {
		cfg.MemoryCapacity = DefaultConfig().MemoryCapacity
	}
	bc := &BookCache{memory: NewMemoryCache(cfg.MemoryCapacity)}
	if cfg.Dir != "" {
		if cfg.DiskCapacity <= 0 {
			cfg.DiskCapacity = DefaultConfig().DiskCapacity
		}
		disk, err := NewDiskCache(cfg.Dir, cfg.DiskCapacity, cfg.CompressionLevel, cfg.MaxAge)
		if err != nil {
			return nil, err
		}
		bc.disk = disk
	}
	return bc, nil
}

func bookKey(id int64) string {
	return "book:" + strconv.FormatInt(id, 10)
}

// Get returns a cached book. Disk hits are promoted to memory.
func (bc *BookCache) Get(id int64) (*origin.Book, bool) {
	key := bookKey(id)
	data, ok := bc.memory.Get(key)
	if !ok && bc.disk != nil {
		if data, ok = bc.disk.Get(key); ok {
			_ = bc.memory.Put(key, data)
		}
	}
	if !ok {
		return nil, false
	}

	var book origin.Book
	if err := json.Unmarshal(data, &book); err != nil {
		log.Debug("cache: corrupt book entry", "id", id, "err", err)
		_ = bc.Delete(id)
		return nil, false
	}
	return &book, true
}

// Put stores a book in both tiers.
func (bc *BookCache) Put(book *origin.Book) error {
	if book == nil || book.ID <= 0 {
		return fmt.Errorf("%w: book without id", ErrCacheCorrupted)
	}
	data, err := json.Marshal(book)
	if err != nil {
		return err
	}
	key := bookKey(book.ID)
	if err := bc.memory.Put(key, data); err != nil && !errors.Is(err, ErrItemTooLarge) {
		return err
	}
	if bc.disk != nil {
		return bc.disk.Put(key, data)
	}
	return nil
}

// Delete removes a book from both tiers.
func (bc *BookCache) Delete(id int64) error {
	key := bookKey(id)
	_ = bc.memory.Delete(key)
	if bc.disk != nil {
		return bc.disk.Delete(key)
	}
	return nil
}

// Clear empties both tiers.
func (bc *BookCache) Clear() error {
	_ = bc.memory.Clear()
	if bc.disk != nil {
		return bc.disk.Clear()
	}
	return nil
}

// Prune drops expired disk entries.
func (bc *BookCache) Prune() int {
	if bc.disk == nil {
		return 0
	}
	return bc.disk.Prune()
}

// Stats returns memory and disk statistics.
func (bc *BookCache) Stats() (memory, disk Stats) {
	memory = bc.memory.Stats()
	if bc.disk != nil {
		disk = bc.disk.Stats()
	}
	return memory, disk
}

// Close persists the disk index.
func (bc *BookCache) Close() error {
	if bc.disk != nil {
		return bc.disk.Close()
	}
	return nil
}
