package httr2

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// FileCache is a CacheStore persisting entries as one file per fingerprint
// under a directory. Puts go through a temp file followed by rename, so
// concurrent writers on the same key race to a complete entry and readers
// never observe a torn write. Eviction is explicit (Delete/Clear); freshness
// directives alone decide whether a stored entry is used.
type FileCache struct {
	dir string

	mkdir sync.Once
}

// NewFileCache creates a filesystem-backed cache store rooted at dir. The
// directory is created on first write.
func NewFileCache(dir string) *FileCache {
	return &FileCache{dir: dir}
}

func (c *FileCache) path(key string) string {
	return filepath.Join(c.dir, key+".json")
}

// Get reads and decodes the entry for key. A missing or undecodable file is
// a miss; corrupt files are removed so they cannot wedge a key.
func (c *FileCache) Get(key string) (*CacheEntry, bool) {
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return nil, false
	}
	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		_ = os.Remove(c.path(key))
		return nil, false
	}
	return &entry, true
}

// Put atomically replaces the entry for key.
func (c *FileCache) Put(key string, entry *CacheEntry) error {
	c.mkdir.Do(func() {
		_ = os.MkdirAll(c.dir, 0o755)
	})

	data, err := json.Marshal(entry)
	if err != nil {
		return &RequestError{Type: ErrorTypeCache, Message: "cache entry encoding failed", Cause: err}
	}

	tmp, err := os.CreateTemp(c.dir, key+".tmp-*")
	if err != nil {
		return &RequestError{Type: ErrorTypeCache, Message: "cache write failed", Cause: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return &RequestError{Type: ErrorTypeCache, Message: "cache write failed", Cause: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return &RequestError{Type: ErrorTypeCache, Message: "cache write failed", Cause: err}
	}
	if err := os.Rename(tmpName, c.path(key)); err != nil {
		_ = os.Remove(tmpName)
		return &RequestError{Type: ErrorTypeCache, Message: "cache replace failed", Cause: err}
	}
	return nil
}

// Delete removes the entry for key, if any.
func (c *FileCache) Delete(key string) {
	_ = os.Remove(c.path(key))
}

// Clear removes every entry in the cache directory.
func (c *FileCache) Clear() {
	matches, err := filepath.Glob(filepath.Join(c.dir, "*.json"))
	if err != nil {
		return
	}
	for _, match := range matches {
		_ = os.Remove(match)
	}
}

// MemoryCache is an in-process CacheStore for tests and short-lived
// processes.
type MemoryCache struct {
	mu    sync.RWMutex
	store map[string]*CacheEntry
}

// NewMemoryCache creates an empty in-memory cache store.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{store: make(map[string]*CacheEntry)}
}

func (c *MemoryCache) Get(key string) (*CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.store[key]
	return entry, ok
}

func (c *MemoryCache) Put(key string, entry *CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = entry
	return nil
}

func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
}

func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store = make(map[string]*CacheEntry)
}
