// Package cache stores per-module scan results on disk.
package cache

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeebo/blake3"
)

const entryExt = ".mp"

// Cache provides file-based caching of analysis results. A disabled cache
// accepts every call and never hits.
type Cache struct {
	dir     string
	ttl     time.Duration
	enabled bool
}

// entry is the on-disk envelope around a cached payload.
type entry struct {
	Hash      string    `msgpack:"hash"`
	Timestamp time.Time `msgpack:"timestamp"`
	Data      []byte    `msgpack:"data"`
}

// New creates a cache rooted at dir.
func New(dir string, ttlHours int, enabled bool) (*Cache, error) {
	if !enabled {
		return &Cache{enabled: false}, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{
		dir:     dir,
		ttl:     time.Duration(ttlHours) * time.Hour,
		enabled: true,
	}, nil
}

// Disabled returns a cache that never stores anything.
func Disabled() *Cache {
	return &Cache{}
}

// Enabled reports whether the cache stores entries.
func (c *Cache) Enabled() bool {
	return c != nil && c.enabled
}

// HashFile computes a BLAKE3 hash of a file's contents.
func HashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return HashBytes(data), nil
}

// HashBytes computes a BLAKE3 hash of bytes and returns it as a hex string.
func HashBytes(data []byte) string {
	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// HashStrings hashes parts joined by NUL bytes.
func HashStrings(parts ...string) string {
	h := blake3.New()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get decodes the entry for key into out. It misses when the entry is
// absent, expired, unreadable, or was stored under a different hash.
func (c *Cache) Get(key, hash string, out any) bool {
	if !c.Enabled() {
		return false
	}
	path := c.keyPath(key)
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}

	var e entry
	if err := msgpack.Unmarshal(data, &e); err != nil {
		return false
	}
	if e.Hash != hash {
		return false
	}
	if c.ttl > 0 && time.Since(e.Timestamp) > c.ttl {
		os.Remove(path)
		return false
	}
	return msgpack.NewDecoder(bytes.NewReader(e.Data)).Decode(out) == nil
}

// Set encodes v and stores it under key, tagged with hash.
func (c *Cache) Set(key, hash string, v any) error {
	if !c.Enabled() {
		return nil
	}
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}
	data, err := msgpack.Marshal(entry{Hash: hash, Timestamp: time.Now(), Data: payload})
	if err != nil {
		return err
	}

	path := c.keyPath(key)
	tmp, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Invalidate removes a cache entry.
func (c *Cache) Invalidate(key string) error {
	if !c.Enabled() {
		return nil
	}
	err := os.Remove(c.keyPath(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Clear removes all cache entries.
func (c *Cache) Clear() error {
	if !c.Enabled() {
		return nil
	}
	return os.RemoveAll(c.dir)
}

// keyPath converts a key to a filesystem path.
func (c *Cache) keyPath(key string) string {
	// Hash the key so arbitrary module paths are safe file names.
	hash := blake3.Sum256([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(hash[:])+entryExt)
}

// Stats returns cache statistics.
type Stats struct {
	Entries   int           `json:"entries"`
	TotalSize int64         `json:"total_size"`
	OldestAge time.Duration `json:"oldest_age"`
	NewestAge time.Duration `json:"newest_age"`
}

// GetStats returns statistics about the cache.
func (c *Cache) GetStats() (*Stats, error) {
	if !c.Enabled() {
		return &Stats{}, nil
	}

	stats := &Stats{}
	var oldest, newest time.Time

	err := filepath.Walk(c.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || filepath.Ext(path) != entryExt {
			return nil
		}

		stats.Entries++
		stats.TotalSize += info.Size()

		modTime := info.ModTime()
		if oldest.IsZero() || modTime.Before(oldest) {
			oldest = modTime
		}
		if newest.IsZero() || modTime.After(newest) {
			newest = modTime
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !oldest.IsZero() {
		stats.OldestAge = time.Since(oldest)
	}
	if !newest.IsZero() {
		stats.NewestAge = time.Since(newest)
	}
	return stats, nil
}
