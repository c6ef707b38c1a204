package speech

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/hammamikhairi/turnocall/internal/logger"
)

// DefaultCacheEntries bounds the in-memory layer. A clinic day produces a
// few hundred distinct ticket/room phrases.
const DefaultCacheEntries = 512

// AudioCache keeps synthesized WAV audio keyed by everything that changes
// the sound: voice, language, prosody and text. The memory layer is an
// LRU; the optional disk layer under dir outlives the process and is
// consulted on a memory miss.
type AudioCache struct {
	log *logger.Logger

	dir     string
	persist bool
	limit   int

	mu    sync.Mutex
	order *list.List // front = most recent
	items map[string]*list.Element

	hits   atomic.Int64
	misses atomic.Int64
}

type cacheEntry struct {
	key  string
	data []byte
}

// CacheOption configures an AudioCache.
type CacheOption func(*AudioCache)

// WithCacheDir enables the disk layer. Entries are read from dir always
// and written there only when persist is set.
func WithCacheDir(dir string, persist bool) CacheOption {
	return func(c *AudioCache) {
		c.dir = dir
		c.persist = persist
	}
}

// WithCacheEntries overrides DefaultCacheEntries.
func WithCacheEntries(n int) CacheOption {
	return func(c *AudioCache) {
		if n > 0 {
			c.limit = n
		}
	}
}

// NewAudioCache creates a memory-only cache unless WithCacheDir is given.
func NewAudioCache(log *logger.Logger, opts ...CacheOption) *AudioCache {
	c := &AudioCache{
		log:   log,
		limit: DefaultCacheEntries,
		order: list.New(),
		items: make(map[string]*list.Element),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.dir != "" && c.persist {
		if err := os.MkdirAll(c.dir, 0o755); err != nil {
			log.Error("cache: create %s: %v (disk layer read-only)", c.dir, err)
			c.persist = false
		}
	}
	return c
}

// Get returns the cached audio for r.
func (c *AudioCache) Get(r SynthesisRequest) ([]byte, bool) {
	key := cacheKey(r)

	if data, ok := c.lookup(key); ok {
		c.hits.Add(1)
		return data, true
	}

	if c.dir != "" {
		if data, err := os.ReadFile(c.path(key)); err == nil {
			c.store(key, data)
			c.hits.Add(1)
			c.log.Debug("cache hit (disk): %s", truncate(r.Text, 40))
			return data, true
		}
	}

	c.misses.Add(1)
	return nil, false
}

// Put stores audio for r, evicting the least recently used entry when
// the memory layer is full.
func (c *AudioCache) Put(r SynthesisRequest, audio []byte) {
	key := cacheKey(r)
	c.store(key, audio)

	if c.dir != "" && c.persist {
		if err := os.WriteFile(c.path(key), audio, 0o644); err != nil {
			c.log.Error("cache: write %s: %v", c.path(key), err)
		}
	}
}

// Len reports how many entries the memory layer holds.
func (c *AudioCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns hit and miss counts.
func (c *AudioCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *AudioCache) lookup(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).data, true
}

func (c *AudioCache) store(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*cacheEntry).data = data
		c.order.MoveToFront(el)
		return
	}

	c.items[key] = c.order.PushFront(&cacheEntry{key: key, data: data})
	for c.order.Len() > c.limit {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
	}
}

func (c *AudioCache) path(key string) string {
	return filepath.Join(c.dir, key+".wav")
}

func cacheKey(r SynthesisRequest) string {
	raw := fmt.Sprintf("%s|%s|%.2f|%.2f|%.2f|%s", r.Voice, normLang(r.Lang), r.Volume, r.Rate, r.Pitch, r.Text)
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
