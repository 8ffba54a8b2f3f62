package cache

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

// FilePersistentCache is a file-backed answer cache. It survives restarts so
// a warm deployment does not re-pay generation cost for questions already
// answered. Values must be JSON-serializable.
type FilePersistentCache struct {
	store    map[string]persistentItem
	mutex    sync.RWMutex
	ttl      time.Duration
	filePath string
	logger   Logger
}

type persistentItem struct {
	Value      interface{} `json:"value"`
	Expiration int64       `json:"expiration"`
}

// NewFilePersistentCache creates a persistent cache with a default TTL and
// backing file path.
func NewFilePersistentCache(defaultTTL time.Duration, filePath string, logger Logger) *FilePersistentCache {
	c := &FilePersistentCache{
		store:    make(map[string]persistentItem),
		ttl:      defaultTTL,
		filePath: filePath,
		logger:   logger,
	}
	c.loadFromFile()
	go c.cleanupLoop(10 * time.Minute)
	return c
}

// loadFromFile loads cache entries from the backing file.
func (c *FilePersistentCache) loadFromFile() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	file, err := os.Open(c.filePath)
	if err != nil {
		return
	}
	defer file.Close()
	decoder := json.NewDecoder(file)
	_ = decoder.Decode(&c.store)
}

// saveToFile writes cache entries to the backing file. Callers hold the lock.
func (c *FilePersistentCache) saveToFile() {
	file, err := os.Create(c.filePath)
	if err != nil {
		if c.logger != nil {
			c.logger.Error("Failed to persist answer cache", map[string]interface{}{"path": c.filePath, "error": err.Error()})
		}
		return
	}
	defer file.Close()
	encoder := json.NewEncoder(file)
	_ = encoder.Encode(c.store)
}

// Get retrieves a cached answer.
func (c *FilePersistentCache) Get(ctx context.Context, key string) (interface{}, error) {
	if err := errbuilder.WrapIfContextDone(ctx, nil); err != nil {
		return nil, err
	}

	c.mutex.RLock()
	item, found := c.store[key]
	c.mutex.RUnlock()
	if !found {
		return nil, errbuilder.NotFoundErr(errbuilder.GenericErr("answer not cached", nil))
	}
	if time.Now().UnixNano() > item.Expiration {
		if c.logger != nil {
			c.logger.Info("Persistent cache entry expired", map[string]interface{}{"key": key})
		}
		return nil, errbuilder.NotFoundErr(errbuilder.GenericErr("cached answer expired", nil))
	}
	return item.Value, nil
}

// Set stores an answer and persists the cache.
func (c *FilePersistentCache) Set(ctx context.Context, key string, value interface{}) error {
	if err := errbuilder.WrapIfContextDone(ctx, nil); err != nil {
		return err
	}

	c.mutex.Lock()
	c.store[key] = persistentItem{
		Value:      value,
		Expiration: time.Now().Add(c.ttl).UnixNano(),
	}
	c.saveToFile()
	c.mutex.Unlock()
	return nil
}

// cleanupLoop periodically removes expired entries and rewrites the file.
func (c *FilePersistentCache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		c.mutex.Lock()
		now := time.Now().UnixNano()
		for key, item := range c.store {
			if now > item.Expiration {
				delete(c.store, key)
			}
		}
		c.saveToFile()
		c.mutex.Unlock()
	}
}
