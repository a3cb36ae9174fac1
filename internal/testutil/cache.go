package testutil

import (
	"context"
	"sync"
)

// MemoryCache is an in-memory cache with failure injection.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	getErr  error
	putErr  error
	gets    int
	puts    int
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string][]byte)}
}

// FailGet makes Get return err (nil restores normal behavior).
func (c *MemoryCache) FailGet(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getErr = err
}

// FailPut makes Put return err (nil restores normal behavior).
func (c *MemoryCache) FailPut(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putErr = err
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	data, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

func (c *MemoryCache) Put(_ context.Context, key string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
	if c.putErr != nil {
		return c.putErr
	}
	c.entries[key] = append([]byte(nil), data...)
	return nil
}

// Len returns the number of stored entries.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Gets counts Get calls.
func (c *MemoryCache) Gets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gets
}

// Puts counts Put calls.
func (c *MemoryCache) Puts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.puts
}
