package codegen

import (
	"container/list"
	"sync"
)

// ModuleCache caches CompiledKernels by fingerprint with LRU eviction
// under a configurable entry cap (spec §4.3 "Caching"). Grounded on
// the buffer pool's own LRU-by-last-touched eviction discipline
// (internal/bufferpool), applied here to compiled closures instead of
// memory segments.
type ModuleCache struct {
	mu       sync.Mutex
	cap      int
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
}

type cacheEntry struct {
	key    string
	kernel *CompiledKernel
}

// NewModuleCache creates a cache holding at most cap compiled kernels.
func NewModuleCache(cap int) *ModuleCache {
	if cap < 1 {
		cap = 1
	}
	return &ModuleCache{
		cap:     cap,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Get returns the cached kernel for fingerprint, promoting it to most
// recently used, or ok=false on a miss.
func (c *ModuleCache) Get(fingerprint string) (*CompiledKernel, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, found := c.entries[fingerprint]
	if !found {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).kernel, true
}

// Put inserts kernel under fingerprint, evicting the least recently
// used entry if the cache is at capacity.
func (c *ModuleCache) Put(fingerprint string, kernel *CompiledKernel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, found := c.entries[fingerprint]; found {
		el.Value.(*cacheEntry).kernel = kernel
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&cacheEntry{key: fingerprint, kernel: kernel})
	c.entries[fingerprint] = el
	if c.order.Len() > c.cap {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).key)
		}
	}
}

// Len returns the current number of cached kernels.
func (c *ModuleCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
