package descriptor

import "sync"

type cacheKey struct {
	iface   string
	ordinal int
}

// Cache memoizes resolution per (interface, method ordinal). It is safe for
// concurrent use. Invalidate drops every entry; later lookups rebuild them
// identically.
type Cache struct {
	reg     *Registry
	entries map[cacheKey]*Descriptor
	mu      sync.Mutex
}

// NewCache creates an empty cache over reg.
func NewCache(reg *Registry) *Cache {
	return &Cache{reg: reg}
}

// Get returns the descriptor for the method at ordinal on i, resolving it
// on a miss. Failures are not cached.
func (c *Cache) Get(i *Interface, ordinal int) (*Descriptor, error) {
	key := cacheKey{iface: i.Name, ordinal: ordinal}

	c.mu.Lock()
	d, ok := c.entries[key]
	c.mu.Unlock()
	if ok {
		return d, nil
	}

	d, err := c.reg.Resolve(i, ordinal)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = make(map[cacheKey]*Descriptor)
	}
	if prev, ok := c.entries[key]; ok {
		return prev, nil
	}
	c.entries[key] = d
	return d, nil
}

// Len returns the number of cached descriptors.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Invalidate drops all entries.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.entries = nil
	c.mu.Unlock()
}
