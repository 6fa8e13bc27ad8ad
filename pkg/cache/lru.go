package cache

import (
	"slices"
	"sync"
	"sync/atomic"
)

// DefaultMemoryBytes is the default budget of the in-memory record layer (32 MB).
const DefaultMemoryBytes = 32 * 1024 * 1024

// bytesPerKB is the number of bytes in a kilobyte.
const bytesPerKB = 1024.0

// LRU keeps recently used encoded records in memory in front of the database.
// It tracks memory usage and evicts least recently used entries when the limit is exceeded.
type LRU struct {
	mu          sync.RWMutex
	entries     map[Key]*lruEntry
	head        *lruEntry // Most recently used.
	tail        *lruEntry // Least recently used.
	maxSize     int64
	currentSize int64

	hits   atomic.Int64
	misses atomic.Int64
}

type lruEntry struct {
	key         Key
	data        []byte
	size        int64
	accessCount int64
	prev        *lruEntry
	next        *lruEntry
}

// evictionCost is AccessCount / SizeKB; large, rarely read entries go first.
func (e *lruEntry) evictionCost() float64 {
	if e.size == 0 {
		return float64(e.accessCount)
	}

	sizeKB := float64(e.size) / bytesPerKB
	if sizeKB < 1 {
		sizeKB = 1
	}

	return float64(e.accessCount) / sizeKB
}

// NewLRU creates an LRU with the given byte budget. A non-positive budget uses DefaultMemoryBytes.
func NewLRU(maxSize int64) *LRU {
	if maxSize <= 0 {
		maxSize = DefaultMemoryBytes
	}

	return &LRU{
		entries: make(map[Key]*lruEntry),
		maxSize: maxSize,
	}
}

// Get returns the encoded record for key.
func (c *LRU) Get(key Key) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)

		return nil, false
	}

	c.hits.Add(1)

	entry.accessCount++
	c.moveToFront(entry)

	return entry.data, true
}

// Put stores a copy of data under key. Data larger than the whole budget is ignored.
func (c *LRU) Put(key Key, data []byte) {
	size := int64(len(data))
	if size > c.maxSize {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok {
		entry.accessCount++
		c.moveToFront(entry)

		return
	}

	for c.currentSize+size > c.maxSize && c.tail != nil {
		c.evictLowestCost()
	}

	entry := &lruEntry{
		key:         key,
		data:        slices.Clone(data),
		size:        size,
		accessCount: 1,
	}

	c.entries[key] = entry
	c.currentSize += size
	c.addToFront(entry)
}

// Stats returns cache statistics.
func (c *LRU) Stats() LRUStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return LRUStats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Entries:     len(c.entries),
		CurrentSize: c.currentSize,
		MaxSize:     c.maxSize,
	}
}

// LRUStats holds in-memory layer counters.
type LRUStats struct {
	Hits        int64
	Misses      int64
	Entries     int
	CurrentSize int64
	MaxSize     int64
}

func (c *LRU) moveToFront(entry *lruEntry) {
	if entry == c.head {
		return
	}

	c.removeFromList(entry)
	c.addToFront(entry)
}

func (c *LRU) addToFront(entry *lruEntry) {
	entry.prev = nil
	entry.next = c.head

	if c.head != nil {
		c.head.prev = entry
	}

	c.head = entry

	if c.tail == nil {
		c.tail = entry
	}
}

func (c *LRU) removeFromList(entry *lruEntry) {
	if entry.prev != nil {
		entry.prev.next = entry.next
	} else {
		c.head = entry.next
	}

	if entry.next != nil {
		entry.next.prev = entry.prev
	} else {
		c.tail = entry.prev
	}
}

// evictionSampleSize is the number of tail candidates sampled per eviction.
const evictionSampleSize = 5

// evictLowestCost removes the cheapest of the last evictionSampleSize entries.
func (c *LRU) evictLowestCost() {
	if c.tail == nil {
		return
	}

	var candidates [evictionSampleSize]*lruEntry

	count := 0
	entry := c.tail

	for entry != nil && count < evictionSampleSize {
		candidates[count] = entry
		count++
		entry = entry.prev
	}

	victim := candidates[0]
	lowestCost := victim.evictionCost()

	for i := 1; i < count; i++ {
		cost := candidates[i].evictionCost()
		if cost < lowestCost {
			lowestCost = cost
			victim = candidates[i]
		}
	}

	c.removeFromList(victim)
	delete(c.entries, victim.key)
	c.currentSize -= victim.size
}
