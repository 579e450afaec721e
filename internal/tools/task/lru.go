package task

import (
	"container/list"

	"github.com/strandworks/strand/pkg/models"
)

// sessionCache is a bounded least-recently-used cache of child sessions so
// long-running hosts do not leak memory. It is mutated only by the owning
// spawner's thread of control.
type sessionCache struct {
	capacity int
	order    *list.List
	items    map[string]*list.Element
}

type cacheEntry struct {
	id      string
	session *models.Session
}

func newSessionCache(capacity int) *sessionCache {
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	return &sessionCache{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[string]*list.Element),
	}
}

// get returns the cached session and marks it most recently used.
func (c *sessionCache) get(id string) (*models.Session, bool) {
	el, ok := c.items[id]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).session, true
}

// put inserts a session, evicting the least recently used entry when full.
func (c *sessionCache) put(id string, s *models.Session) {
	if el, ok := c.items[id]; ok {
		el.Value.(*cacheEntry).session = s
		c.order.MoveToFront(el)
		return
	}
	c.items[id] = c.order.PushFront(&cacheEntry{id: id, session: s})
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).id)
	}
}

func (c *sessionCache) len() int { return c.order.Len() }
