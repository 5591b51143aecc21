package storage

import "container/list"

// pageCache is a bounded, single-threaded LRU cache of decoded pages,
// adapted from the teacher's buffer_pool.go. The teacher's version
// tracks per-page pin counts so concurrent readers can't evict a page
// out from under each other; this engine's cooperative single-writer
// model (spec.md §5) has no concurrent readers to pin against, so the
// pin/unpin bookkeeping is dropped and eviction is a plain LRU.
type pageCache struct {
	capacity int
	ll       *list.List
	items    map[uint32]*list.Element
}

type cacheEntry struct {
	pageNo uint32
	page   *Page
}

func newPageCache(capacity int) *pageCache {
	return &pageCache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[uint32]*list.Element),
	}
}

func (c *pageCache) get(pageNo uint32) (*Page, bool) {
	el, ok := c.items[pageNo]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*cacheEntry).page, true
}

func (c *pageCache) put(pageNo uint32, p *Page) {
	if el, ok := c.items[pageNo]; ok {
		el.Value.(*cacheEntry).page = p
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(&cacheEntry{pageNo: pageNo, page: p})
	c.items[pageNo] = el

	if c.capacity > 0 && c.ll.Len() > c.capacity {
		back := c.ll.Back()
		if back != nil {
			c.ll.Remove(back)
			delete(c.items, back.Value.(*cacheEntry).pageNo)
		}
	}
}
