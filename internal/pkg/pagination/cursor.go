package pagination

// Cursor tracks the paging position of an incrementally loaded collection.
// It is the in-memory counterpart of Query: the caches advance it page by
// page and reset it when a collection is reloaded from scratch.
type Cursor struct {
	Page    int
	Size    int
	Total   int64
	HasMore bool
}

// NewCursor returns a cursor positioned before the first page.
func NewCursor(size int) Cursor {
	if size < 1 {
		size = DefaultSize
	}
	if size > MaxSize {
		size = MaxSize
	}
	return Cursor{Page: 0, Size: size}
}

// NextOffset is the offset to request for the next page.
func (c *Cursor) NextOffset() int {
	return c.Page * c.Size
}

// Advance records a fetched page and the authoritative total reported by the
// server, recomputing HasMore.
func (c *Cursor) Advance(fetched int, total int64) {
	c.Page++
	c.Total = total
	c.HasMore = int64(c.Page*c.Size) < total && fetched > 0
}

// Reset rewinds the cursor before the first page.
func (c *Cursor) Reset() {
	c.Page = 0
	c.Total = 0
	c.HasMore = false
}
