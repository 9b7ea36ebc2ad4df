// Package thread maintains the client-facing comment tree for one event:
// a paginated root list plus reply lists indexed by parent id, loaded on
// demand. Mutations go through the remote gateway and are reconciled into
// the local collections by id.
package thread

import (
	"context"
	"sync"

	"github.com/communekit/core/internal/gateway"
	"github.com/communekit/core/internal/models"
	"github.com/communekit/core/internal/pkg/pagination"
	"github.com/communekit/core/internal/sync/reconcile"
	"go.uber.org/zap"
)

const (
	DefaultPageSize      = 20
	DefaultReplyPageSize = 50
)

// Config describes one cache instance.
type Config struct {
	EventID       string
	PageSize      int
	ReplyPageSize int
	OrderBy       string
	Direction     gateway.Direction
}

// Quote carries an optional quoted excerpt for a new comment.
type Quote struct {
	Text      string
	CommentID string
}

// Cache holds the comment thread state for one event. Methods are safe for
// concurrent use; remote calls run in the calling goroutine, so callers
// that must not block should invoke mutations from their own goroutine.
type Cache struct {
	mu  sync.Mutex
	gw  gateway.Gateway
	log *zap.Logger
	cfg Config

	roots   []models.Comment
	replies map[string][]models.Comment

	cursor  pagination.Cursor
	loading bool
	loadErr error

	loadingReplies reconcile.PendingSet
	creating       bool
	updating       reconcile.PendingSet
	deleting       reconcile.PendingSet

	closed bool
	ctx    context.Context
	cancel context.CancelFunc
}

func commentID(c models.Comment) string { return c.ID }

// New creates a cache for the given event.
func New(gw gateway.Gateway, log *zap.Logger, cfg Config) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.ReplyPageSize <= 0 {
		cfg.ReplyPageSize = DefaultReplyPageSize
	}
	if cfg.OrderBy == "" {
		cfg.OrderBy = "created_at"
	}
	if cfg.Direction == "" {
		cfg.Direction = gateway.Desc
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		gw:             gw,
		log:            log.With(zap.String("event_id", cfg.EventID)),
		cfg:            cfg,
		replies:        make(map[string][]models.Comment),
		cursor:         pagination.NewCursor(cfg.PageSize),
		loadingReplies: make(reconcile.PendingSet),
		updating:       make(reconcile.PendingSet),
		deleting:       make(reconcile.PendingSet),
		ctx:            ctx,
		cancel:         cancel,
	}
}

// LoadRoots fetches a page of root comments. With reset it replaces the
// list and rewinds the cursor; otherwise it appends the next page. A load
// already in flight suppresses the call. On failure prior data is kept and
// the error is retained for LoadErr.
func (c *Cache) LoadRoots(reset bool) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return reconcile.ErrClosed
	}
	if c.loading {
		c.mu.Unlock()
		return nil
	}
	if !reset && c.cursor.Page > 0 && !c.cursor.HasMore {
		c.mu.Unlock()
		return nil
	}
	c.loading = true
	cur := c.cursor
	if reset {
		cur.Reset()
	}
	opt := gateway.ListCommentsOptions{
		Limit:     cur.Size,
		Offset:    cur.NextOffset(),
		OrderBy:   c.cfg.OrderBy,
		Direction: c.cfg.Direction,
		RootsOnly: true,
	}
	c.mu.Unlock()

	items, total, err := c.gw.ListComments(c.ctx, c.cfg.EventID, opt)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		// Torn down while in flight; discard the late result.
		return reconcile.ErrClosed
	}
	c.loading = false
	if err != nil {
		c.loadErr = reconcile.Remote(err)
		c.log.Warn("load roots failed", zap.Error(err))
		return c.loadErr
	}
	c.loadErr = nil
	cur.Advance(len(items), total)
	c.cursor = cur
	if reset {
		c.roots = items
	} else {
		c.roots = reconcile.MergeAppend(c.roots, items, commentID)
	}
	return nil
}

// LoadReplies fetches the reply set for a parent. No-op when the set is
// already populated or a fetch is in flight; once populated, new replies
// are appended locally by Create rather than re-fetched.
func (c *Cache) LoadReplies(parentID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return reconcile.ErrClosed
	}
	if _, ok := c.replies[parentID]; ok {
		c.mu.Unlock()
		return nil
	}
	if !c.loadingReplies.TryAcquire(parentID) {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	items, err := c.gw.ListReplies(c.ctx, parentID, gateway.ListRepliesOptions{
		Limit:     c.cfg.ReplyPageSize,
		OrderBy:   "created_at",
		Direction: gateway.Asc,
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadingReplies.Release(parentID)
	if c.closed {
		return reconcile.ErrClosed
	}
	if err != nil {
		c.log.Warn("load replies failed", zap.String("parent_id", parentID), zap.Error(err))
		return reconcile.Remote(err)
	}
	if items == nil {
		items = []models.Comment{}
	}
	c.replies[parentID] = items
	return nil
}

// Create validates locally, performs the remote create and merges the
// canonical comment into the owning collection without duplication. Root
// inserts honor the configured sort direction.
func (c *Cache) Create(actor reconcile.Actor, content string, parentID *string, quote *Quote) (*models.Comment, error) {
	if !actor.CanCreate() {
		return nil, reconcile.ErrUnauthorized
	}
	if err := reconcile.ValidateContent(content); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, reconcile.ErrClosed
	}
	if c.creating {
		c.mu.Unlock()
		return nil, reconcile.ErrPending
	}
	c.creating = true
	c.mu.Unlock()

	in := gateway.CreateCommentInput{
		EventID:  c.cfg.EventID,
		AuthorID: actor.ID,
		Content:  content,
		ParentID: parentID,
	}
	if quote != nil {
		in.QuotedText = &quote.Text
		in.QuotedCommentID = &quote.CommentID
	}
	cm, err := c.gw.CreateComment(c.ctx, in)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, reconcile.ErrClosed
	}
	c.creating = false
	if err != nil {
		c.log.Warn("create comment failed", zap.Error(err))
		return nil, reconcile.Remote(err)
	}

	if cm.IsRoot() {
		if !reconcile.ContainsID(c.roots, cm.ID, commentID) {
			if c.cfg.Direction == gateway.Desc {
				c.roots = append([]models.Comment{*cm}, c.roots...)
			} else {
				c.roots = append(c.roots, *cm)
			}
			c.cursor.Total++
		}
	} else if list, ok := c.replies[*cm.ParentID]; ok {
		// Optimistic append only covers an already-loaded reply list;
		// otherwise the eventual LoadReplies fetch is the source of truth.
		if !reconcile.ContainsID(list, cm.ID, commentID) {
			c.replies[*cm.ParentID] = append(list, *cm)
		}
	}
	return cm, nil
}

// Update rewrites a comment's content. Moderator capability required.
func (c *Cache) Update(actor reconcile.Actor, id, content string) error {
	if !actor.CanModerate() {
		return reconcile.ErrUnauthorized
	}
	if err := reconcile.ValidateContent(content); err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return reconcile.ErrClosed
	}
	if c.deleting.Has(id) || !c.updating.TryAcquire(id) {
		c.mu.Unlock()
		return reconcile.ErrPending
	}
	c.mu.Unlock()

	cm, err := c.gw.UpdateComment(c.ctx, id, content)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.updating.Release(id)
	if c.closed {
		return reconcile.ErrClosed
	}
	if err != nil {
		c.log.Warn("update comment failed", zap.String("id", id), zap.Error(err))
		return reconcile.Remote(err)
	}
	// Last remote response wins: if a delete confirmed while the update was
	// in flight the id is gone and the result is dropped.
	c.replaceLocked(*cm)
	return nil
}

// Delete removes a comment everywhere it is held. Moderator capability
// required.
func (c *Cache) Delete(actor reconcile.Actor, id string) error {
	if !actor.CanModerate() {
		return reconcile.ErrUnauthorized
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return reconcile.ErrClosed
	}
	if !c.deleting.TryAcquire(id) {
		c.mu.Unlock()
		return reconcile.ErrPending
	}
	c.mu.Unlock()

	err := c.gw.DeleteComment(c.ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleting.Release(id)
	if c.closed {
		return reconcile.ErrClosed
	}
	if err != nil {
		c.log.Warn("delete comment failed", zap.String("id", id), zap.Error(err))
		return reconcile.Remote(err)
	}
	c.removeLocked(id)
	return nil
}

func (c *Cache) replaceLocked(cm models.Comment) {
	if idx := reconcile.IndexOf(c.roots, cm.ID, commentID); idx >= 0 {
		c.roots[idx] = cm
		return
	}
	for parentID, list := range c.replies {
		if idx := reconcile.IndexOf(list, cm.ID, commentID); idx >= 0 {
			c.replies[parentID][idx] = cm
			return
		}
	}
}

func (c *Cache) removeLocked(id string) {
	if next, ok := reconcile.RemoveID(c.roots, id, commentID); ok {
		c.roots = next
		if c.cursor.Total > 0 {
			c.cursor.Total--
		}
	} else {
		for parentID, list := range c.replies {
			if next, ok := reconcile.RemoveID(list, id, commentID); ok {
				c.replies[parentID] = next
				break
			}
		}
	}
	// Drop any reply list the comment owned.
	delete(c.replies, id)
}

// Get looks up a comment by id across roots and loaded reply lists.
func (c *Cache) Get(id string) *models.Comment {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx := reconcile.IndexOf(c.roots, id, commentID); idx >= 0 {
		cm := c.roots[idx]
		return &cm
	}
	for _, list := range c.replies {
		if idx := reconcile.IndexOf(list, id, commentID); idx >= 0 {
			cm := list[idx]
			return &cm
		}
	}
	return nil
}

// Roots returns a snapshot of the loaded root comments.
func (c *Cache) Roots() []models.Comment {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Comment, len(c.roots))
	copy(out, c.roots)
	return out
}

// Replies returns a snapshot of the loaded replies for a parent, or an
// empty slice when the set has not been loaded.
func (c *Cache) Replies(parentID string) []models.Comment {
	c.mu.Lock()
	defer c.mu.Unlock()
	list, ok := c.replies[parentID]
	if !ok {
		return []models.Comment{}
	}
	out := make([]models.Comment, len(list))
	copy(out, list)
	return out
}

// HasMore reports whether another root page is available.
func (c *Cache) HasMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor.HasMore
}

// Total is the authoritative root-comment count from the last load,
// adjusted by local creates and deletes.
func (c *Cache) Total() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor.Total
}

// Loading reports whether a root page load is in flight.
func (c *Cache) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// LoadErr returns the error of the last failed load, cleared on success.
func (c *Cache) LoadErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadErr
}

// Creating reports whether a create is in flight.
func (c *Cache) Creating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creating
}

// Updating reports whether an update for the id is in flight.
func (c *Cache) Updating(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updating.Has(id)
}

// Deleting reports whether a delete for the id is in flight.
func (c *Cache) Deleting(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deleting.Has(id)
}

// LoadingReplies reports whether a reply fetch for the parent is in flight.
func (c *Cache) LoadingReplies(parentID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadingReplies.Has(parentID)
}

// EventID returns the owning discussion context.
func (c *Cache) EventID() string { return c.cfg.EventID }

// Close tears the cache down: in-flight operations complete on the network
// side but their results are discarded, and no further transitions apply.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
}
