// Package feed maintains the paginated notification list for one recipient,
// keeps the unread counter consistent under optimistic reads and deletes,
// and merges realtime push events idempotently by id.
package feed

import (
	"context"
	"sync"
	"time"

	"github.com/communekit/core/internal/gateway"
	"github.com/communekit/core/internal/models"
	"github.com/communekit/core/internal/pkg/pagination"
	"github.com/communekit/core/internal/sync/reconcile"
	"go.uber.org/zap"
)

const (
	DefaultPageSize  = 20
	pushDerefTimeout = 10 * time.Second
)

func notificationID(n models.Notification) string { return n.ID }

// Feed holds the notification feed state for one recipient. It owns at most
// one live push subscription; establishing a new one tears down the prior.
type Feed struct {
	mu          sync.Mutex
	gw          gateway.Gateway
	log         *zap.Logger
	recipientID string
	pageSize    int

	items   []models.Notification
	unread  int64
	cursor  pagination.Cursor
	loading bool
	loadErr error

	markingAll bool
	marking    reconcile.PendingSet
	deleting   reconcile.PendingSet

	// seen tracks notification ids that already fired the insert callback,
	// so a duplicate push can never re-toast.
	seen     map[string]struct{}
	onInsert func(models.Notification)
	sub      gateway.Subscription

	closed bool
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a feed for the given recipient.
func New(gw gateway.Gateway, log *zap.Logger, recipientID string, pageSize int) *Feed {
	if log == nil {
		log = zap.NewNop()
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Feed{
		gw:          gw,
		log:         log.With(zap.String("recipient_id", recipientID)),
		recipientID: recipientID,
		pageSize:    pageSize,
		cursor:      pagination.NewCursor(pageSize),
		marking:     make(reconcile.PendingSet),
		deleting:    make(reconcile.PendingSet),
		seen:        make(map[string]struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Load fetches a notification page (descending created_at). With reset it
// replaces the list and rewinds the cursor; otherwise it appends. The total
// comes from the server response; the unread counter is never recomputed
// from the loaded subset.
func (f *Feed) Load(reset bool) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return reconcile.ErrClosed
	}
	if f.loading {
		f.mu.Unlock()
		return nil
	}
	if !reset && f.cursor.Page > 0 && !f.cursor.HasMore {
		f.mu.Unlock()
		return nil
	}
	f.loading = true
	cur := f.cursor
	if reset {
		cur.Reset()
	}
	opt := gateway.ListNotificationsOptions{
		Limit:  cur.Size,
		Offset: cur.NextOffset(),
	}
	f.mu.Unlock()

	items, total, err := f.gw.ListNotifications(f.ctx, f.recipientID, opt)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return reconcile.ErrClosed
	}
	f.loading = false
	if err != nil {
		f.loadErr = reconcile.Remote(err)
		f.log.Warn("load notifications failed", zap.Error(err))
		return f.loadErr
	}
	f.loadErr = nil
	cur.Advance(len(items), total)
	f.cursor = cur
	if reset {
		f.items = items
	} else {
		f.items = reconcile.MergeAppend(f.items, items, notificationID)
	}
	return nil
}

// RefreshUnread queries the authoritative unread count; it does not require
// the feed pages to be loaded.
func (f *Feed) RefreshUnread() error {
	count, err := f.gw.CountUnread(f.ctx, f.recipientID)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return reconcile.ErrClosed
	}
	if err != nil {
		return reconcile.Remote(err)
	}
	f.unread = count
	return nil
}

// MarkRead optimistically flips the item read and decrements the unread
// counter, then issues the remote call. On remote failure the optimistic
// flip is kept: the remote mark is idempotent and safe to retry, so the UI
// only resurfaces the error. Marking an already-read item is a no-op.
func (f *Feed) MarkRead(id string) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return reconcile.ErrClosed
	}
	idx := reconcile.IndexOf(f.items, id, notificationID)
	if idx < 0 {
		f.mu.Unlock()
		return reconcile.ErrNotFound
	}
	if f.items[idx].IsRead || f.marking.Has(id) {
		f.mu.Unlock()
		return nil
	}
	f.marking.TryAcquire(id)
	f.items[idx].IsRead = true
	if f.unread > 0 {
		f.unread--
	}
	f.mu.Unlock()

	err := f.gw.MarkNotificationRead(f.ctx, id)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.marking.Release(id)
	if f.closed {
		return reconcile.ErrClosed
	}
	if err != nil {
		f.log.Warn("mark read failed", zap.String("id", id), zap.Error(err))
		return reconcile.Remote(err)
	}
	return nil
}

// MarkAllRead flips every loaded item, zeroes the unread counter and issues
// a single bulk remote call. Unlike MarkRead, a remote failure rolls the
// optimistic state back.
func (f *Feed) MarkAllRead() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return reconcile.ErrClosed
	}
	if f.markingAll {
		f.mu.Unlock()
		return nil
	}
	f.markingAll = true
	flipped := make([]string, 0, len(f.items))
	for i := range f.items {
		if !f.items[i].IsRead {
			f.items[i].IsRead = true
			flipped = append(flipped, f.items[i].ID)
		}
	}
	f.unread = 0
	f.mu.Unlock()

	err := f.gw.MarkAllNotificationsRead(f.ctx, f.recipientID)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.markingAll = false
	if f.closed {
		return reconcile.ErrClosed
	}
	if err != nil {
		for _, id := range flipped {
			if idx := reconcile.IndexOf(f.items, id, notificationID); idx >= 0 {
				f.items[idx].IsRead = false
				f.unread++
			}
		}
		f.log.Warn("mark all read failed", zap.Error(err))
		return reconcile.Remote(err)
	}
	return nil
}

// Delete removes a notification remotely, then locally; the unread counter
// only moves when the removed item was unread.
func (f *Feed) Delete(id string) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return reconcile.ErrClosed
	}
	if !f.deleting.TryAcquire(id) {
		f.mu.Unlock()
		return reconcile.ErrPending
	}
	f.mu.Unlock()

	err := f.gw.DeleteNotification(f.ctx, id)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleting.Release(id)
	if f.closed {
		return reconcile.ErrClosed
	}
	if err != nil {
		f.log.Warn("delete notification failed", zap.String("id", id), zap.Error(err))
		return reconcile.Remote(err)
	}
	idx := reconcile.IndexOf(f.items, id, notificationID)
	if idx >= 0 {
		wasUnread := !f.items[idx].IsRead
		f.items = append(f.items[:idx], f.items[idx+1:]...)
		if wasUnread && f.unread > 0 {
			f.unread--
		}
		if f.cursor.Total > 0 {
			f.cursor.Total--
		}
	}
	return nil
}

// Subscribe establishes the push subscription, tearing down any prior one
// first so the recipient never holds two live subscriptions. onInsert fires
// at most once per distinct notification id.
func (f *Feed) Subscribe(onInsert func(models.Notification)) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return reconcile.ErrClosed
	}
	prev := f.sub
	f.sub = nil
	f.onInsert = onInsert
	f.mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}

	sub, err := f.gw.Subscribe(f.recipientID, f.ingestPush, func(err error) {
		f.log.Warn("push subscription error", zap.Error(err))
	})
	if err != nil {
		return reconcile.Remote(err)
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		_ = sub.Close()
		return reconcile.ErrClosed
	}
	old := f.sub
	f.sub = sub
	f.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return nil
}

// ingestPush dereferences the full record for a push event and merges it.
// An unresolvable record (already deleted server-side) is dropped silently.
func (f *Feed) ingestPush(ev gateway.PushEvent) {
	ctx, cancel := context.WithTimeout(f.ctx, pushDerefTimeout)
	n, err := f.gw.GetNotification(ctx, ev.NotificationID)
	cancel()
	if err != nil || n == nil {
		f.log.Debug("push event dropped", zap.String("id", ev.NotificationID), zap.Error(err))
		return
	}
	if n.RecipientID != f.recipientID {
		return
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	if reconcile.ContainsID(f.items, n.ID, notificationID) {
		// Already merged via a racing Load; suppress a later toast too.
		f.seen[n.ID] = struct{}{}
		f.mu.Unlock()
		return
	}
	f.items = append([]models.Notification{*n}, f.items...)
	if !n.IsRead {
		f.unread++
	}
	f.cursor.Total++

	var cb func(models.Notification)
	if _, dup := f.seen[n.ID]; !dup {
		f.seen[n.ID] = struct{}{}
		cb = f.onInsert
	}
	f.mu.Unlock()

	if cb != nil {
		cb(*n)
	}
}

// Items returns a snapshot of the loaded notifications.
func (f *Feed) Items() []models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Notification, len(f.items))
	copy(out, f.items)
	return out
}

// Unread returns the tracked unread count.
func (f *Feed) Unread() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unread
}

// Total is the authoritative feed size from the last load, adjusted by
// deletes and push inserts.
func (f *Feed) Total() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cursor.Total
}

// HasMore reports whether another page is available.
func (f *Feed) HasMore() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cursor.HasMore
}

// Loading reports whether a page load is in flight.
func (f *Feed) Loading() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loading
}

// LoadErr returns the error of the last failed load, cleared on success.
func (f *Feed) LoadErr() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadErr
}

// Marking reports whether a read-mark for the id is in flight.
func (f *Feed) Marking(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.marking.Has(id)
}

// Deleting reports whether a delete for the id is in flight.
func (f *Feed) Deleting(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deleting.Has(id)
}

// RecipientID returns the feed owner.
func (f *Feed) RecipientID() string { return f.recipientID }

// Close tears the feed down: the subscription is released and results of
// in-flight operations are discarded.
func (f *Feed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.cancel()
	sub := f.sub
	f.sub = nil
	f.mu.Unlock()
	if sub != nil {
		_ = sub.Close()
	}
}
