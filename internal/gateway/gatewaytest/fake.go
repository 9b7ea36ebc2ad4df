// Package gatewaytest provides an in-memory Gateway for cache tests, with
// call counting, per-method failure injection and a gate hook to hold calls
// in flight.
package gatewaytest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/communekit/core/internal/gateway"
	"github.com/communekit/core/internal/models"
	"github.com/google/uuid"
)

// Fake is an in-memory gateway.Gateway.
type Fake struct {
	mu            sync.Mutex
	comments      []models.Comment
	notifications []models.Notification
	calls         map[string]int
	failNext      map[string]error
	gate          func(method string)
	subs          map[string][]*fakeSub
	clock         time.Time
}

// NewFake creates an empty fake gateway.
func NewFake() *Fake {
	return &Fake{
		calls:    make(map[string]int),
		failNext: make(map[string]error),
		subs:     make(map[string][]*fakeSub),
		clock:    time.Now(),
	}
}

// SetGate installs a hook invoked at the start of every gateway call; tests
// use it to block a call in flight.
func (f *Fake) SetGate(fn func(method string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = fn
}

// FailNext makes the next call to the named method return err.
func (f *Fake) FailNext(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext[method] = err
}

// Calls returns how many times the named method has been invoked.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// tick returns a strictly increasing timestamp so creation order is stable.
func (f *Fake) tick() time.Time {
	f.clock = f.clock.Add(time.Millisecond)
	return f.clock
}

// SeedComment stores a comment, assigning id/timestamps when missing.
func (f *Fake) SeedComment(c models.Comment) models.Comment {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = f.tick()
		c.UpdatedAt = c.CreatedAt
	}
	f.comments = append(f.comments, c)
	return c
}

// SeedNotification stores a notification, assigning id/timestamps when missing.
func (f *Fake) SeedNotification(n models.Notification) models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = f.tick()
		n.UpdatedAt = n.CreatedAt
	}
	f.notifications = append(f.notifications, n)
	return n
}

func (f *Fake) before(method string) error {
	f.mu.Lock()
	f.calls[method]++
	gate := f.gate
	err, failing := f.failNext[method]
	if failing {
		delete(f.failNext, method)
	}
	f.mu.Unlock()

	if gate != nil {
		gate(method)
	}
	if failing {
		return err
	}
	return nil
}

func (f *Fake) ListComments(ctx context.Context, eventID string, opt gateway.ListCommentsOptions) ([]models.Comment, int64, error) {
	if err := f.before("ListComments"); err != nil {
		return nil, 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	matched := make([]models.Comment, 0)
	for _, c := range f.comments {
		if c.EventID != eventID {
			continue
		}
		if opt.RootsOnly && !c.IsRoot() {
			continue
		}
		matched = append(matched, c)
	}
	desc := opt.Direction == gateway.Desc
	sort.SliceStable(matched, func(i, j int) bool {
		if desc {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	total := int64(len(matched))
	return page(matched, opt.Offset, opt.Limit), total, nil
}

func (f *Fake) ListReplies(ctx context.Context, parentID string, opt gateway.ListRepliesOptions) ([]models.Comment, error) {
	if err := f.before("ListReplies"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	matched := make([]models.Comment, 0)
	for _, c := range f.comments {
		if c.ParentID != nil && *c.ParentID == parentID {
			matched = append(matched, c)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	return page(matched, 0, opt.Limit), nil
}

func (f *Fake) GetComment(ctx context.Context, id string) (*models.Comment, error) {
	if err := f.before("GetComment"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.comments {
		if c.ID == id {
			out := c
			return &out, nil
		}
	}
	return nil, nil
}

func (f *Fake) CreateComment(ctx context.Context, in gateway.CreateCommentInput) (*models.Comment, error) {
	if err := f.before("CreateComment"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.tick()
	c := models.Comment{
		EventID:         in.EventID,
		AuthorID:        in.AuthorID,
		Content:         in.Content,
		ParentID:        in.ParentID,
		QuotedText:      in.QuotedText,
		QuotedCommentID: in.QuotedCommentID,
	}
	c.ID = uuid.New().String()
	c.CreatedAt = now
	c.UpdatedAt = now
	f.comments = append(f.comments, c)
	out := c
	return &out, nil
}

func (f *Fake) UpdateComment(ctx context.Context, id, content string) (*models.Comment, error) {
	if err := f.before("UpdateComment"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.comments {
		if f.comments[i].ID == id {
			now := f.tick()
			f.comments[i].Content = content
			f.comments[i].IsEdited = true
			f.comments[i].EditedAt = &now
			f.comments[i].UpdatedAt = now
			out := f.comments[i]
			return &out, nil
		}
	}
	return nil, errors.New("comment not found")
}

func (f *Fake) DeleteComment(ctx context.Context, id string) error {
	if err := f.before("DeleteComment"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.comments[:0]
	for _, c := range f.comments {
		if c.ID == id || (c.ParentID != nil && *c.ParentID == id) {
			continue
		}
		kept = append(kept, c)
	}
	f.comments = kept
	return nil
}

func (f *Fake) ListNotifications(ctx context.Context, recipientID string, opt gateway.ListNotificationsOptions) ([]models.Notification, int64, error) {
	if err := f.before("ListNotifications"); err != nil {
		return nil, 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	matched := make([]models.Notification, 0)
	for _, n := range f.notifications {
		if n.RecipientID != recipientID {
			continue
		}
		if opt.UnreadOnly && n.IsRead {
			continue
		}
		if opt.Kind != nil && n.Kind != *opt.Kind {
			continue
		}
		matched = append(matched, n)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := int64(len(matched))
	return page(matched, opt.Offset, opt.Limit), total, nil
}

func (f *Fake) GetNotification(ctx context.Context, id string) (*models.Notification, error) {
	if err := f.before("GetNotification"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.notifications {
		if n.ID == id {
			out := n
			return &out, nil
		}
	}
	return nil, nil
}

func (f *Fake) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	if err := f.before("CountUnread"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, n := range f.notifications {
		if n.RecipientID == recipientID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (f *Fake) MarkNotificationRead(ctx context.Context, id string) error {
	if err := f.before("MarkNotificationRead"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.notifications {
		if f.notifications[i].ID == id {
			f.notifications[i].IsRead = true
			return nil
		}
	}
	return errors.New("notification not found")
}

func (f *Fake) MarkAllNotificationsRead(ctx context.Context, recipientID string) error {
	if err := f.before("MarkAllNotificationsRead"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.notifications {
		if f.notifications[i].RecipientID == recipientID {
			f.notifications[i].IsRead = true
		}
	}
	return nil
}

func (f *Fake) DeleteNotification(ctx context.Context, id string) error {
	if err := f.before("DeleteNotification"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.notifications[:0]
	for _, n := range f.notifications {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	f.notifications = kept
	return nil
}

type fakeSub struct {
	fake        *Fake
	recipientID string
	onInsert    func(gateway.PushEvent)
	closed      bool
}

func (s *fakeSub) Close() error {
	s.fake.mu.Lock()
	defer s.fake.mu.Unlock()
	s.closed = true
	return nil
}

func (f *Fake) Subscribe(recipientID string, onInsert func(gateway.PushEvent), onError func(error)) (gateway.Subscription, error) {
	if err := f.before("Subscribe"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &fakeSub{fake: f, recipientID: recipientID, onInsert: onInsert}
	f.subs[recipientID] = append(f.subs[recipientID], s)
	return s, nil
}

// Push delivers a push event to every open subscription for the recipient,
// synchronously.
func (f *Fake) Push(recipientID string, ev gateway.PushEvent) {
	f.mu.Lock()
	handlers := make([]func(gateway.PushEvent), 0)
	for _, s := range f.subs[recipientID] {
		if !s.closed {
			handlers = append(handlers, s.onInsert)
		}
	}
	f.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

// OpenSubs counts live subscriptions for the recipient.
func (f *Fake) OpenSubs(recipientID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	open := 0
	for _, s := range f.subs[recipientID] {
		if !s.closed {
			open++
		}
	}
	return open
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	out := make([]T, len(items))
	copy(out, items)
	return out
}
