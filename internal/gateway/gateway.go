// Package gateway defines the remote data contract consumed by the sync
// caches: CRUD and query operations for comments and notifications, plus a
// subscribe primitive delivering notification-insert push events.
package gateway

import (
	"context"

	"github.com/communekit/core/internal/models"
)

// Direction is a sort direction for listed collections.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// ListCommentsOptions controls a root-comment page fetch.
type ListCommentsOptions struct {
	Limit     int
	Offset    int
	OrderBy   string // column name, defaults to created_at
	Direction Direction
	RootsOnly bool
}

// ListRepliesOptions controls a reply fetch for one parent.
type ListRepliesOptions struct {
	Limit     int
	OrderBy   string
	Direction Direction
}

// ListNotificationsOptions controls a notification page fetch.
type ListNotificationsOptions struct {
	Limit      int
	Offset     int
	UnreadOnly bool
	Kind       *models.NotificationKind
}

// CreateCommentInput is the payload for a comment create.
type CreateCommentInput struct {
	EventID         string
	AuthorID        string
	Content         string
	ParentID        *string
	QuotedText      *string
	QuotedCommentID *string
}

// PushEvent is the possibly-partial payload delivered by the realtime
// channel when a notification row is inserted. Only the ID is guaranteed;
// consumers must dereference the full record before merging.
type PushEvent struct {
	NotificationID string `json:"notification_id"`
	RecipientID    string `json:"recipient_id,omitempty"`
	EventID        string `json:"event_id,omitempty"`
}

// Subscription is a live push subscription handle.
type Subscription interface {
	Close() error
}

// Gateway is the remote system of record for comments and notifications.
// Implementations must treat every call as cancellable via ctx.
type Gateway interface {
	ListComments(ctx context.Context, eventID string, opt ListCommentsOptions) ([]models.Comment, int64, error)
	ListReplies(ctx context.Context, parentID string, opt ListRepliesOptions) ([]models.Comment, error)
	GetComment(ctx context.Context, id string) (*models.Comment, error)
	CreateComment(ctx context.Context, in CreateCommentInput) (*models.Comment, error)
	UpdateComment(ctx context.Context, id, content string) (*models.Comment, error)
	DeleteComment(ctx context.Context, id string) error

	ListNotifications(ctx context.Context, recipientID string, opt ListNotificationsOptions) ([]models.Notification, int64, error)
	GetNotification(ctx context.Context, id string) (*models.Notification, error)
	CountUnread(ctx context.Context, recipientID string) (int64, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context, recipientID string) error
	DeleteNotification(ctx context.Context, id string) error

	// Subscribe delivers notification inserts for one recipient until the
	// returned handle is closed. Delivery is at-least-once and may be
	// out of order; consumers must merge idempotently.
	Subscribe(recipientID string, onInsert func(PushEvent), onError func(error)) (Subscription, error)
}
