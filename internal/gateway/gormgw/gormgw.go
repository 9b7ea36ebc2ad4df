// Package gormgw implements the remote data gateway on MySQL via GORM,
// with push delivery over Redis pub/sub.
package gormgw

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/communekit/core/internal/gateway"
	"github.com/communekit/core/internal/models"
	redisc "github.com/communekit/core/internal/pkg/redis"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrNotFound is returned when the referenced record does not exist.
var ErrNotFound = errors.New("record not found")

var allowedOrderColumns = map[string]bool{
	"created_at": true,
	"updated_at": true,
}

// Gateway is the gorm+redis implementation of gateway.Gateway.
type Gateway struct {
	db  *gorm.DB
	rc  *redisc.Client
	log *zap.Logger
}

// New creates the gateway.
func New(db *gorm.DB, rc *redisc.Client, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{db: db, rc: rc, log: log}
}

var _ gateway.Gateway = (*Gateway)(nil)

func orderClause(orderBy string, dir gateway.Direction) string {
	if !allowedOrderColumns[orderBy] {
		orderBy = "created_at"
	}
	if dir != gateway.Asc {
		dir = gateway.Desc
	}
	return fmt.Sprintf("%s %s", orderBy, dir)
}

func (g *Gateway) ListComments(ctx context.Context, eventID string, opt gateway.ListCommentsOptions) ([]models.Comment, int64, error) {
	tx := g.db.WithContext(ctx).Model(&models.Comment{}).
		Where("event_id = ?", eventID)
	if opt.RootsOnly {
		tx = tx.Where("parent_id IS NULL")
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var comments []models.Comment
	err := tx.Order(orderClause(opt.OrderBy, opt.Direction)).
		Offset(opt.Offset).
		Limit(opt.Limit).
		Find(&comments).Error
	return comments, total, err
}

func (g *Gateway) ListReplies(ctx context.Context, parentID string, opt gateway.ListRepliesOptions) ([]models.Comment, error) {
	dir := opt.Direction
	if dir == "" {
		dir = gateway.Asc
	}
	var replies []models.Comment
	err := g.db.WithContext(ctx).
		Where("parent_id = ?", parentID).
		Order(orderClause(opt.OrderBy, dir)).
		Limit(opt.Limit).
		Find(&replies).Error
	return replies, err
}

func (g *Gateway) GetComment(ctx context.Context, id string) (*models.Comment, error) {
	var c models.Comment
	if err := g.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (g *Gateway) CreateComment(ctx context.Context, in gateway.CreateCommentInput) (*models.Comment, error) {
	c := models.Comment{
		EventID:         in.EventID,
		AuthorID:        in.AuthorID,
		Content:         in.Content,
		ParentID:        in.ParentID,
		QuotedText:      in.QuotedText,
		QuotedCommentID: in.QuotedCommentID,
	}

	var parent *models.Comment
	if in.ParentID != nil && strings.TrimSpace(*in.ParentID) != "" {
		p, err := g.GetComment(ctx, *in.ParentID)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, fmt.Errorf("parent comment: %w", ErrNotFound)
		}
		if p.EventID != in.EventID {
			return nil, fmt.Errorf("parent comment belongs to another event")
		}
		parent = p
	}

	notifications := g.fanout(ctx, &c, parent)
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&c).Error; err != nil {
			return err
		}
		for i := range notifications {
			notifications[i].CommentID = c.ID
			if err := tx.Create(&notifications[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	g.publishInserts(ctx, notifications)
	return &c, nil
}

func (g *Gateway) UpdateComment(ctx context.Context, id, content string) (*models.Comment, error) {
	var c models.Comment
	if err := g.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	now := g.db.NowFunc()
	updates := map[string]interface{}{
		"content":   content,
		"is_edited": true,
		"edited_at": &now,
	}
	if err := g.db.WithContext(ctx).Model(&c).Updates(updates).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (g *Gateway) DeleteComment(ctx context.Context, id string) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("parent_id = ?", id).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Comment{}, "id = ?", id).Error
	})
}

func (g *Gateway) ListNotifications(ctx context.Context, recipientID string, opt gateway.ListNotificationsOptions) ([]models.Notification, int64, error) {
	tx := g.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ?", recipientID)
	if opt.UnreadOnly {
		tx = tx.Where("is_read = ?", false)
	}
	if opt.Kind != nil {
		tx = tx.Where("kind = ?", *opt.Kind)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []models.Notification
	err := tx.Order("created_at DESC").
		Offset(opt.Offset).
		Limit(opt.Limit).
		Find(&items).Error
	return items, total, err
}

func (g *Gateway) GetNotification(ctx context.Context, id string) (*models.Notification, error) {
	var n models.Notification
	if err := g.db.WithContext(ctx).First(&n, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &n, nil
}

func (g *Gateway) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	var count int64
	err := g.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Count(&count).Error
	return count, err
}

func (g *Gateway) MarkNotificationRead(ctx context.Context, id string) error {
	// Idempotent: marking an already-read row is a successful no-op.
	return g.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ?", id).
		Update("is_read", true).Error
}

func (g *Gateway) MarkAllNotificationsRead(ctx context.Context, recipientID string) error {
	return g.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Update("is_read", true).Error
}

func (g *Gateway) DeleteNotification(ctx context.Context, id string) error {
	return g.db.WithContext(ctx).Delete(&models.Notification{}, "id = ?", id).Error
}
