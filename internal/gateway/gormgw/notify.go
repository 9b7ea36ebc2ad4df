package gormgw

import (
	"context"
	"encoding/json"
	"regexp"

	"github.com/communekit/core/internal/gateway"
	"github.com/communekit/core/internal/models"
	redisc "github.com/communekit/core/internal/pkg/redis"
	"go.uber.org/zap"
)

var mentionPattern = regexp.MustCompile(`@([A-Za-z0-9_.-]+)`)

// fanout derives the notification rows a new comment produces: one reply
// notification for the parent author and one mention notification per
// @username match. The author never notifies themselves, and a recipient
// gets at most one row per comment (reply wins over mention).
func (g *Gateway) fanout(ctx context.Context, c *models.Comment, parent *models.Comment) []models.Notification {
	recipients := make(map[string]models.NotificationKind)

	if parent != nil && parent.AuthorID != c.AuthorID {
		recipients[parent.AuthorID] = models.NotificationReply
	}

	for _, match := range mentionPattern.FindAllStringSubmatch(c.Content, -1) {
		var user models.UserModel
		if err := g.db.WithContext(ctx).Select("id").Where("username = ?", match[1]).First(&user).Error; err != nil {
			continue
		}
		if user.ID == c.AuthorID {
			continue
		}
		if _, ok := recipients[user.ID]; !ok {
			recipients[user.ID] = models.NotificationMention
		}
	}

	out := make([]models.Notification, 0, len(recipients))
	for recipientID, kind := range recipients {
		out = append(out, models.Notification{
			RecipientID: recipientID,
			SenderID:    c.AuthorID,
			EventID:     c.EventID,
			Kind:        kind,
		})
	}
	return out
}

// publishInserts announces freshly created notification rows on the
// per-recipient pub/sub channels. Delivery is best effort; the feed's
// paging still converges without it.
func (g *Gateway) publishInserts(ctx context.Context, notifications []models.Notification) {
	if g.rc == nil {
		return
	}
	for _, n := range notifications {
		ev := gateway.PushEvent{
			NotificationID: n.ID,
			RecipientID:    n.RecipientID,
			EventID:        n.EventID,
		}
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		channel := redisc.NotifyChannel(n.RecipientID)
		if err := g.rc.Publish(ctx, channel, string(data)); err != nil {
			g.log.Warn("publish notification insert failed",
				zap.String("channel", channel), zap.Error(err))
		}
	}
}
