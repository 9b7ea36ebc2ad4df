package app

import (
	"context"
	"time"

	"github.com/communekit/core/internal/models"
	pkgcron "github.com/communekit/core/internal/pkg/cron"
	sessionpkg "github.com/communekit/core/internal/pkg/session"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	sessionPurgeAge      = 7 * 24 * time.Hour
	notificationPurgeAge = 90 * 24 * time.Hour
)

func registerCronJobs(sched *pkgcron.Scheduler, db *gorm.DB, logger *zap.Logger) {
	sched.Register(pkgcron.Job{
		Name:        "purge_expired_sessions",
		Description: "Delete sessions that expired more than a week ago",
		Interval:    24 * time.Hour,
		Fn: func(ctx context.Context) error {
			err := sessionpkg.PurgeExpired(db.WithContext(ctx), sessionPurgeAge)
			if err != nil {
				logger.Warn("session purge failed", zap.Error(err))
			}
			return err
		},
	})

	sched.Register(pkgcron.Job{
		Name:        "purge_read_notifications",
		Description: "Delete read notifications older than 90 days",
		Interval:    24 * time.Hour,
		Fn: func(ctx context.Context) error {
			cutoff := time.Now().Add(-notificationPurgeAge)
			err := db.WithContext(ctx).Unscoped().
				Where("is_read = ? AND created_at < ?", true, cutoff).
				Delete(&models.Notification{}).Error
			if err != nil {
				logger.Warn("notification purge failed", zap.Error(err))
			}
			return err
		},
	})
}
