package session

import (
	"strings"
	"time"

	"github.com/communekit/core/internal/models"
	jwtpkg "github.com/communekit/core/internal/pkg/jwt"
	"gorm.io/gorm"
)

const DefaultTTL = 30 * 24 * time.Hour

// Issue creates a DB session and signs a JWT bound to that session.
func Issue(db *gorm.DB, userID, ip, ua string, ttl time.Duration) (string, *models.UserSession, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now := time.Now()
	s := &models.UserSession{
		UserID:    userID,
		IP:        strings.TrimSpace(ip),
		UA:        strings.TrimSpace(ua),
		ExpiresAt: now.Add(ttl),
	}
	if err := db.Create(s).Error; err != nil {
		return "", nil, err
	}

	token, err := jwtpkg.SignWithOptions(userID, ttl, jwtpkg.SignOptions{SessionID: s.ID})
	if err != nil {
		_ = db.Delete(s).Error
		return "", nil, err
	}
	return token, s, nil
}

// IsActive reports whether the session is still valid for the user.
func IsActive(db *gorm.DB, userID, sessionID string) (bool, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		// Legacy token without sid.
		return true, nil
	}

	var count int64
	err := db.Model(&models.UserSession{}).
		Where("id = ? AND user_id = ? AND revoked_at IS NULL AND expires_at > ?", sessionID, userID, time.Now()).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Touch bumps the session's updated_at for device-management displays.
func Touch(db *gorm.DB, userID, sessionID string) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return
	}
	_ = db.Model(&models.UserSession{}).
		Where("id = ? AND user_id = ? AND revoked_at IS NULL AND expires_at > ?", sessionID, userID, time.Now()).
		Update("updated_at", time.Now()).Error
}

// Revoke marks a session revoked.
func Revoke(db *gorm.DB, userID, sessionID string) error {
	now := time.Now()
	res := db.Model(&models.UserSession{}).
		Where("id = ? AND user_id = ? AND revoked_at IS NULL", sessionID, userID).
		Update("revoked_at", &now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// PurgeExpired deletes sessions that expired before the cutoff.
func PurgeExpired(db *gorm.DB, olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)
	return db.Unscoped().
		Where("expires_at < ?", cutoff).
		Delete(&models.UserSession{}).Error
}
