// Package user handles registration, login and session management.
package user

import (
	"errors"
	"strings"
	"time"

	"github.com/communekit/core/internal/models"
	sessionpkg "github.com/communekit/core/internal/pkg/session"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Register creates a user. The very first account becomes a moderator so a
// fresh deployment always has someone who can moderate.
func (s *Service) Register(username, name, password, mail string) (*models.UserModel, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, errors.New("username and password are required")
	}

	var count int64
	if err := s.db.Model(&models.UserModel{}).
		Where("username = ?", username).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	role := models.RoleMember
	var total int64
	if err := s.db.Model(&models.UserModel{}).Count(&total).Error; err != nil {
		return nil, err
	}
	if total == 0 {
		role = models.RoleModerator
	}

	u := &models.UserModel{
		Username: username,
		Name:     strings.TrimSpace(name),
		Password: string(hash),
		Mail:     strings.TrimSpace(mail),
		Role:     role,
	}
	if u.Name == "" {
		u.Name = username
	}
	if err := s.db.Create(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

// Login verifies credentials and issues a session-bound JWT.
func (s *Service) Login(username, password, ip, ua string) (string, *models.UserModel, error) {
	var u models.UserModel
	err := s.db.Where("username = ?", strings.TrimSpace(username)).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, _, err := sessionpkg.Issue(s.db, u.ID, ip, ua, sessionpkg.DefaultTTL)
	if err != nil {
		return "", nil, err
	}

	now := time.Now()
	_ = s.db.Model(&u).Updates(map[string]interface{}{
		"last_login_time": &now,
		"last_login_ip":   ip,
	}).Error

	return token, &u, nil
}

// Logout revokes the session the token was bound to.
func (s *Service) Logout(userID, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	err := sessionpkg.Revoke(s.db, userID, sessionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}

// GetByID fetches a user; returns nil when missing.
func (s *Service) GetByID(id string) (*models.UserModel, error) {
	var u models.UserModel
	if err := s.db.First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// GetByUsername fetches a user by username; returns nil when missing.
func (s *Service) GetByUsername(username string) (*models.UserModel, error) {
	var u models.UserModel
	if err := s.db.Where("username = ?", username).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}
