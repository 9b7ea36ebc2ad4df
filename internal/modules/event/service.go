// Package event manages the community events comment threads attach to.
package event

import (
	"errors"
	"strings"

	"github.com/communekit/core/internal/models"
	"github.com/communekit/core/internal/pkg/pagination"
	"github.com/communekit/core/internal/pkg/response"
	"gorm.io/gorm"
)

var ErrSlugTaken = errors.New("slug already taken")

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

func (s *Service) List(q pagination.Query) ([]models.Event, response.Pagination, error) {
	var events []models.Event
	pag, err := pagination.Paginate(
		s.db.Model(&models.Event{}).Order("start_at DESC, created_at DESC"),
		q, &events)
	return events, pag, err
}

// Get resolves an event by id or slug; returns nil when missing.
func (s *Service) Get(idOrSlug string) (*models.Event, error) {
	var ev models.Event
	err := s.db.Where("id = ? OR slug = ?", idOrSlug, idOrSlug).First(&ev).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ev, nil
}

func (s *Service) Create(ev *models.Event) error {
	ev.Slug = strings.TrimSpace(ev.Slug)
	if ev.Slug == "" || strings.TrimSpace(ev.Title) == "" {
		return errors.New("title and slug are required")
	}

	var count int64
	if err := s.db.Model(&models.Event{}).
		Where("slug = ?", ev.Slug).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrSlugTaken
	}
	return s.db.Create(ev).Error
}

func (s *Service) Update(id string, updates map[string]interface{}) (*models.Event, error) {
	var ev models.Event
	if err := s.db.First(&ev, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if err := s.db.Model(&ev).Updates(updates).Error; err != nil {
		return nil, err
	}
	return &ev, nil
}

func (s *Service) Delete(id string) error {
	return s.db.Delete(&models.Event{}, "id = ?", id).Error
}
