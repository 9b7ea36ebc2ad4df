package event

import (
	"errors"
	"time"

	"github.com/communekit/core/internal/middleware"
	"github.com/communekit/core/internal/models"
	"github.com/communekit/core/internal/pkg/pagination"
	"github.com/communekit/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/events")
	g.GET("", h.list)
	g.GET("/:eventId", h.get)

	m := g.Group("", authMW, middleware.RequireModerator())
	m.POST("", h.create)
	m.PATCH("/:eventId", h.update)
	m.DELETE("/:eventId", h.delete)
}

type eventDTO struct {
	Title       string     `json:"title" binding:"required"`
	Slug        string     `json:"slug" binding:"required"`
	Description string     `json:"description"`
	StartAt     *time.Time `json:"start_at"`
	EndAt       *time.Time `json:"end_at"`
	Location    string     `json:"location"`
}

func (h *Handler) list(c *gin.Context) {
	events, pag, err := h.svc.List(pagination.FromContext(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, events, pag)
}

func (h *Handler) get(c *gin.Context) {
	ev, err := h.svc.Get(c.Param("eventId"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if ev == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, ev)
}

func (h *Handler) create(c *gin.Context) {
	var dto eventDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	ev := &models.Event{
		Title:       dto.Title,
		Slug:        dto.Slug,
		Description: dto.Description,
		StartAt:     dto.StartAt,
		EndAt:       dto.EndAt,
		Location:    dto.Location,
	}
	if err := h.svc.Create(ev); err != nil {
		if errors.Is(err, ErrSlugTaken) {
			response.BadRequest(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Created(c, ev)
}

func (h *Handler) update(c *gin.Context) {
	var body map[string]interface{}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	allowed := map[string]bool{
		"title": true, "description": true,
		"start_at": true, "end_at": true, "location": true,
	}
	updates := make(map[string]interface{})
	for k, v := range body {
		if allowed[k] {
			updates[k] = v
		}
	}
	if len(updates) == 0 {
		response.BadRequest(c, "nothing to update")
		return
	}

	ev, err := h.svc.Update(c.Param("eventId"), updates)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if ev == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, ev)
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Param("eventId")); err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}
