// Package comment exposes the two-level comment threads over HTTP, backed
// by the per-event thread caches.
package comment

import (
	"errors"

	"github.com/communekit/core/internal/gateway"
	"github.com/communekit/core/internal/middleware"
	"github.com/communekit/core/internal/pkg/response"
	"github.com/communekit/core/internal/sync/reconcile"
	"github.com/communekit/core/internal/sync/thread"
	"github.com/gin-gonic/gin"
)

type Handler struct {
	reg *Registry
	gw  gateway.Gateway
}

func NewHandler(reg *Registry, gw gateway.Gateway) *Handler {
	return &Handler{reg: reg, gw: gw}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/events/:eventId/comments")
	g.GET("", h.list)
	g.GET("/:id/replies", h.listReplies)
	g.POST("", authMW, h.create)

	m := rg.Group("/comments", authMW, middleware.RequireModerator())
	m.PATCH("/:id", h.edit)
	m.DELETE("/:id", h.delete)
}

type createCommentDTO struct {
	Content         string  `json:"content" binding:"required"`
	ParentID        *string `json:"parent_id"`
	QuotedText      *string `json:"quoted_text"`
	QuotedCommentID *string `json:"quoted_comment_id"`
}

type editCommentDTO struct {
	Content string `json:"content" binding:"required"`
}

func (h *Handler) cacheFor(c *gin.Context) *thread.Cache {
	dir := gateway.Desc
	if c.Query("dir") == "asc" {
		dir = gateway.Asc
	}
	return h.reg.Get(c.Param("eventId"), dir)
}

// GET /events/:eventId/comments?dir=asc|desc&more=1. Without more the cache
// resets to the head page; more=1 appends the next page.
func (h *Handler) list(c *gin.Context) {
	cache := h.cacheFor(c)
	more := c.Query("more") == "1"
	if err := cache.LoadRoots(!more); err != nil {
		writeSyncError(c, err)
		return
	}

	c.JSON(200, gin.H{
		"data": cache.Roots(),
		"pagination": gin.H{
			"total":         cache.Total(),
			"has_next_page": cache.HasMore(),
		},
	})
}

// GET /events/:eventId/comments/:id/replies
func (h *Handler) listReplies(c *gin.Context) {
	cache := h.cacheFor(c)
	id := c.Param("id")
	if err := cache.LoadReplies(id); err != nil {
		writeSyncError(c, err)
		return
	}
	response.OK(c, cache.Replies(id))
}

// POST /events/:eventId/comments
func (h *Handler) create(c *gin.Context) {
	var dto createCommentDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	var quote *thread.Quote
	if dto.QuotedText != nil || dto.QuotedCommentID != nil {
		quote = &thread.Quote{}
		if dto.QuotedText != nil {
			quote.Text = *dto.QuotedText
		}
		if dto.QuotedCommentID != nil {
			quote.CommentID = *dto.QuotedCommentID
		}
	}

	cache := h.cacheFor(c)
	cm, err := cache.Create(middleware.CurrentActor(c), dto.Content, dto.ParentID, quote)
	if err != nil {
		writeSyncError(c, err)
		return
	}
	response.Created(c, cm)
}

// PATCH /comments/:id, moderator only.
func (h *Handler) edit(c *gin.Context) {
	var dto editCommentDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	cache, ok := h.resolveCache(c, c.Param("id"))
	if !ok {
		return
	}
	if err := cache.Update(middleware.CurrentActor(c), c.Param("id"), dto.Content); err != nil {
		writeSyncError(c, err)
		return
	}
	response.OK(c, cache.Get(c.Param("id")))
}

// DELETE /comments/:id, moderator only.
func (h *Handler) delete(c *gin.Context) {
	cache, ok := h.resolveCache(c, c.Param("id"))
	if !ok {
		return
	}
	if err := cache.Delete(middleware.CurrentActor(c), c.Param("id")); err != nil {
		writeSyncError(c, err)
		return
	}
	response.NoContent(c)
}

// resolveCache finds the owning event for a comment id and returns the
// event's default-direction cache.
func (h *Handler) resolveCache(c *gin.Context, id string) (*thread.Cache, bool) {
	cm, err := h.gw.GetComment(c.Request.Context(), id)
	if err != nil {
		response.InternalError(c, err)
		return nil, false
	}
	if cm == nil {
		response.NotFound(c)
		return nil, false
	}
	return h.reg.Get(cm.EventID, gateway.Desc), true
}

func writeSyncError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, reconcile.ErrValidation):
		response.UnprocessableEntity(c, err.Error())
	case errors.Is(err, reconcile.ErrUnauthorized):
		response.Forbidden(c)
	case errors.Is(err, reconcile.ErrNotFound):
		response.NotFound(c)
	case errors.Is(err, reconcile.ErrPending):
		response.Conflict(c, "operation already in flight")
	default:
		response.InternalError(c, err)
	}
}
