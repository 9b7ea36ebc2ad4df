// Package notification exposes the per-recipient notification feed over
// HTTP: paging, unread count, read marks and deletes.
package notification

import (
	"errors"

	"github.com/communekit/core/internal/middleware"
	"github.com/communekit/core/internal/pkg/response"
	"github.com/communekit/core/internal/sync/feed"
	"github.com/communekit/core/internal/sync/reconcile"
	"github.com/gin-gonic/gin"
)

type Handler struct {
	reg *Registry
}

func NewHandler(reg *Registry) *Handler {
	return &Handler{reg: reg}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/notifications", authMW)

	g.GET("", h.list)
	g.GET("/unread_count", h.unreadCount)
	g.PATCH("/read_all", h.markAllRead)
	g.PATCH("/:id/read", h.markRead)
	g.DELETE("/:id", h.delete)
}

func (h *Handler) ownFeed(c *gin.Context) *feed.Feed {
	f, err := h.reg.Get(middleware.CurrentUserID(c))
	if err != nil {
		response.InternalError(c, err)
		return nil
	}
	return f
}

// GET /notifications?more=1. Without more the feed resets to the head page;
// more=1 appends the next page.
func (h *Handler) list(c *gin.Context) {
	f := h.ownFeed(c)
	if f == nil {
		return
	}

	more := c.Query("more") == "1"
	if err := f.Load(!more); err != nil {
		writeSyncError(c, err)
		return
	}
	if err := f.RefreshUnread(); err != nil {
		writeSyncError(c, err)
		return
	}

	c.JSON(200, gin.H{
		"data": f.Items(),
		"pagination": gin.H{
			"total":         f.Total(),
			"has_next_page": f.HasMore(),
		},
		"unread_count": f.Unread(),
	})
}

func (h *Handler) unreadCount(c *gin.Context) {
	f := h.ownFeed(c)
	if f == nil {
		return
	}
	if err := f.RefreshUnread(); err != nil {
		writeSyncError(c, err)
		return
	}
	response.OK(c, gin.H{"count": f.Unread()})
}

func (h *Handler) markRead(c *gin.Context) {
	f := h.ownFeed(c)
	if f == nil {
		return
	}
	if err := f.MarkRead(c.Param("id")); err != nil {
		writeSyncError(c, err)
		return
	}
	response.OK(c, gin.H{"unread_count": f.Unread()})
}

func (h *Handler) markAllRead(c *gin.Context) {
	f := h.ownFeed(c)
	if f == nil {
		return
	}
	if err := f.MarkAllRead(); err != nil {
		writeSyncError(c, err)
		return
	}
	response.OK(c, gin.H{"unread_count": f.Unread()})
}

func (h *Handler) delete(c *gin.Context) {
	f := h.ownFeed(c)
	if f == nil {
		return
	}
	if err := f.Delete(c.Param("id")); err != nil {
		writeSyncError(c, err)
		return
	}
	response.NoContent(c)
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
