package user

import (
	"errors"

	"github.com/communekit/core/internal/middleware"
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
	rg.POST("/users", h.register)
	rg.GET("/users/:username", h.profile)

	a := rg.Group("/auth")
	a.POST("/login", h.login)
	a.POST("/logout", authMW, h.logout)
	a.GET("/whoami", authMW, h.whoami)
}

type registerDTO struct {
	Username string `json:"username" binding:"required"`
	Name     string `json:"name"`
	Password string `json:"password" binding:"required,min=6"`
	Mail     string `json:"mail"`
}

type loginDTO struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) register(c *gin.Context) {
	var dto registerDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	u, err := h.svc.Register(dto.Username, dto.Name, dto.Password, dto.Mail)
	if err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			response.BadRequest(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Created(c, u)
}

func (h *Handler) login(c *gin.Context) {
	var dto loginDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	token, u, err := h.svc.Login(dto.Username, dto.Password, c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			response.Unauthorized(c)
			return
		}
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"token": token, "user": u})
}

func (h *Handler) logout(c *gin.Context) {
	if err := h.svc.Logout(middleware.CurrentUserID(c), middleware.CurrentSessionID(c)); err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) whoami(c *gin.Context) {
	u, err := h.svc.GetByID(middleware.CurrentUserID(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if u == nil {
		response.Unauthorized(c)
		return
	}
	response.OK(c, u)
}

func (h *Handler) profile(c *gin.Context) {
	u, err := h.svc.GetByUsername(c.Param("username"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if u == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, gin.H{
		"id":       u.ID,
		"username": u.Username,
		"name":     u.Name,
		"avatar":   u.Avatar,
		"role":     u.Role,
	})
}
