package middleware

import (
	"errors"
	"strings"

	"github.com/communekit/core/internal/models"
	"github.com/communekit/core/internal/pkg/jwt"
	"github.com/communekit/core/internal/pkg/response"
	sessionpkg "github.com/communekit/core/internal/pkg/session"
	"github.com/communekit/core/internal/sync/reconcile"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	ContextKeyUserID = "user_id"
	ContextKeyRole   = "user_role"
	ContextKeySID    = "session_id"
	apiTokenPrefix   = "cko"
)

// Auth returns a middleware that enforces JWT or API token authentication.
func Auth(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := ValidateTokenClaims(db, extractToken(c))
		if err != nil {
			response.Unauthorized(c)
			return
		}
		setIdentity(c, db, claims)
		c.Next()
	}
}

// OptionalAuth sets the identity if a valid token is present, but does not
// block the request.
func OptionalAuth(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, err := ValidateTokenClaims(db, extractToken(c)); err == nil && claims.UserID != "" {
			setIdentity(c, db, claims)
		}
		c.Next()
	}
}

// RequireModerator rejects requests whose authenticated user does not hold
// the moderator role. It must run after Auth.
func RequireModerator() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !CurrentActor(c).CanModerate() {
			response.Forbidden(c)
			return
		}
		c.Next()
	}
}

func setIdentity(c *gin.Context, db *gorm.DB, claims *jwt.Claims) {
	c.Set(ContextKeyUserID, claims.UserID)
	c.Set(ContextKeyRole, loadRole(db, claims.UserID))
	if claims.SessionID != "" {
		c.Set(ContextKeySID, claims.SessionID)
		sessionpkg.Touch(db, claims.UserID, claims.SessionID)
	}
}

func loadRole(db *gorm.DB, userID string) models.UserRole {
	var user models.UserModel
	if err := db.Select("role").Where("id = ?", userID).First(&user).Error; err != nil {
		return models.RoleMember
	}
	return user.Role
}

// ValidateTokenClaims validates a JWT or API token and returns its claims.
func ValidateTokenClaims(db *gorm.DB, rawToken string) (*jwt.Claims, error) {
	token := NormalizeToken(rawToken)
	if token == "" {
		return nil, errors.New("token is required")
	}

	if strings.HasPrefix(token, apiTokenPrefix) {
		userID, err := validateAPIToken(db, token)
		if err != nil {
			return nil, err
		}
		return &jwt.Claims{UserID: userID}, nil
	}

	claims, err := jwt.Parse(token)
	if err != nil {
		return nil, err
	}
	active, err := sessionpkg.IsActive(db, claims.UserID, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, errors.New("session expired or revoked")
	}
	return claims, nil
}

// CurrentUserID extracts the authenticated user ID from context.
func CurrentUserID(c *gin.Context) string {
	v, _ := c.Get(ContextKeyUserID)
	id, _ := v.(string)
	return id
}

// CurrentActor returns the authenticated identity with its role; the zero
// Actor means unauthenticated.
func CurrentActor(c *gin.Context) reconcile.Actor {
	id := CurrentUserID(c)
	if id == "" {
		return reconcile.Actor{}
	}
	v, _ := c.Get(ContextKeyRole)
	role, ok := v.(models.UserRole)
	if !ok {
		role = models.RoleMember
	}
	return reconcile.Actor{ID: id, Role: role}
}

// CurrentSessionID extracts the authenticated session ID from context.
func CurrentSessionID(c *gin.Context) string {
	v, _ := c.Get(ContextKeySID)
	id, _ := v.(string)
	return id
}

// IsAuthenticated returns true if the request has a valid auth token.
func IsAuthenticated(c *gin.Context) bool {
	return CurrentUserID(c) != ""
}

func extractToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if auth != "" {
		return NormalizeToken(auth)
	}
	return NormalizeToken(c.Query("token"))
}

// NormalizeToken trims spaces and strips an optional Bearer prefix.
func NormalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}

func validateAPIToken(db *gorm.DB, token string) (string, error) {
	var row struct {
		UserID string
	}
	err := db.Table("api_tokens").
		Select("user_id").
		Where("token = ? AND (expired_at IS NULL OR expired_at > NOW()) AND deleted_at IS NULL", token).
		Scan(&row).Error
	if err != nil {
		return "", err
	}
	if row.UserID == "" {
		return "", errors.New("api token not found")
	}
	return row.UserID, nil
}
