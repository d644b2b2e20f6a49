package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/SAP-F-2025/form-exam-service/internal/config"
	"github.com/SAP-F-2025/form-exam-service/internal/services"
	"github.com/SAP-F-2025/form-exam-service/internal/utils"
	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDKey = "request_id"
	userIDKey    = "user_id"
	userEmailKey = "user_email"
)

// Identity is the signed-in user behind a request
type Identity struct {
	UserID string
	Email  string
	Name   string
}

// IdentityResolver turns a bearer token into an identity
type IdentityResolver interface {
	Resolve(token string) (*Identity, error)
}

// CasdoorResolver validates tokens issued by Casdoor
type CasdoorResolver struct{}

func NewCasdoorResolver(cfg config.CasdoorConfig) *CasdoorResolver {
	casdoorsdk.InitConfig(cfg.Endpoint, cfg.ClientID, cfg.ClientSecret, cfg.Certificate, cfg.OrganizationName, cfg.ApplicationName)
	return &CasdoorResolver{}
}

func (r *CasdoorResolver) Resolve(token string) (*Identity, error) {
	claims, err := casdoorsdk.ParseJwtToken(token)
	if err != nil {
		return nil, err
	}
	return &Identity{
		UserID: claims.User.Id,
		Email:  claims.User.Email,
		Name:   claims.User.Name,
	}, nil
}

// RequestIDMiddleware assigns every request an id, reusing the caller's header
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(utils.RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
			c.Request.Header.Set(utils.RequestIDHeader, reqID)
		}
		c.Set(requestIDKey, reqID)
		c.Header(utils.RequestIDHeader, reqID)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), services.RequestIDKey, reqID))
		c.Next()
	}
}

// IdentityMiddleware attaches the caller's identity when a valid bearer token
// is present. Respondents may be anonymous, so bad tokens are ignored.
func IdentityMiddleware(resolver IdentityResolver, logger utils.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if resolver == nil {
			c.Next()
			return
		}
		token := bearerToken(c)
		if token == "" {
			c.Next()
			return
		}
		identity, err := resolver.Resolve(token)
		if err != nil {
			logger.Warn("Ignoring invalid bearer token",
				"request_id", c.GetString(requestIDKey), "error", err)
			c.Next()
			return
		}
		c.Set(userIDKey, identity.UserID)
		if identity.Email != "" {
			c.Set(userEmailKey, identity.Email)
		}
		c.Next()
	}
}

// RequireIdentity rejects requests without a resolved user
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(userIDKey) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Message: "User not authenticated",
				Code:    "UNAUTHENTICATED",
			})
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
