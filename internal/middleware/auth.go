package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sjperalta/pharmavault-api/internal/models"
)

const principalKey = "principal"

// Claims represents the JWT claims structure
type Claims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}

// Auth returns a middleware that validates JWT tokens and stores the request principal
func Auth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get token from Authorization header
		authHeader := c.GetHeader("Authorization")
		tokenString := ""

		if authHeader == "" {
			// Check query param for download links
			tokenString = c.Query("token")
			if tokenString == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "Authorization header is required",
				})
				return
			}
		} else {
			// Extract token from "Bearer <token>"
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "Invalid authorization header format",
				})
				return
			}
			tokenString = parts[1]
		}

		// Parse and validate token
		claims, err := validateToken(tokenString, jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": err.Error(),
			})
			return
		}

		c.Set("userID", claims.UserID)
		c.Set("userRole", claims.Role)
		c.Set(principalKey, models.Principal{
			UserID:    claims.UserID,
			Name:      claims.Name,
			Email:     claims.Email,
			Role:      claims.Role,
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})

		c.Next()
	}
}

// validateToken parses and validates a JWT token string
func validateToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(secret), nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.New("token has expired")
		}
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == 0 || !models.IsValidRole(claims.Role) {
		return nil, errors.New("invalid token claims")
	}

	return claims, nil
}

// GetPrincipal returns the authenticated identity; unauthenticated requests
// get an anonymous principal carrying only client metadata.
func GetPrincipal(c *gin.Context) models.Principal {
	if p, ok := c.Get(principalKey); ok {
		return p.(models.Principal)
	}
	return ClientInfo(c)
}

// ClientInfo captures the caller's address and agent for audit entries
func ClientInfo(c *gin.Context) models.Principal {
	return models.Principal{IPAddress: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}

// GetUserID extracts the user ID from the Gin context
func GetUserID(c *gin.Context) uint {
	return GetPrincipal(c).UserID
}

// GetUserRole extracts the user role from the Gin context
func GetUserRole(c *gin.Context) string {
	return GetPrincipal(c).Role
}

// RequireRole returns a middleware that requires specific roles
func RequireRole(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetPrincipal(c).HasRole(allowedRoles...) {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "your role does not grant access to this resource",
		})
	}
}

// RequireAdmin returns a middleware that requires admin role
func RequireAdmin() gin.HandlerFunc {
	return RequireRole(models.RoleAdmin)
}
