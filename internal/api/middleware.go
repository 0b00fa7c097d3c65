package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/rongwang/propvera-server/internal/models"
	"github.com/rongwang/propvera-server/internal/service"
)

// JWTSecretMiddleware exposes the token signing secret to AuthMiddleware
func JWTSecretMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("jwtSecret", []byte(secret))
		c.Next()
	}
}

// AuthMiddleware returns a Gin middleware that admits only unexpired SUPER_ADMIN tokens
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get the JWT token from the Authorization header
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthenticated(c, "Authentication required")
			return
		}

		// Check if the Authorization header starts with "Bearer "
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortUnauthenticated(c, "Invalid token format")
			return
		}

		tokenString := parts[1]

		jwtSecret, _ := c.Get("jwtSecret")
		secret, _ := jwtSecret.([]byte)
		if len(secret) == 0 {
			abortUnauthenticated(c, "Invalid Admin Token")
			return
		}

		// Parse the JWT token; exp is validated by the parser
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return secret, nil
		}, jwt.WithExpirationRequired())

		if err != nil || !token.Valid {
			abortUnauthenticated(c, "Invalid Admin Token")
			return
		}

		// Extract claims from the token
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			abortUnauthenticated(c, "Invalid token claims")
			return
		}

		if role, _ := claims["role"].(string); role != service.RoleSuperAdmin {
			abortUnauthenticated(c, "Invalid Admin Token")
			return
		}

		adminID, ok := claims["sub"].(string)
		if !ok {
			abortUnauthenticated(c, "Invalid admin ID in token")
			return
		}

		c.Set("adminId", adminID)
		c.Next()
	}
}

func abortUnauthenticated(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
		Status:  "error",
		Code:    "UNAUTHENTICATED",
		Message: message,
	})
}
