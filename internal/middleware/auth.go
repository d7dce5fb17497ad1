package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/psds-microservice/workshop-service/internal/auth"
	"github.com/psds-microservice/workshop-service/internal/lifecycle"
	"github.com/psds-microservice/workshop-service/internal/model"
)

const claimsKey = "auth.claims"

// Auth проверяет Bearer-токен. Для websocket токен можно передать в ?token=.
func Auth(issuer *auth.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := ""
		if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
			tokenStr = strings.TrimPrefix(h, "Bearer ")
		} else if t := c.Query("token"); t != "" {
			tokenStr = t
		}
		if tokenStr == "" {
			unauthorized(c, "missing or invalid token", "")
			return
		}
		claims, err := issuer.Parse(tokenStr)
		if errors.Is(err, jwt.ErrTokenExpired) && claims != nil {
			unauthorized(c, "token expired", claims.Role)
			return
		}
		if err != nil {
			unauthorized(c, "invalid token", "")
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequireRole пропускает только перечисленные роли.
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok {
			unauthorized(c, "authentication required", firstRole(roles))
			return
		}
		for _, r := range roles {
			if claims.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden for this role"})
	}
}

func Claims(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}

// Actor: текущий пользователь для сервисов.
func Actor(c *gin.Context) lifecycle.Actor {
	claims, ok := Claims(c)
	if !ok {
		return lifecycle.Actor{}
	}
	return lifecycle.Actor{ID: claims.AccountID, Role: claims.Role, Name: claims.Name}
}

func unauthorized(c *gin.Context, msg string, role model.Role) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":     msg,
		"login_url": auth.LoginPath(role),
	})
}

func firstRole(roles []model.Role) model.Role {
	if len(roles) == 1 {
		return roles[0]
	}
	return ""
}
