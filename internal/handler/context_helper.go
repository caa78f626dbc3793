package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/JRCMora/jms-api/internal/middleware"
	"github.com/JRCMora/jms-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.Claims(c)
}

// queryInt parses a non-negative integer query parameter, falling back to def.
func queryInt(c *gin.Context, key string, def int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

func queryBool(c *gin.Context, key string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(c.Query(key)))
	return err == nil && v
}
