package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	responseMetaKey = "response_meta"
	requestStartKey = "request_start"
)

// WithResponseMeta initialises per-request response metadata.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(requestStartKey, time.Now())
		c.Set(responseMetaKey, map[string]interface{}{})
		c.Next()
	}
}

// SetCacheHit records whether the payload came from cache and mirrors it in
// the X-Cache header.
func SetCacheHit(c *gin.Context, hit bool) {
	ensureMeta(c)["cache_hit"] = hit
	value := "MISS"
	if hit {
		value = "HIT"
	}
	c.Header("X-Cache", value)
}

// SetCount records a collection size.
func SetCount(c *gin.Context, n int) {
	ensureMeta(c)["count"] = n
	c.Header("X-Total-Count", strconv.Itoa(n))
}

// ExtractMeta returns the metadata gathered so far plus the elapsed time.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	meta := ensureMeta(c)
	if v, ok := c.Get(requestStartKey); ok {
		if start, ok := v.(time.Time); ok {
			meta["processing_time_ms"] = time.Since(start).Milliseconds()
		}
	}
	return meta
}

func ensureMeta(c *gin.Context) map[string]interface{} {
	if meta, exists := c.Get(responseMetaKey); exists {
		if typed, ok := meta.(map[string]interface{}); ok {
			return typed
		}
	}
	meta := make(map[string]interface{})
	c.Set(responseMetaKey, meta)
	return meta
}
