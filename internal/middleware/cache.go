package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const responseMetaKey = "response_meta"

// ResponseMeta prepares a per-request metadata map that handlers fill and the
// response envelope carries under "meta".
func ResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(responseMetaKey, map[string]interface{}{"started_at": time.Now()})
		c.Next()
	}
}

// SetCacheHit marks whether the payload came from the Redis cache.
func SetCacheHit(c *gin.Context, hit bool) {
	if meta := metaMap(c); meta != nil {
		meta["cache_hit"] = hit
	}
}

// Meta returns the metadata to render, with processing time filled in. It returns nil
// when ResponseMeta is not installed.
func Meta(c *gin.Context) map[string]interface{} {
	meta := metaMap(c)
	if meta == nil {
		return nil
	}
	out := make(map[string]interface{}, len(meta))
	for k, v := range meta {
		if k == "started_at" {
			if started, ok := v.(time.Time); ok {
				out["processing_time_ms"] = time.Since(started).Milliseconds()
			}
			continue
		}
		out[k] = v
	}
	return out
}

func metaMap(c *gin.Context) map[string]interface{} {
	value, exists := c.Get(responseMetaKey)
	if !exists {
		return nil
	}
	meta, _ := value.(map[string]interface{})
	return meta
}
