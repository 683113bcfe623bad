package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// SecurityConfig controls response hardening headers. The billing API only
// answers JSON, so the content policy forbids every resource type.
type SecurityConfig struct {
	HSTSMaxAge int // seconds; 0 disables Strict-Transport-Security
}

const apiContentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'"

// Secure sets headers appropriate for a machine-to-machine JSON API
func Secure(cfg SecurityConfig) gin.HandlerFunc {
	var hsts string
	if cfg.HSTSMaxAge > 0 {
		hsts = fmt.Sprintf("max-age=%d; includeSubDomains", cfg.HSTSMaxAge)
	}
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", apiContentSecurityPolicy)
		// sync summaries contain client names
		h.Set("Cache-Control", "no-store")
		if hsts != "" {
			h.Set("Strict-Transport-Security", hsts)
		}
		c.Next()
	}
}
