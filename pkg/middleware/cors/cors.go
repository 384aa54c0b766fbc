package cors

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

var (
	allowHeaders  = strings.Join([]string{"Authorization", "Content-Type", "X-Requested-With", "X-Request-ID", "X-Confirmation-Token"}, ", ")
	allowMethods  = strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions}, ", ")
	exposeHeaders = strings.Join([]string{"X-Request-ID", "Content-Disposition"}, ", ")
)

type wildcard struct {
	scheme string
	domain string
}

type policy struct {
	exact     map[string]struct{}
	wildcards []wildcard
}

// New returns a CORS middleware for the browser client. Entries of the form
// "https://*.example.com" match any subdomain. An empty list allows every origin
// without credentials.
func New(allowedOrigins []string) gin.HandlerFunc {
	p := newPolicy(allowedOrigins)

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Add("Vary", "Origin")

		origin := strings.TrimRight(c.GetHeader("Origin"), "/")
		switch {
		case p.open():
			h.Set("Access-Control-Allow-Origin", "*")
		case origin != "" && p.allows(origin):
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
		}
		h.Set("Access-Control-Expose-Headers", exposeHeaders)

		if c.Request.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Headers", allowHeaders)
			h.Set("Access-Control-Allow-Methods", allowMethods)
			h.Set("Access-Control-Max-Age", "600")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func newPolicy(origins []string) policy {
	p := policy{exact: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" {
			continue
		}
		if scheme, host, ok := strings.Cut(o, "://*."); ok {
			p.wildcards = append(p.wildcards, wildcard{scheme: scheme + "://", domain: "." + host})
			continue
		}
		p.exact[o] = struct{}{}
	}
	return p
}

func (p policy) open() bool {
	return len(p.exact) == 0 && len(p.wildcards) == 0
}

func (p policy) allows(origin string) bool {
	if _, ok := p.exact[origin]; ok {
		return true
	}
	for _, w := range p.wildcards {
		if strings.HasPrefix(origin, w.scheme) && strings.HasSuffix(origin, w.domain) {
			return true
		}
	}
	return false
}
