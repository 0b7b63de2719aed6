package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// IPWhitelist allows only the listed addresses. Entries may be single IPs or
// CIDR ranges; an empty list allows everyone.
func IPWhitelist(entries []string) gin.HandlerFunc {
	exact := make(map[string]bool, len(entries))
	var nets []*net.IPNet
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if _, n, err := net.ParseCIDR(e); err == nil {
			nets = append(nets, n)
			continue
		}
		if ip := net.ParseIP(e); ip != nil {
			exact[ip.String()] = true
		}
	}
	open := len(exact) == 0 && len(nets) == 0
	return func(c *gin.Context) {
		if open || allowed(c.ClientIP(), exact, nets) {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
	}
}

func allowed(addr string, exact map[string]bool, nets []*net.IPNet) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	if exact[ip.String()] {
		return true
	}
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
