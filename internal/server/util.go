package server

import (
	"encoding/json"
	"net"
	"strings"
	"unicode"

	"github.com/gin-gonic/gin"
)

const maxCallerLen = 64

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	bp = strings.TrimRight(bp, "/")
	return bp
}

// isSafeCaller validates a caller id before it is used as a rate-limit key
// and written to logs: non-empty, bounded and free of control characters.
func isSafeCaller(s string) bool {
	if s == "" || len(s) > maxCallerLen {
		return false
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return false
		}
	}
	return strings.TrimSpace(s) == s
}

// IsLoopback reports whether a listen address only accepts local
// connections. An empty or wildcard host does not.
func IsLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}
