package middleware

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/meterly/backend/internal/domain/shared"
)

// DocsConfig controls access to the API documentation endpoint
type DocsConfig struct {
	Enabled bool
	// AllowedIPs accepts single addresses and CIDR ranges; empty allows all
	AllowedIPs []string
}

// DocsProtection hides the documentation endpoint when disabled and filters
// callers by IP. Extra guards, such as the principal chain plus RequireAdmin,
// run after the IP check.
func DocsProtection(cfg DocsConfig, guards ...gin.HandlerFunc) gin.HandlerFunc {
	ips, nets := parseAllowList(cfg.AllowedIPs)

	return func(c *gin.Context) {
		if !cfg.Enabled {
			abortWithError(c, shared.NewDomainError(shared.CodeNotFound, "API documentation is not available"))
			return
		}
		if len(cfg.AllowedIPs) > 0 && !isIPAllowed(net.ParseIP(c.ClientIP()), ips, nets) {
			abortWithError(c, shared.NewDomainError(shared.CodeForbidden, "Access to API documentation is restricted"))
			return
		}
		for _, guard := range guards {
			guard(c)
			if c.IsAborted() {
				return
			}
		}
		c.Next()
	}
}

func parseAllowList(entries []string) ([]net.IP, []*net.IPNet) {
	var ips []net.IP
	var nets []*net.IPNet
	for _, entry := range entries {
		if strings.Contains(entry, "/") {
			if _, network, err := net.ParseCIDR(entry); err == nil {
				nets = append(nets, network)
			}
			continue
		}
		if ip := net.ParseIP(entry); ip != nil {
			ips = append(ips, ip)
		}
	}
	return ips, nets
}

func isIPAllowed(ip net.IP, allowedIPs []net.IP, allowedNets []*net.IPNet) bool {
	if ip == nil {
		return false
	}
	for _, allowed := range allowedIPs {
		if allowed.Equal(ip) {
			return true
		}
	}
	for _, network := range allowedNets {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
