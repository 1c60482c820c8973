package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// GetClientIP returns the caller's IPv4 and IPv6 address, either may be empty.
// Cloudflare's header wins over X-Forwarded-For, which wins over the socket
// address; X-Real-IP only fills the family that is still missing.
func GetClientIP(c *fiber.Ctx) (string, string) {
	var candidates []string
	if cf := strings.TrimSpace(c.Get("CF-Connecting-IP")); cf != "" {
		candidates = append(candidates, cf)
	}
	if xff := c.Get("X-Forwarded-For"); xff != "" {
		for _, ip := range strings.Split(xff, ",") {
			if ip = strings.TrimSpace(ip); ip != "" {
				candidates = append(candidates, ip)
			}
		}
	}
	if len(candidates) == 0 {
		candidates = append(candidates, c.IP())
	}
	if realIP := strings.TrimSpace(c.Get("X-Real-IP")); realIP != "" {
		candidates = append(candidates, realIP)
	}

	ipv4, ipv6 := "", ""
	for _, ip := range candidates {
		// IPv4 mapped into IPv6 (::ffff:192.168.1.1)
		if strings.HasPrefix(ip, "::ffff:") && strings.Contains(ip, ".") {
			ip = strings.TrimPrefix(ip, "::ffff:")
		}
		if strings.Contains(ip, ":") {
			if ipv6 == "" {
				ipv6 = ip
			}
		} else if ipv4 == "" {
			ipv4 = ip
		}
	}
	return ipv4, ipv6
}

// ClientKey identifies the caller for rate limiting, preferring IPv4.
func ClientKey(c *fiber.Ctx) string {
	ipv4, ipv6 := GetClientIP(c)
	if ipv4 != "" {
		return ipv4
	}
	if ipv6 != "" {
		return ipv6
	}
	return c.IP()
}
