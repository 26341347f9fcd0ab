package security

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

type HeadersConfig struct {
	AllowedOrigins []string
	IsDevelopment  bool
}

func HeadersMiddleware(cfg HeadersConfig) fiber.Handler {
	csp := strings.Join([]string{
		"default-src 'self'",
		"img-src 'self' data: blob:",
		"style-src 'self' 'unsafe-inline'",
		connectSrc(cfg.AllowedOrigins),
		"frame-ancestors 'none'",
		"base-uri 'self'",
	}, "; ")

	return func(c *fiber.Ctx) error {
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("Content-Security-Policy", csp)

		if !cfg.IsDevelopment {
			c.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		err := c.Next()

		// Answers and charts are per-request; never let intermediaries keep them.
		if c.Method() == fiber.MethodPost {
			c.Set(fiber.HeaderCacheControl, "no-store")
		}
		return err
	}
}

func connectSrc(origins []string) string {
	src := []string{"connect-src", "'self'"}
	for _, o := range origins {
		if o == "*" {
			continue
		}
		src = append(src, o)
	}
	return strings.Join(src, " ")
}
