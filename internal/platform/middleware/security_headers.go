package middleware

import (
	"github.com/labstack/echo/v4"
)

// Content-Security-Policy values. The API denies everything; the form page
// needs its inline styles and the reCAPTCHA widget.
const (
	APIContentSecurityPolicy  = "default-src 'none'; frame-ancestors 'none'"
	PageContentSecurityPolicy = "default-src 'self'; style-src 'self' 'unsafe-inline'; " +
		"script-src 'self' https://www.google.com/recaptcha/ https://www.gstatic.com/recaptcha/; " +
		"frame-src https://www.google.com/recaptcha/ https://recaptcha.google.com/recaptcha/; " +
		"img-src 'self' data:; frame-ancestors 'none'"
)

// SecurityHeaders returns middleware that sets security response headers on
// every request, with csp as the Content-Security-Policy.
func SecurityHeaders(csp string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-XSS-Protection", "0")
			h.Set("Content-Security-Policy", csp)
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")

			// Responses carry patient details.
			h.Set("Cache-Control", "no-store")

			return next(c)
		}
	}
}
