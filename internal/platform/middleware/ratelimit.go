package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// DefaultLimiterExpiry is how long an idle client's bucket is kept.
const DefaultLimiterExpiry = 3 * time.Minute

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// ExpiresIn evicts buckets of clients idle for longer. Zero means
	// DefaultLimiterExpiry.
	ExpiresIn time.Duration
}

// RateLimit limits requests per client IP with a token bucket. The IP comes
// from c.RealIP, so the echo instance's IPExtractor decides which forwarding
// headers are trusted.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	expires := cfg.ExpiresIn
	if expires <= 0 {
		expires = DefaultLimiterExpiry
	}
	store := echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(cfg.RequestsPerSecond),
		Burst:     cfg.BurstSize,
		ExpiresIn: expires,
	})
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)
	retryAfter := strconv.Itoa(retryAfterSeconds(cfg.RequestsPerSecond))

	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Store: store,
		BeforeFunc: func(c echo.Context) {
			c.Response().Header().Set("X-RateLimit-Limit", limit)
		},
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusBadRequest, "cannot identify client").SetInternal(err)
		},
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			c.Response().Header().Set("Retry-After", retryAfter)
			c.Response().Header().Set("X-RateLimit-Remaining", "0")
			return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
		},
	})
}

// retryAfterSeconds is the time for one token to refill, at least a second.
func retryAfterSeconds(rps float64) int {
	if rps <= 0 {
		return 1
	}
	return max(1, int(math.Ceil(1/rps)))
}
