package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// rateLimit rejects requests beyond the limiter's rate with 429
func rateLimit(limiter *rate.Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !limiter.Allow() {
				return c.JSON(http.StatusTooManyRequests, errorResponse{
					Error: "rate limit exceeded",
					Type:  "RATE_LIMITED",
				})
			}
			return next(c)
		}
	}
}
