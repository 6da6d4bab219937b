package httpapi

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequestIDKey is where the middleware stores the request's operation
// id in the echo context.
const RequestIDKey = "operation_request_id"

// RequestID tags every request with a fresh UUID and echoes it back in
// the X-Operation-Request-Id header, so cache introspection calls can
// be correlated with service logs.
// Usage: g.Use(httpapi.RequestID())
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := uuid.New().String()
			c.Set(RequestIDKey, id)
			c.Response().Header().Set("X-Operation-Request-Id", id)
			return next(c)
		}
	}
}

// GetRequestID retrieves the request's operation id from the echo
// context, or "" when the middleware is not installed.
func GetRequestID(c echo.Context) string {
	if id, ok := c.Get(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
