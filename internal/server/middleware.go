package server

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"greeks-dashboard/internal/api"
	"greeks-dashboard/internal/logging"
	"greeks-dashboard/internal/metrics"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

// Recover turns panics into 500 answers.
func Recover(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					perr, ok := r.(error)
					if !ok {
						perr = fmt.Errorf("%v", r)
					}
					logger.Error().Err(perr).Bytes("stack", debug.Stack()).Msg("Panic in handler")
					err = c.JSON(http.StatusInternalServerError, APIResponse{
						Status:  http.StatusInternalServerError,
						Message: "Internal Server Error",
					})
				}
			}()
			return next(c)
		}
	}
}

// RequestID reuses the caller's X-Request-ID or mints one, and stores it with
// a request-scoped logger in the request context.
func RequestID(base zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := req.Header.Get(HeaderRequestID)
			if id == "" {
				id = uuid.NewString()
			}
			c.Response().Header().Set(HeaderRequestID, id)

			ctx := logging.WithRequestID(req.Context(), id)
			ctx = logging.WithLogger(ctx, base.With().Str("request_id", id).Logger())
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}

// RequestLogging logs each request with the request-scoped logger.
func RequestLogging() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			status := c.Response().Status
			logger := logging.FromContext(req.Context())
			event := logger.Debug()
			switch {
			case status >= 500:
				event = logger.Error()
			case status >= 400:
				event = logger.Warn()
			}
			event.
				Str("method", req.Method).
				Str("route", c.Path()).
				Str("uri", req.RequestURI).
				Int("status", status).
				Int64("bytes", c.Response().Size).
				Dur("latency", time.Since(start)).
				Msg("HTTP request")
			return nil
		}
	}
}

// Metrics records request counters and durations labelled by route template.
func Metrics(rec *metrics.Recorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rec.InFlight(1)
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			rec.InFlight(-1)

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			rec.RecordHTTP(route, c.Request().Method, c.Response().Status, time.Since(start))
			return nil
		}
	}
}

// BearerToken copies the caller's bearer token into the request context so
// the backend client can forward it.
func BearerToken() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			token := api.BearerFromHeader(req.Header.Get(echo.HeaderAuthorization))
			if token == "" {
				// Browsers cannot set headers on websocket upgrades.
				token = c.QueryParam("access_token")
			}
			if token != "" {
				c.SetRequest(req.WithContext(api.WithToken(req.Context(), token)))
			}
			return next(c)
		}
	}
}

// RequireToken answers 401 when the request carries no bearer token.
func RequireToken() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if api.TokenFromContext(c.Request().Context()) == "" {
				return c.JSON(http.StatusUnauthorized, APIResponse{
					Status:  http.StatusUnauthorized,
					Message: "missing bearer token",
				})
			}
			return next(c)
		}
	}
}
