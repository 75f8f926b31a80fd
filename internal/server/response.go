package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"greeks-dashboard/internal/errors"
	"greeks-dashboard/internal/logging"
	"greeks-dashboard/internal/resilience"
)

// APIResponse is the JSON envelope of every non-stream answer.
type APIResponse struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func dataResponse(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, APIResponse{
		Status:  status,
		Message: http.StatusText(status),
		Data:    data,
	})
}

func badRequest(c echo.Context, errs []FieldError) error {
	return dataResponse(c, http.StatusBadRequest, errs)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errors.ErrNotAuthenticated), errors.Is(err, errors.ErrSessionExpired),
		errors.Is(err, errors.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, errors.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, errors.ErrInvalidDate), errors.Is(err, errors.ErrInputValidation),
		errors.Is(err, errors.ErrConfigInvalid):
		return http.StatusBadRequest
	case errors.Is(err, errors.ErrDataNotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, resilience.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, errors.ErrConnectionFailed), errors.Is(err, errors.ErrTimeout):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorResponse(c echo.Context, err error) error {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger := logging.FromContext(c.Request().Context())
		logger.Error().Err(err).Msg("Request failed")
		msg = "Something went wrong"
	}
	return c.JSON(status, APIResponse{Status: status, Message: msg})
}

// errorHandler renders echo errors (404 routes, bind failures) in the envelope.
func errorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status := http.StatusInternalServerError
		msg := http.StatusText(status)
		if he, ok := err.(*echo.HTTPError); ok {
			status = he.Code
			if s, ok := he.Message.(string); ok {
				msg = s
			} else {
				msg = http.StatusText(status)
			}
		} else {
			logger.Error().Err(err).Msg("Unhandled error")
		}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, APIResponse{Status: status, Message: msg})
	}
}
