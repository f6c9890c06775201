package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/patient-service/pkg/response"
)

// GenericErrorMessage is all a client learns about an internal failure.
const GenericErrorMessage = "An unexpected error occurred. Please contact support."

const timeoutMessage = "Request processing exceeded the allowed time limit"

// ErrorHandler renders every error as a response envelope. Internal errors
// are logged in full and reach the client only as GenericErrorMessage.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, body := classify(err)
		if code >= http.StatusInternalServerError {
			cause := err
			var he *echo.HTTPError
			if errors.As(err, &he) && he.Internal != nil {
				cause = he.Internal
			}
			logger.Error().Err(cause).
				Str("request_id", requestIDOf(c)).
				Str("method", c.Request().Method).
				Str("route", c.Path()).
				Int("status", code).
				Msg("request failed")
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(code)
		} else {
			writeErr = c.JSON(code, body)
		}
		if writeErr != nil {
			logger.Error().Err(writeErr).Str("request_id", requestIDOf(c)).Msg("failed to write error response")
		}
	}
}

func classify(err error) (int, response.Envelope) {
	var he *echo.HTTPError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, response.Error(timeoutMessage)
	case errors.As(err, &he):
		if env, ok := he.Message.(response.Envelope); ok {
			if he.Code == http.StatusInternalServerError {
				return he.Code, response.Error(GenericErrorMessage)
			}
			return he.Code, env
		}
		if he.Code == http.StatusInternalServerError {
			return he.Code, response.Error(GenericErrorMessage)
		}
		return he.Code, response.Error(messageText(he))
	default:
		return http.StatusInternalServerError, response.Error(GenericErrorMessage)
	}
}

func messageText(he *echo.HTTPError) string {
	switch m := he.Message.(type) {
	case string:
		return m
	case nil:
		return http.StatusText(he.Code)
	default:
		return fmt.Sprint(m)
	}
}
