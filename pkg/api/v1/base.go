package apiv1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

const HttpServerBaseRoute string = "/api"

// ErrorBody is the JSON body of every error response
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse returns an error response
func ErrorResponse(c echo.Context, code int, message string) error {
	return c.JSON(code, ErrorBody{
		Error:   http.StatusText(code),
		Message: message,
	})
}

// BadRequest returns a 400 validation error
func BadRequest(c echo.Context, message string) error {
	return ErrorResponse(c, http.StatusBadRequest, message)
}

// NotFound returns a 404 for a missing resource
func NotFound(c echo.Context, message string) error {
	return ErrorResponse(c, http.StatusNotFound, message)
}

// InternalError logs err and returns an opaque 500
func InternalError(c echo.Context, err error, msg string) error {
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Request().URL.Path).
		Msg(msg)
	return ErrorResponse(c, http.StatusInternalServerError, "internal server error")
}

// HTTPErrorHandler renders errors raised outside the handlers, such as
// unmatched routes or a panic caught by Recover, in the same body shape
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if m, ok := he.Message.(string); ok && code < http.StatusInternalServerError {
			message = m
		} else if code < http.StatusInternalServerError {
			message = http.StatusText(code)
		}
	} else {
		log.Error().Err(err).Str("path", c.Request().URL.Path).Msg("unhandled error")
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = ErrorResponse(c, code, message)
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to write error response")
	}
}
