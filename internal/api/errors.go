package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"transcript-studio/internal/domain"
	"transcript-studio/internal/jobs"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusFor maps the error taxonomy to an HTTP status code.
func StatusFor(err error) int {
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &httpErr):
		return httpErr.Code
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, jobs.ErrJobAlreadyRunning),
		errors.Is(err, jobs.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrCollaborator):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := StatusFor(err)
	msg := err.Error()
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		if m, ok := httpErr.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(code)
		}
	}
	if code == http.StatusInternalServerError {
		s.log.Error("request failed", "method", c.Request().Method, "path", c.Path(), "error", err)
		msg = "internal error"
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, ErrorResponse{Error: msg})
	}
	if err != nil {
		s.log.Warn("write error response", "error", err)
	}
}
