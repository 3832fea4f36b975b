package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/dispatch-backend/internal/service"
	"github.com/shinyyama/dispatch-backend/internal/storage"
)

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error errorPayload `json:"error"`
}

func NewErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{
		Error: errorPayload{
			Code:    code,
			Message: message,
		},
	}
}

// StatusFor maps a service error to its HTTP status and error code.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, service.ErrNoCandidates):
		return http.StatusUnprocessableEntity, "no_candidates"
	case errors.Is(err, service.ErrCapacityExceeded):
		return http.StatusConflict, "capacity_exceeded"
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, service.ErrIneligible):
		return http.StatusUnprocessableEntity, "ineligible"
	case errors.Is(err, service.ErrDuplicateRating):
		return http.StatusConflict, "duplicate_rating"
	case errors.Is(err, storage.ErrDisabled):
		return http.StatusServiceUnavailable, "storage_disabled"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeError(c echo.Context, err error) error {
	status, code := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("[http] %s %s err=%v", c.Request().Method, c.Path(), err)
		msg = "internal error"
	}
	return c.JSON(status, NewErrorResponse(code, msg))
}

func pathID(c echo.Context, name string) (uint64, error) {
	return strconv.ParseUint(c.Param(name), 10, 64)
}

func badID(c echo.Context, what string) error {
	return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid "+what+" id"))
}

func queryInt(c echo.Context, name string, def int) int {
	if s := c.QueryParam(name); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			return v
		}
	}
	return def
}

// actor is the authenticated uid, empty when auth is disabled.
func actor(c echo.Context) string {
	uid, _ := c.Get("uid").(string)
	return uid
}
