package handler

import (
	"errors"
	"net/http"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"github.com/shinyyama/dispatch-backend/internal/service"
)

type UserHandler struct {
	authClient   *auth.Client
	transporters service.TransporterService
}

func NewUserHandler(client *auth.Client, transporters service.TransporterService) *UserHandler {
	return &UserHandler{authClient: client, transporters: transporters}
}

type MeResponse struct {
	UID         string               `json:"uid"`
	DisplayName string               `json:"displayName"`
	PhotoURL    *string              `json:"photoURL"`
	Transporter *TransporterResponse `json:"transporter"`
}

// Me returns the signed-in user and, when registered, their transporter profile.
func (h *UserHandler) Me(c echo.Context) error {
	uid := actor(c)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	user, err := h.authClient.GetUser(c.Request().Context(), uid)
	if err != nil {
		return c.JSON(http.StatusNotFound, NewErrorResponse("not_found", "user not found"))
	}
	resp := MeResponse{
		UID:         user.UID,
		DisplayName: user.DisplayName,
		PhotoURL:    strPtrOrNil(user.PhotoURL),
	}
	t, err := h.transporters.GetByUser(c.Request().Context(), uid)
	switch {
	case err == nil:
		tr := toTransporterResponse(t)
		resp.Transporter = &tr
	case !errors.Is(err, service.ErrNotFound):
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func strPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
