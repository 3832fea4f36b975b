package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/dispatch-backend/internal/service"
)

type ReconcileHandler struct {
	svc service.ReconciliationService
}

func NewReconcileHandler(svc service.ReconciliationService) *ReconcileHandler {
	return &ReconcileHandler{svc: svc}
}

// RunAll always answers 200; sweeps that aborted carry their error in the report.
func (h *ReconcileHandler) RunAll(c echo.Context) error {
	reports, _ := h.svc.RunAll(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]interface{}{"reports": reports})
}

func (h *ReconcileHandler) Run(c echo.Context) error {
	rep, err := h.svc.Run(c.Request().Context(), c.Param("sweep"))
	switch {
	case errors.Is(err, service.ErrValidation):
		return writeError(c, err)
	case err != nil:
		if rep == nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"report": rep,
			"error":  NewErrorResponse("sweep_failed", err.Error()).Error,
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"report": rep})
}
