package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/dispatch-backend/internal/model"
	"github.com/shinyyama/dispatch-backend/internal/service"
)

const defaultRankingLimit = 20

type ReportHandler struct {
	reports service.ReportingService
}

func NewReportHandler(reports service.ReportingService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// parseReportTime accepts RFC3339 timestamps or bare dates (midnight UTC).
func parseReportTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func reportPeriod(c echo.Context) (service.ReportPeriod, error) {
	var p service.ReportPeriod
	for _, q := range []struct {
		name string
		dst  *time.Time
	}{{"from", &p.From}, {"to", &p.To}} {
		s := c.QueryParam(q.name)
		if s == "" {
			continue
		}
		t, err := parseReportTime(s)
		if err != nil {
			return p, err
		}
		*q.dst = t
	}
	return p, nil
}

func badPeriod(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, NewErrorResponse("validation_error", "from/to must be RFC3339 or YYYY-MM-DD"))
}

// Overview handles GET /api/reports/overview.
func (h *ReportHandler) Overview(c echo.Context) error {
	period, err := reportPeriod(c)
	if err != nil {
		return badPeriod(c)
	}
	f := service.OverviewFilter{
		Status:      model.DeliveryStatus(c.QueryParam("status")),
		Priority:    model.Priority(c.QueryParam("priority")),
		VehicleType: model.VehicleType(c.QueryParam("vehicleType")),
	}
	if s := c.QueryParam("transporterId"); s != "" {
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return badID(c, "transporter")
		}
		f.TransporterID = id
	}
	if s := c.QueryParam("fragile"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			return c.JSON(http.StatusBadRequest, NewErrorResponse("validation_error", "fragile must be true or false"))
		}
		f.Fragile = &v
	}

	out, err := h.reports.Overview(c.Request().Context(), period, f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// Transporters handles GET /api/reports/transporters.
func (h *ReportHandler) Transporters(c echo.Context) error {
	period, err := reportPeriod(c)
	if err != nil {
		return badPeriod(c)
	}
	list, err := h.reports.TransporterRanking(c.Request().Context(), period, queryInt(c, "limit", defaultRankingLimit))
	if err != nil {
		return writeError(c, err)
	}
	if list == nil {
		list = []service.TransporterPerformance{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"transporters": list,
	})
}
