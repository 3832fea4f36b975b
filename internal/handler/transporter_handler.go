package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/dispatch-backend/internal/geo"
	"github.com/shinyyama/dispatch-backend/internal/model"
	"github.com/shinyyama/dispatch-backend/internal/service"
	"github.com/shopspring/decimal"
)

type TransporterHandler struct {
	transporters service.TransporterService
	deliveries   service.DeliveryService
}

func NewTransporterHandler(transporters service.TransporterService, deliveries service.DeliveryService) *TransporterHandler {
	return &TransporterHandler{transporters: transporters, deliveries: deliveries}
}

type TransporterResponse struct {
	ID                   uint64          `json:"id"`
	Name                 string          `json:"name"`
	Phone                string          `json:"phone"`
	Email                string          `json:"email,omitempty"`
	VehicleType          string          `json:"vehicleType"`
	VehicleNumber        string          `json:"vehicleNumber,omitempty"`
	VehicleCapacity      float64         `json:"vehicleCapacity"`
	CurrentLatitude      *float64        `json:"currentLatitude,omitempty"`
	CurrentLongitude     *float64        `json:"currentLongitude,omitempty"`
	LastLocationUpdate   *string         `json:"lastLocationUpdate,omitempty"`
	ServiceRadiusKm      float64         `json:"serviceRadiusKm"`
	IsAvailable          bool            `json:"isAvailable"`
	IsVerified           bool            `json:"isVerified"`
	Status               string          `json:"status"`
	Rating               float64         `json:"rating"`
	TotalDeliveries      int             `json:"totalDeliveries"`
	SuccessfulDeliveries int             `json:"successfulDeliveries"`
	CancelledDeliveries  int             `json:"cancelledDeliveries"`
	SuccessRate          float64         `json:"successRate"`
	CommissionRate       decimal.Decimal `json:"commissionRate"`
	EarningsTotal        decimal.Decimal `json:"earningsTotal"`
	LicenseExpiry        *string         `json:"licenseExpiry,omitempty"`
	InsuranceExpiry      *string         `json:"insuranceExpiry,omitempty"`
	CreatedAt            string          `json:"createdAt"`
}

func toTransporterResponse(t *model.Transporter) TransporterResponse {
	return TransporterResponse{
		ID:                   t.ID,
		Name:                 t.Name,
		Phone:                t.Phone,
		Email:                t.Email,
		VehicleType:          string(t.VehicleType),
		VehicleNumber:        t.VehicleNumber,
		VehicleCapacity:      t.VehicleCapacity,
		CurrentLatitude:      t.CurrentLatitude,
		CurrentLongitude:     t.CurrentLongitude,
		LastLocationUpdate:   formatTime(t.LastLocationUpdate),
		ServiceRadiusKm:      t.ServiceRadiusKm,
		IsAvailable:          t.IsAvailable,
		IsVerified:           t.IsVerified,
		Status:               string(t.Status),
		Rating:               t.Rating,
		TotalDeliveries:      t.TotalDeliveries,
		SuccessfulDeliveries: t.SuccessfulDeliveries,
		CancelledDeliveries:  t.CancelledDeliveries,
		SuccessRate:          t.SuccessRate(),
		CommissionRate:       t.CommissionRate,
		EarningsTotal:        t.EarningsTotal,
		LicenseExpiry:        formatTime(t.LicenseExpiry),
		InsuranceExpiry:      formatTime(t.InsuranceExpiry),
		CreatedAt:            t.CreatedAt.Format(time.RFC3339),
	}
}

func (h *TransporterHandler) Register(c echo.Context) error {
	var body struct {
		Name            string          `json:"name"`
		Phone           string          `json:"phone"`
		Email           string          `json:"email"`
		LicenseNumber   string          `json:"licenseNumber"`
		VehicleType     string          `json:"vehicleType"`
		VehicleNumber   string          `json:"vehicleNumber"`
		VehicleCapacity float64         `json:"vehicleCapacity"`
		ServiceRadiusKm float64         `json:"serviceRadiusKm"`
		CommissionRate  decimal.Decimal `json:"commissionRate"`
		LicenseExpiry   *time.Time      `json:"licenseExpiry"`
		InsuranceExpiry *time.Time      `json:"insuranceExpiry"`
		Latitude        *float64        `json:"latitude"`
		Longitude       *float64        `json:"longitude"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid body"))
	}
	in := service.RegisterTransporterInput{
		UserUID:         actor(c),
		Name:            body.Name,
		Phone:           body.Phone,
		Email:           body.Email,
		LicenseNumber:   body.LicenseNumber,
		VehicleType:     model.VehicleType(body.VehicleType),
		VehicleNumber:   body.VehicleNumber,
		VehicleCapacity: body.VehicleCapacity,
		ServiceRadiusKm: body.ServiceRadiusKm,
		CommissionRate:  body.CommissionRate,
		LicenseExpiry:   body.LicenseExpiry,
		InsuranceExpiry: body.InsuranceExpiry,
	}
	if body.Latitude != nil && body.Longitude != nil {
		in.Location = &geo.Point{Lat: *body.Latitude, Lon: *body.Longitude}
	}
	t, err := h.transporters.Register(c.Request().Context(), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toTransporterResponse(t))
}

func (h *TransporterHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badID(c, "transporter")
	}
	t, err := h.transporters.Get(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toTransporterResponse(t))
}

func (h *TransporterHandler) Verify(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badID(c, "transporter")
	}
	t, err := h.transporters.Verify(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toTransporterResponse(t))
}

func (h *TransporterHandler) UpdateLocation(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badID(c, "transporter")
	}
	var body struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	}
	if err := c.Bind(&body); err != nil || body.Latitude == nil || body.Longitude == nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("validation_error", "latitude and longitude are required"))
	}
	t, err := h.transporters.UpdateLocation(c.Request().Context(), id, geo.Point{Lat: *body.Latitude, Lon: *body.Longitude})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toTransporterResponse(t))
}

func (h *TransporterHandler) SetAvailability(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badID(c, "transporter")
	}
	var body struct {
		Available *bool `json:"available"`
	}
	if err := c.Bind(&body); err != nil || body.Available == nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("validation_error", "available is required"))
	}
	t, err := h.transporters.SetAvailability(c.Request().Context(), id, *body.Available)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toTransporterResponse(t))
}

func (h *TransporterHandler) Deactivate(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badID(c, "transporter")
	}
	res, err := h.transporters.Deactivate(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	released, held := res.Released, res.Held
	if released == nil {
		released = []uint64{}
	}
	if held == nil {
		held = []uint64{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"transporter": toTransporterResponse(res.Transporter),
		"released":    released,
		"held":        held,
	})
}

func (h *TransporterHandler) Metrics(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badID(c, "transporter")
	}
	m, err := h.transporters.Metrics(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

type SuggestionResponse struct {
	Delivery   DeliveryResponse `json:"delivery"`
	DistanceKm float64          `json:"distanceKm"`
}

func (h *TransporterHandler) Suggestions(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badID(c, "transporter")
	}
	var maxKm float64
	if s := c.QueryParam("maxDistanceKm"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v <= 0 {
			return c.JSON(http.StatusBadRequest, NewErrorResponse("validation_error", "maxDistanceKm must be a positive number"))
		}
		maxKm = v
	}
	list, err := h.deliveries.Suggestions(c.Request().Context(), id, maxKm, queryInt(c, "limit", 0))
	if err != nil {
		return writeError(c, err)
	}
	resp := make([]SuggestionResponse, 0, len(list))
	for i := range list {
		resp = append(resp, SuggestionResponse{
			Delivery:   toDeliveryResponse(&list[i].Delivery),
			DistanceKm: list[i].DistanceKm,
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"suggestions": resp})
}
