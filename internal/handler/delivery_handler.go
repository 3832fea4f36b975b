package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/dispatch-backend/internal/geo"
	"github.com/shinyyama/dispatch-backend/internal/model"
	"github.com/shinyyama/dispatch-backend/internal/service"
	"github.com/shinyyama/dispatch-backend/internal/storage"
	"github.com/shopspring/decimal"
)

const maxProofBytes = 10 << 20

type DeliveryHandler struct {
	deliveries service.DeliveryService
	lifecycle  service.DeliveryLifecycle
	ratings    service.RatingService
}

func NewDeliveryHandler(deliveries service.DeliveryService, lifecycle service.DeliveryLifecycle, ratings service.RatingService) *DeliveryHandler {
	return &DeliveryHandler{deliveries: deliveries, lifecycle: lifecycle, ratings: ratings}
}

type DeliveryResponse struct {
	ID                    uint64          `json:"id"`
	DeliveryID            string          `json:"deliveryId"`
	TrackingCode          string          `json:"trackingCode"`
	OrderID               *uint64         `json:"orderId,omitempty"`
	SaleID                *uint64         `json:"saleId,omitempty"`
	Status                string          `json:"status"`
	Priority              string          `json:"priority"`
	TransporterID         *uint64         `json:"transporterId,omitempty"`
	PickupAddress         string          `json:"pickupAddress"`
	PickupLatitude        *float64        `json:"pickupLatitude,omitempty"`
	PickupLongitude       *float64        `json:"pickupLongitude,omitempty"`
	DeliveryAddress       string          `json:"deliveryAddress"`
	DeliveryLatitude      *float64        `json:"deliveryLatitude,omitempty"`
	DeliveryLongitude     *float64        `json:"deliveryLongitude,omitempty"`
	PackageWeight         float64         `json:"packageWeight"`
	Fragile               bool            `json:"fragile"`
	RequiresSignature     bool            `json:"requiresSignature"`
	DeliveryFee           decimal.Decimal `json:"deliveryFee"`
	DistanceKm            *float64        `json:"distanceKm,omitempty"`
	EstimatedDeliveryTime *string         `json:"estimatedDeliveryTime,omitempty"`
	RequestedPickupDate   string          `json:"requestedPickupDate"`
	RequestedDeliveryDate string          `json:"requestedDeliveryDate"`
	AssignedAt            *string         `json:"assignedAt,omitempty"`
	PickedUpAt            *string         `json:"pickedUpAt,omitempty"`
	DeliveredAt           *string         `json:"deliveredAt,omitempty"`
	CancelledAt           *string         `json:"cancelledAt,omitempty"`
	CancellationReason    string          `json:"cancellationReason,omitempty"`
	DeliveryAttempts      int             `json:"deliveryAttempts"`
	MaxDeliveryAttempts   int             `json:"maxDeliveryAttempts"`
	ProofPhotoRef         string          `json:"proofPhotoRef,omitempty"`
	SignatureRef          string          `json:"signatureRef,omitempty"`
	CreatedAt             string          `json:"createdAt"`
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	val := t.Format(time.RFC3339)
	return &val
}

func toDeliveryResponse(d *model.Delivery) DeliveryResponse {
	return DeliveryResponse{
		ID:                    d.ID,
		DeliveryID:            d.DeliveryID,
		TrackingCode:          d.TrackingCode,
		OrderID:               d.OrderID,
		SaleID:                d.SaleID,
		Status:                string(d.Status),
		Priority:              string(d.Priority),
		TransporterID:         d.TransporterID,
		PickupAddress:         d.PickupAddress,
		PickupLatitude:        d.PickupLatitude,
		PickupLongitude:       d.PickupLongitude,
		DeliveryAddress:       d.DeliveryAddress,
		DeliveryLatitude:      d.DeliveryLatitude,
		DeliveryLongitude:     d.DeliveryLongitude,
		PackageWeight:         d.PackageWeight,
		Fragile:               d.Fragile,
		RequiresSignature:     d.RequiresSignature,
		DeliveryFee:           d.DeliveryFee,
		DistanceKm:            d.DistanceKm,
		EstimatedDeliveryTime: formatTime(d.EstimatedDeliveryTime),
		RequestedPickupDate:   d.RequestedPickupDate.Format(time.RFC3339),
		RequestedDeliveryDate: d.RequestedDeliveryDate.Format(time.RFC3339),
		AssignedAt:            formatTime(d.AssignedAt),
		PickedUpAt:            formatTime(d.PickedUpAt),
		DeliveredAt:           formatTime(d.DeliveredAt),
		CancelledAt:           formatTime(d.CancelledAt),
		CancellationReason:    d.CancellationReason,
		DeliveryAttempts:      d.DeliveryAttempts,
		MaxDeliveryAttempts:   d.MaxDeliveryAttempts,
		ProofPhotoRef:         d.ProofPhotoRef,
		SignatureRef:          d.SignatureRef,
		CreatedAt:             d.CreatedAt.Format(time.RFC3339),
	}
}

type TrackingResponse struct {
	ID        uint64   `json:"id"`
	Status    string   `json:"status"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Notes     string   `json:"notes,omitempty"`
	ActorUID  string   `json:"actorUid,omitempty"`
	Timestamp string   `json:"timestamp"`
}

func toTrackingResponse(e *model.DeliveryTracking) TrackingResponse {
	return TrackingResponse{
		ID:        e.ID,
		Status:    string(e.Status),
		Latitude:  e.Latitude,
		Longitude: e.Longitude,
		Notes:     e.Notes,
		ActorUID:  e.ActorUID,
		Timestamp: e.Timestamp.Format(time.RFC3339),
	}
}

func (h *DeliveryHandler) Create(c echo.Context) error {
	var body struct {
		OrderID               *uint64         `json:"orderId"`
		SaleID                *uint64         `json:"saleId"`
		PickupAddress         string          `json:"pickupAddress"`
		PickupLatitude        *float64        `json:"pickupLatitude"`
		PickupLongitude       *float64        `json:"pickupLongitude"`
		PickupContactName     string          `json:"pickupContactName"`
		PickupContactPhone    string          `json:"pickupContactPhone"`
		DeliveryAddress       string          `json:"deliveryAddress"`
		DeliveryLatitude      *float64        `json:"deliveryLatitude"`
		DeliveryLongitude     *float64        `json:"deliveryLongitude"`
		DeliveryContactName   string          `json:"deliveryContactName"`
		DeliveryContactPhone  string          `json:"deliveryContactPhone"`
		PackageWeight         float64         `json:"packageWeight"`
		PackageDimensions     string          `json:"packageDimensions"`
		PackageValue          decimal.Decimal `json:"packageValue"`
		Fragile               bool            `json:"fragile"`
		RequiresSignature     bool            `json:"requiresSignature"`
		SpecialInstructions   string          `json:"specialInstructions"`
		Priority              string          `json:"priority"`
		DeliveryFee           decimal.Decimal `json:"deliveryFee"`
		RequestedPickupDate   time.Time       `json:"requestedPickupDate"`
		RequestedDeliveryDate time.Time       `json:"requestedDeliveryDate"`
		MaxDeliveryAttempts   int             `json:"maxDeliveryAttempts"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid body"))
	}
	d, err := h.deliveries.Create(c.Request().Context(), service.CreateDeliveryInput{
		OrderID:               body.OrderID,
		SaleID:                body.SaleID,
		PickupAddress:         body.PickupAddress,
		PickupLatitude:        body.PickupLatitude,
		PickupLongitude:       body.PickupLongitude,
		PickupContactName:     body.PickupContactName,
		PickupContactPhone:    body.PickupContactPhone,
		DeliveryAddress:       body.DeliveryAddress,
		DeliveryLatitude:      body.DeliveryLatitude,
		DeliveryLongitude:     body.DeliveryLongitude,
		DeliveryContactName:   body.DeliveryContactName,
		DeliveryContactPhone:  body.DeliveryContactPhone,
		PackageWeight:         body.PackageWeight,
		PackageDimensions:     body.PackageDimensions,
		PackageValue:          body.PackageValue,
		Fragile:               body.Fragile,
		RequiresSignature:     body.RequiresSignature,
		SpecialInstructions:   body.SpecialInstructions,
		Priority:              model.Priority(body.Priority),
		DeliveryFee:           body.DeliveryFee,
		RequestedPickupDate:   body.RequestedPickupDate,
		RequestedDeliveryDate: body.RequestedDeliveryDate,
		MaxDeliveryAttempts:   body.MaxDeliveryAttempts,
	}, actor(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toDeliveryResponse(d))
}

func (h *DeliveryHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badID(c, "delivery")
	}
	d, err := h.deliveries.Get(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toDeliveryResponse(d))
}

func (h *DeliveryHandler) UpdateStatus(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badID(c, "delivery")
	}
	var body struct {
		Status        string   `json:"status"`
		Notes         string   `json:"notes"`
		Latitude      *float64 `json:"latitude"`
		Longitude     *float64 `json:"longitude"`
		Reason        string   `json:"reason"`
		ProofPhotoRef string   `json:"proofPhotoRef"`
		SignatureRef  string   `json:"signatureRef"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid body"))
	}
	req := service.TransitionRequest{
		DeliveryID:    id,
		To:            model.DeliveryStatus(body.Status),
		Notes:         body.Notes,
		ActorUID:      actor(c),
		Reason:        body.Reason,
		ProofPhotoRef: body.ProofPhotoRef,
		SignatureRef:  body.SignatureRef,
	}
	if (body.Latitude == nil) != (body.Longitude == nil) {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("validation_error", "latitude and longitude must be given together"))
	}
	if body.Latitude != nil {
		req.Location = &geo.Point{Lat: *body.Latitude, Lon: *body.Longitude}
	}
	d, err := h.lifecycle.Transition(c.Request().Context(), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toDeliveryResponse(d))
}

func (h *DeliveryHandler) RecordAttempt(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badID(c, "delivery")
	}
	var body struct {
		Notes string `json:"notes"`
	}
	_ = c.Bind(&body)
	d, err := h.lifecycle.RecordFailedAttempt(c.Request().Context(), id, body.Notes, actor(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toDeliveryResponse(d))
}

func (h *DeliveryHandler) RecordPosition(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badID(c, "delivery")
	}
	var body struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
		Notes     string   `json:"notes"`
	}
	if err := c.Bind(&body); err != nil || body.Latitude == nil || body.Longitude == nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("validation_error", "latitude and longitude are required"))
	}
	e, err := h.lifecycle.RecordPosition(c.Request().Context(), id, geo.Point{Lat: *body.Latitude, Lon: *body.Longitude}, body.Notes, actor(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toTrackingResponse(e))
}

func (h *DeliveryHandler) UploadProof(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badID(c, "delivery")
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "file is required"))
	}
	if fh.Size > maxProofBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, NewErrorResponse("too_large", "proof upload exceeds 10MB"))
	}
	f, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "unreadable file"))
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxProofBytes))
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "unreadable file"))
	}
	kind := storage.ProofKind(c.FormValue("kind"))
	if kind == "" {
		kind = storage.ProofPhoto
	}
	ref, err := h.deliveries.UploadProof(c.Request().Context(), id, kind, fh.Header.Get("Content-Type"), data)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"kind": string(kind), "ref": ref})
}

func (h *DeliveryHandler) Rate(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badID(c, "delivery")
	}
	var body struct {
		Rating  int    `json:"rating"`
		Comment string `json:"comment"`
		RatedBy string `json:"ratedBy"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid body"))
	}
	rater := actor(c)
	if rater == "" {
		rater = body.RatedBy
	}
	rt, err := h.ratings.Rate(c.Request().Context(), id, rater, body.Rating, body.Comment)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"id":            rt.ID,
		"deliveryId":    rt.DeliveryID,
		"transporterId": rt.TransporterID,
		"rating":        rt.Rating,
		"comment":       rt.Comment,
	})
}

func (h *DeliveryHandler) Tracking(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badID(c, "delivery")
	}
	list, err := h.deliveries.Tracking(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	resp := make([]TrackingResponse, 0, len(list))
	for i := range list {
		resp = append(resp, toTrackingResponse(&list[i]))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"tracking": resp})
}
