package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/dispatch-backend/internal/model"
	"github.com/shinyyama/dispatch-backend/internal/service"
)

const defaultRecommendationLimit = 5

type AssignmentHandler struct {
	svc service.AssignmentService
}

func NewAssignmentHandler(svc service.AssignmentService) *AssignmentHandler {
	return &AssignmentHandler{svc: svc}
}

type AssignmentResponse struct {
	Delivery       DeliveryResponse    `json:"delivery"`
	Transporter    TransporterResponse `json:"transporter"`
	AssignmentType string              `json:"assignmentType"`
	Score          *service.Score      `json:"score,omitempty"`
	Alternatives   []service.Score     `json:"alternatives"`
}

type RecommendationResponse struct {
	Transporter           TransporterResponse `json:"transporter"`
	Score                 service.Score       `json:"score"`
	EstimatedDeliveryTime *string             `json:"estimatedDeliveryTime,omitempty"`
}

func (h *AssignmentHandler) Assign(c echo.Context) error {
	var body struct {
		DeliveryID    uint64  `json:"deliveryId"`
		TransporterID *uint64 `json:"transporterId"`
	}
	if err := c.Bind(&body); err != nil || body.DeliveryID == 0 {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "deliveryId is required"))
	}
	res, err := h.svc.AssignDelivery(c.Request().Context(), body.DeliveryID, body.TransporterID, actor(c))
	if err != nil {
		return writeError(c, err)
	}
	alts := res.Alternatives
	if alts == nil {
		alts = []service.Score{}
	}
	return c.JSON(http.StatusOK, AssignmentResponse{
		Delivery:       toDeliveryResponse(res.Delivery),
		Transporter:    toTransporterResponse(res.Transporter),
		AssignmentType: string(res.Type),
		Score:          res.Score,
		Alternatives:   alts,
	})
}

func (h *AssignmentHandler) BulkAssign(c echo.Context) error {
	var body struct {
		Priority       string `json:"priority"`
		TimeRangeHours *int   `json:"timeRangeHours"`
		MaxAssignments int    `json:"maxAssignments"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid body"))
	}
	res, err := h.svc.BulkAssign(c.Request().Context(), service.BulkFilter{
		Priority:       model.Priority(body.Priority),
		TimeRangeHours: body.TimeRangeHours,
		MaxAssignments: body.MaxAssignments,
	}, actor(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *AssignmentHandler) Recommendations(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badID(c, "delivery")
	}
	recs, err := h.svc.GetRecommendations(c.Request().Context(), id, queryInt(c, "limit", defaultRecommendationLimit))
	if err != nil {
		return writeError(c, err)
	}
	resp := make([]RecommendationResponse, 0, len(recs))
	for i := range recs {
		r := recs[i]
		resp = append(resp, RecommendationResponse{
			Transporter:           toTransporterResponse(&r.Transporter),
			Score:                 r.Score,
			EstimatedDeliveryTime: formatTime(r.EstimatedDeliveryTime),
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"deliveryId":      id,
		"recommendations": resp,
		"generatedAt":     time.Now().UTC().Format(time.RFC3339),
	})
}
