package server

import (
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/shinyyama/dispatch-backend/internal/handler"
	appmw "github.com/shinyyama/dispatch-backend/internal/middleware"
	"gorm.io/gorm"
)

type Server struct {
	e       *echo.Echo
	svcs    *Services
	dbReady atomic.Bool
	sha     string
	build   string
}

// New wires every route over svcs. auth may be nil, in which case requests
// carry no actor uid and /api/me is not mounted.
func New(svcs *Services, auth *appmw.AuthMiddleware, sha, buildTime string) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		AllowOriginFunc:  allowOrigin,
	}))

	s := &Server{e: e, svcs: svcs, sha: sha, build: buildTime}

	deliveryHandler := handler.NewDeliveryHandler(svcs.Deliveries, svcs.Lifecycle, svcs.Ratings)
	assignmentHandler := handler.NewAssignmentHandler(svcs.Assignment)
	transporterHandler := handler.NewTransporterHandler(svcs.Transporters, svcs.Deliveries)
	notificationHandler := handler.NewNotificationHandler(svcs.Notifications)
	reconcileHandler := handler.NewReconcileHandler(svcs.Reconciliation)
	reportHandler := handler.NewReportHandler(svcs.Reports)

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"ok":         true,
			"db_ready":   s.dbReady.Load(),
			"git_sha":    sha,
			"build_time": buildTime,
		})
	})

	var authed []echo.MiddlewareFunc
	if auth != nil {
		authed = append(authed, auth.RequireAuth)
	}

	api := e.Group("/api")
	api.POST("/deliveries", deliveryHandler.Create, authed...)
	api.GET("/deliveries/:id", deliveryHandler.Get)
	api.POST("/deliveries/:id/status", deliveryHandler.UpdateStatus, authed...)
	api.POST("/deliveries/:id/attempts", deliveryHandler.RecordAttempt, authed...)
	api.POST("/deliveries/:id/position", deliveryHandler.RecordPosition, authed...)
	api.POST("/deliveries/:id/proof", deliveryHandler.UploadProof, authed...)
	api.POST("/deliveries/:id/rating", deliveryHandler.Rate, authed...)
	api.GET("/deliveries/:id/tracking", deliveryHandler.Tracking)

	api.POST("/assign", assignmentHandler.Assign, authed...)
	api.POST("/bulk-assign", assignmentHandler.BulkAssign, authed...)
	api.GET("/recommendations/:id", assignmentHandler.Recommendations)

	api.POST("/transporters", transporterHandler.Register, authed...)
	api.GET("/transporters/:id", transporterHandler.Get)
	api.POST("/transporters/:id/verify", transporterHandler.Verify, authed...)
	api.POST("/transporters/:id/location", transporterHandler.UpdateLocation, authed...)
	api.POST("/transporters/:id/availability", transporterHandler.SetAvailability, authed...)
	api.POST("/transporters/:id/deactivate", transporterHandler.Deactivate, authed...)
	api.GET("/transporters/:id/metrics", transporterHandler.Metrics)
	api.GET("/transporters/:id/suggestions", transporterHandler.Suggestions)
	api.GET("/transporters/:id/notifications", notificationHandler.List, authed...)
	api.POST("/transporters/:id/notifications/read", notificationHandler.MarkAllRead, authed...)

	api.POST("/reconcile", reconcileHandler.RunAll, authed...)
	api.POST("/reconcile/:sweep", reconcileHandler.Run, authed...)

	api.GET("/reports/overview", reportHandler.Overview, authed...)
	api.GET("/reports/transporters", reportHandler.Transporters, authed...)

	if auth != nil && auth.Client() != nil {
		userHandler := handler.NewUserHandler(auth.Client(), svcs.Transporters)
		api.GET("/me", userHandler.Me, auth.RequireAuth)
	}

	return s
}

func allowOrigin(origin string) (bool, error) {
	low := strings.ToLower(origin)
	if strings.HasPrefix(low, "http://localhost:") || strings.HasPrefix(low, "http://127.0.0.1:") ||
		strings.HasPrefix(low, "https://localhost:") || strings.HasPrefix(low, "https://127.0.0.1:") {
		return true, nil
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false, nil
	}
	if u.Scheme != "https" {
		return false, nil
	}
	return strings.HasSuffix(u.Hostname(), ".vercel.app"), nil
}

func (s *Server) Handler() http.Handler {
	return s.e
}

func (s *Server) Start(addr string) error {
	return s.e.Start(addr)
}

// SetDB injects the database once the connection comes up after the
// listener has started.
func (s *Server) SetDB(db *gorm.DB) {
	s.svcs.SetDB(db)
	s.dbReady.Store(db != nil)
}
