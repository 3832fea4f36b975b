package server

import (
	"github.com/shinyyama/dispatch-backend/internal/cache"
	"github.com/shinyyama/dispatch-backend/internal/config"
	"github.com/shinyyama/dispatch-backend/internal/events"
	"github.com/shinyyama/dispatch-backend/internal/repository"
	"github.com/shinyyama/dispatch-backend/internal/service"
	"github.com/shinyyama/dispatch-backend/internal/storage"
	"gorm.io/gorm"
)

// Deps are the collaborators that are chosen from configuration rather than
// built from the database handle.
type Deps struct {
	Dispatch  config.Dispatch
	Metrics   cache.MetricsCache
	Publisher events.Publisher
	Proofs    storage.ProofStore
	Clock     service.Clock
}

// Services is the dispatch engine wired over one database handle. It is
// shared by the HTTP server and the dispatchctl commands.
type Services struct {
	transporterRepo  repository.TransporterRepository
	deliveryRepo     repository.DeliveryRepository
	trackingRepo     repository.TrackingRepository
	ratingRepo       repository.RatingRepository
	notificationRepo repository.NotificationRepository

	Notifications  service.NotificationService
	Lifecycle      service.DeliveryLifecycle
	Registry       service.TransporterRegistry
	Assignment     service.AssignmentService
	Reconciliation service.ReconciliationService
	Deliveries     service.DeliveryService
	Transporters   service.TransporterService
	Ratings        service.RatingService
	Reports        service.ReportingService
}

func NewServices(db *gorm.DB, d Deps) *Services {
	if d.Metrics == nil {
		d.Metrics = cache.NewMemoryMetricsCache(1024, d.Dispatch.MetricsTTL)
	}
	if d.Publisher == nil {
		d.Publisher = events.NewNoopPublisher()
	}
	if d.Proofs == nil {
		d.Proofs = storage.NewDisabledProofStore()
	}

	s := &Services{
		transporterRepo:  repository.NewTransporterRepository(db),
		deliveryRepo:     repository.NewDeliveryRepository(db),
		trackingRepo:     repository.NewTrackingRepository(db),
		ratingRepo:       repository.NewRatingRepository(db),
		notificationRepo: repository.NewNotificationRepository(db),
	}
	s.Notifications = service.NewNotificationService(s.notificationRepo, d.Publisher, d.Clock)
	s.Lifecycle = service.NewDeliveryLifecycle(s.deliveryRepo, s.transporterRepo, s.trackingRepo, s.Notifications, d.Clock)
	s.Registry = service.NewTransporterRegistry(s.transporterRepo, s.deliveryRepo, d.Dispatch, d.Clock)
	s.Assignment = service.NewAssignmentService(s.deliveryRepo, s.Registry, service.NewScorer(d.Dispatch), s.Lifecycle, d.Dispatch, d.Clock)
	s.Reconciliation = service.NewReconciliationService(s.deliveryRepo, s.transporterRepo, s.trackingRepo, s.Lifecycle, s.Notifications, d.Metrics, d.Dispatch, d.Clock)
	s.Deliveries = service.NewDeliveryService(s.deliveryRepo, s.transporterRepo, s.trackingRepo, d.Proofs, d.Dispatch, d.Clock)
	s.Transporters = service.NewTransporterService(s.transporterRepo, s.deliveryRepo, s.Lifecycle, d.Metrics, d.Dispatch, d.Clock)
	s.Ratings = service.NewRatingService(s.ratingRepo, s.deliveryRepo)
	s.Reports = service.NewReportingService(s.deliveryRepo, s.transporterRepo, s.ratingRepo, d.Clock)
	return s
}

// SetDB swaps the database handle under every repository.
func (s *Services) SetDB(db *gorm.DB) {
	s.transporterRepo.SetDB(db)
	s.deliveryRepo.SetDB(db)
	s.trackingRepo.SetDB(db)
	s.ratingRepo.SetDB(db)
	s.notificationRepo.SetDB(db)
}
