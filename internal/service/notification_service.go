package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shinyyama/dispatch-backend/internal/events"
	"github.com/shinyyama/dispatch-backend/internal/model"
	"github.com/shinyyama/dispatch-backend/internal/repository"
)

const (
	NoticeAssigned  = "assigned"
	NoticeReleased  = "released"
	NoticePickedUp  = "picked_up"
	NoticeDelivered = "delivered"
	NoticeCancelled = "cancelled"
	NoticeReturned  = "returned"
	NoticeFailed    = "failed"
	NoticeAttempt   = "attempt_failed"
	NoticeOverdue   = "overdue"
	NoticeEscalated = "escalated"
	NoticeReminder  = "reminder"
	NoticeDelayed   = "delayed"
)

const (
	ChannelPush  = "push"
	ChannelEmail = "email"
)

type Notice struct {
	Role          model.RecipientRole
	DeliveryID    uint64
	TransporterID *uint64
	Type          string
	Channel       string
	Title         string
	Body          string
}

type NotificationService interface {
	// Notify is fire-and-forget: failures are logged, never returned.
	Notify(ctx context.Context, n Notice)
	ListForTransporter(ctx context.Context, transporterID uint64, unreadOnly bool, limit int) ([]model.Notification, int64, error)
	MarkAllRead(ctx context.Context, transporterID uint64) error
}

type notificationService struct {
	repo      repository.NotificationRepository
	publisher events.Publisher
	clock     Clock
}

func NewNotificationService(repo repository.NotificationRepository, publisher events.Publisher, clock Clock) NotificationService {
	if publisher == nil {
		publisher = events.NewNoopPublisher()
	}
	return &notificationService{repo: repo, publisher: publisher, clock: clock}
}

func (s *notificationService) Notify(ctx context.Context, n Notice) {
	if n.Type == "" || n.DeliveryID == 0 {
		return
	}
	if n.Channel == "" {
		n.Channel = ChannelPush
	}
	ctx, cancel := withShortDeadline(ctx)
	defer cancel()

	rec := &model.Notification{
		RecipientRole: n.Role,
		TransporterID: n.TransporterID,
		DeliveryID:    n.DeliveryID,
		Type:          n.Type,
		Channel:       n.Channel,
		Title:         n.Title,
		Body:          n.Body,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		log.Printf("[notify] persist failed delivery=%d type=%s err=%v", n.DeliveryID, n.Type, err)
	}
	ev := events.Event{
		Type:          n.Type,
		DeliveryID:    n.DeliveryID,
		TransporterID: n.TransporterID,
		RecipientRole: string(n.Role),
		Channel:       n.Channel,
		Title:         n.Title,
		Body:          n.Body,
		OccurredAt:    s.clock.now(),
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		log.Printf("[notify] publish failed delivery=%d type=%s err=%v", n.DeliveryID, n.Type, err)
	}
}

func (s *notificationService) ListForTransporter(ctx context.Context, transporterID uint64, unreadOnly bool, limit int) ([]model.Notification, int64, error) {
	list, err := s.repo.ListByTransporter(ctx, transporterID, unreadOnly, limit)
	if err != nil {
		return nil, 0, err
	}
	cnt, err := s.repo.CountUnread(ctx, transporterID)
	if err != nil {
		return list, 0, err
	}
	return list, cnt, nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, transporterID uint64) error {
	if transporterID == 0 {
		return nil
	}
	return s.repo.MarkAllRead(ctx, transporterID)
}

func transporterNotice(d *model.Delivery, typ, body string) Notice {
	return Notice{
		Role:          model.RecipientTransporter,
		DeliveryID:    d.ID,
		TransporterID: d.TransporterID,
		Type:          typ,
		Title:         fmt.Sprintf("Delivery %s %s", d.TrackingCode, typ),
		Body:          body,
	}
}

func roleNotice(role model.RecipientRole, d *model.Delivery, typ, body string) Notice {
	return Notice{
		Role:          role,
		DeliveryID:    d.ID,
		TransporterID: d.TransporterID,
		Type:          typ,
		Title:         fmt.Sprintf("Delivery %s %s", d.TrackingCode, typ),
		Body:          body,
	}
}

func uint64Ptr(v uint64) *uint64 {
	return &v
}

// withShortDeadline keeps a slow store or broker from stalling the caller.
func withShortDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 2*time.Second)
}
