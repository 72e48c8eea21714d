package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	contracts "clubportal/contracts/mq"
	"clubportal/internal/model"
	"clubportal/pkg/metrics"
	"clubportal/pkg/trace"
)

// ErrInvalidNotification wraps create-time validation failures.
var ErrInvalidNotification = errors.New("invalid notification")

// NotificationStore is the persistence slice the service needs.
type NotificationStore interface {
	Insert(ctx context.Context, n *model.Notification) error
	InsertDelivery(ctx context.Context, notificationID string, memberID int) error
	ListForRecipient(ctx context.Context, memberID int, limit int) ([]model.FeedItem, error)
	MarkRead(ctx context.Context, notificationID string, memberID int) error
	Dismiss(ctx context.Context, notificationID string, memberID int) error
}

// EventPublisher emits domain events to the message broker.
type EventPublisher interface {
	PublishWithContext(ctx context.Context, routingKey string, payload any) error
}

// CreateInput carries everything needed to create a notification.
type CreateInput struct {
	Title          string
	Message        string
	Type           string
	Priority       string
	RunID          *int
	AffiliatedOnly bool
	SendEmail      bool
	CreatedBy      int
	ScheduledFor   *time.Time
	ExpiresAt      *time.Time
}

// NotificationService creates notifications, fans out delivery records and
// hands the email leg to the background dispatcher via the broker. Email
// dispatch is fire and forget: creation succeeds regardless of what later
// happens to the emails.
type NotificationService struct {
	store     NotificationStore
	resolver  *RecipientResolver
	publisher EventPublisher
	logger    *zap.Logger
}

func NewNotificationService(store NotificationStore, resolver *RecipientResolver, publisher EventPublisher, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		store:     store,
		resolver:  resolver,
		publisher: publisher,
		logger:    logger,
	}
}

func validateCreate(in CreateInput) error {
	if in.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidNotification)
	}
	if in.Message == "" {
		return fmt.Errorf("%w: message is required", ErrInvalidNotification)
	}
	switch in.Type {
	case model.TypeGeneral, model.TypeUrgent, model.TypeRunSpecific:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidNotification, in.Type)
	}
	switch in.Priority {
	case "", model.PriorityLow, model.PriorityNormal, model.PriorityHigh, model.PriorityUrgent:
	default:
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidNotification, in.Priority)
	}
	return nil
}

// Create persists the notification, writes one delivery record per
// recipient and, when email delivery is requested, publishes the created
// event for the notifier to pick up. A recipient set of zero is a valid
// no-op. Individual delivery-record failures are logged and skipped; the
// remaining recipients still get theirs.
func (s *NotificationService) Create(ctx context.Context, in CreateInput) (*model.Notification, int, error) {
	if err := validateCreate(in); err != nil {
		return nil, 0, err
	}

	recipients, err := s.resolver.Resolve(ctx, in.Type, in.RunID, in.AffiliatedOnly)
	if err != nil {
		if errors.Is(err, ErrRunRequired) {
			return nil, 0, fmt.Errorf("%w: %v", ErrInvalidNotification, err)
		}
		return nil, 0, fmt.Errorf("failed to resolve recipients: %w", err)
	}

	priority := in.Priority
	if priority == "" {
		priority = model.PriorityNormal
	}

	n := &model.Notification{
		ID:           uuid.NewString(),
		Title:        in.Title,
		Message:      in.Message,
		Type:         in.Type,
		Priority:     priority,
		RunID:        in.RunID,
		CreatedBy:    in.CreatedBy,
		ScheduledFor: in.ScheduledFor,
		ExpiresAt:    in.ExpiresAt,
	}
	if err := s.store.Insert(ctx, n); err != nil {
		return nil, 0, err
	}

	delivered := 0
	for _, m := range recipients {
		if err := s.store.InsertDelivery(ctx, n.ID, m.ID); err != nil {
			s.logger.Error("Failed to insert delivery record",
				zap.String("notification_id", n.ID),
				zap.Int("member_id", m.ID),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}
	metrics.RecordFanout(delivered)

	s.logger.Info("Notification created",
		zap.String("notification_id", n.ID),
		zap.String("type", n.Type),
		zap.Int("recipients", delivered),
	)

	if in.SendEmail && delivered > 0 {
		s.publishCreated(ctx, n)
	}

	return n, delivered, nil
}

// publishCreated emits notification.created. A broker failure is logged
// and swallowed: the notification and its in-app deliveries already exist,
// only the email leg is lost.
func (s *NotificationService) publishCreated(ctx context.Context, n *model.Notification) {
	payload := contracts.NotificationCreatedPayload{
		NotificationID: n.ID,
		TraceID:        trace.FromContext(ctx),
		CreatedAt:      n.CreatedAt,
	}

	if err := s.publisher.PublishWithContext(ctx, contracts.RoutingKeyNotificationCreated, payload); err != nil {
		s.logger.Error("Failed to publish created event, emails will not go out",
			zap.String("notification_id", n.ID),
			zap.Error(err),
		)
	}
}

// List returns the member's active feed, newest first.
func (s *NotificationService) List(ctx context.Context, memberID int, limit int) ([]model.FeedItem, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListForRecipient(ctx, memberID, limit)
}

func (s *NotificationService) MarkRead(ctx context.Context, notificationID string, memberID int) error {
	return s.store.MarkRead(ctx, notificationID, memberID)
}

func (s *NotificationService) Dismiss(ctx context.Context, notificationID string, memberID int) error {
	return s.store.Dismiss(ctx, notificationID, memberID)
}
