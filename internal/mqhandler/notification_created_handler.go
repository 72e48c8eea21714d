package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	contracts "clubportal/contracts/mq"
	"clubportal/internal/model"
	"clubportal/internal/service"
	"clubportal/pkg/logger"
	"clubportal/pkg/trace"
	"clubportal/pkg/util"
)

// NotificationSource loads the persisted notification and its fan-out.
type NotificationSource interface {
	GetByID(ctx context.Context, id string) (*model.Notification, error)
	Recipients(ctx context.Context, notificationID string) ([]model.Member, error)
}

// RunSource loads run details for run_specific email bodies.
type RunSource interface {
	GetRun(ctx context.Context, id int) (*model.Run, error)
}

// DeadLetterer parks poison messages.
type DeadLetterer interface {
	PublishToDLQ(routingKey string, payload []byte, originalError string) error
}

// Deduper suppresses duplicate dispatches of the same notification.
type Deduper interface {
	AcquireOnce(ctx context.Context, scope, id string) bool
}

// NotificationCreatedHandler consumes notification.created events and runs
// the email leg. Returning an error nacks the message for redelivery, so
// only retryable failures propagate; everything else is acked, optionally
// after parking the payload on the DLQ.
type NotificationCreatedHandler struct {
	store      NotificationSource
	runs       RunSource
	dispatcher *service.Dispatcher
	deduper    Deduper
	dlq        DeadLetterer
	logger     *zap.Logger
}

func NewNotificationCreatedHandler(
	store NotificationSource,
	runs RunSource,
	dispatcher *service.Dispatcher,
	deduper Deduper,
	dlq DeadLetterer,
	logger *zap.Logger,
) *NotificationCreatedHandler {
	return &NotificationCreatedHandler{
		store:      store,
		runs:       runs,
		dispatcher: dispatcher,
		deduper:    deduper,
		dlq:        dlq,
		logger:     logger,
	}
}

// Handle processes one notification.created delivery.
func (h *NotificationCreatedHandler) Handle(ctx context.Context, data json.RawMessage) error {
	var payload contracts.NotificationCreatedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		// Malformed payloads never get better on redelivery.
		h.logger.Error("Malformed notification.created payload, dropping",
			zap.Error(err),
		)
		h.park(data, err)
		return nil
	}

	if payload.TraceID != "" && trace.FromContext(ctx) == "" {
		ctx = trace.WithContext(ctx, payload.TraceID)
	}
	log := logger.WithTrace(ctx, h.logger).With(
		zap.String("notification_id", payload.NotificationID),
	)

	n, err := h.store.GetByID(ctx, payload.NotificationID)
	if err != nil {
		return h.classify(log, data, fmt.Errorf("failed to load notification: %w", err))
	}

	var run *model.Run
	if n.Type == model.TypeRunSpecific && n.RunID != nil {
		run, err = h.runs.GetRun(ctx, *n.RunID)
		if err != nil {
			return h.classify(log, data, fmt.Errorf("failed to load run: %w", err))
		}
	}

	recipients, err := h.store.Recipients(ctx, n.ID)
	if err != nil {
		return h.classify(log, data, fmt.Errorf("failed to load recipients: %w", err))
	}

	// The dedup key is taken only after the loads succeed, so a message
	// nacked for a transient failure is still eligible on redelivery.
	if !h.deduper.AcquireOnce(ctx, "dispatch", payload.NotificationID) {
		log.Info("Duplicate delivery, dispatch already done")
		return nil
	}

	res := h.dispatcher.Send(ctx, n, run, recipients)
	log.Info("Email dispatch finished",
		zap.Int("sent", res.Sent),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
		zap.Strings("errors", res.Errors),
	)

	return nil
}

// classify decides the fate of a failed delivery: retryable errors are
// returned so the consumer nacks and MQ redelivers, non-retryable ones are
// parked on the DLQ and acked.
func (h *NotificationCreatedHandler) classify(log *zap.Logger, data json.RawMessage, err error) error {
	retryable, errType := util.IsRetryableError(err)
	if retryable {
		log.Warn("Retryable failure, message will be redelivered",
			zap.String("error_type", errType),
			zap.Error(err),
		)
		return err
	}

	log.Error("Non-retryable failure, parking message",
		zap.String("error_type", errType),
		zap.Error(err),
	)
	h.park(data, err)
	return nil
}

func (h *NotificationCreatedHandler) park(data json.RawMessage, cause error) {
	if h.dlq == nil {
		return
	}
	if err := h.dlq.PublishToDLQ(contracts.RoutingKeyNotificationCreated, data, cause.Error()); err != nil {
		h.logger.Error("Failed to publish to DLQ", zap.Error(err))
	}
}
